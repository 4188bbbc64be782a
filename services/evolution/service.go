// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evolution

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/routes"
	"github.com/AleutianAI/SeekIn/services/evolution/watch"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Service is the HTTP front of a Pipeline.
//
// # Description
//
// Service serves the cached documents, accepts history writes from the
// browser and, when enabled, triggers evolution cycles. The document cache
// follows changes made by other processes through fsnotify.
//
// # Thread Safety
//
// Thread-safe after construction. Run must be called at most once.
type Service struct {
	pipeline *Pipeline
	cache    *watch.Cache
	router   *gin.Engine
	server   *http.Server
}

// NewService builds the pipeline and the router.
//
// # Outputs
//
//   - *Service: Ready service. Run releases the pipeline on return.
//   - error: Non-nil if the pipeline cannot be built, or if EnableEvolve is
//     set without a generation client.
func NewService(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	p, err := NewPipeline(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if p.Config.EnableEvolve && p.Runner == nil {
		p.Close(ctx)
		return nil, fmt.Errorf("evolve endpoint enabled: %w", ErrGenerationDisabled)
	}

	s := &Service{
		pipeline: p,
		cache:    watch.New(p.Config.DataDir, p.Store, p.logger),
	}
	s.initRouter()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", p.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("seekin"))

	deps := routes.Dependencies{
		Cache:      s.cache,
		Archiver:   s.pipeline.Archiver,
		Gatherer:   s.pipeline.Registry,
		StaticDir:  s.pipeline.Config.StaticDir,
		WriteToken: s.pipeline.Config.WriteToken,
	}
	if s.pipeline.Config.EnableEvolve && s.pipeline.Runner != nil {
		deps.Runner = s.pipeline.Runner
	}
	if s.pipeline.Journal != nil {
		deps.Journal = s.pipeline.Journal
	}
	routes.SetupRoutes(s.router, deps)
}

// Router returns the configured engine, mainly for tests.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Pipeline returns the underlying pipeline.
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// Run serves HTTP and watches the documents until ctx is cancelled.
//
// # Description
//
// The HTTP server and the document watcher run in one errgroup. When ctx
// is cancelled the server is shut down gracefully, waiting at most five
// seconds for in-flight requests. The pipeline is closed on return.
//
// # Outputs
//
//   - error: The first server or watcher failure. Nil after a clean
//     shutdown.
func (s *Service) Run(ctx context.Context) error {
	defer s.pipeline.Close(context.Background())

	if err := s.cache.Reload(ctx); err != nil {
		s.pipeline.logger.Warn("Initial document load failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.pipeline.logger.Info("Starting seekin server", "port", s.pipeline.Config.Port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.cache.Watch(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.pipeline.logger.Warn("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
