// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evolution wires the evolution pipeline together.
//
// A Pipeline owns the components one evolution cycle needs: the document
// store, the prompt builder, the generation client, the validator, the
// retrying orchestrator, the history archiver with its sinks, the optional
// cycle journal and the metrics registry. The seekin CLI builds one
// Pipeline per process; Service adds the HTTP surface and the document
// cache on top of it.
//
// # Usage
//
//	p, err := evolution.NewPipeline(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Close(ctx)
//	result, err := p.Runner.RunCycle(ctx)
package evolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/AleutianAI/SeekIn/services/evolution/archive"
	"github.com/AleutianAI/SeekIn/services/evolution/cycle"
	"github.com/AleutianAI/SeekIn/services/evolution/journal"
	"github.com/AleutianAI/SeekIn/services/evolution/observability"
	"github.com/AleutianAI/SeekIn/services/evolution/orchestrator"
	"github.com/AleutianAI/SeekIn/services/evolution/prompt"
	"github.com/AleutianAI/SeekIn/services/evolution/store"
	"github.com/AleutianAI/SeekIn/services/evolution/tracing"
	"github.com/AleutianAI/SeekIn/services/evolution/validation"
	"github.com/AleutianAI/SeekIn/services/llm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the pipeline and server configuration.
//
// # Description
//
// Zero values use defaults. The generation client is only built when
// LLM.APIKey is set or a client is injected with WithGenerationClient;
// without one the pipeline can serve and archive documents but cannot run
// cycles.
type Config struct {
	// Port is the HTTP server port. Default: 3000
	Port int

	// DataDir holds the state documents. Default: "data"
	DataDir string

	// StaticDir is served for unmatched GET requests. Empty disables it.
	StaticDir string

	// EnableEvolve registers POST /api/evolve on the server.
	EnableEvolve bool

	// WriteToken, when set, is required as a bearer token on the POST
	// endpoints.
	WriteToken string

	// HistoryCap is the number of retained history entries.
	// Default: archive.DefaultCap
	HistoryCap int

	// Retry is the orchestrator retry policy.
	Retry orchestrator.Config

	// Prompt configures the prompt builder.
	Prompt prompt.Config

	// LLM configures the OpenAI-compatible generation client.
	// SystemPrompt defaults to prompt.SystemInstruction.
	LLM llm.OpenAIConfig

	// GCS mirrors archive documents to a bucket when non-nil.
	GCS *archive.GCSConfig

	// JournalPath is the cycle journal directory. Empty disables the
	// journal.
	JournalPath string

	// Tracing selects the span exporter.
	Tracing tracing.Config
}

// DefaultPort is the HTTP port used when Config.Port is zero.
const DefaultPort = 3000

// DefaultDataDir is the data directory used when Config.DataDir is empty.
const DefaultDataDir = "data"

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = archive.DefaultCap
	}
	if cfg.LLM.SystemPrompt == "" {
		cfg.LLM.SystemPrompt = prompt.SystemInstruction
	}
	return cfg
}

// =============================================================================
// Options
// =============================================================================

type options struct {
	client   llm.GenerationClient
	registry *prometheus.Registry
	logger   *slog.Logger
	sleeper  orchestrator.Sleeper
}

// Option customizes pipeline construction.
type Option func(*options)

// WithGenerationClient replaces the OpenAI client built from Config.LLM.
func WithGenerationClient(c llm.GenerationClient) Option {
	return func(o *options) { o.client = c }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSleeper replaces the orchestrator's backoff sleep.
func WithSleeper(s orchestrator.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline holds the wired evolution components.
//
// # Thread Safety
//
// Every component is safe for concurrent use. Close must be called once.
type Pipeline struct {
	Config   Config
	Store    *store.FileStore
	Archiver *archive.Archiver
	Metrics  *observability.EvolutionMetrics
	Registry *prometheus.Registry

	// Runner is nil when no generation client is available.
	Runner *cycle.Runner

	// Journal is nil when disabled or when it could not be opened.
	Journal *journal.Journal

	logger          *slog.Logger
	gcs             *archive.GCSSink
	shutdownTracing tracing.ShutdownFunc
}

// NewPipeline builds every component described by cfg.
//
// # Description
//
// Construction order:
//  1. Tracing provider
//  2. Metrics registry with Go and process collectors
//  3. Document store and archive sinks (file always, GCS when configured)
//  4. Cycle journal, when configured. A journal that cannot be opened is
//     logged and skipped since BadgerDB holds an exclusive directory lock.
//  5. Generation client, validator, orchestrator and runner, when a
//     client is available.
//
// # Outputs
//
//   - *Pipeline: Ready pipeline. Caller must call Close.
//   - error: Non-nil if tracing, the GCS sink or the generation client
//     cannot be created.
func NewPipeline(ctx context.Context, cfg Config, opts ...Option) (*Pipeline, error) {
	cfg = applyConfigDefaults(cfg)
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{Config: cfg, logger: o.logger}

	shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	p.shutdownTracing = shutdown

	p.Registry = o.registry
	if p.Registry == nil {
		p.Registry = prometheus.NewRegistry()
		p.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	p.Metrics = observability.NewEvolutionMetrics(p.Registry)

	p.Store = store.NewFileStore(cfg.DataDir, o.logger)

	sinks := []archive.Sink{archive.NewFileSink(filepath.Join(cfg.DataDir, store.ArchiveDir))}
	if cfg.GCS != nil {
		gcs, err := archive.NewGCSSink(ctx, *cfg.GCS)
		if err != nil {
			p.Close(ctx)
			return nil, fmt.Errorf("failed to initialize GCS archive sink: %w", err)
		}
		p.gcs = gcs
		sinks = append(sinks, gcs)
		o.logger.Info("Archiving to GCS", "bucket", cfg.GCS.Bucket)
	}
	p.Archiver = archive.New(p.Store, archive.Config{Cap: cfg.HistoryCap}, sinks,
		archive.WithLogger(o.logger),
		archive.WithMetrics(p.Metrics))

	if cfg.JournalPath != "" {
		j, err := journal.Open(journal.Config{Path: cfg.JournalPath, Logger: o.logger})
		if err != nil {
			o.logger.Warn("Cycle journal unavailable, continuing without it",
				"path", cfg.JournalPath, "error", err)
		} else {
			p.Journal = j
		}
	}

	client := o.client
	if client == nil && cfg.LLM.APIKey != "" {
		cfg.LLM.Logger = o.logger
		oc, err := llm.NewOpenAIClient(cfg.LLM)
		if err != nil {
			p.Close(ctx)
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		o.logger.Info("Using OpenAI-compatible generation backend", "model", oc.Model())
		client = oc
	}
	if client != nil {
		p.Runner = p.newRunner(client, o)
	}

	return p, nil
}

func (p *Pipeline) newRunner(client llm.GenerationClient, o options) *cycle.Runner {
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(o.logger),
		orchestrator.WithMetrics(p.Metrics),
	}
	if o.sleeper != nil {
		orchOpts = append(orchOpts, orchestrator.WithSleeper(o.sleeper))
	}
	orch := orchestrator.New(client,
		prompt.NewBuilder(p.Config.Prompt),
		validation.New(validation.WithLogger(o.logger), validation.WithMetrics(p.Metrics)),
		p.Config.Retry,
		orchOpts...)

	runnerOpts := []cycle.Option{
		cycle.WithLogger(o.logger),
		cycle.WithMetrics(p.Metrics),
	}
	if p.Journal != nil {
		runnerOpts = append(runnerOpts, cycle.WithRecorder(p.Journal))
	}
	return cycle.NewRunner(p.Store, orch, p.Archiver, runnerOpts...)
}

// ErrGenerationDisabled is returned by RunCycle when no generation client
// is configured.
var ErrGenerationDisabled = errors.New("generation client is not configured")

// RunCycle runs one evolution cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (cycle.Result, error) {
	if p.Runner == nil {
		return cycle.Result{}, ErrGenerationDisabled
	}
	return p.Runner.RunCycle(ctx)
}

// Close releases the journal, the GCS client and the tracer provider.
func (p *Pipeline) Close(ctx context.Context) {
	if p.Journal != nil {
		if err := p.Journal.Close(); err != nil {
			p.logger.Warn("Cycle journal close error", "error", err)
		}
		p.Journal = nil
	}
	if p.gcs != nil {
		if err := p.gcs.Close(); err != nil {
			p.logger.Warn("GCS client close error", "error", err)
		}
		p.gcs = nil
	}
	if p.shutdownTracing != nil {
		p.shutdownTracing(ctx)
		p.shutdownTracing = nil
	}
}
