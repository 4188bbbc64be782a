// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/AleutianAI/SeekIn/services/evolution/handlers"
	"github.com/AleutianAI/SeekIn/services/evolution/middleware"
	"github.com/AleutianAI/SeekIn/services/evolution/watch"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies are the components behind the HTTP surface. Runner and
// Journal are optional; their routes are only registered when set.
type Dependencies struct {
	Cache    *watch.Cache
	Archiver handlers.HistoryArchiver
	Runner   handlers.CycleRunner
	Journal  handlers.CycleLister
	Gatherer prometheus.Gatherer

	// WriteToken guards the POST routes with a bearer token. Empty leaves
	// them open.
	WriteToken string

	// StaticDir is served for every unmatched GET. Empty disables it.
	StaticDir string
}

// SetupRoutes registers every route on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", handlers.HealthCheck)
	if deps.Gatherer != nil {
		router.GET("/metrics", handlers.Metrics(deps.Gatherer))
	}

	api := router.Group("/api")
	{
		api.GET("/state", handlers.GetState(deps.Cache))
		api.GET("/history", handlers.GetHistory(deps.Cache))
		api.GET("/stream", handlers.StreamState(deps.Cache))
		if deps.Journal != nil {
			api.GET("/cycles", handlers.ListCycles(deps.Journal))
		}

		write := api.Group("", middleware.RequireToken(deps.WriteToken))
		write.POST("/archive-history", handlers.ArchiveHistory(deps.Archiver))
		write.POST("/save-history", handlers.SaveHistory(deps.Archiver, deps.Cache))
		if deps.Runner != nil {
			write.POST("/evolve", handlers.Evolve(deps.Runner, deps.Cache))
		}
	}

	if deps.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(deps.StaticDir))
		router.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			fileServer.ServeHTTP(c.Writer, c.Request)
		})
	}
}
