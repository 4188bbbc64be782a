// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/cycle"
	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/AleutianAI/SeekIn/services/evolution/journal"
	"github.com/AleutianAI/SeekIn/services/evolution/watch"
	"github.com/gin-gonic/gin"
)

// =============================================================================
// Dependencies
// =============================================================================

// StateSource exposes the cached documents.
type StateSource interface {
	Snapshot() watch.Snapshot
}

// Refresher reloads the cached documents after a write.
type Refresher interface {
	Reload(ctx context.Context) error
}

// HistoryArchiver is the archive surface used by the persistence endpoints.
type HistoryArchiver interface {
	Archive(ctx context.Context, entries []datatypes.HistoryEntry) error
	Save(ctx context.Context, history []datatypes.HistoryEntry) error
}

// CycleRunner runs one evolution cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (cycle.Result, error)
}

// CycleLister lists journaled cycles, newest first.
type CycleLister interface {
	Recent(ctx context.Context, limit int) ([]journal.CycleRecord, error)
}

// =============================================================================
// Read Endpoints
// =============================================================================

// GetState returns the cached current state, or 404 before the first load.
func GetState(src StateSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := src.Snapshot()
		if snap.Current == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Current state not loaded"})
			return
		}
		c.JSON(http.StatusOK, snap.Current)
	}
}

// GetHistory returns the cached retained history, or 404 before the first
// load.
func GetHistory(src StateSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := src.Snapshot()
		if snap.Current == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "History not loaded"})
			return
		}
		history := snap.History
		if history == nil {
			history = []datatypes.HistoryEntry{}
		}
		c.JSON(http.StatusOK, history)
	}
}

// ListCycles returns recent journaled cycles. Query: limit (default 20).
func ListCycles(lister CycleLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}
		records, err := lister.Recent(c.Request.Context(), limit)
		if err != nil {
			slog.Error("Failed to read cycle journal", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read cycle journal"})
			return
		}
		if records == nil {
			records = []journal.CycleRecord{}
		}
		c.JSON(http.StatusOK, records)
	}
}

// =============================================================================
// Write Endpoints
// =============================================================================

// ArchiveHistory writes the posted entries as one archive document.
func ArchiveHistory(archiver HistoryArchiver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var entries []datatypes.HistoryEntry
		if err := c.ShouldBindJSON(&entries); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if err := archiver.Archive(c.Request.Context(), entries); err != nil {
			slog.Error("Failed to archive history", "entries", len(entries), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "History archived successfully"})
	}
}

// SaveHistory saves the posted history through the archiver, which
// archives any overflow beyond the retention cap first.
func SaveHistory(archiver HistoryArchiver, refresher Refresher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var history []datatypes.HistoryEntry
		if err := c.ShouldBindJSON(&history); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if err := archiver.Save(c.Request.Context(), history); err != nil {
			slog.Error("Failed to save history", "entries", len(history), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save history"})
			return
		}
		refresh(c.Request.Context(), refresher)
		c.JSON(http.StatusOK, gin.H{"message": "History saved successfully"})
	}
}

// EvolveTimeout bounds a cycle started by POST /api/evolve. It covers the
// default retry policy with every request running to its own timeout.
const EvolveTimeout = 5 * time.Minute

// Evolve runs one cycle and returns its result.
//
// # Outputs
//
//   - 200: cycle.Result
//   - 502: every generation attempt failed
//   - 500: the documents could not be read or written
func Evolve(runner CycleRunner, refresher Refresher) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Detached so a disconnecting client does not abort a cycle other
		// callers may have joined.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), EvolveTimeout)
		defer cancel()
		result, err := runner.RunCycle(ctx)
		switch {
		case err == nil:
			refresh(ctx, refresher)
			c.JSON(http.StatusOK, result)
		case errors.Is(err, datatypes.ErrRetriesExhausted):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Evolution failed after retries"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run evolution cycle"})
		}
	}
}

func refresh(ctx context.Context, refresher Refresher) {
	if refresher == nil {
		return
	}
	if err := refresher.Reload(ctx); err != nil {
		slog.Warn("Failed to refresh cached documents", "error", err)
	}
}
