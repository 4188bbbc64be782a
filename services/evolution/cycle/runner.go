// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cycle runs complete evolution cycles against the stored
// documents.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/AleutianAI/SeekIn/services/evolution/journal"
	"github.com/AleutianAI/SeekIn/services/evolution/observability"
	"github.com/AleutianAI/SeekIn/services/evolution/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("seekin.cycle")

// persistTimeout bounds the write phase of a cycle, which no longer follows
// the caller's cancellation.
const persistTimeout = 30 * time.Second

// =============================================================================
// Collaborators
// =============================================================================

// Generator produces the next state from the current one.
type Generator interface {
	Generate(ctx context.Context, current datatypes.EvolutionState, history []datatypes.HistoryEntry) (*datatypes.EvolutionState, error)
}

// HistorySaver persists history, applying the retention cap.
type HistorySaver interface {
	Save(ctx context.Context, history []datatypes.HistoryEntry) error
	Cap() int
}

// CycleRecorder receives one record per finished cycle.
type CycleRecorder interface {
	Record(ctx context.Context, rec journal.CycleRecord) error
}

// =============================================================================
// Runner
// =============================================================================

// Result describes a successful cycle.
type Result struct {
	RunID string `json:"run_id"`

	// State is the new current state.
	State datatypes.EvolutionState `json:"state"`

	// Entry is the history entry appended for the superseded state.
	Entry datatypes.HistoryEntry `json:"entry"`

	// HistoryLen is the retained history length after the save.
	HistoryLen int `json:"history_len"`

	// Archived is the number of entries moved to the archive.
	Archived int `json:"archived"`
}

// Runner executes complete evolution cycles: load, generate, append and
// persist.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent RunCycle calls share a single
// in-flight cycle.
type Runner struct {
	store    store.Store
	gen      Generator
	history  HistorySaver
	recorder CycleRecorder
	now      func() time.Time
	logger   *slog.Logger
	metrics  *observability.EvolutionMetrics
	group    singleflight.Group
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder journals every finished cycle to rec.
func WithRecorder(rec CycleRecorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithClock overrides time.Now for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records cycle outcomes on m.
func WithMetrics(m *observability.EvolutionMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner.
func NewRunner(st store.Store, gen Generator, history HistorySaver, opts ...Option) *Runner {
	r := &Runner{
		store:   st,
		gen:     gen,
		history: history,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCycle performs one evolution cycle.
//
// # Description
//
// Steps:
//  1. Load the current state (bootstrapping it from the seed) and the
//     history. Load failures end the cycle.
//  2. Generate the next state.
//  3. Append the superseded state as a HistoryEntry with
//     step = len(history)+1 and the current time.
//  4. Save the new current state, then save the history through the
//     archiver.
//
// No document is written before step 4, so a failed generation leaves the
// documents exactly as they were.
//
// Concurrent callers are coalesced: while a cycle is running, further
// calls wait for it and receive its result. The cycle runs under the
// context of the caller that started it.
//
// # Outputs
//
//   - Result: The outcome of the successful cycle.
//   - error: datatypes.ErrRetriesExhausted from generation, a
//     *datatypes.PersistenceError from the store, or the context error.
func (r *Runner) RunCycle(ctx context.Context) (Result, error) {
	v, err, shared := r.group.Do("cycle", func() (interface{}, error) {
		return r.run(ctx)
	})
	if shared {
		r.logger.Debug("Joined in-flight evolution cycle")
	}
	result, _ := v.(Result)
	return result, err
}

func (r *Runner) run(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)
	ctx, span := tracer.Start(ctx, "evolution.cycle")
	span.SetAttributes(attribute.String("evolution.run_id", runID))
	defer span.End()

	started := r.now()
	rec := journal.CycleRecord{RunID: runID, StartedAt: started}
	logger.Info("Starting evolution cycle")

	result, err := r.cycle(ctx, runID, logger)

	status := cycleStatus(err)
	r.metrics.RecordCycle(status)
	rec.FinishedAt = r.now()
	rec.Status = status
	if err != nil {
		rec.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		logger.Error("Evolution cycle failed", "status", status, "error", err)
	} else {
		rec.Step = result.Entry.Step
		rec.Archived = result.Archived
		logger.Info("Evolution cycle complete",
			"step", result.Entry.Step,
			"history_len", result.HistoryLen,
			"archived", result.Archived,
			"duration", rec.Duration())
	}
	r.record(ctx, rec, logger)
	return result, err
}

func (r *Runner) cycle(ctx context.Context, runID string, logger *slog.Logger) (Result, error) {
	current, err := r.store.LoadCurrent(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load current state: %w", err)
	}
	history, err := r.store.LoadHistory(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}
	logger.Debug("Loaded evolution documents", "history_len", len(history))

	next, err := r.gen.Generate(ctx, current, history)
	if err != nil {
		return Result{}, err
	}
	if next == nil {
		return Result{}, datatypes.ErrRetriesExhausted
	}

	entry := datatypes.NewHistoryEntry(current, len(history), r.now().UnixMilli())
	updated := make([]datatypes.HistoryEntry, 0, len(history)+1)
	updated = append(updated, history...)
	updated = append(updated, entry)

	// Once a state is generated, current and history are written together
	// even if the caller goes away between the two writes.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.store.SaveCurrent(persistCtx, *next); err != nil {
		return Result{}, fmt.Errorf("save current state: %w", err)
	}
	if err := r.history.Save(persistCtx, updated); err != nil {
		logger.Error("Current state saved but history save failed", "error", err)
		return Result{}, fmt.Errorf("save history: %w", err)
	}

	archived := len(updated) - r.history.Cap()
	if archived < 0 {
		archived = 0
	}
	return Result{
		RunID:      runID,
		State:      *next,
		Entry:      entry,
		HistoryLen: len(updated) - archived,
		Archived:   archived,
	}, nil
}

func (r *Runner) record(ctx context.Context, rec journal.CycleRecord, logger *slog.Logger) {
	if r.recorder == nil {
		return
	}
	// The cycle's own context may already be cancelled.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.recorder.Record(recordCtx, rec); err != nil {
		logger.Warn("Failed to journal evolution cycle", "error", err)
	}
}

// cycleStatus maps a cycle error to its metrics status label.
func cycleStatus(err error) string {
	switch {
	case err == nil:
		return observability.StatusSuccess
	// Checked first: the last attempt's cause may be a request timeout.
	case errors.Is(err, datatypes.ErrRetriesExhausted):
		return observability.StatusExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observability.StatusCancelled
	default:
		return observability.StatusPersistenceError
	}
}
