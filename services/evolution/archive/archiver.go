// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive bounds the retained history and moves overflow entries
// to archive sinks.
//
// # Description
//
// The retained history holds at most Cap entries (default 30). When a save
// would exceed the cap, the oldest entries are written as one archive
// document to every sink first, and the newest Cap entries are then saved
// through the store whether or not any sink succeeded.
//
// # Limitations
//
//   - The policy is not transactional. If every sink fails, the overflow
//     entries are dropped from the retained history anyway. Failures are
//     logged and counted in seekin_evolution_archive_failures_total.
//   - Archive documents are named by the current Unix millisecond; two
//     archives written in the same millisecond overwrite each other.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/AleutianAI/SeekIn/services/evolution/observability"
	"github.com/AleutianAI/SeekIn/services/evolution/store"
)

// DefaultCap is the default number of retained history entries.
const DefaultCap = 30

// DocumentName returns the archive document name for t:
// evolution-history-<unix-ms>.json.
func DocumentName(t time.Time) string {
	return fmt.Sprintf("evolution-history-%d.json", t.UnixMilli())
}

// Sink is an archive destination.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write stores data under the document name.
	Write(ctx context.Context, name string, data []byte) error
}

// HistoryStore is the part of the store the archiver saves through.
type HistoryStore interface {
	SaveHistory(ctx context.Context, history []datatypes.HistoryEntry) error
}

var _ HistoryStore = (*store.FileStore)(nil)

// Config configures an Archiver.
type Config struct {
	// Cap is the maximum retained history length. Default: 30
	Cap int
}

// Archiver applies the retention cap.
//
// # Thread Safety
//
// Safe for concurrent use; saves are not serialized against each other.
type Archiver struct {
	store   HistoryStore
	sinks   []Sink
	cap     int
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.EvolutionMetrics
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock overrides time.Now for document naming.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) { a.logger = l }
}

// WithMetrics records archived entries and sink failures on m.
func WithMetrics(m *observability.EvolutionMetrics) Option {
	return func(a *Archiver) { a.metrics = m }
}

// New creates an Archiver saving through st and archiving to sinks.
func New(st HistoryStore, cfg Config, sinks []Sink, opts ...Option) *Archiver {
	if cfg.Cap <= 0 {
		cfg.Cap = DefaultCap
	}
	a := &Archiver{
		store:  st,
		sinks:  sinks,
		cap:    cfg.Cap,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Cap returns the retention cap.
func (a *Archiver) Cap() int { return a.cap }

// Save persists history, archiving any overflow first.
//
// # Description
//
// With len(history) > Cap, history[:len-Cap] is archived and
// history[len-Cap:] is saved. Archive failures never prevent the save and
// are not returned.
//
// # Outputs
//
//   - error: The store's error when saving the retained entries fails.
func (a *Archiver) Save(ctx context.Context, history []datatypes.HistoryEntry) error {
	kept := history
	if overflow := len(history) - a.cap; overflow > 0 {
		if err := a.Archive(ctx, history[:overflow]); err != nil {
			a.logger.Error("Failed to archive history overflow, saving retained entries anyway",
				"overflow", overflow, "error", err)
		}
		kept = history[overflow:]
	}
	if err := a.store.SaveHistory(ctx, kept); err != nil {
		return fmt.Errorf("save retained history: %w", err)
	}
	return nil
}

// Archive writes entries as one archive document to every sink.
//
// # Outputs
//
//   - error: The joined errors of every failing sink, nil if all succeeded.
func (a *Archiver) Archive(ctx context.Context, entries []datatypes.HistoryEntry) error {
	if entries == nil {
		entries = []datatypes.HistoryEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	name := DocumentName(a.now())

	var errs []error
	succeeded := 0
	for _, sink := range a.sinks {
		if err := sink.Write(ctx, name, data); err != nil {
			a.metrics.RecordArchiveFailure(sink.Name())
			a.logger.Error("Archive sink write failed", "sink", sink.Name(), "document", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		succeeded++
		a.logger.Info("History archived", "sink", sink.Name(), "document", name, "entries", len(entries))
	}
	if succeeded > 0 {
		a.metrics.RecordArchived(len(entries))
	}
	if len(a.sinks) == 0 {
		return errors.New("no archive sinks configured")
	}
	return errors.Join(errs...)
}
