// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal keeps an audit log of evolution cycles in BadgerDB.
//
// Each cycle, successful or not, is stored as one CycleRecord keyed by its
// start time, so the most recent cycles are read with a reverse prefix
// scan. Records expire after Retention.
//
// The journal is auxiliary: callers treat open and write failures as
// warnings and never fail a cycle because of it. BadgerDB holds an
// exclusive directory lock, so only one process can have the journal open
// at a time.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultRetention is how long cycle records are kept.
const DefaultRetention = 30 * 24 * time.Hour

const keyPrefix = "cycle/"

// CycleRecord describes one completed cycle.
type CycleRecord struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Status is one of the observability cycle statuses.
	Status string `json:"status"`

	// Step is the history step appended by the cycle, 0 on failure.
	Step int `json:"step,omitempty"`

	// Archived is the number of entries moved to the archive.
	Archived int    `json:"archived,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Duration returns FinishedAt - StartedAt.
func (r CycleRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Config holds configuration for a journal.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory keeps the journal in memory only. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Retention is the record TTL. Default: DefaultRetention
	Retention time.Duration

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// Journal is a BadgerDB-backed cycle log.
//
// # Thread Safety
//
// Safe for concurrent use.
type Journal struct {
	db        *badger.DB
	retention time.Duration
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the journal described by cfg.
//
// # Outputs
//
//   - *Journal: The opened journal. Caller must call Close().
//   - error: Non-nil if the path is missing or the database is locked or
//     corrupt.
func Open(cfg Config) (*Journal, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent journal")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db, retention: cfg.Retention}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// recordKey orders records by start time; the run ID breaks ties.
func recordKey(r CycleRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", keyPrefix, r.StartedAt.UnixNano(), r.RunID))
}

// Record stores rec.
func (j *Journal) Record(ctx context.Context, rec CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cycle record: %w", err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(recordKey(rec), value).WithTTL(j.retention))
	})
}

// Recent returns up to limit records, newest first. limit <= 0 returns
// every retained record.
func (j *Journal) Recent(ctx context.Context, limit int) ([]CycleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []CycleRecord
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from the largest key under the prefix.
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			var rec CycleRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode cycle record %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
