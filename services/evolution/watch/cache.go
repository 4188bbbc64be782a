// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch keeps an in-memory snapshot of the evolution documents and
// reloads it when the files change on disk.
//
// # Description
//
// The scheduled evolve job runs in a separate process and rewrites
// current-state.json and evolution-history.json. The HTTP server serves
// reads from a Cache that watches the data directory with fsnotify and
// reloads on every write, create or rename of either document. Subscribers
// receive each new snapshot.
//
// A failed reload keeps the previous snapshot.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/AleutianAI/SeekIn/services/evolution/store"
	"github.com/fsnotify/fsnotify"
)

// Snapshot is an immutable view of the documents.
type Snapshot struct {
	// Current is nil until the first successful load.
	Current *datatypes.EvolutionState `json:"current"`

	History []datatypes.HistoryEntry `json:"history"`

	// Version increases by one on every successful reload.
	Version uint64 `json:"version"`

	LoadedAt time.Time `json:"loaded_at"`
}

// Loader reads the documents.
type Loader interface {
	LoadCurrent(ctx context.Context) (datatypes.EvolutionState, error)
	LoadHistory(ctx context.Context) ([]datatypes.HistoryEntry, error)
}

// Cache holds the latest snapshot.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	dir    string
	loader Loader
	logger *slog.Logger

	mu   sync.RWMutex
	snap Snapshot

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// New creates a cache for the documents in dir, read through loader. The
// cache is empty until Reload or Watch runs.
func New(dir string, loader Loader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		dir:    dir,
		loader: loader,
		logger: logger,
		subs:   make(map[int]chan Snapshot),
	}
}

// Snapshot returns the latest snapshot.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Reload reads both documents and publishes a new snapshot.
//
// # Outputs
//
//   - error: The load error. The previous snapshot is kept in that case.
func (c *Cache) Reload(ctx context.Context) error {
	current, err := c.loader.LoadCurrent(ctx)
	if err != nil {
		c.logger.Warn("Failed to reload current state, keeping previous snapshot", "error", err)
		return fmt.Errorf("reload current state: %w", err)
	}
	history, err := c.loader.LoadHistory(ctx)
	if err != nil {
		c.logger.Warn("Failed to reload history, keeping previous snapshot", "error", err)
		return fmt.Errorf("reload history: %w", err)
	}

	c.mu.Lock()
	c.snap = Snapshot{
		Current:  &current,
		History:  history,
		Version:  c.snap.Version + 1,
		LoadedAt: time.Now(),
	}
	snap := c.snap
	c.mu.Unlock()

	c.logger.Debug("Reloaded evolution documents", "version", snap.Version, "history_len", len(history))
	c.publish(snap)
	return nil
}

// Subscribe returns a channel receiving every new snapshot and a cancel
// function that must be called to release it. A slow subscriber only
// ever sees the most recent snapshot.
func (c *Cache) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Cache) publish(snap Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		// Replace any undelivered snapshot with the newer one.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Watch loads the documents and reloads them on change until ctx is done.
//
// # Description
//
// The data directory is watched rather than the files because atomic
// writes replace the document inode. The directory is created if needed.
//
// # Outputs
//
//   - error: Non-nil if the watcher cannot be started. Returns nil when
//     ctx is cancelled.
func (c *Cache) Watch(ctx context.Context) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}
	_ = c.Reload(ctx)

	c.logger.Info("Watching evolution documents", "dir", c.dir)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if c.relevant(event) {
				_ = c.Reload(ctx)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("File watcher error", "error", err)
		}
	}
}

// relevant reports whether event touches one of the watched documents.
func (c *Cache) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	switch filepath.Base(event.Name) {
	case store.CurrentStateFile, store.HistoryFile:
		return true
	default:
		return false
	}
}
