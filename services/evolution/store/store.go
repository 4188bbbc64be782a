// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists evolution documents as JSON files in a data
// directory.
//
// # Description
//
// Three documents live in the data directory:
//
//	current-state.json       the latest EvolutionState
//	initial-state.json       seed copied to current-state.json when it is absent
//	evolution-history.json   the retained HistoryEntry sequence
//
// All writes go through a temp file in the same directory followed by a
// rename, so readers never observe a partially written document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
)

// Document names inside the data directory.
const (
	CurrentStateFile = "current-state.json"
	InitialStateFile = "initial-state.json"
	HistoryFile      = "evolution-history.json"
	ArchiveDir       = "archive"
)

// Store reads and writes the evolution documents.
type Store interface {
	LoadCurrent(ctx context.Context) (datatypes.EvolutionState, error)
	LoadHistory(ctx context.Context) ([]datatypes.HistoryEntry, error)
	SaveCurrent(ctx context.Context, state datatypes.EvolutionState) error
	SaveHistory(ctx context.Context, history []datatypes.HistoryEntry) error
}

// FileStore is the filesystem Store.
//
// # Thread Safety
//
// Individual writes are atomic. Concurrent writers of the same document
// race with last-rename-wins semantics; callers serialize cycles.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: dir, logger: logger}
}

// Dir returns the data directory.
func (s *FileStore) Dir() string { return s.dir }

// CurrentPath returns the path of current-state.json.
func (s *FileStore) CurrentPath() string { return filepath.Join(s.dir, CurrentStateFile) }

// InitialPath returns the path of initial-state.json.
func (s *FileStore) InitialPath() string { return filepath.Join(s.dir, InitialStateFile) }

// HistoryPath returns the path of evolution-history.json.
func (s *FileStore) HistoryPath() string { return filepath.Join(s.dir, HistoryFile) }

// =============================================================================
// Loading
// =============================================================================

// LoadCurrent reads the current state.
//
// # Description
//
// When current-state.json does not exist, the seed document is copied
// byte-for-byte to the current slot first and then decoded.
//
// # Outputs
//
//   - datatypes.EvolutionState: The decoded state.
//   - error: *datatypes.PersistenceError when neither document can be read
//     or the content does not decode.
func (s *FileStore) LoadCurrent(ctx context.Context) (datatypes.EvolutionState, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.EvolutionState{}, err
	}

	path := s.CurrentPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = s.bootstrap()
	}
	if err != nil {
		return datatypes.EvolutionState{}, err
	}

	var state datatypes.EvolutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return datatypes.EvolutionState{}, &datatypes.PersistenceError{Op: "decode", Path: path, Err: err}
	}
	return state, nil
}

// bootstrap copies the seed into the current slot and returns its bytes.
func (s *FileStore) bootstrap() ([]byte, error) {
	seedPath := s.InitialPath()
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, &datatypes.PersistenceError{Op: "read", Path: seedPath, Err: err}
	}
	if err := WriteFileAtomic(s.CurrentPath(), data); err != nil {
		return nil, err
	}
	s.logger.Info("Bootstrapped current state from seed", "seed", seedPath)
	return data, nil
}

// LoadHistory reads the retained history. A missing document is an empty
// history.
func (s *FileStore) LoadHistory(ctx context.Context) ([]datatypes.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.HistoryPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []datatypes.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, &datatypes.PersistenceError{Op: "read", Path: path, Err: err}
	}

	history := []datatypes.HistoryEntry{}
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, &datatypes.PersistenceError{Op: "decode", Path: path, Err: err}
	}
	if history == nil {
		history = []datatypes.HistoryEntry{}
	}
	return history, nil
}

// =============================================================================
// Saving
// =============================================================================

// SaveCurrent replaces current-state.json.
func (s *FileStore) SaveCurrent(ctx context.Context, state datatypes.EvolutionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteJSON(s.CurrentPath(), state)
}

// SaveHistory replaces evolution-history.json. A nil slice is written as [].
func (s *FileStore) SaveHistory(ctx context.Context, history []datatypes.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if history == nil {
		history = []datatypes.HistoryEntry{}
	}
	return WriteJSON(s.HistoryPath(), history)
}

// WriteJSON encodes v with two-space indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &datatypes.PersistenceError{Op: "encode", Path: path, Err: err}
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file beside path, syncs it and
// renames it over path. Parent directories are created as needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &datatypes.PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return &datatypes.PersistenceError{Op: "write", Path: path, Err: err}
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return &datatypes.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return &datatypes.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := tempFile.Close(); err != nil {
		return &datatypes.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		return &datatypes.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tempPath, path); err != nil {
		return &datatypes.PersistenceError{Op: "write", Path: path, Err: err}
	}

	success = true
	return nil
}
