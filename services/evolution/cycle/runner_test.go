// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/archive"
	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/AleutianAI/SeekIn/services/evolution/journal"
	"github.com/AleutianAI/SeekIn/services/evolution/observability"
	"github.com/AleutianAI/SeekIn/services/evolution/store"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1700000000000)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stateWithX(x float64) datatypes.EvolutionState {
	return datatypes.EvolutionState{
		EntityA: datatypes.Entity{
			Cells:  []datatypes.Cell{{X: x, Y: 100, Radius: 10, ColorH: 180, ShapeFactor: 0.5}},
			Report: datatypes.Report{Appearance: "a", Reason: fmt.Sprintf("r%v", x), Thought: "c"},
		},
		EntityB: datatypes.Entity{
			Cells:  []datatypes.Cell{{X: 300, Y: 100, Radius: 10, ColorH: 20, ShapeFactor: 0.5}},
			Report: datatypes.Report{Appearance: "d", Reason: "e", Thought: "f"},
		},
	}
}

type fakeGenerator struct {
	next  *datatypes.EvolutionState
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, _ datatypes.EvolutionState, _ []datatypes.HistoryEntry) (*datatypes.EvolutionState, error) {
	g.calls.Add(1)
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.next, g.err
}

// cancellingGenerator cancels the caller's context right after producing
// the next state.
type cancellingGenerator struct {
	next   datatypes.EvolutionState
	cancel context.CancelFunc
}

func (g *cancellingGenerator) Generate(context.Context, datatypes.EvolutionState, []datatypes.HistoryEntry) (*datatypes.EvolutionState, error) {
	g.cancel()
	return &g.next, nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []journal.CycleRecord
}

func (m *memoryRecorder) Record(_ context.Context, rec journal.CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

type fixture struct {
	dir      string
	store    *store.FileStore
	runner   *Runner
	gen      *fakeGenerator
	recorder *memoryRecorder
	metrics  *observability.EvolutionMetrics
}

func newFixture(t *testing.T, gen *fakeGenerator) *fixture {
	t.Helper()
	dir := t.TempDir()
	st := store.NewFileStore(dir, quietLogger())
	archiver := archive.New(st, archive.Config{}, []archive.Sink{archive.NewFileSink(filepath.Join(dir, store.ArchiveDir))},
		archive.WithLogger(quietLogger()), archive.WithClock(func() time.Time { return fixedNow }))
	rec := &memoryRecorder{}
	metrics := observability.NewEvolutionMetrics(prometheus.NewRegistry())
	runner := NewRunner(st, gen, archiver,
		WithRecorder(rec),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(quietLogger()),
		WithMetrics(metrics))
	return &fixture{dir: dir, store: st, runner: runner, gen: gen, recorder: rec, metrics: metrics}
}

func (f *fixture) seed(t *testing.T, current datatypes.EvolutionState, historyLen int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SaveCurrent(ctx, current))
	history := make([]datatypes.HistoryEntry, 0, historyLen)
	for i := 0; i < historyLen; i++ {
		history = append(history, datatypes.NewHistoryEntry(stateWithX(float64(60+i)), i, int64(i)))
	}
	require.NoError(t, f.store.SaveHistory(ctx, history))
}

func TestRunCycle_AppendsSupersededState(t *testing.T) {
	next := stateWithX(222)
	f := newFixture(t, &fakeGenerator{next: &next})
	f.seed(t, stateWithX(111), 2)

	result, err := f.runner.RunCycle(context.Background())

	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.Entry.Step)
	assert.Equal(t, fixedNow.UnixMilli(), result.Entry.Timestamp)
	assert.Equal(t, 3, result.HistoryLen)
	assert.Zero(t, result.Archived)

	current, err := f.store.LoadCurrent(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(next, current); diff != "" {
		t.Errorf("current state (-want +got):\n%s", diff)
	}

	history, err := f.store.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 3)
	if diff := cmp.Diff(stateWithX(111), history[2].EvolutionState); diff != "" {
		t.Errorf("appended entry (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, history[2].Step)
}

func TestRunCycle_CancelAfterGenerationStillPersistsBoth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &cancellingGenerator{next: stateWithX(222), cancel: cancel}
	f := newFixture(t, nil)
	f.runner.gen = gen
	f.seed(t, stateWithX(111), 1)

	result, err := f.runner.RunCycle(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Entry.Step)
	current, err := f.store.LoadCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 222.0, current.EntityA.Cells[0].X)
	history, err := f.store.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 111.0, history[1].EntityA.Cells[0].X)
}

func TestRunCycle_BootstrapsFromSeed(t *testing.T) {
	next := stateWithX(150)
	f := newFixture(t, &fakeGenerator{next: &next})
	seedPath := filepath.Join(f.dir, store.InitialStateFile)
	require.NoError(t, store.WriteJSON(seedPath, stateWithX(100)))

	result, err := f.runner.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Entry.Step)
	assert.Equal(t, 100.0, result.Entry.EntityA.Cells[0].X)
}

func TestRunCycle_FailureLeavesDocumentsUntouched(t *testing.T) {
	f := newFixture(t, &fakeGenerator{err: fmt.Errorf("%w after 3 attempts: boom", datatypes.ErrRetriesExhausted)})
	f.seed(t, stateWithX(111), 4)
	currentBefore, err := os.ReadFile(f.store.CurrentPath())
	require.NoError(t, err)
	historyBefore, err := os.ReadFile(f.store.HistoryPath())
	require.NoError(t, err)

	_, err = f.runner.RunCycle(context.Background())

	assert.ErrorIs(t, err, datatypes.ErrRetriesExhausted)
	currentAfter, _ := os.ReadFile(f.store.CurrentPath())
	historyAfter, _ := os.ReadFile(f.store.HistoryPath())
	assert.Equal(t, currentBefore, currentAfter)
	assert.Equal(t, historyBefore, historyAfter)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues(observability.StatusExhausted)))
}

func TestRunCycle_NilStateIsExhausted(t *testing.T) {
	f := newFixture(t, &fakeGenerator{})
	f.seed(t, stateWithX(111), 0)

	_, err := f.runner.RunCycle(context.Background())

	assert.ErrorIs(t, err, datatypes.ErrRetriesExhausted)
}

func TestRunCycle_LoadFailureIsPersistenceError(t *testing.T) {
	next := stateWithX(222)
	f := newFixture(t, &fakeGenerator{next: &next})

	_, err := f.runner.RunCycle(context.Background())

	var pErr *datatypes.PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, int32(0), f.gen.calls.Load(), "generation must not run without a current state")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues(observability.StatusPersistenceError)))
}

func TestRunCycle_ArchivesOverflow(t *testing.T) {
	next := stateWithX(222)
	f := newFixture(t, &fakeGenerator{next: &next})
	f.seed(t, stateWithX(111), 30)

	result, err := f.runner.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Archived)
	assert.Equal(t, 30, result.HistoryLen)
	history, err := f.store.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Len(t, history, 30)
	assert.Equal(t, 2, history[0].Step)
	assert.FileExists(t, filepath.Join(f.dir, store.ArchiveDir, archive.DocumentName(fixedNow)))
}

func TestRunCycle_JournalsEveryCycle(t *testing.T) {
	next := stateWithX(222)
	gen := &fakeGenerator{next: &next}
	f := newFixture(t, gen)
	f.seed(t, stateWithX(111), 0)

	_, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	gen.next, gen.err = nil, datatypes.ErrRetriesExhausted
	_, err = f.runner.RunCycle(context.Background())
	require.Error(t, err)

	require.Len(t, f.recorder.records, 2)
	assert.Equal(t, observability.StatusSuccess, f.recorder.records[0].Status)
	assert.Equal(t, 1, f.recorder.records[0].Step)
	assert.Equal(t, observability.StatusExhausted, f.recorder.records[1].Status)
	assert.NotEmpty(t, f.recorder.records[1].Error)
	assert.NotEqual(t, f.recorder.records[0].RunID, f.recorder.records[1].RunID)
}

func TestRunCycle_ConcurrentCallsShareOneCycle(t *testing.T) {
	next := stateWithX(222)
	gen := &fakeGenerator{next: &next, gate: make(chan struct{})}
	f := newFixture(t, gen)
	f.seed(t, stateWithX(111), 0)

	const callers = 4
	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.runner.RunCycle(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	// Give the remaining callers time to join the in-flight cycle.
	time.Sleep(50 * time.Millisecond)
	close(gen.gate)
	wg.Wait()

	assert.Equal(t, int32(1), gen.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].RunID, results[i].RunID)
	}
	history, err := f.store.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRunCycle_CancelledStatus(t *testing.T) {
	gen := &fakeGenerator{gate: make(chan struct{})}
	f := newFixture(t, gen)
	f.seed(t, stateWithX(111), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner.RunCycle(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CyclesTotal.WithLabelValues(observability.StatusCancelled)))
	require.Len(t, f.recorder.records, 1, "cancelled cycles are still journaled")
}

func TestCycleStatus(t *testing.T) {
	exhausted := fmt.Errorf("%w: %w", datatypes.ErrRetriesExhausted, context.DeadlineExceeded)

	assert.Equal(t, observability.StatusSuccess, cycleStatus(nil))
	assert.Equal(t, observability.StatusExhausted, cycleStatus(exhausted))
	assert.Equal(t, observability.StatusCancelled, cycleStatus(context.Canceled))
	assert.Equal(t, observability.StatusPersistenceError, cycleStatus(&datatypes.PersistenceError{Op: "write"}))
}
