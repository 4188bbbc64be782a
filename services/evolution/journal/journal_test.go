// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func record(i int, status string) CycleRecord {
	start := time.Unix(1700000000, 0).Add(time.Duration(i) * time.Minute)
	return CycleRecord{
		RunID:      fmt.Sprintf("run-%d", i),
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Status:     status,
		Step:       i,
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})

	assert.Error(t, err)
}

func TestRecent_NewestFirst(t *testing.T) {
	j := openInMemory(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, j.Record(ctx, record(i, "success")))
	}

	recs, err := j.Recent(ctx, 3)

	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"run-5", "run-4", "run-3"}, []string{recs[0].RunID, recs[1].RunID, recs[2].RunID})
	assert.Equal(t, 3*time.Second, recs[0].Duration())
}

func TestRecent_NoLimitReturnsAll(t *testing.T) {
	j := openInMemory(t)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, record(1, "success")))
	failed := record(2, "exhausted")
	failed.Step = 0
	failed.Error = "evolution retries exhausted"
	require.NoError(t, j.Record(ctx, failed))

	recs, err := j.Recent(ctx, 0)

	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "exhausted", recs[0].Status)
	assert.Equal(t, "evolution retries exhausted", recs[0].Error)
}

func TestRecent_Empty(t *testing.T) {
	recs, err := openInMemory(t).Recent(context.Background(), 10)

	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestJournal_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	j, err := Open(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), record(1, "success")))
	require.NoError(t, j.Close())

	reopened, err := Open(Config{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	recs, err := reopened.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "run-1", recs[0].RunID)
}

func TestRecord_CancelledContext(t *testing.T) {
	j := openInMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, j.Record(ctx, record(1, "success")), context.Canceled)
}
