// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() EvolutionState {
	return EvolutionState{
		EntityA: Entity{
			Cells:  []Cell{{X: 100, Y: 120, Radius: 10, ColorH: 200, ShapeFactor: 0.5}},
			Report: Report{Appearance: "round", Reason: "first light", Thought: "『hello』"},
		},
		EntityB: Entity{
			Cells:  []Cell{{X: 300, Y: 120, Radius: 12, ColorH: 120, ShapeFactor: 0.3}},
			Report: Report{Appearance: "angular", Reason: "response", Thought: "『me too』"},
		},
	}
}

// =============================================================================
// Range Tests
// =============================================================================

func TestRange_Clamp(t *testing.T) {
	r := Range{Min: 5, Max: 15, Default: 10}

	assert.Equal(t, 5.0, r.Clamp(-3))
	assert.Equal(t, 15.0, r.Clamp(99))
	assert.Equal(t, 7.5, r.Clamp(7.5), "in-range values pass through")
	assert.Equal(t, 5.0, r.Clamp(5), "lower bound is inclusive")
	assert.Equal(t, 15.0, r.Clamp(15), "upper bound is inclusive")
}

func TestCellBounds_DefaultsAreInRange(t *testing.T) {
	for _, f := range CellFields() {
		assert.True(t, f.Range.Contains(f.Range.Default), "default of %s out of range", f.Key)
	}
}

func TestCell_SetAndInBounds(t *testing.T) {
	var c Cell
	for _, f := range CellFields() {
		c.Set(f.Key, f.Range.Default)
	}
	assert.Equal(t, Cell{X: 100, Y: 100, Radius: 10, ColorH: 180, ShapeFactor: 0.5}, c)
	assert.True(t, c.InBounds())

	c.Set("radius", 40)
	assert.False(t, c.InBounds())
}

// =============================================================================
// Report Tests
// =============================================================================

func TestReport_Validate(t *testing.T) {
	assert.NoError(t, Report{Appearance: "a", Reason: "b", Thought: "c"}.Validate())
	assert.Error(t, Report{Appearance: "a", Reason: "", Thought: "c"}.Validate())
	assert.Error(t, Report{}.Validate())
}

// =============================================================================
// HistoryEntry Tests
// =============================================================================

func TestHistoryEntry_FlattensStateInJSON(t *testing.T) {
	// Arrange
	entry := NewHistoryEntry(sampleState(), 4, 1700000000000)

	// Act
	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	// Assert
	assert.Contains(t, raw, "entityA")
	assert.Contains(t, raw, "entityB")
	assert.JSONEq(t, "1700000000000", string(raw["timestamp"]))
	assert.JSONEq(t, "5", string(raw["step"]))
	assert.NotContains(t, raw, "EvolutionState")
}

func TestNewHistoryEntry_DoesNotAliasCells(t *testing.T) {
	state := sampleState()
	entry := NewHistoryEntry(state, 0, 1)

	state.EntityA.Cells[0].X = 333

	assert.Equal(t, 100.0, entry.EntityA.Cells[0].X)
	assert.Equal(t, 1, entry.Step)
}

func TestHistoryEntry_DecodesLegacyEntryWithoutStep(t *testing.T) {
	raw := `{"entityA":{"cells":[],"report":{"appearance":"a","reason":"b","thought":"c"}},
	         "entityB":{"cells":[],"report":{"appearance":"d","reason":"e","thought":"f"}},
	         "timestamp":42}`

	var entry HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))

	assert.Equal(t, int64(42), entry.Timestamp)
	assert.Equal(t, 0, entry.Step)
	assert.Equal(t, "e", entry.EntityB.Report.Reason)
}

// =============================================================================
// Error Tests
// =============================================================================

func TestTransportError_IncludesStatus(t *testing.T) {
	err := fmt.Errorf("attempt 1: %w", &TransportError{StatusCode: 503, Err: errors.New("unavailable")})

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, 503, tErr.StatusCode)
	assert.Contains(t, err.Error(), "HTTP 503")
}

func TestPersistenceError_Unwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := &PersistenceError{Op: "write", Path: "/tmp/x.json", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/tmp/x.json")
}
