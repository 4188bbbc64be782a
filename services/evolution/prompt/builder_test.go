// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/stretchr/testify/assert"
)

func testState() datatypes.EvolutionState {
	return datatypes.EvolutionState{
		EntityA: datatypes.Entity{
			Cells: []datatypes.Cell{
				{X: 100, Y: 120, Radius: 10, ColorH: 200, ShapeFactor: 0.5},
				{X: 110, Y: 130, Radius: 9, ColorH: 210, ShapeFactor: 0.25},
			},
			Report: datatypes.Report{Appearance: "round", Reason: "birth", Thought: "『where am I』"},
		},
		EntityB: datatypes.Entity{
			Cells:  []datatypes.Cell{{X: 300, Y: 120, Radius: 12, ColorH: 120, ShapeFactor: 0.3}},
			Report: datatypes.Report{Appearance: "sharp", Reason: "birth", Thought: "『someone is there』"},
		},
	}
}

func testHistory(n int) []datatypes.HistoryEntry {
	history := make([]datatypes.HistoryEntry, 0, n)
	for i := 0; i < n; i++ {
		s := testState()
		s.EntityA.Report.Reason = fmt.Sprintf("reasonA-%d", i+1)
		s.EntityB.Report.Reason = fmt.Sprintf("reasonB-%d", i+1)
		history = append(history, datatypes.NewHistoryEntry(s, i, int64(1000+i)))
	}
	return history
}

func TestBuild_IsDeterministic(t *testing.T) {
	b := NewBuilder(Config{})
	history := testHistory(3)

	first := b.Build(testState(), history)
	second := b.Build(testState(), history)

	assert.Equal(t, first, second)
}

func TestBuild_EmptyHistoryOmitsDigest(t *testing.T) {
	p := NewBuilder(Config{}).Build(testState(), nil)

	assert.NotContains(t, p, "Evolution history:")
	assert.Contains(t, p, "Evolution step: 1")
}

func TestBuild_RendersEntityDigest(t *testing.T) {
	p := NewBuilder(Config{}).Build(testState(), nil)

	assert.Contains(t, p, "entityA:\n- Cell count: 2\n")
	assert.Contains(t, p, "- Positions: (100, 120), (110, 130)")
	assert.Contains(t, p, "- Hues: 200, 210")
	assert.Contains(t, p, "- Shape factors: 0.5, 0.25")
	assert.Contains(t, p, "- Previous thought: 『where am I』")
	assert.Contains(t, p, "entityB:\n- Cell count: 1\n")
	assert.Contains(t, p, "- Previous thought: 『someone is there』")
}

func TestBuild_HistoryWindowKeepsLastFive(t *testing.T) {
	p := NewBuilder(Config{}).Build(testState(), testHistory(8))

	for i := 1; i <= 3; i++ {
		assert.NotContains(t, p, fmt.Sprintf("reasonA-%d ", i))
	}
	for i := 4; i <= 8; i++ {
		assert.Contains(t, p, fmt.Sprintf("Step %d: reasonA-%d / reasonB-%d", i, i, i))
	}
	assert.Contains(t, p, "Evolution step: 9")

	// Oldest first.
	assert.Less(t, strings.Index(p, "Step 4:"), strings.Index(p, "Step 8:"))
}

func TestBuild_LegacyEntriesNumberedByPosition(t *testing.T) {
	history := testHistory(2)
	history[0].Step = 0
	history[1].Step = 0

	p := NewBuilder(Config{}).Build(testState(), history)

	assert.Contains(t, p, "Step 1: reasonA-1 / reasonB-1")
	assert.Contains(t, p, "Step 2: reasonA-2 / reasonB-2")
}

func TestBuild_ConstraintsMirrorCellBounds(t *testing.T) {
	p := NewBuilder(Config{}).Build(testState(), nil)

	assert.Contains(t, p, "- x must be in the range 50-350")
	assert.Contains(t, p, "- y must be in the range 50-350")
	assert.Contains(t, p, "- radius must be in the range 5-15")
	assert.Contains(t, p, "- color_h must be in the range 0-360")
	assert.Contains(t, p, "- shapeFactor must be in the range 0-1")
	assert.Contains(t, p, `"shapeFactor": number`)
}

func TestBuild_CustomThemeAndLanguage(t *testing.T) {
	p := NewBuilder(Config{Theme: "elbow", Language: "English", HistoryWindow: 2}).
		Build(testState(), testHistory(4))

	assert.Contains(t, p, "themed on the elbow")
	assert.Contains(t, p, "writing all report text in English")
	assert.NotContains(t, p, "Step 2:")
	assert.Contains(t, p, "Step 3:")
}
