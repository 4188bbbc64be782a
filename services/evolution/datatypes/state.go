// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data model shared by every stage of the
// evolution pipeline.
//
// The pipeline tracks two paired entities ("entityA" and "entityB") that
// evolve in lockstep. Each generation cycle produces a new EvolutionState;
// the superseded state is kept as an immutable HistoryEntry.
//
// The JSON field names match the documents the browser collaborator reads
// (current-state.json, evolution-history.json), so renaming a tag is a
// wire-format change.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// stateValidate is the validator instance for evolution datatypes.
var stateValidate = validator.New()

// =============================================================================
// Core Types
// =============================================================================

// Cell is one visual primitive of an entity.
//
// # Description
//
// Cells are drawn by the presentation layer as ellipses centered on (X, Y).
// Numeric ranges are defined by the Bounds constants in bounds.go. Values
// coming from the generation endpoint are repaired into range by the
// response validator rather than rejected.
type Cell struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Radius      float64 `json:"radius"`
	ColorH      float64 `json:"color_h"`
	ShapeFactor float64 `json:"shapeFactor"`
}

// Report is the narrative attached to an entity.
//
// # Description
//
// All three fields are required and must be non-empty. Unlike cell
// attributes, reports are never repaired: a response with an incomplete
// report is rejected as a whole.
type Report struct {
	Appearance string `json:"appearance" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
	Thought    string `json:"thought" validate:"required"`
}

// Validate checks that every narrative field is present and non-empty.
//
// # Outputs
//
//   - error: validator.ValidationErrors naming the missing fields, or nil.
func (r Report) Validate() error {
	return stateValidate.Struct(r)
}

// Entity is one of the two evolving subjects.
type Entity struct {
	Cells  []Cell `json:"cells"`
	Report Report `json:"report"`
}

// EvolutionState is the atomic unit persisted as the current state.
//
// # Description
//
// Both entities are always replaced together; there is no partial update.
type EvolutionState struct {
	EntityA Entity `json:"entityA"`
	EntityB Entity `json:"entityB"`
}

// Entities returns the two entities paired with their document keys, in
// the fixed order entityA, entityB.
func (s EvolutionState) Entities() []NamedEntity {
	return []NamedEntity{
		{Key: EntityAKey, Entity: s.EntityA},
		{Key: EntityBKey, Entity: s.EntityB},
	}
}

// NamedEntity pairs an entity with its document key.
type NamedEntity struct {
	Key    string
	Entity Entity
}

// Document keys of the two entities.
const (
	EntityAKey = "entityA"
	EntityBKey = "entityB"
)

// HistoryEntry is an immutable snapshot of a superseded current state.
//
// # Description
//
// The state fields are flattened into the entry so that a history document
// reads as a list of states annotated with timestamp and step, which is the
// layout the browser collaborator consumes.
//
// # Fields
//
//   - Timestamp: Unix milliseconds at which the state was superseded.
//   - Step: 1-based position of the entry when it was appended. Entries
//     written by older browser builds may carry 0.
type HistoryEntry struct {
	EvolutionState
	Timestamp int64 `json:"timestamp"`
	Step      int   `json:"step,omitempty"`
}

// NewHistoryEntry snapshots state as the entry following history.
//
// # Inputs
//
//   - state: The state being superseded.
//   - historyLen: Length of the history before the append.
//   - timestampMs: Unix milliseconds of the supersession.
//
// # Outputs
//
//   - HistoryEntry: Entry with Step = historyLen + 1.
func NewHistoryEntry(state EvolutionState, historyLen int, timestampMs int64) HistoryEntry {
	return HistoryEntry{
		EvolutionState: state.Clone(),
		Timestamp:      timestampMs,
		Step:           historyLen + 1,
	}
}

// Clone returns a deep copy of the state so snapshots never share cell
// slices with the live state.
func (s EvolutionState) Clone() EvolutionState {
	return EvolutionState{
		EntityA: s.EntityA.clone(),
		EntityB: s.EntityB.clone(),
	}
}

func (e Entity) clone() Entity {
	out := Entity{Report: e.Report}
	if e.Cells != nil {
		out.Cells = make([]Cell, len(e.Cells))
		copy(out.Cells, e.Cells)
	}
	return out
}
