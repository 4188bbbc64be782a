// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt renders the instruction sent to the generation endpoint.
//
// The builder is a pure function of the current state and the recent
// history: identical inputs always produce an identical prompt. The numeric
// constraints it states are rendered from datatypes.CellBounds, the same
// values the response validator repairs against.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
)

// SystemInstruction is the fixed system message sent with every prompt.
const SystemInstruction = "You are an AI specialised in the evolution of lifeforms. " +
	"Describe the evolution of two knee-shaped lifeforms creatively. " +
	"Always answer with a single JSON object."

// DefaultHistoryWindow is the number of most recent history entries
// included in a prompt.
const DefaultHistoryWindow = 5

// Config tunes the prompt text.
type Config struct {
	// HistoryWindow bounds the history digest. Default: 5
	HistoryWindow int

	// Theme is the motif both lifeforms share. Default: "knee"
	Theme string

	// Language is the language requested for report text. Default: "Japanese"
	Language string
}

// Builder renders prompts.
//
// # Thread Safety
//
// Builder is immutable after construction and safe for concurrent use.
type Builder struct {
	cfg Config
}

// NewBuilder creates a Builder, filling zero-valued fields with defaults.
func NewBuilder(cfg Config) *Builder {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Theme == "" {
		cfg.Theme = "knee"
	}
	if cfg.Language == "" {
		cfg.Language = "Japanese"
	}
	return &Builder{cfg: cfg}
}

// Build renders the user prompt for the next evolution step.
//
// # Description
//
// The prompt has four parts, in order:
//  1. A digest of the last HistoryWindow history entries (omitted when the
//     history is empty).
//  2. A digest of each entity's cells and previous thought.
//  3. The JSON schema the response must follow.
//  4. The numeric and narrative constraints.
//
// # Inputs
//
//   - current: The state to evolve from.
//   - history: Full history, oldest first. Only the tail is rendered.
//
// # Outputs
//
//   - string: The prompt. Contains no timestamps or random content.
func (b *Builder) Build(current datatypes.EvolutionState, history []datatypes.HistoryEntry) string {
	var sb strings.Builder

	b.writeHistory(&sb, history)

	sb.WriteString("The current state of the two lifeforms is as follows:\n\n")
	for _, named := range current.Entities() {
		writeEntity(&sb, named.Key, named.Entity)
	}

	fmt.Fprintf(&sb, "These lifeforms are beings themed on the %s, and they evolve while influencing each other. ", b.cfg.Theme)
	fmt.Fprintf(&sb, "Evolution step: %d\n\n", len(history)+1)
	fmt.Fprintf(&sb, "Generate the next evolution step in the following JSON format, writing all report text in %s:\n\n", b.cfg.Language)
	sb.WriteString(schema)
	sb.WriteString("\n")
	b.writeConstraints(&sb)

	return sb.String()
}

// writeHistory renders the tail of the history as one line per step.
func (b *Builder) writeHistory(sb *strings.Builder, history []datatypes.HistoryEntry) {
	if len(history) == 0 {
		return
	}
	start := len(history) - b.cfg.HistoryWindow
	if start < 0 {
		start = 0
	}

	sb.WriteString("Evolution history:\n")
	for i := start; i < len(history); i++ {
		entry := history[i]
		step := entry.Step
		if step == 0 {
			step = i + 1
		}
		fmt.Fprintf(sb, "Step %d: %s / %s\n", step, entry.EntityA.Report.Reason, entry.EntityB.Report.Reason)
	}
	sb.WriteString("\n")
}

func writeEntity(sb *strings.Builder, key string, e datatypes.Entity) {
	positions := make([]string, len(e.Cells))
	hues := make([]string, len(e.Cells))
	shapes := make([]string, len(e.Cells))
	radii := make([]string, len(e.Cells))
	for i, c := range e.Cells {
		positions[i] = fmt.Sprintf("(%s, %s)", num(c.X), num(c.Y))
		hues[i] = num(c.ColorH)
		shapes[i] = num(c.ShapeFactor)
		radii[i] = num(c.Radius)
	}

	fmt.Fprintf(sb, "%s:\n", key)
	fmt.Fprintf(sb, "- Cell count: %d\n", len(e.Cells))
	fmt.Fprintf(sb, "- Positions: %s\n", strings.Join(positions, ", "))
	fmt.Fprintf(sb, "- Radii: %s\n", strings.Join(radii, ", "))
	fmt.Fprintf(sb, "- Hues: %s\n", strings.Join(hues, ", "))
	fmt.Fprintf(sb, "- Shape factors: %s\n", strings.Join(shapes, ", "))
	fmt.Fprintf(sb, "- Previous thought: %s\n\n", e.Report.Thought)
}

func (b *Builder) writeConstraints(sb *strings.Builder) {
	bounds := datatypes.CellBounds
	sb.WriteString("Constraints:\n")
	fmt.Fprintf(sb, "- x must be in the range %s-%s\n", num(bounds.X.Min), num(bounds.X.Max))
	fmt.Fprintf(sb, "- y must be in the range %s-%s\n", num(bounds.Y.Min), num(bounds.Y.Max))
	fmt.Fprintf(sb, "- radius must be in the range %s-%s\n", num(bounds.Radius.Min), num(bounds.Radius.Max))
	fmt.Fprintf(sb, "- color_h must be in the range %s-%s\n", num(bounds.ColorH.Min), num(bounds.ColorH.Max))
	fmt.Fprintf(sb, "- shapeFactor must be in the range %s-%s\n", num(bounds.ShapeFactor.Min), num(bounds.ShapeFactor.Max))
	fmt.Fprintf(sb, "- Each lifeform has %d-%d cells\n", datatypes.MinCellsPerEntity, datatypes.MaxCellsPerEntity)
	sb.WriteString("- appearance, reason and thought must all be non-empty\n")
	sb.WriteString("- The two lifeforms influence each other\n")
	sb.WriteString("- Evolution is gradual, never too dramatic\n")
	fmt.Fprintf(sb, "- Keep the %s theme while evolving creatively; later steps may drift away from it\n", b.cfg.Theme)
}

// num formats a float with the shortest exact representation.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const schema = `{
  "entityA": {
    "cells": [
      {"x": number, "y": number, "radius": number, "color_h": number, "shapeFactor": number}
    ],
    "report": {
      "appearance": "detailed description of the current appearance",
      "reason": "why this evolution happened",
      "thought": "one line expressing the lifeform's inner feelings, wrapped in 『』"
    }
  },
  "entityB": {
    "cells": [
      {"x": number, "y": number, "radius": number, "color_h": number, "shapeFactor": number}
    ],
    "report": {
      "appearance": "detailed description of the current appearance",
      "reason": "why this evolution happened",
      "thought": "one line expressing the lifeform's inner feelings, wrapped in 『』"
    }
  }
}
`
