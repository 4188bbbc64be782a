// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation turns raw generated text into a validated
// EvolutionState.
//
// Generated text is unreliable about numeric bounds but generally reliable
// about narrative fields. Numeric cell attributes are therefore repaired
// (clamped, or defaulted when missing) while narrative report fields are
// checked strictly and reject the whole response when incomplete.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/AleutianAI/SeekIn/services/evolution/observability"
)

// Repair describes one cell attribute changed by the repair pass.
type Repair struct {
	// Path locates the cell, e.g. "entityA.cells[2]".
	Path string

	// Field is the attribute's JSON key.
	Field string

	// Original is the decoded value, nil when the field was absent. JSON
	// numbers are kept as json.Number.
	Original any

	// Repaired is the value written to the cell.
	Repaired float64
}

// Validator extracts, parses and repairs generated evolution states.
//
// # Thread Safety
//
// Validator holds no mutable state and is safe for concurrent use.
type Validator struct {
	logger  *slog.Logger
	metrics *observability.EvolutionMetrics
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used for rejection diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithMetrics records repairs on m.
func WithMetrics(m *observability.EvolutionMetrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns the validated state, or nil when the text cannot be
// turned into one.
//
// # Description
//
// Validate is the boundary used by the orchestrator. Parse and schema
// failures never escape as errors; they are logged with the reason and
// reduced to a nil result.
//
// # Inputs
//
//   - raw: Text returned by the generation endpoint.
//
// # Outputs
//
//   - *datatypes.EvolutionState: The repaired state, or nil.
func (v *Validator) Validate(raw string) *datatypes.EvolutionState {
	state, repairs, err := v.Parse(raw)
	if err != nil {
		v.logger.Warn("Rejected generated evolution state", "error", err)
		return nil
	}
	for _, r := range repairs {
		v.metrics.RecordRepair(r.Field)
		v.logger.Debug("Repaired cell attribute",
			"path", r.Path, "field", r.Field, "original", r.Original, "repaired", r.Repaired)
	}
	return &state
}

// Parse runs the full extraction and repair pipeline.
//
// # Description
//
// Steps:
//  1. Locate a JSON object: a fenced ```json block is preferred, otherwise
//     the span from the first '{' to the last '}'.
//  2. Decode it.
//  3. Require entityA and entityB.
//  4. For each entity require a non-empty cells array and repair every
//     numeric attribute of every cell.
//  5. Require report.appearance, report.reason and report.thought to be
//     present and non-empty.
//
// # Outputs
//
//   - datatypes.EvolutionState: The repaired state (zero value on error).
//   - []Repair: Every attribute the repair pass changed.
//   - error: *datatypes.ParseError for steps 1-2, *datatypes.SchemaError
//     for steps 3-5.
func (v *Validator) Parse(raw string) (datatypes.EvolutionState, []Repair, error) {
	span, ok := ExtractJSON(raw)
	if !ok {
		return datatypes.EvolutionState{}, nil, &datatypes.ParseError{Reason: "no JSON object found"}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &doc); err != nil {
		return datatypes.EvolutionState{}, nil, &datatypes.ParseError{Reason: "malformed JSON", Err: err}
	}

	for _, key := range []string{datatypes.EntityAKey, datatypes.EntityBKey} {
		if isAbsent(doc[key]) {
			return datatypes.EvolutionState{}, nil, &datatypes.SchemaError{Path: key, Reason: "missing"}
		}
	}

	var repairs []Repair
	entityA, err := parseEntity(datatypes.EntityAKey, doc[datatypes.EntityAKey], &repairs)
	if err != nil {
		return datatypes.EvolutionState{}, nil, err
	}
	entityB, err := parseEntity(datatypes.EntityBKey, doc[datatypes.EntityBKey], &repairs)
	if err != nil {
		return datatypes.EvolutionState{}, nil, err
	}

	return datatypes.EvolutionState{EntityA: entityA, EntityB: entityB}, repairs, nil
}

// ExtractJSON locates the JSON object in generated text.
//
// # Description
//
// A fenced ```json block wins over any bare object elsewhere in the text.
// Without a fence, the span from the first '{' to the last '}' is taken.
//
// # Outputs
//
//   - string: The candidate JSON text.
//   - bool: false when neither pattern matches.
func ExtractJSON(text string) (string, bool) {
	const fence = "```json"
	if start := strings.Index(text, fence); start != -1 {
		rest := text[start+len(fence):]
		// The block body begins on the line after the fence marker.
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			body := rest[nl+1:]
			if end := strings.Index(body, "```"); end != -1 {
				return strings.TrimSpace(body[:end]), true
			}
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1], true
	}
	return "", false
}

// =============================================================================
// Entity Parsing
// =============================================================================

type rawEntity struct {
	Cells  json.RawMessage `json:"cells"`
	Report json.RawMessage `json:"report"`
}

func parseEntity(key string, raw json.RawMessage, repairs *[]Repair) (datatypes.Entity, error) {
	var re rawEntity
	if err := json.Unmarshal(raw, &re); err != nil {
		return datatypes.Entity{}, &datatypes.SchemaError{Path: key, Reason: "not an object"}
	}

	var rawCells []json.RawMessage
	if isAbsent(re.Cells) || json.Unmarshal(re.Cells, &rawCells) != nil || len(rawCells) == 0 {
		return datatypes.Entity{}, &datatypes.SchemaError{Path: key + ".cells", Reason: "must be a non-empty array"}
	}

	cells := make([]datatypes.Cell, len(rawCells))
	for i, rc := range rawCells {
		path := fmt.Sprintf("%s.cells[%d]", key, i)
		fields, err := decodeCell(rc)
		if err != nil {
			return datatypes.Entity{}, &datatypes.SchemaError{Path: path, Reason: "not an object"}
		}
		cells[i] = repairCell(path, fields, repairs)
	}

	report, err := parseReport(key, re.Report)
	if err != nil {
		return datatypes.Entity{}, err
	}

	return datatypes.Entity{Cells: cells, Report: report}, nil
}

// decodeCell decodes one cell object keeping numbers as json.Number, so
// values beyond float64 range reach the repair pass instead of failing the
// decode.
func decodeCell(raw json.RawMessage) (map[string]any, error) {
	if isAbsent(raw) {
		return nil, errors.New("absent")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// repairCell builds a cell from decoded fields, defaulting missing or
// non-numeric attributes and clamping out-of-range ones.
func repairCell(path string, fields map[string]any, repairs *[]Repair) datatypes.Cell {
	var cell datatypes.Cell
	for _, f := range datatypes.CellFields() {
		original, present := fields[f.Key]
		value, ok := toNumber(original)
		repaired := f.Range.Default
		if present && ok {
			repaired = f.Range.Clamp(value)
		}
		_, isNumber := original.(json.Number)
		if !isNumber || repaired != value {
			*repairs = append(*repairs, Repair{Path: path, Field: f.Key, Original: original, Repaired: repaired})
		}
		cell.Set(f.Key, repaired)
	}
	return cell
}

// toNumber accepts JSON numbers and strings holding a decimal number.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		return parseDecimal(n.String())
	case string:
		return parseDecimal(strings.TrimSpace(n))
	default:
		return 0, false
	}
}

// parseDecimal parses a decimal literal. Magnitudes beyond float64 come back
// as ±Inf so the caller clamps them to the nearest bound. NaN and the
// literal infinities are rejected.
func parseDecimal(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	switch {
	case err == nil:
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case errors.Is(err, strconv.ErrRange):
		return f, true
	default:
		return 0, false
	}
}

func parseReport(key string, raw json.RawMessage) (datatypes.Report, error) {
	path := key + ".report"
	if isAbsent(raw) {
		return datatypes.Report{}, &datatypes.SchemaError{Path: path, Reason: "missing"}
	}
	var report datatypes.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return datatypes.Report{}, &datatypes.SchemaError{Path: path, Reason: "fields must be strings"}
	}
	if err := report.Validate(); err != nil {
		return datatypes.Report{}, &datatypes.SchemaError{Path: path, Reason: err.Error()}
	}
	return report, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
