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

// =============================================================================
// Cell Bounds
// =============================================================================

// Range is an inclusive numeric interval with a repair default.
//
// # Description
//
// Default is the value substituted when a field is missing or is not a
// number. It lies inside [Min, Max].
type Range struct {
	Min     float64
	Max     float64
	Default float64
}

// Clamp returns v limited to [Min, Max]. Values already in range are
// returned unchanged.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies in [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// CellBounds lists the valid range of every cell attribute.
//
// The prompt builder renders its numeric constraints from these values and
// the response validator repairs against them, so the two cannot drift.
var CellBounds = struct {
	X           Range
	Y           Range
	Radius      Range
	ColorH      Range
	ShapeFactor Range
}{
	X:           Range{Min: 50, Max: 350, Default: 100},
	Y:           Range{Min: 50, Max: 350, Default: 100},
	Radius:      Range{Min: 5, Max: 15, Default: 10},
	ColorH:      Range{Min: 0, Max: 360, Default: 180},
	ShapeFactor: Range{Min: 0, Max: 1, Default: 0.5},
}

// Suggested cell count per entity. Rendered into the prompt only; the
// validator accepts any non-empty cell list.
const (
	MinCellsPerEntity = 1
	MaxCellsPerEntity = 8
)

// CellField names a numeric cell attribute by its JSON key.
type CellField struct {
	Key   string
	Range Range
}

// CellFields returns the numeric cell attributes in document order.
func CellFields() []CellField {
	return []CellField{
		{Key: "x", Range: CellBounds.X},
		{Key: "y", Range: CellBounds.Y},
		{Key: "radius", Range: CellBounds.Radius},
		{Key: "color_h", Range: CellBounds.ColorH},
		{Key: "shapeFactor", Range: CellBounds.ShapeFactor},
	}
}

// Set assigns v to the attribute named key. Unknown keys are ignored.
func (c *Cell) Set(key string, v float64) {
	switch key {
	case "x":
		c.X = v
	case "y":
		c.Y = v
	case "radius":
		c.Radius = v
	case "color_h":
		c.ColorH = v
	case "shapeFactor":
		c.ShapeFactor = v
	}
}

// InBounds reports whether every attribute of c lies in its range.
func (c Cell) InBounds() bool {
	return CellBounds.X.Contains(c.X) &&
		CellBounds.Y.Contains(c.Y) &&
		CellBounds.Radius.Contains(c.Radius) &&
		CellBounds.ColorH.Contains(c.ColorH) &&
		CellBounds.ShapeFactor.Contains(c.ShapeFactor)
}
