// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the seekin CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// SeekIn palette: warm skin tones for the lifeforms, teal for the keeper.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // titles
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorPeach       = lipgloss.Color("#F4A987") // entity A
	ColorRose        = lipgloss.Color("#D9788A") // entity B
	ColorSlate       = lipgloss.Color("#6B8A94") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	EntityA lipgloss.Style
	EntityB lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Label:   lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	EntityA: lipgloss.NewStyle().Bold(true).Foreground(ColorPeach),
	EntityB: lipgloss.NewStyle().Bold(true).Foreground(ColorRose),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Render returns the icon with its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes styled lines. With Plain set every style is skipped, so
// output piped to a file or another program stays free of escape codes.
type Printer struct {
	w     io.Writer
	Plain bool
}

// NewPrinter returns a Printer for w. Styling is enabled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	plain := true
	if f, ok := w.(*os.File); ok {
		plain = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{w: w, Plain: plain}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if p.Plain {
		return text
	}
	return s.Render(text)
}

func (p *Printer) icon(i Icon) string {
	if p.Plain {
		return string(i)
	}
	return i.Render()
}

// Title prints a heading.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.w, p.style(Styles.Title, text))
}

// Success prints a line prefixed with a check mark.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconSuccess), fmt.Sprintf(format, args...))
}

// Warning prints a line prefixed with a warning sign.
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconWarning), fmt.Sprintf(format, args...))
}

// Error prints a line prefixed with a cross.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconError), p.style(Styles.Error, fmt.Sprintf(format, args...)))
}

// Field prints an indented "label: value" line.
func (p *Printer) Field(label, value string) {
	fmt.Fprintf(p.w, "  %s %s\n", p.style(Styles.Label, label+":"), value)
}

// Muted prints a de-emphasized line.
func (p *Printer) Muted(text string) {
	fmt.Fprintln(p.w, p.style(Styles.Muted, text))
}

// Entity prints an entity heading; index 0 is entity A, anything else B.
func (p *Printer) Entity(index int, name string) {
	s := Styles.EntityA
	if index != 0 {
		s = Styles.EntityB
	}
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconBullet), p.style(s, name))
}

// Boxed prints lines inside a rounded border. Plain printers indent them
// instead.
func (p *Printer) Boxed(lines ...string) {
	body := strings.Join(lines, "\n")
	if p.Plain {
		for _, l := range lines {
			fmt.Fprintf(p.w, "  %s\n", l)
		}
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Render(body))
}
