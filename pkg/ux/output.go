// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders eqbench's terminal output.
//
// Two kinds of output go to stdout: one progress line per finished trial
// and a summary box at the end. Logs go to stderr through pkg/logging.
//
// In plain mode (not a terminal, or --no-color) the progress line is
// exactly
//
//	check_duration:    1.23, num_cells:   42, hash: 0123456789abcdef
//
// so existing scripts that grep the harness output keep working.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles holds the lipgloss styles used by Printer.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// =============================================================================
// Terminal Detection
// =============================================================================

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes progress lines and summaries.
//
// # Thread Safety
//
// Safe for concurrent use; trial workers report through one Printer and
// lines never interleave.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	styled bool
}

// NewPrinter creates a Printer. styled enables colors.
func NewPrinter(w io.Writer, styled bool) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w, styled: styled}
}

// FormatTrial returns the plain progress line for one trial.
func FormatTrial(elapsed time.Duration, timedOut bool, cells int, hash string) string {
	if timedOut {
		return fmt.Sprintf("check_duration: TIMEOUT, num_cells: %4d, hash: %s", cells, hash)
	}
	return fmt.Sprintf("check_duration: %7.2f, num_cells: %4d, hash: %s", elapsed.Seconds(), cells, hash)
}

// Trial prints the progress line of a finished trial.
func (p *Printer) Trial(elapsed time.Duration, timedOut bool, cells int, hash string) {
	line := FormatTrial(elapsed, timedOut, cells, hash)
	if p.styled {
		if timedOut {
			line = Styles.Warning.Render(line)
		} else {
			line = Styles.Success.Render(line)
		}
	}
	p.println(line)
}

// Summary prints a titled box of key/value rows. In plain mode each row
// is "key: value".
func (p *Printer) Summary(title string, rows [][2]string) {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		key := fmt.Sprintf("%-*s", width, r[0])
		if p.styled {
			key = Styles.Muted.Render(key)
		}
		b.WriteString(key + "  " + r[1])
	}

	if !p.styled {
		p.println(title + "\n" + b.String())
		return
	}
	p.println(Styles.Box.Render(Styles.Title.Render(title) + "\n" + b.String()))
}

// Error prints a failure line.
func (p *Printer) Error(text string) {
	if p.styled {
		text = Styles.Error.Render("✗ " + text)
	} else {
		text = "ERROR: " + text
	}
	p.println(text)
}

// Detail prints a block of supporting text, such as a tool's stderr,
// indented under the preceding line.
func (p *Printer) Detail(text string) {
	var b strings.Builder
	for i, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  " + line)
	}
	out := b.String()
	if p.styled {
		out = Styles.Muted.Render(out)
	}
	p.println(out)
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}
