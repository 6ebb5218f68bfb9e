// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFormatTrial(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		timedOut bool
		cells    int
		want     string
	}{
		{
			name:    "completed",
			elapsed: 1234 * time.Millisecond,
			cells:   42,
			want:    "check_duration:    1.23, num_cells:   42, hash: 00000000deadbeef",
		},
		{
			name:     "timeout",
			elapsed:  5 * time.Second,
			timedOut: true,
			cells:    9999,
			want:     "check_duration: TIMEOUT, num_cells: 9999, hash: 00000000deadbeef",
		},
		{
			name:    "wide cell count",
			elapsed: 10 * time.Millisecond,
			cells:   10000,
			want:    "check_duration:    0.01, num_cells: 10000, hash: 00000000deadbeef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatTrial(tt.elapsed, tt.timedOut, tt.cells, "00000000deadbeef")
			if got != tt.want {
				t.Errorf("FormatTrial() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrinter_PlainTrial(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	p.Trial(500*time.Millisecond, false, 7, "abc")

	if got := buf.String(); got != "check_duration:    0.50, num_cells:    7, hash: abc\n" {
		t.Errorf("output = %q", got)
	}
}

func TestPrinter_Summary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	p.Summary("Batch summary", [][2]string{
		{"trials", "10"},
		{"timeouts", "2"},
	})

	out := buf.String()
	for _, want := range []string{"Batch summary", "trials    10", "timeouts  2"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_Styled(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Trial(time.Second, true, 3, "abc")
	p.Summary("Batch summary", [][2]string{{"trials", "1"}})
	p.Error("synthesis failed")

	out := buf.String()
	if !strings.Contains(out, "TIMEOUT") || !strings.Contains(out, "synthesis failed") {
		t.Errorf("styled output lost content:\n%s", out)
	}
}

func TestPrinter_ConcurrentLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Trial(time.Duration(i)*time.Millisecond, false, i, "h")
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "check_duration:") {
			t.Errorf("garbled line %q", l)
		}
	}
}

func TestPrinter_PlainError(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false).Error("boom")
	if buf.String() != "ERROR: boom\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrinter_PlainDetail(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false).Detail("Proving miter.\nERROR: solver out of memory\n")
	if want := "  Proving miter.\n  ERROR: solver out of memory\n"; buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
