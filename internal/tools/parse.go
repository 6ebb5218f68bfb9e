// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"fmt"
	"strconv"
	"strings"
)

// cellCountPrefix starts the line yosys' stat pass prints per module and
// once more for the whole design.
const cellCountPrefix = "Number of cells:"

// ParseError is returned when the cell-count line cannot be found or read.
type ParseError struct {
	// Path is the design whose stats were parsed. Empty for raw parses.
	Path string

	// Line is the offending line, empty when no line matched.
	Line string

	// Err is the process error if the tool also failed.
	Err error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Line == "" {
		b.WriteString("no \"" + cellCountPrefix + "\" line in yosys output")
	} else {
		fmt.Fprintf(&b, "malformed cell count line %q", e.Line)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " for %s", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseCellCount returns the count from the last line of output that,
// once trimmed, starts with "Number of cells:".
//
// The last occurrence is the design-wide total; earlier ones are per
// submodule. Failures are *ParseError.
func ParseCellCount(output string) (int, error) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, cellCountPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, cellCountPrefix)))
		if err != nil || n < 0 {
			return 0, &ParseError{Line: line}
		}
		return n, nil
	}
	return 0, &ParseError{}
}
