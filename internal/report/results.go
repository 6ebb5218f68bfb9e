// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report persists batch results and publishes them to optional
// sinks.
//
// The results file is a JSON array of [cell_count, duration_seconds]
// pairs in workload order:
//
//	[[38, 0.01], [112, 5]]
//
// A timed-out trial carries the configured timeout as its duration.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/frankjinn/mirtl/internal/trial"
)

// DefaultResultsFile is the results file name.
const DefaultResultsFile = "performance_results.json"

// Pair is one results entry.
type Pair struct {
	Cells   int
	Seconds float64
}

// MarshalJSON encodes the pair as a two-element array.
func (p Pair) MarshalJSON() ([]byte, error) {
	secs, err := json.Marshal(p.Seconds)
	if err != nil {
		return nil, err
	}
	return []byte("[" + strconv.Itoa(p.Cells) + ", " + string(secs) + "]"), nil
}

// UnmarshalJSON decodes a two-element array.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw []json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("result pair has %d elements, want 2", len(raw))
	}
	cells, err := raw[0].Int64()
	if err != nil {
		return fmt.Errorf("cell count: %w", err)
	}
	secs, err := raw[1].Float64()
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	p.Cells, p.Seconds = int(cells), secs
	return nil
}

// Pairs converts outcomes to result pairs, preserving order.
func Pairs(outcomes []trial.Outcome) []Pair {
	pairs := make([]Pair, len(outcomes))
	for i, o := range outcomes {
		pairs[i] = Pair{Cells: o.CellCount, Seconds: o.Duration().Seconds()}
	}
	return pairs
}

// Encode renders pairs in the results file format.
func Encode(pairs []Pair) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, p := range pairs {
		if i > 0 {
			buf.WriteString(", ")
		}
		b, err := p.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode result %d: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// WriteResults writes outcomes to path.
//
// The file is written to a temporary sibling and renamed into place, so
// a reader never sees a partial results file.
func WriteResults(path string, outcomes []trial.Outcome) error {
	data, err := Encode(Pairs(outcomes))
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// ReadResults loads a results file.
func ReadResults(path string) ([]Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pairs []Pair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return pairs, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
