// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/frankjinn/mirtl/internal/trial"
)

// ErrNoSamples is returned when latency statistics have no input.
var ErrNoSamples = errors.New("no samples")

// LatencyStats summarizes completed check durations.
//
// Percentiles use linear interpolation between closest ranks.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	Median time.Duration `json:"median"`
	P90    time.Duration `json:"p90"`
	P99    time.Duration `json:"p99"`
}

// CalculateLatencyStats computes LatencyStats over samples.
func CalculateLatencyStats(samples []time.Duration) (LatencyStats, error) {
	if len(samples) == 0 {
		return LatencyStats{}, ErrNoSamples
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, s := range sorted {
		sum += s
	}

	return LatencyStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / time.Duration(len(sorted)),
		Median: percentile(sorted, 0.5),
		P90:    percentile(sorted, 0.9),
		P99:    percentile(sorted, 0.99),
	}, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 1 {
		return sorted[0]
	}
	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	fraction := index - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-fraction) + float64(sorted[upper])*fraction)
}

// Summary describes a finished batch.
type Summary struct {
	RunID      string        `json:"run_id,omitempty"`
	Trials     int           `json:"trials"`
	Completed  int           `json:"completed"`
	Timeouts   int           `json:"timeouts"`
	Timeout    time.Duration `json:"timeout"`
	Duplicates int           `json:"duplicates"`
	Rejected   int           `json:"rejected"`
	MeanCells  float64       `json:"mean_cells"`

	// Latency covers completed checks only; nil when every trial timed
	// out.
	Latency *LatencyStats `json:"latency,omitempty"`
}

// Summarize aggregates outcomes.
func Summarize(outcomes []trial.Outcome, timeout time.Duration) Summary {
	s := Summary{Trials: len(outcomes), Timeout: timeout}

	var (
		samples []time.Duration
		cells   int
	)
	for _, o := range outcomes {
		cells += o.CellCount
		s.Duplicates += o.Duplicates
		s.Rejected += o.Rejected
		if o.TimedOut {
			s.Timeouts++
			continue
		}
		samples = append(samples, o.Elapsed)
	}
	s.Completed = len(samples)
	if len(outcomes) > 0 {
		s.MeanCells = float64(cells) / float64(len(outcomes))
	}
	if stats, err := CalculateLatencyStats(samples); err == nil {
		s.Latency = &stats
	}
	return s
}

// Rows renders the summary as key/value rows for terminal output.
func (s Summary) Rows() [][2]string {
	rows := [][2]string{
		{"trials", fmt.Sprintf("%d", s.Trials)},
		{"completed", fmt.Sprintf("%d", s.Completed)},
		{"timeouts", fmt.Sprintf("%d (limit %s)", s.Timeouts, s.Timeout)},
		{"duplicates skipped", fmt.Sprintf("%d", s.Duplicates)},
		{"designs rejected", fmt.Sprintf("%d", s.Rejected)},
		{"mean cells", fmt.Sprintf("%.1f", s.MeanCells)},
	}
	if s.Latency != nil {
		l := s.Latency
		rows = append(rows,
			[2]string{"check min/median/max", fmt.Sprintf("%s / %s / %s", round(l.Min), round(l.Median), round(l.Max))},
			[2]string{"check mean", round(l.Mean).String()},
			[2]string{"check p90/p99", fmt.Sprintf("%s / %s", round(l.P90), round(l.P99))},
		)
	}
	return rows
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

// WriteSummary writes s as indented JSON to path.
func WriteSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}
