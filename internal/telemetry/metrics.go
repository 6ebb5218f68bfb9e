// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of eqbench instruments.
const MeterName = "github.com/frankjinn/mirtl"

// Metrics holds the OTel instruments recorded per trial.
type Metrics struct {
	// TrialsTotal counts finished trials by result ("ok", "timeout").
	TrialsTotal metric.Int64Counter

	// CheckDuration records equivalence check wall time in seconds.
	CheckDuration metric.Float64Histogram

	// DesignCells records the cell count of accepted designs.
	DesignCells metric.Int64Histogram
}

// NewMetrics registers the eqbench instruments with meter.
//
// Description:
//
//	Returns an error if any instrument registration fails. With no
//	MeterProvider installed, otel.Meter returns a no-op meter and every
//	record is discarded.
//
// Example:
//
//	m, err := telemetry.NewMetrics(otel.Meter(telemetry.MeterName))
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	m.TrialsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TrialsTotal, err = meter.Int64Counter(
		"eqbench_trials_total",
		metric.WithDescription("Finished trials by result"),
		metric.WithUnit("{trial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create trials_total: %w", err)
	}

	m.CheckDuration, err = meter.Float64Histogram(
		"eqbench_check_duration_seconds",
		metric.WithDescription("Equivalence check wall time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900),
	)
	if err != nil {
		return nil, fmt.Errorf("create check_duration: %w", err)
	}

	m.DesignCells, err = meter.Int64Histogram(
		"eqbench_design_cells",
		metric.WithDescription("Cell count of accepted designs"),
		metric.WithUnit("{cell}"),
		metric.WithExplicitBucketBoundaries(10, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)
	if err != nil {
		return nil, fmt.Errorf("create design_cells: %w", err)
	}

	return m, nil
}
