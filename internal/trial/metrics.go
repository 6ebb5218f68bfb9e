// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trial

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the trial executor.
type Metrics struct {
	// DesignsTotal counts generated designs by decision
	// ("accepted", "duplicate", "rejected").
	DesignsTotal *prometheus.CounterVec

	// StateDurationSeconds measures wall time spent in each trial state.
	StateDurationSeconds *prometheus.HistogramVec

	// TimeoutsTotal counts equivalence checks killed at the deadline.
	TimeoutsTotal prometheus.Counter

	// ActiveTrials is the number of trials in flight.
	ActiveTrials prometheus.Gauge
}

// NewMetrics registers the executor metrics with reg.
//
// Pass prometheus.DefaultRegisterer to expose them on /metrics, or a
// fresh prometheus.NewRegistry() in tests (registering twice on the same
// registry panics).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DesignsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eqbench",
				Subsystem: "trial",
				Name:      "designs_total",
				Help:      "Generated designs by registry and complexity decision",
			},
			[]string{"decision"},
		),
		StateDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eqbench",
				Subsystem: "trial",
				Name:      "state_duration_seconds",
				Help:      "Wall time per trial state",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"state"},
		),
		TimeoutsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "eqbench",
				Subsystem: "trial",
				Name:      "timeouts_total",
				Help:      "Equivalence checks killed at the timeout",
			},
		),
		ActiveTrials: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "eqbench",
				Subsystem: "trial",
				Name:      "active",
				Help:      "Trials currently running",
			},
		),
	}
}
