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
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/frankjinn/mirtl/internal/trial"
)

// TrialMeasurement is the InfluxDB measurement for per-trial points.
const TrialMeasurement = "equiv_trials"

// InfluxConfig locates an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org" validate:"required_with=URL"`
	Bucket string `yaml:"bucket" validate:"required_with=URL"`
}

// Enabled reports whether a URL is configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != ""
}

// InfluxSink writes one point per trial.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink creates a sink. No connection is made until Write.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("influx: url is required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// TrialPoint builds the point for one outcome.
func TrialPoint(runID string, o trial.Outcome, ts time.Time) *write.Point {
	return influxdb2.NewPointWithMeasurement(TrialMeasurement).
		AddTag("run_id", runID).
		AddTag("workload", strconv.Itoa(o.WorkloadID)).
		AddTag("timed_out", strconv.FormatBool(o.TimedOut)).
		AddField("cells", o.CellCount).
		AddField("duration_seconds", o.Duration().Seconds()).
		AddField("hash", o.Fingerprint.String()).
		AddField("attempts", o.Attempts).
		AddField("exit_code", o.ExitCode).
		SetTime(ts)
}

// Write sends every outcome as one batch.
func (s *InfluxSink) Write(ctx context.Context, runID string, outcomes []trial.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	now := time.Now()
	points := make([]*write.Point, len(outcomes))
	for i, o := range outcomes {
		points[i] = TrialPoint(runID, o, now)
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
