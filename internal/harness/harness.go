// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package harness wires the components of one benchmark batch together.
//
// A batch runs in this order:
//
//  1. Lock and create the scratch workspace
//  2. Open the design registry (memory, or badger when RegistryDir is set)
//  3. Run every trial through the scheduler
//  4. Remove the workspace
//  5. Write the results file, then the optional summary and sinks
//
// Any trial error stops the batch before step 5, so a failed batch never
// leaves a results file behind.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/frankjinn/mirtl/internal/config"
	"github.com/frankjinn/mirtl/internal/process"
	"github.com/frankjinn/mirtl/internal/registry"
	"github.com/frankjinn/mirtl/internal/report"
	"github.com/frankjinn/mirtl/internal/scheduler"
	"github.com/frankjinn/mirtl/internal/telemetry"
	"github.com/frankjinn/mirtl/internal/tools"
	"github.com/frankjinn/mirtl/internal/trial"
	"github.com/frankjinn/mirtl/internal/workspace"
)

// ErrNoGenerator is returned when Options.GeneratorPath is empty.
var ErrNoGenerator = errors.New("generator path is required")

// Options configures one batch.
type Options struct {
	// Trials is the number of trials to run.
	Trials int

	// Workers is the number of concurrent trials.
	Workers int

	// GeneratorPath is the resolved generator binary.
	GeneratorPath string

	// Config supplies everything else. It should already be validated.
	Config config.Config

	// ProcessManager runs external tools.
	// Default: process.NewDefaultProcessManager()
	ProcessManager process.ProcessManager

	// Registerer receives the Prometheus metrics.
	// Default: a fresh prometheus.NewRegistry()
	Registerer prometheus.Registerer

	// Logger is the component logger. Default: slog.Default()
	Logger *slog.Logger

	// Progress receives one line per finished trial. Optional.
	Progress trial.ProgressReporter
}

// Report describes a finished batch.
type Report struct {
	RunID       string
	Outcomes    []trial.Outcome
	Summary     report.Summary
	ResultsPath string

	// UploadURI is the gs:// location of the uploaded results, if any.
	UploadURI string

	Registry registry.Stats

	// RegistrySize is the number of fingerprints in the persistent
	// registry after the batch. Zero when the registry is in-memory.
	RegistrySize int

	Elapsed time.Duration
}

// Run executes one batch.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.GeneratorPath == "" {
		return nil, ErrNoGenerator
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pm := opts.ProcessManager
	if pm == nil {
		pm = process.NewDefaultProcessManager()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	cfg := opts.Config

	sched, err := scheduler.New(opts.Workers, logger)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	ws, err := workspace.Open(cfg.Workdir)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	wsClosed := false
	defer func() {
		if !wsClosed {
			if err := ws.Close(); err != nil {
				logger.Warn("workspace cleanup failed", slog.String("error", err.Error()))
			}
		}
	}()

	designs, err := openRegistry(cfg.RegistryDir, logger)
	if err != nil {
		return nil, err
	}
	defer designs.Close()

	toolchain := tools.New(tools.Config{
		GeneratorPath: opts.GeneratorPath,
		GeneratorArgs: cfg.GeneratorArgs,
		Yosys:         cfg.Yosys,
		StatsScript:   cfg.Scripts.Stats,
		SynthScript:   cfg.Scripts.Synth,
		EquivScript:   cfg.Scripts.Equiv,
		TopModule:     cfg.TopModule,
	}, pm, logger)

	execOpts := []trial.Option{
		trial.WithLogger(logger),
		trial.WithMetrics(trial.NewMetrics(reg)),
	}
	if opts.Progress != nil {
		execOpts = append(execOpts, trial.WithProgress(opts.Progress))
	}
	if m, err := telemetry.NewMetrics(otel.Meter(telemetry.MeterName)); err != nil {
		logger.Warn("otel instruments unavailable", slog.String("error", err.Error()))
	} else {
		execOpts = append(execOpts, trial.WithTelemetry(m))
	}

	executor := trial.NewExecutor(trial.Config{
		MaxCells:      cfg.MaxCells,
		Timeout:       cfg.Timeout,
		MaxAttempts:   cfg.MaxAttempts,
		GeneratorRate: cfg.GeneratorRate,
		TopModule:     cfg.TopModule,
	}, toolchain, designs, ws, execOpts...)

	logger.Info("batch started",
		slog.Int("trials", opts.Trials),
		slog.Int("workers", opts.Workers),
		slog.String("generator", opts.GeneratorPath),
		slog.String("workdir", ws.Root()))

	outcomes, err := sched.Run(ctx, opts.Trials, executor)
	if err != nil {
		return nil, fmt.Errorf("batch failed: %w", err)
	}

	wsClosed = true
	if err := ws.Close(); err != nil {
		return nil, fmt.Errorf("clean up workspace: %w", err)
	}

	if err := report.WriteResults(cfg.ResultsPath, outcomes); err != nil {
		return nil, fmt.Errorf("write results: %w", err)
	}

	rep := &Report{
		RunID:       runID,
		Outcomes:    outcomes,
		Summary:     report.Summarize(outcomes, executor.Config().Timeout),
		ResultsPath: cfg.ResultsPath,
		Registry:    designs.Stats(),
	}
	rep.Summary.RunID = runID

	if cfg.SummaryPath != "" {
		if err := report.WriteSummary(cfg.SummaryPath, rep.Summary); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}

	publish(ctx, cfg, rep, logger)

	attrs := []any{
		slog.String("results", cfg.ResultsPath),
		slog.Int("trials", rep.Summary.Trials),
		slog.Int("timeouts", rep.Summary.Timeouts),
		slog.Int64("designs_accepted", rep.Registry.Accepted),
		slog.Int64("duplicates", rep.Registry.Duplicates),
	}
	if cfg.RegistryDir != "" {
		if n, err := designs.Len(ctx); err != nil {
			logger.Warn("registry size unavailable", slog.String("error", err.Error()))
		} else {
			rep.RegistrySize = n
			attrs = append(attrs, slog.Int("registry_size", n))
		}
	}
	rep.Elapsed = time.Since(start)
	attrs = append(attrs, slog.Duration("elapsed", rep.Elapsed))
	logger.Info("batch finished", attrs...)
	return rep, nil
}

func openRegistry(dir string, logger *slog.Logger) (*registry.Registry, error) {
	if dir == "" {
		return registry.New(nil), nil
	}
	bcfg := registry.DefaultBadgerConfig(dir)
	bcfg.Logger = logger
	store, err := registry.OpenBadgerStore(bcfg)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return registry.New(store), nil
}

// publish runs the optional sinks. Their failures are logged, not
// returned: the results file is already written.
func publish(ctx context.Context, cfg config.Config, rep *Report, logger *slog.Logger) {
	if cfg.Influx.Enabled() {
		if sink, err := report.NewInfluxSink(cfg.Influx); err != nil {
			logger.Warn("influx sink unavailable", slog.String("error", err.Error()))
		} else {
			if err := sink.Write(ctx, rep.RunID, rep.Outcomes); err != nil {
				logger.Warn("influx write failed", slog.String("error", err.Error()))
			}
			sink.Close()
		}
	}

	if cfg.GCS.Enabled() {
		up, err := report.NewGCSUploader(ctx, cfg.GCS)
		if err != nil {
			logger.Warn("gcs uploader unavailable", slog.String("error", err.Error()))
			return
		}
		defer up.Close()
		uri, err := up.Upload(ctx, rep.RunID, rep.ResultsPath)
		if err != nil {
			logger.Warn("results upload failed", slog.String("error", err.Error()))
			return
		}
		rep.UploadURI = uri
		logger.Info("results uploaded", slog.String("uri", uri))
	}
}
