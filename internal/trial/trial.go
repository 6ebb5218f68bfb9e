// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trial runs one benchmark trial end to end.
//
// A trial moves through these states:
//
//	ACQUIRING -> COMPLEXITY_CHECK -> ACCEPT -> SYNTHESIZING -> WRAPPING -> CHECKING -> DONE
//	                  |
//	                  +-> REJECT -> ACQUIRING
//
// ACQUIRING also loops on itself when the registry reports a duplicate.
// The acquisition loop is unbounded unless Config.MaxAttempts is set.
//
// A timeout in CHECKING is a result, not a failure: the outcome reports
// the configured timeout as its duration. Every other tool or format
// failure is returned as an error and fails the batch.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/frankjinn/mirtl/internal/miter"
	"github.com/frankjinn/mirtl/internal/registry"
	"github.com/frankjinn/mirtl/internal/telemetry"
	"github.com/frankjinn/mirtl/internal/tools"
	"github.com/frankjinn/mirtl/internal/workspace"
)

const tracerName = "eqbench.trial"

const (
	DefaultMaxCells = 10000
	DefaultTimeout  = 5 * time.Second
)

// ErrAttemptsExhausted is returned when MaxAttempts designs were drawn
// without one being accepted.
var ErrAttemptsExhausted = errors.New("no acceptable design within the attempt limit")

// State names the executor's position in the trial.
type State string

const (
	StateAcquiring       State = "ACQUIRING"
	StateComplexityCheck State = "COMPLEXITY_CHECK"
	StateSynthesizing    State = "SYNTHESIZING"
	StateWrapping        State = "WRAPPING"
	StateChecking        State = "CHECKING"
	StateDone            State = "DONE"
)

// Design is a generated design accepted for a trial.
type Design struct {
	Source      string
	Fingerprint registry.Fingerprint
	CellCount   int
	Path        string
}

// Outcome is the result of one trial.
type Outcome struct {
	WorkloadID  int
	CellCount   int
	Elapsed     time.Duration
	TimedOut    bool
	Timeout     time.Duration
	Fingerprint registry.Fingerprint

	// Attempts is the number of designs drawn from the generator.
	Attempts int

	// Duplicates and Rejected count designs skipped along the way.
	Duplicates int
	Rejected   int

	// ExitCode of the equivalence checker (-1 when killed).
	ExitCode int
}

// Duration is the measured check time, or the timeout when the check
// was killed.
func (o Outcome) Duration() time.Duration {
	if o.TimedOut {
		return o.Timeout
	}
	return o.Elapsed
}

// Toolchain is the set of external tools a trial drives.
//
// *tools.Toolchain is the production implementation.
type Toolchain interface {
	GenerateDesign(ctx context.Context) (string, error)
	CountCells(ctx context.Context, designPath string) (int, error)
	Synthesize(ctx context.Context, inputPath, outputPath, logPath string) error
	CheckEquivalence(ctx context.Context, topPath, firstPath, secondPath string, timeout time.Duration) (tools.CheckResult, error)
}

// Registrar deduplicates designs. *registry.Registry implements it.
type Registrar interface {
	TryRegister(ctx context.Context, fp registry.Fingerprint) (bool, error)
}

// ProgressReporter receives one call per finished trial.
// *ux.Printer implements it.
type ProgressReporter interface {
	Trial(elapsed time.Duration, timedOut bool, cells int, hash string)
}

// Config controls trial behavior.
type Config struct {
	// MaxCells is the largest accepted cell count.
	// Default: 10000
	MaxCells int

	// Timeout is the equivalence check limit.
	// Default: 5s
	Timeout time.Duration

	// MaxAttempts bounds designs drawn per trial. 0 means unbounded.
	MaxAttempts int

	// GeneratorRate limits generator invocations per second across all
	// trials. 0 means unlimited.
	GeneratorRate float64

	// TopModule is the top module name of generated designs.
	// Default: "top"
	TopModule string
}

func (c Config) withDefaults() Config {
	if c.MaxCells <= 0 {
		c.MaxCells = DefaultMaxCells
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.TopModule == "" {
		c.TopModule = miter.DefaultTop
	}
	return c
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProgress sets the per-trial progress reporter.
func WithProgress(p ProgressReporter) Option {
	return func(e *Executor) { e.progress = p }
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTelemetry sets the OTel instruments.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(e *Executor) { e.otelMetrics = m }
}

// Executor runs trials. One Executor is shared by every worker.
//
// # Thread Safety
//
// Run is safe for concurrent use. The only shared mutable state it
// touches is the Registrar, which serializes itself.
type Executor struct {
	cfg         Config
	tools       Toolchain
	registry    Registrar
	ws          *workspace.Workspace
	builder     miter.Builder
	limiter     *rate.Limiter
	logger      *slog.Logger
	progress    ProgressReporter
	metrics     *Metrics
	otelMetrics *telemetry.Metrics
}

// NewExecutor creates an Executor.
//
// # Inputs
//
//   - cfg: Trial settings; zero fields take defaults
//   - tc: External tools
//   - reg: Batch registry
//   - ws: Opened scratch workspace
//   - opts: Logger, progress and metrics options
func NewExecutor(cfg Config, tc Toolchain, reg Registrar, ws *workspace.Workspace, opts ...Option) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		cfg:      cfg,
		tools:    tc,
		registry: reg,
		ws:       ws,
		builder:  miter.Builder{Top: cfg.TopModule},
		logger:   slog.Default(),
	}
	if cfg.GeneratorRate > 0 {
		burst := int(cfg.GeneratorRate)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.GeneratorRate), burst)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Run executes trial workload to completion.
//
// # Outputs
//
//   - Outcome: Valid when error is nil; a timeout is a valid outcome
//   - error: Fatal tool, format or I/O failures, ErrAttemptsExhausted,
//     or ctx cancellation
func (e *Executor) Run(ctx context.Context, workload int) (out Outcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "trial.Run",
		trace.WithAttributes(attribute.Int("trial.workload", workload)),
	)
	defer span.End()

	logger := telemetry.LoggerWithTrace(ctx, e.logger).With(slog.Int("workload", workload))

	if e.metrics != nil {
		e.metrics.ActiveTrials.Inc()
		defer e.metrics.ActiveTrials.Dec()
	}
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()

	out = Outcome{WorkloadID: workload, Timeout: e.cfg.Timeout}

	design, err := e.acquire(ctx, workload, &out, logger)
	if err != nil {
		return out, err
	}
	out.Fingerprint = design.Fingerprint
	out.CellCount = design.CellCount
	span.SetAttributes(
		attribute.String("trial.hash", design.Fingerprint.String()),
		attribute.Int("trial.cells", design.CellCount),
	)

	synthPath := e.ws.SynthesizedPath(workload, design.Fingerprint)
	if err := e.stage(ctx, StateSynthesizing, logger, func(ctx context.Context) error {
		return e.tools.Synthesize(ctx, design.Path, synthPath, e.ws.SynthLogPath(workload, design.Fingerprint))
	}); err != nil {
		return out, err
	}

	var files miter.Files
	if err := e.stage(ctx, StateWrapping, logger, func(context.Context) error {
		var err error
		files, err = e.builder.PrepareFiles(e.ws.PreparedDir(), design.Path, synthPath)
		return err
	}); err != nil {
		return out, fmt.Errorf("build equivalence wrapper for %s: %w", design.Fingerprint, err)
	}

	var res tools.CheckResult
	if err := e.stage(ctx, StateChecking, logger, func(ctx context.Context) error {
		var err error
		res, err = e.tools.CheckEquivalence(ctx, files.Top, files.First, files.Second, e.cfg.Timeout)
		return err
	}); err != nil {
		return out, err
	}

	out.Elapsed = res.Elapsed
	out.TimedOut = res.TimedOut
	out.ExitCode = res.ExitCode

	e.finish(ctx, out, logger)
	span.SetStatus(codes.Ok, "trial completed")
	return out, nil
}

// acquire loops through ACQUIRING and COMPLEXITY_CHECK until a design
// is both new and small enough.
func (e *Executor) acquire(ctx context.Context, workload int, out *Outcome, logger *slog.Logger) (Design, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Design{}, err
		}
		if e.cfg.MaxAttempts > 0 && out.Attempts >= e.cfg.MaxAttempts {
			return Design{}, fmt.Errorf("%w (%d attempts, %d duplicates, %d rejected)",
				ErrAttemptsExhausted, out.Attempts, out.Duplicates, out.Rejected)
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return Design{}, err
			}
		}
		out.Attempts++

		var (
			text string
			fp   registry.Fingerprint
			ok   bool
		)
		if err := e.stage(ctx, StateAcquiring, logger, func(ctx context.Context) error {
			var err error
			text, err = e.tools.GenerateDesign(ctx)
			if err != nil {
				return err
			}
			fp = registry.FingerprintOf(text)
			ok, err = e.registry.TryRegister(ctx, fp)
			return err
		}); err != nil {
			return Design{}, err
		}
		if !ok {
			out.Duplicates++
			e.countDesign("duplicate")
			logger.Info("skipping duplicate design", slog.String("hash", fp.String()))
			continue
		}

		var (
			path  string
			cells int
		)
		if err := e.stage(ctx, StateComplexityCheck, logger, func(ctx context.Context) error {
			var err error
			path, err = e.ws.WriteDesign(workload, fp, text)
			if err != nil {
				return err
			}
			cells, err = e.tools.CountCells(ctx, path)
			return err
		}); err != nil {
			return Design{}, err
		}

		if cells > e.cfg.MaxCells {
			// The file stays on disk until workspace cleanup.
			out.Rejected++
			e.countDesign("rejected")
			logger.Info("rejecting design over cell bound",
				slog.String("hash", fp.String()),
				slog.Int("cells", cells),
				slog.Int("max_cells", e.cfg.MaxCells))
			continue
		}

		e.countDesign("accepted")
		logger.Debug("design accepted", slog.String("hash", fp.String()), slog.Int("cells", cells))
		return Design{Source: text, Fingerprint: fp, CellCount: cells, Path: path}, nil
	}
}

// stage runs fn inside a child span named after state and times it.
func (e *Executor) stage(ctx context.Context, state State, logger *slog.Logger, fn func(context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, string(state))
	defer span.End()

	logger.Debug("trial state", slog.String("state", string(state)))
	start := time.Now()
	err := fn(ctx)
	if e.metrics != nil {
		e.metrics.StateDurationSeconds.WithLabelValues(string(state)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

func (e *Executor) countDesign(decision string) {
	if e.metrics != nil {
		e.metrics.DesignsTotal.WithLabelValues(decision).Inc()
	}
}

// finish is the DONE state: progress line, log and metrics.
func (e *Executor) finish(ctx context.Context, out Outcome, logger *slog.Logger) {
	result := "ok"
	if out.TimedOut {
		result = "timeout"
		logger.Info("equivalence check timed out, process group killed",
			slog.String("hash", out.Fingerprint.String()),
			slog.Duration("timeout", e.cfg.Timeout))
		if e.metrics != nil {
			e.metrics.TimeoutsTotal.Inc()
		}
	}

	if e.progress != nil {
		e.progress.Trial(out.Elapsed, out.TimedOut, out.CellCount, out.Fingerprint.String())
	}
	logger.Debug("trial done",
		slog.String("state", string(StateDone)),
		slog.String("result", result),
		slog.Duration("duration", out.Duration()),
		slog.Int("attempts", out.Attempts))

	if e.otelMetrics != nil {
		attrs := metric.WithAttributes(attribute.String("result", result))
		e.otelMetrics.TrialsTotal.Add(ctx, 1, attrs)
		e.otelMetrics.CheckDuration.Record(ctx, out.Duration().Seconds(), attrs)
		e.otelMetrics.DesignCells.Record(ctx, int64(out.CellCount))
	}
}
