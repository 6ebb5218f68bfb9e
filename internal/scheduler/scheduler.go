// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scheduler fans trials out over a bounded pool of workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/frankjinn/mirtl/internal/trial"
)

var (
	// ErrInvalidWorkers is returned for a pool size below one.
	ErrInvalidWorkers = errors.New("number of workers must be at least 1")

	// ErrInvalidTrials is returned for a negative trial count.
	ErrInvalidTrials = errors.New("number of trials must not be negative")
)

// TrialRunner runs one trial. *trial.Executor implements it.
type TrialRunner interface {
	Run(ctx context.Context, workload int) (trial.Outcome, error)
}

// RunnerFunc adapts a function to TrialRunner.
type RunnerFunc func(ctx context.Context, workload int) (trial.Outcome, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, workload int) (trial.Outcome, error) {
	return f(ctx, workload)
}

// PanicError is a recovered panic from a trial.
type PanicError struct {
	// Workload is the trial that panicked.
	Workload int

	// Value is the value passed to panic().
	Value interface{}

	// Stack is the goroutine stack at panic time.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("trial %d panicked: %v", e.Workload, e.Value)
}

// Scheduler runs trials with at most Workers in flight.
type Scheduler struct {
	workers int
	logger  *slog.Logger
}

// New creates a Scheduler. A nil logger uses slog.Default().
func New(workers int, logger *slog.Logger) (*Scheduler, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidWorkers, workers)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{workers: workers, logger: logger}, nil
}

// Run executes trials 0..n-1 and returns their outcomes indexed by
// workload id.
//
// # Description
//
// Trials are submitted in workload order and start as slots free up.
// Completion order does not matter: outcome i always belongs to trial i.
//
// The first trial error cancels the context shared by every trial, which
// kills the external processes of in-flight siblings. Run then waits for
// all trials to return and reports that first error with no outcomes.
//
// # Inputs
//
//   - ctx: Parent context
//   - n: Number of trials; 0 returns an empty slice
//   - runner: Runs one trial
func (s *Scheduler) Run(ctx context.Context, n int, runner TrialRunner) ([]trial.Outcome, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidTrials, n)
	}
	outcomes := make([]trial.Outcome, n)
	if n == 0 {
		return outcomes, nil
	}

	start := time.Now()
	s.logger.Info("starting trials", slog.Int("trials", n), slog.Int("workers", s.workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := 0; i < n; i++ {
		workload := i
		g.Go(func() (err error) {
			defer recoverTrial(workload, &err)

			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := runner.Run(gctx, workload)
			if err != nil {
				return fmt.Errorf("trial %d: %w", workload, err)
			}
			outcomes[workload] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("batch failed", slog.String("error", err.Error()))
		var perr *PanicError
		if errors.As(err, &perr) {
			s.logger.Debug("panic stack", slog.String("stack", perr.Stack))
		}
		return nil, err
	}

	s.logger.Info("trials finished", slog.Int("trials", n), slog.Duration("elapsed", time.Since(start)))
	return outcomes, nil
}

// recoverTrial turns a panic in the deferring goroutine into a
// *PanicError stored in *errp.
func recoverTrial(workload int, errp *error) {
	if r := recover(); r != nil {
		*errp = &PanicError{
			Workload: workload,
			Value:    r,
			Stack:    string(debug.Stack()),
		}
	}
}
