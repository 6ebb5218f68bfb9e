// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools adapts the external hardware toolchain.
//
// Four collaborators are wrapped:
//
//   - the random design generator (verismith)
//   - yosys running the cell-count script
//   - yosys running the synthesis script
//   - yosys running the equivalence-check script
//
// The yosys scripts take their inputs from environment variables, so each
// adapter builds a process.EnvVars and hands a process.Command to the
// injected ProcessManager.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/frankjinn/mirtl/internal/process"
)

// Environment variables read by the yosys scripts.
const (
	EnvVerilogInput       = "VERILOG_INPUT"
	EnvVerilogOutput      = "VERILOG_OUTPUT"
	EnvTopModule          = "TOP_MODULE"
	EnvVerilogInputFirst  = "VERILOG_INPUT_FIRST"
	EnvVerilogInputSecond = "VERILOG_INPUT_SECOND"
	EnvVerilogInputTop    = "VERILOG_INPUT_TOP"
)

var (
	// ErrEmptyDesign is returned when the generator exits cleanly but
	// prints nothing.
	ErrEmptyDesign = errors.New("generator produced an empty design")

	// ErrNoGenerator is returned when Config.GeneratorPath is unset.
	ErrNoGenerator = errors.New("generator path not configured")
)

// Config describes where the toolchain lives.
type Config struct {
	// GeneratorPath is the resolved path of the design generator.
	GeneratorPath string

	// GeneratorArgs are passed to the generator. Default: ["generate"].
	GeneratorArgs []string

	// Yosys is the yosys executable. Default: "yosys".
	Yosys string

	// StatsScript prints "Number of cells: N". Default: "stats.ys.tcl".
	StatsScript string

	// SynthScript synthesizes VERILOG_INPUT to VERILOG_OUTPUT.
	// Default: "synthesize.ys.tcl".
	SynthScript string

	// EquivScript proves the miter. Default: "equivtest.ys.tcl".
	EquivScript string

	// TopModule is exported as TOP_MODULE. Default: "top".
	TopModule string
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if len(c.GeneratorArgs) == 0 {
		c.GeneratorArgs = []string{"generate"}
	}
	if c.Yosys == "" {
		c.Yosys = "yosys"
	}
	if c.StatsScript == "" {
		c.StatsScript = "stats.ys.tcl"
	}
	if c.SynthScript == "" {
		c.SynthScript = "synthesize.ys.tcl"
	}
	if c.EquivScript == "" {
		c.EquivScript = "equivtest.ys.tcl"
	}
	if c.TopModule == "" {
		c.TopModule = "top"
	}
	return c
}

// CheckResult is the outcome of one equivalence check.
type CheckResult struct {
	// Elapsed is the wall-clock time of the checker run.
	Elapsed time.Duration

	// TimedOut is true when the checker was killed at the deadline.
	TimedOut bool

	// ExitCode is the checker's exit status (-1 when killed).
	ExitCode int
}

// Toolchain runs the external tools for one harness.
//
// # Thread Safety
//
// Toolchain is safe for concurrent use if its ProcessManager is.
type Toolchain struct {
	cfg    Config
	pm     process.ProcessManager
	logger *slog.Logger
}

// New creates a Toolchain.
//
// # Inputs
//
//   - cfg: Tool locations; zero fields take defaults
//   - pm: Process runner (process.NewDefaultProcessManager in production)
//   - logger: Optional; slog.Default() when nil
func New(cfg Config, pm process.ProcessManager, logger *slog.Logger) *Toolchain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolchain{cfg: cfg.withDefaults(), pm: pm, logger: logger}
}

// Config returns the effective configuration, defaults applied.
func (t *Toolchain) Config() Config {
	return t.cfg
}

// GenerateDesign runs the generator once and returns its stdout.
//
// # Outputs
//
//   - string: The generated Verilog source
//   - error: *process.CommandError on non-zero exit, ErrEmptyDesign when
//     the capture is blank, context errors on cancellation
func (t *Toolchain) GenerateDesign(ctx context.Context) (string, error) {
	if t.cfg.GeneratorPath == "" {
		return "", ErrNoGenerator
	}

	res, err := t.pm.Run(ctx, process.Command{
		Name: t.cfg.GeneratorPath,
		Args: t.cfg.GeneratorArgs,
	})
	if err != nil {
		return "", fmt.Errorf("generate design: %w", err)
	}

	design := string(res.Stdout)
	if strings.TrimSpace(design) == "" {
		stderr := strings.TrimSpace(string(res.Stderr))
		if stderr != "" {
			return "", fmt.Errorf("%w (stderr: %s)", ErrEmptyDesign, stderr)
		}
		return "", ErrEmptyDesign
	}
	return design, nil
}

// CountCells runs the stats script on designPath and returns the cell
// count printed by yosys.
//
// A failing yosys run that still printed a count is accepted; the count
// is what the harness filters on. When no count is found the returned
// *ParseError wraps the process error, if any.
func (t *Toolchain) CountCells(ctx context.Context, designPath string) (int, error) {
	env, err := process.NewEnvVars(
		process.EnvVar{Key: EnvVerilogInput, Value: designPath},
		process.EnvVar{Key: EnvTopModule, Value: t.cfg.TopModule},
	)
	if err != nil {
		return 0, err
	}

	res, runErr := t.pm.Run(ctx, process.Command{
		Name: t.cfg.Yosys,
		Args: []string{"-c", t.cfg.StatsScript},
		Env:  env,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}

	var stdout string
	if res != nil {
		stdout = string(res.Stdout)
	}

	cells, err := ParseCellCount(stdout)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = designPath
			perr.Err = runErr
		}
		return 0, err
	}
	if runErr != nil {
		t.logger.Warn("cell counter exited non-zero but reported a count",
			"design", designPath, "cells", cells, "error", runErr)
	}
	return cells, nil
}

// Synthesize runs the synthesis script, writing outputPath and logPath.
//
// # Outputs
//
//   - error: *process.CommandError (wrapped) on non-zero exit
func (t *Toolchain) Synthesize(ctx context.Context, inputPath, outputPath, logPath string) error {
	env, err := process.NewEnvVars(
		process.EnvVar{Key: EnvVerilogInput, Value: inputPath},
		process.EnvVar{Key: EnvVerilogOutput, Value: outputPath},
		process.EnvVar{Key: EnvTopModule, Value: t.cfg.TopModule},
	)
	if err != nil {
		return err
	}

	if _, err := t.pm.Run(ctx, process.Command{
		Name: t.cfg.Yosys,
		Args: []string{"-c", t.cfg.SynthScript, "-l", logPath},
		Env:  env,
	}); err != nil {
		return fmt.Errorf("synthesize %s (log %s): %w", inputPath, logPath, err)
	}
	return nil
}

// CheckEquivalence runs the equivalence script on the prepared files
// under a wall-clock timeout.
//
// # Description
//
// The checker's exit status is recorded but a non-zero exit is not an
// error: the script may report non-equivalence that way, and the harness
// measures time, not verdicts. Only start failures and cancellation of
// ctx are returned as errors.
//
// # Inputs
//
//   - ctx: Parent context; cancellation kills the checker
//   - topPath, firstPath, secondPath: Files written by miter.Prepare
//   - timeout: Wall-clock limit; the process group is SIGKILLed at expiry
func (t *Toolchain) CheckEquivalence(ctx context.Context, topPath, firstPath, secondPath string, timeout time.Duration) (CheckResult, error) {
	env, err := process.NewEnvVars(
		process.EnvVar{Key: EnvVerilogInputFirst, Value: firstPath},
		process.EnvVar{Key: EnvVerilogInputSecond, Value: secondPath},
		process.EnvVar{Key: EnvVerilogInputTop, Value: topPath},
	)
	if err != nil {
		return CheckResult{}, err
	}

	res, err := t.pm.Run(ctx, process.Command{
		Name:    t.cfg.Yosys,
		Args:    []string{"-c", t.cfg.EquivScript},
		Env:     env,
		Timeout: timeout,
	})
	if res == nil {
		if err == nil {
			err = errors.New("process manager returned no result")
		}
		return CheckResult{}, fmt.Errorf("equivalence check: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return CheckResult{}, ctxErr
	}

	var cmdErr *process.CommandError
	if err != nil && !errors.As(err, &cmdErr) {
		return CheckResult{}, fmt.Errorf("equivalence check: %w", err)
	}
	if cmdErr != nil {
		t.logger.Debug("equivalence checker exited non-zero",
			"top", topPath, "exit", cmdErr.ExitCode)
	}

	return CheckResult{
		Elapsed:  res.Elapsed,
		TimedOut: res.TimedOut,
		ExitCode: res.ExitCode,
	}, nil
}
