// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/frankjinn/mirtl/internal/config"
	"github.com/frankjinn/mirtl/internal/harness"
	"github.com/frankjinn/mirtl/internal/process"
	"github.com/frankjinn/mirtl/internal/telemetry"
	"github.com/frankjinn/mirtl/pkg/logging"
	"github.com/frankjinn/mirtl/pkg/ux"
)

// rootFlags holds flag values. Flags override the config file only when
// set on the command line.
type rootFlags struct {
	configPath  string
	timeout     time.Duration
	maxCells    int
	maxAttempts int
	output      string
	summary     string
	workdir     string
	registryDir string
	metricsAddr string
	logLevel    string
	logFormat   string
	logDir      string
	noColor     bool
}

// batchArgs are the positional arguments.
type batchArgs struct {
	trials        int
	workers       int
	generatorRoot string
}

func parseArgs(args []string) (batchArgs, error) {
	trials, err := strconv.Atoi(args[0])
	if err != nil || trials < 0 {
		return batchArgs{}, fmt.Errorf("num_trials must be a non-negative integer, got %q", args[0])
	}
	workers, err := strconv.Atoi(args[1])
	if err != nil || workers < 1 {
		return batchArgs{}, fmt.Errorf("num_workers must be a positive integer, got %q", args[1])
	}
	return batchArgs{trials: trials, workers: workers, generatorRoot: args[2]}, nil
}

func newRootCmd() *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "eqbench <num_trials> <num_workers> <generator_root>",
		Short: "Benchmark an equivalence checker on generated designs",
		Long: `eqbench generates random designs, synthesizes each one, and times an
equivalence check between the original and the synthesized netlist.

The generator binary is located by searching <generator_root> for exactly
one file named after generator_name (default "verismith"). Results are
written to performance_results.json as [cell_count, seconds] pairs in
trial order; a timed-out check is recorded as the timeout.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	fl.DurationVar(&f.timeout, "timeout", 0, "equivalence check timeout (default 5s)")
	fl.IntVar(&f.maxCells, "max-cells", 0, "largest accepted cell count (default 10000)")
	fl.IntVar(&f.maxAttempts, "max-attempts", 0, "designs drawn per trial before giving up (0 = unbounded)")
	fl.StringVarP(&f.output, "output", "o", "", "results file (default performance_results.json)")
	fl.StringVar(&f.summary, "summary", "", "also write a JSON summary to this path")
	fl.StringVar(&f.workdir, "workdir", "", "scratch directory, removed at exit (default tmp)")
	fl.StringVar(&f.registryDir, "registry-dir", "", "persist design fingerprints here across runs")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address during the run")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fl.StringVar(&f.logFormat, "log-format", "auto", "log format: auto, text, json")
	fl.StringVar(&f.logDir, "log-dir", "", "also write JSON logs to this directory")
	fl.BoolVar(&f.noColor, "no-color", false, "disable styled output")

	return cmd
}

// loadConfig merges defaults, the config file and changed flags.
func loadConfig(cmd *cobra.Command, f *rootFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}

	fl := cmd.Flags()
	if fl.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if fl.Changed("max-cells") {
		cfg.MaxCells = f.maxCells
	}
	if fl.Changed("max-attempts") {
		cfg.MaxAttempts = f.maxAttempts
	}
	if fl.Changed("output") {
		cfg.ResultsPath = f.output
	}
	if fl.Changed("summary") {
		cfg.SummaryPath = f.summary
	}
	if fl.Changed("workdir") {
		cfg.Workdir = f.workdir
	}
	if fl.Changed("registry-dir") {
		cfg.RegistryDir = f.registryDir
	}
	if fl.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = f.metricsAddr
	}
	return cfg, cfg.Validate()
}

func newLogger(f *rootFlags) (*logging.Logger, error) {
	level, err := logging.ParseLevel(f.logLevel)
	if err != nil {
		return nil, err
	}

	var jsonOut bool
	switch f.logFormat {
	case "auto":
		fd := os.Stderr.Fd()
		jsonOut = !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
	case "text":
	case "json":
		jsonOut = true
	default:
		return nil, fmt.Errorf("unknown log format %q (want auto, text or json)", f.logFormat)
	}

	return logging.New(logging.Config{
		Level:   level,
		LogDir:  f.logDir,
		Service: "eqbench",
		JSON:    jsonOut,
	}), nil
}

func runBatch(cmd *cobra.Command, args []string, f *rootFlags) error {
	printer := ux.NewPrinter(cmd.OutOrStdout(), !f.noColor && ux.IsTerminal(os.Stdout))

	err := execute(cmd, args, f, printer)
	if err != nil {
		reportError(printer, err)
	}
	return err
}

// reportError prints err and, for a failed tool, the stderr tail that the
// one-line message leaves out.
func reportError(printer *ux.Printer, err error) {
	printer.Error(err.Error())
	if stderr := process.ExtractStderr(err); strings.Contains(stderr, "\n") {
		printer.Detail(stderr)
	}
}

func execute(cmd *cobra.Command, args []string, f *rootFlags, printer *ux.Printer) error {
	batch, err := parseArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	logger, err := newLogger(f)
	if err != nil {
		return err
	}
	defer logger.Close()
	cli := logger.With("component", "cli")
	cli.Debug("configuration loaded",
		"config", f.configPath,
		"timeout", cfg.Timeout,
		"max_cells", cfg.MaxCells,
		"workdir", cfg.Workdir)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			cli.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.Telemetry.MetricsAddr != "" {
		srv, err := telemetry.NewMetricsServer(cfg.Telemetry.MetricsAddr, nil, logger.Slog())
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		srv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				cli.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	generator, err := config.FindBinary(batch.generatorRoot, cfg.GeneratorName)
	if err != nil {
		cli.Error("generator lookup failed", "root", batch.generatorRoot, "error", err)
		return err
	}
	cli.Info("generator located", "path", generator)

	rep, err := harness.Run(ctx, harness.Options{
		Trials:        batch.trials,
		Workers:       batch.workers,
		GeneratorPath: generator,
		Config:        cfg,
		Registerer:    prometheus.DefaultRegisterer,
		Logger:        logger.Slog(),
		Progress:      printer,
	})
	if err != nil {
		cli.Error("batch failed", "error", err)
		return err
	}

	rows := append([][2]string{{"results", rep.ResultsPath}}, rep.Summary.Rows()...)
	if rep.RegistrySize > 0 {
		rows = append(rows, [2]string{"registry size", strconv.Itoa(rep.RegistrySize)})
	}
	if rep.UploadURI != "" {
		rows = append(rows, [2]string{"uploaded", rep.UploadURI})
	}
	printer.Summary("eqbench run "+rep.RunID, rows)
	return nil
}
