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
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/frankjinn/mirtl/internal/process"
	"github.com/frankjinn/mirtl/pkg/ux"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args    []string
		want    batchArgs
		wantErr bool
	}{
		{[]string{"10", "4", "/opt"}, batchArgs{10, 4, "/opt"}, false},
		{[]string{"0", "1", "."}, batchArgs{0, 1, "."}, false},
		{[]string{"ten", "4", "/opt"}, batchArgs{}, true},
		{[]string{"-1", "4", "/opt"}, batchArgs{}, true},
		{[]string{"10", "0", "/opt"}, batchArgs{}, true},
	}
	for _, tt := range tests {
		got, err := parseArgs(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseArgs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseArgs(%v) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}

func TestRootCmd_RequiresThreeArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"10", "4"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Error("Execute() with two args should fail")
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqbench.yaml")
	os.WriteFile(path, []byte("timeout: 30s\nmax_cells: 200\nworkdir: scratch\n"), 0o644)

	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--config", path, "--timeout", "2s", "-o", "out.json"}); err != nil {
		t.Fatal(err)
	}
	var f rootFlags
	f.configPath = path
	f.timeout = 2 * time.Second
	f.output = "out.json"

	cfg, err := loadConfig(cmd, &f)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("Timeout = %s, want flag value 2s", cfg.Timeout)
	}
	if cfg.MaxCells != 200 || cfg.Workdir != "scratch" {
		t.Errorf("file values lost: %d cells, workdir %q", cfg.MaxCells, cfg.Workdir)
	}
	if cfg.ResultsPath != "out.json" {
		t.Errorf("ResultsPath = %q", cfg.ResultsPath)
	}
}

func TestLoadConfig_InvalidFlag(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--timeout", "0s"}); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(cmd, &rootFlags{}); err == nil {
		t.Error("zero timeout should fail validation")
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"auto", "text", "json"} {
		l, err := newLogger(&rootFlags{logLevel: "debug", logFormat: format})
		if err != nil {
			t.Errorf("newLogger(%s) error = %v", format, err)
			continue
		}
		l.Close()
	}

	if _, err := newLogger(&rootFlags{logLevel: "info", logFormat: "xml"}); err == nil ||
		!strings.Contains(err.Error(), "xml") {
		t.Errorf("unknown format error = %v", err)
	}
	if _, err := newLogger(&rootFlags{logLevel: "loud", logFormat: "text"}); err == nil {
		t.Error("unknown level should fail")
	}
}

func TestRootCmd_MissingGeneratorFails(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	logDir := filepath.Join(dir, "logs")
	cmd.SetArgs([]string{"1", "1", dir,
		"--no-color",
		"--log-format", "text",
		"--log-level", "error",
		"--log-dir", logDir,
		"--workdir", filepath.Join(dir, "tmp"),
		"--output", filepath.Join(dir, "results.json"),
	})
	t.Setenv("OTEL_METRICS_EXPORTER", "none")

	if err := cmd.Execute(); err == nil {
		t.Fatal("Execute() should fail without a generator binary")
	}
	if !strings.HasPrefix(out.String(), "ERROR: ") || !strings.Contains(out.String(), "verismith") {
		t.Errorf("stdout = %q, want an ERROR line naming the binary", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "results.json")); !os.IsNotExist(err) {
		t.Error("results file written for a failed run")
	}

	logs, err := filepath.Glob(filepath.Join(logDir, "eqbench_*.log"))
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one log file, got %v (err %v)", logs, err)
	}
	data, err := os.ReadFile(logs[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"generator lookup failed"`) ||
		!strings.Contains(string(data), `"component":"cli"`) {
		t.Errorf("log file missing the CLI error record: %s", data)
	}
}

func TestReportError_PrintsToolStderr(t *testing.T) {
	stderr := "Proving miter.\nERROR: solver out of memory"
	err := fmt.Errorf("trial 3: %w",
		process.NewCommandError("yosys -c equiv.ys.tcl", 134, stderr, nil))

	var out bytes.Buffer
	reportError(ux.NewPrinter(&out, false), err)

	want := "ERROR: trial 3: yosys -c equiv.ys.tcl (exit 134): ERROR: solver out of memory\n" +
		"  Proving miter.\n" +
		"  ERROR: solver out of memory\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	out.Reset()
	reportError(ux.NewPrinter(&out, false), errors.New("num_workers must be a positive integer"))
	if out.String() != "ERROR: num_workers must be a positive integer\n" {
		t.Errorf("plain error output = %q", out.String())
	}
}
