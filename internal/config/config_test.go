// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.MaxCells != 10000 || cfg.Timeout != 5*time.Second {
		t.Errorf("defaults = %d cells, %s timeout", cfg.MaxCells, cfg.Timeout)
	}
	if cfg.ResultsPath != "performance_results.json" {
		t.Errorf("ResultsPath = %q", cfg.ResultsPath)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqbench.yaml")
	data := `
max_cells: 500
timeout: 900s
scripts:
  equiv: custom_equiv.ys.tcl
telemetry:
  trace_exporter: stdout
influx:
  url: http://localhost:8086
  org: bench
  bucket: trials
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.MaxCells != 500 || cfg.Timeout != 900*time.Second {
		t.Errorf("overrides not applied: %d cells, %s", cfg.MaxCells, cfg.Timeout)
	}
	if cfg.Scripts.Equiv != "custom_equiv.ys.tcl" || cfg.Scripts.Stats != "stats.ys.tcl" {
		t.Errorf("Scripts = %+v, want partial override", cfg.Scripts)
	}
	if cfg.Telemetry.TraceExporter != "stdout" || cfg.Telemetry.ServiceName != "eqbench" {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
	if !cfg.Influx.Enabled() || cfg.GCS.Enabled() {
		t.Errorf("sinks: influx %v, gcs %v", cfg.Influx.Enabled(), cfg.GCS.Enabled())
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) should fail")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("max_cells: [1, 2\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("Load(malformed) should fail")
	}

	cfg, err := Load("")
	if err != nil || cfg.GeneratorName != "verismith" {
		t.Errorf("Load(\"\") = %+v, %v", cfg, err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "Timeout"},
		{"negative cells", func(c *Config) { c.MaxCells = -1 }, "MaxCells"},
		{"no yosys", func(c *Config) { c.Yosys = "" }, "Yosys"},
		{"no equiv script", func(c *Config) { c.Scripts.Equiv = "" }, "Equiv"},
		{"bad exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }, "TraceExporter"},
		{"influx without bucket", func(c *Config) { c.Influx.URL = "http://localhost:8086"; c.Influx.Org = "o" }, "Bucket"},
		{"negative rate", func(c *Config) { c.GeneratorRate = -1 }, "GeneratorRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestFindBinary(t *testing.T) {
	root := t.TempDir()
	mkfile := func(rel string) string {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		return p
	}

	if _, err := FindBinary(root, "verismith"); !errors.Is(err, ErrBinaryNotFound) {
		t.Errorf("empty root: error = %v, want ErrBinaryNotFound", err)
	}

	want := mkfile("dist-newstyle/build/x86_64-linux/verismith-1.0/x/verismith/build/verismith/verismith")
	mkfile("dist-newstyle/verismith.cabal")
	got, err := FindBinary(root, "verismith")
	if err != nil {
		t.Fatalf("FindBinary() error = %v", err)
	}
	if got != want {
		t.Errorf("FindBinary() = %q, want %q", got, want)
	}

	mkfile("other/verismith")
	if _, err := FindBinary(root, "verismith"); !errors.Is(err, ErrBinaryAmbiguous) {
		t.Errorf("two matches: error = %v, want ErrBinaryAmbiguous", err)
	}

	if _, err := FindBinary(filepath.Join(root, "nope"), "verismith"); err == nil {
		t.Error("missing root should fail")
	}
}
