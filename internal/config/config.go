// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the eqbench configuration file.
//
// Values come from three layers, later ones winning: Default(), the YAML
// file named by --config, then command-line flags (applied by the CLI).
// Validate runs once after all layers are merged.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/frankjinn/mirtl/internal/report"
	"github.com/frankjinn/mirtl/internal/telemetry"
	"github.com/frankjinn/mirtl/internal/trial"
)

// Scripts names the yosys scripts, relative to the working directory.
type Scripts struct {
	Stats string `yaml:"stats" validate:"required"`
	Synth string `yaml:"synth" validate:"required"`
	Equiv string `yaml:"equiv" validate:"required"`
}

// Config is the full harness configuration.
type Config struct {
	MaxCells  int           `yaml:"max_cells" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	TopModule string        `yaml:"top_module" validate:"required"`

	// GeneratorName is the file name searched for under the generator
	// root.
	GeneratorName string   `yaml:"generator_name" validate:"required"`
	GeneratorArgs []string `yaml:"generator_args"`

	Yosys   string  `yaml:"yosys" validate:"required"`
	Scripts Scripts `yaml:"scripts"`

	// Workdir is the scratch root; it is removed at the end of the run.
	Workdir     string `yaml:"workdir" validate:"required"`
	ResultsPath string `yaml:"results_path" validate:"required"`
	SummaryPath string `yaml:"summary_path"`

	// RegistryDir, when set, persists fingerprints in badger across runs.
	RegistryDir string `yaml:"registry_dir"`

	MaxAttempts   int     `yaml:"max_attempts" validate:"gte=0"`
	GeneratorRate float64 `yaml:"generator_rate" validate:"gte=0"`

	Telemetry telemetry.Config    `yaml:"telemetry"`
	Influx    report.InfluxConfig `yaml:"influx"`
	GCS       report.GCSConfig    `yaml:"gcs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxCells:      trial.DefaultMaxCells,
		Timeout:       trial.DefaultTimeout,
		TopModule:     "top",
		GeneratorName: "verismith",
		GeneratorArgs: []string{"generate"},
		Yosys:         "yosys",
		Scripts: Scripts{
			Stats: "stats.ys.tcl",
			Synth: "synthesize.ys.tcl",
			Equiv: "equivtest.ys.tcl",
		},
		Workdir:     "tmp",
		ResultsPath: report.DefaultResultsFile,
		Telemetry:   telemetry.DefaultConfig(),
	}
}

// Load reads path over Default(). An empty path returns the defaults.
// The result is not validated; call Validate after applying overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s: failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
