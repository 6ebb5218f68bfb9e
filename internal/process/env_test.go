// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"errors"
	"reflect"
	"testing"
)

func TestEnvVar_Validate(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"VERILOG_INPUT", false},
		{"_private", false},
		{"TOP_MODULE2", false},
		{"", true},
		{"2FAST", true},
		{"HAS-DASH", true},
		{"HAS SPACE", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := EnvVar{Key: tt.key}.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEnvVarKey) {
				t.Errorf("error %v does not wrap ErrInvalidEnvVarKey", err)
			}
		})
	}
}

func TestNewEnvVars_RejectsInvalid(t *testing.T) {
	_, err := NewEnvVars(EnvVar{Key: "OK", Value: "1"}, EnvVar{Key: "bad-key", Value: "2"})
	if !errors.Is(err, ErrInvalidEnvVarKey) {
		t.Errorf("NewEnvVars() error = %v, want ErrInvalidEnvVarKey", err)
	}
}

func TestEnvVars_SetReplacesInPlace(t *testing.T) {
	env := mustEnv(t,
		EnvVar{Key: "VERILOG_INPUT", Value: "a.v"},
		EnvVar{Key: "TOP_MODULE", Value: "top"},
	)
	if err := env.Set("VERILOG_INPUT", "b.v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	want := []string{"VERILOG_INPUT=b.v", "TOP_MODULE=top"}
	if got := env.ToSlice(); !reflect.DeepEqual(got, want) {
		t.Errorf("ToSlice() = %v, want %v", got, want)
	}
	if v, ok := env.Get("VERILOG_INPUT"); !ok || v != "b.v" {
		t.Errorf("Get() = %q, %v", v, ok)
	}
	if env.Len() != 2 {
		t.Errorf("Len() = %d, want 2", env.Len())
	}
}

func TestEnvVars_NilReceiver(t *testing.T) {
	var env *EnvVars
	if env.Len() != 0 || env.ToSlice() != nil {
		t.Error("nil EnvVars should behave as empty")
	}
	if _, ok := env.Get("X"); ok {
		t.Error("Get on nil EnvVars reported a value")
	}
}

func mustEnv(t *testing.T, vars ...EnvVar) *EnvVars {
	t.Helper()
	env, err := NewEnvVars(vars...)
	if err != nil {
		t.Fatalf("NewEnvVars() error = %v", err)
	}
	return env
}
