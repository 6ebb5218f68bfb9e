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
	"fmt"
	"regexp"
)

// envVarKeyPattern matches POSIX environment variable names.
var envVarKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidEnvVarKey is returned when an environment key is malformed.
var ErrInvalidEnvVarKey = errors.New("invalid environment variable key")

// =============================================================================
// EnvVar Type
// =============================================================================

// EnvVar is a single environment variable passed to a tool.
//
// The yosys scripts are driven entirely through the environment
// (VERILOG_INPUT, VERILOG_OUTPUT, TOP_MODULE and friends).
type EnvVar struct {
	Key   string
	Value string
}

// Validate checks that the key is a valid POSIX variable name.
func (e EnvVar) Validate() error {
	if !envVarKeyPattern.MatchString(e.Key) {
		return fmt.Errorf("%w: %q must match pattern [a-zA-Z_][a-zA-Z0-9_]*", ErrInvalidEnvVarKey, e.Key)
	}
	return nil
}

// String returns the KEY=value form used by os/exec.
func (e EnvVar) String() string {
	return e.Key + "=" + e.Value
}

// =============================================================================
// EnvVars Type
// =============================================================================

// EnvVars is a validated, ordered set of environment variables.
//
// Setting an existing key replaces its value in place, so ToSlice output
// is stable and duplicate keys never reach the child process.
//
// # Thread Safety
//
// EnvVars is NOT thread-safe. Each tool invocation builds its own.
type EnvVars struct {
	vars  []EnvVar
	index map[string]int
}

// NewEnvVars creates a validated collection.
//
// # Outputs
//
//   - *EnvVars: The collection
//   - error: ErrInvalidEnvVarKey (wrapped) for the first malformed key
func NewEnvVars(vars ...EnvVar) (*EnvVars, error) {
	e := &EnvVars{index: make(map[string]int, len(vars))}
	for _, v := range vars {
		if err := e.Set(v.Key, v.Value); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Set adds or replaces a variable.
func (e *EnvVars) Set(key, value string) error {
	v := EnvVar{Key: key, Value: value}
	if err := v.Validate(); err != nil {
		return err
	}
	if e.index == nil {
		e.index = make(map[string]int)
	}
	if i, ok := e.index[key]; ok {
		e.vars[i].Value = value
		return nil
	}
	e.index[key] = len(e.vars)
	e.vars = append(e.vars, v)
	return nil
}

// Get returns the value for key and whether it is set.
func (e *EnvVars) Get(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	i, ok := e.index[key]
	if !ok {
		return "", false
	}
	return e.vars[i].Value, true
}

// Len returns the number of variables.
func (e *EnvVars) Len() int {
	if e == nil {
		return 0
	}
	return len(e.vars)
}

// ToSlice returns the variables as KEY=value strings in insertion order.
func (e *EnvVars) ToSlice() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.vars))
	for _, v := range e.vars {
		out = append(out, v.String())
	}
	return out
}

