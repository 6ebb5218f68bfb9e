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
	"strings"
)

// maxStderrBytes bounds the stderr kept on a CommandError. yosys can print
// megabytes before failing; the tail is where the error is.
const maxStderrBytes = 4096

// =============================================================================
// CommandError
// =============================================================================

// CommandError represents a failed external command.
//
// # Description
//
// Captures the command line, exit code and standard error of a tool that
// exited non-zero or could not be started. Surfacing these is what makes a
// fatal batch failure diagnosable: "synthesis failed" alone says nothing,
// the yosys stderr says which construct it choked on.
//
// # Fields
//
//   - Command: The command line that was run
//   - ExitCode: Process exit code (-1 if the process never started)
//   - Stderr: Trimmed tail of standard error
//   - Wrapped: The underlying exec error
//
// # Example
//
//	var cmdErr *CommandError
//	if errors.As(err, &cmdErr) {
//	    logger.Error("tool failed", "exit", cmdErr.ExitCode, "stderr", cmdErr.Stderr)
//	}
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Wrapped  error
}

// Error implements the error interface.
//
// Format: "<command> (exit <code>): <last stderr line>" when stderr is
// present, otherwise "<command> (exit <code>): <wrapped error>". The full
// stderr tail stays on the Stderr field; see ExtractStderr.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, lastLine(e.Stderr))
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the wrapped error for errors.Is/As chains.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// NewCommandError creates a CommandError, trimming stderr to its tail.
//
// # Inputs
//
//   - cmd: Command line for context
//   - exitCode: Exit code (-1 if unknown)
//   - stderr: Raw standard error output
//   - wrapped: Underlying error (may be nil)
//
// # Outputs
//
//   - *CommandError: Never nil
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxStderrBytes {
		stderr = "..." + stderr[len(stderr)-maxStderrBytes:]
	}
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   stderr,
		Wrapped:  wrapped,
	}
}

// ExtractStderr walks an error chain and returns the first non-empty
// CommandError stderr, or "" if there is none.
func ExtractStderr(err error) string {
	var cmdErr *CommandError
	for err != nil {
		if errors.As(err, &cmdErr) {
			if cmdErr.Stderr != "" {
				return cmdErr.Stderr
			}
			err = cmdErr.Unwrap()
			continue
		}
		break
	}
	return ""
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
