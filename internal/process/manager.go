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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultWaitDelay bounds how long Wait blocks on output pipes after the
// process group has been killed.
const DefaultWaitDelay = 2 * time.Second

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Command describes one external tool invocation.
type Command struct {
	// Name is the executable name or path.
	Name string

	// Args are the command arguments.
	Args []string

	// Env is layered over the parent environment. May be nil.
	Env *EnvVars

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Timeout is the wall-clock limit. Zero means no limit.
	Timeout time.Duration
}

// String returns the command line for logs and errors.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a Command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int

	// Elapsed is measured from process start to process exit (or kill).
	Elapsed time.Duration

	// TimedOut is true when the process was killed at Command.Timeout.
	TimedOut bool
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessManager handles external process execution.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Every trial worker
// shares one ProcessManager.
type ProcessManager interface {
	// Run executes a command synchronously.
	//
	// # Description
	//
	// Starts the command in its own process group, captures stdout and
	// stderr, and waits for it to exit.
	//
	// # Outputs
	//
	//   - *Result: Populated whenever the process started
	//   - error: nil on exit 0 and on timeout; *CommandError on non-zero
	//     exit or start failure; the context error if ctx was cancelled
	//
	// # Examples
	//
	//	res, err := pm.Run(ctx, Command{Name: "yosys", Args: []string{"-c", script}, Timeout: 5 * time.Second})
	//	if err != nil {
	//	    return err
	//	}
	//	if res.TimedOut {
	//	    // report TIMEOUT
	//	}
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// -----------------------------------------------------------------------------
// Production Implementation
// -----------------------------------------------------------------------------

// DefaultProcessManager implements ProcessManager using os/exec.
//
// This is the production implementation that executes real processes on the
// system. Use MockProcessManager in tests instead.
type DefaultProcessManager struct {
	// WaitDelay is passed to exec.Cmd.WaitDelay. Zero uses DefaultWaitDelay.
	WaitDelay time.Duration

	// afterWait runs between Wait returning and classification. Tests
	// use it to let the deadline pass after the process has exited.
	afterWait func()
}

// NewDefaultProcessManager creates a new DefaultProcessManager.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{WaitDelay: DefaultWaitDelay}
}

// Run executes a command, killing its process group on timeout.
func (pm *DefaultProcessManager) Run(ctx context.Context, c Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env.ToSlice()...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The tool and anything it forks share one group so a single kill
	// reaches the solver yosys spawned, not just yosys itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Set only when our deadline actually killed the group. A deadline
	// that passes after a non-zero exit is not a timeout.
	var killed atomic.Bool
	cmd.Cancel = func() error {
		err := killGroup(cmd.Process)
		if err == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			killed.Store(true)
		}
		return err
	}
	cmd.WaitDelay = pm.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	if err := cmd.Start(); err != nil {
		return nil, NewCommandError(c.String(), -1, "", fmt.Errorf("start: %w", err))
	}
	start := time.Now()
	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	if pm.afterWait != nil {
		pm.afterWait()
	}

	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(cmd, waitErr),
		Elapsed:  elapsed,
	}

	// Parent cancellation wins over our own deadline.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if killed.Load() {
		res.TimedOut = true
		return res, nil
	}
	if waitErr != nil {
		return res, NewCommandError(c.String(), res.ExitCode, stderr.String(), waitErr)
	}
	return res, nil
}

// killGroup sends SIGKILL to the process group led by p.
func killGroup(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	err := unix.Kill(-p.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

// exitCode extracts the exit status, -1 if the process was signalled.
func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// Compile-time interface compliance check.
var _ ProcessManager = (*DefaultProcessManager)(nil)
