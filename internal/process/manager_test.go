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
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// -----------------------------------------------------------------------------
// DefaultProcessManager Tests
// -----------------------------------------------------------------------------

func TestDefaultProcessManager_Run_CapturesOutput(t *testing.T) {
	requireShell(t)
	pm := NewDefaultProcessManager()

	res, err := pm.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "out" {
		t.Errorf("Stdout = %q, want %q", got, "out")
	}
	if got := strings.TrimSpace(string(res.Stderr)); got != "err" {
		t.Errorf("Stderr = %q, want %q", got, "err")
	}
	if res.ExitCode != 0 || res.TimedOut {
		t.Errorf("ExitCode = %d, TimedOut = %v", res.ExitCode, res.TimedOut)
	}
}

func TestDefaultProcessManager_Run_PassesEnv(t *testing.T) {
	requireShell(t)
	pm := NewDefaultProcessManager()

	env := mustEnv(t, EnvVar{Key: "VERILOG_INPUT", Value: "/tmp/design.v"})
	res, err := pm.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "printf %s \"$VERILOG_INPUT\""},
		Env:  env,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != "/tmp/design.v" {
		t.Errorf("Stdout = %q, want env value", res.Stdout)
	}
}

func TestDefaultProcessManager_Run_NonZeroExit(t *testing.T) {
	requireShell(t)
	pm := NewDefaultProcessManager()

	res, err := pm.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo 'ERROR: syntax error' >&2; exit 3"},
	})
	if err == nil {
		t.Fatal("Run() error = nil, want CommandError")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error type = %T, want *CommandError", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", cmdErr.ExitCode)
	}
	if cmdErr.Stderr != "ERROR: syntax error" {
		t.Errorf("Stderr = %q", cmdErr.Stderr)
	}
	if res == nil || res.ExitCode != 3 {
		t.Errorf("Result = %+v, want populated result with exit 3", res)
	}
}

func TestDefaultProcessManager_Run_StartFailure(t *testing.T) {
	pm := NewDefaultProcessManager()

	res, err := pm.Run(context.Background(), Command{Name: "/nonexistent/eqbench-tool"})
	if err == nil {
		t.Fatal("Run() error = nil, want start failure")
	}
	if res != nil {
		t.Errorf("Result = %+v, want nil", res)
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode != -1 {
		t.Errorf("error = %v, want CommandError with exit -1", err)
	}
}

func TestDefaultProcessManager_Run_TimeoutKillsProcessGroup(t *testing.T) {
	requireShell(t)
	pm := NewDefaultProcessManager()

	// The child sleep inherits the group; without a group kill the pipe
	// stays open and Wait would block until WaitDelay.
	start := time.Now()
	res, err := pm.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30 & sleep 30"},
		Timeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil on timeout", err)
	}
	if !res.TimedOut {
		t.Fatal("TimedOut = false, want true")
	}
	if wall := time.Since(start); wall > 5*time.Second {
		t.Errorf("Run() took %v, process group was not killed promptly", wall)
	}
}

func TestDefaultProcessManager_Run_ExitBeforeDeadlineIsNotTimeout(t *testing.T) {
	requireShell(t)
	pm := NewDefaultProcessManager()
	// The tool fails well inside the limit, but the deadline passes before
	// the result is classified.
	pm.afterWait = func() { time.Sleep(300 * time.Millisecond) }

	res, err := pm.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "echo 'ERROR: solver crashed' >&2; exit 3"},
		Timeout: 100 * time.Millisecond,
	})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run() error = %v, want *CommandError", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", cmdErr.ExitCode)
	}
	if res == nil || res.TimedOut {
		t.Errorf("Result = %+v, want a non-timeout result", res)
	}
}

func TestDefaultProcessManager_Run_FinishesBeforeTimeout(t *testing.T) {
	requireShell(t)
	pm := NewDefaultProcessManager()

	res, err := pm.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "exit 0"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.TimedOut {
		t.Error("TimedOut = true for a fast command")
	}
	if res.Elapsed <= 0 || res.Elapsed > 10*time.Second {
		t.Errorf("Elapsed = %v", res.Elapsed)
	}
}

func TestDefaultProcessManager_Run_ParentCancel(t *testing.T) {
	requireShell(t)
	pm := NewDefaultProcessManager()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := pm.Run(ctx, Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 20 * time.Second,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestDefaultProcessManager_Run_CancelledBeforeStart(t *testing.T) {
	pm := NewDefaultProcessManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pm.Run(ctx, Command{Name: "sh"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestCommand_String(t *testing.T) {
	c := Command{Name: "yosys", Args: []string{"-c", "stats.ys.tcl"}}
	if got := c.String(); got != "yosys -c stats.ys.tcl" {
		t.Errorf("String() = %q", got)
	}
	if got := (Command{Name: "verismith"}).String(); got != "verismith" {
		t.Errorf("String() = %q", got)
	}
}

// -----------------------------------------------------------------------------
// MockProcessManager Tests
// -----------------------------------------------------------------------------

func TestMockProcessManager_RecordsCalls(t *testing.T) {
	mock := &MockProcessManager{
		RunFunc: func(ctx context.Context, cmd Command) (*Result, error) {
			return &Result{Stdout: []byte(cmd.Name)}, nil
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mock.Run(context.Background(), Command{Name: "yosys"})
		}()
	}
	wg.Wait()
	_, _ = mock.Run(context.Background(), Command{Name: "verismith"})

	if got := len(mock.GetCalls()); got != 9 {
		t.Errorf("len(GetCalls()) = %d, want 9", got)
	}
	if got := len(mock.CallsTo("yosys")); got != 8 {
		t.Errorf("len(CallsTo(yosys)) = %d, want 8", got)
	}

	mock.Reset()
	if got := len(mock.GetCalls()); got != 0 {
		t.Errorf("after Reset, len(GetCalls()) = %d", got)
	}
}

func TestMockProcessManager_PanicsWithoutRunFunc(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic when RunFunc is nil")
		}
	}()
	mock := &MockProcessManager{}
	_, _ = mock.Run(context.Background(), Command{Name: "yosys"})
}
