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
	"sync"
)

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// Configure the mock by setting RunFunc before use. If RunFunc is nil and
// Run is called, it panics.
//
// Unlike a plain recording mock, RunFunc is invoked outside the lock so
// concurrent trials do not serialize on the mock.
//
// # Examples
//
//	mock := &MockProcessManager{
//	    RunFunc: func(ctx context.Context, cmd Command) (*Result, error) {
//	        if cmd.Name == "yosys" {
//	            return &Result{Stdout: []byte("Number of cells: 12\n")}, nil
//	        }
//	        return nil, fmt.Errorf("unexpected command: %s", cmd)
//	    },
//	}
type MockProcessManager struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, cmd Command) (*Result, error)

	// Calls records all invocations for verification
	Calls []Command

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// Run records the call and delegates to RunFunc.
func (m *MockProcessManager) Run(ctx context.Context, cmd Command) (*Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, cmd)
	fn := m.RunFunc
	m.mu.Unlock()

	if fn == nil {
		panic("MockProcessManager.RunFunc not set")
	}
	return fn(ctx, cmd)
}

// Reset clears all recorded calls.
func (m *MockProcessManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessManager) GetCalls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Command, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// CallsTo returns the recorded calls whose Name matches name.
func (m *MockProcessManager) CallsTo(name string) []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Command
	for _, c := range m.Calls {
		if c.Name == name {
			result = append(result, c)
		}
	}
	return result
}

var _ ProcessManager = (*MockProcessManager)(nil)
