// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace owns the scratch directory tree of one batch.
//
// Layout under the root:
//
//	designs/             generated and synthesized designs
//	prepared_for_equiv/  renamed designs and equivalence wrappers
//	logs/                synthesis logs
//
// Every path embeds the workload id and the design fingerprint, so
// concurrent trials never write the same file. The tree is removed once,
// by Close, after all workers have joined.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/frankjinn/mirtl/internal/process"
	"github.com/frankjinn/mirtl/internal/registry"
)

// Subdirectory names.
const (
	DesignsDir  = "designs"
	PreparedDir = "prepared_for_equiv"
	LogsDir     = "logs"
)

// Workspace is an opened, locked scratch tree.
type Workspace struct {
	root   string
	lock   *process.WorkspaceLock
	closed bool
}

// Open locks root and creates the directory tree.
//
// # Outputs
//
//   - *Workspace: Caller must Close() it
//   - error: *process.ErrLockHeld if another run uses root
func Open(root string) (*Workspace, error) {
	if root == "" {
		return nil, errors.New("workspace root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	lock := process.NewWorkspaceLock(abs)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}

	for _, dir := range []string{DesignsDir, PreparedDir, LogsDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			lock.Release()
			return nil, fmt.Errorf("create workspace directory: %w", err)
		}
	}
	return &Workspace{root: abs, lock: lock}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// PreparedDir returns the directory for equivalence inputs.
func (w *Workspace) PreparedDir() string { return filepath.Join(w.root, PreparedDir) }

// DesignPath is where a generated design is stored.
func (w *Workspace) DesignPath(workload int, fp registry.Fingerprint) string {
	return filepath.Join(w.root, DesignsDir, fmt.Sprintf("design_%d_%s.v", workload, fp))
}

// SynthesizedPath is where the synthesized counterpart is stored.
func (w *Workspace) SynthesizedPath(workload int, fp registry.Fingerprint) string {
	return filepath.Join(w.root, DesignsDir, fmt.Sprintf("design_synthesized_%d_%s.v", workload, fp))
}

// SynthLogPath is the synthesis log file.
func (w *Workspace) SynthLogPath(workload int, fp registry.Fingerprint) string {
	return filepath.Join(w.root, LogsDir, fmt.Sprintf("synth_%d_%s.log", workload, fp))
}

// WriteDesign stores a generated design and returns its path.
func (w *Workspace) WriteDesign(workload int, fp registry.Fingerprint, text string) (string, error) {
	path := w.DesignPath(workload, fp)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write design: %w", err)
	}
	return path, nil
}

// Close removes the tree, then releases and deletes the lock file. Safe
// to call more than once.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	removeErr := os.RemoveAll(w.root)
	if removeErr != nil {
		removeErr = fmt.Errorf("remove workspace: %w", removeErr)
	}
	return errors.Join(removeErr, w.lock.Release())
}
