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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// maxAcquireAttempts bounds the open/flock retries in Acquire.
const maxAcquireAttempts = 8

// WorkspaceLock is an exclusive advisory lock on a scratch directory.
//
// # Description
//
// Uses flock(2). Two harness runs pointed at the same workspace would
// delete each other's designs at cleanup, so the second run must fail
// fast instead.
//
// # How It Works
//
//  1. Opens (or creates) the lock file "<root>.lock" beside the workspace
//  2. Attempts a non-blocking exclusive flock
//  3. Checks the path still names the locked file, retrying if a
//     releasing run unlinked it in between
//  4. Writes our PID into the lock file for diagnostics
//
// The lock file lives outside the workspace because the workspace tree
// is removed at cleanup while the lock is still held. Release unlinks it
// before unlocking, so a finished run leaves nothing behind.
//
// # Thread Safety
//
// WorkspaceLock is NOT safe for concurrent use. The harness acquires and
// releases it from the batch goroutine only.
//
// # Limitations
//
//   - Advisory lock only
//   - NFS and some network filesystems don't support flock properly
type WorkspaceLock struct {
	lockPath string
	lockFile *os.File
	held     bool
}

// NewWorkspaceLock creates a lock guarding the directory root.
//
// The lock is not acquired until Acquire is called.
func NewWorkspaceLock(root string) *WorkspaceLock {
	clean := filepath.Clean(root)
	return &WorkspaceLock{lockPath: clean + ".lock"}
}

// Acquire takes the lock without blocking.
//
// # Outputs
//
//   - error: *ErrLockHeld if another run holds it, other errors on I/O
//     failure, nil if acquired (or already held by us)
func (l *WorkspaceLock) Acquire() error {
	if l.held {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return fmt.Errorf("failed to create lock file %s: %w", l.lockPath, err)
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return &ErrLockHeld{HolderPID: l.readHolderPID(), LockPath: l.lockPath}
			}
			return fmt.Errorf("failed to acquire lock: %w", err)
		}

		if l.stillLinked(f) {
			l.lockFile = f
			break
		}
		// The previous holder unlinked the file between our open and flock.
		f.Close()
		if attempt >= maxAcquireAttempts {
			return fmt.Errorf("lock file %s keeps disappearing", l.lockPath)
		}
	}

	l.held = true

	// Diagnostic only; the flock is what matters.
	_ = l.writePID()
	return nil
}

// Release removes the lock file and releases the lock. Safe to call
// multiple times.
//
// The file is unlinked while the flock is still held. A run that opened
// it just before sees the unlink in Acquire and retries on a fresh file.
func (l *WorkspaceLock) Release() error {
	if !l.held || l.lockFile == nil {
		return nil
	}

	rmErr := os.Remove(l.lockPath)
	if errors.Is(rmErr, os.ErrNotExist) {
		rmErr = nil
	}
	err := unix.Flock(int(l.lockFile.Fd()), unix.LOCK_UN)

	l.lockFile.Close()
	l.lockFile = nil
	l.held = false

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if rmErr != nil {
		return fmt.Errorf("remove lock file: %w", rmErr)
	}
	return nil
}

// stillLinked reports whether the lock path names the open file f.
func (l *WorkspaceLock) stillLinked(f *os.File) bool {
	var open, onDisk unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &open); err != nil {
		return false
	}
	if err := unix.Stat(l.lockPath, &onDisk); err != nil {
		return false
	}
	return open.Dev == onDisk.Dev && open.Ino == onDisk.Ino
}

func (l *WorkspaceLock) writePID() error {
	if err := l.lockFile.Truncate(0); err != nil {
		return err
	}
	_, err := l.lockFile.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	return err
}

func (l *WorkspaceLock) readHolderPID() int {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// ErrLockHeld is returned when the workspace is locked by another run.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

// Error implements the error interface.
func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("workspace is in use by another run (PID %d, lock %s)", e.HolderPID, e.LockPath)
	}
	return fmt.Sprintf("workspace is in use by another run (check: lsof %s)", e.LockPath)
}
