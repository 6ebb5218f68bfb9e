// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package process runs external tools and guards the scratch workspace.
//
// Every external program the harness touches (the design generator and
// yosys in its three roles) goes through ProcessManager. Tests swap in
// MockProcessManager so no real toolchain is needed.
//
// # Timeouts
//
// A Command with a positive Timeout is raced against a timer. When the
// timer wins, the whole process group is sent SIGKILL. The tool is not
// asked to stop, so a solver stuck in a tight loop cannot outlive the
// deadline. Expiry is reported through Result.TimedOut, not as an error.
//
// # Workspace Lock
//
// WorkspaceLock is an flock(2) advisory lock that keeps two harness runs
// from sharing (and then deleting) the same scratch directory.
//
// # Platform Support
//
// Unix only (Linux, macOS). Process groups and flock are not available
// on Windows.
package process
