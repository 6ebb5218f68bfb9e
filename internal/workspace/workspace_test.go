// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankjinn/mirtl/internal/process"
	"github.com/frankjinn/mirtl/internal/registry"
)

func TestOpen_CreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tmp")

	ws, err := Open(root)
	require.NoError(t, err)
	defer ws.Close()

	for _, dir := range []string{DesignsDir, PreparedDir, LogsDir} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, PreparedDir), ws.PreparedDir())
}

func TestPaths_ArePartitioned(t *testing.T) {
	ws, err := Open(filepath.Join(t.TempDir(), "tmp"))
	require.NoError(t, err)
	defer ws.Close()

	fp := registry.Fingerprint("00000000deadbeef")
	assert.Equal(t, filepath.Join(ws.Root(), "designs", "design_3_00000000deadbeef.v"), ws.DesignPath(3, fp))
	assert.Equal(t, filepath.Join(ws.Root(), "designs", "design_synthesized_3_00000000deadbeef.v"), ws.SynthesizedPath(3, fp))
	assert.Equal(t, filepath.Join(ws.Root(), "logs", "synth_3_00000000deadbeef.log"), ws.SynthLogPath(3, fp))
	assert.NotEqual(t, ws.DesignPath(3, fp), ws.DesignPath(4, fp))
}

func TestWriteDesign(t *testing.T) {
	ws, err := Open(filepath.Join(t.TempDir(), "tmp"))
	require.NoError(t, err)
	defer ws.Close()

	path, err := ws.WriteDesign(0, registry.FingerprintOf("x"), "module top; endmodule")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "module top; endmodule", string(data))
}

func TestClose_RemovesTreeAndReleasesLock(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tmp")
	ws, err := Open(root)
	require.NoError(t, err)

	_, err = ws.WriteDesign(1, registry.FingerprintOf("y"), "text")
	require.NoError(t, err)

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close(), "Close should be idempotent")

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err), "workspace root should be removed")
	_, err = os.Stat(root + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file should be removed")
	entries, err := os.ReadDir(filepath.Dir(root))
	require.NoError(t, err)
	assert.Empty(t, entries, "Close should leave nothing beside the root")

	// A new run can take the same root.
	again, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestOpen_Contention(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tmp")
	first, err := Open(root)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(root)
	var held *process.ErrLockHeld
	assert.ErrorAs(t, err, &held)
}

func TestOpen_EmptyRoot(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
