// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintOf(t *testing.T) {
	a := FingerprintOf("module top(y, a);\nendmodule\n")
	b := FingerprintOf("module top(y, a);\nendmodule\n")
	c := FingerprintOf("module top(y, b);\nendmodule\n")

	assert.Equal(t, a, b, "fingerprint must be deterministic")
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^[0-9a-f]{16}$`, a.String())

	// Known xxHash64 value of the empty input keeps the rendering stable.
	assert.Equal(t, Fingerprint("ef46db3751d8e999"), FingerprintOf(""))
}

func TestRegistry_TryRegister(t *testing.T) {
	ctx := context.Background()
	r := New(nil)
	defer r.Close()

	fp := FingerprintOf("design")

	ok, err := r.TryRegister(ctx, fp)
	require.NoError(t, err)
	assert.True(t, ok, "first registration should be accepted")

	ok, err = r.TryRegister(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok, "second registration should be a duplicate")

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, Stats{Accepted: 1, Duplicates: 1}, r.Stats())
}

// Many workers racing on a small fingerprint space must accept each
// fingerprint exactly once.
func TestRegistry_ConcurrentDedup(t *testing.T) {
	for _, tc := range []struct {
		name  string
		store func(t *testing.T) Store
	}{
		{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
		{"badger", func(t *testing.T) Store {
			s, err := OpenInMemoryBadgerStore()
			require.NoError(t, err)
			return s
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			r := New(tc.store(t))
			defer r.Close()

			const workers = 16
			const designs = 10
			var (
				wg       sync.WaitGroup
				accepted [designs]atomic.Int32
			)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for d := 0; d < designs; d++ {
						ok, err := r.TryRegister(ctx, FingerprintOf(fmt.Sprintf("design-%d", d)))
						if err != nil {
							t.Error(err)
							return
						}
						if ok {
							accepted[d].Add(1)
						}
					}
				}()
			}
			wg.Wait()

			for d := range accepted {
				assert.Equal(t, int32(1), accepted[d].Load(), "design %d", d)
			}
			stats := r.Stats()
			assert.Equal(t, int64(designs), stats.Accepted)
			assert.Equal(t, int64(designs*(workers-1)), stats.Duplicates)
		})
	}
}

func TestRegistry_Closed(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "Close should be idempotent")

	_, err := r.TryRegister(context.Background(), FingerprintOf("x"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.Len(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fp := FingerprintOf("persisted design")

	store, err := OpenBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	r := New(store)
	ok, err := r.TryRegister(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.Close())

	store2, err := OpenBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	r2 := New(store2)
	defer r2.Close()

	ok, err = r2.TryRegister(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok, "fingerprint from an earlier run should be a duplicate")

	seen, err := store2.FirstSeen(fp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), seen, time.Minute)

	n, err := r2.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}
