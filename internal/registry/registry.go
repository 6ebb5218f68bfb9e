// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry deduplicates generated designs across a batch.
//
// Every worker draws designs from the same random generator, which can
// repeat itself. The Registry guarantees that a given design text is
// accepted at most once: check and insert happen inside one critical
// section, so two workers racing on the same fingerprint cannot both win.
//
// The membership set lives behind the Store interface. MemoryStore covers
// a single run; BadgerStore persists fingerprints so a resumed campaign
// keeps skipping designs it has already measured.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// ErrClosed is returned by TryRegister after Close.
var ErrClosed = errors.New("registry is closed")

// Fingerprint identifies a design by content: the xxHash64 of its source
// text as 16 lowercase hex digits.
type Fingerprint string

// FingerprintOf hashes design text. Equal texts always map to the same
// fingerprint, across processes and runs.
func FingerprintOf(text string) Fingerprint {
	return Fingerprint(fmt.Sprintf("%016x", xxhash.Sum64String(text)))
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return string(f)
}

// Store is a set of fingerprints.
//
// Implementations need not be safe for concurrent check-then-insert; the
// Registry serializes access.
type Store interface {
	// Contains reports whether fp is in the set.
	Contains(ctx context.Context, fp Fingerprint) (bool, error)

	// Insert adds fp to the set.
	Insert(ctx context.Context, fp Fingerprint) error

	// Count returns the number of fingerprints in the set.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// Stats counts registry decisions.
type Stats struct {
	Accepted   int64
	Duplicates int64
}

// Registry is the lock-guarded set of accepted design fingerprints.
//
// # Thread Safety
//
// Safe for concurrent use by all trial workers.
type Registry struct {
	mu     sync.Mutex
	store  Store
	closed bool

	accepted   atomic.Int64
	duplicates atomic.Int64
}

// New creates a Registry backed by store. A nil store means a fresh
// MemoryStore.
func New(store Store) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{store: store}
}

// TryRegister atomically inserts fp if it is absent.
//
// # Outputs
//
//   - bool: true if fp was newly accepted, false if it is a duplicate
//   - error: Store failures, or ErrClosed
func (r *Registry) TryRegister(ctx context.Context, fp Fingerprint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}

	seen, err := r.store.Contains(ctx, fp)
	if err != nil {
		return false, fmt.Errorf("registry lookup %s: %w", fp, err)
	}
	if seen {
		r.duplicates.Add(1)
		return false, nil
	}
	if err := r.store.Insert(ctx, fp); err != nil {
		return false, fmt.Errorf("registry insert %s: %w", fp, err)
	}
	r.accepted.Add(1)
	return true, nil
}

// Len returns the number of fingerprints held by the store, including
// any persisted by earlier runs.
func (r *Registry) Len(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	return r.store.Count(ctx)
}

// Stats returns this run's accept/duplicate counts.
func (r *Registry) Stats() Stats {
	return Stats{
		Accepted:   r.accepted.Load(),
		Duplicates: r.duplicates.Load(),
	}
}

// Close closes the store. Safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.store.Close()
}
