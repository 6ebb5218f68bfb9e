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
	"sync"
)

// MemoryStore is a map-backed Store for a single run.
type MemoryStore struct {
	mu  sync.RWMutex
	set map[Fingerprint]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{set: make(map[Fingerprint]struct{})}
}

func (m *MemoryStore) Contains(_ context.Context, fp Fingerprint) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.set[fp]
	return ok, nil
}

func (m *MemoryStore) Insert(_ context.Context, fp Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[fp] = struct{}{}
	return nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.set), nil
}

func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
