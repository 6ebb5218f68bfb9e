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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces fingerprint keys so the directory can carry other
// campaign state later without a migration.
var keyPrefix = []byte("fp/")

// BadgerConfig holds configuration for a BadgerStore.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes. A fingerprint acknowledged
	// to a worker should survive a crash of the harness.
	// Default: true
	SyncWrites bool

	// Logger receives BadgerDB's internal logs.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns a persistent configuration rooted at path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:       path,
		SyncWrites: true,
	}
}

// BadgerStore is a Store persisted in BadgerDB.
//
// Keys are "fp/<fingerprint>"; values carry the first-seen time in RFC 3339
// for campaign forensics.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens (creating if needed) a fingerprint store.
//
// Description:
//
//	Opens BadgerDB at cfg.Path, or in memory if cfg.InMemory is true.
//	Creates the directory if it doesn't exist.
//
// Outputs:
//
//	*BadgerStore - Caller must Close() it (normally via Registry.Close).
//	error - Non-nil if the path is missing or the database cannot open,
//	        for example because another run holds its directory lock.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent registry")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create registry directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger registry: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemoryBadgerStore opens a non-persistent BadgerStore for tests.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	return OpenBadgerStore(BadgerConfig{InMemory: true})
}

func fingerprintKey(fp Fingerprint) []byte {
	key := make([]byte, 0, len(keyPrefix)+len(fp))
	key = append(key, keyPrefix...)
	return append(key, fp...)
}

func (s *BadgerStore) Contains(_ context.Context, fp Fingerprint) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(fingerprintKey(fp))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *BadgerStore) Insert(_ context.Context, fp Fingerprint) error {
	seenAt := []byte(time.Now().UTC().Format(time.RFC3339))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fingerprintKey(fp), seenAt)
	})
}

// FirstSeen returns when fp was first registered.
func (s *BadgerStore) FirstSeen(fp Fingerprint) (time.Time, error) {
	var seen time.Time
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fingerprintKey(fp))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			t, err := time.Parse(time.RFC3339, string(val))
			if err != nil {
				return err
			}
			seen = t
			return nil
		})
	})
	return seen, err
}

func (s *BadgerStore) Count(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
