// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

var (
	// ErrBinaryNotFound is returned when no file matches.
	ErrBinaryNotFound = errors.New("binary not found")

	// ErrBinaryAmbiguous is returned when more than one file matches.
	ErrBinaryAmbiguous = errors.New("binary name is ambiguous")
)

// FindBinary searches root recursively for a file named name and
// returns its absolute path. Exactly one match is required.
func FindBinary(root, name string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}

	var matches []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return err
			}
			// Unreadable subtrees are skipped.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && d.Name() == name {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search %s: %w", abs, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no %q under %s", ErrBinaryNotFound, name, abs)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %d files named %q under %s: %s",
			ErrBinaryAmbiguous, len(matches), name, abs, strings.Join(matches, ", "))
	}
}
