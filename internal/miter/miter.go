// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package miter builds the equivalence wrapper for a pair of designs.
//
// Given a generated design and its synthesized counterpart, the builder
//
//  1. suffixes the second design's numbered submodules so the two can be
//     compiled together,
//  2. renames the two top modules to top_first and top_second,
//  3. reads the input ports and the y output of top_first,
//  4. emits a top_equiv module driving both tops from the same inputs and
//     exposing their outputs as y_a and y_b.
//
// The scanner is line oriented and only understands the generator's
// output format: one declaration per line, a top module named "top",
// a single output named y. Anything else is a fatal error, not a guess.
package miter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/frankjinn/mirtl/internal/registry"
)

// Names used in the generated wrapper.
const (
	DefaultTop   = "top"
	FirstTop     = "top_first"
	SecondTop    = "top_second"
	EquivTop     = "top_equiv"
	OutputFirst  = "y_a"
	OutputSecond = "y_b"
)

// Wrapper is the equivalence top module.
type Wrapper struct {
	// Inputs in the declaration order of top_first.
	Inputs []Port

	// Output is the y declaration copied from top_first.
	Output string
}

// Render returns the Verilog text of the wrapper.
//
// Both instances bind ports by name in the same order, so a difference
// between y_a and y_b can only come from the designs themselves.
func (w *Wrapper) Render() string {
	names := make([]string, 0, len(w.Inputs))
	for _, p := range w.Inputs {
		names = append(names, p.Name)
	}

	header := []string{OutputFirst, OutputSecond}
	header = append(header, names...)

	var b strings.Builder
	fmt.Fprintf(&b, "module %s (%s);\n", EquivTop, strings.Join(header, ", "))
	b.WriteString(renameOutput(w.Output, OutputFirst) + "\n")
	b.WriteString(renameOutput(w.Output, OutputSecond) + "\n")
	for _, p := range w.Inputs {
		b.WriteString(p.Decl() + "\n")
	}
	b.WriteString(instance(FirstTop, OutputFirst, names) + "\n")
	b.WriteString(instance(SecondTop, OutputSecond, names) + "\n")
	b.WriteString("endmodule")
	return b.String()
}

func instance(module, output string, inputs []string) string {
	bindings := make([]string, 0, len(inputs)+1)
	bindings = append(bindings, fmt.Sprintf(".y(%s)", output))
	for _, name := range inputs {
		bindings = append(bindings, fmt.Sprintf(".%s(%s)", name, name))
	}
	return fmt.Sprintf("%s %s_inst (%s);", module, module, strings.Join(bindings, ", "))
}

// Builder assembles wrappers for designs whose top module is Top.
type Builder struct {
	// Top is the top module name of both input designs.
	// Default: "top"
	Top string
}

// Result holds the three texts handed to the equivalence checker.
type Result struct {
	First   string
	Second  string
	Wrapper *Wrapper
}

func (b Builder) top() string {
	if b.Top == "" {
		return DefaultTop
	}
	return b.Top
}

// Build transforms first and second and derives the wrapper.
//
// # Outputs
//
//   - *Result: Renamed designs and the wrapper
//   - error: ErrTopNotFound or ErrOutputNotFound (wrapped)
func (b Builder) Build(first, second string) (*Result, error) {
	firstOut := RenameTop(first, b.top(), FirstTop)
	secondOut := RenameTop(RenameSubmodules(second), b.top(), SecondTop)

	// The second top must exist too, or the checker would fail on an
	// unresolved instance.
	if _, err := topBody(secondOut, SecondTop); err != nil {
		return nil, fmt.Errorf("second design: %w", err)
	}

	inputs, err := ExtractInputs(firstOut, FirstTop)
	if err != nil {
		return nil, fmt.Errorf("first design: %w", err)
	}
	output, err := FindOutput(firstOut, FirstTop)
	if err != nil {
		return nil, fmt.Errorf("first design: %w", err)
	}

	return &Result{
		First:   firstOut,
		Second:  secondOut,
		Wrapper: &Wrapper{Inputs: inputs, Output: output},
	}, nil
}

// Files are the prepared checker inputs.
type Files struct {
	First  string
	Second string
	Top    string
}

// Prepare builds the wrapper and writes equiv_<hash>_0.v,
// equiv_<hash>_1.v and equiv_<hash>_top.v into dir, where hash is the
// fingerprint of the first design text.
func (b Builder) Prepare(dir, first, second string) (Files, error) {
	res, err := b.Build(first, second)
	if err != nil {
		return Files{}, err
	}

	hash := registry.FingerprintOf(first)
	files := Files{
		First:  filepath.Join(dir, fmt.Sprintf("equiv_%s_0.v", hash)),
		Second: filepath.Join(dir, fmt.Sprintf("equiv_%s_1.v", hash)),
		Top:    filepath.Join(dir, fmt.Sprintf("equiv_%s_top.v", hash)),
	}

	for _, f := range []struct{ path, text string }{
		{files.First, res.First},
		{files.Second, res.Second},
		{files.Top, res.Wrapper.Render()},
	} {
		if err := os.WriteFile(f.path, []byte(f.text), 0o644); err != nil {
			return Files{}, fmt.Errorf("write %s: %w", f.path, err)
		}
	}
	return files, nil
}

// PrepareFiles reads the two designs from disk and calls Prepare.
func (b Builder) PrepareFiles(dir, firstPath, secondPath string) (Files, error) {
	first, err := os.ReadFile(firstPath)
	if err != nil {
		return Files{}, fmt.Errorf("read first design: %w", err)
	}
	second, err := os.ReadFile(secondPath)
	if err != nil {
		return Files{}, fmt.Errorf("read second design: %w", err)
	}
	return b.Prepare(dir, string(first), string(second))
}
