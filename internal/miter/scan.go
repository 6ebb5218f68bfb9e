// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package miter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrTopNotFound means the named top module has no header line.
	ErrTopNotFound = errors.New("top module not found")

	// ErrOutputNotFound means the top module has no "output wire ... y;"
	// declaration.
	ErrOutputNotFound = errors.New("output declaration for y not found")
)

// RenameSuffix is appended to numbered submodule names of the second
// design.
const RenameSuffix = "_replacedname"

// submodulePattern matches the generator's numbered submodule names.
var submodulePattern = regexp.MustCompile(`module\d+`)

// RenameSubmodules appends RenameSuffix to every module<digits>
// identifier, both definitions and instantiations.
func RenameSubmodules(src string) string {
	return submodulePattern.ReplaceAllString(src, "${0}"+RenameSuffix)
}

// RenameTop renames the definition of module from to module to. Only the
// whole-word module name is matched, so "module top" does not touch
// "module top2".
func RenameTop(src, from, to string) string {
	re := regexp.MustCompile(`\bmodule(\s+)` + regexp.QuoteMeta(from) + `\b`)
	return re.ReplaceAllString(src, "module${1}"+to)
}

// Port is one input declaration of the top module.
type Port struct {
	// Qualifier holds every token before the name, e.g.
	// ["input", "wire", "[3:0]"].
	Qualifier []string

	// Name is the port name without the trailing semicolon.
	Name string
}

// Decl renders the port as a declaration line.
func (p Port) Decl() string {
	return strings.Join(append(append([]string(nil), p.Qualifier...), p.Name), " ") + ";"
}

// topBody returns the lines from the header of module name up to, not
// including, the next endmodule line. Lines are trimmed.
func topBody(src, name string) ([]string, error) {
	lines := strings.Split(src, "\n")
	start := -1
	for i, line := range lines {
		if isModuleHeader(strings.TrimSpace(line), name) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: %q", ErrTopNotFound, name)
	}

	var body []string
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "endmodule") {
			break
		}
		body = append(body, trimmed)
	}
	return body, nil
}

// isModuleHeader reports whether line opens module name.
func isModuleHeader(line, name string) bool {
	rest, ok := strings.CutPrefix(line, "module")
	if !ok {
		return false
	}
	rest = strings.TrimLeft(rest, " \t")
	rest, ok = strings.CutPrefix(rest, name)
	if !ok {
		return false
	}
	return rest == "" || !isIdentChar(rest[0])
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// ExtractInputs returns the input ports of module top in declaration
// order.
//
// Every line of the module that starts with "input" is split on
// whitespace. The last token minus its semicolon is the name and the
// preceding tokens are the qualifier. One declaration per line is
// assumed, as the generator emits.
func ExtractInputs(src, top string) ([]Port, error) {
	body, err := topBody(src, top)
	if err != nil {
		return nil, err
	}

	var ports []Port
	for _, line := range body {
		if !strings.HasPrefix(line, "input") {
			continue
		}
		fields := strings.Fields(line)
		name := strings.TrimSuffix(fields[len(fields)-1], ";")
		ports = append(ports, Port{
			Qualifier: fields[:len(fields)-1],
			Name:      name,
		})
	}
	return ports, nil
}

// FindOutput returns the "output wire ... y;" declaration of module top.
//
// The first "output wire" line of the module must declare y. A module
// without one, or whose first output is something else, fails with
// ErrOutputNotFound.
func FindOutput(src, top string) (string, error) {
	body, err := topBody(src, top)
	if err != nil {
		return "", err
	}

	for _, line := range body {
		if !strings.HasPrefix(line, "output wire") {
			continue
		}
		fields := strings.Fields(line)
		if fields[len(fields)-1] != "y;" {
			return "", fmt.Errorf("%w: module %s declares %q", ErrOutputNotFound, top, line)
		}
		return line, nil
	}
	return "", fmt.Errorf("%w: module %s has no output wire", ErrOutputNotFound, top)
}

// renameOutput rewrites the trailing "y;" of an output declaration.
func renameOutput(decl, name string) string {
	return strings.TrimSuffix(decl, "y;") + name + ";"
}
