// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package job enumerates the sweep's execution units.
//
// A Descriptor names one simulator run: a benchmark, a predictor
// configuration, the argv to launch, and where its log goes. The
// Generator builds the full benchmark × family × size cross-product.
package job

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/bpsweep/services/sweep/predictor"
)

// =============================================================================
// KEY
// =============================================================================

// Key identifies one cell of the sweep: a family, a benchmark and, for
// table-backed families, a size.
type Key struct {
	Family    predictor.Family `json:"family" yaml:"family"`
	Benchmark string           `json:"benchmark" yaml:"benchmark"`
	Size      int              `json:"size,omitempty" yaml:"size,omitempty"`
}

// String renders the key as family/benchmark[/size]. An empty benchmark
// (a whole family/size group) renders as "*".
func (k Key) String() string {
	bench := k.Benchmark
	if bench == "" {
		bench = "*"
	}
	if k.Size == 0 {
		return string(k.Family) + "/" + bench
	}
	return string(k.Family) + "/" + bench + "/" + strconv.Itoa(k.Size)
}

// Less orders keys by family (canonical order), benchmark, then size.
func (k Key) Less(o Key) bool {
	if k.Family != o.Family {
		return k.Family.Order() < o.Family.Order()
	}
	if k.Benchmark != o.Benchmark {
		return k.Benchmark < o.Benchmark
	}
	return k.Size < o.Size
}

// =============================================================================
// DESCRIPTOR
// =============================================================================

// Descriptor describes one simulator invocation.
//
// Descriptors are values; nothing in this module mutates one after the
// Generator returns it. Command is argv form (no shell).
type Descriptor struct {
	Benchmark  string         `json:"benchmark" yaml:"benchmark"`
	Predictor  predictor.Spec `json:"predictor"`
	Command    []string       `json:"command"`
	LogPath    string         `json:"log_path"`
	ScratchDir string         `json:"scratch_dir"`
}

// Key returns the cell this descriptor fills.
func (d Descriptor) Key() Key {
	return Key{
		Family:    d.Predictor.Family,
		Benchmark: d.Benchmark,
		Size:      d.Predictor.Size,
	}
}

// Name returns <benchmark>_<label>, the stem of the log file name.
func (d Descriptor) Name() string {
	return d.Benchmark + "_" + d.Predictor.Label()
}

// CommandLine renders Command for display, quoting arguments that
// contain whitespace or shell metacharacters.
func (d Descriptor) CommandLine() string {
	parts := make([]string, len(d.Command))
	for i, arg := range d.Command {
		parts[i] = quoteArg(arg)
	}
	return strings.Join(parts, " ")
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.Name(), d.Key())
}

func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$`&|;<>()*?") {
		return s
	}
	return strconv.Quote(s)
}
