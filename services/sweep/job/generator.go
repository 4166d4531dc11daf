// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package job

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/bpsweep/services/sweep/predictor"
)

// =============================================================================
// GENERATOR CONFIG
// =============================================================================

// GeneratorConfig describes the sweep to enumerate.
type GeneratorConfig struct {
	// Driver is the simulator launcher script (Run.pl).
	Driver string

	// BenchDB is the launcher's benchmark database.
	BenchDB string

	// Simulator is the simulator binary (sim-outorder).
	Simulator string

	// ResultsDir receives per-job logs and scratch directories.
	ResultsDir string

	// FastForward is the number of instructions skipped before timing.
	FastForward int64

	// MaxInst is the number of instructions simulated after fast-forward.
	MaxInst int64

	// Benchmarks to sweep. Order is preserved in the output.
	Benchmarks []string

	// Sizes are candidate table sizes for table-backed families.
	Sizes []int

	// Families selects which table-backed families to sweep.
	// Empty means all of predictor.SizedFamilies(). The size-less
	// baselines are always generated.
	Families []predictor.Family
}

// sizedFamilies returns the selected table-backed families.
func (c GeneratorConfig) sizedFamilies() []predictor.Family {
	if len(c.Families) == 0 {
		return predictor.SizedFamilies()
	}
	return c.Families
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate enumerates every descriptor of the sweep.
//
// Description:
//
//	For each benchmark, emits the nottaken and taken baselines followed by
//	one descriptor per selected table-backed family for every size. The
//	index width for a size is derived once and shared by every family at
//	that size. Invalid input is rejected as a whole; nothing is skipped.
//
// Inputs:
//
//	cfg - The sweep definition
//
// Outputs:
//
//	[]Descriptor - 2 + len(families)*len(sizes) descriptors per benchmark
//	error - *ConfigError wrapping ErrInvalidSize, ErrUnsupportedFamily,
//	        ErrDuplicateJob, ErrEmptySweep or ErrMissingTool
func Generate(cfg GeneratorConfig) ([]Descriptor, error) {
	if cfg.Driver == "" {
		return nil, &ConfigError{Field: "driver", Value: `""`, Cause: ErrMissingTool}
	}
	if cfg.Simulator == "" {
		return nil, &ConfigError{Field: "simulator", Value: `""`, Cause: ErrMissingTool}
	}
	if len(cfg.Benchmarks) == 0 {
		return nil, &ConfigError{Field: "benchmarks", Value: "[]", Cause: ErrEmptySweep}
	}
	if err := checkUnique("benchmarks", cfg.Benchmarks); err != nil {
		return nil, err
	}

	families := cfg.sizedFamilies()
	for _, f := range families {
		// Baselines are always generated and cannot be selected here.
		if !f.Sized() {
			return nil, &ConfigError{Field: "families", Value: string(f), Cause: predictor.ErrUnsupportedFamily}
		}
	}
	if err := checkUnique("families", families); err != nil {
		return nil, err
	}
	if err := checkUnique("sizes", cfg.Sizes); err != nil {
		return nil, err
	}

	// Derive each width once; every family at a size reuses it.
	widths := make(map[int]int, len(cfg.Sizes))
	for _, size := range cfg.Sizes {
		w, err := predictor.IndexWidth(size)
		if err != nil {
			return nil, &ConfigError{Field: "sizes", Value: strconv.Itoa(size), Cause: err}
		}
		widths[size] = w
	}

	out := make([]Descriptor, 0, len(cfg.Benchmarks)*(2+len(families)*len(cfg.Sizes)))
	for _, bench := range cfg.Benchmarks {
		if strings.TrimSpace(bench) == "" {
			return nil, &ConfigError{Field: "benchmarks", Value: `""`, Cause: ErrEmptySweep}
		}
		for _, f := range predictor.SizelessFamilies() {
			out = append(out, cfg.describe(bench, predictor.Spec{Family: f}))
		}
		for _, size := range cfg.Sizes {
			for _, f := range families {
				spec := predictor.Spec{Family: f, Size: size, Width: widths[size]}
				out = append(out, cfg.describe(bench, spec))
			}
		}
	}
	return out, nil
}

// describe builds the descriptor for one benchmark/predictor pair.
func (c GeneratorConfig) describe(bench string, spec predictor.Spec) Descriptor {
	name := bench + "_" + spec.Label()
	scratch := filepath.Join(c.ResultsDir, name)

	simArgs := append(spec.Flags(),
		"-fastfwd", strconv.FormatInt(c.FastForward, 10),
		"-max:inst", strconv.FormatInt(c.MaxInst, 10),
	)

	return Descriptor{
		Benchmark: bench,
		Predictor: spec,
		Command: []string{
			c.Driver,
			"-db", c.BenchDB,
			"-dir", scratch,
			"-benchmark", bench,
			"-sim", c.Simulator,
			"-args", strings.Join(simArgs, " "),
		},
		LogPath:    filepath.Join(c.ResultsDir, name+".out"),
		ScratchDir: scratch,
	}
}

// checkUnique rejects repeated values in a sweep axis.
func checkUnique[T comparable](field string, values []T) error {
	seen := make(map[T]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return &ConfigError{Field: field, Value: fmt.Sprint(v), Cause: ErrDuplicateJob}
		}
		seen[v] = struct{}{}
	}
	return nil
}
