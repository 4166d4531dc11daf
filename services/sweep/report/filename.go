// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/predictor"
)

// LogSuffix is the extension of per-job log files.
const LogSuffix = ".out"

// logNamePattern matches <benchmark>_<family>[_<size>[_<width>]].out.
// Families are tried longest first so comb_bimod_gshare is not read as a
// benchmark ending in "_comb" followed by family "bimod".
var logNamePattern = func() *regexp.Regexp {
	names := predictor.NamesByLength()
	for i, n := range names {
		names[i] = regexp.QuoteMeta(n)
	}
	return regexp.MustCompile(`^(.+?)_(` + strings.Join(names, "|") + `)(?:_(\d+)(?:_(\d+))?)?` + regexp.QuoteMeta(LogSuffix) + `$`)
}()

// ParseLogName recovers a job key from a log file name.
//
// Description:
//
//	Fallback for logs ingested without their descriptor. The size must be
//	valid for the family, and a width suffix, when present, must equal the
//	width derived from the size.
//
// Inputs:
//
//	name - Base name of the log file
//
// Outputs:
//
//	job.Key - The recovered identity
//	error - ErrBadLogName (wrapping the predictor error when relevant)
func ParseLogName(name string) (job.Key, error) {
	m := logNamePattern.FindStringSubmatch(name)
	if m == nil {
		return job.Key{}, fmt.Errorf("%w: %q", ErrBadLogName, name)
	}

	family, err := predictor.ParseFamily(m[2])
	if err != nil {
		return job.Key{}, fmt.Errorf("%w: %q: %v", ErrBadLogName, name, err)
	}

	size := 0
	if m[3] != "" {
		size, err = strconv.Atoi(m[3])
		if err != nil {
			return job.Key{}, fmt.Errorf("%w: %q: %v", ErrBadLogName, name, err)
		}
	}

	spec, err := predictor.NewSpec(family, size)
	if err != nil {
		return job.Key{}, fmt.Errorf("%w: %q: %w", ErrBadLogName, name, err)
	}

	if m[4] != "" {
		width, err := strconv.Atoi(m[4])
		if err != nil || width != spec.Width {
			return job.Key{}, fmt.Errorf("%w: %q: width %s does not match size %d", ErrBadLogName, name, m[4], size)
		}
	}

	return job.Key{Family: family, Benchmark: m[1], Size: spec.Size}, nil
}
