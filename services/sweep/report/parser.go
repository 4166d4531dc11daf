// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report extracts typed metrics from simulator text reports.
//
// The simulator prints its statistics as whitespace-delimited lines:
//
//	sim_IPC                      1.3285 # instructions per cycle
//	bpred_bimod.updates        1265632 # total number of updates
//	bpred_bimod.dir_hits       1125823 # total number of direction-predicted hits
//
// Each metric is located by its own pattern. A metric that cannot be found
// is left out of the Record and reported as a diagnostic; extraction of the
// remaining metrics continues.
//
// # Identity
//
// The job identity of a parsed record always comes from the descriptor
// that produced the output. Recovering identity from a log file name
// (ParseLogName, ParseFile) is only for ingesting logs produced outside a
// sweep.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/bpsweep/services/sweep/diag"
	"github.com/AleutianAI/bpsweep/services/sweep/job"
)

// Parsed is the outcome of parsing one report.
type Parsed struct {
	Key         job.Key
	Record      Record
	Diagnostics []diag.Diagnostic
}

// Complete reports whether every metric was extracted.
func (p Parsed) Complete() bool {
	return len(p.Diagnostics) == 0
}

// Parse extracts all metrics from the output of the job described by desc.
//
// Description:
//
//	Runs every metric accessor independently over output. Misses and
//	unparsable values become parse diagnostics naming the metric; they
//	never abort extraction of the remaining metrics.
//
// Inputs:
//
//	desc - The descriptor that produced output (source of identity)
//	output - Captured report text
//
// Outputs:
//
//	Parsed - The record plus one diagnostic per missing metric
func Parse(desc job.Descriptor, output string) Parsed {
	return ParseKey(desc.Key(), output)
}

// ParseKey is Parse with an explicit key.
func ParseKey(key job.Key, output string) Parsed {
	p := Parsed{
		Key:    key,
		Record: make(Record, len(accessors)),
	}

	for _, name := range AllMetrics() {
		v, err := Lookup(output, name)
		if err != nil {
			reason := "pattern not found in report"
			if !errors.Is(err, ErrMetricNotFound) {
				reason = err.Error()
			}
			p.Diagnostics = append(p.Diagnostics, diag.Diagnostic{
				Stage:  diag.StageParse,
				Key:    key,
				Metric: string(name),
				Reason: reason,
			})
			continue
		}
		p.Record[name] = v
	}
	return p
}

// ReadLog reads an out-of-band log and recovers its identity from the
// file name.
//
// Inputs:
//
//	path - Path to a <benchmark>_<family>[_<size>[_<width>]].out file
//
// Outputs:
//
//	job.Key - The identity from the name; zero when the name is rejected
//	string - The raw log text, including any header and status trailer
//	error - ErrBadLogName if the name carries no identity, or a read error
func ReadLog(path string) (job.Key, string, error) {
	key, err := ParseLogName(filepath.Base(path))
	if err != nil {
		return job.Key{}, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return key, "", fmt.Errorf("reading log %s: %w", path, err)
	}
	return key, string(data), nil
}

// ParseFile parses an out-of-band log, recovering identity from its name.
//
// Outputs:
//
//	Parsed - The parsed record
//	error - See ReadLog
func ParseFile(path string) (Parsed, error) {
	key, text, err := ReadLog(path)
	if err != nil {
		return Parsed{}, err
	}
	return ParseKey(key, text), nil
}
