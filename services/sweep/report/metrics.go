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
	"math"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// METRIC NAMES
// =============================================================================

// MetricName identifies one counter extracted from a simulator report.
type MetricName string

const (
	// MetricIPC is simulated instructions per cycle (sim_IPC).
	MetricIPC MetricName = "ipc"

	// MetricUpdates is the number of predictor updates.
	MetricUpdates MetricName = "updates"

	// MetricAddrHits is the number of address-predicted hits.
	MetricAddrHits MetricName = "addr_hits"

	// MetricDirHits is the number of direction-predicted hits.
	MetricDirHits MetricName = "dir_hits"

	// MetricMisses is the number of mispredictions.
	MetricMisses MetricName = "misses"

	// MetricAddrRate is addr_hits/updates as reported by the simulator.
	MetricAddrRate MetricName = "addr_rate"

	// MetricDirRate is dir_hits/updates as reported by the simulator.
	MetricDirRate MetricName = "dir_rate"
)

// AllMetrics returns every extracted metric in report order.
func AllMetrics() []MetricName {
	return []MetricName{
		MetricIPC,
		MetricUpdates,
		MetricAddrHits,
		MetricDirHits,
		MetricMisses,
		MetricAddrRate,
		MetricDirRate,
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// accessor locates a single metric in report text.
//
// Report lines have the form "<name> <value> # <description>". Predictor
// counters are prefixed with the active predictor ("bpred_bimod.updates",
// "bpred_2lev.updates", "bpred_comb.updates").
type accessor struct {
	name    MetricName
	pattern *regexp.Regexp
}

var accessors = map[MetricName]accessor{
	MetricIPC:      newAccessor(MetricIPC, `sim_IPC`),
	MetricUpdates:  newAccessor(MetricUpdates, `bpred_\w+\.updates`),
	MetricAddrHits: newAccessor(MetricAddrHits, `bpred_\w+\.addr_hits`),
	MetricDirHits:  newAccessor(MetricDirHits, `bpred_\w+\.dir_hits`),
	MetricMisses:   newAccessor(MetricMisses, `bpred_\w+\.misses`),
	MetricAddrRate: newAccessor(MetricAddrRate, `bpred_\w+\.bpred_addr_rate`),
	MetricDirRate:  newAccessor(MetricDirRate, `bpred_\w+\.bpred_dir_rate`),
}

func newAccessor(name MetricName, stat string) accessor {
	return accessor{
		name:    name,
		pattern: regexp.MustCompile(`(?m)^[ \t]*` + stat + `[ \t]+(\S+)`),
	}
}

// extract returns the metric's value from text.
func (a accessor) extract(text string) (float64, error) {
	m := a.pattern.FindStringSubmatch(text)
	if m == nil {
		return 0, ErrMetricNotFound
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMetricUnparsable, m[1])
	}
	// ParseFloat accepts "nan" and "inf"; neither can be aggregated.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrMetricUnparsable, m[1])
	}
	return v, nil
}

// Lookup extracts a single metric from report text.
//
// Outputs:
//
//	float64 - The metric value
//	error - ErrMetricNotFound when no line matches, ErrMetricUnparsable
//	        when the value is not a finite number, ErrUnknownMetric
//	        for names without an accessor
func Lookup(text string, name MetricName) (float64, error) {
	a, ok := accessors[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}
	return a.extract(text)
}

// =============================================================================
// RECORD
// =============================================================================

// Record maps metric names to values for one run.
//
// A Record is partial: metrics absent from the report are absent from
// the map, never zero-filled.
type Record map[MetricName]float64

// Get returns a metric and whether it is present.
func (r Record) Get(name MetricName) (float64, bool) {
	v, ok := r[name]
	return v, ok
}

// Has reports whether every named metric is present.
func (r Record) Has(names ...MetricName) bool {
	return len(r.Missing(names...)) == 0
}

// Missing returns the named metrics that are absent, in argument order.
func (r Record) Missing(names ...MetricName) []MetricName {
	var out []MetricName
	for _, n := range names {
		if _, ok := r[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Clone returns an independent copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String renders the record in report order.
func (r Record) String() string {
	parts := make([]string, 0, len(r))
	for _, n := range AllMetrics() {
		if v, ok := r[n]; ok {
			parts = append(parts, fmt.Sprintf("%s=%g", n, v))
		}
	}
	return "{" + strings.Join(parts, " ") + "}"
}
