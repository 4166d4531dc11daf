// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/bpsweep/services/sweep/diag"
	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/predictor"
	"github.com/AleutianAI/bpsweep/services/sweep/report"
)

// RequiredMetrics are the metrics every contributing cell must carry.
// The simulator's own rate lines are not required: rates are recomputed.
var RequiredMetrics = []report.MetricName{
	report.MetricIPC,
	report.MetricUpdates,
	report.MetricAddrHits,
	report.MetricDirHits,
	report.MetricMisses,
}

// AggregateRecord combines one family (and size) across benchmarks.
//
// Mean* fields are arithmetic means with one sample per benchmark.
// AddrRate and DirRate are Σhits / Σupdates over the same benchmarks.
// Pointer fields are nil when undefined (no samples, or Σupdates = 0).
type AggregateRecord struct {
	Family     predictor.Family `json:"family" yaml:"family"`
	Size       int              `json:"size,omitempty" yaml:"size,omitempty"`
	Benchmarks []string         `json:"benchmarks" yaml:"benchmarks"`
	Samples    int              `json:"samples" yaml:"samples"`

	MeanIPC      *float64 `json:"mean_ipc,omitempty" yaml:"mean_ipc,omitempty"`
	MeanUpdates  *float64 `json:"mean_updates,omitempty" yaml:"mean_updates,omitempty"`
	MeanAddrHits *float64 `json:"mean_addr_hits,omitempty" yaml:"mean_addr_hits,omitempty"`
	MeanDirHits  *float64 `json:"mean_dir_hits,omitempty" yaml:"mean_dir_hits,omitempty"`
	MeanMisses   *float64 `json:"mean_misses,omitempty" yaml:"mean_misses,omitempty"`

	SumUpdates  float64 `json:"sum_updates" yaml:"sum_updates"`
	SumAddrHits float64 `json:"sum_addr_hits" yaml:"sum_addr_hits"`
	SumDirHits  float64 `json:"sum_dir_hits" yaml:"sum_dir_hits"`
	SumMisses   float64 `json:"sum_misses" yaml:"sum_misses"`

	AddrRate *float64 `json:"addr_rate,omitempty" yaml:"addr_rate,omitempty"`
	DirRate  *float64 `json:"dir_rate,omitempty" yaml:"dir_rate,omitempty"`
}

// Label renders family[_size].
func (a AggregateRecord) Label() string {
	if a.Size == 0 {
		return string(a.Family)
	}
	return fmt.Sprintf("%s_%d", a.Family, a.Size)
}

// accumulator sums one group's contributing cells.
type accumulator struct {
	benchmarks []string
	ipc        float64
	updates    float64
	addrHits   float64
	dirHits    float64
	misses     float64
}

func (a *accumulator) add(bench string, rec report.Record) {
	a.benchmarks = append(a.benchmarks, bench)
	a.ipc += rec[report.MetricIPC]
	a.updates += rec[report.MetricUpdates]
	a.addrHits += rec[report.MetricAddrHits]
	a.dirHits += rec[report.MetricDirHits]
	a.misses += rec[report.MetricMisses]
}

// Aggregate reduces the table into one record per family and size.
//
// Description:
//
//	Groups are visited in canonical family order, sizes ascending. A cell
//	missing any RequiredMetrics is skipped with a diagnostic; it is never
//	treated as zero. Cells marked missing are reported as skipped. When
//	Σupdates is zero the rates stay undefined and a diagnostic is added
//	instead of dividing by zero.
//
//	Aggregate reads the table without modifying it, so repeated calls
//	over an unchanged table return identical results.
//
// Outputs:
//
//	[]AggregateRecord - One record per family/size group with any data
//	                    or missing marker
//	[]diag.Diagnostic - Aggregate-stage diagnostics
//
// Thread Safety: Safe for concurrent use.
func (t *Table) Aggregate() ([]AggregateRecord, []diag.Diagnostic) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var (
		out   []AggregateRecord
		diags []diag.Diagnostic
	)

	for _, f := range predictor.Families() {
		if !f.Sized() {
			if !t.hasAnyLocked(f) {
				continue
			}
			rec, ds := t.aggregateGroupLocked(f, 0)
			out = append(out, rec)
			diags = append(diags, ds...)
			continue
		}
		for _, size := range t.groupSizesLocked(f) {
			rec, ds := t.aggregateGroupLocked(f, size)
			out = append(out, rec)
			diags = append(diags, ds...)
		}
	}
	return out, diags
}

// aggregateGroupLocked reduces one family/size group.
func (t *Table) aggregateGroupLocked(f predictor.Family, size int) (AggregateRecord, []diag.Diagnostic) {
	groupKey := job.Key{Family: f, Size: size}
	var diags []diag.Diagnostic

	for _, m := range t.missingInGroupLocked(f, size) {
		diags = append(diags, diag.Diagnostic{
			Stage:  diag.StageAggregate,
			Key:    m.Key,
			Reason: "cell skipped: " + m.Reason,
		})
	}

	var acc accumulator
	for _, c := range t.familyCellsLocked(f, size, f.Sized()) {
		if missing := c.Record.Missing(RequiredMetrics...); len(missing) > 0 {
			names := make([]string, len(missing))
			for i, m := range missing {
				names[i] = string(m)
			}
			diags = append(diags, diag.Diagnostic{
				Stage:  diag.StageAggregate,
				Key:    c.Key,
				Metric: strings.Join(names, ","),
				Reason: "cell skipped: required metrics missing",
			})
			continue
		}
		acc.add(c.Key.Benchmark, c.Record)
	}

	rec := AggregateRecord{
		Family:      f,
		Size:        size,
		Benchmarks:  acc.benchmarks,
		Samples:     len(acc.benchmarks),
		SumUpdates:  acc.updates,
		SumAddrHits: acc.addrHits,
		SumDirHits:  acc.dirHits,
		SumMisses:   acc.misses,
	}
	if rec.Benchmarks == nil {
		rec.Benchmarks = []string{}
	}

	if rec.Samples == 0 {
		diags = append(diags, diag.Diagnostic{
			Stage:  diag.StageAggregate,
			Key:    groupKey,
			Reason: "no contributing benchmarks; aggregate undefined",
		})
		return rec, diags
	}

	n := float64(rec.Samples)
	rec.MeanIPC = ptr(acc.ipc / n)
	rec.MeanUpdates = ptr(acc.updates / n)
	rec.MeanAddrHits = ptr(acc.addrHits / n)
	rec.MeanDirHits = ptr(acc.dirHits / n)
	rec.MeanMisses = ptr(acc.misses / n)

	if acc.updates == 0 {
		diags = append(diags, diag.Diagnostic{
			Stage:  diag.StageAggregate,
			Key:    groupKey,
			Metric: string(report.MetricUpdates),
			Reason: "sum of updates is zero; rates undefined",
		})
		return rec, diags
	}
	rec.AddrRate = ptr(acc.addrHits / acc.updates)
	rec.DirRate = ptr(acc.dirHits / acc.updates)
	return rec, diags
}

func ptr(v float64) *float64 {
	return &v
}
