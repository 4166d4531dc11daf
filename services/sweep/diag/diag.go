// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diag collects non-fatal sweep diagnostics.
//
// Failed jobs, metrics missing from a report, and cells the aggregator
// had to skip are not errors: the sweep continues and the reasons are
// surfaced together at the end of each phase.
package diag

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
)

// Stage names the pipeline phase that produced a diagnostic.
type Stage string

const (
	StageExecute   Stage = "execute"
	StageIngest    Stage = "ingest"
	StageParse     Stage = "parse"
	StageStore     Stage = "store"
	StageAggregate Stage = "aggregate"
)

var stageOrder = map[Stage]int{
	StageExecute:   0,
	StageIngest:    1,
	StageParse:     2,
	StageStore:     3,
	StageAggregate: 4,
}

// Diagnostic explains why a cell or metric is missing.
type Diagnostic struct {
	Stage  Stage   `json:"stage" yaml:"stage"`
	Key    job.Key `json:"key" yaml:"key"`
	Metric string  `json:"metric,omitempty" yaml:"metric,omitempty"`
	Reason string  `json:"reason" yaml:"reason"`
}

// String implements fmt.Stringer.
func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", d.Stage, d.Key)
	if d.Metric != "" {
		fmt.Fprintf(&b, " metric=%s", d.Metric)
	}
	b.WriteString(": ")
	b.WriteString(d.Reason)
	return b.String()
}

// List accumulates diagnostics.
//
// Thread Safety: Safe for concurrent use.
type List struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Add appends diagnostics.
func (l *List) Add(ds ...Diagnostic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, ds...)
}

// Len returns the number of diagnostics collected.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Items returns a sorted copy ordered by stage, key, then metric.
func (l *List) Items() []Diagnostic {
	l.mu.Lock()
	out := make([]Diagnostic, len(l.items))
	copy(out, l.items)
	l.mu.Unlock()

	Sort(out)
	return out
}

// Sort orders diagnostics by stage, key, then metric. The sort is stable
// so diagnostics with equal keys keep insertion order.
func Sort(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Stage != b.Stage {
			return stageOrder[a.Stage] < stageOrder[b.Stage]
		}
		if a.Key != b.Key {
			return a.Key.Less(b.Key)
		}
		return a.Metric < b.Metric
	})
}

// ByStage filters diagnostics to one stage.
func ByStage(ds []Diagnostic, stage Stage) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		if d.Stage == stage {
			out = append(out, d)
		}
	}
	return out
}
