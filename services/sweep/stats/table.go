// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats stores per-run metric records and reduces them into
// cross-benchmark aggregates.
//
// # Table Shape
//
// The table is keyed statically by predictor family. Size-less families
// map benchmark -> record; table-backed families map benchmark -> size ->
// record. A key whose shape does not match its family is rejected at
// insertion instead of being discovered during aggregation.
//
//	nottaken ─┬─ gcc ── Record
//	          └─ li  ── Record
//	bimod ────┬─ gcc ─┬─ 32 ── Record
//	          │       └─ 64 ── Record
//	          └─ li  ─┬─ 32 ── Record
//	                  └─ 64 ── Record
//
// # Rates
//
// Rates are always recomputed as a ratio of sums across benchmarks
// (Σhits / Σupdates), never as a mean of per-benchmark rates, because
// benchmarks contribute unequal numbers of branch updates.
package stats

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/predictor"
	"github.com/AleutianAI/bpsweep/services/sweep/report"
)

// =============================================================================
// TABLE
// =============================================================================

// familyCells holds the records of one predictor family.
// Exactly one of flat or sized is used, chosen by the family.
type familyCells struct {
	family predictor.Family
	flat   map[string]report.Record
	sized  map[string]map[int]report.Record
}

// Cell is one populated table position.
type Cell struct {
	Key    job.Key
	Record report.Record
}

// MissingCell is an explicit "no data" marker.
type MissingCell struct {
	Key    job.Key `json:"key" yaml:"key"`
	Reason string  `json:"reason" yaml:"reason"`
}

// Table is the nested family -> benchmark -> [size ->] record store.
//
// Thread Safety: Safe for concurrent use. Every mutation is serialized
// by an internal mutex, so records may be inserted while jobs are still
// running.
type Table struct {
	mu       sync.RWMutex
	frozen   bool
	families map[predictor.Family]*familyCells
	missing  map[job.Key]string
}

// NewTable creates an empty table with a slot for every supported family.
func NewTable() *Table {
	t := &Table{
		families: make(map[predictor.Family]*familyCells),
		missing:  make(map[job.Key]string),
	}
	for _, f := range predictor.Families() {
		fc := &familyCells{family: f}
		if f.Sized() {
			fc.sized = make(map[string]map[int]report.Record)
		} else {
			fc.flat = make(map[string]report.Record)
		}
		t.families[f] = fc
	}
	return t
}

// validateKey checks the key against its family's shape.
func (t *Table) validateKey(key job.Key) (*familyCells, error) {
	fc, ok := t.families[key.Family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, string(key.Family))
	}
	if key.Benchmark == "" {
		return nil, ErrEmptyBenchmark
	}
	if key.Family.Sized() {
		if err := predictor.ValidateSize(key.Size); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrShapeMismatch, key, err)
		}
	} else if key.Size != 0 {
		return nil, fmt.Errorf("%w: %s: family takes no size", ErrShapeMismatch, key)
	}
	return fc, nil
}

// Record inserts the metric record for a cell.
//
// Description:
//
//	Stores a copy of rec at the key's position and clears any missing
//	marker for it. Re-inserting at a populated position overwrites
//	(last write wins) and returns ErrDuplicateCell so the caller can
//	treat it as the assertion failure it is.
//
// Inputs:
//
//	key - Family, benchmark and (for sized families) size
//	rec - The parsed metrics
//
// Outputs:
//
//	error - ErrTableFrozen, ErrShapeMismatch, ErrUnknownFamily,
//	        ErrEmptyBenchmark, or ErrDuplicateCell after overwriting
//
// Thread Safety: Safe for concurrent use.
func (t *Table) Record(key job.Key, rec report.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrTableFrozen
	}
	fc, err := t.validateKey(key)
	if err != nil {
		return err
	}

	var existed bool
	if fc.sized != nil {
		bySize, ok := fc.sized[key.Benchmark]
		if !ok {
			bySize = make(map[int]report.Record)
			fc.sized[key.Benchmark] = bySize
		}
		_, existed = bySize[key.Size]
		bySize[key.Size] = rec.Clone()
	} else {
		_, existed = fc.flat[key.Benchmark]
		fc.flat[key.Benchmark] = rec.Clone()
	}
	delete(t.missing, key)

	if existed {
		return fmt.Errorf("%w: %s", ErrDuplicateCell, key)
	}
	return nil
}

// MarkMissing records that a cell will have no data and why.
//
// Outputs:
//
//	error - ErrTableFrozen, a key shape error, or ErrDuplicateCell if the
//	        cell already holds a record (the record is kept)
//
// Thread Safety: Safe for concurrent use.
func (t *Table) MarkMissing(key job.Key, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrTableFrozen
	}
	if _, err := t.validateKey(key); err != nil {
		return err
	}
	if _, ok := t.lookupLocked(key); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCell, key)
	}
	t.missing[key] = reason
	return nil
}

// Freeze makes the table read-only.
func (t *Table) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}

// Lookup returns a copy of the record at key.
//
// Thread Safety: Safe for concurrent use.
func (t *Table) Lookup(key job.Key) (report.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.lookupLocked(key)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (t *Table) lookupLocked(key job.Key) (report.Record, bool) {
	fc, ok := t.families[key.Family]
	if !ok {
		return nil, false
	}
	if fc.sized != nil {
		rec, ok := fc.sized[key.Benchmark][key.Size]
		return rec, ok
	}
	if key.Size != 0 {
		return nil, false
	}
	rec, ok := fc.flat[key.Benchmark]
	return rec, ok
}

// Len returns the number of populated cells.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, fc := range t.families {
		n += len(fc.flat)
		for _, bySize := range fc.sized {
			n += len(bySize)
		}
	}
	return n
}

// Missing returns the missing markers ordered by key.
func (t *Table) Missing() []MissingCell {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]MissingCell, 0, len(t.missing))
	for k, reason := range t.missing {
		out = append(out, MissingCell{Key: k, Reason: reason})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// Incomplete returns the keys that have neither a record nor a missing
// marker. A sweep's table is complete when this is empty for every
// descriptor key.
func (t *Table) Incomplete(keys []job.Key) []job.Key {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []job.Key
	for _, k := range keys {
		if _, ok := t.lookupLocked(k); ok {
			continue
		}
		if _, ok := t.missing[k]; ok {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Cells returns every populated cell ordered by key.
func (t *Table) Cells() []Cell {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Cell
	for _, f := range predictor.Families() {
		out = append(out, t.familyCellsLocked(f, 0, false)...)
	}
	return out
}

// familyCellsLocked lists a family's cells, optionally limited to one size.
func (t *Table) familyCellsLocked(f predictor.Family, size int, bySize bool) []Cell {
	fc := t.families[f]
	var out []Cell
	if fc.sized != nil {
		for bench, sizes := range fc.sized {
			for s, rec := range sizes {
				if bySize && s != size {
					continue
				}
				out = append(out, Cell{Key: job.Key{Family: f, Benchmark: bench, Size: s}, Record: rec.Clone()})
			}
		}
	} else {
		for bench, rec := range fc.flat {
			out = append(out, Cell{Key: job.Key{Family: f, Benchmark: bench}, Record: rec.Clone()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// groupSizesLocked returns the sizes that appear for a sized family in
// records or missing markers, ascending.
func (t *Table) groupSizesLocked(f predictor.Family) []int {
	seen := make(map[int]struct{})
	for _, sizes := range t.families[f].sized {
		for s := range sizes {
			seen[s] = struct{}{}
		}
	}
	for k := range t.missing {
		if k.Family == f {
			seen[k.Size] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// missingInGroupLocked lists missing markers for one family/size group.
func (t *Table) missingInGroupLocked(f predictor.Family, size int) []MissingCell {
	var out []MissingCell
	for k, reason := range t.missing {
		if k.Family == f && k.Size == size {
			out = append(out, MissingCell{Key: k, Reason: reason})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// hasAnyLocked reports whether a size-less family has records or markers.
func (t *Table) hasAnyLocked(f predictor.Family) bool {
	if len(t.families[f].flat) > 0 {
		return true
	}
	for k := range t.missing {
		if k.Family == f {
			return true
		}
	}
	return false
}
