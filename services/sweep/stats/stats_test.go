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
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/bpsweep/services/sweep/diag"
	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/predictor"
	"github.com/AleutianAI/bpsweep/services/sweep/report"
)

func rec(ipc, updates, addrHits, dirHits, misses float64) report.Record {
	return report.Record{
		report.MetricIPC:      ipc,
		report.MetricUpdates:  updates,
		report.MetricAddrHits: addrHits,
		report.MetricDirHits:  dirHits,
		report.MetricMisses:   misses,
		report.MetricDirRate:  dirHits / updates,
		report.MetricAddrRate: addrHits / updates,
	}
}

func bimod(bench string, size int) job.Key {
	return job.Key{Family: predictor.FamilyBimod, Benchmark: bench, Size: size}
}

func findAggregate(t *testing.T, aggs []AggregateRecord, f predictor.Family, size int) AggregateRecord {
	t.Helper()
	for _, a := range aggs {
		if a.Family == f && a.Size == size {
			return a
		}
	}
	t.Fatalf("no aggregate for %s/%d", f, size)
	return AggregateRecord{}
}

func TestAggregate_RatioOfSums(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Record(bimod("gcc", 64), rec(1.0, 100, 70, 80, 20)))
	require.NoError(t, table.Record(bimod("li", 64), rec(2.0, 50, 40, 45, 5)))

	aggs, diags := table.Aggregate()
	assert.Empty(t, diags)
	require.Len(t, aggs, 1)

	a := aggs[0]
	require.NotNil(t, a.DirRate)
	assert.InDelta(t, 125.0/150.0, *a.DirRate, 1e-12)
	// Mean of per-benchmark rates (0.8 and 0.9) would be 0.85.
	assert.NotEqual(t, 0.85, *a.DirRate)
	assert.InDelta(t, 110.0/150.0, *a.AddrRate, 1e-12)

	assert.Equal(t, 2, a.Samples)
	assert.Equal(t, []string{"gcc", "li"}, a.Benchmarks)
	assert.InDelta(t, 1.5, *a.MeanIPC, 1e-12)
	assert.InDelta(t, 75.0, *a.MeanUpdates, 1e-12)
	assert.InDelta(t, 62.5, *a.MeanDirHits, 1e-12)
	assert.InDelta(t, 12.5, *a.MeanMisses, 1e-12)
	assert.Equal(t, 150.0, a.SumUpdates)
	assert.Equal(t, 125.0, a.SumDirHits)
}

func TestAggregate_Idempotent(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Record(bimod("gcc", 32), rec(1.1, 100, 70, 80, 20)))
	require.NoError(t, table.Record(bimod("gcc", 64), rec(1.2, 100, 75, 85, 15)))
	require.NoError(t, table.Record(job.Key{Family: predictor.FamilyTaken, Benchmark: "gcc"}, rec(0.9, 100, 40, 60, 40)))
	table.Freeze()

	first, d1 := table.Aggregate()
	second, d2 := table.Aggregate()
	assert.Equal(t, first, second)
	assert.Equal(t, d1, d2)
}

func TestAggregate_GroupOrder(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Record(bimod("gcc", 64), rec(1, 10, 5, 8, 2)))
	require.NoError(t, table.Record(bimod("gcc", 32), rec(1, 10, 5, 8, 2)))
	require.NoError(t, table.Record(job.Key{Family: predictor.FamilyNotTaken, Benchmark: "gcc"}, rec(1, 10, 5, 8, 2)))
	require.NoError(t, table.Record(job.Key{Family: predictor.FamilyTaken, Benchmark: "gcc"}, rec(1, 10, 5, 8, 2)))

	aggs, _ := table.Aggregate()
	var labels []string
	for _, a := range aggs {
		labels = append(labels, a.Label())
	}
	assert.Equal(t, []string{"nottaken", "taken", "bimod_32", "bimod_64"}, labels)
}

func TestAggregate_SkipsCellMissingRequiredMetric(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Record(bimod("gcc", 64), rec(1.0, 100, 70, 80, 20)))

	partial := rec(2.0, 50, 40, 45, 5)
	delete(partial, report.MetricDirHits)
	require.NoError(t, table.Record(bimod("li", 64), partial))

	aggs, diags := table.Aggregate()
	require.Len(t, aggs, 1)
	a := aggs[0]

	// li is skipped entirely, not counted as zero hits.
	assert.Equal(t, 1, a.Samples)
	assert.Equal(t, []string{"gcc"}, a.Benchmarks)
	assert.InDelta(t, 0.8, *a.DirRate, 1e-12)
	assert.InDelta(t, 1.0, *a.MeanIPC, 1e-12)

	require.Len(t, diags, 1)
	assert.Equal(t, diag.StageAggregate, diags[0].Stage)
	assert.Equal(t, bimod("li", 64), diags[0].Key)
	assert.Equal(t, "dir_hits", diags[0].Metric)
}

func TestAggregate_SkipsCellWithNonFiniteValue(t *testing.T) {
	const nanReport = `sim_IPC nan # instructions per cycle
bpred_bimod.updates 50 # total number of updates
bpred_bimod.addr_hits 40 # total number of address-predicted hits
bpred_bimod.dir_hits 45 # total number of direction-predicted hits
bpred_bimod.misses 5 # total number of misses
`
	table := NewTable()
	require.NoError(t, table.Record(bimod("gcc", 64), rec(1.0, 100, 70, 80, 20)))
	parsed := report.ParseKey(bimod("li", 64), nanReport)
	require.NoError(t, table.Record(bimod("li", 64), parsed.Record))

	aggs, diags := table.Aggregate()
	require.Len(t, aggs, 1)
	assert.Equal(t, []string{"gcc"}, aggs[0].Benchmarks)
	assert.InDelta(t, 1.0, *aggs[0].MeanIPC, 1e-12)

	require.Len(t, diags, 1)
	assert.Equal(t, bimod("li", 64), diags[0].Key)
	assert.Equal(t, "ipc", diags[0].Metric)

	_, err := json.Marshal(aggs)
	assert.NoError(t, err)
}

func TestAggregate_MissingRateLineStillContributes(t *testing.T) {
	table := NewTable()
	r := rec(1.0, 100, 70, 80, 20)
	delete(r, report.MetricAddrRate)
	require.NoError(t, table.Record(bimod("gcc", 64), r))

	aggs, diags := table.Aggregate()
	assert.Empty(t, diags)
	assert.Equal(t, 1, aggs[0].Samples)
	assert.InDelta(t, 0.7, *aggs[0].AddrRate, 1e-12)
}

func TestAggregate_ZeroUpdates(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Record(bimod("gcc", 64), rec(1.0, 0, 0, 0, 0)))

	aggs, diags := table.Aggregate()
	require.Len(t, aggs, 1)
	assert.Nil(t, aggs[0].DirRate)
	assert.Nil(t, aggs[0].AddrRate)
	require.NotNil(t, aggs[0].MeanIPC)

	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Reason, "rates undefined")
}

func TestAggregate_MissingMarkers(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Record(bimod("gcc", 64), rec(1.0, 100, 70, 80, 20)))
	require.NoError(t, table.MarkMissing(bimod("li", 64), "exit status 3"))
	require.NoError(t, table.MarkMissing(bimod("li", 128), "timed out"))

	aggs, diags := table.Aggregate()
	require.Len(t, aggs, 2)

	a64 := findAggregate(t, aggs, predictor.FamilyBimod, 64)
	assert.Equal(t, 1, a64.Samples)

	a128 := findAggregate(t, aggs, predictor.FamilyBimod, 128)
	assert.Zero(t, a128.Samples)
	assert.Nil(t, a128.DirRate)
	assert.Nil(t, a128.MeanIPC)
	assert.Equal(t, []string{}, a128.Benchmarks)

	var reasons []string
	for _, d := range diags {
		reasons = append(reasons, d.Reason)
	}
	assert.Contains(t, reasons, "cell skipped: exit status 3")
	assert.Contains(t, reasons, "cell skipped: timed out")
	assert.Contains(t, reasons, "no contributing benchmarks; aggregate undefined")
}

func TestTable_Shape(t *testing.T) {
	table := NewTable()

	err := table.Record(job.Key{Family: predictor.FamilyTaken, Benchmark: "gcc", Size: 64}, rec(1, 1, 1, 1, 0))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	err = table.Record(job.Key{Family: predictor.FamilyGShare, Benchmark: "gcc"}, rec(1, 1, 1, 1, 0))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	err = table.Record(job.Key{Family: "perceptron", Benchmark: "gcc", Size: 64}, rec(1, 1, 1, 1, 0))
	assert.ErrorIs(t, err, ErrUnknownFamily)

	err = table.Record(job.Key{Family: predictor.FamilyBimod, Size: 64}, rec(1, 1, 1, 1, 0))
	assert.ErrorIs(t, err, ErrEmptyBenchmark)

	assert.Zero(t, table.Len())
}

func TestTable_DuplicateOverwrites(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Record(bimod("gcc", 64), rec(1.0, 100, 70, 80, 20)))

	err := table.Record(bimod("gcc", 64), rec(3.0, 100, 70, 80, 20))
	assert.ErrorIs(t, err, ErrDuplicateCell)

	got, ok := table.Lookup(bimod("gcc", 64))
	require.True(t, ok)
	assert.Equal(t, 3.0, got[report.MetricIPC], "last write wins")
	assert.Equal(t, 1, table.Len())
}

func TestTable_RecordIsCopied(t *testing.T) {
	table := NewTable()
	r := rec(1.0, 100, 70, 80, 20)
	require.NoError(t, table.Record(bimod("gcc", 64), r))
	r[report.MetricIPC] = 99

	got, _ := table.Lookup(bimod("gcc", 64))
	assert.Equal(t, 1.0, got[report.MetricIPC])
}

func TestTable_FreezeAndCompleteness(t *testing.T) {
	table := NewTable()
	keys := []job.Key{bimod("gcc", 32), bimod("li", 32), {Family: predictor.FamilyTaken, Benchmark: "gcc"}}

	require.NoError(t, table.Record(keys[0], rec(1, 1, 1, 1, 0)))
	require.NoError(t, table.MarkMissing(keys[1], "launch failed"))
	assert.Equal(t, []job.Key{keys[2]}, table.Incomplete(keys))

	assert.ErrorIs(t, table.MarkMissing(keys[0], "late failure"), ErrDuplicateCell)

	table.Freeze()
	assert.True(t, table.Frozen())
	assert.ErrorIs(t, table.Record(keys[2], rec(1, 1, 1, 1, 0)), ErrTableFrozen)
	assert.ErrorIs(t, table.MarkMissing(keys[2], "x"), ErrTableFrozen)

	assert.Equal(t, []MissingCell{{Key: keys[1], Reason: "launch failed"}}, table.Missing())
}

func TestTable_RecordClearsMissingMarker(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.MarkMissing(bimod("gcc", 32), "first attempt failed"))
	require.NoError(t, table.Record(bimod("gcc", 32), rec(1, 1, 1, 1, 0)))
	assert.Empty(t, table.Missing())
}

func TestTable_ConcurrentRecord(t *testing.T) {
	table := NewTable()
	benches := []string{"gcc", "li", "go", "perl", "compress", "ijpeg", "vortex", "m88ksim"}

	var wg sync.WaitGroup
	for _, b := range benches {
		for _, size := range []int{8, 16, 32, 64} {
			wg.Add(1)
			go func(b string, size int) {
				defer wg.Done()
				assert.NoError(t, table.Record(bimod(b, size), rec(1, 10, 5, 8, 2)))
			}(b, size)
		}
	}
	wg.Wait()

	assert.Equal(t, len(benches)*4, table.Len())
	assert.Len(t, table.Cells(), len(benches)*4)
}
