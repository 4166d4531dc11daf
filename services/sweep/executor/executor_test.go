// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/predictor"
)

// writeScript creates an executable shell script in dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// descriptor builds a bimod descriptor running argv with its log in dir.
func descriptor(t *testing.T, dir, bench string, size int, argv ...string) job.Descriptor {
	t.Helper()
	spec, err := predictor.NewSpec(predictor.FamilyBimod, size)
	require.NoError(t, err)
	d := job.Descriptor{
		Benchmark: bench,
		Predictor: spec,
		Command:   argv,
	}
	d.LogPath = filepath.Join(dir, "results", d.Name()+".out")
	return d
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRun_FailureIsIsolated(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "sim.sh", `
echo "sim_IPC 1.25 # instructions per cycle"
echo "warning: $1" >&2
exit "$2"
`)

	var descs []job.Descriptor
	for i := 0; i < 5; i++ {
		code := "0"
		if i == 2 {
			code = "3"
		}
		descs = append(descs, descriptor(t, dir, fmt.Sprintf("bench%d", i), 64, script, fmt.Sprintf("job%d", i), code))
	}

	ex := New(WithConcurrency(1))
	batch, err := ex.Run(context.Background(), descs)
	require.NoError(t, err)
	require.Len(t, batch.Results, 5)
	assert.NotEmpty(t, batch.ID)

	for i, r := range batch.Results {
		require.NotNil(t, r, "result %d", i)
		assert.Equal(t, descs[i].Key(), r.Descriptor.Key(), "results are index-aligned")
		assert.FileExists(t, descs[i].LogPath)
	}

	failures := batch.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "bench2", failures[0].Descriptor.Benchmark)
	assert.Equal(t, 3, failures[0].ExitCode)
	assert.ErrorIs(t, failures[0].Err, ErrJobFailed)
	assert.Equal(t, StatusFailed, failures[0].Status())
	assert.Equal(t, 4, batch.Succeeded())

	ok := batch.Results[0]
	assert.False(t, ok.Failed())
	assert.Contains(t, ok.Output(), "sim_IPC 1.25")
	assert.Contains(t, ok.Output(), "warning: job0")
	assert.Equal(t, "warning: job0\n", string(ok.Stderr))
}

func TestRun_LogFileFormat(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "sim.sh", `
echo "sim_IPC 1.0 # ipc"
exit "$1"
`)
	good := descriptor(t, dir, "gcc", 64, script, "0")
	bad := descriptor(t, dir, "li", 64, script, "7")

	batch, err := New(WithConcurrency(2)).Run(context.Background(), []job.Descriptor{good, bad})
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	goodLog := readLog(t, good.LogPath)
	lines := strings.Split(strings.TrimRight(goodLog, "\n"), "\n")
	assert.Equal(t, "# command: "+good.CommandLine(), lines[0])
	assert.Contains(t, goodLog, "sim_IPC 1.0 # ipc\n")
	assert.Equal(t, "# status: exit 0", lines[len(lines)-1])

	badLog := readLog(t, bad.LogPath)
	assert.True(t, strings.HasSuffix(badLog, "# status: exit 7\n"))
}

func TestRun_LogOverwritten(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "sim.sh", `echo fresh`)
	d := descriptor(t, dir, "gcc", 64, script)

	require.NoError(t, os.MkdirAll(filepath.Dir(d.LogPath), 0o755))
	require.NoError(t, os.WriteFile(d.LogPath, []byte("stale contents\n"), 0o644))

	_, err := New().Run(context.Background(), []job.Descriptor{d})
	require.NoError(t, err)

	log := readLog(t, d.LogPath)
	assert.NotContains(t, log, "stale contents")
	assert.Contains(t, log, "fresh")
}

func TestRun_Timeout(t *testing.T) {
	dir := t.TempDir()
	slow := writeScript(t, dir, "slow.sh", `exec sleep 10`)
	fast := writeScript(t, dir, "fast.sh", `echo done`)

	descs := []job.Descriptor{
		descriptor(t, dir, "gcc", 64, slow),
		descriptor(t, dir, "li", 64, fast),
	}

	start := time.Now()
	batch, err := New(WithConcurrency(2), WithTimeout(300*time.Millisecond)).Run(context.Background(), descs)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 8*time.Second)

	timedOut := batch.Results[0]
	assert.True(t, timedOut.TimedOut)
	assert.True(t, timedOut.Failed())
	assert.Equal(t, -1, timedOut.ExitCode)
	assert.ErrorIs(t, timedOut.Err, ErrJobTimeout)
	assert.Equal(t, StatusTimeout, timedOut.Status())
	assert.Contains(t, readLog(t, descs[0].LogPath), "# status: timed out after 300ms")

	assert.False(t, batch.Results[1].Failed(), "sibling job is unaffected")
}

func TestRun_LaunchError(t *testing.T) {
	dir := t.TempDir()
	d := descriptor(t, dir, "gcc", 64, filepath.Join(dir, "does-not-exist"))

	batch, err := New().Run(context.Background(), []job.Descriptor{d})
	require.NoError(t, err)

	r := batch.Results[0]
	assert.True(t, r.Failed())
	assert.Equal(t, -1, r.ExitCode)
	assert.Equal(t, StatusError, r.Status())

	var jobErr *JobError
	require.ErrorAs(t, r.Err, &jobErr)
	assert.Equal(t, d.Key(), jobErr.Key)
	assert.Contains(t, readLog(t, d.LogPath), "# status: error:")
}

func TestRun_EmptyCommand(t *testing.T) {
	dir := t.TempDir()
	d := descriptor(t, dir, "gcc", 64)

	batch, err := New().Run(context.Background(), []job.Descriptor{d})
	require.NoError(t, err)
	assert.ErrorIs(t, batch.Results[0].Err, ErrEmptyCommand)
	assert.FileExists(t, d.LogPath)
}

func TestRun_ConcurrencyBound(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "lock")
	// mkdir is atomic: a second job running at the same time fails.
	script := writeScript(t, dir, "exclusive.sh", `
mkdir "$1" 2>/dev/null || { echo overlap >&2; exit 9; }
sleep 0.05
rmdir "$1"
`)

	var descs []job.Descriptor
	for i := 0; i < 6; i++ {
		descs = append(descs, descriptor(t, dir, fmt.Sprintf("b%d", i), 32, script, lock))
	}

	batch, err := New(WithConcurrency(1)).Run(context.Background(), descs)
	require.NoError(t, err)
	assert.Empty(t, batch.Failures())
}

func TestRun_CreatesScratchDir(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "sim.sh", `echo ok`)
	d := descriptor(t, dir, "gcc", 64, script)
	d.ScratchDir = filepath.Join(dir, "results", "nested", d.Name())

	_, err := New().Run(context.Background(), []job.Descriptor{d})
	require.NoError(t, err)
	assert.DirExists(t, d.ScratchDir)
}

func TestRun_Env(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "sim.sh", `echo "value=$BPSWEEP_TEST_VALUE"`)
	d := descriptor(t, dir, "gcc", 64, script)

	batch, err := New(WithEnv("BPSWEEP_TEST_VALUE=42")).Run(context.Background(), []job.Descriptor{d})
	require.NoError(t, err)
	assert.Contains(t, batch.Results[0].Output(), "value=42")
}

func TestRun_OutputLimit(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "sim.sh", `echo 0123456789abcdef`)
	d := descriptor(t, dir, "gcc", 64, script)

	batch, err := New(WithMaxOutput(4)).Run(context.Background(), []job.Descriptor{d})
	require.NoError(t, err)

	r := batch.Results[0]
	assert.False(t, r.Failed())
	assert.True(t, r.Truncated)
	assert.Equal(t, "0123", string(r.Stdout))
	assert.Contains(t, readLog(t, d.LogPath), "0123456789abcdef", "the log keeps everything")
}

func TestRun_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "sim.sh", `echo ok`)
	d := descriptor(t, dir, "gcc", 64, script)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := New(WithLaunchRate(100)).Run(ctx, []job.Descriptor{d})
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.True(t, batch.Results[0].Failed())
	assert.False(t, batch.Results[0].TimedOut)
}

func TestRun_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	_, err := New().Run(nil, nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRun_Empty(t *testing.T) {
	batch, err := New().Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
	assert.Empty(t, batch.Failures())
}

func TestWithConcurrency_Default(t *testing.T) {
	assert.Equal(t, 1, New(WithConcurrency(1)).Concurrency())
	assert.Positive(t, New(WithConcurrency(0)).Concurrency())
	assert.Positive(t, New().Concurrency())
}

func TestTailLines(t *testing.T) {
	assert.Equal(t, "c\nd", tailLines([]byte("a\nb\nc\nd\n"), 2))
	assert.Equal(t, "a", tailLines([]byte("a\n"), 5))
	assert.Equal(t, "", tailLines(nil, 5))
}

func TestTimedOut_RequiresFailure(t *testing.T) {
	e := New(WithTimeout(time.Millisecond))

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	parent := context.Background()

	assert.False(t, e.timedOut(nil, expired, parent), "clean exit past the deadline is not a timeout")
	assert.True(t, e.timedOut(fmt.Errorf("signal: killed"), expired, parent))

	canceled, cancelParent := context.WithCancel(context.Background())
	cancelParent()
	assert.False(t, e.timedOut(fmt.Errorf("signal: killed"), expired, canceled), "parent cancellation is not a timeout")

	assert.False(t, New().timedOut(fmt.Errorf("signal: killed"), expired, parent), "no timeout configured")
}
