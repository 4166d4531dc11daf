// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/bpsweep/services/sweep/config"
)

const fakeLauncher = `#!/bin/sh
case "$6" in
  gcc) updates=100; dir=80; addr=70 ;;
  li)  updates=50;  dir=45; addr=40 ;;
  *)   echo "unknown benchmark $6" >&2; exit 3 ;;
esac
cat <<EOF
sim_IPC 1.25 # instructions per cycle
bpred_x.updates $updates # total number of updates
bpred_x.addr_hits $addr # total number of address-predicted hits
bpred_x.dir_hits $dir # total number of direction-predicted hits
bpred_x.misses $((updates - dir)) # total number of misses
bpred_x.bpred_addr_rate 0.5 # branch address-prediction rate
bpred_x.bpred_dir_rate 0.5 # branch direction-prediction rate
EOF
`

// writeConfig creates a sweep over gcc and li with one sized family.
func writeConfig(t *testing.T, benchmarks ...string) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	launcher := filepath.Join(dir, "Run.pl")
	require.NoError(t, os.WriteFile(launcher, []byte(fakeLauncher), 0o755))

	cfg := config.DefaultConfig()
	cfg.Simulator.Driver = launcher
	cfg.Simulator.BenchDB = filepath.Join(dir, "bench.db")
	cfg.Simulator.Binary = "sim-outorder"
	cfg.Simulator.ResultsDir = filepath.Join(dir, "results")
	cfg.Simulator.FastForward = 100
	cfg.Simulator.MaxInst = 100
	cfg.Sweep.Benchmarks = benchmarks
	cfg.Sweep.Sizes = []int{512}
	cfg.Sweep.Families = []string{"gshare"}
	cfg.Logging.Level = "error"

	path := filepath.Join(dir, "sweep.yaml")
	require.NoError(t, cfg.Write(path))
	return path, cfg
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestGenerate(t *testing.T) {
	path, cfg := writeConfig(t, "gcc", "li")

	stdout, _, err := execute(t, "generate", "-c", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], cfg.Simulator.Driver+" -db "))
	assert.Contains(t, lines[0], "-benchmark gcc")
	assert.Contains(t, stdout, `-max:inst 100"`)

	_, err = os.Stat(cfg.Simulator.ResultsDir)
	assert.ErrorIs(t, err, os.ErrNotExist, "generate must not run anything")
}

func TestGenerate_Logs(t *testing.T) {
	path, cfg := writeConfig(t, "gcc")

	stdout, _, err := execute(t, "generate", "-c", path, "--logs")
	require.NoError(t, err)
	assert.Contains(t, stdout, filepath.Join(cfg.Simulator.ResultsDir, "gcc_nottaken.out")+"\t")
}

func TestRun_JSON(t *testing.T) {
	path, _ := writeConfig(t, "gcc", "li")

	stdout, _, err := execute(t, "run", "-c", path, "--format", "json", "-j", "2")
	require.NoError(t, err)

	var out struct {
		RunID      string `json:"run_id"`
		Executed   int    `json:"executed"`
		Failed     int    `json:"failed"`
		Aggregates []struct {
			Family  string   `json:"family"`
			Size    int      `json:"size"`
			Samples int      `json:"samples"`
			DirRate *float64 `json:"dir_rate"`
		} `json:"aggregates"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))

	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, 6, out.Executed)
	assert.Zero(t, out.Failed)
	require.Len(t, out.Aggregates, 3)
	assert.Equal(t, "gshare", out.Aggregates[2].Family)
	assert.Equal(t, 512, out.Aggregates[2].Size)
	for _, a := range out.Aggregates {
		assert.Equal(t, 2, a.Samples)
		require.NotNil(t, a.DirRate)
		assert.InDelta(t, 125.0/150.0, *a.DirRate, 1e-9)
	}
}

func TestRun_PlainTableWithFailure(t *testing.T) {
	path, _ := writeConfig(t, "gcc", "li", "vortex")

	stdout, _, err := execute(t, "run", "-c", path, "--output", "plain")
	require.NoError(t, err)

	assert.Contains(t, stdout, "predictor\tsamples\tipc")
	assert.Contains(t, stdout, "gshare_512\t2\t1.2500\t75.0")
	assert.Contains(t, stdout, "WARN: ")
	assert.Contains(t, stdout, "[execute] nottaken/vortex")
	assert.Contains(t, stdout, "SUMMARY: executed=9 reused=0 failed=3 missing_cells=3")
}

func TestRun_YAMLAndMetricsOut(t *testing.T) {
	path, _ := writeConfig(t, "gcc")
	metrics := filepath.Join(t.TempDir(), "sweep.prom")

	stdout, _, err := execute(t, "run", "-c", path, "-f", "yaml", "--metrics-out", metrics)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, 3, out["executed"])

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bpsweep_executor_jobs_total")
}

func TestRun_Resume(t *testing.T) {
	path, cfg := writeConfig(t, "gcc")
	storeDir := filepath.Join(t.TempDir(), "store")

	_, _, err := execute(t, "run", "-c", path, "--store", storeDir, "--output", "plain")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfg.Simulator.Driver, []byte("#!/bin/sh\nexit 9\n"), 0o755))

	stdout, _, err := execute(t, "run", "-c", path, "--store", storeDir, "--resume", "--output", "plain")
	require.NoError(t, err)
	assert.Contains(t, stdout, "SUMMARY: executed=0 reused=3 failed=0 missing_cells=0")
}

func TestRun_BadFlags(t *testing.T) {
	path, _ := writeConfig(t, "gcc")

	_, _, err := execute(t, "run", "-c", path, "--format", "csv")
	assert.ErrorContains(t, err, "unknown format")

	_, _, err = execute(t, "run", "-c", path, "--output", "sparkly")
	assert.ErrorContains(t, err, "unknown style")

	_, _, err = execute(t, "run", "-c", path, "-j", "-1")
	assert.Error(t, err)
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sweep:\n  sizes: [48]\n"), 0o644))

	_, _, err := execute(t, "run", "-c", path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestIngest(t *testing.T) {
	path, cfg := writeConfig(t, "gcc", "li")

	ran, _, err := execute(t, "run", "-c", path, "-f", "json")
	require.NoError(t, err)

	ingested, _, err := execute(t, "ingest", "-c", path, "-f", "json", cfg.Simulator.ResultsDir)
	require.NoError(t, err)

	var a, b struct {
		Aggregates json.RawMessage `json:"aggregates"`
	}
	require.NoError(t, json.Unmarshal([]byte(ran), &a))
	require.NoError(t, json.Unmarshal([]byte(ingested), &b))
	assert.JSONEq(t, string(a.Aggregates), string(b.Aggregates))
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bpsweep.yaml")

	stdout, _, err := execute(t, "init-config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	_, _, err = execute(t, "init-config", path)
	assert.ErrorContains(t, err, "already exists")

	_, _, err = execute(t, "init-config", path, "--force")
	assert.NoError(t, err)
}
