// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/predictor"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bpsweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, time.Hour, cfg.Execution.Timeout.Duration)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
simulator:
  results_dir: /tmp/results
  max_inst: 5000
sweep:
  benchmarks: [gcc, li]
  sizes: [32, 64]
  families: [bimod]
execution:
  concurrency: 3
  timeout: 90s
  launch_rate: 2.5
store:
  path: /tmp/bpsweep.db
  resume: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "simulator/Run.pl", cfg.Simulator.Driver, "unset fields keep defaults")
	assert.Equal(t, "/tmp/results", cfg.Simulator.ResultsDir)
	assert.Equal(t, int64(5000), cfg.Simulator.MaxInst)
	assert.Equal(t, []string{"gcc", "li"}, cfg.Sweep.Benchmarks)
	assert.Equal(t, []int{32, 64}, cfg.Sweep.Sizes)
	assert.Equal(t, 3, cfg.Execution.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Execution.Timeout.Duration)
	assert.Equal(t, 2.5, cfg.Execution.LaunchRate)
	assert.True(t, cfg.Store.Resume)

	gen := cfg.GeneratorConfig()
	assert.Equal(t, []predictor.Family{predictor.FamilyBimod}, gen.Families)
	assert.Equal(t, "simulator/ss3/sim-outorder", gen.Simulator)

	descs, err := job.Generate(gen)
	require.NoError(t, err)
	assert.Len(t, descs, 8)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"size not power of two", "sweep:\n  sizes: [48]\n", "is not a power of two"},
		{"size below minimum", "sweep:\n  sizes: [4]\n", "is not a power of two"},
		{"duplicate size", "sweep:\n  sizes: [64, 64]\n", "must not contain duplicates"},
		{"size-less family", "sweep:\n  families: [taken]\n", "not a table-backed predictor family"},
		{"unknown family", "sweep:\n  families: [perceptron]\n", "not a table-backed predictor family"},
		{"no benchmarks", "sweep:\n  benchmarks: []\n", "Sweep.Benchmarks"},
		{"empty driver", "simulator:\n  driver: \"\"\n", "Simulator.Driver is required"},
		{"bad trace exporter", "telemetry:\n  traces: jaeger\n", "must be one of"},
		{"otlp without endpoint", "telemetry:\n  traces: otlp\n", "OTLPEndpoint"},
		{"bad level", "logging:\n  level: loud\n", "must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "execution:\n  timeout: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse the config file")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Execution.Timeout = Duration{Duration: 45 * time.Minute}
	require.NoError(t, cfg.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 45m0s")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
