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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bpsweep/services/sweep/driver"
	"github.com/AleutianAI/bpsweep/services/sweep/executor"
	"github.com/AleutianAI/bpsweep/services/sweep/store"
	"github.com/AleutianAI/bpsweep/services/sweep/telemetry"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	format      string
	metricsOut  string
	concurrency int
	timeout     time.Duration
	storePath   string
	resume      bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sweep and report aggregate prediction rates",
		Long: `Runs every job of the configured sweep under a bounded worker pool,
parses each job's statistics, and prints one aggregate row per predictor
configuration. Failed jobs become missing cells and are listed with the
other diagnostics; they never stop the sweep.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			flags := cmd.Flags()
			if flags.Changed("concurrency") {
				a.cfg.Execution.Concurrency = opts.concurrency
			}
			if flags.Changed("timeout") {
				a.cfg.Execution.Timeout.Duration = opts.timeout
			}
			if flags.Changed("store") {
				a.cfg.Store.Path = opts.storePath
			}
			if flags.Changed("resume") {
				a.cfg.Store.Resume = opts.resume
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runSweep(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", formatTable, "Report format: table, json or yaml")
	f.StringVar(&opts.metricsOut, "metrics-out", "", "Write prometheus metrics to this file after the sweep")
	f.IntVarP(&opts.concurrency, "concurrency", "j", 0, "Override execution.concurrency (0 = one job per CPU)")
	f.DurationVar(&opts.timeout, "timeout", 0, "Override execution.timeout (0 disables it)")
	f.StringVar(&opts.storePath, "store", "", "Override store.path (result cache directory)")
	f.BoolVar(&opts.resume, "resume", false, "Reuse stored results instead of re-running their jobs")
	return cmd
}

// runSweep wires configuration into the telemetry, store, executor and
// driver, runs the sweep, and renders the outcome.
func (a *app) runSweep(ctx context.Context, opts runOptions) error {
	logger := a.logger.Slog()
	cfg := a.cfg

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = cfg.Telemetry.ServiceName
	tcfg.TraceExporter = cfg.Telemetry.Traces
	tcfg.MetricExporter = cfg.Telemetry.Metrics
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	tcfg.Writer = a.stderr
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	var results *store.ResultStore
	if cfg.Store.Path != "" {
		scfg := store.DefaultConfig(cfg.Store.Path)
		scfg.Logger = logger
		results, err = store.Open(scfg)
		if err != nil {
			return fmt.Errorf("open result store: %w", err)
		}
		defer results.Close()
	}

	execOpts := []executor.Option{
		executor.WithConcurrency(cfg.Execution.Concurrency),
		executor.WithTimeout(cfg.Execution.Timeout.Duration),
		executor.WithLaunchRate(cfg.Execution.LaunchRate),
		executor.WithLogger(logger),
	}
	if cfg.Execution.MaxOutputBytes > 0 {
		execOpts = append(execOpts, executor.WithMaxOutput(cfg.Execution.MaxOutputBytes))
	}
	exec := executor.New(execOpts...)

	d := driver.New(cfg.GeneratorConfig(),
		driver.WithRunner(exec),
		driver.WithStore(results, cfg.Store.Resume),
		driver.WithLogger(logger),
	)

	logger.Info("Starting sweep",
		slog.Int("concurrency", exec.Concurrency()),
		slog.Duration("timeout", cfg.Execution.Timeout.Duration),
		slog.String("results_dir", cfg.Simulator.ResultsDir),
	)

	out, err := d.Run(ctx)
	if err != nil {
		return err
	}

	if err := renderOutcome(a.printer, opts.format, out); err != nil {
		return err
	}

	if opts.metricsOut != "" {
		if err := telemetry.WriteMetrics(opts.metricsOut); err != nil {
			return err
		}
		logger.Info("Metrics written", slog.String("path", opts.metricsOut))
	}
	return nil
}
