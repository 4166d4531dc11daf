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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bpsweep/pkg/logging"
	"github.com/AleutianAI/bpsweep/pkg/ux"
	"github.com/AleutianAI/bpsweep/services/sweep/config"
)

// app carries the state shared by every command.
type app struct {
	// Persistent flags.
	configPath string
	logLevel   string
	logDir     string
	output     string

	stdout io.Writer
	stderr io.Writer

	// Populated by setup.
	cfg     *config.Config
	logger  *logging.Logger
	printer *ux.Printer
}

// newRootCmd builds the command tree writing to stdout and stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "bpsweep",
		Short: "Sweep branch predictor configurations across benchmarks",
		Long: `bpsweep runs the simulator once per benchmark, predictor family and
table size, parses each run's statistics, and reports per-configuration
aggregates computed as ratios of summed counts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Sweep configuration file (YAML). Defaults apply when omitted.")
	pf.StringVar(&a.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	pf.StringVar(&a.logDir, "log-dir", "", "Also write JSON logs to this directory")
	pf.StringVar(&a.output, "output", "", "Console style: rich or plain (detected from the terminal when empty)")

	root.AddCommand(
		newRunCmd(a),
		newGenerateCmd(a),
		newIngestCmd(a),
		newInitConfigCmd(a),
	)
	return root
}

// setup loads the configuration and builds the logger and printer.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logDir != "" {
		cfg.Logging.Dir = a.logDir
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}

	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Writer:  a.stderr,
	})

	mode := ux.ParseMode(a.output)
	switch {
	case mode == "" && a.output != "":
		return fmt.Errorf("--output: unknown style %q", a.output)
	case mode == "":
		mode = ux.DetectMode(a.stdout)
	}
	a.printer = ux.NewPrinterMode(a.stdout, mode)
	return nil
}

// close releases the logger.
func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
