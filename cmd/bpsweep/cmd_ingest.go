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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/bpsweep/services/sweep/driver"
)

func newIngestCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Aggregate existing job logs without running the simulator",
		Long: `Parses every <benchmark>_<family>[_<size>[_<width>]].out file in dir
(simulator.results_dir by default), recovering each job's identity from
its file name, and reports the same aggregates as run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			dir := a.cfg.Simulator.ResultsDir
			if len(args) == 1 {
				dir = args[0]
			}

			d := driver.New(a.cfg.GeneratorConfig(), driver.WithLogger(a.logger.Slog()))
			out, err := d.Ingest(cmd.Context(), dir)
			if err != nil {
				return err
			}
			return renderOutcome(a.printer, format, out)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Report format: table, json or yaml")
	return cmd
}
