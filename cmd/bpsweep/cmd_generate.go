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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
)

func newGenerateCmd(a *app) *cobra.Command {
	var showLogs bool

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen", "dry-run"},
		Short:   "Print the sweep's command lines without running them",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			descs, err := job.Generate(a.cfg.GeneratorConfig())
			if err != nil {
				return err
			}
			for _, d := range descs {
				if showLogs {
					fmt.Fprintf(a.stdout, "%s\t%s\n", d.LogPath, d.CommandLine())
					continue
				}
				fmt.Fprintln(a.stdout, d.CommandLine())
			}
			a.logger.Debug("Sweep generated", "jobs", len(descs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showLogs, "logs", false, "Prefix each command with its log path")
	return cmd
}
