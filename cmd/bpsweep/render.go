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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/bpsweep/pkg/ux"
	"github.com/AleutianAI/bpsweep/services/sweep/driver"
	"github.com/AleutianAI/bpsweep/services/sweep/stats"
)

// Report formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// checkFormat rejects unknown --format values before any work starts.
func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("--format: unknown format %q (want table, json or yaml)", format)
	}
}

// aggregateHeaders are the table columns for aggregate rows.
var aggregateHeaders = []string{
	"predictor", "samples", "ipc", "updates", "addr_hits", "dir_hits", "misses", "addr_rate", "dir_rate",
}

// renderOutcome writes out in the requested format.
func renderOutcome(p *ux.Printer, format string, out *driver.Outcome) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(p.Writer())
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	case formatYAML:
		enc := yaml.NewEncoder(p.Writer())
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()

	case formatTable:
		renderTable(p, out)
		return nil

	default:
		return checkFormat(format)
	}
}

// renderTable prints the aggregate table, the diagnostics and a summary.
func renderTable(p *ux.Printer, out *driver.Outcome) {
	p.Title("Branch predictor sweep " + out.RunID)

	rows := make([][]string, len(out.Aggregates))
	for i, a := range out.Aggregates {
		rows[i] = aggregateRow(a)
	}
	p.Table(aggregateHeaders, rows)

	if len(out.Diagnostics) > 0 {
		p.Warning(fmt.Sprintf("%d diagnostics", len(out.Diagnostics)))
		for _, d := range out.Diagnostics {
			p.Info(d.String())
		}
	}

	p.Summary(
		ux.Counts{Label: "executed", Value: out.Executed},
		ux.Counts{Label: "reused", Value: out.Reused},
		ux.Counts{Label: "failed", Value: out.Failed, Bad: true},
		ux.Counts{Label: "missing cells", Value: len(out.Missing), Bad: true},
	)
}

// aggregateRow renders one aggregate. Undefined values print as "-".
func aggregateRow(a stats.AggregateRecord) []string {
	return []string{
		a.Label(),
		strconv.Itoa(a.Samples),
		optional(a.MeanIPC, 4),
		optional(a.MeanUpdates, 1),
		optional(a.MeanAddrHits, 1),
		optional(a.MeanDirHits, 1),
		optional(a.MeanMisses, 1),
		optional(a.AddrRate, 4),
		optional(a.DirRate, 4),
	}
}

func optional(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return strings.TrimSpace(strconv.FormatFloat(*v, 'f', prec, 64))
}
