// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/bpsweep/services/sweep/diag"
	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/report"
	"github.com/AleutianAI/bpsweep/services/sweep/stats"
)

// statusPattern finds the trailer the executor writes to each job log.
var statusPattern = regexp.MustCompile(`(?m)^# status: (.+)$`)

// Ingest aggregates logs produced outside a sweep.
//
// Description:
//
//	Parses every *.out file directly in dir, recovering each job's
//	identity from its file name. Logs whose executor trailer reports a
//	failure become missing cells. Files whose names carry no identity
//	are reported as ingest diagnostics and skipped.
//
// Inputs:
//
//	ctx - Context for cancellation
//	dir - Directory of job logs
//
// Outputs:
//
//	*Outcome - Aggregates, missing cells and diagnostics
//	error - Non-nil if dir cannot be read or ctx is canceled
//
// Thread Safety: Safe for concurrent use.
func (d *Driver) Ingest(ctx context.Context, dir string) (*Outcome, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	out := &Outcome{
		RunID:   uuid.NewString(),
		Table:   stats.NewTable(),
		Started: time.Now(),
	}
	logger := d.logger.With(slog.String("run_id", out.RunID))

	ctx, span := tracer.Start(ctx, "Driver.Ingest")
	defer span.End()

	var (
		diags diag.List
		names []string
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), report.LogSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	logger.Info("Ingesting logs",
		slog.String("dir", dir),
		slog.Int("files", len(names)),
	)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.ingestFile(logger, filepath.Join(dir, name), out, &diags)
	}

	d.finish(logger, out, &diags)
	return out, nil
}

// ingestFile records one log file.
//
// Logs that map to the same cell (a width-less name next to one carrying
// the width) are all counted; the later file in name order replaces the
// earlier one's record.
func (d *Driver) ingestFile(logger *slog.Logger, path string, out *Outcome, diags *diag.List) {
	name := filepath.Base(path)

	key, text, err := report.ReadLog(path)
	if err != nil {
		if errors.Is(err, report.ErrBadLogName) {
			key = job.Key{Benchmark: name}
		}
		diags.Add(diag.Diagnostic{Stage: diag.StageIngest, Key: key, Reason: err.Error()})
		return
	}

	if m := statusPattern.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "exit 0" {
		out.Failed++
		reason := strings.TrimSpace(m[1])
		diags.Add(diag.Diagnostic{Stage: diag.StageIngest, Key: key, Reason: "job log reports " + reason})
		if err := out.Table.MarkMissing(key, reason); err != nil {
			diags.Add(diag.Diagnostic{Stage: diag.StageIngest, Key: key, Reason: err.Error()})
		}
		return
	}

	parsed := report.ParseKey(key, text)
	diags.Add(parsed.Diagnostics...)
	if err := out.Table.Record(key, parsed.Record); err != nil {
		if !errors.Is(err, stats.ErrDuplicateCell) {
			diags.Add(diag.Diagnostic{Stage: diag.StageIngest, Key: key, Reason: fmt.Sprintf("%s: %v", name, err)})
			return
		}
		diags.Add(diag.Diagnostic{
			Stage:  diag.StageIngest,
			Key:    key,
			Reason: fmt.Sprintf("%s replaced the record of an earlier log for the same cell", name),
		})
	}
	out.Executed++

	logger.Debug("Ingested log",
		slog.String("file", name),
		slog.String("key", key.String()),
		slog.Int("metrics", len(parsed.Record)),
	)
}
