// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package driver runs a complete sweep.
//
// # Pipeline
//
//	Generate ──► Execute (barrier) ──► Parse ──► Record / MarkMissing ──► Freeze ──► Aggregate
//	    │               │                 │              │                                │
//	 fatal on      failures become    misses become   store writes                  skipped cells
//	 bad config    missing cells      diagnostics     (optional)                    become diagnostics
//
// Only configuration errors stop a sweep. Everything else is collected as
// diagnostics and returned with whatever aggregates could be computed.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/bpsweep/services/sweep/diag"
	"github.com/AleutianAI/bpsweep/services/sweep/executor"
	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/report"
	"github.com/AleutianAI/bpsweep/services/sweep/stats"
	"github.com/AleutianAI/bpsweep/services/sweep/store"
)

var tracer = otel.Tracer("bpsweep.driver")

// ErrNilContext indicates a nil context was passed.
var ErrNilContext = errors.New("context must not be nil")

// Runner executes a batch of descriptors. *executor.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, descs []job.Descriptor) (*executor.Batch, error)
}

// Outcome is everything a sweep produced.
type Outcome struct {
	// RunID uniquely identifies this sweep.
	RunID string `json:"run_id" yaml:"run_id"`

	// Descriptors is the generated sweep (empty for Ingest).
	Descriptors []job.Descriptor `json:"-" yaml:"-"`

	// Executed counts jobs run (logs read, for Ingest). Reused counts
	// cells filled from the store. Failed counts cells left missing.
	Executed int `json:"executed" yaml:"executed"`
	Reused   int `json:"reused" yaml:"reused"`
	Failed   int `json:"failed" yaml:"failed"`

	// Table is the frozen metric table.
	Table *stats.Table `json:"-" yaml:"-"`

	Aggregates  []stats.AggregateRecord `json:"aggregates" yaml:"aggregates"`
	Missing     []stats.MissingCell     `json:"missing" yaml:"missing"`
	Diagnostics []diag.Diagnostic       `json:"diagnostics" yaml:"diagnostics"`

	Started  time.Time     `json:"started" yaml:"started"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Driver runs sweeps.
//
// Thread Safety: Safe for concurrent use; each Run builds its own table.
type Driver struct {
	gen    job.GeneratorConfig
	runner Runner
	store  *store.ResultStore
	resume bool
	logger *slog.Logger
}

// Option configures the Driver.
type Option func(*Driver)

// WithRunner sets the job runner. Defaults to executor.New().
func WithRunner(r Runner) Option {
	return func(d *Driver) {
		d.runner = r
	}
}

// WithStore persists fresh records to s. With resume set, descriptors
// whose records are already stored are not executed again.
func WithStore(s *store.ResultStore, resume bool) Option {
	return func(d *Driver) {
		d.store = s
		d.resume = resume
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a driver for the sweep described by gen.
//
// Inputs:
//
//	gen - The sweep to generate
//	opts - Optional configuration options
//
// Outputs:
//
//	*Driver - The configured driver
func New(gen job.GeneratorConfig, opts ...Option) *Driver {
	d := &Driver{
		gen:    gen,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runner == nil {
		d.runner = executor.New(executor.WithLogger(d.logger))
	}
	return d
}

// Run executes the sweep end to end.
//
// Description:
//
//	Generates descriptors, executes them behind a full-batch barrier,
//	parses each successful job's output, records it, marks failed jobs
//	as missing cells, freezes the table and aggregates it.
//
// Inputs:
//
//	ctx - Context for cancellation
//
// Outputs:
//
//	*Outcome - Aggregates, missing cells and diagnostics
//	error - A *job.ConfigError for an invalid sweep, or ErrNilContext
//
// Thread Safety: Safe for concurrent use.
func (d *Driver) Run(ctx context.Context) (*Outcome, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	descs, err := job.Generate(d.gen)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		RunID:       uuid.NewString(),
		Descriptors: descs,
		Table:       stats.NewTable(),
		Started:     time.Now(),
	}
	logger := d.logger.With(slog.String("run_id", out.RunID))

	ctx, span := tracer.Start(ctx, "Driver.Run",
		trace.WithAttributes(
			attribute.String("sweep.run_id", out.RunID),
			attribute.Int("sweep.jobs", len(descs)),
		),
	)
	defer span.End()

	logger.Info("Sweep generated",
		slog.Int("jobs", len(descs)),
		slog.Int("benchmarks", len(d.gen.Benchmarks)),
		slog.Int("sizes", len(d.gen.Sizes)),
	)

	var diags diag.List
	pending := d.reuse(ctx, logger, descs, out, &diags)

	batch, err := d.runner.Run(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("execute sweep: %w", err)
	}
	out.Executed = len(batch.Results)

	for _, r := range batch.Results {
		d.collect(ctx, logger, out, r, &diags)
	}

	keys := make([]job.Key, len(descs))
	for i, desc := range descs {
		keys[i] = desc.Key()
	}
	for _, k := range out.Table.Incomplete(keys) {
		_ = out.Table.MarkMissing(k, "no result produced")
	}

	d.finish(logger, out, &diags)
	span.SetAttributes(
		attribute.Int("sweep.failed", out.Failed),
		attribute.Int("sweep.reused", out.Reused),
		attribute.Int("sweep.diagnostics", len(out.Diagnostics)),
	)
	return out, nil
}

// reuse fills cells from the store and returns the descriptors that
// still need to run.
func (d *Driver) reuse(ctx context.Context, logger *slog.Logger, descs []job.Descriptor, out *Outcome, diags *diag.List) []job.Descriptor {
	if d.store == nil || !d.resume {
		return descs
	}

	pending := make([]job.Descriptor, 0, len(descs))
	for _, desc := range descs {
		rec, ok, err := d.store.Lookup(ctx, desc)
		if err != nil {
			diags.Add(diag.Diagnostic{
				Stage:  diag.StageStore,
				Key:    desc.Key(),
				Reason: "lookup failed, re-running: " + err.Error(),
			})
		}
		if !ok {
			pending = append(pending, desc)
			continue
		}
		if err := out.Table.Record(desc.Key(), rec); err != nil {
			logger.Error("Recording stored result failed",
				slog.String("key", desc.Key().String()),
				slog.String("error", err.Error()),
			)
		}
		out.Reused++
	}

	logger.Info("Resumed from store",
		slog.Int("reused", out.Reused),
		slog.Int("pending", len(pending)),
	)
	return pending
}

// collect turns one job result into a table cell.
func (d *Driver) collect(ctx context.Context, logger *slog.Logger, out *Outcome, r *executor.Result, diags *diag.List) {
	key := r.Descriptor.Key()

	if r.Failed() {
		out.Failed++
		reason := r.Reason()
		diags.Add(diag.Diagnostic{Stage: diag.StageExecute, Key: key, Reason: reason})
		if err := out.Table.MarkMissing(key, reason); err != nil {
			logger.Error("Marking cell missing failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	parsed := report.Parse(r.Descriptor, r.Output())
	diags.Add(parsed.Diagnostics...)

	if err := out.Table.Record(key, parsed.Record); err != nil {
		// The generator never emits duplicates, so this is a bug.
		logger.Error("Recording result failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}

	if d.store == nil || !parsed.Record.Has(stats.RequiredMetrics...) {
		return
	}
	err := d.store.Put(ctx, store.Entry{
		Key:     key,
		Command: r.Descriptor.CommandLine(),
		RunID:   out.RunID,
		Record:  parsed.Record,
	})
	if err != nil {
		diags.Add(diag.Diagnostic{Stage: diag.StageStore, Key: key, Reason: err.Error()})
	}
}

// finish freezes the table, aggregates it and logs the summary.
func (d *Driver) finish(logger *slog.Logger, out *Outcome, diags *diag.List) {
	out.Table.Freeze()

	aggs, aggDiags := out.Table.Aggregate()
	diags.Add(aggDiags...)

	out.Aggregates = aggs
	out.Missing = out.Table.Missing()
	out.Diagnostics = diags.Items()
	out.Duration = time.Since(out.Started)

	for _, dg := range out.Diagnostics {
		logger.Debug("Diagnostic",
			slog.String("stage", string(dg.Stage)),
			slog.String("key", dg.Key.String()),
			slog.String("metric", dg.Metric),
			slog.String("reason", dg.Reason),
		)
	}

	level := slog.LevelInfo
	if len(out.Missing) > 0 {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "Sweep finished",
		slog.Int("cells", out.Table.Len()),
		slog.Int("missing", len(out.Missing)),
		slog.Int("aggregates", len(out.Aggregates)),
		slog.Int("diagnostics", len(out.Diagnostics)),
		slog.Duration("elapsed", out.Duration),
	)
}
