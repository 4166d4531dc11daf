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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
)

// Package-level tracer and meter for executor operations.
var (
	tracer = otel.Tracer("bpsweep.executor")
	meter  = otel.Meter("bpsweep.executor")
)

// OpenTelemetry instruments.
var (
	jobLatency metric.Float64Histogram
	jobTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// Prometheus collectors, registered on the default registry so
// `bpsweep run --metrics-out` can write them as a textfile.
var (
	// jobsCompleted counts finished jobs.
	// Labels: family, status (ok, failed, timeout, error)
	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bpsweep",
		Subsystem: "executor",
		Name:      "jobs_total",
		Help:      "Total simulator jobs completed by status",
	}, []string{"family", "status"})

	// jobDuration measures wall time per simulator job.
	// Labels: family
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bpsweep",
		Subsystem: "executor",
		Name:      "job_duration_seconds",
		Help:      "Simulator job wall time in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"family"})

	// jobsInFlight tracks running simulator processes.
	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bpsweep",
		Subsystem: "executor",
		Name:      "jobs_in_flight",
		Help:      "Simulator jobs currently running",
	})
)

// initMetrics initializes the otel instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		jobLatency, err = meter.Float64Histogram(
			"sweep_job_duration_seconds",
			metric.WithDescription("Duration of simulator jobs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		jobTotal, err = meter.Int64Counter(
			"sweep_job_total",
			metric.WithDescription("Total number of simulator jobs"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startBatchSpan creates a span covering a whole batch.
func startBatchSpan(ctx context.Context, batchID string, jobs, concurrency int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Executor.Run",
		trace.WithAttributes(
			attribute.String("sweep.batch_id", batchID),
			attribute.Int("sweep.jobs", jobs),
			attribute.Int("sweep.concurrency", concurrency),
		),
	)
}

// startJobSpan creates a span for one simulator job.
func startJobSpan(ctx context.Context, d job.Descriptor) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Executor.runJob",
		trace.WithAttributes(
			attribute.String("sweep.benchmark", d.Benchmark),
			attribute.String("sweep.family", string(d.Predictor.Family)),
			attribute.Int("sweep.size", d.Predictor.Size),
		),
	)
}

// setJobSpanResult sets the result attributes on a job span.
func setJobSpanResult(span trace.Span, r *Result) {
	span.SetAttributes(
		attribute.Int("sweep.exit_code", r.ExitCode),
		attribute.Bool("sweep.timed_out", r.TimedOut),
	)
	if r.Err != nil {
		span.RecordError(r.Err)
		span.SetStatus(codes.Error, r.Err.Error())
	}
}

// recordJobMetrics records otel and prometheus metrics for one job.
func recordJobMetrics(ctx context.Context, r *Result) {
	family := string(r.Descriptor.Predictor.Family)
	status := r.Status()

	jobsCompleted.WithLabelValues(family, status).Inc()
	jobDuration.WithLabelValues(family).Observe(r.Duration.Seconds())

	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("family", family),
		attribute.String("status", status),
	)
	jobLatency.Record(ctx, r.Duration.Seconds(), attrs)
	jobTotal.Add(ctx, 1, attrs)
}

// recordBatchSpanResult sets summary attributes on the batch span.
func recordBatchSpanResult(span trace.Span, b *Batch, elapsed time.Duration) {
	span.SetAttributes(
		attribute.Int("sweep.failed", len(b.Failures())),
		attribute.Float64("sweep.elapsed_seconds", elapsed.Seconds()),
	)
}
