// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor runs simulator jobs as child processes.
//
// Jobs run through a bounded worker pool and Run returns only after every
// job has finished. A failing or timed-out job never cancels its siblings;
// its Result carries the reason instead.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
)

const (
	// DefaultMaxOutput caps each captured stream per job.
	DefaultMaxOutput = 16 << 20

	// stderrTailLines is how much stderr a failure log shows.
	stderrTailLines = 5

	// waitDelay bounds how long Wait blocks on pipes after a kill.
	waitDelay = 2 * time.Second
)

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor launches simulator jobs.
//
// Thread Safety: Safe for concurrent use. Each job creates its own process.
type Executor struct {
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
	maxOutput   int
	env         []string
	logger      *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithConcurrency bounds the number of simultaneously running jobs.
// Values below 1 select runtime.NumCPU().
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		e.concurrency = n
	}
}

// WithTimeout kills any job running longer than d. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithLaunchRate limits job launches to perSecond. Zero disables it.
func WithLaunchRate(perSecond float64) Option {
	return func(e *Executor) {
		if perSecond <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithMaxOutput caps each captured stream at n bytes.
func WithMaxOutput(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// WithEnv appends KEY=VALUE pairs to every job's environment.
func WithEnv(env ...string) Option {
	return func(e *Executor) {
		e.env = append(e.env, env...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an executor.
//
// Inputs:
//
//	opts - Optional configuration options
//
// Outputs:
//
//	*Executor - Executor with runtime.NumCPU() workers and no timeout
//	            unless configured otherwise
func New(opts ...Option) *Executor {
	e := &Executor{
		concurrency: runtime.NumCPU(),
		maxOutput:   DefaultMaxOutput,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Concurrency returns the worker bound.
func (e *Executor) Concurrency() int {
	return e.concurrency
}

// Run executes every descriptor and waits for all of them.
//
// Description:
//
//	Each descriptor is launched as its own process with no shell, at most
//	Concurrency at a time. Run is a barrier: it returns only after every
//	job has exited, been killed, or failed to launch. Job failures are
//	recorded in their Result and never cancel other jobs. Canceling ctx
//	kills running jobs and fails the ones not yet launched.
//
// Inputs:
//
//	ctx - Context for cancellation
//	descs - Jobs to run
//
// Outputs:
//
//	*Batch - One Result per descriptor, index-aligned with descs
//	error - ErrNilContext only; job failures are never returned here
//
// Thread Safety: Safe for concurrent use.
func (e *Executor) Run(ctx context.Context, descs []job.Descriptor) (*Batch, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	batch := &Batch{
		ID:      uuid.NewString(),
		Results: make([]*Result, len(descs)),
		Started: time.Now(),
	}

	ctx, span := startBatchSpan(ctx, batch.ID, len(descs), e.concurrency)
	defer span.End()

	e.logger.Info("Starting batch",
		slog.String("batch_id", batch.ID),
		slog.Int("jobs", len(descs)),
		slog.Int("concurrency", e.concurrency),
		slog.Duration("timeout", e.timeout),
	)

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, d := range descs {
		i, d := i, d
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				batch.Results[i] = e.notLaunched(d, err)
				continue
			}
		}
		g.Go(func() error {
			batch.Results[i] = e.runJob(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	batch.Duration = time.Since(batch.Started)
	recordBatchSpanResult(span, batch, batch.Duration)

	e.logger.Info("Batch finished",
		slog.String("batch_id", batch.ID),
		slog.Int("succeeded", batch.Succeeded()),
		slog.Int("failed", len(batch.Failures())),
		slog.Duration("elapsed", batch.Duration),
	)
	return batch, nil
}

// notLaunched builds the result for a job that never started.
func (e *Executor) notLaunched(d job.Descriptor, cause error) *Result {
	r := &Result{
		Descriptor: d,
		ExitCode:   -1,
		Started:    time.Now(),
		Err:        &JobError{Key: d.Key(), ExitCode: -1, Err: fmt.Errorf("not launched: %w", cause)},
	}
	logFile, err := openJobLog(d)
	if err != nil {
		e.finish(context.Background(), r, nil)
		return r
	}
	defer logFile.Close()
	e.finish(context.Background(), r, logFile)
	return r
}

// runJob runs one descriptor to completion.
func (e *Executor) runJob(ctx context.Context, d job.Descriptor) *Result {
	ctx, span := startJobSpan(ctx, d)
	defer span.End()

	r := &Result{Descriptor: d, Started: time.Now()}

	logFile, err := openJobLog(d)
	if err != nil {
		r.ExitCode = -1
		r.Err = &JobError{Key: d.Key(), ExitCode: -1, Err: err}
		e.finish(ctx, r, nil)
		setJobSpanResult(span, r)
		return r
	}
	defer logFile.Close()

	if len(d.Command) == 0 {
		r.ExitCode = -1
		r.Err = &JobError{Key: d.Key(), ExitCode: -1, Err: ErrEmptyCommand}
		e.finish(ctx, r, logFile)
		setJobSpanResult(span, r)
		return r
	}

	e.execute(ctx, d, r, logFile)
	e.finish(ctx, r, logFile)
	setJobSpanResult(span, r)
	return r
}

// execute runs the process and fills in r.
func (e *Executor) execute(ctx context.Context, d job.Descriptor, r *Result, logFile io.Writer) {
	jobCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(jobCtx, d.Command[0], d.Command[1:]...)
	cmd.WaitDelay = waitDelay
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}

	// Both streams go to the job log in arrival order and to their own
	// bounded buffers.
	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: e.maxOutput}
	stderrLimited := &limitedWriter{w: &stderr, limit: e.maxOutput}
	combined := &lockedWriter{w: logFile}
	cmd.Stdout = io.MultiWriter(stdoutLimited, combined)
	cmd.Stderr = io.MultiWriter(stderrLimited, combined)

	e.logger.Debug("Launching job",
		slog.String("job", d.Name()),
		slog.String("command", d.CommandLine()),
	)

	jobsInFlight.Inc()
	err := cmd.Run()
	jobsInFlight.Dec()

	r.Duration = time.Since(r.Started)
	r.Stdout = stdout.Bytes()
	r.Stderr = stderr.Bytes()
	r.Truncated = stdoutLimited.truncated || stderrLimited.truncated

	if e.timedOut(err, jobCtx, ctx) {
		r.TimedOut = true
		r.ExitCode = -1
		r.Err = &JobError{Key: d.Key(), ExitCode: -1, Err: fmt.Errorf("%w after %s", ErrJobTimeout, e.timeout)}
		return
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			r.ExitCode = exitErr.ExitCode()
			r.Err = &JobError{Key: d.Key(), ExitCode: r.ExitCode, Err: ErrJobFailed}
			return
		}
		r.ExitCode = -1
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		r.Err = &JobError{Key: d.Key(), ExitCode: -1, Err: err}
		return
	}
	r.ExitCode = 0
}

// timedOut reports whether a job's failure was caused by its own timeout.
// A job that exited cleanly is never a timeout, even when its deadline
// passed before the check runs.
func (e *Executor) timedOut(runErr error, jobCtx, parent context.Context) bool {
	return runErr != nil &&
		e.timeout > 0 &&
		errors.Is(jobCtx.Err(), context.DeadlineExceeded) &&
		parent.Err() == nil
}

// finish writes the log trailer, records metrics, and logs the outcome.
func (e *Executor) finish(ctx context.Context, r *Result, logFile io.Writer) {
	if r.Duration == 0 {
		r.Duration = time.Since(r.Started)
	}
	if logFile != nil {
		fmt.Fprintf(logFile, "\n# status: %s\n", r.statusLine(e.timeout))
	}

	recordJobMetrics(ctx, r)

	d := r.Descriptor
	if !r.Failed() {
		e.logger.Debug("Job completed",
			slog.String("job", d.Name()),
			slog.Duration("duration", r.Duration),
		)
		return
	}
	e.logger.Warn("Job failed",
		slog.String("job", d.Name()),
		slog.String("status", r.Status()),
		slog.Int("exit_code", r.ExitCode),
		slog.String("reason", r.Reason()),
		slog.String("stderr_tail", tailLines(r.Stderr, stderrTailLines)),
		slog.String("log", d.LogPath),
	)
}

// openJobLog creates (or truncates) the job's log file and its
// directories, and writes the command header.
func openJobLog(d job.Descriptor) (*os.File, error) {
	if d.ScratchDir != "" {
		if err := os.MkdirAll(d.ScratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating scratch dir: %w", err)
		}
	}
	if d.LogPath == "" {
		return nil, fmt.Errorf("descriptor %s has no log path", d.Name())
	}
	if err := os.MkdirAll(filepath.Dir(d.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.Create(d.LogPath)
	if err != nil {
		return nil, fmt.Errorf("creating job log: %w", err)
	}
	if _, err := fmt.Fprintf(f, "# command: %s\n", d.CommandLine()); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing job log: %w", err)
	}
	return f, nil
}

// tailLines returns the last n non-empty lines of b.
func tailLines(b []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// WRITERS
// =============================================================================

// lockedWriter serializes writes from the stdout and stderr copiers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// limitedWriter wraps a writer with a size limit.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	size := len(p)
	if lw.written >= lw.limit {
		lw.truncated = true
		return size, nil // Silently discard
	}

	remaining := lw.limit - lw.written
	if len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}

	n, err = lw.w.Write(p)
	lw.written += n
	return size, err // Report the full length so io.MultiWriter keeps going
}
