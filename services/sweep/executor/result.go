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
	"bytes"
	"fmt"
	"time"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
)

// Result status values used in logs and metric labels.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
	StatusError   = "error"
)

// Result is the outcome of one simulator job.
type Result struct {
	// Descriptor is the job that was run.
	Descriptor job.Descriptor

	// ExitCode is the process exit code, -1 if it never exited normally.
	ExitCode int

	// Stdout and Stderr hold the captured streams, truncated at the
	// executor's output limit.
	Stdout []byte
	Stderr []byte

	// Truncated is set when either stream hit the output limit.
	Truncated bool

	// Err is nil on success; otherwise a *JobError.
	Err error

	// TimedOut is set when the job was killed by its timeout.
	TimedOut bool

	// Started is the launch time; Duration is wall time until exit.
	Started  time.Time
	Duration time.Duration
}

// Failed reports a non-zero exit, a launch error, or a timeout.
func (r *Result) Failed() bool {
	return r.Err != nil || r.TimedOut || r.ExitCode != 0
}

// Output returns stdout followed by stderr. The simulator writes its
// statistics to stderr, so the parser always sees both.
func (r *Result) Output() string {
	var b bytes.Buffer
	b.Grow(len(r.Stdout) + len(r.Stderr))
	b.Write(r.Stdout)
	b.Write(r.Stderr)
	return b.String()
}

// Status classifies the result as ok, failed, timeout, or error.
func (r *Result) Status() string {
	switch {
	case r.TimedOut:
		return StatusTimeout
	case r.Err == nil && r.ExitCode == 0:
		return StatusOK
	case r.ExitCode > 0:
		return StatusFailed
	default:
		return StatusError
	}
}

// Reason renders why the job failed, or "" on success.
func (r *Result) Reason() string {
	if !r.Failed() {
		return ""
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return fmt.Sprintf("exit status %d", r.ExitCode)
}

// statusLine renders the trailer written to the job log.
func (r *Result) statusLine(timeout time.Duration) string {
	switch r.Status() {
	case StatusOK:
		return "exit 0"
	case StatusTimeout:
		return fmt.Sprintf("timed out after %s", timeout)
	case StatusFailed:
		return fmt.Sprintf("exit %d", r.ExitCode)
	default:
		return "error: " + r.Reason()
	}
}

// Batch is the outcome of one Run call.
type Batch struct {
	// ID uniquely identifies the batch in logs and traces.
	ID string

	// Results is index-aligned with the descriptors passed to Run.
	Results []*Result

	Started  time.Time
	Duration time.Duration
}

// Failures lists the failed results in input order.
func (b *Batch) Failures() []*Result {
	var out []*Result
	for _, r := range b.Results {
		if r != nil && r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Succeeded counts the results that did not fail.
func (b *Batch) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r != nil && !r.Failed() {
			n++
		}
	}
	return n
}
