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
	"errors"
	"fmt"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNilContext indicates Run was called with a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrJobTimeout indicates a job exceeded its timeout and was killed.
	ErrJobTimeout = errors.New("job timed out")

	// ErrJobFailed indicates the simulator exited with a non-zero status.
	ErrJobFailed = errors.New("job exited with non-zero status")

	// ErrEmptyCommand indicates a descriptor without argv.
	ErrEmptyCommand = errors.New("descriptor has no command")
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// JobError describes why one job produced no usable output.
type JobError struct {
	// Key identifies the failed cell.
	Key job.Key

	// ExitCode is the process exit code, or -1 if it never exited normally.
	ExitCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if errors.Is(e.Err, ErrJobFailed) {
		return fmt.Sprintf("job %s: exit status %d", e.Key, e.ExitCode)
	}
	return fmt.Sprintf("job %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *JobError) Unwrap() error {
	return e.Err
}
