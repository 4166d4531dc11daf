// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package job

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrDuplicateJob indicates the generator input would produce two
	// descriptors for the same cell.
	ErrDuplicateJob = errors.New("duplicate job in sweep")

	// ErrEmptySweep indicates no benchmarks were given.
	ErrEmptySweep = errors.New("sweep has no benchmarks")

	// ErrMissingTool indicates the simulator driver or binary is not set.
	ErrMissingTool = errors.New("simulator command not configured")
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ConfigError reports a rejected sweep configuration value.
type ConfigError struct {
	// Field names the offending input (benchmarks, sizes, families, ...).
	Field string

	// Value is the offending value rendered as text.
	Value string

	// Cause is the underlying sentinel.
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid sweep configuration: %s=%s: %v", e.Field, e.Value, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
