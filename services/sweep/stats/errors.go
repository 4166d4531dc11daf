// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import "errors"

var (
	// ErrDuplicateCell indicates a record was inserted over an existing
	// one. The new record wins; the error lets callers assert this never
	// happens within one sweep.
	ErrDuplicateCell = errors.New("metric table cell already populated")

	// ErrTableFrozen indicates a mutation after Freeze.
	ErrTableFrozen = errors.New("metric table is frozen")

	// ErrShapeMismatch indicates a key whose size does not fit its family:
	// a size on a size-less family, or no size on a table-backed one.
	ErrShapeMismatch = errors.New("key shape does not match predictor family")

	// ErrUnknownFamily indicates a key with an unsupported family.
	ErrUnknownFamily = errors.New("unknown predictor family")

	// ErrEmptyBenchmark indicates a key without a benchmark.
	ErrEmptyBenchmark = errors.New("key has no benchmark")
)
