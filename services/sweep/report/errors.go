// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import "errors"

var (
	// ErrMetricNotFound indicates no report line matched the metric pattern.
	ErrMetricNotFound = errors.New("metric not found in report")

	// ErrMetricUnparsable indicates the metric line had a non-numeric value.
	ErrMetricUnparsable = errors.New("metric value is not a number")

	// ErrUnknownMetric indicates a metric name with no accessor.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrBadLogName indicates a log file name that does not follow
	// <benchmark>_<family>[_<size>[_<width>]].out.
	ErrBadLogName = errors.New("log file name does not identify a job")
)
