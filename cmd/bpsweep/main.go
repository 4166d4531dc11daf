// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command bpsweep sweeps branch predictor configurations across
// benchmarks with the SimpleScalar simulator and reports aggregate
// prediction rates.
//
// Usage:
//
//	bpsweep init-config sweep.yaml
//	bpsweep generate -c sweep.yaml
//	bpsweep run -c sweep.yaml --concurrency 8
//	bpsweep run -c sweep.yaml --format json > results.json
//	bpsweep ingest simulator/results
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
