// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gitvcs

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for git operations.
var (
	tracer = otel.Tracer("evolve.gitvcs")
	meter  = otel.Meter("evolve.gitvcs")
)

// Metrics for git subprocess invocations.
var (
	commandLatency metric.Float64Histogram
	commandTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		commandLatency, err = meter.Float64Histogram(
			"git_command_duration_seconds",
			metric.WithDescription("Duration of git subprocess invocations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commandTotal, err = meter.Int64Counter(
			"git_command_total",
			metric.WithDescription("Total number of git subprocess invocations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startCommandSpan creates a span for a git command execution.
func startCommandSpan(ctx context.Context, command, workDir string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "GitClient.run",
		trace.WithAttributes(
			attribute.String("git.command", command),
			attribute.String("git.work_dir", workDir),
		),
	)
}

// setCommandSpanResult sets the result attributes on an execution span.
func setCommandSpanResult(span trace.Span, exitCode int) {
	span.SetAttributes(attribute.Int("git.exit_code", exitCode))
}

// recordCommandMetrics records metrics for a git command execution.
func recordCommandMetrics(ctx context.Context, command string, duration time.Duration, exitCode int) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", exitCode == 0),
	)

	commandLatency.Record(ctx, duration.Seconds(), attrs)
	commandTotal.Add(ctx, 1, attrs)
}
