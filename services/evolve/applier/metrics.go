// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package applier

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for package application.
var (
	tracer = otel.Tracer("evolve.applier")
	meter  = otel.Meter("evolve.applier")
)

// Metrics for edit-package application.
var (
	packageDuration metric.Float64Histogram
	packageTotal    metric.Int64Counter
	fallbackTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		packageDuration, err = meter.Float64Histogram(
			"apply_package_duration_seconds",
			metric.WithDescription("Wall time spent applying one edit package"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		packageTotal, err = meter.Int64Counter(
			"apply_package_total",
			metric.WithDescription("Edit packages processed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fallbackTotal, err = meter.Int64Counter(
			"apply_fallback_total",
			metric.WithDescription("Edits written via direct overwrite after a failed native apply check"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordPackageMetrics records the outcome of one package application.
func recordPackageMetrics(ctx context.Context, duration time.Duration, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", ok))
	packageDuration.Record(ctx, duration.Seconds(), attrs)
	packageTotal.Add(ctx, 1, attrs)
}

// recordFallback counts one fallback overwrite.
func recordFallback(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	fallbackTotal.Add(ctx, 1)
}
