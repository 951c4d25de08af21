// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for store operations.
var (
	tracer = otel.Tracer("aleutian.contextstore")
	meter  = otel.Meter("aleutian.contextstore")
)

// Metrics for store operations.
var (
	storeHits      metric.Int64Counter
	storeMisses    metric.Int64Counter
	storeEvictions metric.Int64Counter
	storeOpLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		storeHits, err = meter.Int64Counter(
			"contextstore_hits_total",
			metric.WithDescription("Total number of store hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeMisses, err = meter.Int64Counter(
			"contextstore_misses_total",
			metric.WithDescription("Total number of store misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeEvictions, err = meter.Int64Counter(
			"contextstore_evictions_total",
			metric.WithDescription("Total number of entries evicted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeOpLatency, err = meter.Float64Histogram(
			"contextstore_op_duration_seconds",
			metric.WithDescription("Duration of store operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordHit records a store hit metric.
func recordHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	storeHits.Add(ctx, 1)
}

// recordMiss records a store miss metric.
func recordMiss(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	storeMisses.Add(ctx, 1)
}

// recordEviction records an eviction metric.
func recordEviction(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	storeEvictions.Add(ctx, 1)
}

// RecordOpLatency records the latency of a store operation.
func RecordOpLatency(ctx context.Context, op string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	storeOpLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// StartSpan creates a span for a store operation.
func StartSpan(ctx context.Context, operation, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ContextStore."+operation,
		trace.WithAttributes(
			attribute.String("store.operation", operation),
			attribute.String("store.entry_id", id),
		),
	)
}
