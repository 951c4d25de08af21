// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry counts store activity and exposes point-in-time
// snapshots.
//
// The collector is purely additive: every method is a handful of atomic
// operations, never blocks, and never fails the operation it instruments.
// Exporter wiring (Prometheus, OTLP) is out of scope here; callers read
// Snapshot and publish however they like.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Op identifies an instrumented store operation.
type Op string

// Instrumented operations.
const (
	OpStore    Op = "store"
	OpRetrieve Op = "retrieve"
	OpRelease  Op = "release"
)

// Collector accumulates hit/miss/eviction counts, byte gauges, and
// per-operation latency aggregates.
//
// Thread Safety: Safe for concurrent use. Counters are atomics; the
// latency map is guarded by a mutex taken only on the first record per op.
type Collector struct {
	hits       atomic.Int64
	misses     atomic.Int64
	evictions  atomic.Int64
	demotions  atomic.Int64
	promotions atomic.Int64
	expired    atomic.Int64

	residentBytes  atomic.Int64
	secondaryBytes atomic.Int64
	entryCount     atomic.Int64

	mu        sync.RWMutex
	latencies map[Op]*latencyAgg
}

// latencyAgg is a lock-free running aggregate for one operation.
type latencyAgg struct {
	count atomic.Int64
	total atomic.Int64 // nanoseconds
	max   atomic.Int64 // nanoseconds
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{latencies: make(map[Op]*latencyAgg)}
}

// RecordHit counts a successful lookup.
func (c *Collector) RecordHit() { c.hits.Add(1) }

// RecordMiss counts a failed lookup.
func (c *Collector) RecordMiss() { c.misses.Add(1) }

// RecordEviction counts an entry reclaimed under capacity pressure.
func (c *Collector) RecordEviction() { c.evictions.Add(1) }

// RecordDemotion counts an entry moved resident → secondary.
func (c *Collector) RecordDemotion() { c.demotions.Add(1) }

// RecordPromotion counts an entry moved secondary → resident.
func (c *Collector) RecordPromotion() { c.promotions.Add(1) }

// RecordExpired counts an entry reclaimed by TTL expiry.
func (c *Collector) RecordExpired() { c.expired.Add(1) }

// AddResidentBytes adjusts the resident-tier byte gauge by delta.
func (c *Collector) AddResidentBytes(delta int64) { c.residentBytes.Add(delta) }

// SetSecondaryBytes sets the secondary-tier byte gauge.
func (c *Collector) SetSecondaryBytes(n int64) { c.secondaryBytes.Store(n) }

// AddEntries adjusts the entry count gauge by delta.
func (c *Collector) AddEntries(delta int64) { c.entryCount.Add(delta) }

// RecordLatency folds one operation duration into the per-op aggregate.
func (c *Collector) RecordLatency(op Op, d time.Duration) {
	c.mu.RLock()
	agg, ok := c.latencies[op]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		agg, ok = c.latencies[op]
		if !ok {
			agg = &latencyAgg{}
			c.latencies[op] = agg
		}
		c.mu.Unlock()
	}

	ns := d.Nanoseconds()
	agg.count.Add(1)
	agg.total.Add(ns)
	for {
		cur := agg.max.Load()
		if ns <= cur || agg.max.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// LatencySummary is the aggregate view of one operation's durations.
type LatencySummary struct {
	// Count is the number of recorded operations.
	Count int64

	// Mean is the average duration.
	Mean time.Duration

	// Max is the largest recorded duration.
	Max time.Duration
}

// Snapshot is a point-in-time view of collector state.
type Snapshot struct {
	// Hits is the number of successful lookups.
	Hits int64

	// Misses is the number of failed lookups.
	Misses int64

	// Evictions is the number of capacity-pressure reclamations.
	Evictions int64

	// Demotions is the number of resident → secondary moves.
	Demotions int64

	// Promotions is the number of secondary → resident moves.
	Promotions int64

	// Expired is the number of TTL reclamations.
	Expired int64

	// ResidentBytes is the current resident-tier usage.
	ResidentBytes int64

	// SecondaryBytes is the current secondary-tier usage.
	SecondaryBytes int64

	// EntryCount is the current number of indexed entries.
	EntryCount int64

	// Latencies holds per-operation duration aggregates.
	Latencies map[Op]LatencySummary
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Snapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MissRate returns misses / (hits + misses), or 0 with no lookups.
func (s Snapshot) MissRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Misses) / float64(total)
}

// Snapshot returns a consistent-enough copy of current counts. Individual
// counters are read atomically; the snapshot as a whole is not a fence
// across concurrent operations.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Evictions:      c.evictions.Load(),
		Demotions:      c.demotions.Load(),
		Promotions:     c.promotions.Load(),
		Expired:        c.expired.Load(),
		ResidentBytes:  c.residentBytes.Load(),
		SecondaryBytes: c.secondaryBytes.Load(),
		EntryCount:     c.entryCount.Load(),
		Latencies:      make(map[Op]LatencySummary),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for op, agg := range c.latencies {
		count := agg.count.Load()
		summary := LatencySummary{
			Count: count,
			Max:   time.Duration(agg.max.Load()),
		}
		if count > 0 {
			summary.Mean = time.Duration(agg.total.Load() / count)
		}
		snap.Latencies[op] = summary
	}
	return snap
}
