// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contextstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/AleutianAI/contextstore/blob"
	"github.com/AleutianAI/contextstore/cache"
	"github.com/AleutianAI/contextstore/codec"
	"github.com/AleutianAI/contextstore/fingerprint"
	"github.com/AleutianAI/contextstore/telemetry"
)

// Store is the synchronous access facade: a deduplicating, compressing,
// tiered cache for context payloads.
//
// Lifecycle is construct → operate → Close. There are no hidden
// singletons; every Store owns its index, counters, and storage handles.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	cfg       Config
	id        string
	engine    *cache.Engine
	blobs     *blob.Store
	collector *telemetry.Collector
	logger    *slog.Logger
	clock     func() time.Time

	closed atomic.Bool
	wg     sync.WaitGroup
}

// StoreOptions carries per-call options for Store.
type StoreOptions struct {
	key    string
	tag    fingerprint.TypeTag
	ttl    time.Duration
	ttlSet bool
	hint   codec.Hint
	useCfg bool
}

// StoreOption is a per-call option for Store.
type StoreOption func(*StoreOptions)

// WithKey stores under a caller-controlled logical key instead of the
// content fingerprint. No dedup happens across different keys, even for
// identical bytes.
func WithKey(key string) StoreOption {
	return func(o *StoreOptions) {
		o.key = key
	}
}

// WithTypeTag sets the payload type tag mixed into the fingerprint.
func WithTypeTag(tag fingerprint.TypeTag) StoreOption {
	return func(o *StoreOptions) {
		o.tag = tag
	}
}

// WithTTL sets an expiry for the entry. A zero TTL produces an entry
// that is already expired and never readable.
func WithTTL(d time.Duration) StoreOption {
	return func(o *StoreOptions) {
		o.ttl = d
		o.ttlSet = true
	}
}

// WithCodecHint overrides the configured codec selection for this call.
// Use codec.HintHighRatio for cold/archival payloads.
func WithCodecHint(h codec.Hint) StoreOption {
	return func(o *StoreOptions) {
		o.hint = h
		o.useCfg = false
	}
}

// New creates a Store from DefaultConfig adjusted by opts.
func New(opts ...Option) (*Store, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Store from an explicit configuration.
//
// Description:
//
//	Validates the configuration, opens the secondary blob store when
//	enabled, wires the eviction engine and telemetry collector, and
//	starts the TTL sweeper.
//
// Outputs:
//
//	*Store - The ready store. Caller must call Close() when done.
//	error - Non-nil on invalid configuration or storage open failure.
func NewWithConfig(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	var blobs *blob.Store
	if cfg.SecondaryEnabled {
		bcfg := blob.DefaultConfig(cfg.SecondaryPath)
		if cfg.SecondaryInMemory {
			bcfg = blob.InMemoryConfig()
		}
		bcfg.Logger = cfg.Logger
		var err error
		blobs, err = blob.Open(bcfg)
		if err != nil {
			return nil, fmt.Errorf("open secondary tier: %w", err)
		}
	}

	collector := telemetry.NewCollector()
	engine, err := cache.NewEngine(cache.Config{
		Capacity:       cfg.Capacity,
		Unit:           cfg.CapacityUnit,
		Policy:         cfg.EvictionPolicy,
		SpillThreshold: cfg.SpillThreshold,
		Blobs:          blobs,
		Collector:      collector,
		Logger:         cfg.Logger,
		Clock:          cfg.Clock,
	})
	if err != nil {
		if blobs != nil {
			blobs.Close()
		}
		return nil, err
	}

	s := &Store{
		cfg:       cfg,
		id:        uuid.NewString(),
		engine:    engine,
		blobs:     blobs,
		collector: collector,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}

	if cfg.SweepInterval > 0 {
		engine.StartSweeper(cfg.SweepInterval)
	}

	s.logger.Info("context store opened",
		slog.String("store_id", s.id),
		slog.Int64("capacity", cfg.Capacity),
		slog.String("policy", cfg.EvictionPolicy.String()),
		slog.Bool("secondary", cfg.SecondaryEnabled))

	return s, nil
}

// Store deduplicates, encodes, places, and indexes a payload.
//
// Description:
//
//	Resolves the entry id (content fingerprint, or the explicit key from
//	WithKey), encodes the payload per the codec policy, and registers it
//	with the eviction engine. Storing bytes that already exist under the
//	same id increments the entry's reference count instead of writing a
//	second copy.
//
// Inputs:
//
//	ctx - Context for secondary-tier I/O. Once a secondary write has
//	      begun it completes or fails cleanly; there is no mid-write
//	      cancellation.
//	payload - Payload bytes. Must be non-empty.
//	opts - Per-call options (key, TTL, type tag, codec hint).
//
// Outputs:
//
//	string - The entry id to retrieve/release with.
//	error - ErrStoreClosed, ErrEmptyPayload, ErrCapacityExceeded, or a
//	        *StorageIOError.
//
// Thread Safety: Safe for concurrent use; concurrent stores of identical
// payloads resolve to one entry with one increment per call.
func (s *Store) Store(ctx context.Context, payload []byte, opts ...StoreOption) (string, error) {
	if s.closed.Load() {
		return "", ErrStoreClosed
	}
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}

	o := StoreOptions{useCfg: true}
	for _, opt := range opts {
		opt(&o)
	}

	id := fingerprint.Identify(o.tag, payload, o.key)

	ctx, span := cache.StartSpan(ctx, "Store", id)
	defer span.End()
	start := s.clock()

	hint := o.hint
	if o.useCfg {
		hint = s.cfg.Compression
	}
	c, encoded := codec.Encode(payload, hint, s.cfg.SmallPayloadThreshold)
	if c == codec.None {
		// An uncompressed encoding aliases the caller's payload; the
		// engine keeps its own copy.
		encoded = append([]byte(nil), encoded...)
	}

	var deadline int64
	switch {
	case o.ttlSet:
		deadline = start.Add(o.ttl).UnixNano()
	case s.cfg.DefaultTTL > 0:
		deadline = start.Add(s.cfg.DefaultTTL).UnixNano()
	}

	res, err := s.engine.Put(ctx, id, c, int64(len(payload)), xxhash.Sum64(payload), encoded, deadline)
	elapsed := s.clock().Sub(start)
	s.collector.RecordLatency(telemetry.OpStore, elapsed)
	cache.RecordOpLatency(ctx, "store", elapsed)
	if err != nil {
		return "", err
	}

	s.logger.Debug("stored entry",
		slog.String("id", id),
		slog.Bool("created", res.Created),
		slog.Int64("ref_count", res.RefCount),
		slog.String("tier", res.Tier.String()),
		slog.String("codec", c.String()))

	return id, nil
}

// Retrieve returns the payload for id.
//
// Fails with ErrNotFound for unknown or expired ids. A corrupt entry
// surfaces a *CorruptEntryError and is removed as a side effect, so the
// store heals itself on the next access.
func (s *Store) Retrieve(ctx context.Context, id string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	ctx, span := cache.StartSpan(ctx, "Retrieve", id)
	defer span.End()
	start := s.clock()

	payload, err := s.engine.Get(ctx, id)
	elapsed := s.clock().Sub(start)
	s.collector.RecordLatency(telemetry.OpRetrieve, elapsed)
	cache.RecordOpLatency(ctx, "retrieve", elapsed)
	return payload, err
}

// Release decrements the reference count for id. An entry released to
// zero stays retrievable but becomes an eviction candidate.
//
// Fails with ErrNotFound for unknown or expired ids, and for entries
// already at zero: a double release is a caller bug and is reported.
func (s *Store) Release(id string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	start := s.clock()
	err := s.engine.Release(context.Background(), id)
	s.collector.RecordLatency(telemetry.OpRelease, s.clock().Sub(start))
	return err
}

// Exists reports whether id resolves to a live entry. An expired entry
// is reclaimed as a side effect and reported absent.
func (s *Store) Exists(id string) bool {
	if s.closed.Load() {
		return false
	}
	return s.engine.Exists(context.Background(), id)
}

// Stats is a point-in-time view of store activity.
type Stats struct {
	// HitRate is hits / (hits + misses), 0 with no lookups.
	HitRate float64

	// MissRate is misses / (hits + misses), 0 with no lookups.
	MissRate float64

	// ResidentBytes is current resident-tier stored bytes.
	ResidentBytes int64

	// SecondaryBytes is current secondary-tier stored bytes.
	SecondaryBytes int64

	// EntryCount is the number of indexed entries.
	EntryCount int

	// EvictionCount is the number of entries pushed out of the resident
	// tier by capacity pressure (demoted or deleted).
	EvictionCount int64

	// DemotionCount is the number of entries moved to the secondary tier.
	DemotionCount int64

	// PromotionCount is the number of entries moved back to resident.
	PromotionCount int64

	// ExpiredCount is the number of entries reclaimed by TTL.
	ExpiredCount int64

	// Latencies holds per-operation duration aggregates.
	Latencies map[telemetry.Op]telemetry.LatencySummary
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	snap := s.collector.Snapshot()

	var secondaryBytes int64
	if s.blobs != nil {
		secondaryBytes = s.blobs.Bytes()
	}

	return Stats{
		HitRate:        snap.HitRate(),
		MissRate:       snap.MissRate(),
		ResidentBytes:  s.engine.ResidentBytes(),
		SecondaryBytes: secondaryBytes,
		EntryCount:     s.engine.Len(),
		EvictionCount:  snap.Evictions,
		DemotionCount:  snap.Demotions,
		PromotionCount: snap.Promotions,
		ExpiredCount:   snap.Expired,
		Latencies:      snap.Latencies,
	}
}

// EntryInfo is an inspection view of one entry.
type EntryInfo struct {
	// ID is the entry identifier.
	ID string

	// RefCount is the current reference count.
	RefCount int64

	// Tier is the current placement.
	Tier cache.Tier

	// Codec is the codec the payload was encoded with.
	Codec codec.Codec

	// RawSize and StoredSize are the byte sizes before/after encoding.
	RawSize, StoredSize int64

	// AccessCount counts accesses including the initial store.
	AccessCount int64

	// LastAccess is the most recent access time.
	LastAccess time.Time
}

// Info returns inspection details for a live entry.
func (s *Store) Info(id string) (EntryInfo, bool) {
	e, ok := s.engine.Lookup(id)
	if !ok {
		return EntryInfo{}, false
	}
	return EntryInfo{
		ID:          e.ID,
		RefCount:    e.RefCount(),
		Tier:        e.Tier(),
		Codec:       e.Codec,
		RawSize:     e.RawSize,
		StoredSize:  e.StoredSize,
		AccessCount: e.AccessCount(),
		LastAccess:  e.LastAccess(),
	}, true
}

// SweepExpired reclaims every expired entry immediately, returning the
// count. The background sweeper calls the same path periodically.
func (s *Store) SweepExpired(ctx context.Context) int {
	if s.closed.Load() {
		return 0
	}
	return s.engine.SweepExpired(ctx)
}

// Flush waits for in-flight asynchronous operations and syncs the
// secondary tier to disk.
func (s *Store) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.wg.Wait()
	if s.blobs != nil {
		if err := s.blobs.Sync(); err != nil {
			return fmt.Errorf("sync secondary tier: %w", err)
		}
	}
	return nil
}

// Close flushes pending work and releases storage handles. Operations
// after Close fail with ErrStoreClosed. Safe to call once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.wg.Wait()
	s.engine.Close()

	var err error
	if s.blobs != nil {
		err = s.blobs.Close()
	}

	s.logger.Info("context store closed", slog.String("store_id", s.id))
	return err
}
