// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the eviction engine: the entry index, resident
// capacity accounting, and the pluggable eviction policies that keep the
// resident tier within its bound.
//
// Placement model:
//
//	Hot (RAM) → Warm (blob store)
//
// Entries above the spill threshold go straight to the secondary tier.
// Under capacity pressure, victims chosen by the active policy are demoted
// to the secondary tier when it is enabled, deleted otherwise. Expired
// entries are reclaimed on access and by the background sweeper through
// the same removal path, so there is never a divergent view of liveness.
//
// Thread Safety: the index is guarded by an RWMutex, reference counts and
// access clocks are atomics, and tier transitions take a per-entry mutex.
// Lock order is engine mutex before entry mutex; blob I/O never runs under
// the engine mutex.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/contextstore/blob"
	"github.com/AleutianAI/contextstore/codec"
	"github.com/AleutianAI/contextstore/telemetry"
)

// CapacityUnit selects what the capacity bound counts.
type CapacityUnit uint8

// Capacity units.
const (
	// UnitBytes bounds resident stored bytes.
	UnitBytes CapacityUnit = iota

	// UnitEntries bounds the number of resident entries.
	UnitEntries
)

// Config configures an Engine.
type Config struct {
	// Capacity is the resident-tier bound, in the configured unit.
	// The bound is hard: when eviction and demotion cannot satisfy it,
	// Put fails with ErrCapacityExceeded rather than overrunning.
	Capacity int64

	// Unit selects bytes or entries for Capacity.
	Unit CapacityUnit

	// Policy is the eviction policy, fixed at construction.
	Policy Policy

	// SpillThreshold is the encoded size above which a new entry is
	// placed directly in the secondary tier. Ignored when Blobs is nil.
	SpillThreshold int64

	// Blobs is the secondary tier. Nil disables it: victims are deleted
	// instead of demoted and oversized payloads stay resident.
	Blobs *blob.Store

	// Collector receives operation counts. Nil allocates a private one.
	Collector *telemetry.Collector

	// Logger receives engine log output. Nil uses slog.Default().
	Logger *slog.Logger

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// PutResult describes the outcome of a Put.
type PutResult struct {
	// Created is true when a new entry was registered, false on a dedup
	// hit that only incremented the reference count.
	Created bool

	// RefCount is the entry's reference count after the Put.
	RefCount int64

	// Tier is the entry's placement after the Put.
	Tier Tier
}

// Engine is the cache core: entry index, capacity accounting, and
// eviction orchestration.
type Engine struct {
	mu            sync.RWMutex
	entries       map[string]*Entry
	residentBytes int64
	residentCount int64

	capacity  int64
	unit      CapacityUnit
	policy    Policy
	less      victimLess
	spill     int64
	blobs     *blob.Store
	collector *telemetry.Collector
	logger    *slog.Logger
	clock     func() time.Time
	flight    singleflight.Group

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Capacity <= 0 {
		return nil, errors.New("capacity must be positive")
	}
	if !cfg.Policy.Valid() {
		return nil, errors.New("unknown eviction policy")
	}
	if cfg.Collector == nil {
		cfg.Collector = telemetry.NewCollector()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SpillThreshold <= 0 {
		cfg.SpillThreshold = 1 << 20 // 1 MiB
	}

	return &Engine{
		entries:   make(map[string]*Entry),
		capacity:  cfg.Capacity,
		unit:      cfg.Unit,
		policy:    cfg.Policy,
		less:      orderingFor(cfg.Policy),
		spill:     cfg.SpillThreshold,
		blobs:     cfg.Blobs,
		collector: cfg.Collector,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}, nil
}

// Policy returns the engine's eviction policy.
func (g *Engine) Policy() Policy {
	return g.policy
}

// Put registers a payload under id, deduplicating against an existing
// entry with the same content.
//
// Description:
//
//	A Put that matches an existing live entry (same id and content sum)
//	increments its reference count. An explicit-key Put carrying
//	different bytes replaces the old payload, carrying the reference
//	count forward plus one. New entries are placed resident unless the
//	encoded size exceeds the spill threshold, in which case the blob is
//	written first and the entry registered as secondary, so an entry is
//	never visible before its bytes are durable.
//
// Inputs:
//
//	ctx - Context for the secondary-tier write, if any.
//	id - Entry identifier (fingerprint or explicit key).
//	c - Codec the bytes were encoded with.
//	rawSize - Payload size before encoding.
//	contentSum - Fast hash of the raw payload for replacement detection.
//	encoded - Encoded payload bytes. The engine takes ownership.
//	ttlDeadline - Absolute expiry in unix nanos, 0 for none.
//
// Outputs:
//
//	PutResult - Created flag, resulting reference count, placement tier.
//	error - ErrCapacityExceeded when nothing can be evicted or demoted,
//	        *StorageIOError on a secondary-tier write failure.
//
// Thread Safety: Safe for concurrent use. Concurrent Puts of the same id
// resolve to one entry with the reference count incremented once per call.
func (g *Engine) Put(ctx context.Context, id string, c codec.Codec, rawSize int64, contentSum uint64, encoded []byte, ttlDeadline int64) (PutResult, error) {
	now := g.clock()
	storedSize := int64(len(encoded))

	if g.blobs != nil && storedSize > g.spill {
		return g.putSecondary(ctx, id, c, rawSize, contentSum, encoded, ttlDeadline, now)
	}

	g.mu.Lock()
	res, carryRef, staleBlob, handled := g.dedupLocked(id, contentSum, now)
	if handled {
		g.mu.Unlock()
		return res, nil
	}

	need := g.needOf(storedSize)
	demotions, ok := g.makeRoomLocked(need)
	if !ok {
		g.mu.Unlock()
		g.flushDemotions(ctx, demotions)
		if g.blobs != nil {
			// Cannot fit resident (payload larger than the whole bound);
			// spill to the secondary tier instead.
			return g.putSecondary(ctx, id, c, rawSize, contentSum, encoded, ttlDeadline, now)
		}
		return PutResult{}, ErrCapacityExceeded
	}

	e := g.registerLocked(id, c, rawSize, storedSize, contentSum, ttlDeadline, now, carryRef)
	e.tier = TierResident
	e.buf = encoded
	g.residentBytes += storedSize
	g.residentCount++
	g.collector.AddResidentBytes(storedSize)
	g.mu.Unlock()

	g.flushDemotions(ctx, demotions)
	if staleBlob {
		g.deleteBlob(ctx, id)
	}

	return PutResult{Created: true, RefCount: e.RefCount(), Tier: TierResident}, nil
}

// putSecondary writes the blob before registering the entry, so a crash
// or write failure never leaves a visible entry without readable bytes.
func (g *Engine) putSecondary(ctx context.Context, id string, c codec.Codec, rawSize int64, contentSum uint64, encoded []byte, ttlDeadline int64, now time.Time) (PutResult, error) {
	if err := g.blobs.Put(ctx, id, c, rawSize, encoded); err != nil {
		return PutResult{}, &StorageIOError{Op: "write", ID: id, Err: err}
	}

	g.mu.Lock()
	res, carryRef, _, handled := g.dedupLocked(id, contentSum, now)
	if handled {
		g.mu.Unlock()
		if res.Tier == TierResident {
			// A concurrent Put won the race with resident placement; the
			// blob we just wrote is an orphan.
			g.deleteBlob(ctx, id)
		}
		return res, nil
	}

	e := g.registerLocked(id, c, rawSize, int64(len(encoded)), contentSum, ttlDeadline, now, carryRef)
	e.tier = TierSecondary
	g.mu.Unlock()

	g.collector.SetSecondaryBytes(g.blobs.Bytes())
	return PutResult{Created: true, RefCount: e.RefCount(), Tier: TierSecondary}, nil
}

// dedupLocked resolves a Put against an existing entry. Caller holds g.mu.
//
// Returns handled=true when the Put was absorbed as a reference-count
// increment. Otherwise carryRef is the reference count to seed a
// replacement entry with, and staleBlob reports whether an old secondary
// blob needs deleting once the lock is released.
func (g *Engine) dedupLocked(id string, contentSum uint64, now time.Time) (res PutResult, carryRef int64, staleBlob bool, handled bool) {
	existing, ok := g.entries[id]
	if !ok {
		return PutResult{}, 0, false, false
	}

	if existing.Expired(now) {
		wasSecondary := g.removeEntryLocked(existing)
		g.collector.RecordExpired()
		return PutResult{}, 0, wasSecondary, false
	}

	if existing.ContentSum == contentSum {
		existing.Acquire()
		existing.touch(now)
		return PutResult{RefCount: existing.RefCount(), Tier: existing.Tier()}, 0, false, true
	}

	// Explicit-key re-store with different bytes: replace the payload,
	// carrying the outstanding references forward plus this store.
	carryRef = existing.RefCount()
	wasSecondary := g.removeEntryLocked(existing)
	return PutResult{}, carryRef, wasSecondary, false
}

// registerLocked creates and indexes a new entry. Caller holds g.mu and
// sets tier/buf on the returned entry before releasing it.
func (g *Engine) registerLocked(id string, c codec.Codec, rawSize, storedSize int64, contentSum uint64, ttlDeadline int64, now time.Time, carryRef int64) *Entry {
	e := &Entry{
		ID:              id,
		Codec:           c,
		RawSize:         rawSize,
		StoredSize:      storedSize,
		ContentSum:      contentSum,
		CreatedAtNano:   now.UnixNano(),
		TTLDeadlineNano: ttlDeadline,
	}
	e.refCount.Store(carryRef + 1)
	e.touch(now)
	g.entries[id] = e
	g.collector.AddEntries(1)
	return e
}

// Get retrieves and decodes the payload for id.
//
// Description:
//
//	Looks up the entry, reclaims it if expired, reads the encoded bytes
//	from memory or the blob store, verifies and decodes them, and updates
//	recency/frequency counters. A secondary-tier hit is promoted back to
//	resident when the promotion rule allows. Corrupt entries are removed
//	before the error returns (self-healing), so the caller sees a
//	CorruptEntryError exactly once per corruption.
//
// Outputs:
//
//	[]byte - The decoded payload.
//	error - ErrNotFound for unknown/expired ids, *CorruptEntryError on
//	        verification failure, *StorageIOError on a read failure.
//
// Thread Safety: Safe for concurrent use. A Get racing an eviction of the
// same id either observes the entry or fails with ErrNotFound.
func (g *Engine) Get(ctx context.Context, id string) ([]byte, error) {
	now := g.clock()

	g.mu.RLock()
	e, ok := g.entries[id]
	g.mu.RUnlock()
	if !ok {
		g.collector.RecordMiss()
		recordMiss(ctx)
		return nil, ErrNotFound
	}

	if e.Expired(now) {
		g.reclaimExpired(ctx, id)
		g.collector.RecordMiss()
		recordMiss(ctx)
		return nil, ErrNotFound
	}

	e.touch(now)

	cdc := e.Codec
	encoded := e.encodedBytes()
	fromSecondary := false
	if encoded == nil {
		b, err := g.readBlob(ctx, e)
		if err != nil {
			g.collector.RecordMiss()
			recordMiss(ctx)
			return nil, err
		}
		if b != nil {
			encoded = b.Encoded
			cdc = b.Codec
			fromSecondary = true
		} else {
			// Promotion finished while we were reading; the buffer is
			// authoritative again.
			encoded = e.encodedBytes()
			if encoded == nil {
				g.collector.RecordMiss()
				recordMiss(ctx)
				return nil, ErrNotFound
			}
		}
	}

	payload, err := codec.Decode(cdc, encoded)
	if err != nil {
		g.dropCorrupt(ctx, id)
		g.collector.RecordMiss()
		recordMiss(ctx)
		return nil, &CorruptEntryError{ID: id, Reason: err.Error()}
	}
	if cdc == codec.None {
		// Uncompressed payloads alias the stored buffer; callers get
		// their own copy.
		payload = append([]byte(nil), payload...)
	}

	if fromSecondary {
		g.maybePromote(ctx, e, encoded)
	}

	g.collector.RecordHit()
	recordHit(ctx)
	return payload, nil
}

// readBlob reads the entry's blob through singleflight so concurrent Gets
// of one id share a single disk read. A nil, nil return means the entry
// was promoted mid-read and the caller should use the in-memory buffer.
func (g *Engine) readBlob(ctx context.Context, e *Entry) (*blob.Blob, error) {
	if g.blobs == nil {
		// Index says secondary but no secondary tier exists; the entry
		// cannot be served.
		g.removeEntry(ctx, e.ID)
		return nil, ErrNotFound
	}

	v, err, _ := g.flight.Do(e.ID, func() (interface{}, error) {
		return g.blobs.Get(ctx, e.ID)
	})
	if err == nil {
		return v.(*blob.Blob), nil
	}

	switch {
	case errors.Is(err, blob.ErrBlobNotFound):
		if e.encodedBytes() != nil {
			return nil, nil
		}
		g.removeEntry(ctx, e.ID)
		return nil, ErrNotFound
	case errors.Is(err, blob.ErrChecksumMismatch), errors.Is(err, blob.ErrBadHeader):
		g.dropCorrupt(ctx, e.ID)
		return nil, &CorruptEntryError{ID: e.ID, Reason: err.Error()}
	default:
		return nil, &StorageIOError{Op: "read", ID: e.ID, Err: err}
	}
}

// Release decrements the reference count for id.
//
// Returns ErrNotFound for unknown or expired ids, and for entries whose
// count is already zero: a zero-count release is a caller double-release
// bug and is reported, never silently clamped.
func (g *Engine) Release(ctx context.Context, id string) error {
	now := g.clock()

	g.mu.Lock()
	e, ok := g.entries[id]
	if !ok {
		g.mu.Unlock()
		return ErrNotFound
	}
	if e.Expired(now) {
		g.mu.Unlock()
		g.reclaimExpired(ctx, id)
		return ErrNotFound
	}
	if e.RefCount() == 0 {
		g.mu.Unlock()
		return ErrNotFound
	}
	e.ReleaseRef()
	g.mu.Unlock()
	return nil
}

// Exists reports whether id resolves to a live entry. An expired entry is
// reclaimed as a side effect and reported absent.
func (g *Engine) Exists(ctx context.Context, id string) bool {
	now := g.clock()

	g.mu.RLock()
	e, ok := g.entries[id]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Expired(now) {
		g.reclaimExpired(ctx, id)
		return false
	}
	return true
}

// Lookup returns the live entry for id without touching access state.
// Intended for inspection (stats surfaces, tests).
func (g *Engine) Lookup(id string) (*Entry, bool) {
	now := g.clock()

	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[id]
	if !ok || e.Expired(now) {
		return nil, false
	}
	return e, true
}

// Len returns the number of indexed entries, expired included until the
// next access or sweep.
func (g *Engine) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// ResidentBytes returns current resident-tier stored bytes.
func (g *Engine) ResidentBytes() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.residentBytes
}

// ResidentCount returns the current number of resident entries.
func (g *Engine) ResidentCount() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.residentCount
}

// usageLocked returns resident usage in the capacity unit.
func (g *Engine) usageLocked() int64 {
	if g.unit == UnitEntries {
		return g.residentCount
	}
	return g.residentBytes
}

// needOf returns the capacity-unit cost of one new resident entry.
func (g *Engine) needOf(storedSize int64) int64 {
	if g.unit == UnitEntries {
		return 1
	}
	return storedSize
}

// makeRoomLocked evicts or demotes until usage+need fits the bound.
//
// Victims are ranked by the active policy with ties broken by smallest
// id, drawn from widening candidate pools: first resident entries with
// zero references, then entries whose only reference is the store that
// created them (a store's own reference does not immortalize the entry,
// otherwise a cache with no explicit releases could never evict).
// Multiply-referenced entries are never deleted; when the secondary tier
// is enabled they are demoted instead, which keeps them retrievable.
// Demotion victims keep their buffer until the blob write completes; the
// caller must pass them to flushDemotions after releasing g.mu.
//
// Returns ok=false when the bound cannot be satisfied. Any demotions
// already selected still stand.
func (g *Engine) makeRoomLocked(need int64) (demotions []*Entry, ok bool) {
	if need > g.capacity {
		return nil, false
	}

	for g.usageLocked()+need > g.capacity {
		victim := g.pickVictimLocked(0)
		if victim == nil {
			victim = g.pickVictimLocked(1)
		}
		if victim == nil && g.blobs != nil {
			victim = g.pickVictimLocked(maxRefAny)
		}
		if victim == nil {
			return demotions, false
		}

		g.collector.RecordEviction()
		recordEviction(context.Background())

		if g.blobs != nil {
			victim.mu.Lock()
			victim.demoting = true
			victim.mu.Unlock()
			g.residentBytes -= victim.StoredSize
			g.residentCount--
			g.collector.AddResidentBytes(-victim.StoredSize)
			demotions = append(demotions, victim)
		} else {
			g.removeEntryLocked(victim)
			g.logger.Debug("evicted entry",
				slog.String("id", victim.ID),
				slog.String("policy", g.policy.String()))
		}
	}
	return demotions, true
}

// maxRefAny widens victim selection to every resident entry, which is
// only valid for demotion.
const maxRefAny = int64(1<<63 - 1)

// pickVictimLocked selects the policy's victim among resident entries
// whose reference count is at most maxRef.
func (g *Engine) pickVictimLocked(maxRef int64) *Entry {
	var candidates []*Entry
	for _, e := range g.entries {
		e.mu.Lock()
		resident := e.tier == TierResident && !e.demoting
		e.mu.Unlock()
		if !resident {
			continue
		}
		if e.RefCount() > maxRef {
			continue
		}
		candidates = append(candidates, e)
	}
	return selectVictim(candidates, g.less)
}

// flushDemotions writes queued demotion victims to the blob store. Runs
// without g.mu so unrelated operations proceed during the disk I/O;
// racing readers are served from the victim's retained buffer.
func (g *Engine) flushDemotions(ctx context.Context, demotions []*Entry) {
	for _, e := range demotions {
		err := g.blobs.Put(ctx, e.ID, e.Codec, e.RawSize, e.encodedBytes())

		g.mu.Lock()
		still := g.entries[e.ID] == e
		if err != nil {
			if still {
				if e.InUse() {
					// Pinned victim with nowhere to go: restore it and
					// accept the overrun until pressure recurs.
					e.mu.Lock()
					e.demoting = false
					e.mu.Unlock()
					g.residentBytes += e.StoredSize
					g.residentCount++
					g.collector.AddResidentBytes(e.StoredSize)
					g.logger.Warn("demotion write failed for referenced entry, kept resident",
						slog.String("id", e.ID),
						slog.String("error", err.Error()))
				} else {
					delete(g.entries, e.ID)
					g.collector.AddEntries(-1)
					g.logger.Warn("demotion write failed, entry dropped",
						slog.String("id", e.ID),
						slog.String("error", err.Error()))
				}
			}
			g.mu.Unlock()
			continue
		}

		if !still {
			// Reclaimed while the write was in flight; the fresh blob is
			// an orphan.
			g.mu.Unlock()
			g.deleteBlob(ctx, e.ID)
			continue
		}

		e.mu.Lock()
		e.tier = TierSecondary
		e.buf = nil
		e.demoting = false
		e.mu.Unlock()
		g.mu.Unlock()

		g.collector.RecordDemotion()
		g.collector.SetSecondaryBytes(g.blobs.Bytes())
		g.logger.Debug("demoted entry", slog.String("id", e.ID))
	}
}

// maybePromote moves a secondary-tier hit back to the resident tier.
//
// Promotion is skipped under the TTL policy (it ranks by deadline, not
// recency), for entries above the spill threshold, and when room cannot
// be made.
func (g *Engine) maybePromote(ctx context.Context, e *Entry, encoded []byte) {
	if g.policy == PolicyTTL || e.StoredSize > g.spill {
		return
	}

	g.mu.Lock()
	if g.entries[e.ID] != e {
		g.mu.Unlock()
		return
	}

	demotions, ok := g.makeRoomLocked(g.needOf(e.StoredSize))
	if !ok {
		g.mu.Unlock()
		g.flushDemotions(ctx, demotions)
		return
	}

	promoted := false
	e.mu.Lock()
	if e.tier == TierSecondary && !e.demoting {
		e.tier = TierResident
		e.buf = encoded
		promoted = true
	}
	e.mu.Unlock()

	if promoted {
		g.residentBytes += e.StoredSize
		g.residentCount++
		g.collector.AddResidentBytes(e.StoredSize)
	}
	g.mu.Unlock()

	g.flushDemotions(ctx, demotions)
	if promoted {
		g.deleteBlob(ctx, e.ID)
		g.collector.RecordPromotion()
		g.collector.SetSecondaryBytes(g.blobs.Bytes())
		g.logger.Debug("promoted entry", slog.String("id", e.ID))
	}
}

// removeEntryLocked unindexes an entry and settles resident accounting.
// Caller holds g.mu. Reports whether a secondary blob may exist for the
// id so the caller can delete it outside the lock.
func (g *Engine) removeEntryLocked(e *Entry) (hadBlob bool) {
	delete(g.entries, e.ID)
	g.collector.AddEntries(-1)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tier == TierResident && !e.demoting {
		g.residentBytes -= e.StoredSize
		g.residentCount--
		g.collector.AddResidentBytes(-e.StoredSize)
		return false
	}
	// Secondary, or a demotion is in flight and may land a blob.
	return g.blobs != nil
}

// removeEntry unindexes id unconditionally.
func (g *Engine) removeEntry(ctx context.Context, id string) {
	g.mu.Lock()
	e, ok := g.entries[id]
	if !ok {
		g.mu.Unlock()
		return
	}
	hadBlob := g.removeEntryLocked(e)
	g.mu.Unlock()

	if hadBlob {
		g.deleteBlob(ctx, id)
	}
}

// reclaimExpired removes id if (still) expired. Shared by on-access
// checks and the background sweeper.
func (g *Engine) reclaimExpired(ctx context.Context, id string) {
	now := g.clock()

	g.mu.Lock()
	e, ok := g.entries[id]
	if !ok || !e.Expired(now) {
		g.mu.Unlock()
		return
	}
	hadBlob := g.removeEntryLocked(e)
	g.mu.Unlock()

	if hadBlob {
		g.deleteBlob(ctx, id)
	}
	g.collector.RecordExpired()
	g.logger.Debug("expired entry reclaimed", slog.String("id", id))
}

// dropCorrupt removes an entry whose bytes failed verification, blob
// included. Removal ignores the reference count: corrupt data is
// unusable to every holder.
func (g *Engine) dropCorrupt(ctx context.Context, id string) {
	g.mu.Lock()
	e, ok := g.entries[id]
	if ok {
		g.removeEntryLocked(e)
	}
	g.mu.Unlock()

	g.deleteBlob(ctx, id)
	g.logger.Warn("corrupt entry removed", slog.String("id", id))
}

// deleteBlob removes the secondary blob for id, if the tier exists.
// Blob deletion is idempotent.
func (g *Engine) deleteBlob(ctx context.Context, id string) {
	if g.blobs == nil {
		return
	}
	if err := g.blobs.Delete(ctx, id); err != nil {
		g.logger.Warn("blob delete failed",
			slog.String("id", id),
			slog.String("error", err.Error()))
		return
	}
	g.collector.SetSecondaryBytes(g.blobs.Bytes())
}

// SweepExpired reclaims every expired entry. Uses the same removal path
// as on-access expiry so background and foreground views never diverge.
func (g *Engine) SweepExpired(ctx context.Context) int {
	now := g.clock()

	g.mu.RLock()
	var expired []string
	for id, e := range g.entries {
		if e.Expired(now) {
			expired = append(expired, id)
		}
	}
	g.mu.RUnlock()

	for _, id := range expired {
		g.reclaimExpired(ctx, id)
	}
	return len(expired)
}

// Close stops the background sweeper, if running. The engine remains
// usable afterwards; lifecycle gating lives in the facade.
func (g *Engine) Close() {
	g.StopSweeper()
}
