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
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/contextstore/codec"
)

// Tier identifies where an entry's bytes live.
type Tier uint8

// Storage tiers.
const (
	// TierResident means the encoded bytes are held in memory.
	TierResident Tier = iota

	// TierSecondary means the bytes live in the blob store.
	TierSecondary
)

// String returns the tier name.
func (t Tier) String() string {
	if t == TierResident {
		return "resident"
	}
	return "secondary"
}

// Entry is one indexed context payload with its placement and lifecycle
// state.
//
// Codec, RawSize, StoredSize, and ContentSum are write-once; tier state is
// guarded by mu; the access clock and reference count are atomics so reads
// never take the entry lock.
//
// Thread Safety: Safe for concurrent use as documented per field.
type Entry struct {
	// ID is the entry's stable identifier: a content fingerprint or a
	// caller-supplied key.
	ID string

	// Codec is the codec the payload was encoded with.
	Codec codec.Codec

	// RawSize is the payload size before encoding.
	RawSize int64

	// StoredSize is the encoded size actually stored.
	StoredSize int64

	// ContentSum is a fast hash of the raw payload, used to detect
	// explicit-key re-stores that carry different bytes.
	ContentSum uint64

	// CreatedAtNano is when the entry was first stored (unix nanos).
	CreatedAtNano int64

	// TTLDeadlineNano is the absolute expiry (unix nanos), 0 for none.
	// Expiry reclaims the entry regardless of its reference count.
	TTLDeadlineNano int64

	// lastAccessNano is the last store/retrieve touching this entry.
	lastAccessNano atomic.Int64

	// accessCount counts retrievals (and the initial store).
	accessCount atomic.Int64

	// refCount tracks outstanding logical references.
	refCount atomic.Int64

	// mu guards tier, buf, and demoting.
	mu sync.Mutex

	// tier is the current placement.
	tier Tier

	// buf holds the encoded bytes while resident, and during an in-flight
	// demotion so racing readers never hit a half-written blob.
	buf []byte

	// demoting is true while a demotion write is in flight. The entry is
	// already excluded from resident accounting.
	demoting bool
}

// Acquire increments the reference count.
func (e *Entry) Acquire() {
	e.refCount.Add(1)
}

// ReleaseRef decrements the reference count and returns the new value.
func (e *Entry) ReleaseRef() int64 {
	return e.refCount.Add(-1)
}

// RefCount returns the current reference count.
func (e *Entry) RefCount() int64 {
	return e.refCount.Load()
}

// InUse reports whether the entry has outstanding references.
func (e *Entry) InUse() bool {
	return e.refCount.Load() > 0
}

// AccessCount returns the number of accesses recorded for the entry.
func (e *Entry) AccessCount() int64 {
	return e.accessCount.Load()
}

// LastAccess returns the time of the most recent access.
func (e *Entry) LastAccess() time.Time {
	return time.Unix(0, e.lastAccessNano.Load())
}

// Expired reports whether the entry's TTL deadline has passed at now.
// A deadline exactly equal to now counts as expired, so a zero TTL
// produces an entry that is never readable.
func (e *Entry) Expired(now time.Time) bool {
	deadline := e.TTLDeadlineNano
	return deadline != 0 && now.UnixNano() >= deadline
}

// touch records an access at now.
func (e *Entry) touch(now time.Time) {
	e.lastAccessNano.Store(now.UnixNano())
	e.accessCount.Add(1)
}

// Tier returns the entry's current placement.
func (e *Entry) Tier() Tier {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.demoting {
		// Accounting-wise the entry has already left the resident tier.
		return TierSecondary
	}
	return e.tier
}

// encodedBytes returns the in-memory encoded bytes, or nil when the entry
// must be read from the blob store.
func (e *Entry) encodedBytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf
}
