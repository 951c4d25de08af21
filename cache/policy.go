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
	"fmt"
	"math"
)

// Policy selects eviction victims under capacity pressure. It is a closed
// enum; each variant binds one ordering function at engine construction,
// so there is no per-eviction dispatch by name.
type Policy uint8

// Eviction policies.
const (
	// PolicyLRU evicts the entry with the oldest last access.
	PolicyLRU Policy = iota

	// PolicyLFU evicts the entry with the lowest access count, ties
	// broken by oldest last access.
	PolicyLFU

	// PolicyTTL evicts the soonest-to-expire entry; entries without a
	// deadline rank last. Expiry itself is handled separately and is not
	// capacity-driven.
	PolicyTTL

	// PolicyMemoryPressure evicts the largest entry first to free the
	// most headroom per eviction, ties broken by LRU order.
	PolicyMemoryPressure
)

// ParsePolicy maps a configuration name to a Policy.
//
// Valid names: "lru", "lfu", "ttl", "memory-pressure".
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "lru":
		return PolicyLRU, nil
	case "lfu":
		return PolicyLFU, nil
	case "ttl":
		return PolicyTTL, nil
	case "memory-pressure":
		return PolicyMemoryPressure, nil
	default:
		return 0, fmt.Errorf("unknown eviction policy: %q (valid: lru, lfu, ttl, memory-pressure)", name)
	}
}

// String returns the policy's configuration name.
func (p Policy) String() string {
	switch p {
	case PolicyLRU:
		return "lru"
	case PolicyLFU:
		return "lfu"
	case PolicyTTL:
		return "ttl"
	case PolicyMemoryPressure:
		return "memory-pressure"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p <= PolicyMemoryPressure
}

// victimLess orders two eviction candidates; a strictly "less" entry is
// the better victim.
type victimLess func(a, b *Entry) bool

// orderingFor returns the ordering function for a policy. Called once at
// engine construction.
func orderingFor(p Policy) victimLess {
	switch p {
	case PolicyLFU:
		return lfuLess
	case PolicyTTL:
		return ttlLess
	case PolicyMemoryPressure:
		return memoryPressureLess
	default:
		return lruLess
	}
}

func lruLess(a, b *Entry) bool {
	return a.lastAccessNano.Load() < b.lastAccessNano.Load()
}

func lfuLess(a, b *Entry) bool {
	ac, bc := a.accessCount.Load(), b.accessCount.Load()
	if ac != bc {
		return ac < bc
	}
	return lruLess(a, b)
}

func ttlLess(a, b *Entry) bool {
	ad, bd := a.TTLDeadlineNano, b.TTLDeadlineNano
	if ad == 0 {
		ad = math.MaxInt64
	}
	if bd == 0 {
		bd = math.MaxInt64
	}
	return ad < bd
}

func memoryPressureLess(a, b *Entry) bool {
	if a.StoredSize != b.StoredSize {
		return a.StoredSize > b.StoredSize
	}
	return lruLess(a, b)
}

// selectVictim returns the best victim among candidates, or nil when the
// slice is empty. Equally ranked candidates resolve to the smallest id,
// keeping eviction deterministic.
func selectVictim(candidates []*Entry, less victimLess) *Entry {
	var best *Entry
	for _, c := range candidates {
		switch {
		case best == nil:
			best = c
		case less(c, best):
			best = c
		case !less(best, c) && c.ID < best.ID:
			best = c
		}
	}
	return best
}
