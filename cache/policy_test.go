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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEntry builds an entry with the access state the orderings rank by.
func testEntry(id string, lastAccess time.Time, accesses int64, storedSize int64, deadline int64) *Entry {
	e := &Entry{ID: id, StoredSize: storedSize, TTLDeadlineNano: deadline}
	e.lastAccessNano.Store(lastAccess.UnixNano())
	e.accessCount.Store(accesses)
	return e
}

// TestParsePolicy verifies the configuration-name round trip and the
// unknown-name error.
func TestParsePolicy(t *testing.T) {
	for _, name := range []string{"lru", "lfu", "ttl", "memory-pressure"} {
		p, err := ParsePolicy(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.String())
		assert.True(t, p.Valid())
	}

	_, err := ParsePolicy("random")
	assert.Error(t, err)
	assert.False(t, Policy(9).Valid())
}

// TestSelectVictim_LRU verifies the oldest last access wins.
func TestSelectVictim_LRU(t *testing.T) {
	base := time.Unix(1700000000, 0)
	a := testEntry("a", base.Add(3*time.Second), 1, 10, 0)
	b := testEntry("b", base.Add(1*time.Second), 1, 10, 0)
	c := testEntry("c", base.Add(2*time.Second), 1, 10, 0)

	victim := selectVictim([]*Entry{a, b, c}, lruLess)
	require.NotNil(t, victim)
	assert.Equal(t, "b", victim.ID)
}

// TestSelectVictim_LFU verifies the lowest access count wins, with LRU
// breaking count ties.
func TestSelectVictim_LFU(t *testing.T) {
	base := time.Unix(1700000000, 0)
	a := testEntry("a", base.Add(1*time.Second), 5, 10, 0)
	b := testEntry("b", base.Add(2*time.Second), 2, 10, 0)
	c := testEntry("c", base.Add(3*time.Second), 2, 10, 0)

	victim := selectVictim([]*Entry{a, b, c}, lfuLess)
	require.NotNil(t, victim)
	assert.Equal(t, "b", victim.ID, "tied counts fall back to oldest access")
}

// TestSelectVictim_TTL verifies the soonest deadline wins and entries
// without a deadline rank last.
func TestSelectVictim_TTL(t *testing.T) {
	base := time.Unix(1700000000, 0)
	a := testEntry("a", base, 1, 10, base.Add(100*time.Second).UnixNano())
	b := testEntry("b", base, 1, 10, base.Add(10*time.Second).UnixNano())
	c := testEntry("c", base, 1, 10, 0)

	victim := selectVictim([]*Entry{a, b, c}, ttlLess)
	require.NotNil(t, victim)
	assert.Equal(t, "b", victim.ID)

	victim = selectVictim([]*Entry{a, c}, ttlLess)
	require.NotNil(t, victim)
	assert.Equal(t, "a", victim.ID, "a dated entry must outrank an undated one")
}

// TestSelectVictim_MemoryPressure verifies the largest entry wins.
func TestSelectVictim_MemoryPressure(t *testing.T) {
	base := time.Unix(1700000000, 0)
	a := testEntry("a", base.Add(1*time.Second), 1, 10, 0)
	b := testEntry("b", base.Add(2*time.Second), 1, 500, 0)
	c := testEntry("c", base.Add(3*time.Second), 1, 50, 0)

	victim := selectVictim([]*Entry{a, b, c}, memoryPressureLess)
	require.NotNil(t, victim)
	assert.Equal(t, "b", victim.ID)
}

// TestSelectVictim_Deterministic verifies equally ranked candidates
// resolve to the smallest id regardless of input order.
func TestSelectVictim_Deterministic(t *testing.T) {
	base := time.Unix(1700000000, 0)
	a := testEntry("a", base, 1, 10, 0)
	b := testEntry("b", base, 1, 10, 0)
	c := testEntry("c", base, 1, 10, 0)

	assert.Equal(t, "a", selectVictim([]*Entry{c, b, a}, lruLess).ID)
	assert.Equal(t, "a", selectVictim([]*Entry{b, a, c}, lruLess).ID)
}

// TestSelectVictim_Empty verifies nil for an empty candidate set.
func TestSelectVictim_Empty(t *testing.T) {
	assert.Nil(t, selectVictim(nil, lruLess))
}
