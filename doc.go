// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contextstore is a content-addressable reference store for large
// context payloads shared across many logical consumers.
//
// Payloads are deduplicated by content fingerprint with reference
// counting, transparently compressed, kept in a bounded resident tier
// under a pluggable eviction policy, and spilled to a BadgerDB-backed
// secondary tier when large or cold:
//
//	Hot (RAM) → Warm (BadgerDB)
//
// # Usage
//
//	store, err := contextstore.New(
//	    contextstore.WithCapacity(64<<20, cache.UnitBytes),
//	    contextstore.WithEvictionPolicy(cache.PolicyLRU),
//	    contextstore.WithSecondaryPath("/var/lib/contextstore"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	id, err := store.Store(ctx, payload)
//	...
//	payload, err := store.Retrieve(ctx, id)
//	...
//	if err := store.Release(id); err != nil { ... }
//
// Storing byte-identical payloads without an explicit key yields the same
// id and increments the entry's reference count; Release decrements it.
// Entries at zero references stay retrievable but become eviction
// candidates.
//
// The AsyncStore facade (store.Async()) offers the identical operation
// set without blocking the calling goroutine; suspension happens only at
// secondary-tier disk I/O.
//
// # Scope
//
// This is an in-process library component. It defines no network
// protocol and performs no semantic search, embedding generation, or
// agent orchestration; adapters consume it exclusively through the
// store/retrieve/release/exists/stats surface.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Operations on a
// given id are linearizable; operations on different ids proceed in
// parallel.
package contextstore
