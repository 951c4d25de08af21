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
	"errors"

	"github.com/AleutianAI/contextstore/cache"
)

// Errors surfaced by the engine, re-exported so callers only import this
// package.
var (
	// ErrNotFound indicates the id is unknown, expired, or already reclaimed.
	ErrNotFound = cache.ErrNotFound

	// ErrCapacityExceeded indicates eviction could not bring resident usage
	// within the capacity bound (all remaining entries are referenced and
	// the secondary tier is disabled).
	ErrCapacityExceeded = cache.ErrCapacityExceeded
)

// Facade-level errors.
var (
	// ErrStoreClosed indicates an operation was attempted after Close.
	ErrStoreClosed = errors.New("context store is closed")

	// ErrEmptyPayload indicates a store of a zero-length payload.
	ErrEmptyPayload = errors.New("payload must not be empty")
)

// CorruptEntryError indicates a decode or checksum failure for a stored
// entry. The entry is removed before the error returns, so a subsequent
// Exists on the same id reports false.
type CorruptEntryError = cache.CorruptEntryError

// StorageIOError indicates a secondary-tier read or write failure.
type StorageIOError = cache.StorageIOError
