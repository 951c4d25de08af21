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
	"errors"
	"fmt"
)

// Sentinel errors for the eviction engine.
var (
	// ErrNotFound indicates the id is unknown, expired, or already reclaimed.
	ErrNotFound = errors.New("context entry not found")

	// ErrCapacityExceeded indicates eviction could not bring resident usage
	// within the capacity bound. Only returned when the secondary tier is
	// disabled and every resident entry is referenced; with the secondary
	// tier enabled, referenced entries are demoted instead.
	ErrCapacityExceeded = errors.New("resident capacity exceeded")
)

// CorruptEntryError indicates a decode or checksum failure for a stored
// entry. The entry is removed before this error returns, so a subsequent
// Exists on the same id reports false.
type CorruptEntryError struct {
	// ID is the entry that failed verification.
	ID string

	// Reason describes what failed (checksum mismatch, decode error).
	Reason string
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("corrupt entry %s: %s", e.ID, e.Reason)
}

// StorageIOError indicates a secondary-tier read or write failure. The
// entry itself may still exist; the operation can be retried.
type StorageIOError struct {
	// Op is the failed operation ("read", "write", "remove").
	Op string

	// ID is the entry the operation targeted.
	ID string

	// Err is the underlying storage error.
	Err error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("secondary storage %s failed for %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *StorageIOError) Unwrap() error {
	return e.Err
}
