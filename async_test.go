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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAsync_StoreRetrieveParity verifies the async facade observes the
// same entries as the synchronous one.
func TestAsync_StoreRetrieveParity(t *testing.T) {
	s, _ := newTestStore(t)
	a := s.Async()
	ctx := context.Background()
	payload := []byte("async payload")

	id, err := a.Store(ctx, payload).Wait(ctx)
	require.NoError(t, err)

	// Visible to the synchronous surface.
	got, err := s.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// And back through the async one.
	got, err = a.Retrieve(ctx, id).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// TestAsync_ReleaseExists verifies release and existence checks through
// futures.
func TestAsync_ReleaseExists(t *testing.T) {
	s, _ := newTestStore(t)
	a := s.Async()
	ctx := context.Background()

	id, err := a.Store(ctx, []byte("payload")).Wait(ctx)
	require.NoError(t, err)

	ok, err := a.Exists(id).Wait(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = a.Release(id).Wait(ctx)
	require.NoError(t, err)

	_, err = a.Release(id).Wait(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestAsync_AfterClose verifies operations on a closed store resolve
// immediately with ErrStoreClosed.
func TestAsync_AfterClose(t *testing.T) {
	s, _ := newTestStore(t)
	a := s.Async()
	require.NoError(t, s.Close())

	f := a.Store(context.Background(), []byte("late"))
	select {
	case <-f.Done():
	default:
		t.Fatal("future for a closed store must resolve immediately")
	}
	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
}

// TestAsync_ConcurrentDedup verifies parallel async stores of identical
// bytes converge on one entry with one reference per store.
func TestAsync_ConcurrentDedup(t *testing.T) {
	s, _ := newTestStore(t)
	a := s.Async()
	ctx := context.Background()
	payload := []byte("contended async payload")

	const n = 16
	futures := make([]*Future[string], n)
	for i := range futures {
		futures[i] = a.Store(ctx, payload)
	}

	var id string
	for i, f := range futures {
		got, err := f.Wait(ctx)
		require.NoError(t, err)
		if i == 0 {
			id = got
		} else {
			assert.Equal(t, id, got, "all stores must resolve to one id")
		}
	}

	info, ok := s.Info(id)
	require.True(t, ok)
	assert.Equal(t, int64(n), info.RefCount)
	assert.Equal(t, 1, s.Stats().EntryCount)
}

// TestFuture_WaitCancellation verifies Wait abandons on context
// cancellation without resolving the future.
func TestFuture_WaitCancellation(t *testing.T) {
	f := newFuture[int]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// The operation itself still completes and remains observable.
	f.complete(42, nil)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

// TestAsync_FlushDrains verifies Flush waits for in-flight async work.
func TestAsync_FlushDrains(t *testing.T) {
	s, _ := newTestStore(t)
	a := s.Async()
	ctx := context.Background()

	f := a.Store(ctx, []byte("pending payload"))
	require.NoError(t, s.Flush(ctx))

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("flush returned while async work was still pending")
	}
	id, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, s.Exists(id))
}
