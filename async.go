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
)

// Future is the pending result of an asynchronous operation.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// complete resolves the future. Must be called exactly once.
func (f *Future[T]) complete(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Done returns a channel closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is cancelled.
// Cancellation abandons the wait, not the operation: an operation that
// has begun writing either completes and becomes visible or fails
// cleanly with no partial entry.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncStore offers the Store operation set without blocking the calling
// goroutine. Suspension happens at secondary-tier I/O; in-memory index
// mutations stay synchronous and fast inside the spawned work, so one
// entry's disk read never stalls unrelated callers.
//
// Both surfaces share one engine and observe identical consistency
// guarantees.
type AsyncStore struct {
	s *Store
}

// Async returns the asynchronous facade over the same store.
func (s *Store) Async() *AsyncStore {
	return &AsyncStore{s: s}
}

// run tracks an async operation so Flush and Close can drain it.
func run[T any](s *Store, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	if s.closed.Load() {
		var zero T
		f.complete(zero, ErrStoreClosed)
		return f
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f.complete(fn())
	}()
	return f
}

// Store is the asynchronous counterpart of Store.Store.
func (a *AsyncStore) Store(ctx context.Context, payload []byte, opts ...StoreOption) *Future[string] {
	return run(a.s, func() (string, error) {
		return a.s.Store(ctx, payload, opts...)
	})
}

// Retrieve is the asynchronous counterpart of Store.Retrieve.
func (a *AsyncStore) Retrieve(ctx context.Context, id string) *Future[[]byte] {
	return run(a.s, func() ([]byte, error) {
		return a.s.Retrieve(ctx, id)
	})
}

// Release is the asynchronous counterpart of Store.Release.
func (a *AsyncStore) Release(id string) *Future[struct{}] {
	return run(a.s, func() (struct{}, error) {
		return struct{}{}, a.s.Release(id)
	})
}

// Exists is the asynchronous counterpart of Store.Exists.
func (a *AsyncStore) Exists(id string) *Future[bool] {
	return run(a.s, func() (bool, error) {
		return a.s.Exists(id), nil
	})
}
