// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package blob

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/contextstore/codec"
)

// openTestStore opens an in-memory blob store, closed with the test.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestPutGet_RoundTrip verifies a stored blob reads back with its codec,
// raw size, and bytes intact.
func TestPutGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	encoded := []byte("encoded payload bytes")

	err := s.Put(ctx, "entry-1", codec.Fast, 1024, encoded)
	require.NoError(t, err)

	b, err := s.Get(ctx, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, codec.Fast, b.Codec)
	assert.Equal(t, int64(1024), b.RawSize)
	assert.Equal(t, encoded, b.Encoded)
}

// TestGet_NotFound verifies a missing id surfaces ErrBlobNotFound.
func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

// TestPut_EmptyID verifies the id is validated before any write.
func TestPut_EmptyID(t *testing.T) {
	s := openTestStore(t)

	err := s.Put(context.Background(), "", codec.None, 1, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, int64(0), s.Bytes())
}

// TestPut_ReplaceAdjustsGauge verifies replacing a blob accounts only the
// delta, not both versions.
func TestPut_ReplaceAdjustsGauge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "entry-1", codec.None, 100, make([]byte, 100)))
	assert.Equal(t, int64(100), s.Bytes())

	require.NoError(t, s.Put(ctx, "entry-1", codec.None, 40, make([]byte, 40)))
	assert.Equal(t, int64(40), s.Bytes())
}

// TestDelete_Idempotent verifies delete removes the blob and a second
// delete of the same id is a harmless no-op.
func TestDelete_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "entry-1", codec.None, 10, make([]byte, 10)))
	require.Equal(t, int64(10), s.Bytes())

	require.NoError(t, s.Delete(ctx, "entry-1"))
	assert.Equal(t, int64(0), s.Bytes())
	_, err := s.Get(ctx, "entry-1")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, s.Delete(ctx, "entry-1"))
	assert.Equal(t, int64(0), s.Bytes(), "double delete must not drive the gauge negative")
}

// TestGet_ChecksumMismatch verifies a corrupted payload fails
// verification and returns no bytes.
func TestGet_ChecksumMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "entry-1", codec.None, 10, bytes.Repeat([]byte{'a'}, 10)))
	require.NoError(t, s.Corrupt(ctx, "entry-1"))

	b, err := s.Get(ctx, "entry-1")
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Nil(t, b)
}

// TestCorrupt_NotFound verifies the corruption hook reports a missing id.
func TestCorrupt_NotFound(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.Corrupt(context.Background(), "missing"), ErrBlobNotFound)
}

// TestOpen_RequiresPath verifies a persistent store refuses an empty
// path instead of scattering files in the working directory.
func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

// TestOpen_ReopenSeedsByteGauge verifies the stored-bytes gauge survives
// a close and reopen of an on-disk store.
func TestOpen_ReopenSeedsByteGauge(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "entry-1", codec.None, 64, make([]byte, 64)))
	require.NoError(t, s.Put(ctx, "entry-2", codec.None, 32, make([]byte, 32)))
	require.Equal(t, int64(96), s.Bytes())
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, int64(96), s.Bytes())

	b, err := s.Get(ctx, "entry-1")
	require.NoError(t, err)
	assert.Len(t, b.Encoded, 64)
}

// TestDecodeBlob_BadHeader verifies truncated or mangled headers are
// rejected before any payload is returned.
func TestDecodeBlob_BadHeader(t *testing.T) {
	t.Run("truncated", func(t *testing.T) {
		_, err := decodeBlob("x", make([]byte, headerSize-1))
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("bad magic", func(t *testing.T) {
		raw := make([]byte, headerSize)
		raw[0] = 'z'
		_, err := decodeBlob("x", raw)
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("unknown codec byte", func(t *testing.T) {
		raw := make([]byte, headerSize)
		copy(raw[0:2], headerMagic[:])
		raw[2] = headerVersion
		raw[3] = 200
		_, err := decodeBlob("x", raw)
		assert.ErrorIs(t, err, ErrBadHeader)
	})
}

// TestInMemory_Flags verifies mode reporting and that Sync is a no-op
// without disk persistence.
func TestInMemory_Flags(t *testing.T) {
	s := openTestStore(t)
	assert.True(t, s.InMemory())
	assert.NoError(t, s.Sync())
}
