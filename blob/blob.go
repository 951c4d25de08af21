// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package blob implements the secondary storage tier on BadgerDB.
//
// Each entry id maps to one addressable blob: a fixed header (codec, raw
// size, stored size, xxhash64 checksum) followed by the encoded bytes.
// BadgerDB transactions make writes atomic with respect to crashes - a
// write that does not commit leaves no readable, truncated blob. Reads
// verify the checksum before returning bytes.
//
// This is part of the tiered placement model:
//
//	Hot (RAM) → Warm (BadgerDB)
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package blob

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/contextstore/codec"
)

// Blob read errors.
var (
	// ErrBlobNotFound indicates no blob exists for the id.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrChecksumMismatch indicates the stored bytes fail integrity
	// verification. The blob should be treated as unusable.
	ErrChecksumMismatch = errors.New("blob checksum mismatch")

	// ErrBadHeader indicates the blob header is truncated or malformed.
	ErrBadHeader = errors.New("malformed blob header")
)

// Header layout: magic(2) version(1) codec(1) rawSize(8) storedSize(8) checksum(8).
const (
	headerSize    = 28
	headerVersion = 1
)

var headerMagic = [2]byte{'c', 'x'}

// Blob is one stored entry read back from the secondary tier.
type Blob struct {
	// Codec is the codec the bytes were encoded with.
	Codec codec.Codec

	// RawSize is the payload size before encoding.
	RawSize int64

	// Encoded is the encoded payload, checksum-verified.
	Encoded []byte
}

// Config holds configuration for a blob store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB and blob-store log output.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes, 5-minute GC.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a checksummed blob store keyed by entry id.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions provide
// per-key atomicity; the byte gauge uses atomic arithmetic.
type Store struct {
	db       *badger.DB
	bytes    atomic.Int64
	gcStop   chan struct{}
	gcDone   chan struct{}
	logger   *slog.Logger
	inMemory bool
}

// Open creates and opens a blob store with the given configuration.
//
// Description:
//
//	Opens BadgerDB at the configured path (created if absent), or in
//	memory. Scans existing blobs once to seed the stored-bytes gauge,
//	then starts the GC runner if configured.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
//
// Thread Safety: The returned *Store is safe for concurrent use.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent blob store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create blob directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open blob database: %w", err)
	}

	s := &Store{
		db:       db,
		logger:   cfg.Logger,
		inMemory: cfg.InMemory,
	}

	if err := s.seedByteGauge(); err != nil {
		db.Close()
		return nil, fmt.Errorf("scan existing blobs: %w", err)
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

// seedByteGauge sums stored sizes of pre-existing blobs after reopen.
func (s *Store) seedByteGauge() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()

		var total int64
		for it.Rewind(); it.Valid(); it.Next() {
			// Value size includes the header; the gauge tracks encoded
			// payload bytes only.
			vs := it.Item().ValueSize()
			if vs > headerSize {
				total += vs - headerSize
			}
		}
		s.bytes.Store(total)
		return nil
	})
}

// Put writes one blob for the id, replacing any previous blob.
//
// Description:
//
//	Serializes the header (codec, sizes, xxhash64 of the encoded bytes)
//	and commits header+payload in one transaction. Either the whole blob
//	becomes visible or nothing does.
//
// Inputs:
//
//	ctx - Context checked before the transaction starts. Not used to
//	      cancel an in-flight commit; committed writes are never torn.
//	id - Entry id. Must be non-empty.
//	c - Codec the bytes were encoded with.
//	rawSize - Payload size before encoding.
//	encoded - Encoded payload bytes.
//
// Outputs:
//
//	error - Non-nil on validation or storage failure.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Put(ctx context.Context, id string, c codec.Codec, rawSize int64, encoded []byte) error {
	if id == "" {
		return errors.New("blob id must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, headerSize+len(encoded))
	copy(buf[0:2], headerMagic[:])
	buf[2] = headerVersion
	buf[3] = byte(c)
	binary.BigEndian.PutUint64(buf[4:12], uint64(rawSize))
	binary.BigEndian.PutUint64(buf[12:20], uint64(len(encoded)))
	binary.BigEndian.PutUint64(buf[20:28], xxhash.Sum64(encoded))
	copy(buf[headerSize:], encoded)

	var replaced int64
	err := s.db.Update(func(txn *badger.Txn) error {
		replaced = 0
		if item, err := txn.Get([]byte(id)); err == nil {
			if vs := item.ValueSize(); vs > headerSize {
				replaced = vs - headerSize
			}
		}
		return txn.Set([]byte(id), buf)
	})
	if err != nil {
		return fmt.Errorf("write blob %s: %w", id, err)
	}

	s.bytes.Add(int64(len(encoded)) - replaced)
	return nil
}

// Get reads and verifies the blob for the id.
//
// Returns ErrBlobNotFound if no blob exists, ErrBadHeader or
// ErrChecksumMismatch if the stored bytes fail verification. A failed
// verification never returns partial bytes.
func (s *Store) Get(ctx context.Context, id string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}

	return decodeBlob(id, raw)
}

// decodeBlob parses and verifies a raw header+payload value.
func decodeBlob(id string, raw []byte) (*Blob, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: blob %s is %d bytes", ErrBadHeader, id, len(raw))
	}
	if raw[0] != headerMagic[0] || raw[1] != headerMagic[1] || raw[2] != headerVersion {
		return nil, fmt.Errorf("%w: blob %s has bad magic/version", ErrBadHeader, id)
	}

	c := codec.Codec(raw[3])
	if !c.Valid() {
		return nil, fmt.Errorf("%w: blob %s has unknown codec %d", ErrBadHeader, id, raw[3])
	}

	rawSize := int64(binary.BigEndian.Uint64(raw[4:12]))
	storedSize := int64(binary.BigEndian.Uint64(raw[12:20]))
	sum := binary.BigEndian.Uint64(raw[20:28])

	encoded := raw[headerSize:]
	if int64(len(encoded)) != storedSize {
		return nil, fmt.Errorf("%w: blob %s stored size %d does not match %d bytes",
			ErrBadHeader, id, storedSize, len(encoded))
	}
	if xxhash.Sum64(encoded) != sum {
		return nil, fmt.Errorf("%w: blob %s", ErrChecksumMismatch, id)
	}

	return &Blob{Codec: c, RawSize: rawSize, Encoded: encoded}, nil
}

// Delete removes the blob for the id. Idempotent: deleting a missing
// blob is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var removed int64
	err := s.db.Update(func(txn *badger.Txn) error {
		removed = 0
		item, err := txn.Get([]byte(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if vs := item.ValueSize(); vs > headerSize {
			removed = vs - headerSize
		}
		return txn.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}

	s.bytes.Add(-removed)
	return nil
}

// Corrupt flips one byte of the stored payload for the id.
//
// Test hook for corruption-recovery paths. Returns ErrBlobNotFound if no
// blob exists.
func (s *Store) Corrupt(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrBlobNotFound
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) <= headerSize {
			return fmt.Errorf("%w: blob %s has no payload to corrupt", ErrBadHeader, id)
		}
		raw[headerSize] ^= 0xFF
		return txn.Set([]byte(id), raw)
	})
}

// Bytes returns the total encoded payload bytes currently stored.
func (s *Store) Bytes() int64 {
	return s.bytes.Load()
}

// InMemory reports whether the store runs without disk persistence.
func (s *Store) InMemory() bool {
	return s.inMemory
}

// Sync flushes pending writes to disk. No-op for in-memory stores.
func (s *Store) Sync() error {
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

// Close stops the GC runner and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

// runGC triggers value log garbage collection on a ticker until Close.
func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when no GC was needed.
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("blob value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}
