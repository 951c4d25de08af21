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
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/contextstore/cache"
	"github.com/AleutianAI/contextstore/codec"
)

// Default configuration values.
const (
	// DefaultCapacityBytes is the default resident-tier bound.
	DefaultCapacityBytes = 256 << 20 // 256 MiB

	// DefaultSpillThreshold is the encoded size above which new entries
	// go straight to the secondary tier.
	DefaultSpillThreshold = 1 << 20 // 1 MiB

	// DefaultSweepInterval is how often the TTL sweeper runs.
	DefaultSweepInterval = time.Minute
)

// Config configures a Store. Construct with DefaultConfig and adjust, or
// use the functional options on New.
type Config struct {
	// Capacity is the resident-tier bound in the configured unit.
	// The bound is hard: a store that cannot be satisfied by eviction or
	// demotion fails with ErrCapacityExceeded.
	Capacity int64 `validate:"gt=0"`

	// CapacityUnit selects whether Capacity counts bytes or entries.
	CapacityUnit cache.CapacityUnit

	// EvictionPolicy selects the victim-ranking policy, fixed at
	// construction.
	EvictionPolicy cache.Policy

	// Compression is the default codec selection when a store call gives
	// no hint. HintAuto compresses payloads above the small-payload
	// threshold with the fast codec.
	Compression codec.Hint

	// SmallPayloadThreshold is the size below which compression is
	// skipped. Zero uses codec.DefaultSmallPayloadThreshold.
	SmallPayloadThreshold int `validate:"gte=0"`

	// SpillThreshold is the encoded size above which new entries are
	// placed directly in the secondary tier.
	SpillThreshold int64 `validate:"gte=0"`

	// SecondaryEnabled turns the secondary (disk) tier on.
	SecondaryEnabled bool

	// SecondaryPath is the blob store directory. Required when the
	// secondary tier is enabled and not in-memory.
	SecondaryPath string `validate:"required_if=SecondaryEnabled true SecondaryInMemory false"`

	// SecondaryInMemory runs the secondary tier without disk
	// persistence. Intended for tests.
	SecondaryInMemory bool

	// DefaultTTL applies to entries stored without an explicit TTL.
	// Zero means no default expiry.
	DefaultTTL time.Duration `validate:"gte=0"`

	// SweepInterval is the TTL sweeper period. Zero disables the
	// background sweeper; expired entries are then reclaimed on access
	// only.
	SweepInterval time.Duration `validate:"gte=0"`

	// Logger receives store log output. Nil uses slog.Default().
	Logger *slog.Logger `validate:"-"`

	// Clock overrides time.Now, for tests.
	Clock func() time.Time `validate:"-"`
}

// DefaultConfig returns sensible defaults: 256 MiB byte-bounded resident
// tier, LRU eviction, auto compression, secondary tier disabled.
func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacityBytes,
		CapacityUnit:   cache.UnitBytes,
		EvictionPolicy: cache.PolicyLRU,
		Compression:    codec.HintAuto,
		SpillThreshold: DefaultSpillThreshold,
		SweepInterval:  DefaultSweepInterval,
	}
}

// validate is shared; validator instances cache struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for construction.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.EvictionPolicy.Valid() {
		return fmt.Errorf("invalid config: unknown eviction policy %d", c.EvictionPolicy)
	}
	if c.CapacityUnit != cache.UnitBytes && c.CapacityUnit != cache.UnitEntries {
		return fmt.Errorf("invalid config: unknown capacity unit %d", c.CapacityUnit)
	}
	return nil
}

// Option is a functional option for configuring a Store.
type Option func(*Config)

// WithCapacity sets the resident capacity bound and its unit.
func WithCapacity(n int64, unit cache.CapacityUnit) Option {
	return func(c *Config) {
		c.Capacity = n
		c.CapacityUnit = unit
	}
}

// WithEvictionPolicy sets the eviction policy.
func WithEvictionPolicy(p cache.Policy) Option {
	return func(c *Config) {
		c.EvictionPolicy = p
	}
}

// WithCompression sets the default codec selection.
func WithCompression(h codec.Hint) Option {
	return func(c *Config) {
		c.Compression = h
	}
}

// WithSecondaryPath enables the secondary tier at the given directory.
func WithSecondaryPath(path string) Option {
	return func(c *Config) {
		c.SecondaryEnabled = true
		c.SecondaryPath = path
	}
}

// WithInMemorySecondary enables an in-memory secondary tier, for tests.
func WithInMemorySecondary() Option {
	return func(c *Config) {
		c.SecondaryEnabled = true
		c.SecondaryInMemory = true
	}
}

// WithSpillThreshold sets the direct-to-secondary size threshold.
func WithSpillThreshold(n int64) Option {
	return func(c *Config) {
		if n > 0 {
			c.SpillThreshold = n
		}
	}
}

// WithSmallPayloadThreshold sets the no-compression size threshold.
func WithSmallPayloadThreshold(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.SmallPayloadThreshold = n
		}
	}
}

// WithDefaultTTL sets the TTL applied when a store gives none.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.DefaultTTL = d
		}
	}
}

// WithSweepInterval sets the TTL sweeper period. Zero disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SweepInterval = d
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}
