// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package codec compresses and decompresses stored entry bytes.
//
// Codecs are pluggable behind a small closed enum:
//
//	None      - bytes stored verbatim
//	Fast      - S2 (klauspost/compress/s2), latency-optimized
//	HighRatio - zstd (klauspost/compress/zstd), ratio-optimized
//
// Selection policy: payloads below the small-payload threshold skip
// compression entirely since framing overhead dominates for tiny values.
// Above the threshold, Fast is the default for latency-sensitive writes
// and HighRatio serves cold/archival payloads the caller flags as such.
//
// Decode is the exact inverse of Encode for every codec. A decode failure
// means the stored bytes are unusable; callers are expected to drop the
// entry rather than surface partial data.
package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// DefaultSmallPayloadThreshold is the size below which compression is
// skipped. 512 bytes roughly marks where S2 framing stops paying for
// itself on typical context payloads.
const DefaultSmallPayloadThreshold = 512

// ErrUnknownCodec indicates a codec byte that this build does not know.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec identifies a compression algorithm. The zero value is None.
type Codec uint8

// Supported codecs. Values are persisted in blob headers and must not be
// renumbered.
const (
	None Codec = iota
	Fast
	HighRatio
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Fast:
		return "fast"
	case HighRatio:
		return "high-ratio"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// Valid reports whether c is a known codec.
func (c Codec) Valid() bool {
	return c <= HighRatio
}

// Hint expresses a caller preference for codec selection.
type Hint uint8

// Selection hints.
const (
	// HintAuto lets the selection policy decide (Fast above threshold).
	HintAuto Hint = iota

	// HintNone forces uncompressed storage.
	HintNone

	// HintFast forces the latency-optimized codec.
	HintFast

	// HintHighRatio marks the payload as cold/archival.
	HintHighRatio
)

// zstd encoder/decoder are stateless for the EncodeAll/DecodeAll paths and
// safe for concurrent use, so one of each is shared process-wide.
var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

func zstdInit() {
	zstdOnce.Do(func() {
		// Both constructors only fail on invalid options; none are passed.
		zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		zstdDec, _ = zstd.NewReader(nil)
	})
}

// Encode compresses payload bytes according to the selection policy.
//
// Description:
//
//	Picks a codec from the hint and payload size, then compresses.
//	If the compressed form is not smaller than the input, falls back to
//	None so the stored_size <= raw_size invariant holds with equality
//	only for incompressible data.
//
// Inputs:
//
//	payload - Raw payload bytes.
//	hint - Caller preference. HintAuto applies the size threshold policy.
//	smallThreshold - Below this size compression is skipped. Zero means
//	                 DefaultSmallPayloadThreshold.
//
// Outputs:
//
//	Codec - The codec actually used.
//	[]byte - The encoded bytes. Aliases payload when the codec is None.
//
// Thread Safety: Safe for concurrent use.
func Encode(payload []byte, hint Hint, smallThreshold int) (Codec, []byte) {
	if smallThreshold <= 0 {
		smallThreshold = DefaultSmallPayloadThreshold
	}

	chosen := choose(len(payload), hint, smallThreshold)
	if chosen == None {
		return None, payload
	}

	var encoded []byte
	switch chosen {
	case Fast:
		encoded = s2.Encode(nil, payload)
	case HighRatio:
		zstdInit()
		encoded = zstdEnc.EncodeAll(payload, nil)
	}

	// Incompressible payload: storing the original is strictly better.
	if len(encoded) >= len(payload) {
		return None, payload
	}
	return chosen, encoded
}

// Decode reverses Encode for the given codec.
//
// Returns ErrUnknownCodec for an unrecognized codec byte and the
// underlying decompression error for corrupt input. Never returns
// partially decoded bytes alongside a nil error.
func Decode(c Codec, encoded []byte) ([]byte, error) {
	switch c {
	case None:
		return encoded, nil
	case Fast:
		decoded, err := s2.Decode(nil, encoded)
		if err != nil {
			return nil, fmt.Errorf("s2 decode: %w", err)
		}
		return decoded, nil
	case HighRatio:
		zstdInit()
		decoded, err := zstdDec.DecodeAll(encoded, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, uint8(c))
	}
}

// choose applies the selection policy.
func choose(size int, hint Hint, smallThreshold int) Codec {
	switch hint {
	case HintNone:
		return None
	case HintFast:
		return Fast
	case HintHighRatio:
		return HighRatio
	}

	if size < smallThreshold {
		return None
	}
	return Fast
}
