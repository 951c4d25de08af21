// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codec

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compressible returns n bytes of highly repetitive data.
func compressible(n int) []byte {
	return bytes.Repeat([]byte("context payloads compress well when repetitive. "), n/48+1)[:n]
}

// TestEncodeDecode_RoundTrip verifies Decode is the exact inverse of
// Encode for every codec the selection policy can produce.
func TestEncodeDecode_RoundTrip(t *testing.T) {
	payload := compressible(4096)

	for _, hint := range []Hint{HintAuto, HintNone, HintFast, HintHighRatio} {
		c, encoded := Encode(payload, hint, 0)
		decoded, err := Decode(c, encoded)
		require.NoError(t, err, "hint %d", hint)
		assert.Equal(t, payload, decoded, "hint %d must round-trip", hint)
	}
}

// TestEncode_SmallPayloadSkipsCompression verifies payloads below the
// threshold are stored verbatim under HintAuto.
func TestEncode_SmallPayloadSkipsCompression(t *testing.T) {
	payload := compressible(100)

	c, encoded := Encode(payload, HintAuto, 0)
	assert.Equal(t, None, c)
	assert.Equal(t, payload, encoded)
}

// TestEncode_AutoCompressesAboveThreshold verifies HintAuto picks the
// fast codec once the payload crosses the threshold.
func TestEncode_AutoCompressesAboveThreshold(t *testing.T) {
	payload := compressible(4096)

	c, encoded := Encode(payload, HintAuto, 0)
	assert.Equal(t, Fast, c)
	assert.Less(t, len(encoded), len(payload), "stored size must shrink for compressible data")
}

// TestEncode_CustomThreshold verifies the caller-supplied threshold
// overrides the default.
func TestEncode_CustomThreshold(t *testing.T) {
	payload := compressible(100)

	c, _ := Encode(payload, HintAuto, 50)
	assert.Equal(t, Fast, c, "payload above a 50-byte threshold should compress")

	c, _ = Encode(payload, HintAuto, 5000)
	assert.Equal(t, None, c, "payload below a 5000-byte threshold should not")
}

// TestEncode_HintNoneForcesVerbatim verifies HintNone bypasses the size
// policy entirely.
func TestEncode_HintNoneForcesVerbatim(t *testing.T) {
	payload := compressible(4096)

	c, encoded := Encode(payload, HintNone, 0)
	assert.Equal(t, None, c)
	assert.Equal(t, payload, encoded)
}

// TestEncode_HighRatioBeatsFast verifies the archival codec compresses a
// repetitive payload at least as tightly as the fast codec.
func TestEncode_HighRatioBeatsFast(t *testing.T) {
	payload := compressible(1 << 16)

	cf, fast := Encode(payload, HintFast, 0)
	ch, high := Encode(payload, HintHighRatio, 0)
	require.Equal(t, Fast, cf)
	require.Equal(t, HighRatio, ch)
	assert.LessOrEqual(t, len(high), len(fast))
}

// TestEncode_IncompressibleFallsBackToNone verifies random bytes are
// stored verbatim so stored_size never exceeds raw_size.
func TestEncode_IncompressibleFallsBackToNone(t *testing.T) {
	payload := make([]byte, 4096)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	for _, hint := range []Hint{HintAuto, HintFast, HintHighRatio} {
		c, encoded := Encode(payload, hint, 0)
		assert.Equal(t, None, c, "hint %d", hint)
		assert.Len(t, encoded, len(payload))
	}
}

// TestDecode_UnknownCodec verifies an unrecognized codec byte surfaces
// ErrUnknownCodec.
func TestDecode_UnknownCodec(t *testing.T) {
	_, err := Decode(Codec(99), []byte("whatever"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

// TestDecode_CorruptInput verifies corrupt compressed bytes fail with an
// error instead of returning partial data.
func TestDecode_CorruptInput(t *testing.T) {
	payload := compressible(4096)

	for _, hint := range []Hint{HintFast, HintHighRatio} {
		c, encoded := Encode(payload, hint, 0)
		require.NotEqual(t, None, c)

		corrupt := append([]byte(nil), encoded...)
		corrupt[len(corrupt)/2] ^= 0xFF
		decoded, err := Decode(c, corrupt)
		if err == nil {
			// Some corruption spots survive framing checks; the decode
			// must then at least not silently change content length.
			assert.NotEqual(t, payload, decoded, "hint %d decoded corrupt bytes to the original", hint)
			continue
		}
		assert.Nil(t, decoded)
	}
}

// TestCodec_StringAndValid verifies the enum surface used in logs and
// blob header validation.
func TestCodec_StringAndValid(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "fast", Fast.String())
	assert.Equal(t, "high-ratio", HighRatio.String())

	assert.True(t, None.Valid())
	assert.True(t, HighRatio.Valid())
	assert.False(t, Codec(7).Valid())
}
