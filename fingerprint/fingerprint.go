// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fingerprint derives stable content identifiers for payloads.
//
// Two stores of byte-identical payloads resolve to the same identifier,
// which is what makes deduplication possible upstream. Identifiers are
// the full SHA-256 of the payload bytes prefixed with a type tag, encoded
// as 64 lowercase hex characters. Full-width SHA-256 eliminates collision
// risk at any realistic workload scale; truncated digests and checksums
// are deliberately not offered here.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// TypeTag distinguishes payload families so byte-identical payloads of
// different kinds never alias each other.
type TypeTag string

// Well-known payload type tags.
const (
	// TagRaw marks opaque byte payloads.
	TagRaw TypeTag = "raw"

	// TagText marks UTF-8 text payloads.
	TagText TypeTag = "text"

	// TagStructured marks serialized structured values (JSON, protobuf).
	TagStructured TypeTag = "structured"
)

// Compute returns the content fingerprint for a payload.
//
// Description:
//
//	Hashes the type tag, a zero separator, and the payload bytes with
//	SHA-256 and returns the digest as 64 hex characters. Deterministic:
//	equal (tag, payload) pairs always produce equal fingerprints.
//
// Inputs:
//
//	tag - Payload type tag. Empty tag is treated as TagRaw.
//	payload - Payload bytes. May be empty; caller decides whether empty
//	          payloads are storable.
//
// Outputs:
//
//	string - 64-character lowercase hex fingerprint.
//
// Thread Safety: Safe for concurrent use.
func Compute(tag TypeTag, payload []byte) string {
	if tag == "" {
		tag = TagRaw
	}

	h := sha256.New()
	h.Write([]byte(tag))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Identify resolves the identity of a payload.
//
// If explicitKey is non-empty it is used verbatim: the caller owns the
// identity and no content dedup happens across different keys, even for
// identical bytes. Otherwise the content fingerprint is computed.
func Identify(tag TypeTag, payload []byte, explicitKey string) string {
	if explicitKey != "" {
		return explicitKey
	}
	return Compute(tag, payload)
}
