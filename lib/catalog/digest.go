// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/schema"
)

// subtreeDomainKey keys the BLAKE3 digest of subtree payloads. The
// bytes are the ASCII domain name zero-padded to 32 bytes; changing
// them changes every digest.
var subtreeDomainKey = [32]byte{
	'c', 'u', 's', 't', 'o', 'd', 'y', '.', 'c', 'a', 't', 'a', 'l', 'o', 'g', '.',
	's', 'u', 'b', 't', 'r', 'e', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// digestPayload hashes the deterministic CBOR encoding of payload.
// Two payloads with the same paths and entries in the same order have
// the same digest regardless of how they were assembled.
func digestPayload(payload schema.RunFiles) (string, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return "", err
	}
	hasher, err := blake3.NewKeyed(subtreeDomainKey[:])
	if err != nil {
		return "", err
	}
	hasher.Write(encoded)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
