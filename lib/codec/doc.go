// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// every custody package that touches the wire or the disk.
//
// Two formats meet at the dashboard boundary:
//
//   - JSON for anything a human or a script reads: CLI --json output,
//     configuration files, replay reports.
//   - CBOR for the backend event stream, outbound request sockets, and
//     capture files.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. A
// merged catalog payload therefore always produces the same bytes,
// which is what the subtree digests in lib/catalog rely on.
//
// Timestamps are encoded as RFC 3339 text with nanoseconds so a
// capture replays to exactly the records that were observed live.
//
// Struct tags follow one rule: types that also appear in JSON output
// use `json` tags only (fxamacker/cbor reads them as a fallback);
// types that only ever travel as CBOR use `cbor` tags. Never both on
// one field.
package codec
