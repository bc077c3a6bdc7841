// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the messages exchanged between the custody
// engine and the ingestion backend.
//
// Inbound messages implement [Event]. The set is closed: every event
// type in this package has a corresponding method on [Handler], and
// [Event.Dispatch] calls it, so a consumer that implements Handler is
// checked by the compiler to handle every kind. Outbound messages
// implement [Request].
//
// Both travel inside an [Envelope] whose Kind names the body's type.
// [DecodeEvent] and [EncodeRequest] convert between envelopes and
// typed values; the bytes are CBOR produced by lib/codec.
//
// Catalog data is addressed by [AggregationKey]: one (tier, source,
// project, period) subtree whose files arrive in fragments. The
// key's textual form is the tab path used by the dashboard:
//
//	device:<source>:<YYYY-MM-DD>
//	local:<source>:<project>:<YYYY-MM-DD>
//	remote:<source>:<project>:<YYYY-MM-DD>
//
// This package depends only on lib/codec.
package schema
