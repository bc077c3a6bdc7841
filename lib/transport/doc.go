// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport moves envelopes between the custody engine and
// the ingestion backend over Unix sockets.
//
// Both directions use the same framing: a client connects, writes a
// sequence of CBOR-encoded [schema.Envelope] values, half-closes its
// write side, and reads one CBOR [Response] acknowledging how many
// envelopes were accepted. CBOR is self-delimiting, so no length
// prefix is needed.
//
// Inbound, the backend is the client and a [Listener] hands each
// envelope to a sink (the dashboard session). Malformed envelopes are
// logged, counted in the response, and dropped; the rest of the
// connection is still read.
//
// Outbound, the engine's requests are notifications. [Outbox.Emit]
// never blocks: it queues the request or fails with [ErrOutboxFull].
// [Outbox.Run] sends each queued request on its own connection and
// logs failures without retrying them. The engine learns whether a
// request had an effect only from later events.
//
// [Memory] is an [Outbox] stand-in that records requests, used by
// replay and tests.
package transport
