// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashboard runs the catalog engine of one dashboard session.
//
// [State] owns one instance of every engine component: the catalog
// store, the fragment reassembler, the expansion, presence, selection,
// action, and search coordinators. It implements [schema.Handler], so
// every inbound event kind is handled by a method the compiler checks
// for. State is not safe for concurrent use.
//
// [Session] serializes access to a State. Inbound envelopes from the
// listener, local commands submitted with [Session.Do], and clock
// ticks are all processed by the single goroutine running
// [Session.Run], so no handler runs concurrently with another and the
// components need no locking.
//
// Malformed input never stops the session. A rejected event is logged,
// counted in the dropped-events metric by reason, and the state stays
// as it was before the event.
package dashboard
