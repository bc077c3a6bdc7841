// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control serves local commands for a running engine on a
// Unix socket.
//
// The protocol is one CBOR request and one CBOR response per
// connection. A request is a map with an "action" field naming the
// command plus the command's own fields; the response is a [Response]
// with the command's result in "data". [Server] routes requests to
// registered [ActionFunc]s, [Register] binds the engine's commands
// (expand, select, action, search, metadata edits, status) to a
// dashboard session, and [Client] is the caller side used by
// "custody ctl".
package control
