// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for custody packages.
//
// [SocketDir] creates a short temporary directory under /tmp for Unix
// domain sockets, whose paths are limited to 108 bytes; t.TempDir can
// exceed that under deeply nested build sandboxes.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap a channel
// operation in a wall-clock timeout so a broken test fails instead of
// hanging. They are the only real-clock waits in the test suite;
// engine timing is driven by lib/clock's fake.
//
// [UniqueID] generates distinct identifiers (session IDs, upload IDs)
// without consulting the clock.
//
// Helpers call t.Fatalf on failure.
package testutil
