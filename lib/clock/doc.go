// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the time source for the custody engine.
//
// The engine itself never sleeps or waits. It reads the current time
// to stamp accumulators and expansion requests, and it is woken
// periodically by a ticker so that stalled accumulators can be evicted
// and unanswered expansions re-requested. Both needs go through
// [Clock] so tests can drive eviction deterministically:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	session := dashboard.NewSession(state, dashboard.SessionOptions{Clock: fake})
//	go session.Run(ctx)
//	fake.WaitForTickers(1)
//	fake.Advance(15 * time.Second) // delivers one tick to the session
package clock
