// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync"

	"github.com/bureau-foundation/custody/lib/schema"
)

// Memory records emitted requests instead of sending them. Safe for
// concurrent use.
type Memory struct {
	mu       sync.Mutex
	requests []schema.Request
	notify   chan schema.Request
}

// NewMemory returns an empty Memory. If notifySize is positive, every
// emitted request is also offered on Requests without blocking, which
// tests use to wait for the session goroutine.
func NewMemory(notifySize int) *Memory {
	memory := &Memory{}
	if notifySize > 0 {
		memory.notify = make(chan schema.Request, notifySize)
	}
	return memory
}

// Emit records request.
func (m *Memory) Emit(request schema.Request) error {
	m.mu.Lock()
	m.requests = append(m.requests, request)
	m.mu.Unlock()
	if m.notify != nil {
		select {
		case m.notify <- request:
		default:
		}
	}
	return nil
}

// Requests returns the notification channel, or nil when the Memory
// was created without one.
func (m *Memory) Requests() <-chan schema.Request { return m.notify }

// Recorded returns a copy of every request emitted so far.
func (m *Memory) Recorded() []schema.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schema.Request(nil), m.requests...)
}

// Reset forgets the recorded requests.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}
