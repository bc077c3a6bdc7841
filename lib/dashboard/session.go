// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bureau-foundation/custody/lib/capture"
	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/schema"
)

// ErrSessionStopped is returned for work submitted after Run returned.
var ErrSessionStopped = errors.New("dashboard session stopped")

// SessionOptions configures a Session.
type SessionOptions struct {
	State  *State
	Clock  clock.Clock
	Logger *slog.Logger

	// TickInterval is how often State.Tick runs.
	TickInterval time.Duration

	// InboxSize bounds envelopes waiting for the session goroutine.
	// DeliverEnvelope blocks while the inbox is full.
	InboxSize int

	// Capture, if set, receives every inbound envelope before it is
	// applied. The session writes to it only from Run; the caller
	// closes it after Run returns.
	Capture *capture.Writer
}

type inbound struct {
	at       time.Time
	envelope schema.Envelope
}

type command struct {
	run  func(*State) error
	done chan error
}

// Session serializes events, commands, and ticks onto one goroutine.
type Session struct {
	state        *State
	clock        clock.Clock
	logger       *slog.Logger
	tickInterval time.Duration
	capture      *capture.Writer

	inbox    chan inbound
	commands chan command
	stopped  chan struct{}
}

// NewSession returns a Session. Nothing is processed until Run.
func NewSession(options SessionOptions) *Session {
	inboxSize := options.InboxSize
	if inboxSize < 1 {
		inboxSize = 64
	}
	return &Session{
		state:        options.State,
		clock:        options.Clock,
		logger:       options.Logger,
		tickInterval: options.TickInterval,
		capture:      options.Capture,
		inbox:        make(chan inbound, inboxSize),
		commands:     make(chan command),
		stopped:      make(chan struct{}),
	}
}

// DeliverEnvelope queues an inbound envelope. Envelopes that cannot
// even be routed (no kind) are refused here; everything else is
// decoded and applied by the session goroutine. It matches
// transport.Sink.
func (s *Session) DeliverEnvelope(ctx context.Context, envelope schema.Envelope) error {
	if err := envelope.Validate(); err != nil {
		// drop only touches the logger and metrics, which are safe
		// for concurrent use.
		s.state.drop(DropUndecodable, envelope.Kind, err)
		return err
	}
	select {
	case s.inbox <- inbound{at: s.clock.Now(), envelope: envelope}:
		return nil
	case <-s.stopped:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the session goroutine and returns its error. Envelopes
// delivered before Do was called are applied first. fn may read and
// change the state freely but must not block.
func (s *Session) Do(ctx context.Context, fn func(*State) error) error {
	done := make(chan error, 1)
	select {
	case s.commands <- command{run: fn, done: done}:
	case <-s.stopped:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes work until ctx is cancelled. It must be called once.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.stopped)

	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("dashboard session started", "tick_interval", s.tickInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dashboard session stopped")
			return nil
		case message := <-s.inbox:
			s.receive(message)
		case cmd := <-s.commands:
			s.drain()
			cmd.done <- cmd.run(s.state)
		case <-ticker.C:
			s.tick()
		}
	}
}

// drain applies the envelopes already queued, so a command sees every
// envelope delivered before it was submitted.
func (s *Session) drain() {
	for {
		select {
		case message := <-s.inbox:
			s.receive(message)
		default:
			return
		}
	}
}

func (s *Session) receive(message inbound) {
	if s.capture != nil {
		err := s.capture.Write(message.at, message.envelope)
		switch {
		case errors.Is(err, capture.ErrEntrySkipped):
			s.logger.Warn("envelope not captured", "kind", message.envelope.Kind, "error", err)
		case err != nil:
			s.logger.Error("capture write failed, capture disabled", "error", err)
			s.capture = nil
		}
	}
	// Rejections are logged and counted by the state.
	_ = s.state.ApplyEnvelope(message.envelope)
}

func (s *Session) tick() {
	result := s.state.Tick()
	if len(result.Evicted)+len(result.Retried)+len(result.Stalled) == 0 {
		return
	}
	s.logger.Debug("session tick",
		"evicted", len(result.Evicted),
		"retried", len(result.Retried),
		"stalled", len(result.Stalled),
	)
}

