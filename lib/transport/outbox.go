// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/custody/lib/schema"
)

// ErrOutboxFull is returned by Emit when the queue is at capacity.
var ErrOutboxFull = errors.New("outbox full")

// sendTimeout bounds one outbound delivery, connect to acknowledgement.
const sendTimeout = 15 * time.Second

// SendFunc delivers envelopes. Send is the production implementation.
type SendFunc func(ctx context.Context, socketPath string, envelopes ...schema.Envelope) (Response, error)

// Outbox queues outbound requests and delivers them in the background.
// Emit may be called from the session goroutine while Run drains the
// queue on another.
type Outbox struct {
	socketPath string
	session    string
	queue      chan schema.Envelope
	send       SendFunc
	logger     *slog.Logger

	// OnResult, if set, is called from Run after every delivery
	// attempt with the request kind and the delivery error (nil on
	// success).
	OnResult func(kind string, err error)
}

// NewOutbox returns an Outbox that delivers to socketPath, stamping
// every envelope with session. size is the queue capacity.
func NewOutbox(socketPath, session string, size int, logger *slog.Logger) *Outbox {
	return &Outbox{
		socketPath: socketPath,
		session:    session,
		queue:      make(chan schema.Envelope, size),
		send:       Send,
		logger:     logger,
	}
}

// Emit encodes request and queues it without blocking.
func (o *Outbox) Emit(request schema.Request) error {
	envelope, err := schema.EncodeRequest(o.session, request)
	if err != nil {
		return err
	}
	select {
	case o.queue <- envelope:
		return nil
	default:
		return fmt.Errorf("%w: %s not queued", ErrOutboxFull, envelope.Kind)
	}
}

// Len returns the number of queued requests.
func (o *Outbox) Len() int { return len(o.queue) }

// Run delivers queued requests until ctx is cancelled. Each request
// is sent once; failures are logged and the request is discarded.
// Requests still queued at cancellation are discarded.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if pending := len(o.queue); pending > 0 {
				o.logger.Info("outbox stopped with undelivered requests", "pending", pending)
			}
			return nil
		case envelope := <-o.queue:
			o.deliver(ctx, envelope)
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, envelope schema.Envelope) {
	sendContext, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := o.send(sendContext, o.socketPath, envelope)
	if err != nil {
		o.logger.Warn("request delivery failed", "kind", envelope.Kind, "error", err)
	} else {
		o.logger.Debug("request delivered", "kind", envelope.Kind)
	}
	if o.OnResult != nil {
		o.OnResult(envelope.Kind, err)
	}
}
