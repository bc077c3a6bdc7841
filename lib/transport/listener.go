// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/schema"
)

// Sink receives each well-framed inbound envelope. An error marks the
// envelope dropped; it does not end the connection.
type Sink func(ctx context.Context, envelope schema.Envelope) error

// idleTimeout is how long a connection may go without sending an
// envelope before it is closed.
const idleTimeout = 2 * time.Minute

// writeTimeout bounds writing the acknowledgement.
const writeTimeout = 10 * time.Second

// maxEnvelopeSize bounds one envelope. A fragment of a busy day's
// listing is a few hundred kilobytes.
const maxEnvelopeSize = 8 * 1024 * 1024

var errEnvelopeTooLarge = errors.New("envelope too large")

// envelopeLimiter refuses to read past limit bytes of the item being
// decoded. consumed is the offset where that item starts, so bytes the
// decoder already buffered for it count against the limit.
type envelopeLimiter struct {
	reader   io.Reader
	limit    int64
	read     int64
	consumed int64
}

func (l *envelopeLimiter) Read(p []byte) (int, error) {
	remaining := l.limit - (l.read - l.consumed)
	if remaining <= 0 {
		return 0, errEnvelopeTooLarge
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := l.reader.Read(p)
	l.read += int64(n)
	return n, err
}

// Listener accepts backend connections on a Unix socket and passes
// their envelopes to a sink.
type Listener struct {
	socketPath string
	sink       Sink
	logger     *slog.Logger

	maxEnvelopeSize int64

	activeConnections sync.WaitGroup
	ready             chan struct{}
}

// NewListener returns a Listener for socketPath.
func NewListener(socketPath string, sink Sink, logger *slog.Logger) *Listener {
	return &Listener{
		socketPath: socketPath,
		sink:       sink,
		logger:     logger,
		ready:      make(chan struct{}),

		maxEnvelopeSize: maxEnvelopeSize,
	}
}

// Ready is closed once the socket is listening.
func (l *Listener) Ready() <-chan struct{} { return l.ready }

// Serve listens until ctx is cancelled, then waits for open
// connections to finish. A stale socket file is removed first and the
// socket file is removed on return.
func (l *Listener) Serve(ctx context.Context) error {
	if err := os.Remove(l.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", l.socketPath, err)
	}

	listener, err := net.Listen("unix", l.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(l.socketPath)
	}()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	l.logger.Info("event listener ready", "path", l.socketPath)
	close(l.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.logger.Error("accept failed", "error", err)
			continue
		}

		l.activeConnections.Add(1)
		go func() {
			defer l.activeConnections.Done()
			l.handleConnection(ctx, conn)
		}()
	}

	l.activeConnections.Wait()
	return nil
}

func (l *Listener) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	var response Response
	limiter := &envelopeLimiter{reader: conn, limit: l.maxEnvelopeSize}
	decoder := codec.NewDecoder(limiter)
	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		limiter.consumed = int64(decoder.NumBytesRead())
		var raw codec.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			switch {
			case errors.Is(err, errEnvelopeTooLarge):
				response.Error = fmt.Sprintf("envelope exceeds %d bytes", l.maxEnvelopeSize)
			case !errors.Is(err, io.EOF):
				response.Error = fmt.Sprintf("reading envelope: %v", err)
			}
			break
		}

		var envelope schema.Envelope
		err := codec.Unmarshal(raw, &envelope)
		if err == nil {
			err = envelope.Validate()
		}
		if err == nil {
			err = l.sink(ctx, envelope)
		}
		if err != nil {
			response.Dropped++
			l.logger.Warn("inbound envelope dropped", "kind", envelope.Kind, "error", err)
			continue
		}
		response.Accepted++
	}

	response.OK = response.Error == ""
	if !response.OK {
		l.logger.Warn("inbound connection failed",
			"error", response.Error, "accepted", response.Accepted, "dropped", response.Dropped)
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		l.logger.Debug("failed to write acknowledgement", "error", err)
	}
}
