// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/schema"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout bounds the wait for the peer's acknowledgement
// after the envelopes are written.
const responseReadTimeout = 30 * time.Second

// maxResponseSize bounds a Response. Responses are a few fields.
const maxResponseSize = 64 * 1024

// Response acknowledges one connection's envelopes.
type Response struct {
	OK       bool   `cbor:"ok"`
	Error    string `cbor:"error,omitempty"`
	Accepted int    `cbor:"accepted"`
	Dropped  int    `cbor:"dropped,omitempty"`
}

// DeliveryError is returned by Send when the peer acknowledged the
// connection with ok=false.
type DeliveryError struct {
	SocketPath string
	Message    string
	Accepted   int
	Dropped    int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s rejected (%d accepted, %d dropped): %s",
		e.SocketPath, e.Accepted, e.Dropped, e.Message)
}

// Send opens one connection to socketPath, writes envelopes in order,
// and returns the peer's acknowledgement. A response with ok=false is
// returned as a *DeliveryError alongside the response.
func Send(ctx context.Context, socketPath string, envelopes ...schema.Envelope) (Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return Response{}, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	encoder := codec.NewEncoder(conn)
	for _, envelope := range envelopes {
		if err := encoder.Encode(envelope); err != nil {
			return Response{}, fmt.Errorf("writing %s to %s: %w", envelope.Kind, socketPath, err)
		}
	}

	// Half-close so the peer's decoder sees EOF after the last
	// envelope.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return Response{}, fmt.Errorf("reading acknowledgement from %s: %w", socketPath, err)
	}
	if !response.OK {
		return response, &DeliveryError{
			SocketPath: socketPath,
			Message:    response.Error,
			Accepted:   response.Accepted,
			Dropped:    response.Dropped,
		}
	}
	return response, nil
}
