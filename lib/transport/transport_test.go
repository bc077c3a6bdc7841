// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/schema"
	"github.com/bureau-foundation/custody/lib/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitTimeout = 5 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startListener runs a Listener whose sink forwards envelopes to the
// returned channel. The listener is stopped when the test ends.
func startListener(t *testing.T, sinkErr error) (string, <-chan schema.Envelope) {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "events.sock")
	received := make(chan schema.Envelope, 16)
	listener := NewListener(socketPath, func(_ context.Context, envelope schema.Envelope) error {
		if sinkErr != nil {
			return sinkErr
		}
		received <- envelope
		return nil
	}, discardLogger())

	serve(t, listener)
	return socketPath, received
}

func serve(t *testing.T, listener *Listener) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, waitTimeout, "listener shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	testutil.RequireClosed(t, listener.Ready(), waitTimeout, "listener ready")
}

func presenceEnvelope(t *testing.T, uploadID string) schema.Envelope {
	t.Helper()
	envelope, err := schema.EncodeEvent(&schema.PresenceUpdate{UploadID: uploadID, Tier: schema.TierLocal, Present: true})
	if err != nil {
		t.Fatal(err)
	}
	return envelope
}

func TestListenerAcceptsStream(t *testing.T) {
	socketPath, received := startListener(t, nil)

	first := presenceEnvelope(t, "u1")
	second := presenceEnvelope(t, "u2")
	response, err := Send(context.Background(), socketPath, first, schema.Envelope{Body: first.Body}, second)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if response.Accepted != 2 || response.Dropped != 1 {
		t.Errorf("response = %+v, want 2 accepted and 1 dropped", response)
	}

	for _, want := range []schema.Envelope{first, second} {
		got := testutil.RequireReceive(t, received, waitTimeout, "envelope at sink")
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("envelope mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestListenerCountsSinkRejections(t *testing.T) {
	socketPath, _ := startListener(t, errors.New("malformed fragment"))
	response, err := Send(context.Background(), socketPath, presenceEnvelope(t, "u1"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if response.Accepted != 0 || response.Dropped != 1 || !response.OK {
		t.Errorf("response = %+v", response)
	}
}

func TestSendWithoutListener(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "missing.sock")
	if _, err := Send(context.Background(), socketPath, presenceEnvelope(t, "u1")); err == nil {
		t.Fatal("Send to a missing socket succeeded")
	}
}

func TestOutboxDelivers(t *testing.T) {
	socketPath, received := startListener(t, nil)
	outbox := NewOutbox(socketPath, "session-1", 4, discardLogger())
	results := make(chan error, 4)
	outbox.OnResult = func(_ string, err error) { results <- err }

	request := &schema.SearchFetch{StartIndex: 30, Count: 15}
	if err := outbox.Emit(request); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- outbox.Run(ctx) }()
	defer func() {
		cancel()
		testutil.RequireReceive(t, done, waitTimeout, "outbox shutdown")
	}()

	if err := testutil.RequireReceive(t, results, waitTimeout, "delivery result"); err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	envelope := testutil.RequireReceive(t, received, waitTimeout, "request at listener")
	if envelope.Session != "session-1" || envelope.Kind != string(schema.KindSearchFetch) {
		t.Errorf("envelope = %+v", envelope)
	}
	decoded, err := schema.DecodeRequest(envelope)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(schema.Request(request), decoded); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestOutboxFull(t *testing.T) {
	outbox := NewOutbox("/nonexistent", "s", 1, discardLogger())
	if err := outbox.Emit(&schema.SearchFetch{Count: 1}); err != nil {
		t.Fatal(err)
	}
	if err := outbox.Emit(&schema.SearchFetch{Count: 1}); !errors.Is(err, ErrOutboxFull) {
		t.Errorf("second Emit: err = %v, want ErrOutboxFull", err)
	}
	if outbox.Len() != 1 {
		t.Errorf("Len() = %d", outbox.Len())
	}
}

func TestOutboxDoesNotRetry(t *testing.T) {
	outbox := NewOutbox("/nonexistent", "s", 4, discardLogger())
	attempts := make(chan struct{}, 4)
	outbox.send = func(context.Context, string, ...schema.Envelope) (Response, error) {
		attempts <- struct{}{}
		return Response{}, errors.New("connection refused")
	}
	results := make(chan error, 4)
	outbox.OnResult = func(_ string, err error) { results <- err }

	if err := outbox.Emit(&schema.SearchFetch{Count: 1}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- outbox.Run(ctx) }()

	if err := testutil.RequireReceive(t, results, waitTimeout, "delivery result"); err == nil {
		t.Error("failed delivery reported success")
	}
	cancel()
	testutil.RequireReceive(t, done, waitTimeout, "outbox shutdown")
	if len(attempts) != 1 {
		t.Errorf("%d delivery attempts, want 1", len(attempts))
	}
}

func TestMemory(t *testing.T) {
	memory := NewMemory(2)
	request := &schema.SearchFetch{StartIndex: 15, Count: 15}
	if err := memory.Emit(request); err != nil {
		t.Fatal(err)
	}
	if got := testutil.RequireReceive(t, memory.Requests(), waitTimeout, "notification"); got != schema.Request(request) {
		t.Errorf("notified %v", got)
	}
	if recorded := memory.Recorded(); len(recorded) != 1 {
		t.Errorf("Recorded() = %v", recorded)
	}
	memory.Reset()
	if recorded := memory.Recorded(); len(recorded) != 0 {
		t.Errorf("Recorded() after Reset = %v", recorded)
	}
}

func TestListenerRejectsOversizedEnvelope(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "events.sock")
	received := make(chan schema.Envelope, 4)
	listener := NewListener(socketPath, func(_ context.Context, envelope schema.Envelope) error {
		received <- envelope
		return nil
	}, discardLogger())
	listener.maxEnvelopeSize = 1024
	serve(t, listener)

	body, err := codec.Marshal(bytes.Repeat([]byte{'x'}, 4096))
	if err != nil {
		t.Fatal(err)
	}
	small := presenceEnvelope(t, "u1")
	oversized := schema.Envelope{Kind: string(schema.KindPresenceUpdate), Body: body}
	response, err := Send(context.Background(), socketPath, small, oversized)
	var delivery *DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("err = %v, want *DeliveryError", err)
	}
	if !strings.Contains(delivery.Message, "exceeds 1024 bytes") {
		t.Errorf("message = %q", delivery.Message)
	}
	if response.Accepted != 1 {
		t.Errorf("accepted = %d, want 1", response.Accepted)
	}
	if len(received) != 1 {
		t.Errorf("sink saw %d envelopes, want 1", len(received))
	}
}
