// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/custody/lib/codec"
)

// Envelope frames one message on the wire. Kind is an EventKind for
// inbound envelopes and a RequestKind for outbound ones. Session
// identifies the dashboard session that emitted a request; inbound
// envelopes may leave it empty.
type Envelope struct {
	Kind    string           `json:"kind"`
	Session string           `json:"session,omitempty"`
	Body    codec.RawMessage `json:"body"`
}

// EncodeEvent wraps an event in an envelope.
func EncodeEvent(event Event) (Envelope, error) {
	body, err := codec.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s: %w", event.Kind(), err)
	}
	return Envelope{Kind: string(event.Kind()), Body: body}, nil
}

// DecodeEvent decodes an inbound envelope into its typed event.
// Unknown kinds return an error wrapping [ErrUnknownKind]; bodies that
// do not decode (including unknown tier names) return a decode error.
func DecodeEvent(envelope Envelope) (Event, error) {
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	event, err := NewEvent(EventKind(envelope.Kind))
	if err != nil {
		return nil, err
	}
	if err := codec.Unmarshal(envelope.Body, event); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", envelope.Kind, err)
	}
	return event, nil
}

// EncodeRequest wraps a request in an envelope stamped with session.
func EncodeRequest(session string, request Request) (Envelope, error) {
	body, err := codec.Marshal(request)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s: %w", request.RequestKind(), err)
	}
	return Envelope{Kind: string(request.RequestKind()), Session: session, Body: body}, nil
}

// DecodeRequest decodes an outbound envelope into its typed request.
// The engine never receives requests; this exists for backends and
// for tests that inspect what the engine sent.
func DecodeRequest(envelope Envelope) (Request, error) {
	var request Request
	switch RequestKind(envelope.Kind) {
	case KindExpandRequest:
		request = &ExpandRequest{}
	case KindActionRequest:
		request = &ActionRequest{}
	case KindSearchRequest:
		request = &SearchRequest{}
	case KindSearchFetch:
		request = &SearchFetch{}
	case KindMetadataRequest:
		request = &MetadataRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, envelope.Kind)
	}
	if err := codec.Unmarshal(envelope.Body, request); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", envelope.Kind, err)
	}
	return request, nil
}

// ErrEmptyEnvelope is returned when an envelope has no kind.
var ErrEmptyEnvelope = errors.New("envelope has no kind")

// Validate checks that the envelope names a kind and carries a body.
func (e Envelope) Validate() error {
	if e.Kind == "" {
		return ErrEmptyEnvelope
	}
	if len(e.Body) == 0 {
		return fmt.Errorf("%s: empty body", e.Kind)
	}
	return nil
}
