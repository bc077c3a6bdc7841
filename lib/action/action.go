// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package action turns a selection into an outbound bulk-action
// request.
//
// Dispatch is fire and forget: the request is handed to the emitter
// and forgotten. Nothing here waits for the backend, retries, or
// remembers what was asked. Whether an action took effect is learned
// only from later presence reports.
//
// Which actions apply depends on the tier the selection was made on:
//
//	pull    device, remote   copy toward the local server
//	push    local            copy to the remote server
//	remove  any              delete from the selection's tier
//	cancel  any              stop the source's transfers
//	rescan  device           ask the device to re-report its files
//
// Remove is guarded: a file is included only if a copy exists on
// another tier as well (see [RemoveGuard]), so a request never asks
// the backend to delete the last known copy.
package action

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/schema"
)

var (
	// ErrNothingSelected is returned when a file action has no file
	// left to act on.
	ErrNothingSelected = errors.New("no files selected")

	// ErrActionNotValid is returned for an action the tier does not
	// support.
	ErrActionNotValid = errors.New("action not valid for tier")
)

// Emitter sends an outbound request without waiting for an answer.
type Emitter interface {
	Emit(schema.Request) error
}

// Valid reports whether action applies to files viewed on tier.
func Valid(action schema.Action, tier schema.Tier) bool {
	switch action {
	case schema.ActionPull:
		return tier == schema.TierDevice || tier == schema.TierRemote
	case schema.ActionPush:
		return tier == schema.TierLocal
	case schema.ActionRemove, schema.ActionCancel:
		return tier.Valid()
	case schema.ActionRescan:
		return tier == schema.TierDevice
	}
	return false
}

// RemoveGuard reports whether a file viewed on tier may be removed
// from it: the file must be present there and on the tier that backs
// it up.
//
//	device  on_device && on_local
//	local   on_local  && on_remote
//	remote  on_remote && on_local
func RemoveGuard(tier schema.Tier, presence catalog.Presence) bool {
	switch tier {
	case schema.TierDevice:
		return presence.OnDevice && presence.OnLocal
	case schema.TierLocal:
		return presence.OnLocal && presence.OnRemote
	case schema.TierRemote:
		return presence.OnRemote && presence.OnLocal
	}
	return false
}

// Result reports what Dispatch sent.
type Result struct {
	Request *schema.ActionRequest

	// Excluded lists selected files the remove guard left out.
	Excluded []string
}

// Dispatcher builds and emits action requests. Not safe for
// concurrent use.
type Dispatcher struct {
	store   *catalog.Store
	emitter Emitter
	logger  *slog.Logger
}

// New returns a Dispatcher.
func New(store *catalog.Store, emitter Emitter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, emitter: emitter, logger: logger}
}

// Dispatch emits one request for action on scope. Source-only actions
// (cancel, rescan) ignore uploadIDs and the scope's filters. File
// actions require at least one upload ID after the remove guard.
func (d *Dispatcher) Dispatch(action schema.Action, scope schema.Scope, uploadIDs []string) (Result, error) {
	if err := scope.Validate(); err != nil {
		return Result{}, err
	}
	if !Valid(action, scope.Tier) {
		return Result{}, fmt.Errorf("%w: %s on %s", ErrActionNotValid, action, scope.Tier)
	}

	request := &schema.ActionRequest{Action: action, Tier: scope.Tier, Source: scope.Source}
	var result Result
	if !action.SourceOnly() {
		ids := uploadIDs
		if action == schema.ActionRemove {
			ids, result.Excluded = d.guardRemove(scope.Tier, uploadIDs)
		}
		if len(ids) == 0 {
			return result, fmt.Errorf("%s %s: %w", action, scope, ErrNothingSelected)
		}
		request.Filters = scope.Filters()
		request.UploadIDs = append([]string(nil), ids...)
	}

	if err := d.emitter.Emit(request); err != nil {
		return result, fmt.Errorf("%s %s: %w", action, scope, err)
	}
	result.Request = request
	d.logger.Info("action requested",
		"action", action,
		"scope", scope.String(),
		"files", len(request.UploadIDs),
		"excluded", len(result.Excluded),
	)
	return result, nil
}

func (d *Dispatcher) guardRemove(tier schema.Tier, uploadIDs []string) (allowed, excluded []string) {
	for _, uploadID := range uploadIDs {
		record, exists := d.store.Record(uploadID)
		if exists && RemoveGuard(tier, record.Presence) {
			allowed = append(allowed, uploadID)
		} else {
			excluded = append(excluded, uploadID)
		}
	}
	return allowed, excluded
}
