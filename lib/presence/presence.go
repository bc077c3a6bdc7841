// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence applies authoritative presence reports to the
// catalog.
//
// A report sets one tier flag of one file and nothing else: the other
// two flags, other files, and tree membership are untouched. Reports
// may arrive in any order and at any time, including before any
// listing has mentioned the file, in which case the catalog creates a
// placeholder record to hold the flag.
//
// Flags never change because an action was requested. A pull, push,
// or remove is reflected only when the backend reports its effect
// through this package.
package presence

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/schema"
)

// Observer is called with the effective changes of each Apply or
// ApplyBatch. A batch produces a single call after every entry has
// been applied, so observers never see part of a batch.
type Observer func(changes []catalog.PresenceChange)

// Reconciler applies presence reports. Not safe for concurrent use.
type Reconciler struct {
	store     *catalog.Store
	logger    *slog.Logger
	observers []Observer
}

// New returns a Reconciler writing to store.
func New(store *catalog.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Observe registers an observer.
func (r *Reconciler) Observe(observer Observer) {
	r.observers = append(r.observers, observer)
}

// Apply validates and applies one report.
func (r *Reconciler) Apply(update schema.PresenceUpdate) (catalog.PresenceChange, error) {
	if err := update.Validate(); err != nil {
		return catalog.PresenceChange{}, err
	}
	change := r.store.SetPresence(update.UploadID, update.Tier, update.Present)
	r.notify([]catalog.PresenceChange{change})
	return change, nil
}

// ApplyBatch validates every report and then applies them in order.
// If any report is invalid nothing is applied. Later reports for the
// same file and tier win.
func (r *Reconciler) ApplyBatch(updates []schema.PresenceUpdate) ([]catalog.PresenceChange, error) {
	for i := range updates {
		if err := updates[i].Validate(); err != nil {
			return nil, fmt.Errorf("presence batch entry %d: %w", i, err)
		}
	}
	changes := make([]catalog.PresenceChange, 0, len(updates))
	for _, update := range updates {
		changes = append(changes, r.store.SetPresence(update.UploadID, update.Tier, update.Present))
	}
	r.notify(changes)
	return changes, nil
}

func (r *Reconciler) notify(changes []catalog.PresenceChange) {
	effective := changes[:0:0]
	for _, change := range changes {
		if change.Changed() || change.Created {
			effective = append(effective, change)
		}
	}
	if len(effective) == 0 {
		return
	}
	r.logger.Debug("presence changed", "changes", len(effective))
	for _, observer := range r.observers {
		observer(effective)
	}
}
