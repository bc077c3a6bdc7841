// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"io"
	"log/slog"
	"testing"

	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/schema"
)

func newReconciler() (*Reconciler, *catalog.Store) {
	store := catalog.New()
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestApplySetsOnlyOneFlag(t *testing.T) {
	reconciler, store := newReconciler()
	for _, update := range []schema.PresenceUpdate{
		{UploadID: "x", Tier: schema.TierDevice, Present: true},
		{UploadID: "y", Tier: schema.TierLocal, Present: true},
		{UploadID: "x", Tier: schema.TierRemote, Present: true},
	} {
		if _, err := reconciler.Apply(update); err != nil {
			t.Fatal(err)
		}
	}

	x, _ := store.Record("x")
	if x.Presence != (catalog.Presence{OnDevice: true, OnRemote: true}) {
		t.Errorf("x = %v", x.Presence)
	}
	y, _ := store.Record("y")
	if y.Presence != (catalog.Presence{OnLocal: true}) {
		t.Errorf("y = %v", y.Presence)
	}
}

func TestApplyRejectsMalformed(t *testing.T) {
	reconciler, store := newReconciler()
	tests := []schema.PresenceUpdate{
		{Tier: schema.TierDevice, Present: true},
		{UploadID: "x", Tier: 0, Present: true},
		{UploadID: "x", Tier: 9, Present: true},
	}
	for _, update := range tests {
		if _, err := reconciler.Apply(update); err == nil {
			t.Errorf("Apply(%+v) succeeded", update)
		}
	}
	if store.Len() != 0 {
		t.Errorf("malformed reports created %d records", store.Len())
	}
}

func TestApplyBatchIsAtomic(t *testing.T) {
	reconciler, store := newReconciler()
	var calls [][]catalog.PresenceChange
	reconciler.Observe(func(changes []catalog.PresenceChange) {
		calls = append(calls, changes)
	})

	_, err := reconciler.ApplyBatch([]schema.PresenceUpdate{
		{UploadID: "a", Tier: schema.TierDevice, Present: true},
		{UploadID: "b", Tier: 0, Present: true},
	})
	if err == nil {
		t.Fatal("batch with malformed entry accepted")
	}
	if store.Len() != 0 || len(calls) != 0 {
		t.Fatalf("rejected batch applied %d records, %d notifications", store.Len(), len(calls))
	}

	changes, err := reconciler.ApplyBatch([]schema.PresenceUpdate{
		{UploadID: "a", Tier: schema.TierDevice, Present: true},
		{UploadID: "a", Tier: schema.TierLocal, Present: true},
		{UploadID: "b", Tier: schema.TierRemote, Present: false},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 3 {
		t.Errorf("ApplyBatch returned %d changes", len(changes))
	}
	if len(calls) != 1 {
		t.Fatalf("observer called %d times for one batch", len(calls))
	}
	if len(calls[0]) != 3 {
		t.Errorf("observer saw %d changes, want 3 (placeholder creation counts)", len(calls[0]))
	}
}

func TestObserverSkipsNoOps(t *testing.T) {
	reconciler, _ := newReconciler()
	update := schema.PresenceUpdate{UploadID: "a", Tier: schema.TierLocal, Present: true}
	if _, err := reconciler.Apply(update); err != nil {
		t.Fatal(err)
	}
	called := false
	reconciler.Observe(func([]catalog.PresenceChange) { called = true })
	if _, err := reconciler.Apply(update); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("observer notified for a report that changed nothing")
	}
}
