// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package selection

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/schema"
)

var (
	now      = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	march14  = schema.AggregationKey{Tier: schema.TierDevice, Source: "robot-7", Period: "2026-03-14"}
	march13  = schema.AggregationKey{Tier: schema.TierDevice, Source: "robot-7", Period: "2026-03-13"}
	robot7   = schema.Scope{Tier: schema.TierDevice, Source: "robot-7"}
	only14th = schema.Scope{Tier: schema.TierDevice, Source: "robot-7", Period: "2026-03-14"}
)

func entry(id string, size int64) schema.FileEntry {
	return schema.FileEntry{UploadID: id, Size: size}
}

func setup(t *testing.T) (*Coordinator, *catalog.Store) {
	t.Helper()
	store := catalog.New()
	store.ApplySummary(&schema.CatalogSummary{
		Tier:    schema.TierDevice,
		Source:  "robot-7",
		Periods: map[string][]string{"": {"2026-03-13", "2026-03-14"}},
	})
	if _, err := store.Resolve(march14, schema.RunFiles{"/runA": {entry("a", 100), entry("b", 250), entry("c", 4000)}}, 1, now); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Resolve(march13, schema.RunFiles{"/runZ": {entry("z", 7)}}, 1, now); err != nil {
		t.Fatal(err)
	}
	return New(store), store
}

func TestToggleRecomputes(t *testing.T) {
	coordinator, _ := setup(t)

	var summary Summary
	var err error
	for _, id := range []string{"a", "b", "c"} {
		if summary, err = coordinator.Toggle(only14th, id); err != nil {
			t.Fatal(err)
		}
	}
	if summary != (Summary{Count: 3, TotalSize: 4350}) {
		t.Errorf("after selecting three: %+v", summary)
	}

	summary, err = coordinator.Toggle(only14th, "b")
	if err != nil {
		t.Fatal(err)
	}
	if summary != (Summary{Count: 2, TotalSize: 4100}) {
		t.Errorf("after deselecting b: %+v", summary)
	}

	if summary := coordinator.Clear(only14th); summary != (Summary{}) {
		t.Errorf("after clear: %+v", summary)
	}
}

func TestToggleOutsideScope(t *testing.T) {
	coordinator, _ := setup(t)
	if _, err := coordinator.Toggle(only14th, "z"); !errors.Is(err, ErrNotInScope) {
		t.Errorf("err = %v, want ErrNotInScope", err)
	}
}

func TestScopesShareSourceSelection(t *testing.T) {
	coordinator, _ := setup(t)
	if _, err := coordinator.Toggle(only14th, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := coordinator.Toggle(robot7, "z"); err != nil {
		t.Fatal(err)
	}

	if got := coordinator.Summary(robot7); got != (Summary{Count: 2, TotalSize: 107}) {
		t.Errorf("source summary = %+v", got)
	}
	if got := coordinator.Summary(only14th); got != (Summary{Count: 1, TotalSize: 100}) {
		t.Errorf("period summary = %+v", got)
	}

	// Clearing the narrow scope leaves the rest of the source alone.
	coordinator.Clear(only14th)
	if diff := cmp.Diff([]string{"z"}, coordinator.SelectedIDs(robot7)); diff != "" {
		t.Errorf("remaining selection (-want +got):\n%s", diff)
	}
}

func TestSelectNewFollowsPresence(t *testing.T) {
	coordinator, store := setup(t)
	store.SetPresence("a", schema.TierDevice, true)
	store.SetPresence("b", schema.TierDevice, true)
	store.SetPresence("b", schema.TierLocal, true)

	coordinator.SelectMatching(robot7, NewFor(schema.TierDevice))
	if diff := cmp.Diff([]string{"a"}, coordinator.SelectedIDs(robot7)); diff != "" {
		t.Fatalf("first select-new (-want +got):\n%s", diff)
	}

	store.SetPresence("a", schema.TierLocal, true)
	summary := coordinator.SelectMatching(robot7, NewFor(schema.TierDevice))
	if ids := coordinator.SelectedIDs(robot7); len(ids) != 0 {
		t.Errorf("select-new after pull confirmation kept %v", ids)
	}
	if summary != (Summary{}) {
		t.Errorf("summary = %+v, want zero", summary)
	}
}

func TestSummarySeesSizeChanges(t *testing.T) {
	coordinator, store := setup(t)
	if _, err := coordinator.Toggle(only14th, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Resolve(march14, schema.RunFiles{"/runA": {entry("a", 900), entry("b", 250)}}, 2, now); err != nil {
		t.Fatal(err)
	}
	if got := coordinator.Summary(only14th); got != (Summary{Count: 1, TotalSize: 900}) {
		t.Errorf("summary after re-listing = %+v", got)
	}
}

func TestSummaryPrunesDroppedRecords(t *testing.T) {
	coordinator, store := setup(t)
	if _, err := coordinator.Toggle(only14th, "c"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Resolve(march14, schema.RunFiles{"/runA": {entry("a", 100)}}, 2, now); err != nil {
		t.Fatal(err)
	}
	if got := coordinator.Summary(robot7); got != (Summary{}) {
		t.Errorf("summary = %+v, want zero after c was dropped", got)
	}
	// c reappearing does not resurrect the pruned selection.
	if _, err := store.Resolve(march14, schema.RunFiles{"/runA": {entry("c", 4000)}}, 3, now); err != nil {
		t.Fatal(err)
	}
	if got := coordinator.Summary(robot7); got.Count != 0 {
		t.Errorf("pruned selection came back: %+v", got)
	}
}

func TestClearSource(t *testing.T) {
	coordinator, _ := setup(t)
	coordinator.SelectMatching(robot7, All)
	coordinator.ClearSource(schema.TierDevice, "robot-7")
	if got := coordinator.Summary(robot7); got != (Summary{}) {
		t.Errorf("summary after ClearSource = %+v", got)
	}
}

func TestNewPredicates(t *testing.T) {
	tests := []struct {
		tier     schema.Tier
		presence catalog.Presence
		want     bool
	}{
		{schema.TierDevice, catalog.Presence{OnDevice: true}, true},
		{schema.TierDevice, catalog.Presence{OnDevice: true, OnLocal: true}, false},
		{schema.TierLocal, catalog.Presence{OnLocal: true}, true},
		{schema.TierLocal, catalog.Presence{OnLocal: true, OnRemote: true}, false},
		{schema.TierRemote, catalog.Presence{OnRemote: true}, true},
		{schema.TierRemote, catalog.Presence{OnRemote: true, OnLocal: true}, false},
	}
	for _, test := range tests {
		got := NewFor(test.tier)(catalog.Record{Presence: test.presence})
		if got != test.want {
			t.Errorf("NewFor(%s)(%s) = %v, want %v", test.tier, test.presence, got, test.want)
		}
	}
	if _, err := Named("stale", schema.TierDevice); err == nil {
		t.Error("unknown predicate name accepted")
	}
}

func TestHumanSize(t *testing.T) {
	if got := (Summary{TotalSize: 82854982}).HumanSize(); got != "83 MB" {
		t.Errorf("HumanSize = %q", got)
	}
	if got := (Summary{}).HumanSize(); got != "0 B" {
		t.Errorf("zero HumanSize = %q", got)
	}
}
