// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fragment

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/schema"
)

var (
	epoch  = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	keyK   = schema.AggregationKey{Tier: schema.TierDevice, Source: "robot-7", Period: "2026-03-14"}
	keyAlt = schema.AggregationKey{Tier: schema.TierDevice, Source: "robot-8", Period: "2026-03-14"}
)

func file(id string, size int64) schema.FileEntry {
	return schema.FileEntry{UploadID: id, Size: size}
}

func TestTwoFragmentMerge(t *testing.T) {
	reassembler := New(clock.Fake(epoch))

	completion, err := reassembler.Deliver(keyK, 0, 2, schema.RunFiles{"/runA": {file("F1", 1)}})
	if err != nil {
		t.Fatalf("first fragment: %v", err)
	}
	if completion != nil {
		t.Fatal("completed after one of two fragments")
	}

	completion, err = reassembler.Deliver(keyK, 1, 2, schema.RunFiles{
		"/runA": {file("F2", 2)},
		"/runB": {file("F3", 3)},
	})
	if err != nil {
		t.Fatalf("second fragment: %v", err)
	}
	if completion == nil {
		t.Fatal("no completion after both fragments")
	}

	want := schema.RunFiles{
		"/runA": {file("F1", 1), file("F2", 2)},
		"/runB": {file("F3", 3)},
	}
	if diff := cmp.Diff(want, completion.Payload); diff != "" {
		t.Errorf("merged payload mismatch (-want +got):\n%s", diff)
	}
	if completion.Generation != 1 || completion.Total != 2 {
		t.Errorf("completion = generation %d total %d, want 1 and 2", completion.Generation, completion.Total)
	}
	if reassembler.Len() != 0 {
		t.Errorf("accumulator still open after completion")
	}
}

// permutations returns every ordering of [0, n).
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var result [][]int
	for _, rest := range permutations(n - 1) {
		for position := 0; position <= len(rest); position++ {
			ordering := append([]int{}, rest[:position]...)
			ordering = append(ordering, n-1)
			ordering = append(ordering, rest[position:]...)
			result = append(result, ordering)
		}
	}
	return result
}

func TestMergeIsPermutationInvariant(t *testing.T) {
	fragments := []schema.RunFiles{
		{"/runA": {file("a0", 1)}, "/runB": {file("b0", 2)}},
		{"/runA": {file("a1", 3)}},
		{"/runB": {file("b1", 4)}, "/runC": {file("c0", 5)}},
		{"/runA": {file("a2", 6)}, "/runC": {file("c1", 7)}},
	}

	var reference schema.RunFiles
	for _, ordering := range permutations(len(fragments)) {
		reassembler := New(clock.Fake(epoch))
		completions := 0
		var payload schema.RunFiles
		for _, index := range ordering {
			completion, err := reassembler.Deliver(keyK, index, len(fragments), fragments[index])
			if err != nil {
				t.Fatalf("ordering %v: fragment %d: %v", ordering, index, err)
			}
			if completion != nil {
				completions++
				payload = completion.Payload
			}
		}
		if completions != 1 {
			t.Fatalf("ordering %v: %d completions, want 1", ordering, completions)
		}
		if reference == nil {
			reference = payload
			continue
		}
		if diff := cmp.Diff(reference, payload); diff != "" {
			t.Fatalf("ordering %v produced a different payload (-first +this):\n%s", ordering, diff)
		}
	}
}

func TestDuplicateDoesNotCount(t *testing.T) {
	reassembler := New(clock.Fake(epoch))
	payload := schema.RunFiles{"/runA": {file("F1", 1)}}

	if _, err := reassembler.Deliver(keyK, 0, 2, payload); err != nil {
		t.Fatal(err)
	}
	completion, err := reassembler.Deliver(keyK, 0, 2, payload)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second delivery of index 0: err = %v, want ErrDuplicate", err)
	}
	if completion != nil {
		t.Fatal("duplicate fragment completed the accumulator")
	}
	if open := reassembler.Open(); len(open) != 1 || open[0].Received != 1 {
		t.Fatalf("Open() = %+v, want one accumulator with 1 received", open)
	}

	completion, err = reassembler.Deliver(keyK, 1, 2, schema.RunFiles{"/runA": {file("F2", 2)}})
	if err != nil || completion == nil {
		t.Fatalf("final fragment: completion %v, err %v", completion, err)
	}
	if got := completion.Payload.Count(); got != 2 {
		t.Errorf("merged %d entries, want 2 (duplicate must not be merged)", got)
	}
}

func TestMalformedFragments(t *testing.T) {
	tests := []struct {
		name         string
		index, total int
	}{
		{"missing total", 0, 0},
		{"negative total", 0, -3},
		{"negative index", -1, 2},
		{"index past total", 2, 2},
		{"absurd total", 0, maxTotal + 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			reassembler := New(clock.Fake(epoch))
			_, err := reassembler.Deliver(keyK, test.index, test.total, nil)
			var malformed *MalformedError
			if !errors.As(err, &malformed) {
				t.Fatalf("err = %v, want *MalformedError", err)
			}
			if reassembler.Len() != 0 {
				t.Error("malformed fragment opened an accumulator")
			}
		})
	}
}

func TestTotalMismatchKeepsAccumulator(t *testing.T) {
	reassembler := New(clock.Fake(epoch))
	if _, err := reassembler.Deliver(keyK, 0, 3, nil); err != nil {
		t.Fatal(err)
	}
	_, err := reassembler.Deliver(keyK, 1, 2, nil)
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want *MalformedError", err)
	}
	open := reassembler.Open()
	if len(open) != 1 || open[0].Total != 3 || open[0].Received != 1 {
		t.Fatalf("Open() = %+v, want the original 3-fragment accumulator", open)
	}
}

func TestNewGenerationAfterCompletion(t *testing.T) {
	reassembler := New(clock.Fake(epoch))
	first, err := reassembler.Deliver(keyK, 0, 1, schema.RunFiles{"/runA": {file("F1", 1)}})
	if err != nil || first == nil {
		t.Fatalf("first generation: %v, %v", first, err)
	}

	// The same index is not a duplicate once the generation closed.
	second, err := reassembler.Deliver(keyK, 0, 1, schema.RunFiles{"/runA": {file("F1", 1)}})
	if err != nil || second == nil {
		t.Fatalf("second generation: %v, %v", second, err)
	}
	if second.Generation != first.Generation+1 {
		t.Errorf("generation = %d, want %d", second.Generation, first.Generation+1)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	reassembler := New(clock.Fake(epoch))
	if _, err := reassembler.Deliver(keyK, 0, 2, nil); err != nil {
		t.Fatal(err)
	}
	completion, err := reassembler.Deliver(keyAlt, 1, 2, nil)
	if err != nil || completion != nil {
		t.Fatalf("other key: completion %v, err %v", completion, err)
	}
	if reassembler.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reassembler.Len())
	}
}

func TestEvict(t *testing.T) {
	fake := clock.Fake(epoch)
	reassembler := New(fake)

	if _, err := reassembler.Deliver(keyK, 0, 2, nil); err != nil {
		t.Fatal(err)
	}
	fake.Set(epoch.Add(5 * time.Minute))
	if _, err := reassembler.Deliver(keyAlt, 0, 2, nil); err != nil {
		t.Fatal(err)
	}

	fake.Set(epoch.Add(10 * time.Minute))
	evicted := reassembler.Evict(10 * time.Minute)
	if len(evicted) != 1 || evicted[0].Key != keyK {
		t.Fatalf("Evict() = %+v, want only %s", evicted, keyK)
	}
	if reassembler.Len() != 1 {
		t.Errorf("Len() = %d after eviction, want 1", reassembler.Len())
	}

	if evicted := reassembler.Evict(0); evicted != nil {
		t.Errorf("Evict(0) removed %+v", evicted)
	}

	// A late fragment for the evicted key starts a new generation.
	if _, err := reassembler.Deliver(keyK, 1, 2, nil); err != nil {
		t.Fatalf("late fragment: %v", err)
	}
	for _, status := range reassembler.Open() {
		if status.Key == keyK && status.Generation != 2 {
			t.Errorf("late fragment generation = %d, want 2", status.Generation)
		}
	}
}

func TestDiscardWhere(t *testing.T) {
	reassembler := New(clock.Fake(epoch))
	for _, key := range []schema.AggregationKey{keyK, keyAlt} {
		if _, err := reassembler.Deliver(key, 0, 2, nil); err != nil {
			t.Fatal(err)
		}
	}
	removed := reassembler.DiscardWhere(func(key schema.AggregationKey) bool {
		return key.Source == "robot-7"
	})
	if diff := cmp.Diff([]schema.AggregationKey{keyK}, removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
	if reassembler.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reassembler.Len())
	}
}
