// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fragment

import (
	"fmt"
	"sort"
	"time"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/schema"
)

// maxTotal bounds the fragment count a single key may announce. A
// day of recordings is split into at most a few hundred fragments;
// anything larger is a corrupt header, and accepting it would
// allocate the seen-index set on the sender's word.
const maxTotal = 1 << 16

// Completion is the merged result of one fully delivered generation.
type Completion struct {
	Key schema.AggregationKey

	// Generation counts completed and evicted accumulators for Key,
	// starting at 1.
	Generation uint64

	// Payload is the union of every fragment's run files. Entries for a
	// path present in several fragments are concatenated in fragment
	// index order.
	Payload schema.RunFiles

	// Total is the number of fragments merged.
	Total int

	// OpenedAt is when the first fragment of the generation arrived.
	OpenedAt time.Time
}

// Status describes an open accumulator.
type Status struct {
	Key          schema.AggregationKey
	Generation   uint64
	Total        int
	Received     int
	OpenedAt     time.Time
	LastDelivery time.Time
}

type accumulator struct {
	generation   uint64
	total        int
	seen         indexSet
	fragments    []schema.RunFiles
	openedAt     time.Time
	lastDelivery time.Time
}

// Reassembler holds the open accumulators of one session.
type Reassembler struct {
	clock        clock.Clock
	accumulators map[schema.AggregationKey]*accumulator
	generations  map[schema.AggregationKey]uint64
}

// New returns an empty Reassembler that timestamps accumulators with
// clk.
func New(clk clock.Clock) *Reassembler {
	return &Reassembler{
		clock:        clk,
		accumulators: make(map[schema.AggregationKey]*accumulator),
		generations:  make(map[schema.AggregationKey]uint64),
	}
}

// Deliver adds one fragment to the accumulator for key, opening one if
// none is open. It returns a non-nil Completion exactly once per
// generation, on the delivery that fills the last missing index.
//
// Rejected fragments leave every accumulator unchanged. A total of
// zero or less, an index outside [0, total), or a total that differs
// from the open accumulator's total return a *MalformedError. An index
// already delivered returns ErrDuplicate.
func (r *Reassembler) Deliver(key schema.AggregationKey, index, total int, payload schema.RunFiles) (*Completion, error) {
	switch {
	case total <= 0:
		return nil, &MalformedError{Key: key, Index: index, Total: total, Reason: "total must be positive"}
	case total > maxTotal:
		return nil, &MalformedError{Key: key, Index: index, Total: total, Reason: fmt.Sprintf("total exceeds %d", maxTotal)}
	case index < 0 || index >= total:
		return nil, &MalformedError{Key: key, Index: index, Total: total, Reason: "index out of range"}
	}

	now := r.clock.Now()
	acc, open := r.accumulators[key]
	if open && acc.total != total {
		return nil, &MalformedError{
			Key: key, Index: index, Total: total,
			Reason: fmt.Sprintf("total disagrees with open generation (%d)", acc.total),
		}
	}
	if !open {
		acc = &accumulator{
			generation: r.generations[key] + 1,
			total:      total,
			seen:       newIndexSet(total),
			fragments:  make([]schema.RunFiles, total),
			openedAt:   now,
		}
	}
	if !acc.seen.add(index) {
		return nil, fmt.Errorf("%w: %d/%d for %s", ErrDuplicate, index, total, key)
	}
	acc.fragments[index] = payload
	acc.lastDelivery = now

	if acc.seen.count() < acc.total {
		r.accumulators[key] = acc
		return nil, nil
	}

	delete(r.accumulators, key)
	r.generations[key] = acc.generation
	return &Completion{
		Key:        key,
		Generation: acc.generation,
		Payload:    merge(acc.fragments),
		Total:      acc.total,
		OpenedAt:   acc.openedAt,
	}, nil
}

// merge unions fragments in slice order. Each entry list is copied so
// the result does not alias any fragment.
func merge(fragments []schema.RunFiles) schema.RunFiles {
	merged := make(schema.RunFiles)
	for _, fragment := range fragments {
		paths := make([]string, 0, len(fragment))
		for path := range fragment {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			merged[path] = append(merged[path], fragment[path]...)
		}
	}
	return merged
}

// Discard removes the open accumulator for key, if any, and reports
// whether one was removed. The key's generation counter still
// advances so a late fragment of the discarded generation starts a
// fresh one.
func (r *Reassembler) Discard(key schema.AggregationKey) bool {
	acc, open := r.accumulators[key]
	if !open {
		return false
	}
	delete(r.accumulators, key)
	r.generations[key] = acc.generation
	return true
}

// DiscardWhere removes every open accumulator whose key matches and
// returns the removed keys in tab path order.
func (r *Reassembler) DiscardWhere(match func(schema.AggregationKey) bool) []schema.AggregationKey {
	var removed []schema.AggregationKey
	for key := range r.accumulators {
		if match(key) {
			removed = append(removed, key)
		}
	}
	sortKeys(removed)
	for _, key := range removed {
		r.Discard(key)
	}
	return removed
}

// Evict removes accumulators that have not received a fragment for
// at least idle and returns their status at removal. A non-positive
// idle disables eviction.
func (r *Reassembler) Evict(idle time.Duration) []Status {
	if idle <= 0 {
		return nil
	}
	cutoff := r.clock.Now().Add(-idle)
	var evicted []Status
	for _, status := range r.Open() {
		if status.LastDelivery.After(cutoff) {
			continue
		}
		r.Discard(status.Key)
		evicted = append(evicted, status)
	}
	return evicted
}

// Open returns the status of every open accumulator in tab path order.
func (r *Reassembler) Open() []Status {
	keys := make([]schema.AggregationKey, 0, len(r.accumulators))
	for key := range r.accumulators {
		keys = append(keys, key)
	}
	sortKeys(keys)

	statuses := make([]Status, 0, len(keys))
	for _, key := range keys {
		acc := r.accumulators[key]
		statuses = append(statuses, Status{
			Key:          key,
			Generation:   acc.generation,
			Total:        acc.total,
			Received:     acc.seen.count(),
			OpenedAt:     acc.openedAt,
			LastDelivery: acc.lastDelivery,
		})
	}
	return statuses
}

// Len returns the number of open accumulators.
func (r *Reassembler) Len() int { return len(r.accumulators) }

func sortKeys(keys []schema.AggregationKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].TabPath() < keys[j].TabPath() })
}
