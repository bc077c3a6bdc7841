// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bureau-foundation/custody/lib/schema"
)

var (
	// ErrUnknownSubtree is returned when a subtree is resolved whose
	// period node is not in the skeleton.
	ErrUnknownSubtree = errors.New("subtree not in catalog")

	// ErrUnknownRecord is returned for an upload ID the store has
	// never seen.
	ErrUnknownRecord = errors.New("unknown upload id")

	// ErrUnknownNode is returned when a node path does not resolve.
	ErrUnknownNode = errors.New("unknown catalog node")
)

// subtree is the resolved content of one aggregation key. It outlives
// the period node so that a full refresh can tell which records were
// listed before.
type subtree struct {
	runs       map[string][]string
	members    map[string]struct{}
	generation uint64
	digest     string
	resolvedAt time.Time
}

// Store is the catalog of one session. Construct with [New].
type Store struct {
	roots    map[schema.Tier]*Node
	records  map[string]*Record
	subtrees map[schema.AggregationKey]*subtree

	// owners maps upload ID to the keys whose resolved subtree lists
	// the file.
	owners map[string]map[schema.AggregationKey]struct{}
}

// New returns an empty store with a root for every tier.
func New() *Store {
	store := &Store{
		roots:    make(map[schema.Tier]*Node),
		records:  make(map[string]*Record),
		subtrees: make(map[schema.AggregationKey]*subtree),
		owners:   make(map[string]map[schema.AggregationKey]struct{}),
	}
	for _, tier := range schema.Tiers {
		store.roots[tier] = newNode(tier.String(), LevelTier, tier, nil)
	}
	return store
}

// Root returns the tier's root node.
func (s *Store) Root(tier schema.Tier) *Node { return s.roots[tier] }

// Sources returns the source names held for tier in display order.
func (s *Store) Sources(tier schema.Tier) []string {
	root := s.roots[tier]
	if root == nil {
		return nil
	}
	return append([]string(nil), root.order...)
}

// PeriodNode returns the period node for key, or nil.
func (s *Store) PeriodNode(key schema.AggregationKey) *Node {
	root := s.roots[key.Tier]
	if root == nil {
		return nil
	}
	node := root.Child(key.Source)
	if node == nil {
		return nil
	}
	if key.Tier != schema.TierDevice {
		if node = node.Child(key.Project); node == nil {
			return nil
		}
	}
	if node = node.Child(key.Month()); node == nil {
		return nil
	}
	return node.Child(key.Period)
}

// Find resolves a node path as produced by [Node.Path]. Period nodes
// are addressed by tab path, so the month segment is implied by the
// period.
func (s *Store) Find(path string) (*Node, error) {
	segments := strings.Split(path, ":")
	tier, err := schema.ParseTier(segments[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownNode, path, err)
	}
	node := s.roots[tier]
	for _, segment := range segments[1:] {
		next := node.Child(segment)
		if next == nil && len(segment) == len(schema.PeriodLayout) {
			// A period directly below its month's parent.
			if month := node.Child(segment[:7]); month != nil {
				next = month.Child(segment)
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, path)
		}
		node = next
	}
	return node, nil
}

// Walk visits every node of every tier depth first in display order.
// Returning false from visit skips the node's children.
func (s *Store) Walk(visit func(*Node) bool) {
	for _, tier := range schema.Tiers {
		s.roots[tier].walk(visit)
	}
}

// Record returns a copy of the record for uploadID.
func (s *Store) Record(uploadID string) (Record, bool) {
	record, exists := s.records[uploadID]
	if !exists {
		return Record{}, false
	}
	return *record, true
}

// Len returns the number of records, placeholders included.
func (s *Store) Len() int { return len(s.records) }

// ScopeRecords returns the records listed by every resolved subtree
// inside scope, ordered by subtree tab path, then run path, then
// listing order. A record listed by several subtrees in scope appears
// once.
func (s *Store) ScopeRecords(scope schema.Scope) []Record {
	var keys []schema.AggregationKey
	for key := range s.subtrees {
		if scope.Contains(key) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].TabPath() < keys[j].TabPath() })

	seen := make(map[string]struct{})
	var records []Record
	for _, key := range keys {
		tree := s.subtrees[key]
		for _, path := range sortedPaths(tree.runs) {
			for _, uploadID := range tree.runs[path] {
				if _, duplicate := seen[uploadID]; duplicate {
					continue
				}
				seen[uploadID] = struct{}{}
				if record, exists := s.records[uploadID]; exists {
					records = append(records, *record)
				}
			}
		}
	}
	return records
}

// Runs returns the run paths of a resolved subtree and the upload IDs
// listed under each, or nil if the subtree has not resolved.
func (s *Store) Runs(key schema.AggregationKey) map[string][]string {
	tree, exists := s.subtrees[key]
	if !exists {
		return nil
	}
	runs := make(map[string][]string, len(tree.runs))
	for path, ids := range tree.runs {
		runs[path] = append([]string(nil), ids...)
	}
	return runs
}

// Digest returns the BLAKE3 digest of a resolved subtree's payload,
// or "" if the subtree has not resolved.
func (s *Store) Digest(key schema.AggregationKey) string {
	if tree, exists := s.subtrees[key]; exists {
		return tree.digest
	}
	return ""
}

// PresenceChange describes the effect of one SetPresence call.
type PresenceChange struct {
	UploadID string
	Tier     schema.Tier
	Before   Presence
	After    Presence

	// Created is true when the call created a placeholder record.
	Created bool
}

// Changed reports whether the flag actually changed.
func (c PresenceChange) Changed() bool { return c.Before != c.After }

// SetPresence sets one presence flag, creating a placeholder record
// if uploadID is unknown. It never touches tree membership.
func (s *Store) SetPresence(uploadID string, tier schema.Tier, present bool) PresenceChange {
	record, exists := s.records[uploadID]
	if !exists {
		record = &Record{UploadID: uploadID, Placeholder: true}
		s.records[uploadID] = record
	}
	change := PresenceChange{UploadID: uploadID, Tier: tier, Before: record.Presence, Created: !exists}
	record.Presence = record.Presence.With(tier, present)
	change.After = record.Presence
	return change
}

// SetMetadata changes an editable attribute of a known record.
func (s *Store) SetMetadata(uploadID string, field schema.MetadataField, value string) error {
	record, exists := s.records[uploadID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, uploadID)
	}
	return record.setMetadata(field, value)
}

// Stats summarises the store for diagnostics.
type Stats struct {
	Sources      map[schema.Tier]int `json:"sources"`
	Periods      int                 `json:"periods"`
	Requested    int                 `json:"requested"`
	Resolved     int                 `json:"resolved"`
	Stalled      int                 `json:"stalled"`
	Records      int                 `json:"records"`
	Placeholders int                 `json:"placeholders"`
	Present      map[schema.Tier]int `json:"present"`
}

// Stats counts nodes and records.
func (s *Store) Stats() Stats {
	stats := Stats{
		Sources: make(map[schema.Tier]int),
		Present: make(map[schema.Tier]int),
		Records: len(s.records),
	}
	for _, tier := range schema.Tiers {
		stats.Sources[tier] = len(s.roots[tier].order)
	}
	s.Walk(func(node *Node) bool {
		if !node.IsPeriod() {
			return true
		}
		stats.Periods++
		if node.Requested {
			stats.Requested++
		}
		if node.Resolved {
			stats.Resolved++
		}
		if node.Stalled {
			stats.Stalled++
		}
		return true
	})
	for _, record := range s.records {
		if record.Placeholder {
			stats.Placeholders++
		}
		for _, tier := range schema.Tiers {
			if record.Presence.On(tier) {
				stats.Present[tier]++
			}
		}
	}
	return stats
}

// release removes key from the owners of each upload ID and drops
// records left without an owner. It returns the dropped IDs sorted.
func (s *Store) release(key schema.AggregationKey, uploadIDs map[string]struct{}) []string {
	var dropped []string
	for uploadID := range uploadIDs {
		owners := s.owners[uploadID]
		delete(owners, key)
		if len(owners) > 0 {
			continue
		}
		delete(s.owners, uploadID)
		delete(s.records, uploadID)
		dropped = append(dropped, uploadID)
	}
	sort.Strings(dropped)
	return dropped
}

// forget drops the resolved content of key and releases its records.
func (s *Store) forget(key schema.AggregationKey) []string {
	tree, exists := s.subtrees[key]
	if !exists {
		return nil
	}
	delete(s.subtrees, key)
	return s.release(key, tree.members)
}

func sortedPaths(runs map[string][]string) []string {
	paths := make([]string, 0, len(runs))
	for path := range runs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
