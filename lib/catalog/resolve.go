// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/bureau-foundation/custody/lib/schema"
)

// Resolution reports what Resolve changed.
type Resolution struct {
	Key  schema.AggregationKey
	Node *Node

	// Added and Updated list upload IDs new to the store and already
	// known, respectively. Dropped lists records removed because this
	// subtree no longer lists them and nothing else does.
	Added   []string
	Updated []string
	Dropped []string

	// Skipped counts entries without an upload ID.
	Skipped int

	// Presence holds the flags the listing reported. Resolve does not
	// apply them; the caller passes them to the presence reconciler.
	Presence []schema.PresenceUpdate

	// Digest is the BLAKE3 digest of the canonical payload encoding.
	// Unchanged is true when it equals the previous resolution's.
	Digest    string
	Unchanged bool
}

// Resolve merges the completed payload of key into the store and
// marks the period node resolved. Listing fields of known records are
// updated in place; records the previous resolution of key listed but
// this payload does not are released, and dropped if no other subtree
// lists them.
//
// Returns ErrUnknownSubtree if key has no period node.
func (s *Store) Resolve(key schema.AggregationKey, payload schema.RunFiles, generation uint64, now time.Time) (Resolution, error) {
	node := s.PeriodNode(key)
	if node == nil {
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownSubtree, key)
	}

	digest, err := digestPayload(payload)
	if err != nil {
		return Resolution{}, fmt.Errorf("digesting %s: %w", key, err)
	}

	resolution := Resolution{Key: key, Node: node, Digest: digest}
	previous := s.subtrees[key]
	if previous != nil {
		resolution.Unchanged = previous.digest == digest
	}

	tree := &subtree{
		runs:       make(map[string][]string, len(payload)),
		members:    make(map[string]struct{}),
		generation: generation,
		digest:     digest,
		resolvedAt: now,
	}
	for _, path := range sortedRunPaths(payload) {
		for i := range payload[path] {
			entry := &payload[path][i]
			if entry.Validate() != nil {
				resolution.Skipped++
				continue
			}
			tree.runs[path] = append(tree.runs[path], entry.UploadID)
			if _, listed := tree.members[entry.UploadID]; listed {
				continue
			}
			tree.members[entry.UploadID] = struct{}{}

			record, exists := s.records[entry.UploadID]
			if exists {
				resolution.Updated = append(resolution.Updated, entry.UploadID)
			} else {
				record = &Record{UploadID: entry.UploadID}
				s.records[entry.UploadID] = record
				resolution.Added = append(resolution.Added, entry.UploadID)
			}
			record.absorb(entry, key)

			owners := s.owners[entry.UploadID]
			if owners == nil {
				owners = make(map[schema.AggregationKey]struct{})
				s.owners[entry.UploadID] = owners
			}
			owners[key] = struct{}{}

			resolution.Presence = append(resolution.Presence, entry.Presence.Updates(entry.UploadID)...)
		}
	}

	if previous != nil {
		stale := make(map[string]struct{})
		for uploadID := range previous.members {
			if _, listed := tree.members[uploadID]; !listed {
				stale[uploadID] = struct{}{}
			}
		}
		resolution.Dropped = s.release(key, stale)
	}
	s.subtrees[key] = tree

	node.Resolved = true
	node.ResolvedAt = now
	node.Stalled = false
	return resolution, nil
}

// Generation returns the fragment generation last resolved for key,
// or 0.
func (s *Store) Generation(key schema.AggregationKey) uint64 {
	if tree, exists := s.subtrees[key]; exists {
		return tree.generation
	}
	return 0
}

func sortedRunPaths(payload schema.RunFiles) []string {
	paths := make([]string, 0, len(payload))
	for path := range payload {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
