// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package selection tracks the files a user has chosen for a bulk
// action.
//
// Selections are kept per (tier, source) and every operation takes a
// [schema.Scope] that narrows it further by project or period. After
// each operation the scope's [Summary] is recomputed from scratch by
// looking every selected upload ID up in the catalog, so a record
// that was resized, re-listed, or dropped underneath the selection is
// reflected at once. Dropped records are pruned from the selection
// during that recomputation.
package selection

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/schema"
)

// ErrNotInScope is returned when toggling a file the scope does not
// list.
var ErrNotInScope = errors.New("file not listed in scope")

// Summary is the derived aggregate of a selection.
type Summary struct {
	Count     int   `json:"count"`
	TotalSize int64 `json:"total_size"`
}

// HumanSize renders TotalSize in SI units, for example "82 MB".
func (s Summary) HumanSize() string {
	if s.TotalSize <= 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(s.TotalSize))
}

func (s Summary) String() string {
	return fmt.Sprintf("%d selected (%s)", s.Count, s.HumanSize())
}

type setKey struct {
	tier   schema.Tier
	source string
}

// Coordinator owns the selections of one session. Not safe for
// concurrent use.
type Coordinator struct {
	store *catalog.Store
	sets  map[setKey]map[string]struct{}
}

// New returns a Coordinator reading records from store.
func New(store *catalog.Store) *Coordinator {
	return &Coordinator{store: store, sets: make(map[setKey]map[string]struct{})}
}

// Toggle flips the selection of one file listed in scope and returns
// the scope's recomputed summary.
func (c *Coordinator) Toggle(scope schema.Scope, uploadID string) (Summary, error) {
	if _, listed := c.listed(scope)[uploadID]; !listed {
		return Summary{}, fmt.Errorf("%w: %s in %s", ErrNotInScope, uploadID, scope)
	}
	set := c.set(scope)
	if _, selected := set[uploadID]; selected {
		delete(set, uploadID)
	} else {
		set[uploadID] = struct{}{}
	}
	return c.Summary(scope), nil
}

// SelectMatching replaces the selection inside scope with the records
// in scope that match predicate. Selections outside scope are kept.
func (c *Coordinator) SelectMatching(scope schema.Scope, predicate Predicate) Summary {
	set := c.set(scope)
	for _, record := range c.store.ScopeRecords(scope) {
		if predicate(record) {
			set[record.UploadID] = struct{}{}
		} else {
			delete(set, record.UploadID)
		}
	}
	return c.Summary(scope)
}

// Clear deselects every file inside scope.
func (c *Coordinator) Clear(scope schema.Scope) Summary {
	set := c.set(scope)
	for uploadID := range c.listed(scope) {
		delete(set, uploadID)
	}
	return c.Summary(scope)
}

// ClearSource drops the whole selection of one source. Called when the
// source's catalog is rebuilt so the selection cannot refer to stale
// identities.
func (c *Coordinator) ClearSource(tier schema.Tier, source string) {
	delete(c.sets, setKey{tier: tier, source: source})
}

// Selected returns the selected records inside scope in catalog order.
func (c *Coordinator) Selected(scope schema.Scope) []catalog.Record {
	set := c.sets[setKey{tier: scope.Tier, source: scope.Source}]
	if len(set) == 0 {
		return nil
	}
	var selected []catalog.Record
	for _, record := range c.store.ScopeRecords(scope) {
		if _, chosen := set[record.UploadID]; chosen {
			selected = append(selected, record)
		}
	}
	return selected
}

// SelectedIDs returns the upload IDs of Selected.
func (c *Coordinator) SelectedIDs(scope schema.Scope) []string {
	records := c.Selected(scope)
	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.UploadID
	}
	return ids
}

// Summary recomputes the count and total size of the selection inside
// scope. Selected IDs the catalog no longer holds are pruned.
func (c *Coordinator) Summary(scope schema.Scope) Summary {
	key := setKey{tier: scope.Tier, source: scope.Source}
	set := c.sets[key]
	for uploadID := range set {
		if _, exists := c.store.Record(uploadID); !exists {
			delete(set, uploadID)
		}
	}
	if len(set) == 0 {
		delete(c.sets, key)
		return Summary{}
	}

	var summary Summary
	for _, record := range c.Selected(scope) {
		summary.Count++
		summary.TotalSize += record.Size
	}
	return summary
}

func (c *Coordinator) set(scope schema.Scope) map[string]struct{} {
	key := setKey{tier: scope.Tier, source: scope.Source}
	set := c.sets[key]
	if set == nil {
		set = make(map[string]struct{})
		c.sets[key] = set
	}
	return set
}

func (c *Coordinator) listed(scope schema.Scope) map[string]struct{} {
	records := c.store.ScopeRecords(scope)
	listed := make(map[string]struct{}, len(records))
	for _, record := range records {
		listed[record.UploadID] = struct{}{}
	}
	return listed
}
