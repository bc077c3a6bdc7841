// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/fragment"
)

// TreeRow is one catalog node flattened for display.
type TreeRow struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Level     string `json:"level"`
	Depth     int    `json:"depth"`
	Default   bool   `json:"default,omitempty"`
	Requested bool   `json:"requested,omitempty"`
	Resolved  bool   `json:"resolved,omitempty"`
	Stalled   bool   `json:"stalled,omitempty"`

	// Files and Size count the files listed by a resolved period.
	Files int   `json:"files,omitempty"`
	Size  int64 `json:"size,omitempty"`
}

// Tree flattens the catalog depth first in display order. Tier roots
// without sources are left out.
func (s *State) Tree() []TreeRow {
	var rows []TreeRow
	depths := make(map[*catalog.Node]int)
	s.Store.Walk(func(node *catalog.Node) bool {
		if node.Level == catalog.LevelTier {
			if len(node.Children()) == 0 {
				return false
			}
			depths[node] = 0
		} else {
			depths[node] = depths[node.Parent] + 1
		}
		row := TreeRow{
			Path:      node.Path(),
			Name:      node.Name,
			Level:     node.Level.String(),
			Depth:     depths[node],
			Default:   node.Default,
			Requested: node.Requested,
			Resolved:  node.Resolved,
			Stalled:   node.Stalled,
		}
		if node.IsPeriod() && node.Resolved {
			for _, ids := range s.Store.Runs(node.Key) {
				row.Files += len(ids)
				for _, uploadID := range ids {
					if record, exists := s.Store.Record(uploadID); exists {
						row.Size += record.Size
					}
				}
			}
		}
		rows = append(rows, row)
		return true
	})
	return rows
}

// Status summarises the engine for diagnostics.
type Status struct {
	Catalog           catalog.Stats     `json:"catalog"`
	OpenFragmentSets  []fragment.Status `json:"open_fragment_sets,omitempty"`
	PendingExpansions int               `json:"pending_expansions"`
	SearchCursor      int               `json:"search_cursor"`
}

// Status returns a snapshot of the engine's counters.
func (s *State) Status() Status {
	return Status{
		Catalog:           s.Store.Stats(),
		OpenFragmentSets:  s.Fragments.Open(),
		PendingExpansions: s.Expansion.Pending(),
		SearchCursor:      s.Search.Cursor(),
	}
}
