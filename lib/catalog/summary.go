// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"sort"

	"github.com/bureau-foundation/custody/lib/schema"
)

// SummaryResult reports what ApplySummary changed.
type SummaryResult struct {
	// Source is the (tier, source) scope the summary covered.
	Source schema.Scope

	// Refreshed is true when the source already existed and its
	// skeleton was rebuilt.
	Refreshed bool

	// Node is the rebuilt source node.
	Node *Node

	// RemovedKeys lists previously resolved subtrees whose periods
	// are missing from the new summary, in tab path order.
	RemovedKeys []schema.AggregationKey

	// Dropped lists the upload IDs of records that no longer belong
	// to any subtree.
	Dropped []string

	// AutoTrigger lists the period nodes on the default path of the
	// new skeleton. They are expanded without waiting for the user.
	AutoTrigger []*Node
}

// ApplySummary builds the skeleton of one source from a validated
// summary. An existing source is replaced: its nodes are discarded,
// including their request latches, and records reachable only from
// periods absent from the summary are dropped. Records of periods
// that remain stay in the store until those periods resolve again.
func (s *Store) ApplySummary(summary *schema.CatalogSummary) SummaryResult {
	root := s.roots[summary.Tier]
	result := SummaryResult{Source: schema.Scope{Tier: summary.Tier, Source: summary.Source}}

	if root.Child(summary.Source) != nil {
		result.Refreshed = true
		root.removeChild(summary.Source)
	}

	source := root.ensureChild(summary.Source, LevelSource)
	root.sortChildren()
	result.Node = source

	keep := make(map[schema.AggregationKey]struct{})
	projects := make([]string, 0, len(summary.Periods))
	for project := range summary.Periods {
		projects = append(projects, project)
	}
	sort.Strings(projects)

	for _, project := range projects {
		parent := source
		if summary.Tier != schema.TierDevice {
			parent = source.ensureChild(project, LevelProject)
		}
		for _, period := range summary.Periods[project] {
			key := schema.AggregationKey{Tier: summary.Tier, Source: summary.Source, Project: project, Period: period}
			keep[key] = struct{}{}
			month := parent.ensureChild(key.Month(), LevelMonth)
			node := month.ensureChild(period, LevelPeriod)
			node.Key = key
		}
	}
	source.walk(func(node *Node) bool {
		node.sortChildren()
		return true
	})

	var stale []schema.AggregationKey
	for key := range s.subtrees {
		if key.Tier != summary.Tier || key.Source != summary.Source {
			continue
		}
		if _, kept := keep[key]; !kept {
			stale = append(stale, key)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].TabPath() < stale[j].TabPath() })
	for _, key := range stale {
		result.Dropped = append(result.Dropped, s.forget(key)...)
	}
	result.RemovedKeys = stale
	sort.Strings(result.Dropped)

	if period := source.DefaultPeriod(); period != nil {
		result.AutoTrigger = append(result.AutoTrigger, period)
	}
	return result
}

// ResetResult reports what Reset removed.
type ResetResult struct {
	RemovedSources []string
	RemovedKeys    []schema.AggregationKey
	Dropped        []string
}

// Reset removes every source of tier not listed in keep, together with
// its resolved subtrees and any records they alone owned.
func (s *Store) Reset(tier schema.Tier, keep []string) ResetResult {
	root := s.roots[tier]
	var result ResetResult
	if root == nil {
		return result
	}

	listed := make(map[string]struct{}, len(keep))
	for _, source := range keep {
		listed[source] = struct{}{}
	}
	for _, source := range append([]string(nil), root.order...) {
		if _, kept := listed[source]; kept {
			continue
		}
		root.removeChild(source)
		result.RemovedSources = append(result.RemovedSources, source)
	}

	removed := make(map[string]struct{}, len(result.RemovedSources))
	for _, source := range result.RemovedSources {
		removed[source] = struct{}{}
	}
	for key := range s.subtrees {
		if _, gone := removed[key.Source]; gone && key.Tier == tier {
			result.RemovedKeys = append(result.RemovedKeys, key)
		}
	}
	sort.Slice(result.RemovedKeys, func(i, j int) bool {
		return result.RemovedKeys[i].TabPath() < result.RemovedKeys[j].TabPath()
	})
	for _, key := range result.RemovedKeys {
		result.Dropped = append(result.Dropped, s.forget(key)...)
	}
	sort.Strings(result.Dropped)
	return result
}
