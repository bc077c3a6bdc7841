// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog holds the browse tree and file records of one
// dashboard session.
//
// The tree has one root per [schema.Tier]. Below it the levels are
// source, project (server tiers only), month, and period. Period
// nodes are the lazily loaded subtrees: each corresponds to one
// [schema.AggregationKey] whose files arrive in fragments and are
// merged into the [Store] by [Store.Resolve].
//
// The skeleton above the periods comes from catalog summaries. A
// summary for a source the store already holds is a full refresh: the
// source's nodes are rebuilt with fresh request latches, and records
// that belonged only to periods missing from the new summary are
// dropped. Records are otherwise dropped only when a subtree is
// resolved again and no longer lists them.
//
// File records are keyed by upload ID and shared between tiers: the
// same file listed under a device period and a local period is one
// [Record] owned by two subtrees. Presence flags are never derived
// from listings or actions; they change only through [Store.SetPresence],
// which the presence reconciler calls for authoritative reports.
//
// Children are kept in display order: sources and projects ascending,
// months and periods newest first. The first child of every sibling
// group is its default; the chain of defaults from a source down to a
// period is the view shown without user interaction.
//
// A Store is not safe for concurrent use.
package catalog
