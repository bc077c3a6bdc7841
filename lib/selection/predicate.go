// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package selection

import (
	"fmt"

	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/schema"
)

// Predicate reports whether a record should be selected.
type Predicate func(catalog.Record) bool

// NewFor returns the "new" predicate of a tier's view: files on that
// tier that have not yet reached the tier they would move to next.
//
//	device  on_device && !on_local
//	local   on_local  && !on_remote
//	remote  on_remote && !on_local
func NewFor(tier schema.Tier) Predicate {
	switch tier {
	case schema.TierDevice:
		return func(r catalog.Record) bool { return r.Presence.OnDevice && !r.Presence.OnLocal }
	case schema.TierLocal:
		return func(r catalog.Record) bool { return r.Presence.OnLocal && !r.Presence.OnRemote }
	case schema.TierRemote:
		return func(r catalog.Record) bool { return r.Presence.OnRemote && !r.Presence.OnLocal }
	}
	return func(catalog.Record) bool { return false }
}

// All selects every record.
func All(catalog.Record) bool { return true }

// Named returns a predicate by name for tier: "new" or "all".
func Named(name string, tier schema.Tier) (Predicate, error) {
	switch name {
	case "new":
		return NewFor(tier), nil
	case "all":
		return All, nil
	}
	return nil, fmt.Errorf("unknown selection predicate %q", name)
}
