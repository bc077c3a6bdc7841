// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/custody/lib/schema"
)

// Presence is the three independent tier flags of one file.
type Presence struct {
	OnDevice bool `json:"on_device"`
	OnLocal  bool `json:"on_local"`
	OnRemote bool `json:"on_remote"`
}

// On returns the flag for tier. Invalid tiers report false.
func (p Presence) On(tier schema.Tier) bool {
	switch tier {
	case schema.TierDevice:
		return p.OnDevice
	case schema.TierLocal:
		return p.OnLocal
	case schema.TierRemote:
		return p.OnRemote
	}
	return false
}

// With returns a copy of p with the flag for tier set to present.
func (p Presence) With(tier schema.Tier, present bool) Presence {
	switch tier {
	case schema.TierDevice:
		p.OnDevice = present
	case schema.TierLocal:
		p.OnLocal = present
	case schema.TierRemote:
		p.OnRemote = present
	}
	return p
}

func (p Presence) String() string {
	mark := func(on bool, letter byte) byte {
		if on {
			return letter
		}
		return '-'
	}
	return string([]byte{mark(p.OnDevice, 'D'), mark(p.OnLocal, 'L'), mark(p.OnRemote, 'R')})
}

// Record is the engine's view of one file.
type Record struct {
	UploadID     string
	Source       string
	Project      string
	Robot        string
	Site         string
	Run          string
	RelativePath string
	Basename     string
	Datatype     string
	Topics       []string
	Size         int64
	Timestamp    time.Time

	Presence Presence

	// Placeholder is true for a record created by a presence report
	// before any listing mentioned it. Listing fields are empty until
	// a subtree containing the file resolves.
	Placeholder bool
}

// absorb copies the listing fields of entry into r. Presence is left
// alone. Empty listing fields fall back to the subtree's key.
func (r *Record) absorb(entry *schema.FileEntry, key schema.AggregationKey) {
	r.Source = firstNonEmpty(entry.Source, key.Source, r.Source)
	r.Project = firstNonEmpty(entry.Project, key.Project, r.Project)
	r.Robot = firstNonEmpty(entry.Robot, r.Robot)
	r.Site = firstNonEmpty(entry.Site, r.Site)
	r.Run = firstNonEmpty(entry.Run, r.Run)
	r.RelativePath = firstNonEmpty(entry.RelativePath, r.RelativePath)
	r.Basename = firstNonEmpty(entry.Basename, r.Basename)
	r.Datatype = firstNonEmpty(entry.Datatype, r.Datatype)
	if entry.Topics != nil {
		r.Topics = append([]string(nil), entry.Topics...)
	}
	r.Size = entry.Size
	if !entry.Timestamp.IsZero() {
		r.Timestamp = entry.Timestamp
	}
	r.Placeholder = false
}

// setMetadata changes an editable attribute.
func (r *Record) setMetadata(field schema.MetadataField, value string) error {
	switch field {
	case schema.MetadataSite:
		r.Site = value
	case schema.MetadataRobot:
		r.Robot = value
	case schema.MetadataProject:
		r.Project = value
	default:
		return fmt.Errorf("unknown metadata field %q", field)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
