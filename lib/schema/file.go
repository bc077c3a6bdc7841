// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// FileEntry is the wire form of one file inside a catalog fragment or
// a search result.
type FileEntry struct {
	// UploadID is the globally unique, stable identity of the file.
	UploadID string `json:"upload_id"`

	Source       string   `json:"source,omitempty"`
	Project      string   `json:"project,omitempty"`
	Robot        string   `json:"robot,omitempty"`
	Site         string   `json:"site,omitempty"`
	Run          string   `json:"run,omitempty"`
	RelativePath string   `json:"relpath,omitempty"`
	Basename     string   `json:"basename,omitempty"`
	Datatype     string   `json:"datatype,omitempty"`
	Topics       []string `json:"topics,omitempty"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// Timestamp is when the file was recorded on the device.
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Presence carries the flags the backend reported alongside the
	// listing. A nil flag means the listing said nothing about that
	// tier and the engine keeps whatever it already knows.
	Presence PresenceFlags `json:"presence,omitzero"`
}

// Validate checks the fields the engine relies on.
func (f *FileEntry) Validate() error {
	if f.UploadID == "" {
		return fmt.Errorf("file entry %q: missing upload_id", f.Basename)
	}
	if f.Size < 0 {
		return fmt.Errorf("file entry %s: negative size %d", f.UploadID, f.Size)
	}
	return nil
}

// PresenceFlags is a partial presence report. Each field is nil when
// the report does not cover that tier.
type PresenceFlags struct {
	OnDevice *bool `json:"on_device,omitempty"`
	OnLocal  *bool `json:"on_local,omitempty"`
	OnRemote *bool `json:"on_remote,omitempty"`
}

// Updates expands the flags into one PresenceUpdate per reported tier.
func (p PresenceFlags) Updates(uploadID string) []PresenceUpdate {
	var updates []PresenceUpdate
	for _, tier := range Tiers {
		if flag := p.flag(tier); flag != nil {
			updates = append(updates, PresenceUpdate{UploadID: uploadID, Tier: tier, Present: *flag})
		}
	}
	return updates
}

func (p PresenceFlags) flag(tier Tier) *bool {
	switch tier {
	case TierDevice:
		return p.OnDevice
	case TierLocal:
		return p.OnLocal
	case TierRemote:
		return p.OnRemote
	}
	return nil
}

// RunFiles maps a run-relative path (for example "/runA") to the
// files listed under it, in listing order.
type RunFiles map[string][]FileEntry

// Count returns the number of file entries across all paths.
func (r RunFiles) Count() int {
	count := 0
	for _, entries := range r {
		count += len(entries)
	}
	return count
}
