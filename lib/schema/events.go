// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
)

// EventKind names the body type of an inbound envelope.
type EventKind string

const (
	// KindCatalogSummary builds or refreshes the browse skeleton of
	// one source on one tier.
	KindCatalogSummary EventKind = "catalog_summary"

	// KindCatalogReset removes the sources of a tier that are no
	// longer reported.
	KindCatalogReset EventKind = "catalog_reset"

	// KindCatalogFragment delivers part of one subtree's files.
	KindCatalogFragment EventKind = "catalog_fragment"

	// KindPresenceUpdate sets one presence flag of one file.
	KindPresenceUpdate EventKind = "presence_update"

	// KindPresenceBatch sets many presence flags atomically.
	KindPresenceBatch EventKind = "presence_batch"

	// KindPresenceLegacy is the device/server form of a presence
	// report, sent by ingestion servers without a remote tier.
	KindPresenceLegacy EventKind = "presence_legacy"

	// KindPresenceServer is the local/remote form of a presence
	// report.
	KindPresenceServer EventKind = "presence_server"

	// KindSearchResults delivers one page of search results.
	KindSearchResults EventKind = "search_results"

	// KindSearchFilters delivers the fields a search can filter on.
	KindSearchFilters EventKind = "search_filters"
)

// Event is an inbound message. The set of implementations is closed
// to this package.
type Event interface {
	// Kind returns the envelope kind for this event.
	Kind() EventKind

	// Dispatch calls the Handler method for this event's type.
	Dispatch(Handler) error

	isEvent()
}

// Handler consumes every inbound event type. Adding an event type
// adds a method here, so every consumer fails to compile until it
// handles the new type.
type Handler interface {
	HandleCatalogSummary(*CatalogSummary) error
	HandleCatalogReset(*CatalogReset) error
	HandleCatalogFragment(*CatalogFragment) error
	HandlePresenceUpdate(*PresenceUpdate) error
	HandlePresenceBatch(*PresenceBatch) error
	HandleSearchResults(*SearchResults) error
	HandleSearchFilters(*SearchFilters) error
}

// CatalogSummary lists the periods known for one source on one tier.
// A summary for a source the engine already holds replaces that
// source's skeleton (a full refresh).
type CatalogSummary struct {
	Tier   Tier   `json:"tier"`
	Source string `json:"source"`

	// Periods maps project to the YYYY-MM-DD periods holding files for
	// it. Device summaries use the empty project as their only key.
	Periods map[string][]string `json:"periods"`
}

func (*CatalogSummary) Kind() EventKind { return KindCatalogSummary }

func (e *CatalogSummary) Dispatch(h Handler) error { return h.HandleCatalogSummary(e) }

func (*CatalogSummary) isEvent() {}

// Validate checks that every (project, period) pair forms a valid
// aggregation key.
func (e *CatalogSummary) Validate() error {
	if !e.Tier.Valid() || e.Source == "" {
		return errors.New("catalog summary: tier and source are required")
	}
	for project, periods := range e.Periods {
		for _, period := range periods {
			key := AggregationKey{Tier: e.Tier, Source: e.Source, Project: project, Period: period}
			if err := key.Validate(); err != nil {
				return fmt.Errorf("catalog summary: %w", err)
			}
		}
	}
	return nil
}

// CatalogReset lists the sources that still exist on a tier. Sources
// held by the engine but not listed are removed.
type CatalogReset struct {
	Tier    Tier     `json:"tier"`
	Sources []string `json:"sources"`
}

func (*CatalogReset) Kind() EventKind { return KindCatalogReset }

func (e *CatalogReset) Dispatch(h Handler) error { return h.HandleCatalogReset(e) }

func (*CatalogReset) isEvent() {}

// CatalogFragment is one numbered piece of a subtree's file listing.
// Either TabPath or Key identifies the subtree; when both are present
// they must agree.
type CatalogFragment struct {
	TabPath string         `json:"tab_path,omitempty"`
	Key     AggregationKey `json:"aggregation_key,omitzero"`

	// Total is the number of fragments in this generation of the
	// subtree. A missing or non-positive total makes the fragment
	// malformed.
	Total int `json:"total"`

	// Index is this fragment's position in [0, Total).
	Index int `json:"index"`

	Payload RunFiles `json:"payload"`
}

func (*CatalogFragment) Kind() EventKind { return KindCatalogFragment }

func (e *CatalogFragment) Dispatch(h Handler) error { return h.HandleCatalogFragment(e) }

func (*CatalogFragment) isEvent() {}

// ResolveKey returns the fragment's aggregation key, parsing TabPath
// when Key is absent.
func (e *CatalogFragment) ResolveKey() (AggregationKey, error) {
	if e.Key == (AggregationKey{}) {
		if e.TabPath == "" {
			return AggregationKey{}, errors.New("catalog fragment: missing tab_path and aggregation_key")
		}
		return ParseTabPath(e.TabPath)
	}
	if err := e.Key.Validate(); err != nil {
		return AggregationKey{}, err
	}
	if e.TabPath != "" && e.TabPath != e.Key.TabPath() {
		return AggregationKey{}, fmt.Errorf("catalog fragment: tab_path %q disagrees with aggregation_key %s", e.TabPath, e.Key)
	}
	return e.Key, nil
}

// PresenceUpdate is an authoritative statement that a file is or is
// not present on one tier.
type PresenceUpdate struct {
	UploadID string `json:"upload_id"`
	Tier     Tier   `json:"tier"`
	Present  bool   `json:"present"`
}

func (*PresenceUpdate) Kind() EventKind { return KindPresenceUpdate }

func (e *PresenceUpdate) Dispatch(h Handler) error { return h.HandlePresenceUpdate(e) }

func (*PresenceUpdate) isEvent() {}

// Validate checks the identity and tier.
func (e *PresenceUpdate) Validate() error {
	if e.UploadID == "" {
		return errors.New("presence update: missing upload_id")
	}
	if !e.Tier.Valid() {
		return fmt.Errorf("presence update %s: invalid tier %d", e.UploadID, int(e.Tier))
	}
	return nil
}

// PresenceBatch is a set of presence updates applied all at once.
type PresenceBatch struct {
	Entries []PresenceUpdate `json:"entries"`
}

func (*PresenceBatch) Kind() EventKind { return KindPresenceBatch }

func (e *PresenceBatch) Dispatch(h Handler) error { return h.HandlePresenceBatch(e) }

func (*PresenceBatch) isEvent() {}

// PresenceLegacy is a presence report from a server that only knows
// the device and itself. OnServer maps to [TierLocal].
type PresenceLegacy struct {
	UploadID string `json:"upload_id"`
	OnDevice bool   `json:"on_device"`
	OnServer bool   `json:"on_server"`
}

func (*PresenceLegacy) Kind() EventKind { return KindPresenceLegacy }

// Dispatch delivers the report as a two-entry batch.
func (e *PresenceLegacy) Dispatch(h Handler) error { return h.HandlePresenceBatch(e.Batch()) }

func (*PresenceLegacy) isEvent() {}

// Batch converts the report to a PresenceBatch.
func (e *PresenceLegacy) Batch() *PresenceBatch {
	return &PresenceBatch{Entries: []PresenceUpdate{
		{UploadID: e.UploadID, Tier: TierDevice, Present: e.OnDevice},
		{UploadID: e.UploadID, Tier: TierLocal, Present: e.OnServer},
	}}
}

// PresenceServer is a presence report covering the two server tiers.
type PresenceServer struct {
	UploadID string `json:"upload_id"`
	OnLocal  bool   `json:"on_local"`
	OnRemote bool   `json:"on_remote"`
}

func (*PresenceServer) Kind() EventKind { return KindPresenceServer }

// Dispatch delivers the report as a two-entry batch.
func (e *PresenceServer) Dispatch(h Handler) error { return h.HandlePresenceBatch(e.Batch()) }

func (*PresenceServer) isEvent() {}

// Batch converts the report to a PresenceBatch.
func (e *PresenceServer) Batch() *PresenceBatch {
	return &PresenceBatch{Entries: []PresenceUpdate{
		{UploadID: e.UploadID, Tier: TierLocal, Present: e.OnLocal},
		{UploadID: e.UploadID, Tier: TierRemote, Present: e.OnRemote},
	}}
}

// SearchResults is one page of results. The pagination fields are
// computed by the server and stored as received. SearchID echoes the
// request the page answers; zero means the server did not say.
type SearchResults struct {
	SearchID     uint64      `json:"search_id,omitempty"`
	Results      []FileEntry `json:"results"`
	CurrentPage  int         `json:"current_page"`
	TotalPages   int         `json:"total_pages"`
	CurrentIndex int         `json:"current_index"`
}

func (*SearchResults) Kind() EventKind { return KindSearchResults }

func (e *SearchResults) Dispatch(h Handler) error { return h.HandleSearchResults(e) }

func (*SearchResults) isEvent() {}

// SearchFilters describes the fields the server can filter on: the
// accepted values of discrete fields and the bounds of range fields.
type SearchFilters struct {
	Fields map[string]FilterSpec `json:"fields"`
}

func (*SearchFilters) Kind() EventKind { return KindSearchFilters }

func (e *SearchFilters) Dispatch(h Handler) error { return h.HandleSearchFilters(e) }

func (*SearchFilters) isEvent() {}

// NewEvent returns a zero value of the event type for kind, ready to
// be decoded into.
func NewEvent(kind EventKind) (Event, error) {
	switch kind {
	case KindCatalogSummary:
		return &CatalogSummary{}, nil
	case KindCatalogReset:
		return &CatalogReset{}, nil
	case KindCatalogFragment:
		return &CatalogFragment{}, nil
	case KindPresenceUpdate:
		return &PresenceUpdate{}, nil
	case KindPresenceBatch:
		return &PresenceBatch{}, nil
	case KindPresenceLegacy:
		return &PresenceLegacy{}, nil
	case KindPresenceServer:
		return &PresenceServer{}, nil
	case KindSearchResults:
		return &SearchResults{}, nil
	case KindSearchFilters:
		return &SearchFilters{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// ErrUnknownKind is returned when an envelope names a kind this
// package does not define.
var ErrUnknownKind = errors.New("unknown message kind")
