// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// RequestKind names the body type of an outbound envelope.
type RequestKind string

const (
	KindExpandRequest   RequestKind = "expand_request"
	KindActionRequest   RequestKind = "action_request"
	KindSearchRequest   RequestKind = "search_request"
	KindSearchFetch     RequestKind = "search_fetch"
	KindMetadataRequest RequestKind = "metadata_request"
)

// Request is an outbound message. Requests are notifications: the
// backend never answers them directly, and their effect is observed
// through later events.
type Request interface {
	RequestKind() RequestKind
	isRequest()
}

// ExpandRequest asks the backend to send the fragments of one subtree.
type ExpandRequest struct {
	NodePath string         `json:"node_path"`
	Key      AggregationKey `json:"aggregation_key"`

	// Attempt counts from 1 and increases when an unanswered request
	// is repeated.
	Attempt int `json:"attempt"`
}

func (*ExpandRequest) RequestKind() RequestKind { return KindExpandRequest }
func (*ExpandRequest) isRequest()               {}

// ActionRequest asks the backend to perform a bulk action. Source-only
// actions (cancel, rescan) leave Filters and UploadIDs empty.
type ActionRequest struct {
	Action    Action        `json:"action"`
	Tier      Tier          `json:"tier"`
	Source    string        `json:"source"`
	Filters   *ScopeFilters `json:"scope_filters,omitempty"`
	UploadIDs []string      `json:"upload_ids,omitempty"`
}

func (*ActionRequest) RequestKind() RequestKind { return KindActionRequest }
func (*ActionRequest) isRequest()               {}

// SearchRequest starts a new search at the first page. SearchID
// numbers the search within the session; a server that echoes it in
// [SearchResults] lets pages from an earlier search be told apart.
type SearchRequest struct {
	SearchID      uint64                `json:"search_id"`
	Filters       map[string]FilterSpec `json:"filter_spec,omitempty"`
	SortKey       string                `json:"sort_key,omitempty"`
	SortDirection SortDirection         `json:"sort_dir,omitempty"`
	PageSize      int                   `json:"page_size"`
}

// NewSearchRequest returns the wire form of query.
func NewSearchRequest(searchID uint64, query SearchQuery) *SearchRequest {
	return &SearchRequest{
		SearchID:      searchID,
		Filters:       query.Filters,
		SortKey:       query.SortKey,
		SortDirection: query.SortDirection,
		PageSize:      query.PageSize,
	}
}

func (*SearchRequest) RequestKind() RequestKind { return KindSearchRequest }
func (*SearchRequest) isRequest()               {}

// SearchFetch asks for the page starting at an absolute result index.
type SearchFetch struct {
	SearchID   uint64 `json:"search_id"`
	StartIndex int    `json:"start_index"`
	Count      int    `json:"count"`
}

func (*SearchFetch) RequestKind() RequestKind { return KindSearchFetch }
func (*SearchFetch) isRequest()               {}

// MetadataField names an editable file attribute.
type MetadataField string

const (
	MetadataSite    MetadataField = "site"
	MetadataRobot   MetadataField = "robot"
	MetadataProject MetadataField = "project"
)

// MetadataRequest asks the backend to change an attribute. Site and
// robot edits name the files; a project edit applies to everything
// the source records from now on and leaves UploadIDs empty.
type MetadataRequest struct {
	Field     MetadataField `json:"field"`
	Source    string        `json:"source"`
	Value     string        `json:"value"`
	UploadIDs []string      `json:"upload_ids,omitempty"`
}

func (*MetadataRequest) RequestKind() RequestKind { return KindMetadataRequest }
func (*MetadataRequest) isRequest()               {}
