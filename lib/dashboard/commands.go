// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/custody/lib/action"
	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/schema"
	"github.com/bureau-foundation/custody/lib/selection"
)

// ErrNoFiles is returned by metadata edits with nothing to edit.
var ErrNoFiles = errors.New("no files to edit")

// Expand opens the node at path, requesting its subtree if it was
// never requested. It reports whether a request was sent.
func (s *State) Expand(path string) (bool, error) {
	node, err := s.Store.Find(path)
	if err != nil {
		return false, err
	}
	sent, err := s.Expansion.Expand(node)
	if err != nil {
		return false, err
	}
	if sent {
		s.metrics.ExpandRequests.WithLabelValues("user").Inc()
	}
	return sent, nil
}

// Toggle flips the selection of one file in scope.
func (s *State) Toggle(scope schema.Scope, uploadID string) (selection.Summary, error) {
	if err := scope.Validate(); err != nil {
		return selection.Summary{}, err
	}
	return s.Selection.Toggle(scope, uploadID)
}

// SelectMatching selects the files of scope matched by the named
// predicate ("new" or "all"), replacing the selection inside scope.
func (s *State) SelectMatching(scope schema.Scope, predicate string) (selection.Summary, error) {
	if err := scope.Validate(); err != nil {
		return selection.Summary{}, err
	}
	match, err := selection.Named(predicate, scope.Tier)
	if err != nil {
		return selection.Summary{}, err
	}
	return s.Selection.SelectMatching(scope, match), nil
}

// ClearSelection deselects every file in scope.
func (s *State) ClearSelection(scope schema.Scope) selection.Summary {
	return s.Selection.Clear(scope)
}

// Dispatch sends action for the files selected in scope. Source-only
// actions ignore the selection. Presence is not touched; the effect
// shows up when the backend reports it.
func (s *State) Dispatch(act schema.Action, scope schema.Scope) (action.Result, error) {
	var uploadIDs []string
	if !act.SourceOnly() {
		uploadIDs = s.Selection.SelectedIDs(scope)
	}
	result, err := s.Actions.Dispatch(act, scope, uploadIDs)
	if err != nil {
		return result, err
	}
	if act == schema.ActionCancel && s.options.CancelInvalidatesAccumulators {
		if discarded := s.forgetFragments(scope); discarded > 0 {
			s.logger.Info("fragment sets discarded after cancel", "scope", scope.String(), "count", discarded)
		}
		s.updateGauges()
	}
	return result, nil
}

func (s *State) forgetFragments(scope schema.Scope) int {
	return len(s.Fragments.DiscardWhere(func(key schema.AggregationKey) bool {
		return key.Tier == scope.Tier && key.Source == scope.Source
	}))
}

// Query starts a search.
func (s *State) Query(query schema.SearchQuery) error { return s.Search.Query(query) }

// NextPage requests the next page of search results.
func (s *State) NextPage() (int, error) { return s.Search.Next() }

// PrevPage requests the previous page of search results.
func (s *State) PrevPage() (int, error) { return s.Search.Prev() }

// SetSite changes the site of files in scope. With no upload IDs, the
// files selected in scope are edited.
func (s *State) SetSite(scope schema.Scope, uploadIDs []string, site string) (*schema.MetadataRequest, error) {
	return s.setMetadata(schema.MetadataSite, scope, uploadIDs, site)
}

// SetRobot changes the robot name of files in scope. With no upload
// IDs, the files selected in scope are edited.
func (s *State) SetRobot(scope schema.Scope, uploadIDs []string, robot string) (*schema.MetadataRequest, error) {
	return s.setMetadata(schema.MetadataRobot, scope, uploadIDs, robot)
}

func (s *State) setMetadata(field schema.MetadataField, scope schema.Scope, uploadIDs []string, value string) (*schema.MetadataRequest, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, fmt.Errorf("%s: empty value", field)
	}
	if len(uploadIDs) == 0 {
		uploadIDs = s.Selection.SelectedIDs(scope)
	}
	if len(uploadIDs) == 0 {
		return nil, fmt.Errorf("set %s on %s: %w", field, scope, ErrNoFiles)
	}
	for _, uploadID := range uploadIDs {
		if _, exists := s.Store.Record(uploadID); !exists {
			return nil, fmt.Errorf("set %s: %w: %s", field, catalog.ErrUnknownRecord, uploadID)
		}
	}
	for _, uploadID := range uploadIDs {
		if err := s.Store.SetMetadata(uploadID, field, value); err != nil {
			return nil, fmt.Errorf("set %s: %w", field, err)
		}
	}

	request := &schema.MetadataRequest{
		Field:     field,
		Source:    scope.Source,
		Value:     value,
		UploadIDs: append([]string(nil), uploadIDs...),
	}
	if err := s.emitter.Emit(request); err != nil {
		return nil, fmt.Errorf("set %s: %w", field, err)
	}
	s.logger.Info("metadata edit requested", "field", field, "scope", scope.String(), "files", len(uploadIDs))
	return request, nil
}

// SetProject assigns a device's recordings to project. The device's
// listed records take the new project at once, and its selection is
// cleared because the device view is regrouped.
func (s *State) SetProject(source, project string) (*schema.MetadataRequest, error) {
	scope := schema.Scope{Tier: schema.TierDevice, Source: source}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if project == "" {
		return nil, fmt.Errorf("%s: empty value", schema.MetadataProject)
	}
	request := &schema.MetadataRequest{Field: schema.MetadataProject, Source: source, Value: project}
	if err := s.emitter.Emit(request); err != nil {
		return nil, fmt.Errorf("set project: %w", err)
	}
	for _, record := range s.Store.ScopeRecords(scope) {
		if err := s.Store.SetMetadata(record.UploadID, schema.MetadataProject, project); err != nil {
			return nil, fmt.Errorf("set project: %w", err)
		}
	}
	s.Selection.ClearSource(schema.TierDevice, source)
	s.logger.Info("device project changed", "source", source, "project", project)
	return request, nil
}
