// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/dashboard"
	"github.com/bureau-foundation/custody/lib/schema"
	"github.com/bureau-foundation/custody/lib/selection"
)

// Runner runs a function against the engine state on the session
// goroutine. *dashboard.Session implements it.
type Runner interface {
	Do(ctx context.Context, fn func(*dashboard.State) error) error
}

// ScopeFields addresses a scope in requests.
type ScopeFields struct {
	Tier    schema.Tier `cbor:"tier"`
	Source  string      `cbor:"source"`
	Project string      `cbor:"project,omitempty"`
	Period  string      `cbor:"period,omitempty"`
}

// Scope returns the scope the fields name.
func (f ScopeFields) Scope() schema.Scope {
	return schema.Scope{Tier: f.Tier, Source: f.Source, Project: f.Project, Period: f.Period}
}

// ExpandResult is the reply to "expand".
type ExpandResult struct {
	Sent bool `cbor:"sent"`
}

// SelectionResult is the reply to the selection actions.
type SelectionResult struct {
	Summary   selection.Summary `cbor:"summary"`
	UploadIDs []string          `cbor:"upload_ids,omitempty"`
}

// DispatchResult is the reply to "dispatch".
type DispatchResult struct {
	Request  *schema.ActionRequest `cbor:"request"`
	Excluded []string              `cbor:"excluded,omitempty"`
}

// PageResult is the reply to "next" and "prev".
type PageResult struct {
	StartIndex int `cbor:"start_index"`
}

// Register binds the engine commands to server.
func Register(server *Server, runner Runner) {
	server.Handle("status", func(ctx context.Context, _ []byte) (any, error) {
		return inSession(ctx, runner, func(state *dashboard.State) (dashboard.Status, error) {
			return state.Status(), nil
		})
	})

	server.Handle("tree", func(ctx context.Context, _ []byte) (any, error) {
		return inSession(ctx, runner, func(state *dashboard.State) ([]dashboard.TreeRow, error) {
			return state.Tree(), nil
		})
	})

	server.Handle("expand", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Path string `cbor:"path"`
		}
		if err := decode(raw, &request); err != nil {
			return nil, err
		}
		return inSession(ctx, runner, func(state *dashboard.State) (ExpandResult, error) {
			sent, err := state.Expand(request.Path)
			return ExpandResult{Sent: sent}, err
		})
	})

	server.Handle("toggle", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			ScopeFields
			UploadID string `cbor:"upload_id"`
		}
		if err := decode(raw, &request); err != nil {
			return nil, err
		}
		return selectionAction(ctx, runner, request.Scope(), func(state *dashboard.State) (selection.Summary, error) {
			return state.Toggle(request.Scope(), request.UploadID)
		})
	})

	server.Handle("select", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			ScopeFields
			Predicate string `cbor:"predicate"`
		}
		if err := decode(raw, &request); err != nil {
			return nil, err
		}
		return selectionAction(ctx, runner, request.Scope(), func(state *dashboard.State) (selection.Summary, error) {
			return state.SelectMatching(request.Scope(), request.Predicate)
		})
	})

	server.Handle("clear", func(ctx context.Context, raw []byte) (any, error) {
		var request ScopeFields
		if err := decode(raw, &request); err != nil {
			return nil, err
		}
		return selectionAction(ctx, runner, request.Scope(), func(state *dashboard.State) (selection.Summary, error) {
			return state.ClearSelection(request.Scope()), nil
		})
	})

	server.Handle("selection", func(ctx context.Context, raw []byte) (any, error) {
		var request ScopeFields
		if err := decode(raw, &request); err != nil {
			return nil, err
		}
		return selectionAction(ctx, runner, request.Scope(), func(state *dashboard.State) (selection.Summary, error) {
			return state.Selection.Summary(request.Scope()), nil
		})
	})

	server.Handle("dispatch", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			ScopeFields
			Action schema.Action `cbor:"action_name"`
		}
		if err := decode(raw, &request); err != nil {
			return nil, err
		}
		return inSession(ctx, runner, func(state *dashboard.State) (DispatchResult, error) {
			dispatched, err := state.Dispatch(request.Action, request.Scope())
			return DispatchResult{Request: dispatched.Request, Excluded: dispatched.Excluded}, err
		})
	})

	server.Handle("search", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Query schema.SearchQuery `cbor:"query"`
		}
		if err := decode(raw, &request); err != nil {
			return nil, err
		}
		return nil, runner.Do(ctx, func(state *dashboard.State) error {
			return state.Query(request.Query)
		})
	})

	server.Handle("next", pageAction(runner, (*dashboard.State).NextPage))
	server.Handle("prev", pageAction(runner, (*dashboard.State).PrevPage))

	server.Handle("page", func(ctx context.Context, _ []byte) (any, error) {
		return inSession(ctx, runner, func(state *dashboard.State) (*schema.SearchResults, error) {
			return state.Search.Page(), nil
		})
	})

	server.Handle("set_site", metadataAction(runner, (*dashboard.State).SetSite))
	server.Handle("set_robot", metadataAction(runner, (*dashboard.State).SetRobot))

	server.Handle("set_project", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Source string `cbor:"source"`
			Value  string `cbor:"value"`
		}
		if err := decode(raw, &request); err != nil {
			return nil, err
		}
		return inSession(ctx, runner, func(state *dashboard.State) (*schema.MetadataRequest, error) {
			return state.SetProject(request.Source, request.Value)
		})
	})
}

// inSession runs fn on the session goroutine and returns its result.
// The result is read only after Do reports that fn finished; when Do
// gives up early on ctx, fn may still be running and nothing it
// produces is returned.
func inSession[T any](ctx context.Context, runner Runner, fn func(*dashboard.State) (T, error)) (any, error) {
	var result T
	err := runner.Do(ctx, func(state *dashboard.State) error {
		var err error
		result, err = fn(state)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decode(raw []byte, request any) error {
	if err := codec.Unmarshal(raw, request); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func selectionAction(ctx context.Context, runner Runner, scope schema.Scope, change func(*dashboard.State) (selection.Summary, error)) (any, error) {
	return inSession(ctx, runner, func(state *dashboard.State) (SelectionResult, error) {
		summary, err := change(state)
		if err != nil {
			return SelectionResult{}, err
		}
		return SelectionResult{Summary: summary, UploadIDs: state.Selection.SelectedIDs(scope)}, nil
	})
}

func pageAction(runner Runner, move func(*dashboard.State) (int, error)) ActionFunc {
	return func(ctx context.Context, _ []byte) (any, error) {
		return inSession(ctx, runner, func(state *dashboard.State) (PageResult, error) {
			start, err := move(state)
			return PageResult{StartIndex: start}, err
		})
	}
}

type metadataEdit func(state *dashboard.State, scope schema.Scope, uploadIDs []string, value string) (*schema.MetadataRequest, error)

func metadataAction(runner Runner, edit metadataEdit) ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			ScopeFields
			UploadIDs []string `cbor:"upload_ids,omitempty"`
			Value     string   `cbor:"value"`
		}
		if err := decode(raw, &request); err != nil {
			return nil, err
		}
		return inSession(ctx, runner, func(state *dashboard.State) (*schema.MetadataRequest, error) {
			return edit(state, request.Scope(), request.UploadIDs, request.Value)
		})
	}
}
