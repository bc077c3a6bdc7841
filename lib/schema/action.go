// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// Action is a bulk operation the backend performs on a source's files.
type Action string

const (
	// ActionPull copies files toward the local server: device files
	// are ingested, remote files are downloaded.
	ActionPull Action = "pull"

	// ActionPush copies local files to the remote server.
	ActionPush Action = "push"

	// ActionRemove deletes files from the tier they are listed on.
	ActionRemove Action = "remove"

	// ActionCancel stops the source's in-progress transfers.
	ActionCancel Action = "cancel"

	// ActionRescan asks a device to re-report its files.
	ActionRescan Action = "rescan"
)

// Actions lists every action.
var Actions = []Action{ActionPull, ActionPush, ActionRemove, ActionCancel, ActionRescan}

// ParseAction converts an action name to an Action.
func ParseAction(name string) (Action, error) {
	for _, action := range Actions {
		if string(action) == name {
			return action, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", name)
}

// SourceOnly reports whether the action applies to a whole source and
// carries no file list.
func (a Action) SourceOnly() bool {
	return a == ActionCancel || a == ActionRescan
}
