// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree framework of the custody binary.
//
// A [Command] carries a name, help text, a lazily built pflag set, and
// either a Run function or subcommands. [Command.Execute] dispatches
// the argument list, suggests the closest command or flag on typos,
// and prints structured help for -h, --help, and "help".
//
// [NewLogger] picks a text handler for terminals and JSON otherwise.
// [WriteJSON] prints --json output.
package cli
