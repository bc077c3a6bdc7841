// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string
	var received []string

	root := &Command{
		Name: "custody",
		Subcommands: []*Command{
			{Name: "run", Run: func(args []string) error { called = "run"; return nil }},
			{
				Name: "ctl",
				Subcommands: []*Command{
					{Name: "expand", Run: func(args []string) error {
						called = "ctl expand"
						received = args
						return nil
					}},
				},
			},
		},
	}

	if err := root.Execute([]string{"ctl", "expand", "device:robot-07"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "ctl expand" {
		t.Errorf("dispatched to %q, want %q", called, "ctl expand")
	}
	if diff := cmp.Diff([]string{"device:robot-07"}, received); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}
}

func TestCommand_Execute_ParsesFlags(t *testing.T) {
	var (
		socket  string
		verbose bool
		rest    []string
	)
	command := &Command{
		Name: "inject",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("inject", pflag.ContinueOnError)
			flags.StringVar(&socket, "socket", "", "")
			flags.BoolVarP(&verbose, "verbose", "v", false, "")
			return flags
		},
		Run: func(args []string) error {
			rest = args
			return nil
		},
	}

	if err := command.Execute([]string{"--socket", "/tmp/events.sock", "-v", "session.cap"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socket != "/tmp/events.sock" || !verbose {
		t.Errorf("socket = %q, verbose = %v", socket, verbose)
	}
	if diff := cmp.Diff([]string{"session.cap"}, rest); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}
}

func TestCommand_Execute_UnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name: "custody",
		Subcommands: []*Command{
			{Name: "replay", Run: func([]string) error { return nil }},
			{Name: "inject", Run: func([]string) error { return nil }},
		},
	}
	err := root.Execute([]string{"replya"})
	if err == nil {
		t.Fatal("Execute() succeeded for an unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "replay"`) {
		t.Errorf("error %q does not suggest replay", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "replay",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
			flags.Bool("json", false, "")
			flags.Bool("dump", false, "")
			return flags
		},
		Run: func([]string) error { return nil },
	}
	err := command.Execute([]string{"--jsno"})
	if err == nil {
		t.Fatal("Execute() succeeded with an unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --json") {
		t.Errorf("error %q does not suggest --json", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name:        "ctl",
		Subcommands: []*Command{{Name: "status", Run: func([]string) error { return nil }}},
	}
	if err := root.Execute(nil); err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("Execute(nil) = %v, want subcommand required", err)
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	root := &Command{
		Name:        "custody",
		Description: "Fleet catalog engine.",
		Subcommands: []*Command{
			{Name: "run", Summary: "Serve the catalog engine"},
			{Name: "replay", Summary: "Rebuild engine state from a capture file"},
		},
		Examples: []Example{{Description: "Serve", Command: "custody run"}},
	}

	var buffer bytes.Buffer
	root.PrintHelp(&buffer)
	help := buffer.String()
	for _, want := range []string{
		"Fleet catalog engine.",
		"custody <command> [flags]",
		"Serve the catalog engine",
		"# Serve",
		"Run 'custody <command> --help'",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help does not contain %q:\n%s", want, help)
		}
	}
}

func TestCommand_PrintHelp_Flags(t *testing.T) {
	command := &Command{
		Name: "inject",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("inject", pflag.ContinueOnError)
			flags.Int("batch", 64, "envelopes per connection")
			return flags
		},
	}
	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	if !strings.Contains(buffer.String(), "--batch") || !strings.Contains(buffer.String(), "envelopes per connection") {
		t.Errorf("help lacks the batch flag:\n%s", buffer.String())
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 3}
	coder, ok := err.(interface{ ExitCode() int })
	if !ok || coder.ExitCode() != 3 {
		t.Errorf("ExitError does not report code 3")
	}
}

func TestWriteJSONNilSlice(t *testing.T) {
	var buffer bytes.Buffer
	var rows []string
	if err := writeJSON(&buffer, rows); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buffer.String()); got != "[]" {
		t.Errorf("writeJSON(nil slice) = %q, want []", got)
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buffer bytes.Buffer
	newLogger(&buffer, false, 0).Info("engine started", "session", "s1")
	if !strings.HasPrefix(buffer.String(), "{") {
		t.Errorf("non-terminal logger wrote %q, want JSON", buffer.String())
	}

	buffer.Reset()
	newLogger(&buffer, true, 0).Info("engine started", "session", "s1")
	if !strings.Contains(buffer.String(), "msg=\"engine started\"") {
		t.Errorf("terminal logger wrote %q, want text", buffer.String())
	}
}
