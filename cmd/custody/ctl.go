// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/control"
	"github.com/bureau-foundation/custody/lib/dashboard"
	"github.com/bureau-foundation/custody/lib/schema"
)

const ctlTimeout = 30 * time.Second

// ctlOptions are the flags every ctl subcommand accepts.
type ctlOptions struct {
	configPath string
	socketPath string
	jsonOutput bool
}

func (o *ctlOptions) bind(flags *pflag.FlagSet) {
	configFlag(flags, &o.configPath)
	flags.StringVar(&o.socketPath, "socket", "", "control socket (default control.socket from the configuration)")
	flags.BoolVar(&o.jsonOutput, "json", false, "print the response as JSON")
}

// call sends one control action and decodes the reply into result.
func (o *ctlOptions) call(action string, fields map[string]any, result any) error {
	socketPath := o.socketPath
	if socketPath == "" {
		cfg, err := loadConfig(o.configPath)
		if err != nil {
			return err
		}
		socketPath = cfg.Control.Socket
	}
	if socketPath == "" {
		return fmt.Errorf("no control socket configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), ctlTimeout)
	defer cancel()
	return control.NewClient(socketPath).Call(ctx, action, fields, result)
}

// print writes value as JSON with --json, otherwise calls text.
func (o *ctlOptions) print(value any, text func(io.Writer)) error {
	if o.jsonOutput {
		return cli.WriteJSON(value)
	}
	text(os.Stdout)
	return nil
}

// scopeOptions are the flags naming a selection scope.
type scopeOptions struct {
	tier    string
	source  string
	project string
	period  string
}

func (s *scopeOptions) bind(flags *pflag.FlagSet) {
	flags.StringVar(&s.tier, "tier", "device", "tier of the scope (device, local, remote)")
	flags.StringVar(&s.source, "source", "", "source of the scope (required)")
	flags.StringVar(&s.project, "project", "", "project within the source")
	flags.StringVar(&s.period, "period", "", "period (YYYY-MM or YYYY-MM-DD) within the source")
}

// fields returns the scope as request fields.
func (s *scopeOptions) fields() (map[string]any, error) {
	tier, err := schema.ParseTier(s.tier)
	if err != nil {
		return nil, err
	}
	if s.source == "" {
		return nil, fmt.Errorf("--source is required")
	}
	fields := map[string]any{"tier": tier, "source": s.source}
	if s.project != "" {
		fields["project"] = s.project
	}
	if s.period != "" {
		fields["period"] = s.period
	}
	return fields, nil
}

func ctlCommand() *cli.Command {
	return &cli.Command{
		Name:    "ctl",
		Summary: "Drive a running engine",
		Description: `Send commands to a running engine over its control socket.

Scoped commands take --tier, --source, and optionally --project and
--period to name the part of the catalog they act on.`,
		Subcommands: []*cli.Command{
			ctlStatusCommand(),
			ctlTreeCommand(),
			ctlExpandCommand(),
			ctlToggleCommand(),
			ctlSelectCommand(),
			ctlClearCommand(),
			ctlSelectionCommand(),
			ctlActCommand(),
			ctlSearchCommand(),
			ctlPageMoveCommand("next", "Request the next page of search results"),
			ctlPageMoveCommand("prev", "Request the previous page of search results"),
			ctlPageCommand(),
			ctlMetadataCommand("set-site", "set_site", "Change the site of files"),
			ctlMetadataCommand("set-robot", "set_robot", "Change the robot of files"),
			ctlSetProjectCommand(),
		},
	}
}

func ctlStatusCommand() *cli.Command {
	var options ctlOptions
	return &cli.Command{
		Name:    "status",
		Summary: "Show engine counters",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
			options.bind(flags)
			return flags
		},
		Run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			var status dashboard.Status
			if err := options.call("status", nil, &status); err != nil {
				return err
			}
			return options.print(status, func(w io.Writer) {
				catalog := status.Catalog
				fmt.Fprintf(w, "periods     %d listed, %d requested, %d resolved, %d stalled\n",
					catalog.Periods, catalog.Requested, catalog.Resolved, catalog.Stalled)
				fmt.Fprintf(w, "records     %s (%s placeholders)\n",
					humanize.Comma(int64(catalog.Records)), humanize.Comma(int64(catalog.Placeholders)))
				fmt.Fprintf(w, "pending     %d subtree requests\n", status.PendingExpansions)
				fmt.Fprintf(w, "fragments   %d sets incomplete\n", len(status.OpenFragmentSets))
				fmt.Fprintf(w, "search      cursor %d\n", status.SearchCursor)
			})
		},
	}
}

func ctlTreeCommand() *cli.Command {
	var options ctlOptions
	return &cli.Command{
		Name:    "tree",
		Summary: "Show the catalog tree",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("tree", pflag.ContinueOnError)
			options.bind(flags)
			return flags
		},
		Run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			var rows []dashboard.TreeRow
			if err := options.call("tree", nil, &rows); err != nil {
				return err
			}
			return options.print(rows, func(w io.Writer) {
				for _, row := range rows {
					fmt.Fprintln(w, treeLine(row))
				}
			})
		},
	}
}

func ctlExpandCommand() *cli.Command {
	var options ctlOptions
	return &cli.Command{
		Name:    "expand",
		Summary: "Request a catalog subtree",
		Usage:   "custody ctl expand [flags] <node-path>",
		Examples: []cli.Example{
			{Description: "Expand a robot's default period", Command: "custody ctl expand device:robot-07"},
			{Description: "Expand one day of a project", Command: "custody ctl expand local:robot-07:survey:2024-03-05"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("expand", pflag.ContinueOnError)
			options.bind(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one node path")
			}
			var result control.ExpandResult
			if err := options.call("expand", map[string]any{"path": args[0]}, &result); err != nil {
				return err
			}
			return options.print(result, func(w io.Writer) {
				if result.Sent {
					fmt.Fprintf(w, "requested %s\n", args[0])
				} else {
					fmt.Fprintf(w, "%s already requested\n", args[0])
				}
			})
		},
	}
}

// selectionCommand builds a scoped command that replies with a
// selection summary. build adds the positional arguments to fields.
func selectionCommand(name, action, summary, usage string, build func(args []string, fields map[string]any) error) *cli.Command {
	var (
		options ctlOptions
		scope   scopeOptions
	)
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
			options.bind(flags)
			scope.bind(flags)
			return flags
		},
		Run: func(args []string) error {
			fields, err := scope.fields()
			if err != nil {
				return err
			}
			if err := build(args, fields); err != nil {
				return err
			}
			var result control.SelectionResult
			if err := options.call(action, fields, &result); err != nil {
				return err
			}
			return options.print(result, func(w io.Writer) {
				fmt.Fprintf(w, "%d files selected (%s)\n", result.Summary.Count, result.Summary.HumanSize())
			})
		},
	}
}

func ctlToggleCommand() *cli.Command {
	return selectionCommand("toggle", "toggle", "Select or deselect one file",
		"custody ctl toggle --source <source> [flags] <upload-id>",
		func(args []string, fields map[string]any) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one upload id")
			}
			fields["upload_id"] = args[0]
			return nil
		})
}

func ctlSelectCommand() *cli.Command {
	return selectionCommand("select", "select", "Select the files matching a predicate (new or all)",
		"custody ctl select --source <source> [flags] <new|all>",
		func(args []string, fields map[string]any) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one predicate (new or all)")
			}
			fields["predicate"] = args[0]
			return nil
		})
}

func ctlClearCommand() *cli.Command {
	return selectionCommand("clear", "clear", "Clear a scope's selection",
		"custody ctl clear --source <source> [flags]",
		func(args []string, _ map[string]any) error { return noArguments(args) })
}

func ctlSelectionCommand() *cli.Command {
	return selectionCommand("selection", "selection", "Show a scope's selection",
		"custody ctl selection --source <source> [flags]",
		func(args []string, _ map[string]any) error { return noArguments(args) })
}

func ctlActCommand() *cli.Command {
	var (
		options ctlOptions
		scope   scopeOptions
	)
	return &cli.Command{
		Name:    "act",
		Summary: "Request a bulk action on a scope",
		Description: `Request a bulk action on a scope. pull, push, and remove act on the
scope's selected files; cancel and rescan act on the whole source.`,
		Usage: "custody ctl act --source <source> [flags] <pull|push|remove|cancel|rescan>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("act", pflag.ContinueOnError)
			options.bind(flags)
			scope.bind(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one action")
			}
			act, err := schema.ParseAction(args[0])
			if err != nil {
				return err
			}
			fields, err := scope.fields()
			if err != nil {
				return err
			}
			fields["action_name"] = act
			var result control.DispatchResult
			if err := options.call("dispatch", fields, &result); err != nil {
				return err
			}
			return options.print(result, func(w io.Writer) {
				fmt.Fprintf(w, "%s requested", act)
				if result.Request != nil && len(result.Request.UploadIDs) > 0 {
					fmt.Fprintf(w, " for %d files", len(result.Request.UploadIDs))
				}
				fmt.Fprintln(w)
				if len(result.Excluded) > 0 {
					fmt.Fprintf(w, "%d files left out (no copy on another tier): %s\n",
						len(result.Excluded), strings.Join(result.Excluded, ", "))
				}
			})
		},
	}
}

func ctlSearchCommand() *cli.Command {
	var (
		options   ctlOptions
		queryFile string
	)
	return &cli.Command{
		Name:    "search",
		Summary: "Start a search",
		Description: `Start a search from a JSON (or JSONC) query, given inline or with
--file. The query names filters by field, an optional sort key and
direction, and an optional page size.`,
		Usage: "custody ctl search [flags] [<query>]",
		Examples: []cli.Example{
			{
				Description: "Files from one robot, largest first",
				Command:     `custody ctl search '{"filters": {"robot": {"type": "discrete", "values": ["r7"]}}, "sort_key": "size", "sort_direction": "desc"}'`,
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("search", pflag.ContinueOnError)
			options.bind(flags)
			flags.StringVar(&queryFile, "file", "", "read the query from a file")
			return flags
		},
		Run: func(args []string) error {
			var source []byte
			switch {
			case queryFile != "" && len(args) == 0:
				data, err := os.ReadFile(queryFile)
				if err != nil {
					return err
				}
				source = data
			case queryFile == "" && len(args) == 1:
				source = []byte(args[0])
			default:
				return fmt.Errorf("give the query either inline or with --file")
			}
			query, err := parseQuery(source)
			if err != nil {
				return err
			}
			if err := options.call("search", map[string]any{"query": query}, nil); err != nil {
				return err
			}
			return options.print(query, func(w io.Writer) {
				fmt.Fprintln(w, "search requested; see 'custody ctl page'")
			})
		},
	}
}

// parseQuery decodes a JSON query, allowing comments and trailing
// commas.
func parseQuery(source []byte) (schema.SearchQuery, error) {
	var query schema.SearchQuery
	if err := json.Unmarshal(jsonc.ToJSON(source), &query); err != nil {
		return query, fmt.Errorf("parsing query: %w", err)
	}
	return query, nil
}

func ctlPageMoveCommand(name, summary string) *cli.Command {
	var options ctlOptions
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
			options.bind(flags)
			return flags
		},
		Run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			var result control.PageResult
			if err := options.call(name, nil, &result); err != nil {
				return err
			}
			return options.print(result, func(w io.Writer) {
				fmt.Fprintf(w, "requested results from index %d\n", result.StartIndex)
			})
		},
	}
}

func ctlPageCommand() *cli.Command {
	var options ctlOptions
	return &cli.Command{
		Name:    "page",
		Summary: "Show the current page of search results",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("page", pflag.ContinueOnError)
			options.bind(flags)
			return flags
		},
		Run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			var page *schema.SearchResults
			if err := options.call("page", nil, &page); err != nil {
				return err
			}
			return options.print(page, func(w io.Writer) {
				if page == nil {
					fmt.Fprintln(w, "no results yet")
					return
				}
				fmt.Fprintf(w, "page %d of %d\n", page.CurrentPage, page.TotalPages)
				for _, entry := range page.Results {
					fmt.Fprintf(w, "  %-24s %-12s %-10s %8s  %s\n",
						entry.UploadID, entry.Source, entry.Robot, humanize.Bytes(uint64(max(entry.Size, 0))), entry.RelativePath)
				}
			})
		},
	}
}

func ctlMetadataCommand(name, action, summary string) *cli.Command {
	var (
		options   ctlOptions
		scope     scopeOptions
		uploadIDs []string
	)
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Description: summary + `. Without --ids the scope's selected files are
edited. The edit applies locally at once and is sent to the backend.`,
		Usage: "custody ctl " + name + " --source <source> [flags] <value>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
			options.bind(flags)
			scope.bind(flags)
			flags.StringSliceVar(&uploadIDs, "ids", nil, "upload ids to edit instead of the selection")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one value")
			}
			fields, err := scope.fields()
			if err != nil {
				return err
			}
			fields["value"] = args[0]
			if len(uploadIDs) > 0 {
				fields["upload_ids"] = uploadIDs
			}
			var sent *schema.MetadataRequest
			if err := options.call(action, fields, &sent); err != nil {
				return err
			}
			return options.print(sent, func(w io.Writer) {
				if sent != nil {
					fmt.Fprintf(w, "%s set to %q on %d files\n", sent.Field, sent.Value, len(sent.UploadIDs))
				}
			})
		},
	}
}

func ctlSetProjectCommand() *cli.Command {
	var (
		options ctlOptions
		source  string
	)
	return &cli.Command{
		Name:    "set-project",
		Summary: "Assign a source to a project",
		Usage:   "custody ctl set-project --source <source> [flags] <project>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("set-project", pflag.ContinueOnError)
			options.bind(flags)
			flags.StringVar(&source, "source", "", "source to reassign (required)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one project")
			}
			if source == "" {
				return fmt.Errorf("--source is required")
			}
			var sent *schema.MetadataRequest
			if err := options.call("set_project", map[string]any{"source": source, "value": args[0]}, &sent); err != nil {
				return err
			}
			return options.print(sent, func(w io.Writer) {
				fmt.Fprintf(w, "%s assigned to project %q\n", source, args[0])
			})
		},
	}
}
