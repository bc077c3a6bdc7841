// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/capture"
	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/dashboard"
	"github.com/bureau-foundation/custody/lib/schema"
	"github.com/bureau-foundation/custody/lib/transport"
)

func replayCommand() *cli.Command {
	var (
		configPath string
		verbose    bool
		jsonOutput bool
		dump       bool
	)
	return &cli.Command{
		Name:    "replay",
		Summary: "Rebuild engine state from a capture file",
		Description: `Apply every envelope of a capture file to a fresh engine and print
the resulting catalog tree, presence counts, and the requests the
engine would have sent.

Time follows the capture: the clock is set to each envelope's
arrival time, and eviction and re-request sweeps run at the
configured tick interval in between. Nothing is sent anywhere.`,
		Usage: "custody replay [flags] <capture>",
		Examples: []cli.Example{
			{Description: "Replay a session and print the tree", Command: "custody replay /var/lib/custody/session.cap"},
			{Description: "Print every envelope in CBOR diagnostic notation", Command: "custody replay --dump session.cap"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.BoolVarP(&verbose, "verbose", "v", false, "log every applied event")
			flags.BoolVar(&jsonOutput, "json", false, "print the result as JSON")
			flags.BoolVar(&dump, "dump", false, "print the envelopes instead of replaying them")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one capture file, got %d arguments", len(args))
			}
			if dump {
				return dumpCapture(os.Stdout, args[0])
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := slog.New(slog.DiscardHandler)
			if verbose {
				logger = cli.NewLogger(true)
			}
			result, err := replay(args[0], cfg, logger)
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(result)
			}
			renderReplay(os.Stdout, result)
			return nil
		},
	}
}

// sentRequest is one request the replayed engine emitted.
type sentRequest struct {
	Kind    schema.RequestKind `json:"kind"`
	Request schema.Request     `json:"request"`
}

// replayResult is the engine state at the end of a capture.
type replayResult struct {
	Envelopes int                 `json:"envelopes"`
	Rejected  int                 `json:"rejected"`
	Start     time.Time           `json:"start,omitzero"`
	End       time.Time           `json:"end,omitzero"`
	Tree      []dashboard.TreeRow `json:"tree"`
	Status    dashboard.Status    `json:"status"`
	Requests  []sentRequest       `json:"requests"`
}

// replay applies the capture at path to a fresh engine configured by
// cfg.
func replay(path string, cfg *config.Config, logger *slog.Logger) (*replayResult, error) {
	reader, err := capture.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	fakeClock := clock.Fake(time.Time{})
	memory := transport.NewMemory(0)
	state := dashboard.NewState(dashboard.Options{
		Emitter:                       memory,
		Clock:                         fakeClock,
		Logger:                        logger,
		AccumulatorTTL:                cfg.Engine.AccumulatorTTL.Std(),
		ExpandTimeout:                 cfg.Engine.ExpandTimeout.Std(),
		ExpandMaxAttempts:             cfg.Engine.ExpandMaxAttempts,
		PageSize:                      cfg.Search.PageSize,
		CancelInvalidatesAccumulators: cfg.Engine.CancelInvalidatesAccumulators,
	})
	interval := cfg.Engine.TickInterval.Std()

	result := &replayResult{}
	var nextTick time.Time
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s after %d envelopes: %w", path, result.Envelopes, err)
		}

		if result.Envelopes == 0 {
			result.Start = entry.At
			nextTick = entry.At.Add(interval)
		}
		for !entry.At.Before(nextTick) {
			fakeClock.Set(nextTick)
			state.Tick()
			nextTick = nextTick.Add(interval)
		}
		fakeClock.Set(entry.At)

		result.Envelopes++
		result.End = entry.At
		if err := state.ApplyEnvelope(entry.Envelope); err != nil {
			result.Rejected++
		}
	}

	result.Tree = state.Tree()
	result.Status = state.Status()
	for _, request := range memory.Recorded() {
		result.Requests = append(result.Requests, sentRequest{Kind: request.RequestKind(), Request: request})
	}
	return result, nil
}

var (
	tierStyle      = lipgloss.NewStyle().Bold(true).Underline(true)
	resolvedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	requestedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	stalledStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	faintStyle     = lipgloss.NewStyle().Faint(true)
)

// renderReplay prints result as an indented tree followed by totals.
func renderReplay(w io.Writer, result *replayResult) {
	for _, row := range result.Tree {
		fmt.Fprintln(w, treeLine(row))
	}
	if len(result.Tree) > 0 {
		fmt.Fprintln(w)
	}

	status := result.Status
	fmt.Fprintf(w, "envelopes  %s applied, %s rejected",
		humanize.Comma(int64(result.Envelopes-result.Rejected)), humanize.Comma(int64(result.Rejected)))
	if !result.Start.IsZero() {
		fmt.Fprintf(w, " over %s", result.End.Sub(result.Start).Round(time.Second))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "periods    %d listed, %d requested, %d resolved, %d stalled\n",
		status.Catalog.Periods, status.Catalog.Requested, status.Catalog.Resolved, status.Catalog.Stalled)
	fmt.Fprintf(w, "records    %s (%s placeholders)\n",
		humanize.Comma(int64(status.Catalog.Records)), humanize.Comma(int64(status.Catalog.Placeholders)))

	presence := make([]string, 0, len(schema.Tiers))
	for _, tier := range schema.Tiers {
		presence = append(presence, fmt.Sprintf("%s %s", tier, humanize.Comma(int64(status.Catalog.Present[tier]))))
	}
	fmt.Fprintf(w, "present    %s\n", strings.Join(presence, ", "))

	if open := len(status.OpenFragmentSets); open > 0 {
		fmt.Fprintf(w, "fragments  %d sets incomplete\n", open)
		for _, set := range status.OpenFragmentSets {
			fmt.Fprintf(w, "           %s %d/%d\n", set.Key.TabPath(), set.Received, set.Total)
		}
	}

	counts := make(map[schema.RequestKind]int)
	var kinds []schema.RequestKind
	for _, sent := range result.Requests {
		if counts[sent.Kind] == 0 {
			kinds = append(kinds, sent.Kind)
		}
		counts[sent.Kind]++
	}
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s %d", kind, counts[kind]))
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}
	fmt.Fprintf(w, "requests   %s\n", strings.Join(parts, ", "))
}

func treeLine(row dashboard.TreeRow) string {
	indent := strings.Repeat("  ", row.Depth)
	if row.Depth == 0 {
		return tierStyle.Render(row.Name)
	}

	name := row.Name
	if row.Default {
		name = "*" + name
	}
	var state string
	switch {
	case row.Stalled:
		state = stalledStyle.Render("stalled")
	case row.Resolved:
		state = resolvedStyle.Render(fmt.Sprintf("%s files, %s",
			humanize.Comma(int64(row.Files)), humanize.Bytes(uint64(row.Size))))
	case row.Requested:
		state = requestedStyle.Render("requested")
	case row.Level == catalog.LevelPeriod.String():
		state = faintStyle.Render("not loaded")
	}
	if state == "" {
		return indent + name
	}
	return indent + name + "  " + state
}

// dumpCapture prints every envelope at path in CBOR diagnostic
// notation.
func dumpCapture(w io.Writer, path string) error {
	reader, err := capture.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	fmt.Fprintf(w, "# compression %s\n", reader.Compression)
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		body, err := codec.Diagnose(entry.Envelope.Body)
		if err != nil {
			body = fmt.Sprintf("<undecodable: %v>", err)
		}
		fmt.Fprintf(w, "%s %s %s\n", entry.At.UTC().Format(time.RFC3339Nano), entry.Envelope.Kind, body)
	}
}
