// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/custody/lib/capture"
	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/schema"
	"github.com/bureau-foundation/custody/lib/transport"
)

var captureStart = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type timedEvent struct {
	offset time.Duration
	event  schema.Event
}

func present() *bool {
	value := true
	return &value
}

// writeCapture records events into a new zstd capture and returns its
// path.
func writeCapture(t *testing.T, events ...timedEvent) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.cap")
	writer, err := capture.Create(path, capture.CompressionZstd)
	if err != nil {
		t.Fatal(err)
	}
	for _, timed := range events {
		envelope, err := schema.EncodeEvent(timed.event)
		if err != nil {
			t.Fatal(err)
		}
		if err := writer.Write(captureStart.Add(timed.offset), envelope); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

var robotKey = schema.AggregationKey{Tier: schema.TierDevice, Source: "robot-7", Period: "2026-03-14"}

func robotSummary(source string) *schema.CatalogSummary {
	return &schema.CatalogSummary{Tier: schema.TierDevice, Source: source, Periods: map[string][]string{"": {"2026-03-14"}}}
}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestReplayRebuildsTree(t *testing.T) {
	path := writeCapture(t,
		timedEvent{0, robotSummary("robot-7")},
		timedEvent{time.Second, &schema.CatalogFragment{Key: robotKey, Total: 1, Payload: schema.RunFiles{"/runA": {
			{UploadID: "F1", Size: 41427491, Presence: schema.PresenceFlags{OnDevice: present()}},
			{UploadID: "F2", Size: 41427491, Presence: schema.PresenceFlags{OnDevice: present()}},
		}}}},
		timedEvent{2 * time.Second, &schema.CatalogFragment{Key: robotKey, Total: 0}},
	)

	result, err := replay(path, config.Default(), quietLogger())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Envelopes != 3 || result.Rejected != 1 {
		t.Errorf("envelopes = %d, rejected = %d, want 3 and 1", result.Envelopes, result.Rejected)
	}
	if result.Status.Catalog.Records != 2 || result.Status.Catalog.Resolved != 1 {
		t.Errorf("catalog stats = %+v", result.Status.Catalog)
	}
	kinds := make([]schema.RequestKind, 0, len(result.Requests))
	for _, sent := range result.Requests {
		kinds = append(kinds, sent.Kind)
	}
	if diff := cmp.Diff([]schema.RequestKind{schema.KindExpandRequest}, kinds); diff != "" {
		t.Errorf("requests (-want +got):\n%s", diff)
	}

	var output bytes.Buffer
	renderReplay(&output, result)
	for _, want := range []string{"device", "robot-7", "2026-03-14", "2 files, 83 MB", "expand_request 1", "2 applied, 1 rejected"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("rendered replay lacks %q:\n%s", want, output.String())
		}
	}
}

func TestReplayRunsSweepsBetweenEnvelopes(t *testing.T) {
	path := writeCapture(t,
		timedEvent{0, robotSummary("robot-7")},
		timedEvent{time.Second, &schema.CatalogFragment{Key: robotKey, Total: 2, Index: 0, Payload: schema.RunFiles{"/runA": {
			{UploadID: "F1", Size: 10},
		}}}},
		timedEvent{11 * time.Minute, robotSummary("robot-8")},
	)

	result, err := replay(path, config.Default(), quietLogger())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if open := result.Status.OpenFragmentSets; len(open) != 0 {
		t.Errorf("open fragment sets = %+v, want the idle set evicted", open)
	}
	// Two repeats at the expand timeout, then the node is given up.
	if result.Status.Catalog.Stalled != 1 {
		t.Errorf("stalled periods = %d, want 1", result.Status.Catalog.Stalled)
	}
	expands := 0
	for _, sent := range result.Requests {
		if sent.Kind == schema.KindExpandRequest {
			expands++
		}
	}
	if expands != 4 {
		t.Errorf("expand requests = %d, want 3 for robot-7 and 1 for robot-8", expands)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := replay(filepath.Join(t.TempDir(), "missing.cap"), config.Default(), quietLogger()); err == nil {
		t.Error("replay of a missing file succeeded")
	}
}

func TestDumpCapture(t *testing.T) {
	path := writeCapture(t, timedEvent{0, robotSummary("robot-7")})

	var output bytes.Buffer
	if err := dumpCapture(&output, path); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# compression zstd", "2026-03-14T12:00:00Z catalog_summary", `"robot-7"`} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("dump lacks %q:\n%s", want, output.String())
		}
	}
}

func TestInjectBatches(t *testing.T) {
	events := make([]timedEvent, 0, 5)
	for _, source := range []string{"r1", "r2", "r3", "r4", "r5"} {
		events = append(events, timedEvent{0, robotSummary(source)})
	}
	path := writeCapture(t, events...)

	var batches []int
	send := func(_ context.Context, socketPath string, envelopes ...schema.Envelope) (transport.Response, error) {
		if socketPath != "/run/custody/events.sock" {
			t.Errorf("sent to %q", socketPath)
		}
		batches = append(batches, len(envelopes))
		return transport.Response{OK: true, Accepted: len(envelopes)}, nil
	}

	totals, err := inject(context.Background(), path, "/run/custody/events.sock", 2, send)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 2, 1}, batches); diff != "" {
		t.Errorf("batch sizes (-want +got):\n%s", diff)
	}
	if totals.Accepted != 5 {
		t.Errorf("accepted = %d, want 5", totals.Accepted)
	}
}

func TestInjectCountsRejections(t *testing.T) {
	path := writeCapture(t, timedEvent{0, robotSummary("r1")}, timedEvent{0, robotSummary("r2")})
	send := func(_ context.Context, socketPath string, envelopes ...schema.Envelope) (transport.Response, error) {
		response := transport.Response{Accepted: 1, Dropped: 1, Error: "1 envelope rejected"}
		return response, &transport.DeliveryError{SocketPath: socketPath, Message: response.Error, Accepted: 1, Dropped: 1}
	}
	totals, err := inject(context.Background(), path, "/run/custody/events.sock", 64, send)
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if totals.Accepted != 1 || totals.Dropped != 1 {
		t.Errorf("totals = %+v", totals)
	}
}

func TestParseQuery(t *testing.T) {
	query, err := parseQuery([]byte(`{
		// newest large files from one robot
		"filters": {
			"robot": {"type": "discrete", "values": ["r7"]},
			"size": {"type": "range", "min": "1000000"},
		},
		"sort_key": "timestamp",
		"sort_direction": "desc",
	}`))
	if err != nil {
		t.Fatal(err)
	}
	want := schema.SearchQuery{
		Filters: map[string]schema.FilterSpec{
			"robot": {Type: schema.FilterDiscrete, Values: []string{"r7"}},
			"size":  {Type: schema.FilterRange, Min: "1000000"},
		},
		SortKey:       "timestamp",
		SortDirection: schema.SortDescending,
	}
	if diff := cmp.Diff(want, query); diff != "" {
		t.Errorf("query (-want +got):\n%s", diff)
	}

	if _, err := parseQuery([]byte(`{"filters": [}`)); err == nil {
		t.Error("parseQuery accepted malformed JSON")
	}
}

func TestScopeFields(t *testing.T) {
	scope := scopeOptions{tier: "local", source: "robot-7", period: "2026-03"}
	fields, err := scope.fields()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"tier": schema.TierLocal, "source": "robot-7", "period": "2026-03"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}

	if _, err := (&scopeOptions{tier: "local"}).fields(); err == nil {
		t.Error("scope without a source accepted")
	}
	if _, err := (&scopeOptions{tier: "attic", source: "robot-7"}).fields(); err == nil {
		t.Error("unknown tier accepted")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.PageSize != 15 {
		t.Errorf("page size = %d, want the default 15", cfg.Search.PageSize)
	}
}

func TestCommandTree(t *testing.T) {
	seen := make(map[string]bool)
	for _, command := range root().Subcommands {
		if seen[command.Name] {
			t.Errorf("duplicate command %q", command.Name)
		}
		seen[command.Name] = true
		if command.Summary == "" {
			t.Errorf("command %q has no summary", command.Name)
		}
		for _, sub := range command.Subcommands {
			if sub.Summary == "" || sub.Run == nil {
				t.Errorf("command %q %q lacks a summary or Run", command.Name, sub.Name)
			}
		}
	}
	for _, name := range []string{"run", "ctl", "replay", "inject", "version"} {
		if !seen[name] {
			t.Errorf("missing command %q", name)
		}
	}
}
