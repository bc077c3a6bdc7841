// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strings"
	"testing"
)

func TestParseTabPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    AggregationKey
		wantErr string
	}{
		{
			name: "device",
			path: "device:robot-7:2026-03-14",
			want: AggregationKey{Tier: TierDevice, Source: "robot-7", Period: "2026-03-14"},
		},
		{
			name: "local",
			path: "local:robot-7:mapping:2026-03-14",
			want: AggregationKey{Tier: TierLocal, Source: "robot-7", Project: "mapping", Period: "2026-03-14"},
		},
		{
			name: "remote",
			path: "remote:robot-7:mapping:2026-03-14",
			want: AggregationKey{Tier: TierRemote, Source: "robot-7", Project: "mapping", Period: "2026-03-14"},
		},
		{name: "unknown tier", path: "cloud:robot-7:2026-03-14", wantErr: "unknown tier"},
		{name: "device with project", path: "device:robot-7:mapping:2026-03-14", wantErr: "wrong number"},
		{name: "local without project", path: "local:robot-7:2026-03-14", wantErr: "wrong number"},
		{name: "bad period", path: "device:robot-7:2026-13-01", wantErr: "invalid period"},
		{name: "month only", path: "device:robot-7:2026-03", wantErr: "invalid period"},
		{name: "empty source", path: "device::2026-03-14", wantErr: "missing source"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseTabPath(test.path)
			if test.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("ParseTabPath(%q) error = %v, want containing %q", test.path, err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTabPath(%q): %v", test.path, err)
			}
			if got != test.want {
				t.Errorf("ParseTabPath(%q) = %+v, want %+v", test.path, got, test.want)
			}
			if got.TabPath() != test.path {
				t.Errorf("TabPath() = %q, want %q", got.TabPath(), test.path)
			}
		})
	}
}

func TestAggregationKeyMonth(t *testing.T) {
	key := AggregationKey{Tier: TierDevice, Source: "r", Period: "2026-03-14"}
	if got := key.Month(); got != "2026-03" {
		t.Errorf("Month() = %q, want 2026-03", got)
	}
}

func TestScopeContains(t *testing.T) {
	key := AggregationKey{Tier: TierLocal, Source: "r1", Project: "p1", Period: "2026-03-14"}
	tests := []struct {
		scope Scope
		want  bool
	}{
		{Scope{Tier: TierLocal, Source: "r1"}, true},
		{Scope{Tier: TierLocal, Source: "r1", Project: "p1"}, true},
		{Scope{Tier: TierLocal, Source: "r1", Project: "p1", Period: "2026-03"}, true},
		{Scope{Tier: TierLocal, Source: "r1", Project: "p1", Period: "2026-03-14"}, true},
		{Scope{Tier: TierLocal, Source: "r1", Period: "2026-04"}, false},
		{Scope{Tier: TierLocal, Source: "r1", Project: "p2"}, false},
		{Scope{Tier: TierLocal, Source: "r2"}, false},
		{Scope{Tier: TierRemote, Source: "r1"}, false},
	}
	for _, test := range tests {
		if got := test.scope.Contains(key); got != test.want {
			t.Errorf("%s.Contains(%s) = %v, want %v", test.scope, key, got, test.want)
		}
	}
}

func TestScopeFilters(t *testing.T) {
	if filters := (Scope{Tier: TierDevice, Source: "r"}).Filters(); filters != nil {
		t.Errorf("whole-source scope has filters %+v", filters)
	}
	filters := (Scope{Tier: TierLocal, Source: "r", Project: "p", Period: "2026-03"}).Filters()
	if filters == nil || filters.Project != "p" || filters.Period != "2026-03" {
		t.Errorf("Filters() = %+v", filters)
	}
}

func TestTierText(t *testing.T) {
	for _, tier := range Tiers {
		text, err := tier.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", tier, err)
		}
		var decoded Tier
		if err := decoded.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if decoded != tier {
			t.Errorf("round trip of %v gave %v", tier, decoded)
		}
	}
	if _, err := Tier(0).MarshalText(); err == nil {
		t.Error("zero tier encoded without error")
	}
	var tier Tier
	if err := tier.UnmarshalText([]byte("cloud")); err == nil {
		t.Error("unknown tier name decoded without error")
	}
}
