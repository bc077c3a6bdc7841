// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"strings"
	"time"
)

// PeriodLayout is the time layout of a period identifier.
const PeriodLayout = "2006-01-02"

// AggregationKey identifies one lazily loaded catalog subtree: the
// files of one source (and, on server tiers, one project) for one
// day. Its contents arrive as numbered fragments.
//
// Device subtrees have no project level; Project is empty for
// TierDevice and required for the server tiers.
type AggregationKey struct {
	Tier    Tier   `json:"tier"`
	Source  string `json:"source"`
	Project string `json:"project,omitempty"`
	Period  string `json:"period"`
}

// Validate checks that the key is complete for its tier and that the
// period is a calendar date.
func (k AggregationKey) Validate() error {
	if !k.Tier.Valid() {
		return fmt.Errorf("aggregation key: invalid tier %d", int(k.Tier))
	}
	if k.Source == "" {
		return fmt.Errorf("aggregation key: missing source")
	}
	if strings.Contains(k.Source, ":") || strings.Contains(k.Project, ":") {
		return fmt.Errorf("aggregation key %s: source and project must not contain ':'", k)
	}
	switch {
	case k.Tier == TierDevice && k.Project != "":
		return fmt.Errorf("aggregation key %s: device keys have no project", k)
	case k.Tier != TierDevice && k.Project == "":
		return fmt.Errorf("aggregation key %s: %s keys require a project", k, k.Tier)
	}
	if err := ValidatePeriod(k.Period); err != nil {
		return fmt.Errorf("aggregation key %s: %w", k, err)
	}
	return nil
}

// Month returns the YYYY-MM prefix of the period.
func (k AggregationKey) Month() string {
	if len(k.Period) < 7 {
		return k.Period
	}
	return k.Period[:7]
}

// TabPath renders the key as a dashboard tab path.
func (k AggregationKey) TabPath() string {
	if k.Tier == TierDevice {
		return k.Tier.String() + ":" + k.Source + ":" + k.Period
	}
	return k.Tier.String() + ":" + k.Source + ":" + k.Project + ":" + k.Period
}

func (k AggregationKey) String() string { return k.TabPath() }

// ParseTabPath parses a tab path produced by [AggregationKey.TabPath]
// and validates the result.
func ParseTabPath(path string) (AggregationKey, error) {
	parts := strings.Split(path, ":")
	tier, err := ParseTier(parts[0])
	if err != nil {
		return AggregationKey{}, fmt.Errorf("tab path %q: %w", path, err)
	}

	var key AggregationKey
	switch {
	case tier == TierDevice && len(parts) == 3:
		key = AggregationKey{Tier: tier, Source: parts[1], Period: parts[2]}
	case tier != TierDevice && len(parts) == 4:
		key = AggregationKey{Tier: tier, Source: parts[1], Project: parts[2], Period: parts[3]}
	default:
		return AggregationKey{}, fmt.Errorf("tab path %q: wrong number of components for tier %s", path, tier)
	}
	if err := key.Validate(); err != nil {
		return AggregationKey{}, err
	}
	return key, nil
}

// ValidatePeriod checks that period is a YYYY-MM-DD date.
func ValidatePeriod(period string) error {
	if _, err := time.Parse(PeriodLayout, period); err != nil {
		return fmt.Errorf("invalid period %q: want YYYY-MM-DD", period)
	}
	return nil
}

// Scope narrows an operation to part of one source's catalog. Project
// and Period are optional filters; Period may be a full date or a
// YYYY-MM month prefix.
type Scope struct {
	Tier    Tier   `json:"tier"`
	Source  string `json:"source"`
	Project string `json:"project,omitempty"`
	Period  string `json:"period,omitempty"`
}

// Validate checks the required fields.
func (s Scope) Validate() error {
	if !s.Tier.Valid() {
		return fmt.Errorf("scope: invalid tier %d", int(s.Tier))
	}
	if s.Source == "" {
		return fmt.Errorf("scope: missing source")
	}
	return nil
}

// Contains reports whether the subtree identified by key lies inside
// the scope.
func (s Scope) Contains(key AggregationKey) bool {
	if key.Tier != s.Tier || key.Source != s.Source {
		return false
	}
	if s.Project != "" && key.Project != s.Project {
		return false
	}
	return strings.HasPrefix(key.Period, s.Period)
}

// Filters returns the optional narrowing fields in request form, or
// nil when the scope covers the whole source.
func (s Scope) Filters() *ScopeFilters {
	if s.Project == "" && s.Period == "" {
		return nil
	}
	return &ScopeFilters{Project: s.Project, Period: s.Period}
}

func (s Scope) String() string {
	parts := []string{s.Tier.String(), s.Source}
	if s.Project != "" {
		parts = append(parts, s.Project)
	}
	if s.Period != "" {
		parts = append(parts, s.Period)
	}
	return strings.Join(parts, ":")
}

// ScopeFilters is the narrowing part of a [Scope] as carried in an
// action request.
type ScopeFilters struct {
	Project string `json:"project,omitempty"`
	Period  string `json:"period,omitempty"`
}
