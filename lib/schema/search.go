// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// FilterType distinguishes set filters from range filters.
type FilterType string

const (
	// FilterDiscrete accepts any of a set of values.
	FilterDiscrete FilterType = "discrete"

	// FilterRange accepts values between Min and Max inclusive.
	FilterRange FilterType = "range"
)

// FilterSpec is a filter on one search field. Range bounds are
// strings holding either decimal numbers (sizes, durations) or
// RFC 3339 timestamps; the server compares them. An empty bound is
// open.
type FilterSpec struct {
	Type   FilterType `json:"type"`
	Values []string   `json:"values,omitempty"`
	Min    string     `json:"min,omitempty"`
	Max    string     `json:"max,omitempty"`
}

// Validate checks that the filter is well formed for its type and that
// closed ranges are not inverted.
func (f FilterSpec) Validate() error {
	switch f.Type {
	case FilterDiscrete:
		if f.Min != "" || f.Max != "" {
			return errors.New("discrete filter has range bounds")
		}
		return nil
	case FilterRange:
		if len(f.Values) > 0 {
			return errors.New("range filter has discrete values")
		}
		if f.Min == "" || f.Max == "" {
			return nil
		}
		inverted, err := boundsInverted(f.Min, f.Max)
		if err != nil {
			return err
		}
		if inverted {
			return fmt.Errorf("range filter min %q exceeds max %q", f.Min, f.Max)
		}
		return nil
	}
	return fmt.Errorf("unknown filter type %q", f.Type)
}

func boundsInverted(low, high string) (bool, error) {
	lowNumber, lowErr := strconv.ParseFloat(low, 64)
	highNumber, highErr := strconv.ParseFloat(high, 64)
	if lowErr == nil && highErr == nil {
		return lowNumber > highNumber, nil
	}
	lowTime, lowErr := time.Parse(time.RFC3339, low)
	highTime, highErr := time.Parse(time.RFC3339, high)
	if lowErr == nil && highErr == nil {
		return lowTime.After(highTime), nil
	}
	return false, fmt.Errorf("range bounds %q and %q are neither both numbers nor both RFC 3339 times", low, high)
}

// SortDirection orders search results.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// SearchQuery is a complete search: filters by field, sort order, and
// page size.
type SearchQuery struct {
	Filters       map[string]FilterSpec `json:"filters,omitempty"`
	SortKey       string                `json:"sort_key,omitempty"`
	SortDirection SortDirection         `json:"sort_direction,omitempty"`
	PageSize      int                   `json:"page_size"`
}

// Validate checks every filter, the sort direction, and the page size.
func (q SearchQuery) Validate() error {
	for field, spec := range q.Filters {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("filter %q: %w", field, err)
		}
	}
	switch q.SortDirection {
	case "", SortAscending, SortDescending:
	default:
		return fmt.Errorf("unknown sort direction %q", q.SortDirection)
	}
	if q.PageSize < 1 {
		return fmt.Errorf("page size %d must be positive", q.PageSize)
	}
	return nil
}
