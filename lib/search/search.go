// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package search drives the paginated file search.
//
// The search runs independently of the catalog tree. [Controller.Query]
// sends a new search and resets the cursor to the first result;
// [Controller.Next] and [Controller.Prev] ask for the page at an
// absolute result index one page away from the cursor. The server
// owns the pagination: the current page, total pages, and current
// index it sends back are stored as received and never computed here.
package search

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/custody/lib/schema"
)

var (
	// ErrNoQuery is returned when paging before any query was sent.
	ErrNoQuery = errors.New("no search query")

	// ErrNoPreviousPage is returned by Prev at the first result.
	ErrNoPreviousPage = errors.New("already at the first page")

	// ErrNoNextPage is returned by Next at the last page the server
	// reported.
	ErrNoNextPage = errors.New("already at the last page")

	// ErrStaleResults is returned for a page that answers no current
	// search: one arriving before any query, or one whose search ID
	// names an earlier query.
	ErrStaleResults = errors.New("results for a superseded search")

	// ErrUnknownField is returned when a query filters on a field the
	// server's filter catalog does not list.
	ErrUnknownField = errors.New("unknown search field")
)

// Emitter sends an outbound request without waiting for an answer.
type Emitter interface {
	Emit(schema.Request) error
}

// Controller holds the state of one session's search. Not safe for
// concurrent use.
type Controller struct {
	emitter         Emitter
	logger          *slog.Logger
	defaultPageSize int

	query    *schema.SearchQuery
	searchID uint64
	cursor   int
	results *schema.SearchResults
	fields  map[string]schema.FilterSpec
}

// New returns a Controller. Queries without a page size use
// defaultPageSize.
func New(emitter Emitter, logger *slog.Logger, defaultPageSize int) *Controller {
	return &Controller{emitter: emitter, logger: logger, defaultPageSize: defaultPageSize}
}

// Query starts a new search. The cursor and any stored results are
// reset before the request is sent.
func (c *Controller) Query(query schema.SearchQuery) error {
	if query.PageSize == 0 {
		query.PageSize = c.defaultPageSize
	}
	if err := query.Validate(); err != nil {
		return fmt.Errorf("search query: %w", err)
	}
	if err := c.checkFields(query.Filters); err != nil {
		return err
	}

	searchID := c.searchID + 1
	if err := c.emitter.Emit(schema.NewSearchRequest(searchID, query)); err != nil {
		return fmt.Errorf("sending search: %w", err)
	}
	c.query = &query
	c.searchID = searchID
	c.cursor = 0
	c.results = nil
	c.logger.Debug("search sent", "search_id", searchID, "filters", len(query.Filters), "sort_key", query.SortKey, "page_size", query.PageSize)
	return nil
}

// Next requests the page after the cursor and returns the start index
// it asked for. The last page is the one the server numbered
// TotalPages.
func (c *Controller) Next() (int, error) {
	if c.query == nil {
		return 0, ErrNoQuery
	}
	if c.results != nil && c.results.TotalPages > 0 && c.results.CurrentPage >= c.results.TotalPages {
		return 0, ErrNoNextPage
	}
	start := c.cursor + c.query.PageSize
	return start, c.fetch(start)
}

// Prev requests the page before the cursor and returns the start index
// it asked for. A cursor inside the first page moves to zero.
func (c *Controller) Prev() (int, error) {
	if c.query == nil {
		return 0, ErrNoQuery
	}
	if c.cursor <= 0 {
		return 0, ErrNoPreviousPage
	}
	start := max(c.cursor-c.query.PageSize, 0)
	return start, c.fetch(start)
}

func (c *Controller) fetch(start int) error {
	if err := c.emitter.Emit(&schema.SearchFetch{SearchID: c.searchID, StartIndex: start, Count: c.query.PageSize}); err != nil {
		return fmt.Errorf("fetching results at %d: %w", start, err)
	}
	c.cursor = start
	return nil
}

// ApplyResults stores a page from the server. The server's current
// index becomes the cursor. A page that answers no current search is
// rejected with [ErrStaleResults] and changes nothing.
func (c *Controller) ApplyResults(results *schema.SearchResults) error {
	if c.query == nil {
		return fmt.Errorf("%w: no search sent", ErrStaleResults)
	}
	if results.SearchID != 0 && results.SearchID != c.searchID {
		return fmt.Errorf("%w: page for search %d, current search is %d", ErrStaleResults, results.SearchID, c.searchID)
	}
	stored := *results
	c.results = &stored
	c.cursor = results.CurrentIndex
	return nil
}

// ApplyFilters replaces the filter catalog. Later queries may only
// filter on fields it lists, with the same filter type.
func (c *Controller) ApplyFilters(filters *schema.SearchFilters) error {
	for field, spec := range filters.Fields {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("filter catalog field %q: %w", field, err)
		}
	}
	c.fields = filters.Fields
	return nil
}

// Fields returns the filter catalog, or nil before the server sent one.
func (c *Controller) Fields() map[string]schema.FilterSpec { return c.fields }

// Page returns the last page received, or nil.
func (c *Controller) Page() *schema.SearchResults { return c.results }

// Cursor returns the absolute index of the current page's first result.
func (c *Controller) Cursor() int { return c.cursor }

func (c *Controller) checkFields(filters map[string]schema.FilterSpec) error {
	if c.fields == nil {
		return nil
	}
	for field, spec := range filters {
		known, listed := c.fields[field]
		if !listed {
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
		if known.Type != spec.Type {
			return fmt.Errorf("search field %q is a %s filter, not %s", field, known.Type, spec.Type)
		}
	}
	return nil
}
