// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/custody/lib/action"
	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/expand"
	"github.com/bureau-foundation/custody/lib/fragment"
	"github.com/bureau-foundation/custody/lib/presence"
	"github.com/bureau-foundation/custody/lib/schema"
	"github.com/bureau-foundation/custody/lib/search"
	"github.com/bureau-foundation/custody/lib/selection"
)

// Emitter sends outbound requests without waiting for an answer.
// transport.Outbox and transport.Memory implement it.
type Emitter interface {
	Emit(schema.Request) error
}

// Options configures a State.
type Options struct {
	Emitter Emitter
	Clock   clock.Clock
	Logger  *slog.Logger

	// Metrics may be nil, in which case unregistered collectors are
	// used.
	Metrics *Metrics

	// AccumulatorTTL is the idle time after which Tick discards a
	// partially received fragment set. Zero disables eviction.
	AccumulatorTTL time.Duration

	// ExpandTimeout and ExpandMaxAttempts control repeated subtree
	// requests; see expand.Options.
	ExpandTimeout     time.Duration
	ExpandMaxAttempts int

	// PageSize is the search page size used when a query sets none.
	PageSize int

	// CancelInvalidatesAccumulators makes a cancel action discard the
	// source's open fragment sets. Otherwise fragments keep being
	// absorbed after a cancel.
	CancelInvalidatesAccumulators bool
}

// State is the engine state of one session. Construct with
// [NewState]. The component fields may be read freely between events;
// changes should go through State's methods so that related state
// (selections, accumulators, metrics) stays consistent.
type State struct {
	Store     *catalog.Store
	Fragments *fragment.Reassembler
	Expansion *expand.Coordinator
	Presence  *presence.Reconciler
	Selection *selection.Coordinator
	Actions   *action.Dispatcher
	Search    *search.Controller

	emitter Emitter
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics
	options Options
}

var _ schema.Handler = (*State)(nil)

// NewState returns an empty State.
func NewState(options Options) *State {
	if options.Metrics == nil {
		options.Metrics = NewMetrics(nil)
	}
	store := catalog.New()
	state := &State{
		Store:     store,
		Fragments: fragment.New(options.Clock),
		Expansion: expand.New(expand.Options{
			Store:       store,
			Emitter:     options.Emitter,
			Clock:       options.Clock,
			Logger:      options.Logger,
			Timeout:     options.ExpandTimeout,
			MaxAttempts: options.ExpandMaxAttempts,
		}),
		Presence:  presence.New(store, options.Logger),
		Selection: selection.New(store),
		Actions:   action.New(store, options.Emitter, options.Logger),
		Search:    search.New(options.Emitter, options.Logger, options.PageSize),
		emitter:   options.Emitter,
		clock:     options.Clock,
		logger:    options.Logger,
		metrics:   options.Metrics,
		options:   options,
	}
	state.Presence.Observe(state.countPresenceChanges)
	return state
}

// ApplyEnvelope decodes envelope and applies the event. Errors are
// returned after being logged and counted; the state is unchanged by
// a rejected event.
func (s *State) ApplyEnvelope(envelope schema.Envelope) error {
	event, err := schema.DecodeEvent(envelope)
	if err != nil {
		reason := DropUndecodable
		if errors.Is(err, schema.ErrUnknownKind) {
			reason = DropUnknownKind
		}
		s.drop(reason, envelope.Kind, err)
		return err
	}
	return s.Apply(event)
}

// Apply dispatches event to its handler.
func (s *State) Apply(event schema.Event) error {
	s.metrics.Events.WithLabelValues(string(event.Kind())).Inc()
	if err := event.Dispatch(s); err != nil {
		s.drop(dropReason(err), string(event.Kind()), err)
		return err
	}
	return nil
}

func dropReason(err error) string {
	var malformed *fragment.MalformedError
	switch {
	case errors.Is(err, fragment.ErrDuplicate):
		return DropDuplicate
	case errors.As(err, &malformed):
		return DropMalformed
	case errors.Is(err, catalog.ErrUnknownSubtree):
		return DropUnknownSubtree
	case errors.Is(err, search.ErrStaleResults):
		return DropStale
	default:
		return DropInvalid
	}
}

func (s *State) drop(reason, kind string, err error) {
	s.metrics.Dropped.WithLabelValues(reason).Inc()
	level := slog.LevelWarn
	if reason == DropDuplicate || reason == DropStale {
		// Transport retries and superseded searches make these routine.
		level = slog.LevelDebug
	}
	s.logger.Log(context.Background(), level, "event dropped", "kind", kind, "reason", reason, "error", err)
}

// HandleCatalogSummary builds or rebuilds the skeleton of one source.
// A rebuild discards the source's open fragment sets and selection,
// and the default path of the new skeleton is requested right away.
func (s *State) HandleCatalogSummary(summary *schema.CatalogSummary) error {
	if err := summary.Validate(); err != nil {
		return err
	}
	result := s.Store.ApplySummary(summary)
	discarded := s.forgetSource(summary.Tier, summary.Source)

	s.logger.Info("catalog summary applied",
		"source", result.Source.String(),
		"refreshed", result.Refreshed,
		"periods", len(result.Node.Periods()),
		"removed_subtrees", len(result.RemovedKeys),
		"dropped_records", len(result.Dropped),
		"discarded_accumulators", discarded,
	)

	for _, node := range result.AutoTrigger {
		if err := s.Expansion.AutoTrigger(node); err != nil {
			s.logger.Warn("automatic subtree request failed", "node", node.Path(), "error", err)
			continue
		}
		s.metrics.ExpandRequests.WithLabelValues("auto").Inc()
	}
	s.updateGauges()
	return nil
}

// HandleCatalogReset removes the tier's sources that are not listed.
func (s *State) HandleCatalogReset(reset *schema.CatalogReset) error {
	if !reset.Tier.Valid() {
		return fmt.Errorf("catalog reset: invalid tier %d", int(reset.Tier))
	}
	result := s.Store.Reset(reset.Tier, reset.Sources)
	for _, source := range result.RemovedSources {
		s.forgetSource(reset.Tier, source)
	}
	if len(result.RemovedSources) > 0 {
		s.logger.Info("catalog sources removed",
			"tier", reset.Tier,
			"sources", result.RemovedSources,
			"dropped_records", len(result.Dropped),
		)
	}
	s.updateGauges()
	return nil
}

// HandleCatalogFragment feeds a fragment to the reassembler. When the
// fragment completes its set, the merged payload is resolved into the
// catalog and the presence flags it lists are applied as one batch.
func (s *State) HandleCatalogFragment(fragmentEvent *schema.CatalogFragment) error {
	key, err := fragmentEvent.ResolveKey()
	if err != nil {
		return err
	}
	completion, err := s.Fragments.Deliver(key, fragmentEvent.Index, fragmentEvent.Total, fragmentEvent.Payload)
	defer s.updateGauges()
	if err != nil {
		return err
	}
	if completion == nil {
		return nil
	}
	s.metrics.Completions.Inc()

	resolution, err := s.Store.Resolve(key, completion.Payload, completion.Generation, s.clock.Now())
	if err != nil {
		return err
	}
	if _, err := s.Presence.ApplyBatch(resolution.Presence); err != nil {
		// Resolve only emits updates for validated entries, so this
		// means a listing reported a flag for an unknown tier.
		s.logger.Warn("listing presence rejected", "key", key.String(), "error", err)
	}

	s.logger.Info("subtree resolved",
		"key", key.String(),
		"generation", completion.Generation,
		"fragments", completion.Total,
		"files", completion.Payload.Count(),
		"added", len(resolution.Added),
		"updated", len(resolution.Updated),
		"dropped", len(resolution.Dropped),
		"skipped", resolution.Skipped,
		"digest", shortDigest(resolution.Digest),
		"unchanged", resolution.Unchanged,
		"elapsed", s.clock.Now().Sub(completion.OpenedAt),
	)
	return nil
}

// HandlePresenceUpdate applies one presence report.
func (s *State) HandlePresenceUpdate(update *schema.PresenceUpdate) error {
	_, err := s.Presence.Apply(*update)
	s.updateGauges()
	return err
}

// HandlePresenceBatch applies a batch of presence reports, all or
// nothing.
func (s *State) HandlePresenceBatch(batch *schema.PresenceBatch) error {
	_, err := s.Presence.ApplyBatch(batch.Entries)
	s.updateGauges()
	return err
}

// HandleSearchResults stores a page of search results.
func (s *State) HandleSearchResults(results *schema.SearchResults) error {
	if results.CurrentIndex < 0 || results.TotalPages < 0 || results.CurrentPage < 0 {
		return fmt.Errorf("search results: negative pagination (page %d of %d, index %d)",
			results.CurrentPage, results.TotalPages, results.CurrentIndex)
	}
	return s.Search.ApplyResults(results)
}

// HandleSearchFilters replaces the search filter catalog.
func (s *State) HandleSearchFilters(filters *schema.SearchFilters) error {
	return s.Search.ApplyFilters(filters)
}

// TickResult reports what a Tick did.
type TickResult struct {
	Evicted []fragment.Status
	Retried []*catalog.Node
	Stalled []*catalog.Node
}

// Tick evicts idle fragment sets and repeats unanswered subtree
// requests.
func (s *State) Tick() TickResult {
	var result TickResult
	result.Evicted = s.Fragments.Evict(s.options.AccumulatorTTL)
	for _, status := range result.Evicted {
		s.logger.Warn("fragment set evicted",
			"key", status.Key.String(),
			"received", status.Received,
			"total", status.Total,
			"idle", s.clock.Now().Sub(status.LastDelivery),
		)
	}
	s.metrics.Evicted.Add(float64(len(result.Evicted)))

	sweep := s.Expansion.Sweep()
	result.Retried, result.Stalled = sweep.Retried, sweep.Stalled
	s.metrics.ExpandRequests.WithLabelValues("retry").Add(float64(len(sweep.Retried)))
	s.updateGauges()
	return result
}

// forgetSource discards per-source state kept outside the store and
// returns the number of fragment sets discarded.
func (s *State) forgetSource(tier schema.Tier, source string) int {
	s.Selection.ClearSource(tier, source)
	discarded := s.Fragments.DiscardWhere(func(key schema.AggregationKey) bool {
		return key.Tier == tier && key.Source == source
	})
	return len(discarded)
}

func (s *State) countPresenceChanges(changes []catalog.PresenceChange) {
	for _, change := range changes {
		if change.Changed() {
			s.metrics.PresenceChanges.WithLabelValues(change.Tier.String()).Inc()
		}
	}
}

func (s *State) updateGauges() {
	s.metrics.OpenAccumulators.Set(float64(s.Fragments.Len()))
	s.metrics.Records.Set(float64(s.Store.Len()))
}

func shortDigest(digest string) string {
	if len(digest) > 16 {
		return digest[:16]
	}
	return digest
}
