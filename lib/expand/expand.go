// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package expand decides when a catalog subtree is requested from the
// backend.
//
// A period node is fetched at most once: the first [Coordinator.Expand]
// sets the node's Requested latch and emits one expand request, and
// later calls do nothing. The latch survives collapsing and reopening
// the node and is cleared only when a full refresh rebuilds the node.
// Expanding a structural node (a source, project, or month) expands
// its default period, which is what the dashboard shows when the node
// is opened.
//
// Nodes on the default path of a freshly built skeleton are passed to
// [Coordinator.AutoTrigger], which requests them unconditionally.
//
// Requests that are never answered leave a node unresolved. With a
// non-zero timeout, [Coordinator.Sweep] repeats such requests up to a
// bounded number of attempts and then marks the node stalled.
package expand

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/schema"
)

// Emitter sends an outbound request without waiting for an answer.
type Emitter interface {
	Emit(schema.Request) error
}

// Options configures a Coordinator.
type Options struct {
	Store   *catalog.Store
	Emitter Emitter
	Clock   clock.Clock
	Logger  *slog.Logger

	// Timeout is how long a request may go unanswered before Sweep
	// repeats it. Zero disables repetition.
	Timeout time.Duration

	// MaxAttempts bounds the requests sent for one node, the first
	// included. Values below 1 mean 1.
	MaxAttempts int
}

// Coordinator gates subtree requests. Not safe for concurrent use.
type Coordinator struct {
	store       *catalog.Store
	emitter     Emitter
	clock       clock.Clock
	logger      *slog.Logger
	timeout     time.Duration
	maxAttempts int

	// pending holds keys requested but not yet resolved. Keys are
	// looked up again on each sweep because a refresh replaces nodes.
	pending map[schema.AggregationKey]struct{}
}

// New returns a Coordinator.
func New(options Options) *Coordinator {
	maxAttempts := options.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Coordinator{
		store:       options.Store,
		emitter:     options.Emitter,
		clock:       options.Clock,
		logger:      options.Logger,
		timeout:     options.Timeout,
		maxAttempts: maxAttempts,
		pending:     make(map[schema.AggregationKey]struct{}),
	}
}

// Expand requests node's subtree if it has not been requested yet.
// For a structural node the default period below it is expanded. It
// reports whether a request was emitted.
//
// If the emitter rejects the request the latch is released so a later
// Expand can try again.
func (c *Coordinator) Expand(node *catalog.Node) (bool, error) {
	period := node.DefaultPeriod()
	if period == nil || period.Requested {
		return false, nil
	}
	if err := c.request(period); err != nil {
		period.Requested = false
		period.Attempts--
		return false, err
	}
	return true, nil
}

// AutoTrigger requests node's subtree whether or not it has been
// requested before.
func (c *Coordinator) AutoTrigger(node *catalog.Node) error {
	period := node.DefaultPeriod()
	if period == nil {
		return nil
	}
	wasRequested := period.Requested
	if err := c.request(period); err != nil {
		period.Requested = wasRequested
		period.Attempts--
		return err
	}
	return nil
}

func (c *Coordinator) request(node *catalog.Node) error {
	node.Requested = true
	node.RequestedAt = c.clock.Now()
	node.Attempts++
	node.Stalled = false

	request := &schema.ExpandRequest{NodePath: node.Path(), Key: node.Key, Attempt: node.Attempts}
	if err := c.emitter.Emit(request); err != nil {
		return fmt.Errorf("requesting %s: %w", node.Path(), err)
	}
	c.pending[node.Key] = struct{}{}
	c.logger.Debug("subtree requested", "node", node.Path(), "attempt", node.Attempts)
	return nil
}

// SweepResult lists the nodes Sweep acted on.
type SweepResult struct {
	Retried []*catalog.Node
	Stalled []*catalog.Node
}

// Sweep forgets resolved or rebuilt nodes and, when a timeout is
// configured, repeats requests older than the timeout. A node that
// has used all its attempts is marked stalled and no longer swept.
// Emit failures are logged and tried again once the timeout elapses.
func (c *Coordinator) Sweep() SweepResult {
	var result SweepResult
	now := c.clock.Now()

	keys := make([]schema.AggregationKey, 0, len(c.pending))
	for key := range c.pending {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].TabPath() < keys[j].TabPath() })

	for _, key := range keys {
		node := c.store.PeriodNode(key)
		if node == nil || node.Resolved || !node.Requested {
			delete(c.pending, key)
			continue
		}
		if c.timeout <= 0 || now.Sub(node.RequestedAt) < c.timeout {
			continue
		}
		if node.Attempts >= c.maxAttempts {
			node.Stalled = true
			delete(c.pending, key)
			result.Stalled = append(result.Stalled, node)
			c.logger.Warn("subtree request unanswered, giving up",
				"node", node.Path(), "attempts", node.Attempts)
			continue
		}
		if err := c.request(node); err != nil {
			node.Attempts--
			c.logger.Warn("repeating subtree request failed", "node", node.Path(), "error", err)
			continue
		}
		result.Retried = append(result.Retried, node)
	}
	return result
}

// Pending returns the number of requested, unresolved subtrees being
// tracked.
func (c *Coordinator) Pending() int { return len(c.pending) }
