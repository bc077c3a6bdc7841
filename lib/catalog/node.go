// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/bureau-foundation/custody/lib/schema"
)

// Level is the depth of a node in the browse tree.
type Level int

const (
	LevelTier Level = iota
	LevelSource
	LevelProject
	LevelMonth
	LevelPeriod
)

var levelNames = [...]string{
	LevelTier:    "tier",
	LevelSource:  "source",
	LevelProject: "project",
	LevelMonth:   "month",
	LevelPeriod:  "period",
}

func (l Level) String() string {
	if l < LevelTier || l > LevelPeriod {
		return "level(?)"
	}
	return levelNames[l]
}

// Node is one node of the browse tree.
type Node struct {
	Name   string
	Level  Level
	Tier   schema.Tier
	Parent *Node

	// Default is true for the first child of each sibling group.
	Default bool

	// Key identifies the subtree of a period node. It is the zero
	// value on every other level.
	Key schema.AggregationKey

	// Requested is the at-most-once fetch latch of a period node. It
	// is set by the expansion coordinator and reset only when the node
	// is rebuilt by a full refresh.
	Requested   bool
	RequestedAt time.Time
	Attempts    int

	// Stalled is set when the expansion coordinator gives up
	// re-requesting the node.
	Stalled bool

	// Resolved is set once the node's subtree has been merged.
	Resolved   bool
	ResolvedAt time.Time

	children map[string]*Node
	order    []string
}

func newNode(name string, level Level, tier schema.Tier, parent *Node) *Node {
	return &Node{
		Name:     name,
		Level:    level,
		Tier:     tier,
		Parent:   parent,
		children: make(map[string]*Node),
	}
}

// Child returns the named child, or nil.
func (n *Node) Child(name string) *Node { return n.children[name] }

// Children returns the node's children in display order.
func (n *Node) Children() []*Node {
	children := make([]*Node, len(n.order))
	for i, name := range n.order {
		children[i] = n.children[name]
	}
	return children
}

// IsPeriod reports whether n is a lazily loaded subtree.
func (n *Node) IsPeriod() bool { return n.Level == LevelPeriod }

// DefaultChild returns the first child in display order, or nil for a
// leaf.
func (n *Node) DefaultChild() *Node {
	if len(n.order) == 0 {
		return nil
	}
	return n.children[n.order[0]]
}

// DefaultPeriod follows default children from n down to a period node.
// It returns n itself for a period node and nil when the chain ends
// before reaching a period.
func (n *Node) DefaultPeriod() *Node {
	for node := n; node != nil; node = node.DefaultChild() {
		if node.IsPeriod() {
			return node
		}
	}
	return nil
}

// OnDefaultPath reports whether n and each of its ancestors below the
// tier root is the default child of its group.
func (n *Node) OnDefaultPath() bool {
	for node := n; node != nil && node.Level > LevelSource; node = node.Parent {
		if !node.Default {
			return false
		}
	}
	return true
}

// Source returns the name of the source n belongs to, or "" for a
// tier root.
func (n *Node) Source() string {
	for node := n; node != nil; node = node.Parent {
		if node.Level == LevelSource {
			return node.Name
		}
	}
	return ""
}

// Path renders the node's address. Period nodes use the tab path of
// their key; structural nodes join their names below the tier.
func (n *Node) Path() string {
	if n.IsPeriod() {
		return n.Key.TabPath()
	}
	var segments []string
	for node := n; node != nil; node = node.Parent {
		segments = append(segments, node.Name)
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, ":")
}

// Scope returns the scope covering n's subtree.
func (n *Node) Scope() schema.Scope {
	scope := schema.Scope{Tier: n.Tier}
	for node := n; node != nil; node = node.Parent {
		switch node.Level {
		case LevelSource:
			scope.Source = node.Name
		case LevelProject:
			scope.Project = node.Name
		case LevelMonth:
			if scope.Period == "" {
				scope.Period = node.Name
			}
		case LevelPeriod:
			scope.Period = node.Name
		}
	}
	return scope
}

// Periods returns every period node in n's subtree in display order.
func (n *Node) Periods() []*Node {
	var periods []*Node
	n.walk(func(node *Node) bool {
		if node.IsPeriod() {
			periods = append(periods, node)
		}
		return true
	})
	return periods
}

// walk visits n and its descendants depth first in display order.
// Returning false from visit skips the node's children.
func (n *Node) walk(visit func(*Node) bool) {
	if !visit(n) {
		return
	}
	for _, name := range n.order {
		n.children[name].walk(visit)
	}
}

// ensureChild returns the named child, creating it if needed. Order
// and defaults are fixed up by sortChildren once a group is complete.
func (n *Node) ensureChild(name string, level Level) *Node {
	if child, exists := n.children[name]; exists {
		return child
	}
	child := newNode(name, level, n.Tier, n)
	n.children[name] = child
	n.order = append(n.order, name)
	return child
}

func (n *Node) removeChild(name string) {
	if _, exists := n.children[name]; !exists {
		return
	}
	delete(n.children, name)
	n.order = removeString(n.order, name)
	n.markDefault()
}

// sortChildren orders the children for display and marks the
// default. Dates sort newest first, names ascending.
func (n *Node) sortChildren() {
	newestFirst := len(n.order) > 0 && (n.children[n.order[0]].Level == LevelMonth || n.children[n.order[0]].Level == LevelPeriod)
	sort.Slice(n.order, func(i, j int) bool {
		if newestFirst {
			return n.order[i] > n.order[j]
		}
		return n.order[i] < n.order[j]
	})
	n.markDefault()
}

func (n *Node) markDefault() {
	for i, name := range n.order {
		n.children[name].Default = i == 0
	}
}

func removeString(values []string, target string) []string {
	result := values[:0]
	for _, value := range values {
		if value != target {
			result = append(result, value)
		}
	}
	return result
}
