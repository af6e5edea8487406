// Package pgraph implements the Product Graph: the persistent, in-memory
// memoization structure of nodes, their states, their forward/reverse
// edges, and the incremental cycle detector that guards edge insertion.
// One mutex-guarded map of Node -> entry, mutated only through
// UpdateState, walked depth-first, and collapsed by Invalidate.
package pgraph

import (
	"fmt"
	"sync"

	"github.com/polyweave/polyweave/internal/node"
)

// entry is the per-node bookkeeping record.
type entry struct {
	n                   node.Node
	state               node.State // nil until a terminal state is recorded; Waiting only adds edges
	level               int
	dependencies        map[string]struct{}
	dependents          map[string]struct{}
	cyclicDependencies  map[string]struct{}
}

func newEntry(n node.Node) *entry {
	return &entry{
		n:                  n,
		level:              1,
		dependencies:       make(map[string]struct{}),
		dependents:         make(map[string]struct{}),
		cyclicDependencies: make(map[string]struct{}),
	}
}

// Graph is the Product Graph. The zero value is not usable; use New.
type Graph struct {
	mu    sync.Mutex
	nodes map[string]*entry
}

// New returns an empty Product Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*entry)}
}

// Len returns the number of nodes the graph has ever seen (including ones
// not yet terminal).
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// CyclicRejectionCount returns the total number of dependency edges the
// incremental cycle detector has rejected across every node seen so far.
func (g *Graph) CyclicRejectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, e := range g.nodes {
		total += len(e.cyclicDependencies)
	}
	return total
}

func (g *Graph) getOrCreate(n node.Node) *entry {
	e, ok := g.nodes[n.Key()]
	if !ok {
		e = newEntry(n)
		g.nodes[n.Key()] = e
	}
	return e
}

// IsComplete reports whether n has a terminal state.
func (g *Graph) IsComplete(n node.Node) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[n.Key()]
	return ok && e.state != nil && e.state.Terminal()
}

// State returns n's terminal state, or nil if n has no entry yet or has
// not reached a terminal state (a Waiting update records edges, not a state).
func (g *Graph) State(n node.Node) node.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[n.Key()]
	if !ok {
		return nil
	}
	return e.state
}

// UpdateState advances n to s, creating n's entry if this is the first time
// it has been seen. Terminal states (Return/Throw/Noop) are recorded once
// and never overwritten; a second call on a terminal node is a programming
// error. A Waiting state instead adds dependency edges, subject to cycle
// detection; the node's own state is left non-terminal (nil) until a
// later call supplies a terminal state.
func (g *Graph) UpdateState(n node.Node, s node.State) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e := g.getOrCreate(n)
	if e.state != nil && e.state.Terminal() {
		return &node.AlreadyCompletedError{Node: n}
	}

	switch st := s.(type) {
	case node.Return, node.Throw, node.Noop:
		e.state = s
		return nil
	case node.Waiting:
		g.addDependencies(n, e, st.Deps)
		return nil
	default:
		return fmt.Errorf("%w: %T", node.ErrUnknownKind, s)
	}
}

func (g *Graph) addDependencies(n node.Node, e *entry, deps []node.Node) {
	for _, dep := range deps {
		dk := dep.Key()
		if _, already := e.dependencies[dk]; already {
			continue
		}
		if g.detectCycle(n, dep) {
			e.cyclicDependencies[dk] = struct{}{}
			continue
		}
		e.dependencies[dk] = struct{}{}
		de := g.getOrCreate(dep)
		de.dependents[n.Key()] = struct{}{}
	}
}

// DependenciesOf returns the accepted dependency nodes of n.
func (g *Graph) DependenciesOf(n node.Node) []node.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[n.Key()]
	if !ok {
		return nil
	}
	return g.keysToNodesLocked(e.dependencies)
}

// DependentsOf returns the dependent nodes of n.
func (g *Graph) DependentsOf(n node.Node) []node.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[n.Key()]
	if !ok {
		return nil
	}
	return g.keysToNodesLocked(e.dependents)
}

// CyclicDependenciesOf returns the dependency nodes whose edge into n was
// rejected by the cycle detector.
func (g *Graph) CyclicDependenciesOf(n node.Node) []node.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[n.Key()]
	if !ok {
		return nil
	}
	return g.keysToNodesLocked(e.cyclicDependencies)
}

func (g *Graph) keysToNodesLocked(keys map[string]struct{}) []node.Node {
	out := make([]node.Node, 0, len(keys))
	for k := range keys {
		if e, ok := g.nodes[k]; ok {
			out = append(out, e.n)
		}
	}
	return out
}

// NodeByKey looks up the Node value stored under a given key, used by
// callers (the scheduler) that only carry keys around.
func (g *Graph) NodeByKey(key string) (node.Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[key]
	if !ok {
		return nil, false
	}
	return e.n, true
}

// Walk performs a depth-first pre-order traversal from roots, following
// dependencies by default (or dependents, if dependents is true). The
// predicate, applied to each (node, state) pair, eliminates subgraphs it
// rejects; the default predicate (used when predicate is nil) drops Noop
// subgraphs.
func (g *Graph) Walk(roots []node.Node, predicate func(node.Node, node.State) bool, dependents bool) []WalkEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	if predicate == nil {
		predicate = func(_ node.Node, s node.State) bool {
			_, isNoop := s.(node.Noop)
			return !isNoop
		}
	}

	var out []WalkEntry
	walked := make(map[string]bool)
	var visit func(keys []string)
	visit = func(keys []string) {
		for _, k := range keys {
			if walked[k] {
				continue
			}
			walked[k] = true
			e, ok := g.nodes[k]
			if !ok {
				continue
			}
			if !predicate(e.n, e.state) {
				continue
			}
			out = append(out, WalkEntry{Node: e.n, State: e.state})
			var next map[string]struct{}
			if dependents {
				next = e.dependents
			} else {
				next = e.dependencies
			}
			keys2 := make([]string, 0, len(next))
			for k2 := range next {
				keys2 = append(keys2, k2)
			}
			visit(keys2)
		}
	}
	rootKeys := make([]string, 0, len(roots))
	for _, r := range roots {
		rootKeys = append(rootKeys, r.Key())
	}
	visit(rootKeys)
	return out
}

// WalkEntry is one (node, state) pair produced by Walk.
type WalkEntry struct {
	Node  node.Node
	State node.State
}
