package pgraph

import (
	"math"

	"github.com/polyweave/polyweave/internal/node"
)

// deltaBound computes delta = min(m^(1/2), n^(2/3)) for the current node
// count n and edge count m, the traversal budget the backward search in
// detectCycle is allowed before it must lift levels instead of continuing
// to search for a literal cycle.
func deltaBound(n, m int) int {
	if n == 0 {
		return 0
	}
	a := math.Sqrt(float64(m))
	b := math.Pow(float64(n), 2.0/3.0)
	d := a
	if b < d {
		d = b
	}
	if d < 1 {
		d = 1
	}
	return int(d)
}

// detectCycle implements the incremental cycle detector of Bender,
// Fineman, Gilbert and Tarjan for sparse graphs. It reports whether
// accepting the edge v -> w (v depends on w) would close a directed
// cycle.
//
// Level lifts are simulated in a scratch map and committed to the real
// entries only once the probe confirms the edge is acyclic, so a
// rejected edge leaves every level untouched and the pseudo-topological
// order stays valid across repeated insertions.
//
// Must be called with g.mu already held.
func (g *Graph) detectCycle(v, w node.Node) bool {
	vk, wk := v.Key(), w.Key()

	n := len(g.nodes) + 1 // +1: w (and possibly v) may not have an entry yet
	m := 0
	for _, e := range g.nodes {
		m += len(e.dependencies)
	}
	delta := deltaBound(n, m)

	levels := make(map[string]int)
	levelOf := func(k string) int {
		if lv, ok := levels[k]; ok {
			return lv
		}
		if e, ok := g.nodes[k]; ok {
			levels[k] = e.level
			return e.level
		}
		levels[k] = 1
		return 1
	}

	lv := levelOf(vk)
	lw := levelOf(wk)

	// Step 1 / 4: a strictly smaller level on v than w already proves no
	// cycle, since levels are a valid pseudo-topological order.
	if lv < lw {
		return false
	}

	// Step 2: backward search from v, restricted to nodes at level[v].
	b := make(map[string]bool)
	visited := make(map[string]bool)
	queue := []string{vk}
	traversed := 0
	cycle := false

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if levelOf(cur) != lv {
			// Predicate fails: don't expand past this node (mirrors the
			// source walk, which never recurses into a node whose
			// predicate failed).
			continue
		}
		if cur == wk {
			cycle = true
			break
		}
		b[cur] = true
		traversed++
		if traversed >= delta {
			break
		}
		if e, ok := g.nodes[cur]; ok {
			for dk := range e.dependents {
				if !visited[dk] {
					queue = append(queue, dk)
				}
			}
		}
	}

	if cycle {
		return true
	}

	if traversed < delta {
		if lv == levelOf(wk) {
			// Case B: levels already consistent; no cycle.
			return false
		}
		// Case C: lift w up to v's level and fall through to the forward
		// search.
		levels[wk] = lv
	} else {
		// Case D: exhausted the traversal budget without a definitive
		// answer; lift w above v and restrict the forward search's
		// rejection set to {v}.
		levels[wk] = lv + 1
		b = map[string]bool{vk: true}
	}

	// Step 3: forward search from w, along existing dependency edges,
	// lifting levels that are now stale. An explicit stack rather than
	// recursion keeps memory bounded on deep graphs.
	stack := []string{wk}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e, ok := g.nodes[x]
		if !ok {
			continue
		}
		for y := range e.dependencies {
			if b[y] {
				return true
			}
			if levelOf(x) > levelOf(y) {
				levels[y] = levelOf(x)
				stack = append(stack, y)
			}
		}
	}

	// Commit the level lifts now that the edge is confirmed acyclic.
	for k, lv := range levels {
		e := g.getOrCreate(nodeOrPlaceholder(g, k, v, w))
		if e.level < lv {
			e.level = lv
		}
	}
	return false
}

// nodeOrPlaceholder resolves k back to the Node value needed to create an
// entry that doesn't exist yet; k is always v's or w's key in the only
// caller (detectCycle), since every other key already has an entry.
func nodeOrPlaceholder(g *Graph, k string, v, w node.Node) node.Node {
	if e, ok := g.nodes[k]; ok {
		return e.n
	}
	if k == v.Key() {
		return v
	}
	return w
}
