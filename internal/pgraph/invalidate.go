package pgraph

import (
	"github.com/polyweave/polyweave/internal/node"
	"github.com/polyweave/polyweave/internal/subject"
)

// Invalidate deletes every node matching predicate, plus every node that
// transitively depends on one (their computed state is no longer trustworthy
// once an input they consumed is gone), severing the dependent's own
// dependency edges first so no entry is left pointing at a deleted node.
// It returns the number of nodes removed.
func (g *Graph) Invalidate(predicate func(node.Node, node.State) bool) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	roots := make([]string, 0)
	for k, e := range g.nodes {
		if predicate(e.n, e.state) {
			roots = append(roots, k)
		}
	}
	if len(roots) == 0 {
		return 0
	}

	doomed := make(map[string]bool)
	var mark func(k string)
	mark = func(k string) {
		if doomed[k] {
			return
		}
		doomed[k] = true
		e, ok := g.nodes[k]
		if !ok {
			return
		}
		for dk := range e.dependents {
			mark(dk)
		}
	}
	for _, k := range roots {
		mark(k)
	}

	for k := range doomed {
		g.severDependents(k)
	}
	for k := range doomed {
		delete(g.nodes, k)
	}
	return len(doomed)
}

// severDependents removes k from the dependents set of every node k
// currently depends on, so deleting k afterward leaves no dangling forward
// reference.
func (g *Graph) severDependents(k string) {
	e, ok := g.nodes[k]
	if !ok {
		return
	}
	for dk := range e.dependencies {
		if de, ok := g.nodes[dk]; ok {
			delete(de.dependents, k)
		}
	}
}

// InvalidateFiles invalidates every FilesystemNode whose subject is among
// the subjects generated for one of paths, plus their transitive dependents.
// generateSubjects expands a changed path into the subjects that must be
// invalidated, typically the path itself plus each containing directory,
// so that a changed file also invalidates the FilesystemNode that listed
// its parent directory, not just the file's own node.
func (g *Graph) InvalidateFiles(paths []string, generateSubjects func(path string) []subject.Subject) int {
	changed := make(map[string]bool)
	for _, p := range paths {
		for _, s := range generateSubjects(p) {
			changed[s.CacheKey()] = true
		}
	}
	return g.Invalidate(func(n node.Node, _ node.State) bool {
		if _, ok := n.(node.FilesystemNode); !ok {
			return false
		}
		return changed[n.Subject().CacheKey()]
	})
}
