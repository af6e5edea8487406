// Package visualize renders a walk of the Product Graph as a Graphviz DOT
// description, one line at a time.
package visualize

import (
	"fmt"
	"io"
	"sort"

	"github.com/polyweave/polyweave/internal/node"
	"github.com/polyweave/polyweave/internal/pgraph"
)

// Options controls rendering. The zero value renders every non-Noop node
// reachable from the roots, which matches the default walk predicate.
type Options struct {
	// IncludeNoop, when true, keeps Noop-rooted subgraphs in the render
	// instead of omitting them.
	IncludeNoop bool
}

// Render writes a DOT digraph of the subgraph reachable from roots to w.
func Render(w io.Writer, g *pgraph.Graph, roots []node.Node, opts Options) error {
	var predicate func(node.Node, node.State) bool
	if opts.IncludeNoop {
		predicate = func(node.Node, node.State) bool { return true }
	}

	entries := g.Walk(roots, predicate, false)

	fmt.Fprintln(w, "digraph product_graph {")
	fmt.Fprintln(w, "  rankdir=LR;")

	byKey := make(map[string]pgraph.WalkEntry, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		k := e.Node.Key()
		byKey[k] = e
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e := byKey[k]
		fmt.Fprintf(w, "  %q [label=%q, style=filled, fillcolor=%q];\n",
			k, label(e.Node), color(e.Node, e.State))
	}
	for _, k := range keys {
		e := byKey[k]
		deps := g.DependenciesOf(e.Node)
		sort.Slice(deps, func(i, j int) bool { return deps[i].Key() < deps[j].Key() })
		for _, d := range deps {
			if _, ok := byKey[d.Key()]; !ok {
				continue
			}
			fmt.Fprintf(w, "  %q -> %q;\n", k, d.Key())
		}
		cyclic := g.CyclicDependenciesOf(e.Node)
		sort.Slice(cyclic, func(i, j int) bool { return cyclic[i].Key() < cyclic[j].Key() })
		for _, d := range cyclic {
			fmt.Fprintf(w, "  %q -> %q [color=red, style=dashed, label=\"cycle\"];\n", k, d.Key())
		}
	}

	fmt.Fprintln(w, "}")
	return nil
}

func label(n node.Node) string {
	return fmt.Sprintf("%s\\n%s", n.Product(), n.Subject().CacheKey())
}

// color assigns a fill colour: red for Throw, white for Noop,
// otherwise a stable colour keyed by product type so distinct product
// types are visually distinguishable.
func color(n node.Node, s node.State) string {
	switch s.(type) {
	case node.Throw:
		return "red"
	case node.Noop:
		return "white"
	}
	return productColor(string(n.Product()))
}

var palette = []string{
	"lightblue", "lightgreen", "khaki", "plum", "lightsalmon", "lightgray", "lightpink",
}

func productColor(product string) string {
	var h uint32
	for i := 0; i < len(product); i++ {
		h = h*31 + uint32(product[i])
	}
	return palette[h%uint32(len(palette))]
}
