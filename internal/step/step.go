// Package step implements the per-node-variant step function: given
// a node, the currently available states of its declared dependencies, and
// a stepctx.Context, it computes the node's next State.
package step

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"

	"github.com/polyweave/polyweave/internal/node"
	"github.com/polyweave/polyweave/internal/stepctx"
	"github.com/polyweave/polyweave/internal/subject"
)

// States is a lookup of dependency states keyed by Node.Key(), the shape
// the scheduler hands to Step (nodes are not comparable map keys once a
// variant embeds a slice field).
type States map[string]node.State

// Get returns the recorded state for n, or nil if n has never been stepped.
func (s States) Get(n node.Node) node.State { return s[n.Key()] }

// Run computes the next State of n, dispatching on its concrete type.
func Run(ctx context.Context, n node.Node, deps States, sc *stepctx.Context) node.State {
	switch v := n.(type) {
	case node.SelectNode:
		return selectStep(v, deps, sc)
	case node.DependenciesNode:
		return dependenciesStep(ctx, v, deps, sc)
	case node.ProjectionNode:
		return projectionStep(v, deps, sc)
	case node.TaskNode:
		return taskStep(v, deps, sc)
	case node.FilesystemNode:
		return filesystemStep(ctx, v, sc)
	default:
		return node.Throw{Err: node.ErrUnknownKind}
	}
}

// selectLike builds the node a plain product request from subj resolves
// through: a FilesystemNode when the (subject-kind, product) pair is native
// to the filesystem collaborator, a SelectNode otherwise. This is the same
// dispatch node.Construct applies to Select selectors.
func selectLike(subj subject.Subject, prod subject.Product, vars subject.Variants, sc *stepctx.Context) node.Node {
	if sc.Natives.Has(subj.Kind(), prod) {
		return node.FilesystemNode{Subj: subj, Prod: prod, Vars: vars}
	}
	return node.SelectNode{Subj: subj, Prod: prod, Vars: vars}
}

func selectStep(n node.SelectNode, deps States, sc *stepctx.Context) node.State {
	variantValue := ""
	if n.VariantKey != "" {
		v, ok := n.Vars.Get(n.VariantKey)
		if !ok {
			return node.Noop{Reason: fmt.Sprintf("no variant value configured for key %q", n.VariantKey)}
		}
		variantValue = v
	}

	candidates := node.CandidateTaskNodes(sc.Tasks, n.Subj, n.Prod, n.Vars)
	if len(candidates) == 0 {
		return node.Noop{Reason: node.ErrNoMatch.Error()}
	}

	var returns []node.TaskNode
	waiting := make([]node.Node, 0)
	allTerminal := true
	for _, c := range candidates {
		st := deps.Get(c)
		if st == nil || !st.Terminal() {
			allTerminal = false
			waiting = append(waiting, c)
			continue
		}
		if ret, ok := st.(node.Return); ok {
			// A variant-keyed select only accepts candidates whose value
			// names itself after the configured variant value.
			if n.VariantKey != "" {
				name, named := variantName(ret.Value)
				if !named || name != variantValue {
					continue
				}
			}
			returns = append(returns, c)
		}
	}

	switch len(returns) {
	case 1:
		return deps.Get(returns[0])
	case 0:
		if !allTerminal {
			return node.Waiting{Deps: waiting}
		}
		return node.Noop{Reason: node.ErrNoMatch.Error()}
	default:
		ids := make([]string, len(returns))
		for i, c := range returns {
			ids[i] = c.TaskID
		}
		return node.Throw{Err: &node.AmbiguousError{Product: string(n.Prod), Candidates: ids}}
	}
}

// variantName reads the name a product value advertises for variant
// matching: a VariantName() method when the value provides one, otherwise
// a string field literally called Name.
func variantName(value any) (string, bool) {
	type named interface{ VariantName() string }
	if n, ok := value.(named); ok {
		return n.VariantName(), true
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", false
	}
	f := v.FieldByName("Name")
	if !f.IsValid() || f.Kind() != reflect.String {
		return "", false
	}
	return f.String(), true
}

func dependenciesStep(ctx context.Context, n node.DependenciesNode, deps States, sc *stepctx.Context) node.State {
	depsProductNode := selectLike(n.Subj, n.DepsProduct, n.Vars, sc)
	dpState := deps.Get(depsProductNode)
	if dpState == nil || !dpState.Terminal() {
		return node.Waiting{Deps: []node.Node{depsProductNode}}
	}
	switch st := dpState.(type) {
	case node.Throw:
		return st
	case node.Noop:
		return st
	}
	ret, ok := dpState.(node.Return)
	if !ok {
		return node.Throw{Err: node.ErrUnknownKind}
	}

	elems, err := sc.Fields.ExtractField(ret.Value, n.Field)
	if err != nil {
		return node.Throw{Err: err}
	}

	elemNodes := make([]node.Node, len(elems))
	for i, e := range elems {
		elemNodes[i] = selectLike(e, n.Prod, n.Vars, sc)
	}

	var waiting []node.Node
	values := make([]any, len(elemNodes))
	for i, en := range elemNodes {
		st := deps.Get(en)
		if st == nil || !st.Terminal() {
			waiting = append(waiting, en)
			continue
		}
		switch s := st.(type) {
		case node.Throw:
			return s
		case node.Noop:
			return s
		case node.Return:
			values[i] = s.Value
		}
	}
	if len(waiting) > 0 {
		return node.Waiting{Deps: waiting}
	}
	return node.Return{Value: values}
}

func projectionStep(n node.ProjectionNode, deps States, sc *stepctx.Context) node.State {
	inputNode := selectLike(n.Subj, n.InputProduct, n.Vars, sc)
	inputState := deps.Get(inputNode)
	if inputState == nil || !inputState.Terminal() {
		return node.Waiting{Deps: []node.Node{inputNode}}
	}
	switch st := inputState.(type) {
	case node.Throw, node.Noop:
		return st
	}
	ret := inputState.(node.Return)

	projected, err := sc.Projector.Project(n.ProjectedType, n.Fields, ret.Value)
	if err != nil {
		return node.Throw{Err: err}
	}

	projNode := selectLike(projected, n.Prod, n.Vars, sc)
	projState := deps.Get(projNode)
	if projState == nil || !projState.Terminal() {
		return node.Waiting{Deps: []node.Node{projNode}}
	}
	return projState
}

func taskStep(n node.TaskNode, deps States, sc *stepctx.Context) node.State {
	clauseNodes := make([]node.Node, len(n.Clause))
	for i, sel := range n.Clause {
		cn, err := node.Construct(sel, n.Subj, n.Vars, sc.Natives)
		if err != nil {
			return node.Throw{Err: err}
		}
		clauseNodes[i] = cn
	}

	var waiting []node.Node
	values := make([]any, len(clauseNodes))
	for i, cn := range clauseNodes {
		st := deps.Get(cn)
		if st == nil || !st.Terminal() {
			waiting = append(waiting, cn)
			continue
		}
		switch s := st.(type) {
		case node.Throw:
			return s
		case node.Noop:
			return s
		case node.Return:
			values[i] = s.Value
		}
	}
	if len(waiting) > 0 {
		return node.Waiting{Deps: waiting}
	}

	task, ok := sc.Tasks.Lookup(n.TaskID)
	if !ok {
		return node.Throw{Err: node.ErrUnknownKind}
	}
	result, err := task.Invoke(values)
	if err != nil {
		return node.Throw{Err: &node.TaskFailureError{TaskID: n.TaskID, Cause: err}}
	}
	return node.Return{Value: result}
}

// Products the filesystem collaborator serves over Address subjects.
// Hosts register these via node.NewFilesystemNatives; any other product
// requested from an Address resolves to the directory listing.
const (
	ProductDirEntries  = subject.Product("DirEntries")
	ProductFileContent = subject.Product("FileContent")
)

func filesystemStep(ctx context.Context, n node.FilesystemNode, sc *stepctx.Context) node.State {
	switch subj := n.Subj.(type) {
	case subject.PathGlobs:
		results, err := sc.FS.ExpandGlobs(ctx, subj.Globs, subj.FileType)
		if err != nil {
			return node.Throw{Err: err}
		}
		return node.Return{Value: results}
	case subject.Address:
		if n.Prod == ProductFileContent {
			data, err := sc.FS.FileContent(ctx, addressPath(subj))
			if err != nil {
				return node.Throw{Err: err}
			}
			return node.Return{Value: data}
		}
		entries, err := sc.FS.DirEntries(ctx, subj.Path)
		if err != nil {
			return node.Throw{Err: err}
		}
		sort.Strings(entries)
		return node.Return{Value: entries}
	default:
		return node.Noop{Reason: node.ErrNoMatch.Error()}
	}
}

// addressPath joins an Address back into the filesystem path it names: the
// directory alone when Name is empty, the contained entry otherwise.
func addressPath(a subject.Address) string {
	if a.Name == "" {
		return a.Path
	}
	return filepath.Join(a.Path, a.Name)
}
