package node

import (
	"github.com/polyweave/polyweave/internal/selector"
	"github.com/polyweave/polyweave/internal/subject"
)

// TaskEntry is one (task_id, selector_clause) pair registered to produce a
// product, carried in registration order.
type TaskEntry struct {
	TaskID string
	Clause selector.Clause
}

// Task is the callable a TaskNode invokes once every selector in its
// clause has resolved to a terminal Return. Inputs are positional, in the
// same order as the clause that declared them.
type Task interface {
	Invoke(inputs []any) (any, error)
}

// TaskIndex is the task registry built once from the task registration
// collection: a mapping product -> ordered set of (task_id,
// selector_clause), plus the task_id -> callable lookup TaskNode.step
// needs to actually invoke a matched task. CandidatesFor preserves
// registration order, which is the order a SelectNode enumerates its
// candidates in; it is not a tie-break: when more than one candidate
// returns, the SelectNode throws an AmbiguousError.
type TaskIndex struct {
	byProduct map[subject.Product][]TaskEntry
	byID      map[string]Task
}

// NewTaskIndex returns an empty index.
func NewTaskIndex() *TaskIndex {
	return &TaskIndex{
		byProduct: make(map[subject.Product][]TaskEntry),
		byID:      make(map[string]Task),
	}
}

// Register adds one (task_id, clause, callable) triple producing product,
// in call order.
func (ti *TaskIndex) Register(product subject.Product, taskID string, clause selector.Clause, task Task) {
	ti.byProduct[product] = append(ti.byProduct[product], TaskEntry{TaskID: taskID, Clause: clause})
	ti.byID[taskID] = task
}

// Lookup returns the callable registered under taskID.
func (ti *TaskIndex) Lookup(taskID string) (Task, bool) {
	t, ok := ti.byID[taskID]
	return t, ok
}

// CandidatesFor returns the registered producers of product, in
// registration order.
func (ti *TaskIndex) CandidatesFor(product subject.Product) []TaskEntry {
	return ti.byProduct[product]
}

// FilesystemNatives is the fixed set of (subject-kind, product) pairs the
// filesystem collaborator handles natively, bypassing the task index.
type FilesystemNatives map[nativeKey]bool

type nativeKey struct {
	SubjectKind string
	Product     subject.Product
}

// NewFilesystemNatives builds a native set from (kind, product) pairs.
func NewFilesystemNatives(pairs ...[2]string) FilesystemNatives {
	fn := make(FilesystemNatives, len(pairs))
	for _, p := range pairs {
		fn[nativeKey{SubjectKind: p[0], Product: subject.Product(p[1])}] = true
	}
	return fn
}

// Has reports whether (kind, product) is handled natively.
func (fn FilesystemNatives) Has(kind string, product subject.Product) bool {
	return fn[nativeKey{SubjectKind: kind, Product: product}]
}

// Construct builds the node denoted by a (selector, subject,
// variants) triple. For Select/SelectVariant it yields a SelectNode,
// unless the (subject-kind, product) pair is native to the filesystem
// collaborator, in which case it yields a FilesystemNode instead.
func Construct(sel selector.Selector, subj subject.Subject, vars subject.Variants, natives FilesystemNatives) (Node, error) {
	switch s := sel.(type) {
	case selector.Select:
		return constructSelectLike(s.Product, "", subj, vars, natives), nil
	case selector.SelectVariant:
		return constructSelectLike(s.Product, s.VariantKey, subj, vars, natives), nil
	case selector.SelectDependencies:
		return DependenciesNode{Subj: subj, Prod: s.Product, Vars: vars, DepsProduct: s.DepsProduct, Field: s.Field}, nil
	case selector.SelectProjection:
		return ProjectionNode{Subj: subj, Prod: s.Product, Vars: vars, ProjectedType: s.ProjectedType, Fields: s.Fields, InputProduct: s.InputProduct}, nil
	case selector.SelectLiteral:
		// The literal subject replaces the incoming one entirely; variants
		// do not carry across since the literal denotes an unrelated request.
		return constructSelectLike(s.Product, "", s.Subject, nil, natives), nil
	default:
		return nil, ErrUnknownKind
	}
}

func constructSelectLike(product subject.Product, variantKey string, subj subject.Subject, vars subject.Variants, natives FilesystemNatives) Node {
	if natives.Has(subj.Kind(), product) {
		return FilesystemNode{Subj: subj, Prod: product, Vars: vars}
	}
	return SelectNode{Subj: subj, Prod: product, Vars: vars, VariantKey: variantKey}
}

// CandidateTaskNodes builds one TaskNode per registered producer of
// (subject, product), in registration order. It does not consult the
// native filesystem set; a native pair requested through Construct becomes
// a FilesystemNode rather than a SelectNode and so never reaches here.
func CandidateTaskNodes(ti *TaskIndex, subj subject.Subject, product subject.Product, vars subject.Variants) []TaskNode {
	entries := ti.CandidatesFor(product)
	out := make([]TaskNode, 0, len(entries))
	for _, e := range entries {
		out = append(out, TaskNode{Subj: subj, Prod: product, Vars: vars, TaskID: e.TaskID, Clause: e.Clause})
	}
	return out
}
