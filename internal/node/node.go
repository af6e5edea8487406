// Package node defines the memoization key of the product graph: the
// concrete Node variants, their structural identity, and the construction
// that turns a (selector, subject, variants) triple into the single node
// it denotes.
package node

import (
	"fmt"
	"strings"

	"github.com/polyweave/polyweave/internal/selector"
	"github.com/polyweave/polyweave/internal/subject"
)

// Node is the memoization key: one concrete request. Nodes are immutable
// value types; identity is the full structural tuple, exposed as Key for
// use as a map key (Go does not let us key maps on interface values that
// embed slices, so every variant below is built to flatten cleanly to a
// string).
type Node interface {
	// Key returns the canonical, structurally-unique identity of this node.
	Key() string
	// Subject returns the subject this node computes a product for.
	Subject() subject.Subject
	// Product returns the product type this node computes.
	Product() subject.Product
	// Variants returns the variant context this node was requested under.
	Variants() subject.Variants
}

func keyOf(kind string, s subject.Subject, p subject.Product, v subject.Variants, extra string) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('|')
	b.WriteString(s.CacheKey())
	b.WriteByte('|')
	b.WriteString(string(p))
	b.WriteByte('|')
	b.WriteString(v.CacheKey())
	if extra != "" {
		b.WriteByte('|')
		b.WriteString(extra)
	}
	return b.String()
}

// SelectNode requests Product for Subj, optionally narrowed to a single
// named variant (VariantKey == "" means Select, non-empty means
// SelectVariant).
type SelectNode struct {
	Subj       subject.Subject
	Prod       subject.Product
	Vars       subject.Variants
	VariantKey string
}

func (n SelectNode) Key() string                 { return keyOf("select", n.Subj, n.Prod, n.Vars, n.VariantKey) }
func (n SelectNode) Subject() subject.Subject     { return n.Subj }
func (n SelectNode) Product() subject.Product     { return n.Prod }
func (n SelectNode) Variants() subject.Variants   { return n.Vars }

// DependenciesNode requests DepsProduct for Subj, extracts Field as an
// ordered list of sub-subjects, and requests Product from each.
type DependenciesNode struct {
	Subj        subject.Subject
	Prod        subject.Product
	Vars        subject.Variants
	DepsProduct subject.Product
	Field       string
}

func (n DependenciesNode) Key() string {
	return keyOf("deps", n.Subj, n.Prod, n.Vars, string(n.DepsProduct)+"/"+n.Field)
}
func (n DependenciesNode) Subject() subject.Subject   { return n.Subj }
func (n DependenciesNode) Product() subject.Product   { return n.Prod }
func (n DependenciesNode) Variants() subject.Variants { return n.Vars }

// ProjectionNode requests InputProduct for Subj, projects Fields into a
// synthetic subject of ProjectedType, and requests Product from it.
type ProjectionNode struct {
	Subj          subject.Subject
	Prod          subject.Product
	Vars          subject.Variants
	ProjectedType string
	Fields        []string
	InputProduct  subject.Product
}

func (n ProjectionNode) Key() string {
	return keyOf("proj", n.Subj, n.Prod, n.Vars, n.ProjectedType+"/"+strings.Join(n.Fields, ",")+"/"+string(n.InputProduct))
}
func (n ProjectionNode) Subject() subject.Subject   { return n.Subj }
func (n ProjectionNode) Product() subject.Product   { return n.Prod }
func (n ProjectionNode) Variants() subject.Variants { return n.Vars }

// TaskNode is a candidate production of Prod for Subj by the task
// identified by TaskID, whose declared inputs are Clause.
type TaskNode struct {
	Subj   subject.Subject
	Prod   subject.Product
	Vars   subject.Variants
	TaskID string
	Clause selector.Clause
}

func (n TaskNode) Key() string                 { return keyOf("task", n.Subj, n.Prod, n.Vars, n.TaskID) }
func (n TaskNode) Subject() subject.Subject     { return n.Subj }
func (n TaskNode) Product() subject.Product     { return n.Prod }
func (n TaskNode) Variants() subject.Variants   { return n.Vars }

// FilesystemNode is handled natively by the filesystem collaborator rather
// than by any registered task.
type FilesystemNode struct {
	Subj subject.Subject
	Prod subject.Product
	Vars subject.Variants
}

func (n FilesystemNode) Key() string                 { return keyOf("fs", n.Subj, n.Prod, n.Vars, "") }
func (n FilesystemNode) Subject() subject.Subject     { return n.Subj }
func (n FilesystemNode) Product() subject.Product     { return n.Prod }
func (n FilesystemNode) Variants() subject.Variants   { return n.Vars }

// String renders a short debug form, used by the visualizer and error
// messages; it is not part of node identity.
func String(n Node) string {
	return fmt.Sprintf("%T(%s, %s, %s)", n, n.Subject().CacheKey(), n.Product(), n.Variants().CacheKey())
}
