// Package selector implements the request algebra: the expressions a task
// or a root request uses to describe what it needs, independent of how
// those needs get resolved into graph nodes (that translation lives in
// package node).
package selector

import "github.com/polyweave/polyweave/internal/subject"

// Selector is a request expression. The five concrete kinds below are the
// full algebra; there is no extension point because the node construction
// in package node switches on concrete type.
type Selector interface {
	isSelector()
}

// Select requests product for the current subject.
type Select struct {
	Product subject.Product
}

func (Select) isSelector() {}

// SelectVariant is like Select but parameterized by a named variant key.
type SelectVariant struct {
	Product    subject.Product
	VariantKey string
}

func (SelectVariant) isSelector() {}

// SelectDependencies first obtains DepsProduct from the current subject,
// treats it as an iterable whose Field yields sub-subjects, and requests
// Product from each of them. The result is the ordered list of those
// per-element results.
type SelectDependencies struct {
	Product     subject.Product
	DepsProduct subject.Product
	Field       string
}

func (SelectDependencies) isSelector() {}

// SelectProjection obtains InputProduct, projects Fields from it to
// synthesize a new subject of ProjectedType, and requests Product from
// that synthesized subject.
type SelectProjection struct {
	Product       subject.Product
	ProjectedType string
	Fields        []string
	InputProduct  subject.Product
}

func (SelectProjection) isSelector() {}

// SelectLiteral requests Product from a fixed literal subject, ignoring
// whatever subject the selector clause is otherwise being evaluated for.
type SelectLiteral struct {
	Subject subject.Subject
	Product subject.Product
}

func (SelectLiteral) isSelector() {}

// Clause is an ordered AND of selectors, e.g. the inputs a task declares.
// Results are combined preserving this order.
type Clause []Selector
