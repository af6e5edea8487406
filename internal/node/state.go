package node

import "fmt"

// State is the result of advancing a node by one step. Return, Throw and
// Noop are terminal; Waiting is not.
type State interface {
	isState()
	// Terminal reports whether this state is final (Return, Throw, or Noop).
	Terminal() bool
}

// Return is a terminal success state carrying a typed value. The value is
// intentionally untyped (any) at the graph boundary; callers recover the
// concrete type via the product-type descriptor they requested.
type Return struct {
	Value any
}

func (Return) isState()        {}
func (Return) Terminal() bool  { return true }

// Throw is a terminal failure state.
type Throw struct {
	Err error
}

func (Throw) isState()       {}
func (Throw) Terminal() bool { return true }

func (t Throw) Error() string { return t.Err.Error() }

// Noop is a terminal, non-productive state: no task matched, or a
// dependency edge was dropped because it would have closed a cycle.
type Noop struct {
	Reason string
}

func (Noop) isState()       {}
func (Noop) Terminal() bool { return true }

// Waiting is a non-terminal state declaring the edges required before the
// node can be stepped again.
type Waiting struct {
	Deps []Node
}

func (Waiting) isState()       {}
func (Waiting) Terminal() bool { return false }

func (s Return) String() string { return fmt.Sprintf("Return(%v)", s.Value) }
func (s Throw) String() string  { return fmt.Sprintf("Throw(%v)", s.Err) }
func (s Noop) String() string   { return fmt.Sprintf("Noop(%s)", s.Reason) }
func (s Waiting) String() string {
	return fmt.Sprintf("Waiting(%d deps)", len(s.Deps))
}
