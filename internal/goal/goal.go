// Package goal implements the exposed execution-request surface:
// translating named goals and subjects into scheduler root nodes.
package goal

import (
	"fmt"
	"sort"

	"github.com/polyweave/polyweave/internal/node"
	"github.com/polyweave/polyweave/internal/scheduler"
	"github.com/polyweave/polyweave/internal/subject"
)

// ErrUnknownGoal is returned when a goal name has no registered product.
var ErrUnknownGoal = fmt.Errorf("unknown goal")

// GoalMap is the host-provided {goal_name -> product_type} mapping
// build_request translates against.
type GoalMap map[string]subject.Product

// BuildRequest translates named goals and subjects into root nodes, one
// per (subject, product) pair, and wraps them in a fresh ExecutionRequest.
func BuildRequest(goals []string, subjects []subject.Subject, goalMap GoalMap) (*scheduler.ExecutionRequest, error) {
	products := make([]subject.Product, 0, len(goals))
	for _, g := range goals {
		p, ok := goalMap[g]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGoal, g)
		}
		products = append(products, p)
	}
	return ExecutionRequest(products, subjects)
}

// ExecutionRequest builds the root node set for every (subject, product)
// pair and wraps it in a fresh ExecutionRequest.
func ExecutionRequest(products []subject.Product, subjects []subject.Subject) (*scheduler.ExecutionRequest, error) {
	var roots []node.Node
	for _, subj := range subjects {
		for _, p := range products {
			root, err := scheduler.BuildRoot(subj, p)
			if err != nil {
				return nil, err
			}
			roots = append(roots, root)
		}
	}
	return scheduler.NewExecutionRequest(roots), nil
}

// ListGoals returns the goal names declared in m, used by the CLI's
// list-goals command.
func ListGoals(m GoalMap) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
