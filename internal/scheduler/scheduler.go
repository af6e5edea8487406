// Package scheduler drives a Product Graph to completion: it turns ready
// nodes into step requests, accepts step results from a caller-supplied
// worker pool, and re-queues candidates until every root is terminal.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/polyweave/polyweave/internal/node"
	"github.com/polyweave/polyweave/internal/pgraph"
	"github.com/polyweave/polyweave/internal/plugin"
	"github.com/polyweave/polyweave/internal/step"
	"github.com/polyweave/polyweave/internal/stepctx"
	"github.com/polyweave/polyweave/internal/subject"
)

// StepRequest is an immutable unit of work handed to the caller's worker
// pool: step n given the terminal states of its current dependencies.
type StepRequest struct {
	ID   uint64
	Node node.Node
	Deps step.States
}

// StepResult is what a worker reports back after computing a StepRequest.
type StepResult struct {
	ID    uint64
	Node  node.Node
	State node.State
}

// ExecutionRequest is a single root set to drive to completion.
type ExecutionRequest struct {
	ID    string
	Roots []node.Node
}

// NewExecutionRequest wraps roots with a fresh request id.
func NewExecutionRequest(roots []node.Node) *ExecutionRequest {
	return &ExecutionRequest{ID: uuid.NewString(), Roots: roots}
}

// outstandingEntry records the step request in flight for a node until
// complete applies its result.
type outstandingEntry struct {
	req StepRequest
}

// Scheduler is the single-writer loop over one Product Graph. A
// Scheduler is not reusable across concurrent Run calls: each Run drains
// its own candidate set, though the underlying Graph may be shared and
// invalidated concurrently (invalidation takes the graph's own mutex).
type Scheduler struct {
	graph   *pgraph.Graph
	stepCtx *stepctx.Context
	hooks   plugin.LifecycleHooks

	mu          sync.Mutex
	nextStepID  uint64
	candidates  map[string]node.Node
	outstanding map[string]outstandingEntry
}

// New builds a Scheduler over graph, using stepCtx to compute steps and
// enumerate a node's declared dependencies. hooks may be nil, in which
// case no lifecycle hooks fire.
func New(graph *pgraph.Graph, stepCtx *stepctx.Context, hooks plugin.LifecycleHooks) *Scheduler {
	if hooks == nil {
		hooks = plugin.NopLifecycleHooks{}
	}
	return &Scheduler{
		graph:       graph,
		stepCtx:     stepCtx,
		hooks:       hooks,
		candidates:  make(map[string]node.Node),
		outstanding: make(map[string]outstandingEntry),
	}
}

// Worker executes a StepRequest and returns its StepResult. The caller
// supplies an implementation; steps of distinct nodes may run concurrently.
type Worker func(ctx context.Context, req StepRequest) StepResult

// Run drives req to completion, dispatching each batch of ready step
// requests to pool with bounded concurrency, until no candidates remain
// and nothing is outstanding.
func (s *Scheduler) Run(ctx context.Context, req *ExecutionRequest, pool Worker, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	s.mu.Lock()
	for _, r := range req.Roots {
		s.candidates[r.Key()] = r
	}
	s.mu.Unlock()

	for {
		batch := s.drainReady()
		if len(batch) == 0 {
			if s.outstandingEmpty() {
				return nil
			}
			// Every remaining candidate is blocked on a dependency that is
			// itself still pending in this same run; since Run dispatches
			// and completes batches synchronously, nothing outside this
			// loop can unblock them. That's a scheduler bug, not a normal
			// suspension point (those only happen between Run calls).
			return fmt.Errorf("scheduler stalled with %d candidates pending and none ready", s.pendingCount())
		}

		s.hooks.BeforeBatch(ctx, len(batch))
		results := s.runBatch(ctx, batch, pool, concurrency)
		s.hooks.AfterBatch(ctx, len(batch))
		for _, res := range results {
			if err := s.complete(res); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

// runBatch dispatches a batch of step requests across up to concurrency
// goroutines and collects their results in request order. A step never
// itself fails the batch (worker errors surface as a Throw state), so
// the errgroup here is used purely for its SetLimit-bounded fan-out.
func (s *Scheduler) runBatch(ctx context.Context, batch []StepRequest, pool Worker, concurrency int) []StepResult {
	results := make([]StepResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range batch {
		i, req := i, req
		g.Go(func() error {
			s.hooks.BeforeStep(gctx, req.Node.Key())
			res := pool(gctx, req)
			s.hooks.AfterStep(gctx, req.Node.Key(), res.State.Terminal())
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// drainReady builds StepRequests for every candidate whose dependencies
// are all terminal, removing them from candidates and moving them into
// outstanding. Candidates still missing a terminal dependency, or already
// outstanding/terminal, are skipped; they remain candidates for the next
// turn except when already terminal, in which case they're dropped.
func (s *Scheduler) drainReady() []StepRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []StepRequest
	for k, n := range s.candidates {
		if _, inFlight := s.outstanding[k]; inFlight {
			continue
		}
		if s.graph.IsComplete(n) {
			delete(s.candidates, k)
			continue
		}

		depStates, ok := s.collectDependencyStates(n)
		if !ok {
			// A dependency is still non-terminal; its own completion will
			// re-add n to candidates.
			continue
		}

		id := s.nextStepID
		s.nextStepID++
		r := StepRequest{ID: id, Node: n, Deps: depStates}
		ready = append(ready, r)
		delete(s.candidates, k)
		s.outstanding[k] = outstandingEntry{req: r}
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// collectDependencyStates returns the terminal states of n's current
// accepted dependency edges, plus synthesized Noop states for edges the
// cycle detector rejected, so a cycle manifests to the node as a
// non-productive dependency rather than a missing one. Returns ok=false
// if some accepted dependency is not yet terminal.
func (s *Scheduler) collectDependencyStates(n node.Node) (step.States, bool) {
	out := make(step.States)
	for _, dep := range s.graph.DependenciesOf(n) {
		st := s.graph.State(dep)
		if st == nil || !st.Terminal() {
			return nil, false
		}
		out[dep.Key()] = st
	}
	for _, dep := range s.graph.CyclicDependenciesOf(n) {
		out[dep.Key()] = node.Noop{Reason: (&node.CycleError{From: n, To: dep}).Error()}
	}
	return out, true
}

// complete applies one step result to the graph and re-queues whatever it
// unblocks.
func (s *Scheduler) complete(res StepResult) error {
	s.mu.Lock()
	delete(s.outstanding, res.Node.Key())
	s.mu.Unlock()

	if waiting, ok := res.State.(node.Waiting); ok {
		if err := s.graph.UpdateState(res.Node, waiting); err != nil {
			return err
		}
		// A declared dep whose edge the cycle detector rejected never
		// becomes a real dependency; the node observes a synthesised Noop
		// for it instead, so it must not count as pending or the node
		// would wait forever on an edge that does not exist.
		cyclic := make(map[string]bool)
		for _, d := range s.graph.CyclicDependenciesOf(res.Node) {
			cyclic[d.Key()] = true
		}
		s.mu.Lock()
		anyPending := false
		for _, d := range waiting.Deps {
			if cyclic[d.Key()] {
				continue
			}
			if !s.graph.IsComplete(d) {
				s.candidates[d.Key()] = d
				anyPending = true
			}
		}
		if !anyPending {
			s.candidates[res.Node.Key()] = res.Node
		}
		s.mu.Unlock()
		return nil
	}

	if err := s.graph.UpdateState(res.Node, res.State); err != nil {
		return err
	}
	s.mu.Lock()
	for _, dep := range s.graph.DependentsOf(res.Node) {
		s.candidates[dep.Key()] = dep
	}
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) outstandingEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding) == 0 && len(s.candidates) == 0
}

// DefaultWorker builds a Worker that computes each step synchronously via
// the step package, the shape a single-process deployment uses when it has
// no reason to hand work to a remote pool.
func DefaultWorker(sc *stepctx.Context) Worker {
	return func(ctx context.Context, req StepRequest) StepResult {
		st := step.Run(ctx, req.Node, req.Deps, sc)
		return StepResult{ID: req.ID, Node: req.Node, State: st}
	}
}

// RootEntries returns the {root -> state} mapping for req, for inspection
// once Run has returned.
func (s *Scheduler) RootEntries(req *ExecutionRequest) map[string]node.State {
	out := make(map[string]node.State, len(req.Roots))
	for _, r := range req.Roots {
		out[r.Key()] = s.graph.State(r)
	}
	return out
}

// BuildRoot translates a single (subject, product) pair into the root node
// the scheduler should track.
func BuildRoot(subj subject.Subject, product subject.Product) (node.Node, error) {
	switch s := subj.(type) {
	case subject.Address:
		return node.SelectNode{Subj: s, Prod: product}, nil
	case subject.AddressSet:
		return node.DependenciesNode{Subj: s, Prod: product, DepsProduct: "Addresses"}, nil
	case subject.PathGlobs:
		return node.DependenciesNode{Subj: s, Prod: product, DepsProduct: subject.Product(s.FileType)}, nil
	default:
		return nil, fmt.Errorf("%w: %T", node.ErrUnsupportedRoot, subj)
	}
}
