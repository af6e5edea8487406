package step

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyweave/polyweave/internal/node"
	"github.com/polyweave/polyweave/internal/selector"
	"github.com/polyweave/polyweave/internal/stepctx"
	"github.com/polyweave/polyweave/internal/subject"
)

type fnTask func(inputs []any) (any, error)

func (f fnTask) Invoke(inputs []any) (any, error) { return f(inputs) }

func newCtx(tasks *node.TaskIndex) *stepctx.Context {
	return &stepctx.Context{Tasks: tasks, Natives: node.NewFilesystemNatives()}
}

func TestSelectStepNoMatchIsNoop(t *testing.T) {
	sc := newCtx(node.NewTaskIndex())
	subj := subject.Address{Path: "a"}
	n := node.SelectNode{Subj: subj, Prod: "Compiled"}

	st := Run(context.Background(), n, States{}, sc)
	_, ok := st.(node.Noop)
	assert.True(t, ok)
}

func TestSelectStepWaitsOnCandidates(t *testing.T) {
	idx := node.NewTaskIndex()
	idx.Register("Compiled", "task-a", selector.Clause{}, fnTask(func([]any) (any, error) { return "ok", nil }))
	sc := newCtx(idx)
	subj := subject.Address{Path: "a"}
	n := node.SelectNode{Subj: subj, Prod: "Compiled"}

	st := Run(context.Background(), n, States{}, sc)
	w, ok := st.(node.Waiting)
	require.True(t, ok)
	require.Len(t, w.Deps, 1)
}

func TestSelectStepReturnsSingleMatch(t *testing.T) {
	idx := node.NewTaskIndex()
	idx.Register("Compiled", "task-a", selector.Clause{}, fnTask(func([]any) (any, error) { return "ok", nil }))
	sc := newCtx(idx)
	subj := subject.Address{Path: "a"}
	n := node.SelectNode{Subj: subj, Prod: "Compiled"}

	candidates := node.CandidateTaskNodes(idx, subj, "Compiled", nil)
	require.Len(t, candidates, 1)
	deps := States{candidates[0].Key(): node.Return{Value: "ok"}}

	st := Run(context.Background(), n, deps, sc)
	r, ok := st.(node.Return)
	require.True(t, ok)
	assert.Equal(t, "ok", r.Value)
}

func TestSelectStepAmbiguousOnMultipleMatches(t *testing.T) {
	idx := node.NewTaskIndex()
	idx.Register("Compiled", "task-a", selector.Clause{}, fnTask(func([]any) (any, error) { return "a", nil }))
	idx.Register("Compiled", "task-b", selector.Clause{}, fnTask(func([]any) (any, error) { return "b", nil }))
	sc := newCtx(idx)
	subj := subject.Address{Path: "a"}
	n := node.SelectNode{Subj: subj, Prod: "Compiled"}

	candidates := node.CandidateTaskNodes(idx, subj, "Compiled", nil)
	require.Len(t, candidates, 2)
	deps := States{
		candidates[0].Key(): node.Return{Value: "a"},
		candidates[1].Key(): node.Return{Value: "b"},
	}

	st := Run(context.Background(), n, deps, sc)
	th, ok := st.(node.Throw)
	require.True(t, ok)
	assert.ErrorIs(t, th.Err, node.ErrAmbiguous)
}

type flavoredBinary struct {
	Name string
	Path string
}

func TestSelectStepVariantKeyMatchesNamedValue(t *testing.T) {
	idx := node.NewTaskIndex()
	idx.Register("Binary", "build-release", selector.Clause{}, fnTask(func([]any) (any, error) {
		return flavoredBinary{Name: "release", Path: "out/release/bin"}, nil
	}))
	idx.Register("Binary", "build-debug", selector.Clause{}, fnTask(func([]any) (any, error) {
		return flavoredBinary{Name: "debug", Path: "out/debug/bin"}, nil
	}))
	sc := newCtx(idx)
	subj := subject.Address{Path: "a"}
	vars := subject.Variants{{Key: "flavor", Value: "debug"}}
	n := node.SelectNode{Subj: subj, Prod: "Binary", Vars: vars, VariantKey: "flavor"}

	candidates := node.CandidateTaskNodes(idx, subj, "Binary", vars)
	require.Len(t, candidates, 2)
	deps := States{
		candidates[0].Key(): node.Return{Value: flavoredBinary{Name: "release", Path: "out/release/bin"}},
		candidates[1].Key(): node.Return{Value: flavoredBinary{Name: "debug", Path: "out/debug/bin"}},
	}

	// Two candidates return, but only the one named after the configured
	// variant value is eligible, so this is a single match, not Ambiguous.
	st := Run(context.Background(), n, deps, sc)
	r, ok := st.(node.Return)
	require.True(t, ok, "expected Return, got %#v", st)
	assert.Equal(t, flavoredBinary{Name: "debug", Path: "out/debug/bin"}, r.Value)
}

func TestSelectStepVariantKeyWithoutConfiguredValueIsNoop(t *testing.T) {
	idx := node.NewTaskIndex()
	idx.Register("Binary", "build", selector.Clause{}, fnTask(func([]any) (any, error) {
		return flavoredBinary{Name: "release"}, nil
	}))
	sc := newCtx(idx)
	n := node.SelectNode{Subj: subject.Address{Path: "a"}, Prod: "Binary", VariantKey: "flavor"}

	st := Run(context.Background(), n, States{}, sc)
	noop, ok := st.(node.Noop)
	require.True(t, ok)
	assert.Contains(t, noop.Reason, "flavor")
}

func TestSelectStepVariantKeyNoMatchingNameIsNoop(t *testing.T) {
	idx := node.NewTaskIndex()
	idx.Register("Binary", "build-release", selector.Clause{}, fnTask(func([]any) (any, error) {
		return flavoredBinary{Name: "release"}, nil
	}))
	sc := newCtx(idx)
	subj := subject.Address{Path: "a"}
	vars := subject.Variants{{Key: "flavor", Value: "debug"}}
	n := node.SelectNode{Subj: subj, Prod: "Binary", Vars: vars, VariantKey: "flavor"}

	candidates := node.CandidateTaskNodes(idx, subj, "Binary", vars)
	require.Len(t, candidates, 1)
	deps := States{candidates[0].Key(): node.Return{Value: flavoredBinary{Name: "release"}}}

	st := Run(context.Background(), n, deps, sc)
	_, ok := st.(node.Noop)
	assert.True(t, ok, "a returned value named for a different variant must not match")
}

func TestTaskStepInvokesWithPositionalInputs(t *testing.T) {
	idx := node.NewTaskIndex()
	var seen []any
	idx.Register("Compiled", "task-a", selector.Clause{selector.Select{Product: "Source"}}, fnTask(func(inputs []any) (any, error) {
		seen = inputs
		return "built", nil
	}))
	sc := newCtx(idx)
	subj := subject.Address{Path: "a"}
	n := node.TaskNode{Subj: subj, Prod: "Compiled", TaskID: "task-a", Clause: selector.Clause{selector.Select{Product: "Source"}}}

	inputNode, err := node.Construct(selector.Select{Product: "Source"}, subj, nil, sc.Natives)
	require.NoError(t, err)
	deps := States{inputNode.Key(): node.Return{Value: "src.go"}}

	st := Run(context.Background(), n, deps, sc)
	r, ok := st.(node.Return)
	require.True(t, ok)
	assert.Equal(t, "built", r.Value)
	assert.Equal(t, []any{"src.go"}, seen)
}

func TestTaskStepWrapsCallableError(t *testing.T) {
	idx := node.NewTaskIndex()
	cause := errors.New("compile failed")
	idx.Register("Compiled", "task-a", selector.Clause{}, fnTask(func([]any) (any, error) { return nil, cause }))
	sc := newCtx(idx)
	subj := subject.Address{Path: "a"}
	n := node.TaskNode{Subj: subj, Prod: "Compiled", TaskID: "task-a"}

	st := Run(context.Background(), n, States{}, sc)
	th, ok := st.(node.Throw)
	require.True(t, ok)
	assert.ErrorIs(t, th.Err, node.ErrTaskFailure)
	assert.ErrorIs(t, th.Err, cause)
}

func TestDependenciesStepExtractsAndRequestsPerElement(t *testing.T) {
	idx := node.NewTaskIndex()
	sc := newCtx(idx)
	sc.Fields = stubExtractor{
		elems: []subject.Subject{subject.Address{Path: "child-a"}, subject.Address{Path: "child-b"}},
	}
	subj := subject.Address{Path: "parent"}
	n := node.DependenciesNode{Subj: subj, Prod: "Compiled", DepsProduct: "Addresses", Field: "deps"}

	depsProductNode := node.SelectNode{Subj: subj, Prod: "Addresses"}
	deps := States{depsProductNode.Key(): node.Return{Value: "unused"}}

	st := Run(context.Background(), n, deps, sc)
	w, ok := st.(node.Waiting)
	require.True(t, ok)
	assert.Len(t, w.Deps, 2)
}

type stubExtractor struct {
	elems []subject.Subject
}

func (s stubExtractor) ExtractField(source any, field string) ([]subject.Subject, error) {
	return s.elems, nil
}

func TestDependenciesStepThrowElementPropagates(t *testing.T) {
	sc := newCtx(node.NewTaskIndex())
	childA := subject.Address{Path: "child-a"}
	childB := subject.Address{Path: "child-b"}
	sc.Fields = stubExtractor{elems: []subject.Subject{childA, childB}}
	subj := subject.Address{Path: "parent"}
	n := node.DependenciesNode{Subj: subj, Prod: "Compiled", DepsProduct: "Addresses", Field: "deps"}

	cause := errors.New("element failed")
	deps := States{
		node.SelectNode{Subj: subj, Prod: "Addresses"}.Key():   node.Return{Value: "unused"},
		node.SelectNode{Subj: childA, Prod: "Compiled"}.Key():  node.Return{Value: "a"},
		node.SelectNode{Subj: childB, Prod: "Compiled"}.Key():  node.Throw{Err: cause},
	}

	st := Run(context.Background(), n, deps, sc)
	th, ok := st.(node.Throw)
	require.True(t, ok, "expected Throw, got %#v", st)
	assert.ErrorIs(t, th.Err, cause)
}

func TestDependenciesStepNoopElementPropagates(t *testing.T) {
	sc := newCtx(node.NewTaskIndex())
	childA := subject.Address{Path: "child-a"}
	childB := subject.Address{Path: "child-b"}
	sc.Fields = stubExtractor{elems: []subject.Subject{childA, childB}}
	subj := subject.Address{Path: "parent"}
	n := node.DependenciesNode{Subj: subj, Prod: "Compiled", DepsProduct: "Addresses", Field: "deps"}

	deps := States{
		node.SelectNode{Subj: subj, Prod: "Addresses"}.Key():   node.Return{Value: "unused"},
		node.SelectNode{Subj: childA, Prod: "Compiled"}.Key():  node.Return{Value: "a"},
		node.SelectNode{Subj: childB, Prod: "Compiled"}.Key():  node.Noop{Reason: "no match"},
	}

	st := Run(context.Background(), n, deps, sc)
	noop, ok := st.(node.Noop)
	require.True(t, ok, "a Noop element must become a Noop of the aggregation, got %#v", st)
	assert.Equal(t, "no match", noop.Reason)
}

func TestFilesystemStepExpandsPathGlobs(t *testing.T) {
	sc := &stepctx.Context{FS: stubFS{}}
	subj := subject.PathGlobs{Globs: []string{"*.go"}, FileType: subject.FileTypeFiles}
	n := node.FilesystemNode{Subj: subj, Prod: "Files"}

	st := Run(context.Background(), n, States{}, sc)
	r, ok := st.(node.Return)
	require.True(t, ok)
	assert.Equal(t, []subject.Subject{subject.Address{Path: "a.go"}}, r.Value)
}

type stubFS struct{}

func (stubFS) DirEntries(ctx context.Context, dir string) ([]string, error) {
	return []string{"a.go", "b.go"}, nil
}

func (stubFS) FileContent(ctx context.Context, path string) ([]byte, error) {
	return []byte("contents of " + path), nil
}

func (stubFS) ExpandGlobs(ctx context.Context, globs []string, ft subject.FileType) ([]subject.Subject, error) {
	return []subject.Subject{subject.Address{Path: "a.go"}}, nil
}

func TestFilesystemStepServesFileContent(t *testing.T) {
	sc := &stepctx.Context{FS: stubFS{}}
	subj := subject.Address{Path: "src", Name: "a.go"}
	n := node.FilesystemNode{Subj: subj, Prod: ProductFileContent}

	st := Run(context.Background(), n, States{}, sc)
	r, ok := st.(node.Return)
	require.True(t, ok, "expected Return, got %#v", st)
	assert.Equal(t, []byte("contents of src/a.go"), r.Value)
}

func TestFilesystemStepServesDirEntriesForNonContentProducts(t *testing.T) {
	sc := &stepctx.Context{FS: stubFS{}}
	subj := subject.Address{Path: "src"}

	for _, prod := range []subject.Product{ProductDirEntries, "Listing"} {
		n := node.FilesystemNode{Subj: subj, Prod: prod}
		st := Run(context.Background(), n, States{}, sc)
		r, ok := st.(node.Return)
		require.True(t, ok, "expected Return for product %s, got %#v", prod, st)
		assert.Equal(t, []string{"a.go", "b.go"}, r.Value)
	}
}
