package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyweave/polyweave/internal/selector"
	"github.com/polyweave/polyweave/internal/subject"
)

func TestConstructSelectYieldsSelectNode(t *testing.T) {
	subj := subject.Address{Path: "foo"}
	n, err := Construct(selector.Select{Product: "Compiled"}, subj, nil, nil)
	require.NoError(t, err)
	sn, ok := n.(SelectNode)
	require.True(t, ok)
	assert.Equal(t, subject.Product("Compiled"), sn.Prod)
	assert.Equal(t, "", sn.VariantKey)
}

func TestConstructSelectVariant(t *testing.T) {
	subj := subject.Address{Path: "foo"}
	n, err := Construct(selector.SelectVariant{Product: "Compiled", VariantKey: "release"}, subj, nil, nil)
	require.NoError(t, err)
	sn := n.(SelectNode)
	assert.Equal(t, "release", sn.VariantKey)
}

func TestConstructSelectNativeYieldsFilesystemNode(t *testing.T) {
	subj := subject.Address{Path: "foo"}
	natives := NewFilesystemNatives([2]string{"address", "DirEntries"})
	n, err := Construct(selector.Select{Product: "DirEntries"}, subj, nil, natives)
	require.NoError(t, err)
	_, ok := n.(FilesystemNode)
	assert.True(t, ok)
}

func TestConstructSelectDependencies(t *testing.T) {
	subj := subject.Address{Path: "foo"}
	n, err := Construct(selector.SelectDependencies{Product: "Compiled", DepsProduct: "Addresses", Field: "deps"}, subj, nil, nil)
	require.NoError(t, err)
	dn := n.(DependenciesNode)
	assert.Equal(t, subject.Product("Addresses"), dn.DepsProduct)
	assert.Equal(t, "deps", dn.Field)
}

func TestConstructSelectProjection(t *testing.T) {
	subj := subject.Address{Path: "foo"}
	n, err := Construct(selector.SelectProjection{
		Product: "Compiled", ProjectedType: "Address", Fields: []string{"Path"}, InputProduct: "Source",
	}, subj, nil, nil)
	require.NoError(t, err)
	pn := n.(ProjectionNode)
	assert.Equal(t, "Address", pn.ProjectedType)
	assert.Equal(t, []string{"Path"}, pn.Fields)
}

func TestConstructSelectLiteralIgnoresIncomingSubjectAndVariants(t *testing.T) {
	subj := subject.Address{Path: "incoming"}
	vars := subject.Variants{{Key: "os", Value: "linux"}}
	literal := subject.Address{Path: "fixed"}
	n, err := Construct(selector.SelectLiteral{Subject: literal, Product: "Compiled"}, subj, vars, nil)
	require.NoError(t, err)
	sn := n.(SelectNode)
	assert.Equal(t, literal, sn.Subj)
	assert.Nil(t, sn.Vars)
}

func TestConstructUnknownSelectorKind(t *testing.T) {
	_, err := Construct(nil, subject.Address{}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCandidateTaskNodesPreservesRegistrationOrder(t *testing.T) {
	idx := NewTaskIndex()
	idx.Register("Compiled", "task-a", selector.Clause{selector.Select{Product: "Source"}}, stubTask{})
	idx.Register("Compiled", "task-b", selector.Clause{}, stubTask{})

	subj := subject.Address{Path: "foo"}
	candidates := CandidateTaskNodes(idx, subj, "Compiled", nil)
	require.Len(t, candidates, 2)
	assert.Equal(t, "task-a", candidates[0].TaskID)
	assert.Equal(t, "task-b", candidates[1].TaskID)
}

func TestTaskIndexLookup(t *testing.T) {
	idx := NewTaskIndex()
	task := stubTask{}
	idx.Register("Compiled", "task-a", nil, task)

	got, ok := idx.Lookup("task-a")
	require.True(t, ok)
	assert.Equal(t, task, got)

	_, ok = idx.Lookup("missing")
	assert.False(t, ok)
}

type stubTask struct{}

func (stubTask) Invoke(inputs []any) (any, error) { return nil, nil }
