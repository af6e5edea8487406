package pgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyweave/polyweave/internal/node"
)

func TestDeltaBoundFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, deltaBound(1, 0))
	assert.Equal(t, 0, deltaBound(0, 0))
}

func TestDeltaBoundGrowsWithGraphSize(t *testing.T) {
	small := deltaBound(4, 4)
	large := deltaBound(400, 400)
	assert.Greater(t, large, small)
}

func TestDetectCycleRejectsThreeNodeTransitiveCycle(t *testing.T) {
	g := New()
	a := selNode("a", "X")
	b := selNode("b", "Y")
	c := selNode("c", "Z")

	require.NoError(t, g.UpdateState(a, node.Waiting{Deps: []node.Node{b}}))
	require.NoError(t, g.UpdateState(b, node.Waiting{Deps: []node.Node{c}}))

	require.NoError(t, g.UpdateState(c, node.Waiting{Deps: []node.Node{a}}))

	assert.Len(t, g.DependenciesOf(a), 1)
	assert.Len(t, g.DependenciesOf(b), 1)
	assert.Len(t, g.DependenciesOf(c), 0, "closing edge c->a must be rejected")
	assert.Len(t, g.CyclicDependenciesOf(c), 1)
}

func TestDetectCycleAcceptsDiamond(t *testing.T) {
	g := New()
	top := selNode("top", "X")
	left := selNode("left", "Y")
	right := selNode("right", "Z")
	bottom := selNode("bottom", "W")

	require.NoError(t, g.UpdateState(top, node.Waiting{Deps: []node.Node{left, right}}))
	require.NoError(t, g.UpdateState(left, node.Waiting{Deps: []node.Node{bottom}}))
	require.NoError(t, g.UpdateState(right, node.Waiting{Deps: []node.Node{bottom}}))

	assert.Len(t, g.DependenciesOf(top), 2)
	assert.Len(t, g.CyclicDependenciesOf(bottom), 0)
	assert.Len(t, g.CyclicDependenciesOf(left), 0)
	assert.Len(t, g.CyclicDependenciesOf(right), 0)
}
