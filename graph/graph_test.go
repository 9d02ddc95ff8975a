package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndoll1998/cgrad/backend/cpuf32"
	"github.com/ndoll1998/cgrad/optable"
	"github.com/ndoll1998/cgrad/registry"
	"github.com/ndoll1998/cgrad/storage"
)

type fixture struct {
	g   *Graph
	reg *registry.Registry
	be  *cpuf32.Backend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New()
	be := cpuf32.New()
	return &fixture{g: New(optable.Default(), reg), reg: reg, be: be}
}

func (f *fixture) leaf(t *testing.T, shape []int, value float32, requiresGrad bool) NodeID {
	t.Helper()
	s, err := storage.New(f.reg, f.be, shape)
	require.NoError(t, err)
	require.NoError(t, s.Fill(value))
	id, err := f.g.AddLeaf(s, requiresGrad)
	require.NoError(t, err)
	require.NoError(t, s.Free())
	return id
}

// S1 — add, 2x2 ones + twos.
func TestExecuteAdd(t *testing.T) {
	f := newFixture(t)
	a := f.leaf(t, []int{2, 2}, 1, false)
	b := f.leaf(t, []int{2, 2}, 2, false)
	c, err := f.g.AddOp(optable.Axpy, optable.Metadata{Alpha: 1}, []NodeID{a, b})
	require.NoError(t, err)

	require.NoError(t, f.g.Execute(c))
	node, err := f.g.Get(c)
	require.NoError(t, err)
	v, err := node.Storage.Get([]int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, float32(3), v)
	v, err = node.Storage.Get([]int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, float32(3), v)
}

// Invariant 6: second execute returns the identical cached storage.
func TestExecuteCaches(t *testing.T) {
	f := newFixture(t)
	a := f.leaf(t, []int{2, 2}, 1, false)
	b := f.leaf(t, []int{2, 2}, 2, false)
	c, err := f.g.AddOp(optable.Axpy, optable.Metadata{Alpha: 1}, []NodeID{a, b})
	require.NoError(t, err)

	require.NoError(t, f.g.Execute(c))
	node, _ := f.g.Get(c)
	first := node.Storage
	require.NoError(t, f.g.Execute(c))
	assert.Same(t, first, node.Storage)
}

// S7 — disconnected subgraphs stay independent.
func TestExecuteLeavesDisconnectedSubgraphUntouched(t *testing.T) {
	f := newFixture(t)
	a1 := f.leaf(t, []int{2, 2}, 1, false)
	b1 := f.leaf(t, []int{2, 2}, 2, false)
	c1, err := f.g.AddOp(optable.Axpy, optable.Metadata{Alpha: 1}, []NodeID{a1, b1})
	require.NoError(t, err)

	a2 := f.leaf(t, []int{2, 2}, 3, false)
	b2 := f.leaf(t, []int{2, 2}, 4, false)
	c2, err := f.g.AddOp(optable.Axpy, optable.Metadata{Alpha: 1}, []NodeID{a2, b2})
	require.NoError(t, err)

	require.NoError(t, f.g.Execute(c1))
	n1, _ := f.g.Get(c1)
	n2, _ := f.g.Get(c2)
	assert.NotNil(t, n1.Storage)
	assert.Nil(t, n2.Storage)

	require.NoError(t, f.g.Execute(c2))
	assert.NotNil(t, n2.Storage)
}

// Invariant 8: backward(sum(a + b)) yields grad_a == grad_b == 1.
func TestBackwardSumOfAdd(t *testing.T) {
	f := newFixture(t)
	a := f.leaf(t, []int{2, 2}, 1, true)
	b := f.leaf(t, []int{2, 2}, 2, true)
	c, err := f.g.AddOp(optable.Axpy, optable.Metadata{Alpha: 1}, []NodeID{a, b})
	require.NoError(t, err)
	loss, err := f.g.AddOp(optable.ReduceSum, optable.Metadata{Mask: []int{1, 1}}, []NodeID{c})
	require.NoError(t, err)

	require.NoError(t, f.g.Backward(loss))

	an, _ := f.g.Get(a)
	bn, _ := f.g.Get(b)
	require.NotNil(t, an.GradStorage)
	require.NotNil(t, bn.GradStorage)
	v, err := an.GradStorage.Get([]int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, float32(1), v)
	v, err = bn.GradStorage.Get([]int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, float32(1), v)
}

// Invariant 9: repeated backward without zero_grad doubles the gradient.
func TestBackwardAccumulatesAcrossCalls(t *testing.T) {
	f := newFixture(t)
	a := f.leaf(t, []int{2, 2}, 1, true)
	b := f.leaf(t, []int{2, 2}, 2, true)
	c, err := f.g.AddOp(optable.Axpy, optable.Metadata{Alpha: 1}, []NodeID{a, b})
	require.NoError(t, err)
	loss, err := f.g.AddOp(optable.ReduceSum, optable.Metadata{Mask: []int{1, 1}}, []NodeID{c})
	require.NoError(t, err)

	require.NoError(t, f.g.Backward(loss))
	require.NoError(t, f.g.Backward(loss))

	an, _ := f.g.Get(a)
	v, err := an.GradStorage.Get([]int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, float32(2), v)
}

func TestZeroGradResetsBuffer(t *testing.T) {
	f := newFixture(t)
	a := f.leaf(t, []int{2, 2}, 1, true)
	b := f.leaf(t, []int{2, 2}, 2, true)
	c, err := f.g.AddOp(optable.Axpy, optable.Metadata{Alpha: 1}, []NodeID{a, b})
	require.NoError(t, err)
	loss, err := f.g.AddOp(optable.ReduceSum, optable.Metadata{Mask: []int{1, 1}}, []NodeID{c})
	require.NoError(t, err)

	require.NoError(t, f.g.Backward(loss))
	an, _ := f.g.Get(a)
	require.NoError(t, f.g.ZeroGrad(a))
	v, err := an.GradStorage.Get([]int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, float32(0), v)
}

func TestDecrementRefFreesLeafOnZero(t *testing.T) {
	f := newFixture(t)
	a := f.leaf(t, []int{2, 2}, 1, false)
	require.NoError(t, f.g.DecrementRef(a))
	_, err := f.g.Get(a)
	assert.Error(t, err)
	assert.Equal(t, 0, f.reg.LiveStorages())
}
