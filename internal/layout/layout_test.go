package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitPadsLeadingDims(t *testing.T) {
	l, err := Init([]int{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 6, l.Size)
	for i := 0; i < R-2; i++ {
		assert.Equal(t, 1, l.Shape[i])
	}
	assert.Equal(t, 2, l.Shape[R-2])
	assert.Equal(t, 3, l.Shape[R-1])
	assert.True(t, l.IsContiguous())
}

func TestInitRejectsOversizeShape(t *testing.T) {
	shape := make([]int, R+1)
	_, err := Init(shape)
	require.Error(t, err)
}

func TestFlatIndex(t *testing.T) {
	l, err := Init([]int{2, 3})
	require.NoError(t, err)

	off, err := l.FlatIndex([]int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, off)

	off, err = l.FlatIndex([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 5, off)

	_, err = l.FlatIndex([]int{2, 0})
	assert.Error(t, err)
}

func TestTransposeIsInvolutive(t *testing.T) {
	l, err := Init([]int{2, 3})
	require.NoError(t, err)

	transposed, err := l.Transpose([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 3, transposed.Shape[R-2])
	assert.Equal(t, 2, transposed.Shape[R-1])

	back, err := transposed.Transpose([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, l, back)
}

func TestTransposeRejectsDuplicatePermutation(t *testing.T) {
	l, err := Init([]int{2, 3})
	require.NoError(t, err)
	_, err = l.Transpose([]int{0, 0})
	assert.Error(t, err)
}

func TestReshapeRoundTrip(t *testing.T) {
	l, err := Init([]int{2, 3})
	require.NoError(t, err)

	flat, err := l.Reshape([]int{6})
	require.NoError(t, err)
	assert.Equal(t, 6, flat.Size)
	assert.Equal(t, 6, flat.Shape[R-1])

	back, err := flat.Reshape([]int{2, 3})
	require.NoError(t, err)
	assert.Equal(t, l, back)
}

func TestReshapeInfersSingleMinusOne(t *testing.T) {
	l, err := Init([]int{2, 3, 4})
	require.NoError(t, err)

	out, err := l.Reshape([]int{-1})
	require.NoError(t, err)
	assert.Equal(t, 24, out.Shape[R-1])
	for i := 0; i < R-1; i++ {
		assert.Equal(t, 1, out.Shape[i])
	}
}

func TestReshapeRejectsMultipleInferredDims(t *testing.T) {
	l, err := Init([]int{2, 3})
	require.NoError(t, err)
	_, err = l.Reshape([]int{-1, -1})
	assert.Error(t, err)
}

func TestReshapeRejectsNonRegular(t *testing.T) {
	l, err := Init([]int{4, 4})
	require.NoError(t, err)
	transposed, err := l.Transpose([]int{1, 0})
	require.NoError(t, err)
	_, err = transposed.Reshape([]int{16})
	assert.Error(t, err)
}

func TestBroadcastAllSucceeds(t *testing.T) {
	a, err := Init([]int{1, 3})
	require.NoError(t, err)
	b, err := Init([]int{2, 3})
	require.NoError(t, err)

	outA, outB, err := BroadcastAll(a, b)
	require.NoError(t, err)
	assert.Equal(t, outA.Shape, outB.Shape)
	assert.Equal(t, 0, outA.Strides[R-2])
}

func TestBroadcastAllIsSymmetric(t *testing.T) {
	a, err := Init([]int{1, 3})
	require.NoError(t, err)
	b, err := Init([]int{2, 3})
	require.NoError(t, err)

	_, _, errAB := BroadcastAll(a, b)
	_, _, errBA := BroadcastAll(b, a)
	assert.Equal(t, errAB == nil, errBA == nil)
}

func TestBroadcastAllRejectsMismatch(t *testing.T) {
	a, err := Init([]int{2, 3})
	require.NoError(t, err)
	b, err := Init([]int{4, 3})
	require.NoError(t, err)
	_, _, err = BroadcastAll(a, b)
	assert.Error(t, err)
}

func TestReduceMasksTrailingDims(t *testing.T) {
	l, err := Init([]int{2, 3})
	require.NoError(t, err)
	out, err := l.Reduce([]int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Shape[R-2])
	assert.Equal(t, 1, out.Shape[R-1])
	assert.Equal(t, 2, out.Size)
}

func TestReduceAllZeroMaskIsNoop(t *testing.T) {
	l, err := Init([]int{2, 3})
	require.NoError(t, err)
	out, err := l.Reduce([]int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, l, out)
}
