package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndoll1998/cgrad/backend/cpuf32"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	return NewContext(WithBackend(cpuf32.New()))
}

// S1 — add, 2x2 ones + twos.
func TestAddOnesAndTwos(t *testing.T) {
	ctx := newTestContext(t)
	a, err := New(ctx, []int{2, 2})
	require.NoError(t, err)
	require.NoError(t, a.Fill(1))
	b, err := New(ctx, []int{2, 2})
	require.NoError(t, err)
	require.NoError(t, b.Fill(2))

	c, err := a.Add(b)
	require.NoError(t, err)
	v, err := c.Get([]int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, float32(3), v)
	v, err = c.Get([]int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, float32(3), v)
}

// S2 — sub.
func TestSub(t *testing.T) {
	ctx := newTestContext(t)
	a, err := New(ctx, []int{2, 2})
	require.NoError(t, err)
	require.NoError(t, a.Fill(5))
	b, err := New(ctx, []int{2, 2})
	require.NoError(t, err)
	require.NoError(t, b.Fill(2))

	c, err := a.Sub(b)
	require.NoError(t, err)
	v, err := c.Get([]int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, float32(3), v)
}

// S3 — gemm 2x3 @ 3x2 of ones x twos.
func TestGemmOnesTimesTwos(t *testing.T) {
	ctx := newTestContext(t)
	a, err := New(ctx, []int{2, 3})
	require.NoError(t, err)
	require.NoError(t, a.Fill(1))
	b, err := New(ctx, []int{3, 2})
	require.NoError(t, err)
	require.NoError(t, b.Fill(2))

	c, err := a.Gemm(b)
	require.NoError(t, err)
	shape, err := c.Shape()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, shape)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			v, err := c.Get([]int{i, j})
			require.NoError(t, err)
			assert.Equal(t, float32(6), v)
		}
	}
}

// S4 — gemm backward.
func TestGemmBackward(t *testing.T) {
	ctx := newTestContext(t)
	a, err := New(ctx, []int{2, 3}, WithRequiresGrad(true))
	require.NoError(t, err)
	require.NoError(t, a.Fill(1))
	b, err := New(ctx, []int{3, 2}, WithRequiresGrad(false))
	require.NoError(t, err)
	require.NoError(t, b.Fill(2))

	c, err := a.Gemm(b)
	require.NoError(t, err)
	loss, err := c.ReduceSum([]int{1, 1})
	require.NoError(t, err)

	require.NoError(t, loss.Backward())
	ga, err := a.GetGradient()
	require.NoError(t, err)
	shape, err := ga.Shape()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, shape)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			v, err := ga.Get([]int{i, j})
			require.NoError(t, err)
			assert.Equal(t, float32(4), v)
		}
	}
}

// S5 — reshape round-trip.
func TestReshapeRoundTrip(t *testing.T) {
	ctx := newTestContext(t)
	a, err := New(ctx, []int{2, 3})
	require.NoError(t, err)
	require.NoError(t, a.Fill(1))

	b, err := a.Reshape([]int{6})
	require.NoError(t, err)
	c, err := b.Reshape([]int{2, 3})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			va, err := a.Get([]int{i, j})
			require.NoError(t, err)
			vc, err := c.Get([]int{i, j})
			require.NoError(t, err)
			assert.Equal(t, va, vc)
		}
	}
}

// S8 — gradient-mode flag.
func TestGradientModeFlag(t *testing.T) {
	ctx := newTestContext(t)
	ctx.DisableGrad()
	a, err := New(ctx, []int{2, 2})
	require.NoError(t, err)
	rg, err := a.RequiresGrad()
	require.NoError(t, err)
	assert.False(t, rg)

	ctx.EnableGrad()
	b, err := New(ctx, []int{2, 2})
	require.NoError(t, err)
	rg, err = b.RequiresGrad()
	require.NoError(t, err)
	assert.True(t, rg)

	c, err := New(ctx, []int{2, 2}, WithRequiresGrad(false))
	require.NoError(t, err)
	rg, err = c.RequiresGrad()
	require.NoError(t, err)
	assert.False(t, rg)
}

func TestGetGradientFailsWithoutBackward(t *testing.T) {
	ctx := newTestContext(t)
	a, err := New(ctx, []int{2, 2}, WithRequiresGrad(true))
	require.NoError(t, err)
	_, err = a.GetGradient()
	assert.Error(t, err)
}
