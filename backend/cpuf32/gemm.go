package cpuf32

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/ndoll1998/cgrad/backend"
	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/internal/layout"
)

// Gemm computes c <- alpha*(a@b) + beta*c, batched over every leading
// dim (spec.md §4.B). a and b are expected to already carry matching
// (broadcast-resolved) batch shapes in their leading R-2 dims — that
// resolution is storage.Gemm's job, not the kernel's. The trailing two
// dims of a/b/c are the matrix dims; whichever of a, b has a non-unit
// last stride, or a row stride shorter than its row, is materialized
// into a contiguous copy first so the per-batch matmul can always be
// handed to blas32.Gemm.
func (*Backend) Gemm(alpha float32, a, b backend.Handle, beta float32, c backend.Handle) error {
	const op = "cpuf32.Gemm"
	ah, err := asHandle(a, op)
	if err != nil {
		return err
	}
	bh, err := asHandle(b, op)
	if err != nil {
		return err
	}
	ch, err := asHandle(c, op)
	if err != nil {
		return err
	}

	m := ah.l.Shape[layout.R-2]
	k := ah.l.Shape[layout.R-1]
	k2 := bh.l.Shape[layout.R-2]
	n := bh.l.Shape[layout.R-1]
	if k != k2 {
		return cgraderr.New(op, cgraderr.ShapeMismatch)
	}
	if ch.l.Shape[layout.R-2] != m || ch.l.Shape[layout.R-1] != n {
		return cgraderr.New(op, cgraderr.ShapeMismatch)
	}
	for i := 0; i < layout.R-2; i++ {
		if ah.l.Shape[i] != bh.l.Shape[i] {
			return cgraderr.New(op, cgraderr.BroadcastMismatch)
		}
		if ch.l.Shape[i] != ah.l.Shape[i] {
			return cgraderr.New(op, cgraderr.ShapeMismatch)
		}
	}

	if ah.l.Strides[layout.R-1] != 1 || ah.l.Strides[layout.R-2] < k {
		tmp, err := materialize(ah)
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		ah = tmp
	}
	if bh.l.Strides[layout.R-1] != 1 || bh.l.Strides[layout.R-2] < n {
		tmp, err := materialize(bh)
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		bh = tmp
	}

	var batchErr error
	forEachBatch(ah.l, func(batchOffA, batchOffB, batchOffC int) {
		if batchErr != nil {
			return
		}
		aGen := blas32.General{Rows: m, Cols: k, Stride: ah.l.Strides[layout.R-2], Data: ah.data[batchOffA:]}
		bGen := blas32.General{Rows: k, Cols: n, Stride: bh.l.Strides[layout.R-2], Data: bh.data[batchOffB:]}
		cGen := blas32.General{Rows: m, Cols: n, Stride: ch.l.Strides[layout.R-2], Data: ch.data[batchOffC:]}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, alpha, aGen, bGen, beta, cGen)
	}, bh.l, ch.l)
	return batchErr
}

// forEachBatch walks the leading R-2 batch dims of aL (bL/cL share the
// same batch Shape by this point) and yields the flat offset of the
// start of each operand's 2-D matrix slice.
func forEachBatch(aL layout.Layout, fn func(aOff, bOff, cOff int), bL, cL layout.Layout) {
	var rec func(dim, aOff, bOff, cOff int)
	rec = func(dim, aOff, bOff, cOff int) {
		if dim == layout.R-2 {
			fn(aOff, bOff, cOff)
			return
		}
		n := aL.Shape[dim]
		as, bs, cs := aL.Strides[dim], bL.Strides[dim], cL.Strides[dim]
		for i := 0; i < n; i++ {
			rec(dim+1, aOff+i*as, bOff+i*bs, cOff+i*cs)
		}
	}
	rec(0, 0, 0, 0)
}
