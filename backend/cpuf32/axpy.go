package cpuf32

import (
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/ndoll1998/cgrad/backend"
	"github.com/ndoll1998/cgrad/cgraderr"
)

// Axpy computes out <- alpha*x + y. x may be a broadcast view of y's
// shape (zero strides); out may alias y for an in-place update.
//
// The non-broadcast, fully-contiguous case (the common one: two leaves
// of identical shape) is delegated to blas32.Axpy. Any broadcast or
// non-regular operand falls back to a manual strided walk, because
// BLAS's Level-1 axpy only understands a single per-vector increment —
// it has no way to express "this axis is broadcast, that one isn't"
// simultaneously across several independent dimensions.
func (*Backend) Axpy(alpha float32, x, y, out backend.Handle) error {
	const op = "cpuf32.Axpy"
	xh, err := asHandle(x, op)
	if err != nil {
		return err
	}
	yh, err := asHandle(y, op)
	if err != nil {
		return err
	}
	oh, err := asHandle(out, op)
	if err != nil {
		return err
	}
	if xh.l.Size != yh.l.Size || xh.l.Size != oh.l.Size {
		return cgraderr.New(op, cgraderr.ShapeMismatch)
	}

	if xh.l.IsContiguous() && yh.l.IsContiguous() && oh.l.IsContiguous() {
		switch {
		case oh == yh:
			blas32.Axpy(alpha, blas32.Vector{N: xh.l.Size, Inc: 1, Data: xh.data},
				blas32.Vector{N: yh.l.Size, Inc: 1, Data: yh.data})
		case oh == xh:
			// out aliases x, not y: scale out (== x) by alpha first, then
			// add y into it — out <- alpha*x then out <- 1*y + out.
			blas32.Scal(alpha, blas32.Vector{N: oh.l.Size, Inc: 1, Data: oh.data})
			blas32.Axpy(1, blas32.Vector{N: yh.l.Size, Inc: 1, Data: yh.data},
				blas32.Vector{N: oh.l.Size, Inc: 1, Data: oh.data})
		default:
			copy(oh.data[:oh.l.Size], yh.data[:yh.l.Size])
			blas32.Axpy(alpha, blas32.Vector{N: xh.l.Size, Inc: 1, Data: xh.data},
				blas32.Vector{N: oh.l.Size, Inc: 1, Data: oh.data})
		}
		return nil
	}

	srcX := xh
	if !xh.l.IsRegular() {
		tmp, err := materialize(xh)
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		srcX = tmp
	}

	switch {
	case oh == yh:
		forEachOffsetPair(srcX.l, yh.l, func(xOff, yOff int) {
			yh.data[yOff] = alpha*srcX.data[xOff] + yh.data[yOff]
		})
	case oh == srcX:
		forEachOffsetPair(srcX.l, yh.l, func(xOff, yOff int) {
			srcX.data[xOff] = alpha*srcX.data[xOff] + yh.data[yOff]
		})
	default:
		forEachOffsetTriple(srcX.l, yh.l, oh.l, func(xOff, yOff, oOff int) {
			oh.data[oOff] = alpha*srcX.data[xOff] + yh.data[yOff]
		})
	}
	return nil
}

// materialize copies h's logical elements into a freshly allocated
// contiguous handle of the same shape.
func materialize(h *handle) (*handle, error) {
	b := Backend{}
	tmp := &handle{}
	if err := b.Init(tmp, shapeOf(h)); err != nil {
		return nil, err
	}
	if err := b.Contiguous(h, tmp); err != nil {
		return nil, err
	}
	return tmp, nil
}

func shapeOf(h *handle) []int {
	shape := make([]int, h.l.Ndim())
	off := len(h.l.Shape) - len(shape)
	for i := range shape {
		shape[i] = h.l.Shape[off+i]
	}
	if len(shape) == 0 {
		return []int{}
	}
	return shape
}
