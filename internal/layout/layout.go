// Package layout implements the shape/stride arithmetic that every other
// cgrad package builds on: strided views over a flat buffer, broadcasting,
// transpose, reshape and reduction, all fixed to a rank-R padded shape.
//
// Every operation addresses the trailing N dimensions of the padded
// shape, where N is simply the length of the shape/perm/mask slice the
// caller passed in — the source this project generalizes threaded a
// separate "ndim" integer alongside each shape array, but in Go the
// slice's own length carries that information, so there is nothing to
// thread separately.
package layout

import (
	"fmt"

	"github.com/ndoll1998/cgrad/cgraderr"
)

// R is the fixed rank every Layout is padded to.
const R = 8

// Layout is a strided view: Size = product(Shape), Strides[k] is the
// number of elements to skip to advance index k by one, in elements
// (not bytes).
type Layout struct {
	Size    int
	Shape   [R]int
	Strides [R]int
}

// Init builds a fresh contiguous row-major Layout from a user shape with
// len(shape) <= R. Leading R-len(shape) dims are padded to 1.
func Init(shape []int) (Layout, error) {
	const op = "layout.Init"
	n := len(shape)
	if n > R {
		return Layout{}, cgraderr.New(op, cgraderr.ShapeMismatch)
	}
	var l Layout
	pad := R - n
	for i := 0; i < pad; i++ {
		l.Shape[i] = 1
	}
	for i, d := range shape {
		if d < 0 {
			return Layout{}, cgraderr.New(op, cgraderr.ShapeMismatch)
		}
		l.Shape[pad+i] = d
	}
	l.Strides = contiguousStrides(l.Shape)
	l.Size = product(l.Shape)
	return l, nil
}

func contiguousStrides(shape [R]int) [R]int {
	var strides [R]int
	acc := 1
	for i := R - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

func product(shape [R]int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Ndim returns how many trailing dims are not the implicit leading 1
// padding, by scanning for the first dim != 1 from the left. This is a
// best-effort hint only — callers that need an exact ndim should track
// it themselves; most layout operations take their own addressed-dims
// count from the length of the slice they're given instead of relying
// on this.
func (l Layout) Ndim() int {
	for i := 0; i < R; i++ {
		if l.Shape[i] != 1 {
			return R - i
		}
	}
	return 0
}

// FlatIndex validates idx against the trailing len(idx) dims and returns
// the flat offset into the underlying buffer.
func (l Layout) FlatIndex(idx []int) (int, error) {
	const op = "layout.FlatIndex"
	n := len(idx)
	if n > R {
		return 0, cgraderr.New(op, cgraderr.IndexOutOfBounds)
	}
	pad := R - n
	offset := 0
	for i, ix := range idx {
		d := pad + i
		if ix < 0 || ix >= l.Shape[d] {
			return 0, cgraderr.New(op, cgraderr.IndexOutOfBounds)
		}
		offset += ix * l.Strides[d]
	}
	return offset, nil
}

// minNonzeroStride returns the smallest nonzero stride in the layout, or
// 0 if every stride is 0 (a fully-broadcast scalar view). For a regular
// (but non-contiguous) layout this is exactly the constant step the
// layout's strides are scaled by, letting Fill walk the buffer with one
// flat loop instead of a nested per-dim walk (spec.md §4.B's
// "broadcast-source trick").
func (l Layout) minNonzeroStride() int {
	min := 0
	for _, s := range l.Strides {
		if s == 0 {
			continue
		}
		if min == 0 || s < min {
			min = s
		}
	}
	return min
}

// MinNonzeroStride exposes minNonzeroStride to sibling packages (the
// backend kernels need it for the fill broadcast-source trick).
func (l Layout) MinNonzeroStride() int { return l.minNonzeroStride() }

// regularStep returns (step, true) if the layout's strides equal the
// contiguous row-major strides scaled by a single positive integer step,
// (0, false) otherwise. A layout of all-1 dims (size<=1) is regular with
// step 1 by convention.
func (l Layout) regularStep() (int, bool) {
	contig := contiguousStrides(l.Shape)
	// Find first dim with shape > 1 to read off the candidate step from.
	step := 0
	for i := 0; i < R; i++ {
		if l.Shape[i] <= 1 {
			continue
		}
		if contig[i] == 0 {
			continue
		}
		candidate := l.Strides[i]
		if candidate <= 0 {
			return 0, false
		}
		if candidate%contig[i] != 0 {
			return 0, false
		}
		s := candidate / contig[i]
		if step == 0 {
			step = s
		} else if step != s {
			return 0, false
		}
	}
	if step == 0 {
		step = 1
	}
	for i := 0; i < R; i++ {
		if l.Shape[i] <= 1 {
			continue
		}
		if l.Strides[i] != contig[i]*step {
			return 0, false
		}
	}
	return step, true
}

// IsRegular reports whether strides are proportional to contiguous
// row-major strides by a single positive integer.
func (l Layout) IsRegular() bool {
	_, ok := l.regularStep()
	return ok
}

// IsContiguous reports whether the layout is regular with step 1.
func (l Layout) IsContiguous() bool {
	step, ok := l.regularStep()
	return ok && step == 1
}

// Transpose permutes the trailing len(perm) dims of both Shape and
// Strides. perm must be a permutation of [0, len(perm)) with no repeats.
func (l Layout) Transpose(perm []int) (Layout, error) {
	const op = "layout.Transpose"
	n := len(perm)
	if n > R {
		return Layout{}, cgraderr.New(op, cgraderr.ShapeMismatch)
	}
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n || seen[p] {
			return Layout{}, cgraderr.New(op, cgraderr.DuplicatePermutation)
		}
		seen[p] = true
	}
	pad := R - n
	out := l
	for i, p := range perm {
		out.Shape[pad+i] = l.Shape[pad+p]
		out.Strides[pad+i] = l.Strides[pad+p]
	}
	return out, nil
}

// Reshape returns a new Layout over newShape (len(newShape) <= R, at most
// one entry may be -1, inferred from the remaining product). The source
// layout must be regular; new strides are row-major over newShape scaled
// by the source's regular step.
func (l Layout) Reshape(newShape []int) (Layout, error) {
	const op = "layout.Reshape"
	step, ok := l.regularStep()
	if !ok {
		return Layout{}, cgraderr.New(op, cgraderr.NotRegular)
	}
	n := len(newShape)
	if n > R {
		return Layout{}, cgraderr.New(op, cgraderr.ReshapeInvalidShape)
	}
	shape := make([]int, n)
	copy(shape, newShape)
	inferIdx := -1
	knownProduct := 1
	for i, d := range shape {
		if d == -1 {
			if inferIdx != -1 {
				return Layout{}, cgraderr.New(op, cgraderr.ReshapeInvalidShape)
			}
			inferIdx = i
			continue
		}
		if d < 0 {
			return Layout{}, cgraderr.New(op, cgraderr.ReshapeInvalidShape)
		}
		knownProduct *= d
	}
	if inferIdx != -1 {
		if knownProduct == 0 || l.Size%knownProduct != 0 {
			return Layout{}, cgraderr.New(op, cgraderr.ReshapeInvalidShape)
		}
		shape[inferIdx] = l.Size / knownProduct
	}
	total := 1
	for _, d := range shape {
		total *= d
	}
	if total != l.Size {
		return Layout{}, cgraderr.New(op, cgraderr.ReshapeInvalidShape)
	}

	var out Layout
	pad := R - n
	for i := 0; i < pad; i++ {
		out.Shape[i] = 1
	}
	for i, d := range shape {
		out.Shape[pad+i] = d
	}
	contig := contiguousStrides(out.Shape)
	for i := range out.Strides {
		out.Strides[i] = contig[i] * step
	}
	out.Size = l.Size
	return out, nil
}

// Reduce sets every trailing dim flagged 1 in mask to size 1, recomputing
// strides row-major over the result and shrinking Size accordingly. An
// all-zero mask leaves Shape and Size unchanged (strides are still
// recomputed row-major).
func (l Layout) Reduce(mask []int) (Layout, error) {
	const op = "layout.Reduce"
	n := len(mask)
	if n > R {
		return Layout{}, cgraderr.New(op, cgraderr.ShapeMismatch)
	}
	pad := R - n
	out := l
	for i, m := range mask {
		if m != 0 {
			out.Shape[pad+i] = 1
		}
	}
	out.Strides = contiguousStrides(out.Shape)
	out.Size = product(out.Shape)
	return out, nil
}

// BroadcastAll pairs two layouts dim-for-dim over all R dims: equal dims
// are left alone, a dim of 1 on one side adopts the other side's dim
// with stride 0, any other mismatch fails.
func BroadcastAll(a, b Layout) (Layout, Layout, error) {
	return broadcastRange(a, b, 0, R)
}

// BroadcastBatch pairs two layouts over the leading R-2 "batch" dims,
// leaving the trailing two (the matrix dims, for GEMM) untouched.
func BroadcastBatch(a, b Layout) (Layout, Layout, error) {
	return broadcastRange(a, b, 0, R-2)
}

func broadcastRange(a, b Layout, lo, hi int) (Layout, Layout, error) {
	const op = "layout.Broadcast"
	outA, outB := a, b
	for i := lo; i < hi; i++ {
		da, db := a.Shape[i], b.Shape[i]
		switch {
		case da == db:
			// nothing to do
		case da == 1:
			outA.Shape[i] = db
			outA.Strides[i] = 0
		case db == 1:
			outB.Shape[i] = da
			outB.Strides[i] = 0
		default:
			return Layout{}, Layout{}, cgraderr.New(op, cgraderr.BroadcastMismatch)
		}
	}
	outA.Size = product(outA.Shape)
	outB.Size = product(outB.Shape)
	return outA, outB, nil
}

func (l Layout) String() string {
	return fmt.Sprintf("Layout{shape=%v strides=%v size=%d}", l.Shape, l.Strides, l.Size)
}
