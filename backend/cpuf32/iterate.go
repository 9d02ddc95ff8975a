package cpuf32

import "github.com/ndoll1998/cgrad/internal/layout"

// forEachOffset walks every logical index of l (all R dims) and invokes
// fn with the corresponding flat offset into the shared buffer, in
// row-major order. Dims of size 1 contribute a single iteration, so the
// recursion is cheap regardless of how much of R is padding.
func forEachOffset(l layout.Layout, fn func(offset int)) {
	var rec func(dim, offset int)
	rec = func(dim, offset int) {
		if dim == layout.R {
			fn(offset)
			return
		}
		stride := l.Strides[dim]
		for i := 0; i < l.Shape[dim]; i++ {
			rec(dim+1, offset+i*stride)
		}
	}
	rec(0, 0)
}

// forEachOffsetPair walks two layouts of identical Shape in lockstep,
// yielding the flat offset into each buffer for the same logical index.
// Used by Axpy's general (broadcast-aware) fallback.
func forEachOffsetPair(a, b layout.Layout, fn func(aOff, bOff int)) {
	var rec func(dim, aOff, bOff int)
	rec = func(dim, aOff, bOff int) {
		if dim == layout.R {
			fn(aOff, bOff)
			return
		}
		as, bs := a.Strides[dim], b.Strides[dim]
		n := a.Shape[dim]
		for i := 0; i < n; i++ {
			rec(dim+1, aOff+i*as, bOff+i*bs)
		}
	}
	rec(0, 0, 0)
}

// forEachOffsetTriple is forEachOffsetPair generalized to three layouts
// of identical Shape, used by Axpy when out differs from y.
func forEachOffsetTriple(a, b, c layout.Layout, fn func(aOff, bOff, cOff int)) {
	var rec func(dim, aOff, bOff, cOff int)
	rec = func(dim, aOff, bOff, cOff int) {
		if dim == layout.R {
			fn(aOff, bOff, cOff)
			return
		}
		as, bs, cs := a.Strides[dim], b.Strides[dim], c.Strides[dim]
		n := a.Shape[dim]
		for i := 0; i < n; i++ {
			rec(dim+1, aOff+i*as, bOff+i*bs, cOff+i*cs)
		}
	}
	rec(0, 0, 0, 0)
}
