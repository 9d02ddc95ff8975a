package cpuf32

import (
	"github.com/ndoll1998/cgrad/backend"
	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/internal/layout"
)

// Contiguous copies src's logical elements into dst's contiguous buffer.
// dst must already be allocated with src's shape and be contiguous
// itself. When src's innermost dim is already contiguous (stride 1) the
// whole run is copied with the builtin copy() instead of one float at a
// time, amortizing per-element overhead as spec.md §4.B requires.
func (*Backend) Contiguous(src, dst backend.Handle) error {
	const op = "cpuf32.Contiguous"
	s, err := asHandle(src, op)
	if err != nil {
		return err
	}
	d, err := asHandle(dst, op)
	if err != nil {
		return err
	}
	if s.l.Size != d.l.Size {
		return cgraderr.New(op, cgraderr.ShapeMismatch)
	}
	if !d.l.IsContiguous() {
		return cgraderr.New(op, cgraderr.NotContiguous)
	}

	runLen := s.l.Shape[layout.R-1]
	innerStride := s.l.Strides[layout.R-1]
	if innerStride != 1 || runLen == 0 {
		runLen = 1
	}

	dstPos := 0
	var rec func(dim, srcOff int)
	rec = func(dim, srcOff int) {
		if dim == layout.R-1 && runLen > 1 {
			copy(d.data[dstPos:dstPos+runLen], s.data[srcOff:srcOff+runLen])
			dstPos += runLen
			return
		}
		if dim == layout.R {
			d.data[dstPos] = s.data[srcOff]
			dstPos++
			return
		}
		stride := s.l.Strides[dim]
		for i := 0; i < s.l.Shape[dim]; i++ {
			rec(dim+1, srcOff+i*stride)
		}
	}
	rec(0, 0)
	return nil
}
