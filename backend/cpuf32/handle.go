// Package cpuf32 implements the "cpu_f32" backend: single-precision,
// row-major dense tensors over a plain []float32 buffer, with the
// contiguous inner matmul and the non-broadcast elementwise fast path
// delegated to gonum's blas32.
package cpuf32

import (
	"github.com/ndoll1998/cgrad/backend"
	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/internal/layout"
)

// handle is cpu_f32's concrete backend.Handle: a flat buffer plus the
// layout describing how to read it. Views created by ShallowCopy share
// the same data slice but carry their own layout value.
type handle struct {
	l    layout.Layout
	data []float32
}

func (h *handle) Layout() *layout.Layout { return &h.l }

func asHandle(h backend.Handle, op string) (*handle, error) {
	hh, ok := h.(*handle)
	if !ok || hh == nil {
		return nil, cgraderr.New(op, cgraderr.HandleUninitialized)
	}
	return hh, nil
}
