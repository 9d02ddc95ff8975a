// Package storage implements the alias-safe handle over (layout, data,
// backend): Storage wraps a backend.Handle, participates in the
// registry's bucket bookkeeping, and exposes the high-level ops
// (gemm, axpy, reshape, transpose, reduce, get/set) that manipulate
// views before dispatching to the backend's kernels (spec.md §4.C).
package storage

import (
	"github.com/google/uuid"

	"github.com/ndoll1998/cgrad/backend"
	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/internal/layout"
	"github.com/ndoll1998/cgrad/registry"
)

// Storage is the spec's {uuid, backend, data} triple, plus the registry
// it is tracked in.
type Storage struct {
	UUID    uuid.UUID
	Backend backend.Backend
	Data    backend.Handle

	reg *registry.Registry
}

// New allocates a fresh handle via be, initializes it with shape, and
// registers it as the root of a brand-new bucket.
func New(reg *registry.Registry, be backend.Backend, shape []int) (*Storage, error) {
	const op = "storage.New"
	h := be.AllocHandle()
	if err := be.Init(h, shape); err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	s := &Storage{UUID: uuid.New(), Backend: be, Data: h, reg: reg}
	if err := reg.Register(s.UUID, s, uuid.UUID{}); err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return s, nil
}

// ReleaseBuffer implements registry.Releaser: it asks the backend to
// free the handle's buffer. Called by the registry exactly once, when
// this storage's bucket empties.
func (s *Storage) ReleaseBuffer() error {
	return s.Backend.Free(s.Data)
}

// Layout returns the storage's current layout.
func (s *Storage) Layout() layout.Layout { return *s.Data.Layout() }

// Shape returns the storage's logical (unpadded) shape, trimming the
// leading rank-R padding.
func (s *Storage) Shape() []int { return trailingShape(s.Layout()) }

// Free deregisters the storage. If it was the last member of its
// bucket, the backend buffer is released.
func (s *Storage) Free() error {
	return s.reg.Deregister(s.UUID)
}

// Fill/FillRand/Get/Set delegate straight to the backend after the
// storage has already validated nothing itself (the backend validates
// layout bounds).
func (s *Storage) Fill(v float32) error        { return s.Backend.Fill(s.Data, v) }
func (s *Storage) FillRand() error              { return s.Backend.FillRand(s.Data) }
func (s *Storage) Get(idx []int) (float32, error) { return s.Backend.Get(s.Data, idx) }
func (s *Storage) Set(idx []int, v float32) error { return s.Backend.Set(s.Data, idx, v) }

// ShallowCopy deep-copies s's layout into a new Storage that shares s's
// buffer, registered under s's bucket.
func (s *Storage) ShallowCopy() (*Storage, error) {
	const op = "storage.ShallowCopy"
	h := s.Backend.AllocHandle()
	if err := s.Backend.ShallowCopy(s.Data, h); err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	out := &Storage{UUID: uuid.New(), Backend: s.Backend, Data: h, reg: s.reg}
	if err := s.reg.Register(out.UUID, out, s.UUID); err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return out, nil
}

// Contiguous returns a storage whose buffer is contiguous and holds the
// same logical elements as s. If s is already contiguous this is a
// shallow copy; otherwise a fresh root storage is allocated and the
// backend copies the elements into it.
func (s *Storage) Contiguous() (*Storage, error) {
	const op = "storage.Contiguous"
	if s.Layout().IsContiguous() {
		return s.ShallowCopy()
	}
	shape := trailingShape(s.Layout())
	out, err := New(s.reg, s.Backend, shape)
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	if err := s.Backend.Contiguous(s.Data, out.Data); err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return out, nil
}

func trailingShape(l layout.Layout) []int {
	n := l.Ndim()
	shape := make([]int, n)
	off := layout.R - n
	for i := 0; i < n; i++ {
		shape[i] = l.Shape[off+i]
	}
	return shape
}

// Reshape retargets a view of s (or a materialized contiguous copy, if
// s isn't regular) to newShape.
func (s *Storage) Reshape(newShape []int) (*Storage, error) {
	const op = "storage.Reshape"
	src := s
	if !s.Layout().IsRegular() {
		contig, err := s.Contiguous()
		if err != nil {
			return nil, cgraderr.Wrap(op, 0, err)
		}
		src = contig
	}
	out, err := src.ShallowCopy()
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	newLayout, err := src.Layout().Reshape(newShape)
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	*out.Data.Layout() = newLayout
	return out, nil
}

// Transpose retargets a shallow-copied view of s by permuting its
// trailing len(perm) dims.
func (s *Storage) Transpose(perm []int) (*Storage, error) {
	const op = "storage.Transpose"
	out, err := s.ShallowCopy()
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	newLayout, err := s.Layout().Transpose(perm)
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	*out.Data.Layout() = newLayout
	return out, nil
}

// broadcastView wraps h in a fresh handle carrying newLayout in place of
// h's own layout, without copying or reallocating the buffer. Used to
// feed broadcast-resolved operand views to a kernel call without
// mutating (or registering) the original storage.
func broadcastView(be backend.Backend, h backend.Handle, newLayout layout.Layout) (backend.Handle, error) {
	v := be.AllocHandle()
	if err := be.ShallowCopy(h, v); err != nil {
		return nil, err
	}
	*v.Layout() = newLayout
	return v, nil
}

// Axpy computes c <- alpha*a + b, broadcasting a and b across all R dims
// (spec.md §4.C).
func Axpy(alpha float32, a, b, c *Storage) error {
	const op = "storage.Axpy"
	if a.Backend.Name() != b.Backend.Name() || a.Backend.Name() != c.Backend.Name() {
		return cgraderr.New(op, cgraderr.BackendMismatch)
	}
	aL, bL, err := layout.BroadcastAll(a.Layout(), b.Layout())
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	if bL.Shape != c.Layout().Shape {
		return cgraderr.New(op, cgraderr.ShapeMismatch)
	}

	aView := a.Data
	if aL != a.Layout() {
		v, err := broadcastView(a.Backend, a.Data, aL)
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		aView = v
	}
	bView := b.Data
	if bL != b.Layout() {
		v, err := broadcastView(b.Backend, b.Data, bL)
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		bView = v
	}

	return a.Backend.Axpy(alpha, aView, bView, c.Data)
}

// Gemm computes c <- alpha*(a@b) + beta*c, broadcasting a and b's batch
// dims (all but the trailing two) (spec.md §4.C).
func Gemm(alpha float32, a, b *Storage, beta float32, c *Storage) error {
	const op = "storage.Gemm"
	if a.Backend.Name() != b.Backend.Name() || a.Backend.Name() != c.Backend.Name() {
		return cgraderr.New(op, cgraderr.BackendMismatch)
	}
	aL, bL, err := layout.BroadcastBatch(a.Layout(), b.Layout())
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	m, k, n := aL.Shape[layout.R-2], aL.Shape[layout.R-1], bL.Shape[layout.R-1]
	cL := c.Layout()
	if cL.Shape[layout.R-2] != m || cL.Shape[layout.R-1] != n {
		return cgraderr.New(op, cgraderr.ShapeMismatch)
	}
	for i := 0; i < layout.R-2; i++ {
		if cL.Shape[i] != aL.Shape[i] {
			return cgraderr.New(op, cgraderr.ShapeMismatch)
		}
	}
	_ = k

	aView := a.Data
	if aL != a.Layout() {
		v, err := broadcastView(a.Backend, a.Data, aL)
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		aView = v
	}
	bView := b.Data
	if bL != b.Layout() {
		v, err := broadcastView(b.Backend, b.Data, bL)
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		bView = v
	}

	return a.Backend.Gemm(alpha, aView, bView, beta, c.Data)
}

// Reduce computes dst <- alpha*sum_masked(src) + beta*dst by permuting
// the reduced axes to the trailing position, reshaping to a 2-D matrix,
// and multiplying by a ones vector — reusing the batched GEMM kernel for
// reduction instead of writing a bespoke reduce kernel (spec.md §4.G).
func Reduce(alpha float32, src *Storage, mask []int, beta float32, dst *Storage) error {
	const op = "storage.Reduce"
	n := len(mask)
	perm := make([]int, n)
	keptDims := make([]int, 0, n)
	summedDims := make([]int, 0, n)
	for i, m := range mask {
		if m != 0 {
			summedDims = append(summedDims, i)
		} else {
			keptDims = append(keptDims, i)
		}
	}
	copy(perm, keptDims)
	copy(perm[len(keptDims):], summedDims)

	permuted, err := src.Transpose(perm)
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	defer permuted.Free()
	keptSize := 1
	// mask addresses the trailing n dims, so index exactly those dims.
	srcL := src.Layout()
	srcShape := srcL.Shape[layout.R-n:]
	for _, d := range keptDims {
		keptSize *= srcShape[d]
	}
	summedSize := 1
	for _, d := range summedDims {
		summedSize *= srcShape[d]
	}

	asMatrix, err := permuted.Reshape([]int{keptSize, summedSize})
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	defer asMatrix.Free()

	ones, err := New(src.reg, src.Backend, []int{summedSize, 1})
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	defer ones.Free()
	if err := ones.Fill(1); err != nil {
		return cgraderr.Wrap(op, 0, err)
	}

	dstMatrix, err := dst.Reshape([]int{keptSize, 1})
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	// dstMatrix is a reshaped view sharing dst's buffer, so the GEMM
	// result is already visible through dst once freed.
	defer dstMatrix.Free()
	if err := Gemm(alpha, asMatrix, ones, beta, dstMatrix); err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	return nil
}
