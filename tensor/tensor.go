package tensor

import (
	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/graph"
	"github.com/ndoll1998/cgrad/optable"
	"github.com/ndoll1998/cgrad/storage"
)

// Tensor is a handle to one node in a Context's compute graph.
type Tensor struct {
	ctx *Context
	id  graph.NodeID
}

// tensorConfig collects per-tensor New() overrides.
type tensorConfig struct {
	backendName          string
	requiresGradOverride *bool
}

// TensorOption configures a single New() call.
type TensorOption func(*tensorConfig)

// WithBackendName selects a non-default registered backend for this
// tensor.
func WithBackendName(name string) TensorOption {
	return func(c *tensorConfig) { c.backendName = name }
}

// WithRequiresGrad overrides the context's gradient-mode flag for this
// one tensor (spec.md §4.G: "per-tensor override ... always takes
// precedence").
func WithRequiresGrad(v bool) TensorOption {
	return func(c *tensorConfig) { c.requiresGradOverride = &v }
}

// New creates a leaf tensor with a freshly allocated, zero-filled
// storage of the given shape.
func New(ctx *Context, shape []int, opts ...TensorOption) (*Tensor, error) {
	const op = "tensor.New"
	cfg := &tensorConfig{}
	for _, o := range opts {
		o(cfg)
	}

	be, err := ctx.lookupBackend(cfg.backendName)
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	s, err := storage.New(ctx.reg, be, shape)
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}

	requiresGrad := ctx.IsGradEnabled()
	if cfg.requiresGradOverride != nil {
		requiresGrad = *cfg.requiresGradOverride
	}

	id, err := ctx.graph.AddLeaf(s, requiresGrad)
	if err != nil {
		_ = s.Free()
		return nil, cgraderr.Wrap(op, 0, err)
	}
	if err := s.Free(); err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return &Tensor{ctx: ctx, id: id}, nil
}

func (t *Tensor) leafStorage(op string) (*storage.Storage, error) {
	n, err := t.ctx.graph.Get(t.id)
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	if n.Op != optable.Leaf {
		return nil, cgraderr.New(op, cgraderr.InvalidOperation)
	}
	if n.Storage == nil {
		return nil, cgraderr.New(op, cgraderr.NotInitialized)
	}
	return n.Storage, nil
}

// Fill overwrites every element of a leaf tensor's storage. Legal only
// on leaves whose storage already exists (spec.md §4.G).
func (t *Tensor) Fill(v float32) error {
	s, err := t.leafStorage("tensor.Fill")
	if err != nil {
		return err
	}
	return s.Fill(v)
}

// FillRand fills a leaf tensor's storage with independent uniform
// samples.
func (t *Tensor) FillRand() error {
	s, err := t.leafStorage("tensor.FillRand")
	if err != nil {
		return err
	}
	return s.FillRand()
}

// Set overwrites a single element of a leaf tensor's storage. Legal only
// on leaves whose storage already exists (spec.md §4.G).
func (t *Tensor) Set(idx []int, v float32) error {
	s, err := t.leafStorage("tensor.Set")
	if err != nil {
		return err
	}
	return s.Set(idx, v)
}

// Execute materializes t's storage (and every node it transitively
// depends on) if it hasn't been already.
func (t *Tensor) Execute() error {
	return t.ctx.graph.Execute(t.id)
}

// Backward auto-executes t, then runs reverse-mode backward from it.
func (t *Tensor) Backward() error {
	return t.ctx.graph.Backward(t.id)
}

// Get auto-executes t and reads back a single element.
func (t *Tensor) Get(idx []int) (float32, error) {
	const op = "tensor.Get"
	if err := t.ctx.graph.Execute(t.id); err != nil {
		return 0, cgraderr.Wrap(op, 0, err)
	}
	n, err := t.ctx.graph.Get(t.id)
	if err != nil {
		return 0, cgraderr.Wrap(op, 0, err)
	}
	return n.Storage.Get(idx)
}

// GetStorage returns t's cached storage, or nil if t hasn't been
// executed yet.
func (t *Tensor) GetStorage() (*storage.Storage, error) {
	n, err := t.ctx.graph.Get(t.id)
	if err != nil {
		return nil, cgraderr.Wrap("tensor.GetStorage", 0, err)
	}
	return n.Storage, nil
}

// GetGradient wraps t's gradient storage as a new leaf tensor so it can
// be inspected through the same API. Fails GradientNotAvailable if t has
// no gradient yet.
func (t *Tensor) GetGradient() (*Tensor, error) {
	const op = "tensor.GetGradient"
	n, err := t.ctx.graph.Get(t.id)
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	if n.GradStorage == nil {
		return nil, cgraderr.Wrap(op, cgraderr.GradientNotAvailable, cgraderr.ErrGradientNotAvailable)
	}
	id, err := t.ctx.graph.AddLeaf(n.GradStorage, false)
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return &Tensor{ctx: t.ctx, id: id}, nil
}

// ZeroGrad zeros t's gradient buffer (a no-op if it has none).
func (t *Tensor) ZeroGrad() error {
	return t.ctx.graph.ZeroGrad(t.id)
}

// SetRequiresGrad overrides t's requires-grad flag, bypassing the
// context's gradient-mode default.
func (t *Tensor) SetRequiresGrad(v bool) error {
	return t.ctx.graph.SetRequiresGrad(t.id, v)
}

// RequiresGrad reports t's current requires-grad flag.
func (t *Tensor) RequiresGrad() (bool, error) {
	n, err := t.ctx.graph.Get(t.id)
	if err != nil {
		return false, cgraderr.Wrap("tensor.RequiresGrad", 0, err)
	}
	return n.RequiresGrad, nil
}

// Shape returns t's logical shape, auto-executing first.
func (t *Tensor) Shape() ([]int, error) {
	s, err := t.Storage()
	if err != nil {
		return nil, err
	}
	return s.Shape(), nil
}

// Storage auto-executes t and returns its backing storage.
func (t *Tensor) Storage() (*storage.Storage, error) {
	if err := t.ctx.graph.Execute(t.id); err != nil {
		return nil, cgraderr.Wrap("tensor.Storage", 0, err)
	}
	n, err := t.ctx.graph.Get(t.id)
	if err != nil {
		return nil, err
	}
	return n.Storage, nil
}

// Free decrements t's node ref-count, releasing its storages once no
// other tensor or consumer op references it.
func (t *Tensor) Free() error {
	return t.ctx.graph.Free(t.id)
}
