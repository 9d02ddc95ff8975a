// Package optim implements the peripheral SGD optimizer over tensor
// façade parameters (spec.md §4.H). Specified for completeness, not a
// core concern of the engine.
package optim

import (
	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/registry"
	"github.com/ndoll1998/cgrad/storage"
	"github.com/ndoll1998/cgrad/tensor"
)

// Optimizer is the abstract {step, zero_grad, free_state} contract every
// optimizer variant implements.
type Optimizer interface {
	Step() error
	ZeroGrad() error
	FreeState() error
}

// SGD updates parameters in place: with momentum, v <- momentum*v + grad
// then p <- p - lr*v; without momentum, p <- p - lr*grad.
type SGD struct {
	params   []*tensor.Tensor
	lr       float32
	momentum float32
	velocity map[*tensor.Tensor]*storage.Storage
}

// Option configures an SGD instance at construction.
type Option func(*SGD)

// WithLR sets the learning rate (default 0.01).
func WithLR(lr float32) Option {
	return func(s *SGD) { s.lr = lr }
}

// WithMomentum sets the momentum coefficient (default 0, meaning plain
// gradient descent with no velocity buffer).
func WithMomentum(m float32) Option {
	return func(s *SGD) { s.momentum = m }
}

// NewSGD builds an SGD optimizer over params.
func NewSGD(params []*tensor.Tensor, opts ...Option) *SGD {
	s := &SGD{
		params:   params,
		lr:       0.01,
		velocity: make(map[*tensor.Tensor]*storage.Storage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LR returns the current learning rate.
func (s *SGD) LR() float32 { return s.lr }

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float32) { s.lr = lr }

// Momentum returns the current momentum coefficient.
func (s *SGD) Momentum() float32 { return s.momentum }

// Step applies one update to every parameter using its current
// gradient. Parameters with no gradient are left untouched.
func (s *SGD) Step() error {
	const op = "optim.SGD.Step"
	for _, p := range s.params {
		grad, err := p.GetGradient()
		if err != nil {
			if cgraderr.Is(err, cgraderr.GradientNotAvailable) {
				continue
			}
			return cgraderr.Wrap(op, 0, err)
		}
		gradStorage, err := grad.Storage()
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		if err := grad.Free(); err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		paramStorage, err := p.Storage()
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}

		update := gradStorage
		if s.momentum != 0 {
			v, err := s.velocityFor(p, paramStorage)
			if err != nil {
				return cgraderr.Wrap(op, 0, err)
			}
			// v <- momentum*v + grad, in place.
			if err := storage.Axpy(s.momentum, v, gradStorage, v); err != nil {
				return cgraderr.Wrap(op, 0, err)
			}
			update = v
		}

		// p <- -lr*update + p, in place.
		if err := storage.Axpy(-s.lr, update, paramStorage, paramStorage); err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
	}
	return nil
}

func (s *SGD) velocityFor(p *tensor.Tensor, paramStorage *storage.Storage) (*storage.Storage, error) {
	if v, ok := s.velocity[p]; ok {
		return v, nil
	}
	// A buffer of its own (not a view sharing the parameter's buffer),
	// tracked in a registry private to the optimizer; FreeState frees it.
	v, err := storage.New(registry.New(), paramStorage.Backend, paramStorage.Shape())
	if err != nil {
		return nil, err
	}
	if err := v.Fill(0); err != nil {
		return nil, err
	}
	s.velocity[p] = v
	return v, nil
}

// ZeroGrad zeros every parameter's gradient buffer.
func (s *SGD) ZeroGrad() error {
	for _, p := range s.params {
		if err := p.ZeroGrad(); err != nil {
			return err
		}
	}
	return nil
}

// FreeState releases the optimizer's velocity buffers.
func (s *SGD) FreeState() error {
	for _, v := range s.velocity {
		if err := v.Free(); err != nil {
			return err
		}
	}
	s.velocity = make(map[*tensor.Tensor]*storage.Storage)
	return nil
}

var _ Optimizer = (*SGD)(nil)
