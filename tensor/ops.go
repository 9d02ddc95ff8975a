package tensor

import (
	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/graph"
	"github.com/ndoll1998/cgrad/optable"
)

func (t *Tensor) sameCtx(other *Tensor, op string) error {
	if t.ctx != other.ctx {
		return cgraderr.New(op, cgraderr.InvalidOperation)
	}
	return nil
}

// Add builds out = t + other (lazily; nothing is computed until
// Execute/Get/Backward touches the result).
func (t *Tensor) Add(other *Tensor) (*Tensor, error) {
	const op = "tensor.Add"
	if err := t.sameCtx(other, op); err != nil {
		return nil, err
	}
	id, err := t.ctx.graph.AddOp(optable.Axpy, optable.Metadata{Alpha: 1}, []graph.NodeID{t.id, other.id})
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return &Tensor{ctx: t.ctx, id: id}, nil
}

// Sub builds out = t - other. Internally this is axpy(alpha=-1) with
// slot 0 = other and slot 1 = t (spec.md §4.E/§9's sub tie-break:
// "operand slot 0 is b, slot 1 is a").
func (t *Tensor) Sub(other *Tensor) (*Tensor, error) {
	const op = "tensor.Sub"
	if err := t.sameCtx(other, op); err != nil {
		return nil, err
	}
	id, err := t.ctx.graph.AddOp(optable.Axpy, optable.Metadata{Alpha: -1}, []graph.NodeID{other.id, t.id})
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return &Tensor{ctx: t.ctx, id: id}, nil
}

// Gemm builds out = t @ other, batched over every leading dim.
func (t *Tensor) Gemm(other *Tensor) (*Tensor, error) {
	const op = "tensor.Gemm"
	if err := t.sameCtx(other, op); err != nil {
		return nil, err
	}
	id, err := t.ctx.graph.AddOp(optable.Gemm, optable.Metadata{Alpha: 1}, []graph.NodeID{t.id, other.id})
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return &Tensor{ctx: t.ctx, id: id}, nil
}

// Transpose builds a view of t with its trailing len(perm) dims
// permuted.
func (t *Tensor) Transpose(perm []int) (*Tensor, error) {
	const op = "tensor.Transpose"
	id, err := t.ctx.graph.AddOp(optable.Transpose, optable.Metadata{Perm: perm}, []graph.NodeID{t.id})
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return &Tensor{ctx: t.ctx, id: id}, nil
}

// Reshape builds a view (or materialized copy) of t over newShape.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	const op = "tensor.Reshape"
	id, err := t.ctx.graph.AddOp(optable.Reshape, optable.Metadata{Shape: newShape}, []graph.NodeID{t.id})
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return &Tensor{ctx: t.ctx, id: id}, nil
}

// ReduceSum sums t along the axes flagged 1 in mask (one entry per
// trailing addressed dim, per layout.Reduce's convention), keeping those
// axes at size 1 rather than dropping them.
func (t *Tensor) ReduceSum(mask []int) (*Tensor, error) {
	const op = "tensor.ReduceSum"
	id, err := t.ctx.graph.AddOp(optable.ReduceSum, optable.Metadata{Mask: mask}, []graph.NodeID{t.id})
	if err != nil {
		return nil, cgraderr.Wrap(op, 0, err)
	}
	return &Tensor{ctx: t.ctx, id: id}, nil
}
