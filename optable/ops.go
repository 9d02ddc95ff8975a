package optable

import (
	"github.com/ndoll1998/cgrad/internal/layout"
	"github.com/ndoll1998/cgrad/registry"
	"github.com/ndoll1998/cgrad/storage"
)

// fullShape copies a layout's full rank-R shape out as a plain slice,
// suitable for storage.New (which accepts a rank-R shape unchanged).
func fullShape(l layout.Layout) []int {
	shape := make([]int, layout.R)
	copy(shape, l.Shape[:])
	return shape
}

// transposeLastTwo swaps the trailing two dims of s's layout, used to
// build aᵀ/bᵀ views for GEMM's backward pass.
func transposeLastTwo(s *storage.Storage) (*storage.Storage, error) {
	perm := make([]int, layout.R)
	for i := range perm {
		perm[i] = i
	}
	perm[layout.R-2], perm[layout.R-1] = layout.R-1, layout.R-2
	return s.Transpose(perm)
}

// accumulateGrad adds alpha*contribution into target, reducing
// contribution down to target's shape first if target is narrower along
// any dim (the broadcast-backward fix noted in spec.md §9: a forward
// broadcast must be undone by summing the gradient across the
// broadcast axes before accumulating).
func accumulateGrad(reg *registry.Registry, alpha float32, contribution, target *storage.Storage) error {
	cl, tl := contribution.Layout(), target.Layout()
	mask := make([]int, layout.R)
	broadcast := false
	for d := 0; d < layout.R; d++ {
		if tl.Shape[d] == 1 && cl.Shape[d] != 1 {
			mask[d] = 1
			broadcast = true
		}
	}
	if !broadcast {
		return storage.Axpy(alpha, contribution, target, target)
	}
	return storage.Reduce(alpha, contribution, mask, 1, target)
}

func axpyForward(reg *registry.Registry, inputs []*storage.Storage, md Metadata, requiresGrad bool) (*storage.Storage, interface{}, error) {
	a, b := inputs[0], inputs[1]
	_, bL, err := layout.BroadcastAll(a.Layout(), b.Layout())
	if err != nil {
		return nil, nil, err
	}
	out, err := storage.New(reg, a.Backend, fullShape(bL))
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Axpy(md.Alpha, a, b, out); err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}

func axpyBackward(reg *registry.Registry, inputs []*storage.Storage, output, gradOutput *storage.Storage, md Metadata, ctx interface{}, gradInputs []*storage.Storage, inputRequiresGrad []bool) error {
	if inputRequiresGrad[0] && gradInputs[0] != nil {
		if err := accumulateGrad(reg, md.Alpha, gradOutput, gradInputs[0]); err != nil {
			return err
		}
	}
	if inputRequiresGrad[1] && gradInputs[1] != nil {
		if err := accumulateGrad(reg, 1, gradOutput, gradInputs[1]); err != nil {
			return err
		}
	}
	return nil
}

func gemmForward(reg *registry.Registry, inputs []*storage.Storage, md Metadata, requiresGrad bool) (*storage.Storage, interface{}, error) {
	a, b := inputs[0], inputs[1]
	aL, bL, err := layout.BroadcastBatch(a.Layout(), b.Layout())
	if err != nil {
		return nil, nil, err
	}
	shape := fullShape(aL)
	shape[layout.R-2] = aL.Shape[layout.R-2]
	shape[layout.R-1] = bL.Shape[layout.R-1]
	out, err := storage.New(reg, a.Backend, shape)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Gemm(md.Alpha, a, b, 0, out); err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}

func gemmBackward(reg *registry.Registry, inputs []*storage.Storage, output, gradOutput *storage.Storage, md Metadata, ctx interface{}, gradInputs []*storage.Storage, inputRequiresGrad []bool) error {
	a, b := inputs[0], inputs[1]

	if inputRequiresGrad[0] && gradInputs[0] != nil {
		bT, err := transposeLastTwo(b)
		if err != nil {
			return err
		}
		batchL, _, err := layout.BroadcastBatch(gradOutput.Layout(), bT.Layout())
		if err != nil {
			return err
		}
		shape := fullShape(batchL)
		shape[layout.R-2] = gradOutput.Layout().Shape[layout.R-2]
		shape[layout.R-1] = bT.Layout().Shape[layout.R-1]
		contrib, err := storage.New(reg, a.Backend, shape)
		if err != nil {
			return err
		}
		if err := storage.Gemm(1, gradOutput, bT, 0, contrib); err != nil {
			return err
		}
		err = accumulateGrad(reg, 1, contrib, gradInputs[0])
		contrib.Free()
		bT.Free()
		if err != nil {
			return err
		}
	}

	if inputRequiresGrad[1] && gradInputs[1] != nil {
		aT, err := transposeLastTwo(a)
		if err != nil {
			return err
		}
		batchL, _, err := layout.BroadcastBatch(aT.Layout(), gradOutput.Layout())
		if err != nil {
			return err
		}
		shape := fullShape(batchL)
		shape[layout.R-2] = aT.Layout().Shape[layout.R-2]
		shape[layout.R-1] = gradOutput.Layout().Shape[layout.R-1]
		contrib, err := storage.New(reg, a.Backend, shape)
		if err != nil {
			return err
		}
		if err := storage.Gemm(1, aT, gradOutput, 0, contrib); err != nil {
			return err
		}
		err = accumulateGrad(reg, 1, contrib, gradInputs[1])
		contrib.Free()
		aT.Free()
		if err != nil {
			return err
		}
	}
	return nil
}

func transposeForward(reg *registry.Registry, inputs []*storage.Storage, md Metadata, requiresGrad bool) (*storage.Storage, interface{}, error) {
	out, err := inputs[0].Transpose(md.Perm)
	if err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}

func transposeBackward(reg *registry.Registry, inputs []*storage.Storage, output, gradOutput *storage.Storage, md Metadata, ctx interface{}, gradInputs []*storage.Storage, inputRequiresGrad []bool) error {
	if !inputRequiresGrad[0] || gradInputs[0] == nil {
		return nil
	}
	invPerm := make([]int, len(md.Perm))
	for i, p := range md.Perm {
		invPerm[p] = i
	}
	contrib, err := gradOutput.Transpose(invPerm)
	if err != nil {
		return err
	}
	defer contrib.Free()
	return accumulateGrad(reg, 1, contrib, gradInputs[0])
}

func reshapeForward(reg *registry.Registry, inputs []*storage.Storage, md Metadata, requiresGrad bool) (*storage.Storage, interface{}, error) {
	out, err := inputs[0].Reshape(md.Shape)
	if err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}

func reshapeBackward(reg *registry.Registry, inputs []*storage.Storage, output, gradOutput *storage.Storage, md Metadata, ctx interface{}, gradInputs []*storage.Storage, inputRequiresGrad []bool) error {
	if !inputRequiresGrad[0] || gradInputs[0] == nil {
		return nil
	}
	contrib, err := gradOutput.Reshape(inputs[0].Shape())
	if err != nil {
		return err
	}
	defer contrib.Free()
	return accumulateGrad(reg, 1, contrib, gradInputs[0])
}

func reduceSumForward(reg *registry.Registry, inputs []*storage.Storage, md Metadata, requiresGrad bool) (*storage.Storage, interface{}, error) {
	src := inputs[0]
	reducedL, err := src.Layout().Reduce(md.Mask)
	if err != nil {
		return nil, nil, err
	}
	dst, err := storage.New(reg, src.Backend, fullShape(reducedL))
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Reduce(1, src, md.Mask, 0, dst); err != nil {
		return nil, nil, err
	}
	return dst, nil, nil
}

func reduceSumBackward(reg *registry.Registry, inputs []*storage.Storage, output, gradOutput *storage.Storage, md Metadata, ctx interface{}, gradInputs []*storage.Storage, inputRequiresGrad []bool) error {
	if !inputRequiresGrad[0] || gradInputs[0] == nil {
		return nil
	}
	// gradOutput already carries 1s at the reduced axes; broadcasting it
	// back up to the input's shape and accumulating is the gradient of a
	// sum (every element of the summed axis gets the same upstream
	// gradient).
	return storage.Axpy(1, gradOutput, gradInputs[0], gradInputs[0])
}
