// Package optable holds the static table mapping each graph op kind to
// its forward/backward implementation (spec.md §4.E). Every op operates
// on full rank-R layouts; Perm and Mask metadata are passed through from
// the tensor façade unchanged and address the trailing len(Perm) or
// len(Mask) dims.
package optable

import (
	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/registry"
	"github.com/ndoll1998/cgrad/storage"
)

// Kind identifies which op a graph node computes.
type Kind int

const (
	Leaf Kind = iota
	Axpy
	Gemm
	Transpose
	Reshape
	ReduceSum
)

func (k Kind) String() string {
	switch k {
	case Leaf:
		return "Leaf"
	case Axpy:
		return "Axpy"
	case Gemm:
		return "Gemm"
	case Transpose:
		return "Transpose"
	case Reshape:
		return "Reshape"
	case ReduceSum:
		return "ReduceSum"
	default:
		return "Unknown"
	}
}

// Metadata is the tagged-union payload an op reads at forward/backward
// time. Only the fields relevant to a given Kind are populated; the
// source this package is modeled on used a C union keyed by op_kind,
// this is its Go equivalent — a single struct with per-op fields rather
// than per-op types, since every op's metadata is small and none of
// them are mutually exclusive in representation.
type Metadata struct {
	Alpha float32 // Axpy, Gemm forward scale
	Beta  float32 // Gemm forward accumulation scale (0 for graph use)
	Perm  []int   // Transpose
	Shape []int   // Reshape target shape
	Mask  []int   // ReduceSum axis mask, one entry per addressed dim
}

// ForwardFunc computes a node's output storage from its input storages.
// It may allocate a fresh storage via reg and must not mutate inputs.
// The returned context is passed to Backward and later to FreeContext;
// nil is a valid context for ops that need none.
type ForwardFunc func(reg *registry.Registry, inputs []*storage.Storage, md Metadata, requiresGrad bool) (out *storage.Storage, ctx interface{}, err error)

// BackwardFunc accumulates each input's gradient contribution into
// gradInputs[i], for every i where inputRequiresGrad[i] is true and
// gradInputs[i] is non-nil. It must tolerate gradInputs[i] aliasing one
// of the inputs (accumulation, never overwrite).
type BackwardFunc func(reg *registry.Registry, inputs []*storage.Storage, output *storage.Storage, gradOutput *storage.Storage, md Metadata, ctx interface{}, gradInputs []*storage.Storage, inputRequiresGrad []bool) error

// FreeContextFunc releases any resources a Forward call stashed in ctx.
type FreeContextFunc func(ctx interface{}) error

// Descriptor is one op kind's {name, forward, backward, free_context?}.
type Descriptor struct {
	Name        string
	Forward     ForwardFunc
	Backward    BackwardFunc
	FreeContext FreeContextFunc
}

// Table is the static Kind -> Descriptor map.
type Table map[Kind]Descriptor

// Lookup fetches a kind's descriptor, failing InvalidOperation if the
// kind is unregistered.
func (t Table) Lookup(k Kind) (Descriptor, error) {
	d, ok := t[k]
	if !ok {
		return Descriptor{}, cgraderr.New("optable.Lookup", cgraderr.InvalidOperation)
	}
	return d, nil
}

// Default builds the table every graph is constructed with.
func Default() Table {
	return Table{
		Axpy:      {Name: "Axpy", Forward: axpyForward, Backward: axpyBackward},
		Gemm:      {Name: "Gemm", Forward: gemmForward, Backward: gemmBackward},
		Transpose: {Name: "Transpose", Forward: transposeForward, Backward: transposeBackward},
		Reshape:   {Name: "Reshape", Forward: reshapeForward, Backward: reshapeBackward},
		ReduceSum: {Name: "ReduceSum", Forward: reduceSumForward, Backward: reduceSumBackward},
	}
}
