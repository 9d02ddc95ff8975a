// Package cgraderr is the single consolidated error taxonomy shared by
// every layer of cgrad. The source this project is based on split error
// prefixes by header (CGRAD_ERR_* vs CGRAD_TENSOR_ERR_*); this package
// replaces both with one Code enum.
package cgraderr

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Codes are grouped by the category
// that produces them (argument, resource, layout, storage, registry,
// graph) but live in one flat enum rather than per-package constants.
type Code int

const (
	// Argument
	NullInput Code = iota + 1
	NotInitialized

	// Resource
	AllocFailed

	// Layout
	IndexOutOfBounds
	BroadcastMismatch
	DuplicatePermutation
	ReshapeInvalidShape
	NotRegular
	NotContiguous
	ShapeMismatch

	// Storage
	BackendMismatch
	HandleUninitialized
	InvalidBackend

	// Registry
	ParentNotRegistered
	BucketNotEmpty
	RegistryNotEmpty
	RecordNotFound

	// Graph
	InvalidOperation
	TopologicalSortFailed
	ExecutionFailed
	NodeNotFound
	TooManyInputs
	BackwardNotImplemented
	GradientNotAvailable
	ForwardNotExecuted
	RequiresGradFalse

	// Not-implemented
	NotImplemented
)

func (c Code) String() string {
	switch c {
	case NullInput:
		return "NullInput"
	case NotInitialized:
		return "NotInitialized"
	case AllocFailed:
		return "AllocFailed"
	case IndexOutOfBounds:
		return "IndexOutOfBounds"
	case BroadcastMismatch:
		return "BroadcastMismatch"
	case DuplicatePermutation:
		return "DuplicatePermutation"
	case ReshapeInvalidShape:
		return "ReshapeInvalidShape"
	case NotRegular:
		return "NotRegular"
	case NotContiguous:
		return "NotContiguous"
	case ShapeMismatch:
		return "ShapeMismatch"
	case BackendMismatch:
		return "BackendMismatch"
	case HandleUninitialized:
		return "HandleUninitialized"
	case InvalidBackend:
		return "InvalidBackend"
	case ParentNotRegistered:
		return "ParentNotRegistered"
	case BucketNotEmpty:
		return "BucketNotEmpty"
	case RegistryNotEmpty:
		return "RegistryNotEmpty"
	case RecordNotFound:
		return "RecordNotFound"
	case InvalidOperation:
		return "InvalidOperation"
	case TopologicalSortFailed:
		return "TopologicalSortFailed"
	case ExecutionFailed:
		return "ExecutionFailed"
	case NodeNotFound:
		return "NodeNotFound"
	case TooManyInputs:
		return "TooManyInputs"
	case BackwardNotImplemented:
		return "BackwardNotImplemented"
	case GradientNotAvailable:
		return "GradientNotAvailable"
	case ForwardNotExecuted:
		return "ForwardNotExecuted"
	case RequiresGradFalse:
		return "RequiresGradFalse"
	case NotImplemented:
		return "NotImplemented"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across package boundaries.
// Op names the operation that failed (e.g. "layout.Reshape"); Err is the
// wrapped cause, if any.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports equality by Code so errors.Is(err, cgraderr.New(op, Code))
// matches any *Error with the same code, regardless of Op/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds a fresh *Error with no wrapped cause.
func New(op string, code Code) *Error {
	return &Error{Code: code, Op: op}
}

// Wrap builds a fresh *Error wrapping an existing error. If err is
// already a *Error, its Code is preserved unless code is nonzero.
func Wrap(op string, code Code, err error) *Error {
	if err == nil {
		return New(op, code)
	}
	if code == 0 {
		var inner *Error
		if errors.As(err, &inner) {
			code = inner.Code
		}
	}
	return &Error{Code: code, Op: op, Err: err}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// Sentinel errors for the codes callers most commonly branch on.
var (
	ErrGradientNotAvailable = New("", GradientNotAvailable)
	ErrForwardNotExecuted   = New("", ForwardNotExecuted)
	ErrNotImplemented       = New("", NotImplemented)
)
