// Package backend defines the kernel vtable every numeric backend must
// implement and a small named registry backends register themselves
// into. The only backend shipped in this module is cpuf32 ("cpu_f32");
// GPU or double-precision backends are out of scope (spec.md §1).
package backend

import (
	"sync"

	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/internal/layout"
)

// Handle is an opaque backend-specific buffer descriptor. Each backend
// defines its own concrete type satisfying this interface.
type Handle interface {
	Layout() *layout.Layout
}

// Backend is the kernel vtable (spec.md §4.B / §6). Every method operates
// on Handles allocated by the same Backend.
type Backend interface {
	// Name is the backend's registration name, e.g. "cpu_f32".
	Name() string

	AllocHandle() Handle
	Init(h Handle, shape []int) error
	Free(h Handle) error

	Fill(h Handle, v float32) error
	FillRand(h Handle) error

	Get(h Handle, idx []int) (float32, error)
	Set(h Handle, idx []int, v float32) error

	// ShallowCopy deep-copies src's layout into dst but shares src's
	// underlying buffer.
	ShallowCopy(src Handle, dst Handle) error

	// Contiguous copies src's logical elements into dst's contiguous
	// buffer. dst must already be allocated with src's shape.
	Contiguous(src Handle, dst Handle) error

	// Axpy computes out <- alpha*x + y. If out and y are the same
	// handle the update is in place. x's layout may differ from y's by
	// broadcasting (zero stride).
	Axpy(alpha float32, x, y, out Handle) error

	// Gemm computes c <- alpha*(a@b) + beta*c, batched over every dim
	// but the trailing two.
	Gemm(alpha float32, a, b Handle, beta float32, c Handle) error

	// Print writes a human-readable dump of h to the returned string,
	// used only by debug tooling.
	Print(h Handle) (string, error)
}

// Registry is a small name -> Backend map. A coarse RWMutex guards it
// (spec.md §5: backend registration is shared state a library can't
// assume is touched by a single goroutine, even though graph execution
// itself is single-threaded).
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds b under its own Name(). Re-registering the same name
// overwrites the previous entry.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Lookup returns the backend registered under name.
func (r *Registry) Lookup(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, cgraderr.New("backend.Lookup", cgraderr.InvalidBackend)
	}
	return b, nil
}
