// Package tensor is the public façade over the graph/storage/backend
// layers: a Tensor is a handle into a Context's compute graph, and every
// op builds a lazy node rather than computing eagerly (spec.md §4.G).
package tensor

import (
	"io"
	"sync"

	"github.com/ndoll1998/cgrad/backend"
	"github.com/ndoll1998/cgrad/graph"
	"github.com/ndoll1998/cgrad/optable"
	"github.com/ndoll1998/cgrad/registry"
)

// Context bundles the two process-wide singletons spec.md §9 calls out
// (the compute graph and the storage registry) plus the backend table
// and gradient-mode flag, as fields on a value instead of package
// globals — the "global" API in global.go is a thin wrapper over one
// default Context.
type Context struct {
	mu sync.Mutex

	reg      *registry.Registry
	graph    *graph.Graph
	backends *backend.Registry

	defaultBackend string
	gradEnabled    bool
}

// ContextOption configures a Context at construction.
type ContextOption func(*Context)

// WithBackend registers be under its own name. The first backend
// registered becomes the context's default.
func WithBackend(be backend.Backend) ContextOption {
	return func(c *Context) {
		c.backends.Register(be)
		if c.defaultBackend == "" {
			c.defaultBackend = be.Name()
		}
	}
}

// WithDefaultBackendName overrides which registered backend New uses
// when no per-tensor backend is specified.
func WithDefaultBackendName(name string) ContextOption {
	return func(c *Context) { c.defaultBackend = name }
}

// WithGradEnabled sets the initial gradient-mode flag (default true).
func WithGradEnabled(v bool) ContextOption {
	return func(c *Context) { c.gradEnabled = v }
}

// NewContext builds a Context with its own graph and registry.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		reg:         registry.New(),
		backends:    backend.NewRegistry(),
		gradEnabled: true,
	}
	c.graph = graph.New(optable.Default(), c.reg)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnableGrad/DisableGrad/IsGradEnabled toggle the process-wide default
// used at leaf creation (spec.md §4.G, §6).
func (c *Context) EnableGrad() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gradEnabled = true
}

func (c *Context) DisableGrad() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gradEnabled = false
}

func (c *Context) IsGradEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gradEnabled
}

// Teardown fails if any tensor is still live, mirroring registry.Teardown
// (spec.md invariant 10: registry conservation at process teardown).
func (c *Context) Teardown() error {
	return c.reg.Teardown()
}

// WriteDOT dumps the subgraph reachable from t as Graphviz DOT (spec.md
// §6's debug helper).
func (c *Context) WriteDOT(w io.Writer, t *Tensor) error {
	return c.graph.WriteDOT(w, t.id)
}

func (c *Context) lookupBackend(name string) (backend.Backend, error) {
	if name == "" {
		name = c.defaultBackend
	}
	return c.backends.Lookup(name)
}
