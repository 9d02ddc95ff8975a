// Package registry implements the storage aliasing registry: buckets of
// storages that share one underlying allocation, and scoped recorders
// that collect every storage registered during a dynamic region so a
// caller can free them all at once (spec.md §3, §4.D).
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ndoll1998/cgrad/cgraderr"
)

// Releaser frees the backend buffer owned by a bucket's root storage.
// storage.Storage implements this so the registry never needs to import
// the storage package (which itself imports registry).
type Releaser interface {
	ReleaseBuffer() error
}

// bucket is the equivalence class of storages sharing one allocation.
// Only the root's buffer is ever actually deallocated — members share
// the root's underlying buffer and don't own it.
type bucket struct {
	root    uuid.UUID
	release Releaser
	members map[uuid.UUID]bool
}

// Registry is the process- or context-wide bookkeeping structure. A
// single coarse mutex guards it, per spec.md §5/§9.
type Registry struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*bucket // storage uuid -> its bucket
	recorder []*Recorder           // active recorders, stack order (LIFO)
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[uuid.UUID]*bucket)}
}

// Register adds storage id to the registry. If parent is the zero UUID,
// id becomes the root of a brand-new bucket and rel is the releaser
// invoked when the bucket later empties. Otherwise id joins parent's
// bucket (rel is ignored — only the root's buffer is ever released);
// parent must already be registered.
func (r *Registry) Register(id uuid.UUID, rel Releaser, parent uuid.UUID) error {
	const op = "registry.Register"
	r.mu.Lock()
	defer r.mu.Unlock()

	var b *bucket
	if parent == (uuid.UUID{}) {
		b = &bucket{root: id, release: rel, members: map[uuid.UUID]bool{id: true}}
	} else {
		parentBucket, ok := r.entries[parent]
		if !ok {
			return cgraderr.New(op, cgraderr.ParentNotRegistered)
		}
		parentBucket.members[id] = true
		b = parentBucket
	}
	r.entries[id] = b
	for _, rec := range r.recorder {
		rec.capture(id)
	}
	return nil
}

// Deregister removes id from its bucket. If the bucket's member set
// becomes empty, the root's buffer is released exactly once. Deregister
// also removes id from every active recorder's captured set.
func (r *Registry) Deregister(id uuid.UUID) error {
	const op = "registry.Deregister"
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.entries[id]
	if !ok {
		return cgraderr.New(op, cgraderr.RecordNotFound)
	}
	delete(b.members, id)
	delete(r.entries, id)
	for _, rec := range r.recorder {
		rec.forget(id)
	}

	if len(b.members) == 0 {
		return b.release.ReleaseBuffer()
	}
	return nil
}

// LiveBuckets reports how many distinct buckets are currently tracked,
// used by invariant 10 (registry conservation at teardown).
func (r *Registry) LiveBuckets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	for _, b := range r.entries {
		seen[b.root] = true
	}
	return len(seen)
}

// LiveStorages reports how many storages are currently registered.
func (r *Registry) LiveStorages() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Teardown fails with RegistryNotEmpty if any storage is still
// registered; otherwise it is a no-op (nothing to release).
func (r *Registry) Teardown() error {
	const op = "registry.Teardown"
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) != 0 {
		return cgraderr.New(op, cgraderr.RegistryNotEmpty)
	}
	return nil
}
