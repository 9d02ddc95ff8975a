package registry

import (
	"github.com/google/uuid"

	"github.com/ndoll1998/cgrad/cgraderr"
)

// Recorder captures every storage registered between StartRecording and
// StopRecording, so a caller can bulk-free the intermediates produced
// inside a dynamic region. Recorders nest; they must be stopped in LIFO
// order (spec.md §5).
type Recorder struct {
	r        *Registry
	captured map[uuid.UUID]bool
}

func (rec *Recorder) capture(id uuid.UUID) { rec.captured[id] = true }
func (rec *Recorder) forget(id uuid.UUID)  { delete(rec.captured, id) }

// StartRecording pushes a new recorder onto the registry's stack.
func (r *Registry) StartRecording() *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &Recorder{r: r, captured: make(map[uuid.UUID]bool)}
	r.recorder = append(r.recorder, rec)
	return rec
}

// StopRecording pops rec off the registry's stack. rec must be the most
// recently started still-active recorder (LIFO).
func (r *Registry) StopRecording(rec *Recorder) error {
	const op = "registry.StopRecording"
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.recorder)
	if n == 0 || r.recorder[n-1] != rec {
		return cgraderr.New(op, cgraderr.RecordNotFound)
	}
	r.recorder = r.recorder[:n-1]
	return nil
}

// FreeAll deregisters every storage captured by rec, via the registry's
// normal Deregister path (so bucket release-on-empty still applies).
// rec must already have been stopped.
func (r *Registry) FreeAll(rec *Recorder) error {
	for id := range rec.captured {
		if err := r.Deregister(id); err != nil {
			return err
		}
	}
	return nil
}
