// ABOUTME: Renderer registry reconciling repeated discovery passes
// ABOUTME: Tolerates one missed multicast response before dropping a device
package upnp

import (
	"sort"
	"sync"
)

// missLimit is how many consecutive passes a known device may be absent from
// before it is dropped. One missed pass is tolerated because multicast
// responses get lost on busy networks.
const missLimit = 2

type registryEntry struct {
	renderer Renderer
	misses   int
}

// Registry holds the reconciled renderer set across discovery passes.
type Registry struct {
	mu      sync.Mutex
	entries map[string]registryEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Update folds one discovery pass into the registry and reports which
// renderers appeared and which were dropped. A seen device always replaces
// its stored descriptor wholesale, so endpoint changes take effect without
// in-place mutation.
func (r *Registry) Update(seen []Renderer) (added, removed []Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inPass := make(map[string]struct{}, len(seen))
	for _, ren := range seen {
		inPass[ren.ID] = struct{}{}
		if _, known := r.entries[ren.ID]; !known {
			added = append(added, ren)
		}
		r.entries[ren.ID] = registryEntry{renderer: ren}
	}

	for id, e := range r.entries {
		if _, ok := inPass[id]; ok {
			continue
		}
		e.misses++
		if e.misses >= missLimit {
			removed = append(removed, e.renderer)
			delete(r.entries, id)
			continue
		}
		r.entries[id] = e
	}
	return added, removed
}

// Renderers returns a stable, name-sorted snapshot of known renderers.
func (r *Registry) Renderers() []Renderer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Renderer, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.renderer)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get looks a renderer up by id.
func (r *Registry) Get(id string) (Renderer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e.renderer, ok
}
