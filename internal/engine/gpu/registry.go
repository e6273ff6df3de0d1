package gpu

import (
	"sync"

	"go.uber.org/zap"
)

// Registry owns device resources for one subsystem. Resources handed to
// Release are destroyed by the next Collect, which callers run only after
// the GPU can no longer reference them. Close destroys everything.
type Registry struct {
	mu      sync.Mutex
	log     *zap.Logger
	live    map[Destroyer]string
	pending []Destroyer
}

// NewRegistry returns an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log, live: make(map[Destroyer]string)}
}

// Track takes ownership of d under the given label.
func (r *Registry) Track(d Destroyer, label string) {
	if d == nil {
		return
	}
	r.mu.Lock()
	r.live[d] = label
	r.mu.Unlock()
}

// Release schedules d for destruction at the next Collect.
// Resources the registry does not own are ignored.
func (r *Registry) Release(d Destroyer) {
	if d == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[d]; !ok {
		return
	}
	delete(r.live, d)
	r.pending = append(r.pending, d)
}

// Collect destroys released resources and returns how many were destroyed.
func (r *Registry) Collect() int {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, d := range pending {
		d.Destroy()
	}
	return len(pending)
}

// Live returns the number of owned resources not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Pending returns the number of released resources awaiting Collect.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close destroys every resource the registry still owns.
func (r *Registry) Close() {
	n := r.Collect()

	r.mu.Lock()
	live := r.live
	r.live = make(map[Destroyer]string)
	r.mu.Unlock()

	for d, label := range live {
		r.log.Debug("destroying resource", zap.String("label", label))
		d.Destroy()
	}
	r.log.Debug("registry closed", zap.Int("released", n), zap.Int("live", len(live)))
}
