package broker

import (
	"slices"
	"sync"
)

// registry records which agents listen to which other agents'
// broadcasts. It is metadata only: nothing is delivered through it.
type registry struct {
	mu sync.RWMutex
	// target -> set of listeners
	subscribers map[string]map[string]struct{}
}

func newRegistry() *registry {
	return &registry{subscribers: make(map[string]map[string]struct{})}
}

func (r *registry) add(listener, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subscribers[target]
	if !ok {
		set = make(map[string]struct{})
		r.subscribers[target] = set
	}
	set[listener] = struct{}{}
}

// remove deletes the edge. Removing an absent edge is a no-op.
func (r *registry) remove(listener, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subscribers[target]
	if !ok {
		return
	}
	delete(set, listener)
	if len(set) == 0 {
		delete(r.subscribers, target)
	}
}

// forget removes every edge that mentions id, in either direction.
func (r *registry) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subscribers, id)
	for target, set := range r.subscribers {
		delete(set, id)
		if len(set) == 0 {
			delete(r.subscribers, target)
		}
	}
}

// listeners returns the sorted subscribers of target.
func (r *registry) listeners(target string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subscribers[target]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// targets returns the sorted ids listener is subscribed to.
func (r *registry) targets(listener string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for target, set := range r.subscribers {
		if _, ok := set[listener]; ok {
			out = append(out, target)
		}
	}
	slices.Sort(out)
	return out
}
