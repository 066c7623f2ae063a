package machine

import (
	"fmt"
	"slices"
	"sync"
)

// Registry indexes the controllers of every configured machine.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]*Controller
}

func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]*Controller)}
}

func (r *Registry) Add(c *Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.MachineID()
	if _, exists := r.controllers[id]; exists {
		return fmt.Errorf("machine %s already registered", id)
	}
	r.controllers[id] = c
	return nil
}

func (r *Registry) Get(machineID string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[machineID]
	return c, ok
}

// List returns controllers sorted by machine id.
func (r *Registry) List() []*Controller {
	r.mu.RLock()
	ids := make([]string, 0, len(r.controllers))
	for id := range r.controllers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	out := make([]*Controller, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.Get(id); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) ResetAllDaily() {
	for _, c := range r.List() {
		c.ResetDaily()
	}
}
