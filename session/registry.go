package session

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Registry hands out one Controller per page region.
type Registry struct {
	newFn func(root string) *Controller

	mu       sync.Mutex
	sessions map[string]*Controller
}

// NewRegistry creates a registry that builds controllers with newFn.
func NewRegistry(newFn func(root string) *Controller) *Registry {
	return &Registry{
		newFn:    newFn,
		sessions: make(map[string]*Controller),
	}
}

// Get returns the controller for root, creating it on first use.
func (r *Registry) Get(root string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.sessions[root]
	if !ok {
		c = r.newFn(root)
		r.sessions[root] = c
	}
	return c
}

// Lookup returns the controller for root if it exists.
func (r *Registry) Lookup(root string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[root]
	return c, ok
}

// Roots lists the regions with a controller, sorted.
func (r *Registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]string, 0, len(r.sessions))
	for root := range r.sessions {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// Close stops every controller and forgets them.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	var errs []error
	for _, c := range sessions {
		if err := c.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
