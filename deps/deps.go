// Package deps tracks the external collaborators wallkit needs at runtime:
// the unpacking tool, the wallpaper helper and the tagging model. They are
// never downloaded; deps only reports whether they can be found.
package deps

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Status is the availability of a dependency.
type Status string

const (
	StatusInstalled    Status = "installed"
	StatusNotInstalled Status = "not_installed"
	StatusError        Status = "error"
)

// Dependency is an external component that can be checked.
type Dependency struct {
	ID          string
	Name        string
	Description string
	// Check returns where the dependency was found. An error that says
	// "not found" marks it not installed; any other error is a failed check.
	Check func(ctx context.Context) (path string, err error)
	// IsMissing classifies Check errors. nil treats every error as missing.
	IsMissing func(error) bool
}

// Result is the outcome of checking one dependency.
type Result struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`
	Path        string `json:"path,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Registry holds dependencies in registration order.
type Registry struct {
	mu    sync.RWMutex
	deps  map[string]*Dependency
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{deps: make(map[string]*Dependency)}
}

// Register adds or replaces a dependency.
func (r *Registry) Register(dep *Dependency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deps[dep.ID]; !ok {
		r.order = append(r.order, dep.ID)
	}
	r.deps[dep.ID] = dep
}

// All returns every dependency in registration order.
func (r *Registry) All() []*Dependency {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Dependency, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.deps[id])
	}
	return out
}

// Get retrieves a dependency by ID.
func (r *Registry) Get(id string) (*Dependency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deps[id]
	return d, ok
}

// Check runs one dependency's check.
func Check(ctx context.Context, d *Dependency) Result {
	res := Result{ID: d.ID, Name: d.Name, Description: d.Description}
	path, err := d.Check(ctx)
	switch {
	case err == nil:
		res.Status, res.Path = StatusInstalled, path
	case d.IsMissing == nil || d.IsMissing(err):
		res.Status, res.Error = StatusNotInstalled, err.Error()
	default:
		res.Status, res.Error = StatusError, err.Error()
	}
	return res
}

// CheckAll checks every dependency in order.
func (r *Registry) CheckAll(ctx context.Context) []Result {
	all := r.All()
	out := make([]Result, 0, len(all))
	for _, d := range all {
		out = append(out, Check(ctx, d))
	}
	return out
}

// EnsureAvailable returns the dependency's path, or the check error when it
// cannot be used.
func (r *Registry) EnsureAvailable(ctx context.Context, id string) (string, error) {
	d, ok := r.Get(id)
	if !ok {
		return "", errors.Errorf("unknown dependency: %s", id)
	}
	path, err := d.Check(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "%s unavailable", d.Name)
	}
	return path, nil
}
