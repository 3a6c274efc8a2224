// Package registry caches compiled units by name. The first successful
// compilation under a name wins and is never replaced.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tqc/go-razor/internal/compiler"
	"github.com/tqc/go-razor/page"
)

// CompileFunc produces the unit to register.
type CompileFunc func(ctx context.Context) (*compiler.Unit, error)

// Registry maps template names to compiled units. It is safe for concurrent
// use; readers never wait on compilations in flight.
type Registry struct {
	mu    sync.RWMutex
	units map[string]*compiler.Unit
	group singleflight.Group
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{units: map[string]*compiler.Unit{}}
}

// Get returns the unit registered under name.
func (r *Registry) Get(name string) (*compiler.Unit, error) {
	r.mu.RLock()
	u, ok := r.units[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &page.TemplateNotFoundError{Name: name}
	}
	return u, nil
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.units[name]
	return ok
}

// Compile returns the unit registered under name, compiling it with fn when
// absent. Concurrent calls for the same absent name share one compilation.
// An empty name compiles a fresh unit without caching it. Failed
// compilations register nothing.
func (r *Registry) Compile(ctx context.Context, name string, fn CompileFunc) (*compiler.Unit, bool, error) {
	if name == "" {
		u, err := fn(ctx)
		return u, false, err
	}
	if u, err := r.Get(name); err == nil {
		return u, true, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		// Double check: a previous flight may have finished between our
		// read and joining this one.
		if u, err := r.Get(name); err == nil {
			return u, nil
		}
		u, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.units[name]; ok {
			return existing, nil
		}
		r.units[name] = u
		return u, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("[registry] %s: %w", name, err)
	}
	return v.(*compiler.Unit), false, nil
}

// Names lists the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
