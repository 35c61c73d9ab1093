// Package provider resolves logical model names to the upstream routes that serve them.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"adaptive-reasoner/internal/models"
)

// ErrUnknownModel indicates the requested model is not registered.
var ErrUnknownModel = errors.New("unknown model")

// ErrDuplicateModel indicates an attempt to register the same model twice.
var ErrDuplicateModel = errors.New("model already registered")

// Registry maintains a mapping of logical model names and aliases to routes.
type Registry struct {
	mu      sync.RWMutex
	routes  map[string]models.Route
	aliases map[string]string
}

// NewRegistry constructs an empty route registry.
func NewRegistry() *Registry {
	return &Registry{
		routes:  make(map[string]models.Route),
		aliases: make(map[string]string),
	}
}

// RegisterRoute adds a route under its logical name.
func (r *Registry) RegisterRoute(route models.Route) error {
	name := strings.TrimSpace(route.Name)
	if name == "" {
		return errors.New("route name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, name)
	}
	if _, exists := r.aliases[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, name)
	}
	r.routes[name] = route
	return nil
}

// RegisterAliases wires alternative names to already registered routes.
func (r *Registry) RegisterAliases(aliases map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for alias, target := range aliases {
		if _, exists := r.routes[alias]; exists {
			return fmt.Errorf("alias %q conflicts with existing model", alias)
		}
		if _, exists := r.aliases[alias]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, alias)
		}
		if _, ok := r.routes[target]; !ok {
			return fmt.Errorf("alias %q references unknown model %q", alias, target)
		}
		r.aliases[alias] = target
	}
	return nil
}

// LookupRoute returns the route serving a model name or alias.
// The returned route keeps Name set to the requested name so responses echo what the
// client asked for.
func (r *Registry) LookupRoute(name string) (models.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[name]
	if !ok {
		target, isAlias := r.aliases[name]
		if !isAlias {
			return models.Route{}, fmt.Errorf("%w: %s", ErrUnknownModel, name)
		}
		route = r.routes[target]
		route.Name = name
	}
	return route, nil
}

// Names lists every registered model name and alias in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes)+len(r.aliases))
	for name := range r.routes {
		names = append(names, name)
	}
	for alias := range r.aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered routes, excluding aliases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}
