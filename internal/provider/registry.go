package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/josh-kwaku/settlement/internal/domain"
)

// Registry resolves providers by name. It is built once at startup and never
// mutated, so it is safe for concurrent use.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		name := normalize(p.Name())
		if name == "" {
			return nil, fmt.Errorf("NewRegistry: provider with empty name")
		}
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("NewRegistry: duplicate provider %q", name)
		}
		r.providers[name] = p
	}
	return r, nil
}

func (r *Registry) Resolve(name string) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("Resolve %q: %w", name, domain.ErrProviderNotFound)
	}
	p, ok := r.providers[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("Resolve %q: %w", name, domain.ErrProviderNotFound)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
