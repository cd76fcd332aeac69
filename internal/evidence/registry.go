package evidence

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds provider descriptors keyed by name. It is populated at
// startup and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]Descriptor
}

// NewRegistry creates a registry and registers the given descriptors.
func NewRegistry(ds ...Descriptor) (*Registry, error) {
	r := &Registry{byKey: map[string]Descriptor{}}
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a descriptor. A name may only be registered once.
func (r *Registry) Register(d Descriptor) error {
	if r == nil {
		return fmt.Errorf("evidence: registry is nil")
	}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fmt.Errorf("evidence: provider name is required")
	}
	if d.Fetcher == nil {
		return fmt.Errorf("evidence: provider %q has no fetcher", name)
	}
	d.Name = name
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byKey == nil {
		r.byKey = map[string]Descriptor{}
	}
	if _, ok := r.byKey[name]; ok {
		return &DuplicateProviderError{Name: name}
	}
	r.byKey[name] = d
	r.order = append(r.order, name)
	return nil
}

// Get returns a single descriptor.
func (r *Registry) Get(name string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[name]
	return d, ok
}

// Resolve returns descriptors for names in the given order, skipping
// duplicates. Unmatched names are reported through *UnknownProviderError
// alongside the descriptors that did resolve.
func (r *Registry) Resolve(names []string) ([]Descriptor, error) {
	if r == nil {
		return nil, fmt.Errorf("evidence: registry is nil")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(names))
	out := make([]Descriptor, 0, len(names))
	var unknown []string
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		d, ok := r.byKey[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, d)
	}
	if len(unknown) > 0 {
		return out, &UnknownProviderError{Names: unknown}
	}
	return out, nil
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byKey[n])
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ByKeyword returns descriptors that declare the keyword, in registration
// order.
func (r *Registry) ByKeyword(keyword string) []Descriptor {
	if r == nil {
		return nil
	}
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, n := range r.order {
		d := r.byKey[n]
		for _, k := range d.Keywords {
			if strings.ToLower(k) == keyword {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
