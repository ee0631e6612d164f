package provider

import (
	"errors"
	"fmt"

	"github.com/teemow/calbridge/internal/event"
)

// Registry is the fixed table of backend adapters, one per source.
type Registry struct {
	adapters []Adapter
	bySource map[event.Source]Adapter
}

// NewRegistry builds a registry from adapters in the given order.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		bySource: make(map[event.Source]Adapter, len(adapters)),
	}
	for _, a := range adapters {
		if err := r.register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(a Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}
	source := a.Source()
	if !source.Valid() {
		return fmt.Errorf("calendar %q is not implemented", source)
	}
	if _, ok := r.bySource[source]; ok {
		return fmt.Errorf("calendar %q is already registered", source)
	}
	r.adapters = append(r.adapters, a)
	r.bySource[source] = a
	return nil
}

// Configured returns the adapters whose static configuration is complete, in
// registration order.
func (r *Registry) Configured() []Adapter {
	var out []Adapter
	for _, a := range r.adapters {
		if a.IsConfigured() {
			out = append(out, a)
		}
	}
	return out
}
