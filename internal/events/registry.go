package events

import (
	"fmt"
	"os"
	"sync"

	"scrumgame/internal/domain"
)

// FieldSchema declares one data field of an event type.
type FieldSchema struct {
	Name     string          `json:"name"`
	Type     domain.DataType `json:"type"`
	Required bool            `json:"required"`
}

// Type is an immutable registry entry. MessageTemplate uses ${field} placeholders.
type Type struct {
	Identifier        string            `json:"identifier"`
	Description       string            `json:"description"`
	DefaultVisibility domain.Visibility `json:"default_visibility"`
	Schema            []FieldSchema     `json:"schema"`
	MessageTemplate   string            `json:"message_template,omitempty"`
}

// Render expands the message template with the given data fields.
func (t Type) Render(data []domain.DataField) string {
	if t.MessageTemplate == "" {
		return ""
	}
	return os.Expand(t.MessageTemplate, func(key string) string {
		for _, f := range data {
			if f.Key == key {
				return f.Value
			}
		}
		return ""
	})
}

// Registry is the process-wide catalog of event types, keyed by identifier.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
	order []string
}

func NewRegistry(catalogs ...[]Type) (*Registry, error) {
	r := &Registry{types: map[string]Type{}}
	for _, catalog := range catalogs {
		for _, t := range catalog {
			if err := r.Register(t); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// DefaultRegistry holds the core, IMS, VCS and game catalogs.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(CoreCatalog(), IMSCatalog(), VCSCatalog(), GameCatalog())
	if err != nil {
		panic(fmt.Sprintf("default event catalog: %v", err))
	}
	return r
}

func (r *Registry) Register(t Type) error {
	if t.Identifier == "" {
		return fmt.Errorf("event type identifier required")
	}
	if !t.DefaultVisibility.Valid() {
		return fmt.Errorf("event type %s has invalid default visibility %q", t.Identifier, t.DefaultVisibility)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.Identifier]; ok {
		return fmt.Errorf("event type %s already registered", t.Identifier)
	}
	r.types[t.Identifier] = t
	r.order = append(r.order, t.Identifier)
	return nil
}

func (r *Registry) Lookup(identifier string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[identifier]
	return t, ok
}

// All returns the registered types in registration order.
func (r *Registry) All() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.types[id])
	}
	return out
}
