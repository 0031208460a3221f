package ability

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateName is returned when a name is already registered.
var ErrDuplicateName = errors.New("ability: duplicate name")

// Registry holds the full set of invocable abilities. It performs no
// permission checks and never deletes entries at runtime. Registration
// happens at startup; reads are safe across concurrent runs.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Ability
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Ability)}
}

// Register adds one ability. It fails when the name is empty or taken.
func (r *Registry) Register(a Ability) error {
	if a == nil {
		return fmt.Errorf("ability: nil ability")
	}
	name := a.Name()
	if name == "" {
		return fmt.Errorf("ability: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.byName[name] = a
	r.order = append(r.order, name)
	return nil
}

// RegisterAll registers abilities in order, stopping at the first failure.
func (r *Registry) RegisterAll(abilities ...Ability) error {
	for _, a := range abilities {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// ListAll returns all abilities in registration order.
func (r *Registry) ListAll() []Ability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Ability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Lookup returns one ability by name.
func (r *Registry) Lookup(name string) (Ability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}
