package simnode

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/golobby/cast"
)

// Properties is a small typed configuration-property store. Components
// persist runtime-visible settings here (the selected main clock, the
// clock-master timeout); values are stored as strings and coerced on
// read. The generic hierarchical configuration store of the surrounding
// infrastructure is a collaborator, not part of this runtime; this store
// covers only what the components themselves publish.
type Properties struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewProperties creates an empty property store.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]string)}
}

// Set stores a property value; non-string values are stored in their
// canonical string form.
func (p *Properties) Set(name string, value any) error {
	if name == "" {
		return fmt.Errorf("property name must not be empty: %w", ErrInvalidArg)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = fmt.Sprintf("%v", value)
	return nil
}

// GetString returns a property value, or def when unset.
func (p *Properties) GetString(name, def string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[name]; ok {
		return v
	}
	return def
}

// coerce converts the stored string to the type of def, falling back to
// def when the property is unset or not convertible.
func coerce[T any](p *Properties, name string, def T) T {
	p.mu.RLock()
	v, ok := p.values[name]
	p.mu.RUnlock()
	if !ok {
		return def
	}
	converted, err := cast.FromType(v, reflect.TypeOf(def))
	if err != nil {
		return def
	}
	typed, ok := converted.(T)
	if !ok {
		return def
	}
	return typed
}

// GetInt64 returns a property coerced to int64, or def when unset or
// not coercible.
func (p *Properties) GetInt64(name string, def int64) int64 {
	return coerce(p, name, def)
}

// GetFloat64 returns a property coerced to float64, or def when unset
// or not coercible.
func (p *Properties) GetFloat64(name string, def float64) float64 {
	return coerce(p, name, def)
}

// GetBool returns a property coerced to bool, or def when unset or not
// coercible.
func (p *Properties) GetBool(name string, def bool) bool {
	return coerce(p, name, def)
}
