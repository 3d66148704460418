// Package perch implements the named data containers that sit on a circuit
// board. A perch holds a fixed set of keyed value slots and tracks which of
// them have been written at least once; an unwritten slot is "absent", which
// is distinct from a key that is not part of the schema at all.
package perch

import (
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Reserved data keys present on every perch. KeyUp carries a computed
// function or policy flowing against the forward iteration direction; KeyDown
// carries a state or distribution flowing with it.
const (
	KeyUp   = "up"
	KeyDown = "down"
)

var (
	// ErrKeyNotFound is returned when a key is not part of a perch's schema.
	ErrKeyNotFound = errors.New("key not found")
	// ErrDuplicateKey is returned when extending a schema with a key it
	// already has.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNilValue is returned when writing the absent placeholder to a
	// slot.
	ErrNilValue = errors.New("nil value")
)

// Perch is a named container of keyed value slots. The schema is fixed at
// construction unless explicitly extended with AddKey. The zero value is not
// usable; use New.
type Perch struct {
	name        string
	keys        []string
	data        map[string]cty.Value
	initialized map[string]bool
}

// New creates a perch with the reserved "up" and "down" slots plus any extra
// schema keys. All slots start absent.
func New(name string, extraKeys ...string) *Perch {
	p := &Perch{
		name:        name,
		data:        make(map[string]cty.Value),
		initialized: make(map[string]bool),
	}
	for _, k := range append([]string{KeyUp, KeyDown}, extraKeys...) {
		if _, ok := p.data[k]; ok {
			continue
		}
		p.keys = append(p.keys, k)
		p.data[k] = cty.NilVal
	}
	return p
}

// Name returns the perch's unique identifier within its board.
func (p *Perch) Name() string { return p.name }

// Keys returns the schema keys in declaration order.
func (p *Perch) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// HasKey reports whether key is part of the schema.
func (p *Perch) HasKey(key string) bool {
	_, ok := p.data[key]
	return ok
}

// Get returns the value stored under key. Reading a schema key that has not
// been written yet returns cty.NilVal with no error; reading a key outside
// the schema fails with ErrKeyNotFound.
func (p *Perch) Get(key string) (cty.Value, error) {
	v, ok := p.data[key]
	if !ok {
		return cty.NilVal, fmt.Errorf("%w: key %q in perch %q", ErrKeyNotFound, key, p.name)
	}
	return v, nil
}

// Set stores value under key and marks the key initialized. Fails with
// ErrKeyNotFound if key is not part of the schema and with ErrNilValue if
// value is cty.NilVal, the absent placeholder. Emptying a slot goes through
// Clear.
func (p *Perch) Set(key string, value cty.Value) error {
	if _, ok := p.data[key]; !ok {
		return fmt.Errorf("%w: key %q in perch %q", ErrKeyNotFound, key, p.name)
	}
	if value == cty.NilVal {
		return fmt.Errorf("%w: key %q in perch %q", ErrNilValue, key, p.name)
	}
	p.data[key] = value
	p.initialized[key] = true
	return nil
}

// AddKey extends the schema with a new slot, optionally seeded with an
// initial value (pass cty.NilVal to leave it absent).
func (p *Perch) AddKey(key string, initial cty.Value) error {
	if _, ok := p.data[key]; ok {
		return fmt.Errorf("%w: key %q in perch %q", ErrDuplicateKey, key, p.name)
	}
	p.keys = append(p.keys, key)
	p.data[key] = initial
	if initial != cty.NilVal {
		p.initialized[key] = true
	}
	return nil
}

// IsInitialized reports whether every listed key holds a non-absent value.
// With no arguments it checks every schema key. Keys outside the schema are
// never initialized.
func (p *Perch) IsInitialized(keys ...string) bool {
	if len(keys) == 0 {
		keys = p.keys
	}
	for _, k := range keys {
		if !p.initialized[k] {
			return false
		}
	}
	return true
}

// InitializedKeys returns the schema keys currently holding a value, in
// declaration order.
func (p *Perch) InitializedKeys() []string {
	var out []string
	for _, k := range p.keys {
		if p.initialized[k] {
			out = append(out, k)
		}
	}
	return out
}

// Clear resets the listed keys (or every key, with no arguments) to absent.
// Keys outside the schema are ignored; the schema itself never shrinks.
func (p *Perch) Clear(keys ...string) {
	if len(keys) == 0 {
		keys = p.keys
	}
	for _, k := range keys {
		if _, ok := p.data[k]; ok {
			p.data[k] = cty.NilVal
			delete(p.initialized, k)
		}
	}
}

// String renders the perch with its initialized keys, for logs and tests.
func (p *Perch) String() string {
	return fmt.Sprintf("Perch(%s, initialized=%v)", p.name, p.InitializedKeys())
}
