// Package registry maps operation names to transform factories, so movers
// declared with a map like {op = "scale", factor = 2} can be turned back
// into executable transforms. Boards restored from a snapshot rebuild all
// their transforms through a registry, which is what makes the declarative
// form portable.
package registry

import (
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/circuitgo/internal/mover"
)

var (
	// ErrUnknownOp is returned when no factory is registered for a name.
	ErrUnknownOp = errors.New("unknown op")
	// ErrDuplicateOp is returned when a name is registered twice.
	ErrDuplicateOp = errors.New("duplicate op")
	// ErrBadMap is returned when a mover map is not an object carrying a
	// string "op" attribute.
	ErrBadMap = errors.New("malformed mover map")
	// ErrMissingArgument is returned when an op needs an argument that is
	// in neither the map nor the parameters.
	ErrMissingArgument = errors.New("missing op argument")
)

// OpFactory builds a transform for one named op from the mover's
// declarative fields.
type OpFactory func(bp mover.Blueprint) (mover.Transform, error)

// Registry holds named op factories. The zero value is not usable; call
// New or Default.
type Registry struct {
	factories map[string]OpFactory
	order     []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]OpFactory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f OpFactory) error {
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("op %q: %w", name, ErrDuplicateOp)
	}
	r.factories[name] = f
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (OpFactory, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("op %q: %w", name, ErrUnknownOp)
	}
	return f, nil
}

// Ops lists registered names in registration order.
func (r *Registry) Ops() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Factory adapts the registry into a mover.Factory: the mover's map names
// the op, the factory for that op builds the transform.
func (r *Registry) Factory() mover.Factory {
	return func(bp mover.Blueprint) (mover.Transform, error) {
		name, err := opName(bp.Map)
		if err != nil {
			return nil, err
		}
		f, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		return f(bp)
	}
}

func opName(m cty.Value) (string, error) {
	if m == cty.NilVal {
		return "", mover.ErrNoMapDefined
	}
	if !m.Type().IsObjectType() || !m.Type().HasAttribute("op") {
		return "", fmt.Errorf("map must be an object with an \"op\" attribute: %w", ErrBadMap)
	}
	op := m.GetAttr("op")
	if op.Type() != cty.String {
		return "", fmt.Errorf("\"op\" attribute must be a string: %w", ErrBadMap)
	}
	return op.AsString(), nil
}

// OpMap builds the canonical map object for a named op with its arguments.
func OpMap(name string, args map[string]cty.Value) cty.Value {
	attrs := make(map[string]cty.Value, len(args)+1)
	for k, v := range args {
		attrs[k] = v
	}
	attrs["op"] = cty.StringVal(name)
	return cty.ObjectVal(attrs)
}

// arg looks up a named argument, map attributes first, then parameters.
func arg(bp mover.Blueprint, name string) (cty.Value, bool) {
	for _, src := range []cty.Value{bp.Map, bp.Parameters} {
		if src == cty.NilVal {
			continue
		}
		if src.Type().IsObjectType() && src.Type().HasAttribute(name) {
			return src.GetAttr(name), true
		}
	}
	return cty.NilVal, false
}

func floatArg(bp mover.Blueprint, name string) (float64, error) {
	v, ok := arg(bp, name)
	if !ok {
		return 0, fmt.Errorf("argument %q: %w", name, ErrMissingArgument)
	}
	if v.Type() != cty.Number {
		return 0, fmt.Errorf("argument %q must be a number: %w", name, ErrBadMap)
	}
	f, _ := v.AsBigFloat().Float64()
	return f, nil
}
