// Package mover implements the directed operation edges of a circuit board.
//
// A mover connects a source perch to a target perch in one of the two edge
// sets (backward or forward). It carries three declarative fields: a map
// (the inspectable description of the intended operation), parameters, and
// numerical hyperparameters. The executable form is a transform, derived
// from the map by an externally supplied factory or attached directly. A
// mover is executable once its transform is set; it is reproducible once
// map and transform agree, which is what the board's portability flag
// certifies across all movers.
package mover

import (
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrNoMapDefined is returned by DeriveTransform when the mover has no map.
	ErrNoMapDefined = errors.New("no map defined")
	// ErrNoTransformDefined is returned by Execute when no transform is set.
	ErrNoTransformDefined = errors.New("no transform defined")
	// ErrUnknownDirection is returned when parsing an unrecognized direction name.
	ErrUnknownDirection = errors.New("unknown direction")
)

// Direction distinguishes the two independent edge sets of a board.
type Direction int

const (
	// Backward edges encode demand-driven computation: the target's upstream
	// value is computed from the source's.
	Backward Direction = iota
	// Forward edges encode supply-driven propagation: the target's downstream
	// value is computed from the source's.
	Forward
)

// String returns the lowercase direction name.
func (d Direction) String() string {
	switch d {
	case Backward:
		return "backward"
	case Forward:
		return "forward"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection converts a direction name into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "backward":
		return Backward, nil
	case "forward":
		return Forward, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
	}
}

// Transform is the executable form of a mover: a unary function from an
// input value (bare or keyed bundle) to an output value (bare or keyed
// bundle). The engine treats transforms as opaque; any side effects are the
// caller's responsibility.
type Transform func(input cty.Value) (cty.Value, error)

// Blueprint is the full declarative description of a mover, handed to a
// Factory when deriving its transform.
type Blueprint struct {
	Map             cty.Value
	Parameters      cty.Value
	Hyperparameters cty.Value
}

// Factory builds an executable transform from a mover's declarative
// blueprint. It is invoked once per mover during derive-all orchestration.
type Factory func(bp Blueprint) (Transform, error)

// InputMode describes the shape of the value a transform receives, resolved
// once from the mover's source-key configuration so transform authors have a
// single unambiguous contract per mover instance.
type InputMode int

const (
	// SingleValue movers read exactly one source key and pass the bare value.
	SingleValue InputMode = iota
	// KeyedBundle movers read zero or several source keys and pass an object
	// keyed by source key.
	KeyedBundle
)

// Mover is a directed, keyed operation between two perches. At most one
// mover exists per (source, target, direction) triple within a board.
type Mover struct {
	source    string
	target    string
	direction Direction

	m      cty.Value
	params cty.Value
	hyper  cty.Value

	transform  Transform
	sourceKeys []string
	targetKey  string
}

// New creates a transform-less mover between the named perches.
func New(source, target string, direction Direction) *Mover {
	return &Mover{
		source:    source,
		target:    target,
		direction: direction,
		m:         cty.NilVal,
		params:    cty.NilVal,
		hyper:     cty.NilVal,
	}
}

// Source returns the name of the perch this mover reads from.
func (m *Mover) Source() string { return m.source }

// Target returns the name of the perch this mover writes to.
func (m *Mover) Target() string { return m.target }

// Direction returns the edge set this mover belongs to.
func (m *Mover) Direction() Direction { return m.direction }

// Map returns the declarative map, or cty.NilVal if unset.
func (m *Mover) Map() cty.Value { return m.m }

// Parameters returns the problem-specific parameters, or cty.NilVal if unset.
func (m *Mover) Parameters() cty.Value { return m.params }

// Hyperparameters returns the numerical tuning values, or cty.NilVal if unset.
func (m *Mover) Hyperparameters() cty.Value { return m.hyper }

// SourceKeys returns the ordered keys read from the source perch.
func (m *Mover) SourceKeys() []string {
	out := make([]string, len(m.sourceKeys))
	copy(out, m.sourceKeys)
	return out
}

// TargetKey returns the key written on the target perch.
func (m *Mover) TargetKey() string { return m.targetKey }

// InputMode reports whether the transform receives a bare value or a keyed
// bundle, per the current source-key configuration.
func (m *Mover) InputMode() InputMode {
	if len(m.sourceKeys) == 1 {
		return SingleValue
	}
	return KeyedBundle
}

// SetMap replaces the declarative map.
func (m *Mover) SetMap(v cty.Value) { m.m = v }

// SetParameters replaces the problem-specific parameters.
func (m *Mover) SetParameters(v cty.Value) { m.params = v }

// SetHyperparameters replaces the numerical hyperparameters.
func (m *Mover) SetHyperparameters(v cty.Value) { m.hyper = v }

// SetSourceKeys replaces the ordered source keys.
func (m *Mover) SetSourceKeys(keys []string) {
	m.sourceKeys = make([]string, len(keys))
	copy(m.sourceKeys, keys)
}

// SetTargetKey replaces the target key.
func (m *Mover) SetTargetKey(key string) { m.targetKey = key }

// SetTransform attaches an executable transform directly, bypassing
// map-derivation.
func (m *Mover) SetTransform(fn Transform) { m.transform = fn }

// HasMap reports whether a declarative map is set.
func (m *Mover) HasMap() bool { return m.m != cty.NilVal }

// Executable reports whether a transform is attached.
func (m *Mover) Executable() bool { return m.transform != nil }

// DeriveTransform builds and attaches the transform from the mover's
// blueprint via the factory. It fails with ErrNoMapDefined when no map is
// set, and overwrites an existing transform only because it was explicitly
// called; derive-all orchestration skips movers that already have one.
func (m *Mover) DeriveTransform(f Factory) error {
	if !m.HasMap() {
		return fmt.Errorf("%w: mover %s: cannot derive transform", ErrNoMapDefined, m)
	}
	fn, err := f(Blueprint{Map: m.m, Parameters: m.params, Hyperparameters: m.hyper})
	if err != nil {
		return fmt.Errorf("deriving transform for mover %s: %w", m, err)
	}
	m.transform = fn
	return nil
}

// Execute applies the transform to input. It fails with
// ErrNoTransformDefined if the mover is not executable. No other validation
// happens here; value-shape correctness belongs to the caller and the
// transform itself.
func (m *Mover) Execute(input cty.Value) (cty.Value, error) {
	if m.transform == nil {
		return cty.NilVal, fmt.Errorf("%w: mover %s", ErrNoTransformDefined, m)
	}
	return m.transform(input)
}

// String renders the mover's identity triple and readiness, for logs and
// error messages.
func (m *Mover) String() string {
	status := "empty"
	switch {
	case m.HasMap() && m.Executable():
		status = "mapped, executable"
	case m.HasMap():
		status = "mapped"
	case m.Executable():
		status = "executable"
	}
	return fmt.Sprintf("%s(%s -> %s, %s)", m.direction, m.source, m.target, status)
}
