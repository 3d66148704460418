package board

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/circuitgo/internal/mover"
	"github.com/vk/circuitgo/internal/perch"
)

// MoverConfig carries the optional declarative configuration for AddMover.
// Leave fields at their zero value to accept the direction-convention
// defaults: backward movers read and write "up"; forward movers read "up"
// and "down" and write "down".
type MoverConfig struct {
	Map             cty.Value
	Parameters      cty.Value
	Hyperparameters cty.Value

	// SourceKey and SourceKeys are mutually exclusive forms of the same
	// setting; supplying both fails with ErrAmbiguousSourceKeys.
	SourceKey  string
	SourceKeys []string
	TargetKey  string
}

// AddMover creates a mover from source to target in the given edge set. It
// fails with ErrUnknownPerch if either endpoint is absent, with
// ErrAmbiguousSourceKeys if both source-key forms are given, and with
// ErrDuplicateName if the triple already has a mover. Adding a mover after
// FinalizeModel clears the finalized flag.
func (b *Board) AddMover(source, target string, d mover.Direction, cfg MoverConfig) error {
	if _, ok := b.perches[source]; !ok {
		return fmt.Errorf("%w: source %q", ErrUnknownPerch, source)
	}
	if _, ok := b.perches[target]; !ok {
		return fmt.Errorf("%w: target %q", ErrUnknownPerch, target)
	}
	if cfg.SourceKey != "" && len(cfg.SourceKeys) > 0 {
		return fmt.Errorf("%w: mover %s -> %s", ErrAmbiguousSourceKeys, source, target)
	}

	es := b.set(d)
	key := edgeKey{source: source, target: target}
	if _, ok := es.movers[key]; ok {
		return fmt.Errorf("%w: %s mover %s -> %s", ErrDuplicateName, d, source, target)
	}
	if err := es.graph.AddEdge(source, target); err != nil {
		return fmt.Errorf("adding %s mover: %w", d, err)
	}

	m := mover.New(source, target, d)
	m.SetMap(cfg.Map)
	m.SetParameters(cfg.Parameters)
	m.SetHyperparameters(cfg.Hyperparameters)

	sourceKeys := cfg.SourceKeys
	if cfg.SourceKey != "" {
		sourceKeys = []string{cfg.SourceKey}
	}
	targetKey := cfg.TargetKey
	if len(sourceKeys) == 0 && targetKey == "" {
		// Direction-convention defaults.
		if d == mover.Backward {
			sourceKeys = []string{perch.KeyUp}
			targetKey = perch.KeyUp
		} else {
			sourceKeys = []string{perch.KeyUp, perch.KeyDown}
			targetKey = perch.KeyDown
		}
	} else if targetKey == "" {
		if d == mover.Backward {
			targetKey = perch.KeyUp
		} else {
			targetKey = perch.KeyDown
		}
	}
	m.SetSourceKeys(sourceKeys)
	m.SetTargetKey(targetKey)

	es.movers[key] = m
	es.order = append(es.order, key)

	b.structureChanged()
	return nil
}

// Mover returns the mover for the (source, target, direction) triple, or
// ErrMoverNotFound.
func (b *Board) Mover(source, target string, d mover.Direction) (*mover.Mover, error) {
	m, ok := b.set(d).movers[edgeKey{source: source, target: target}]
	if !ok {
		return nil, fmt.Errorf("%w: %s mover %s -> %s", ErrMoverNotFound, d, source, target)
	}
	return m, nil
}

// Movers returns the movers of the given edge set in insertion order.
func (b *Board) Movers(d mover.Direction) []*mover.Mover {
	es := b.set(d)
	out := make([]*mover.Mover, len(es.order))
	for i, k := range es.order {
		out[i] = es.movers[k]
	}
	return out
}

// SetMoverMap sets the declarative map on an existing mover.
func (b *Board) SetMoverMap(source, target string, d mover.Direction, v cty.Value) error {
	m, err := b.Mover(source, target, d)
	if err != nil {
		return err
	}
	m.SetMap(v)
	b.refreshPortability()
	return nil
}

// SetMoverParameters sets the parameters on an existing mover.
func (b *Board) SetMoverParameters(source, target string, d mover.Direction, v cty.Value) error {
	m, err := b.Mover(source, target, d)
	if err != nil {
		return err
	}
	m.SetParameters(v)
	return nil
}

// SetMoverHyperparameters sets the numerical hyperparameters on an existing
// mover.
func (b *Board) SetMoverHyperparameters(source, target string, d mover.Direction, v cty.Value) error {
	m, err := b.Mover(source, target, d)
	if err != nil {
		return err
	}
	m.SetHyperparameters(v)
	return nil
}

// SetMoverTransform attaches an executable transform to an existing mover.
func (b *Board) SetMoverTransform(source, target string, d mover.Direction, fn mover.Transform) error {
	m, err := b.Mover(source, target, d)
	if err != nil {
		return err
	}
	m.SetTransform(fn)
	b.refreshPortability()
	return nil
}

// DeriveAllTransforms applies the factory to every mover in both edge sets
// that has a map but no transform yet, then recomputes the portability flag.
func (b *Board) DeriveAllTransforms(f mover.Factory) error {
	for _, d := range []mover.Direction{mover.Backward, mover.Forward} {
		for _, m := range b.Movers(d) {
			if !m.HasMap() || m.Executable() {
				continue
			}
			if err := m.DeriveTransform(f); err != nil {
				return err
			}
		}
	}
	b.refreshPortability()
	return nil
}
