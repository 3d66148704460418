// Package persist writes a board to disk and restores it. Transforms are Go
// functions and do not serialize; only boards whose movers are fully
// declarative (the portable flag) can be saved, and loading re-derives every
// transform from its map through a factory. Values travel as type-annotated
// JSON so arbitrary cty values survive the round trip.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/circuitgo/internal/board"
	"github.com/vk/circuitgo/internal/mover"
	"github.com/vk/circuitgo/internal/perch"
)

// ErrNotPortable is returned by Save when the board has movers whose
// transforms cannot be rebuilt from their maps.
var ErrNotPortable = errors.New("board not portable")

type perchSnapshot struct {
	Name   string                     `json:"name"`
	Keys   []string                   `json:"keys,omitempty"`
	Values map[string]json.RawMessage `json:"values,omitempty"`
}

type moverSnapshot struct {
	Source          string          `json:"source"`
	Target          string          `json:"target"`
	Direction       string          `json:"direction"`
	Map             json.RawMessage `json:"map,omitempty"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
	Hyperparameters json.RawMessage `json:"hyperparameters,omitempty"`
	SourceKeys      []string        `json:"source_keys,omitempty"`
	TargetKey       string          `json:"target_key,omitempty"`
}

type boardSnapshot struct {
	Name      string          `json:"name"`
	Perches   []perchSnapshot `json:"perches"`
	Movers    []moverSnapshot `json:"movers"`
	Finalized bool            `json:"finalized"`
	Solved    bool            `json:"solved"`
	Simulated bool            `json:"simulated"`
}

func marshalValue(v cty.Value) (json.RawMessage, error) {
	if v == cty.NilVal {
		return nil, nil
	}
	raw, err := ctyjson.Marshal(v, cty.DynamicPseudoType)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func unmarshalValue(raw json.RawMessage) (cty.Value, error) {
	if len(raw) == 0 {
		return cty.NilVal, nil
	}
	return ctyjson.Unmarshal([]byte(raw), cty.DynamicPseudoType)
}

// snapshot captures a portable board's full state. Beyond the portability
// flag, every executable mover must carry a map: a bare closure has no
// declarative form to write out.
func snapshot(b *board.Board) (*boardSnapshot, error) {
	if !b.Portable() {
		return nil, fmt.Errorf("board %q: %w", b.Name(), ErrNotPortable)
	}
	for _, d := range []mover.Direction{mover.Backward, mover.Forward} {
		for _, m := range b.Movers(d) {
			if m.Executable() && !m.HasMap() {
				return nil, fmt.Errorf("board %q: mover %s has a transform with no map: %w",
					b.Name(), m, ErrNotPortable)
			}
		}
	}

	snap := &boardSnapshot{
		Name:      b.Name(),
		Finalized: b.ModelFinalized(),
		Solved:    b.Solved(),
		Simulated: b.Simulated(),
	}

	for _, name := range b.PerchNames() {
		p, err := b.Perch(name)
		if err != nil {
			return nil, err
		}
		ps := perchSnapshot{Name: name}
		for _, key := range p.Keys() {
			if key != perch.KeyUp && key != perch.KeyDown {
				ps.Keys = append(ps.Keys, key)
			}
		}
		for _, key := range p.InitializedKeys() {
			v, err := p.Get(key)
			if err != nil {
				return nil, err
			}
			raw, err := marshalValue(v)
			if err != nil {
				return nil, fmt.Errorf("perch %q, key %q: %w", name, key, err)
			}
			if ps.Values == nil {
				ps.Values = make(map[string]json.RawMessage)
			}
			ps.Values[key] = raw
		}
		snap.Perches = append(snap.Perches, ps)
	}

	for _, d := range []mover.Direction{mover.Backward, mover.Forward} {
		for _, m := range b.Movers(d) {
			ms := moverSnapshot{
				Source:     m.Source(),
				Target:     m.Target(),
				Direction:  d.String(),
				SourceKeys: m.SourceKeys(),
				TargetKey:  m.TargetKey(),
			}
			var err error
			if ms.Map, err = marshalValue(m.Map()); err != nil {
				return nil, fmt.Errorf("mover %s -> %s map: %w", m.Source(), m.Target(), err)
			}
			if ms.Parameters, err = marshalValue(m.Parameters()); err != nil {
				return nil, fmt.Errorf("mover %s -> %s parameters: %w", m.Source(), m.Target(), err)
			}
			if ms.Hyperparameters, err = marshalValue(m.Hyperparameters()); err != nil {
				return nil, fmt.Errorf("mover %s -> %s hyperparameters: %w", m.Source(), m.Target(), err)
			}
			snap.Movers = append(snap.Movers, ms)
		}
	}
	return snap, nil
}

// Save writes the board as indented JSON. Fails with ErrNotPortable when
// transforms could not be rebuilt on load.
func Save(path string, b *board.Board) error {
	snap, err := snapshot(b)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding board %q: %w", b.Name(), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing board %q: %w", b.Name(), err)
	}
	return nil
}

// Load reads a snapshot and rebuilds the board, deriving every mover's
// transform from its map through the factory.
func Load(path string, factory mover.Factory) (*board.Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap boardSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return restore(&snap, factory)
}

func restore(snap *boardSnapshot, factory mover.Factory) (*board.Board, error) {
	b := board.New(snap.Name)

	for _, ps := range snap.Perches {
		if err := b.AddPerch(perch.New(ps.Name, ps.Keys...)); err != nil {
			return nil, err
		}
	}
	for _, ms := range snap.Movers {
		d, err := mover.ParseDirection(ms.Direction)
		if err != nil {
			return nil, fmt.Errorf("mover %s -> %s: %w", ms.Source, ms.Target, err)
		}
		m, err := unmarshalValue(ms.Map)
		if err != nil {
			return nil, fmt.Errorf("mover %s -> %s map: %w", ms.Source, ms.Target, err)
		}
		params, err := unmarshalValue(ms.Parameters)
		if err != nil {
			return nil, fmt.Errorf("mover %s -> %s parameters: %w", ms.Source, ms.Target, err)
		}
		hyper, err := unmarshalValue(ms.Hyperparameters)
		if err != nil {
			return nil, fmt.Errorf("mover %s -> %s hyperparameters: %w", ms.Source, ms.Target, err)
		}
		cfg := board.MoverConfig{
			Map:             m,
			Parameters:      params,
			Hyperparameters: hyper,
			SourceKeys:      ms.SourceKeys,
			TargetKey:       ms.TargetKey,
		}
		if err := b.AddMover(ms.Source, ms.Target, d, cfg); err != nil {
			return nil, err
		}
	}
	for _, ps := range snap.Perches {
		if len(ps.Values) == 0 {
			continue
		}
		values := make(map[string]cty.Value, len(ps.Values))
		for key, raw := range ps.Values {
			v, err := unmarshalValue(raw)
			if err != nil {
				return nil, fmt.Errorf("perch %q, key %q: %w", ps.Name, key, err)
			}
			values[key] = v
		}
		if err := b.SetPerchValues(ps.Name, values); err != nil {
			return nil, err
		}
	}

	if err := b.DeriveAllTransforms(factory); err != nil {
		return nil, fmt.Errorf("rebuilding transforms: %w", err)
	}
	if snap.Finalized {
		b.FinalizeModel()
		if snap.Solved {
			b.MarkSolved()
		}
		if snap.Simulated {
			b.MarkSimulated()
		}
	}
	return b, nil
}
