// Package builder assembles a circuit board from declarative specs and
// offers build-and-solve glue for the common one-shot flow. Everything goes
// through the public board API, so a spec cannot produce a board state that
// manual construction could not.
package builder

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/circuitgo/internal/board"
	"github.com/vk/circuitgo/internal/ctxlog"
	"github.com/vk/circuitgo/internal/mover"
	"github.com/vk/circuitgo/internal/perch"
	"github.com/vk/circuitgo/internal/registry"
	"github.com/vk/circuitgo/internal/solver"
)

// PerchSpec declares one perch: its name, any extra data keys beyond the
// reserved pair, and initial values to seed.
type PerchSpec struct {
	Name   string
	Keys   []string
	Values map[string]cty.Value
}

// MoverSpec declares one mover. Map and Transform are both optional; movers
// with a map and no transform get theirs derived during Build. SourceKey
// and SourceKeys are mutually exclusive, as in board.MoverConfig.
type MoverSpec struct {
	Source          string
	Target          string
	Direction       mover.Direction
	Map             cty.Value
	Parameters      cty.Value
	Hyperparameters cty.Value
	Transform       mover.Transform
	SourceKey       string
	SourceKeys      []string
	TargetKey       string
}

// Spec declares a whole board.
type Spec struct {
	Name    string
	Perches []PerchSpec
	Movers  []MoverSpec
	// Factory derives transforms for movers declared by map only. When nil
	// the built-in op registry is used.
	Factory mover.Factory
}

// Build assembles and finalizes a board from the spec. The returned board
// has all transforms derived and all initial values seeded.
func Build(ctx context.Context, spec Spec) (*board.Board, error) {
	log := ctxlog.FromContext(ctx)
	name := spec.Name
	if name == "" {
		name = "circuit"
	}
	b := board.New(name)

	for _, ps := range spec.Perches {
		if err := b.AddPerch(perch.New(ps.Name, ps.Keys...)); err != nil {
			return nil, fmt.Errorf("perch %q: %w", ps.Name, err)
		}
	}
	for _, ms := range spec.Movers {
		cfg := board.MoverConfig{
			Map:             ms.Map,
			Parameters:      ms.Parameters,
			Hyperparameters: ms.Hyperparameters,
			SourceKey:       ms.SourceKey,
			SourceKeys:      ms.SourceKeys,
			TargetKey:       ms.TargetKey,
		}
		if err := b.AddMover(ms.Source, ms.Target, ms.Direction, cfg); err != nil {
			return nil, fmt.Errorf("mover %s -> %s (%s): %w", ms.Source, ms.Target, ms.Direction, err)
		}
		if ms.Transform != nil {
			if err := b.SetMoverTransform(ms.Source, ms.Target, ms.Direction, ms.Transform); err != nil {
				return nil, fmt.Errorf("mover %s -> %s (%s): %w", ms.Source, ms.Target, ms.Direction, err)
			}
		}
	}
	for _, ps := range spec.Perches {
		if len(ps.Values) == 0 {
			continue
		}
		if err := b.SetPerchValues(ps.Name, ps.Values); err != nil {
			return nil, fmt.Errorf("perch %q values: %w", ps.Name, err)
		}
	}

	factory := spec.Factory
	if factory == nil {
		factory = registry.Default().Factory()
	}
	if err := b.DeriveAllTransforms(factory); err != nil {
		return nil, fmt.Errorf("derive transforms: %w", err)
	}

	b.FinalizeModel()
	log.Debug("board built",
		"board", b.Name(),
		"perches", len(spec.Perches),
		"movers", len(spec.Movers),
		"solvable", b.Solvable())
	return b, nil
}

// BuildAndSolve builds the board and runs both solving directions.
func BuildAndSolve(ctx context.Context, spec Spec, opts ...solver.Option) (*board.Board, *solver.Outcome, error) {
	b, err := Build(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	out, err := solver.New(b, opts...).Solve(ctx, false, false)
	if err != nil {
		return nil, nil, err
	}
	return b, out, nil
}

// BuildAndSolveBackward builds the board and runs only the backward pass.
func BuildAndSolveBackward(ctx context.Context, spec Spec, opts ...solver.Option) (*board.Board, *solver.Result, error) {
	b, err := Build(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	res, err := solver.New(b, opts...).SolveBackward(ctx)
	if err != nil {
		return nil, nil, err
	}
	return b, res, nil
}

// BuildAndSolveForward builds the board and runs only the forward pass.
func BuildAndSolveForward(ctx context.Context, spec Spec, opts ...solver.Option) (*board.Board, *solver.Result, error) {
	b, err := Build(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	res, err := solver.New(b, opts...).SolveForward(ctx)
	if err != nil {
		return nil, nil, err
	}
	return b, res, nil
}
