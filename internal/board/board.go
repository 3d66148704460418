// Package board implements the dual-graph container at the heart of the
// engine: one perch set shared by two independent directed edge sets, the
// backward set for demand-driven computation and the forward set for
// supply-driven propagation, plus the lifecycle flags that gate which
// operations are legal at any point.
package board

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/circuitgo/internal/mover"
	"github.com/vk/circuitgo/internal/perch"
	"github.com/vk/circuitgo/internal/topo"
)

// edgeKey identifies a mover within one edge set.
type edgeKey struct {
	source string
	target string
}

// edgeSet couples the adjacency structure of one direction with its movers
// in insertion order.
type edgeSet struct {
	graph  *topo.Graph
	movers map[edgeKey]*mover.Mover
	order  []edgeKey
}

func newEdgeSet() *edgeSet {
	return &edgeSet{
		graph:  topo.New(),
		movers: make(map[edgeKey]*mover.Mover),
	}
}

// Board owns the perch set and the two edge sets. It is exclusively owned by
// one goroutine; callers sharing a board across threads must serialize
// access themselves.
type Board struct {
	name       string
	perches    map[string]*perch.Perch
	perchOrder []string

	backward *edgeSet
	forward  *edgeSet

	hasEmptyPerches bool
	finalized       bool
	portable        bool
	solvable        bool
	solved          bool
	simulated       bool
}

// New creates an empty board.
func New(name string) *Board {
	return &Board{
		name:            name,
		perches:         make(map[string]*perch.Perch),
		backward:        newEdgeSet(),
		forward:         newEdgeSet(),
		hasEmptyPerches: true,
	}
}

// Name returns the board's name.
func (b *Board) Name() string { return b.name }

func (b *Board) set(d mover.Direction) *edgeSet {
	if d == mover.Backward {
		return b.backward
	}
	return b.forward
}

// AddPerch adds a perch to the board. It fails with ErrDuplicateName if the
// name is taken. Structural additions after FinalizeModel clear the
// finalized flag; the caller must re-finalize.
func (b *Board) AddPerch(p *perch.Perch) error {
	if _, ok := b.perches[p.Name()]; ok {
		return fmt.Errorf("%w: perch %q", ErrDuplicateName, p.Name())
	}
	b.perches[p.Name()] = p
	b.perchOrder = append(b.perchOrder, p.Name())
	b.backward.graph.AddNode(p.Name())
	b.forward.graph.AddNode(p.Name())
	if len(p.InitializedKeys()) > 0 {
		b.hasEmptyPerches = false
	}
	b.structureChanged()
	return nil
}

// Perch returns the named perch, or ErrUnknownPerch.
func (b *Board) Perch(name string) (*perch.Perch, error) {
	p, ok := b.perches[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPerch, name)
	}
	return p, nil
}

// PerchNames returns the perch names in insertion order.
func (b *Board) PerchNames() []string {
	out := make([]string, len(b.perchOrder))
	copy(out, b.perchOrder)
	return out
}

// PerchValue reads a single keyed value from a perch.
func (b *Board) PerchValue(name, key string) (cty.Value, error) {
	p, err := b.Perch(name)
	if err != nil {
		return cty.NilVal, err
	}
	return p.Get(key)
}

// SetPerchValues writes a batch of keyed values to a perch and, since newly
// available data may satisfy readiness preconditions, recomputes
// solvability.
func (b *Board) SetPerchValues(name string, values map[string]cty.Value) error {
	p, err := b.Perch(name)
	if err != nil {
		return err
	}
	for key, v := range values {
		if err := p.Set(key, v); err != nil {
			return err
		}
	}
	if len(values) > 0 {
		b.hasEmptyPerches = false
	}
	b.refreshSolvability()
	return nil
}

// TerminalPerches returns the perches with no outgoing edge in the given
// edge set, in insertion order.
func (b *Board) TerminalPerches(d mover.Direction) []string {
	return b.set(d).graph.Terminals()
}

// InitialPerches returns the perches with no incoming edge in the given edge
// set, in insertion order.
func (b *Board) InitialPerches(d mover.Direction) []string {
	return b.set(d).graph.Initials()
}

// Edges returns the (source, target) pairs of the given edge set in
// insertion order.
func (b *Board) Edges(d mover.Direction) [][2]string {
	es := b.set(d)
	out := make([][2]string, len(es.order))
	for i, k := range es.order {
		out[i] = [2]string{k.source, k.target}
	}
	return out
}

// EdgeCount returns the number of movers in the given edge set.
func (b *Board) EdgeCount(d mover.Direction) int {
	return len(b.set(d).order)
}

// TopoOrder returns a topological ordering of the given edge set. It fails
// with ErrCyclicGraph when the structural acyclicity invariant is violated.
func (b *Board) TopoOrder(d mover.Direction) ([]string, error) {
	order, err := b.set(d).graph.TopoSort()
	if err != nil {
		return nil, fmt.Errorf("%w: %s edge set: %v", ErrCyclicGraph, d, err)
	}
	return order, nil
}

// Successors returns the targets of the given perch's outgoing edges in the
// given edge set, in edge-insertion order.
func (b *Board) Successors(d mover.Direction, name string) []string {
	return b.set(d).graph.Successors(name)
}

// Predecessors returns the sources of the given perch's incoming edges in
// the given edge set, in edge-insertion order.
func (b *Board) Predecessors(d mover.Direction, name string) []string {
	return b.set(d).graph.Predecessors(name)
}

// String renders the board's size and lifecycle state.
func (b *Board) String() string {
	status := "empty"
	switch {
	case b.simulated:
		status = "simulated"
	case b.solved:
		status = "solved"
	case b.solvable:
		status = "solvable"
	case b.finalized:
		status = "finalized"
	}
	return fmt.Sprintf("Board(%s, %d perches, %d backward movers, %d forward movers, %s)",
		b.name, len(b.perchOrder), len(b.backward.order), len(b.forward.order), status)
}
