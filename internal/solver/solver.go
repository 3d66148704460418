// Package solver walks a circuit board's edge sets in topological order and
// executes movers until perch values stop changing. Backward runs propagate
// upstream values from seeded perches toward the rest of the board; forward
// runs do the same for downstream values. Movers whose inputs are not yet
// initialized are skipped and retried on the next pass, so feedback between
// edges resolves over multiple passes instead of failing outright.
package solver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/circuitgo/internal/board"
	"github.com/vk/circuitgo/internal/mover"
	"github.com/vk/circuitgo/internal/perch"
)

// DefaultMaxPasses bounds the convergence loop when WithMaxPasses is not
// given.
const DefaultMaxPasses = 100

// ErrSourceNotReady is returned by ExecuteEdge when a mover's source keys
// are not all initialized. Inside a solving run the same condition is a
// silent skip, not an error.
var ErrSourceNotReady = errors.New("source perch not ready")

// Status reports how a solving run ended.
type Status int

const (
	// StatusConverged means a full pass completed without changing any
	// perch value.
	StatusConverged Status = iota
	// StatusCapExhausted means the pass cap was reached while values were
	// still changing. The board keeps the values of the last pass.
	StatusCapExhausted
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusCapExhausted:
		return "cap_exhausted"
	default:
		return "unknown"
	}
}

// Result describes one directional solving run.
type Result struct {
	// Passes is the number of passes executed, including the final quiet
	// pass that establishes convergence.
	Passes int
	Status Status
	// Uninitialized lists perches that still lack a value for the run's
	// output key. Backward runs count every perch; forward runs count only
	// the forward-reachable closure.
	Uninitialized []string
}

// Option configures a Solver.
type Option func(*Solver)

// WithMaxPasses overrides the convergence pass cap.
func WithMaxPasses(n int) Option {
	return func(s *Solver) {
		if n > 0 {
			s.maxPasses = n
		}
	}
}

// WithObserver registers a callback for solver events.
func WithObserver(obs Observer) Option {
	return func(s *Solver) { s.observer = obs }
}

// Solver executes the movers of a single board. It is not safe for
// concurrent use, matching the board it drives.
type Solver struct {
	board     *board.Board
	maxPasses int
	observer  Observer
}

// New returns a solver for b.
func New(b *board.Board, opts ...Option) *Solver {
	s := &Solver{
		board:     b,
		maxPasses: DefaultMaxPasses,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Solver) emit(e Event) {
	if s.observer != nil {
		s.observer(e)
	}
}

// input assembles the value handed to a mover's transform. A single source
// key yields the bare value; multiple keys yield an object keyed by source
// key name. An unset key list falls back to a bundle of whichever reserved
// keys the source perch has initialized.
func (s *Solver) input(m *mover.Mover, src *perch.Perch) (cty.Value, bool) {
	keys := m.SourceKeys()
	if len(keys) == 0 {
		attrs := make(map[string]cty.Value)
		for _, k := range []string{perch.KeyUp, perch.KeyDown} {
			if src.IsInitialized(k) {
				v, _ := src.Get(k)
				attrs[k] = v
			}
		}
		if len(attrs) == 0 {
			return cty.NilVal, false
		}
		return cty.ObjectVal(attrs), true
	}
	if len(keys) == 1 {
		if !src.IsInitialized(keys[0]) {
			return cty.NilVal, false
		}
		v, err := src.Get(keys[0])
		if err != nil {
			return cty.NilVal, false
		}
		return v, true
	}
	attrs := make(map[string]cty.Value, len(keys))
	for _, k := range keys {
		if !src.IsInitialized(k) {
			return cty.NilVal, false
		}
		v, err := src.Get(k)
		if err != nil {
			return cty.NilVal, false
		}
		attrs[k] = v
	}
	return cty.ObjectVal(attrs), true
}

// runEdge executes one mover if its source data is ready. It reports whether
// the mover ran and whether it changed the target perch. A mover without a
// transform, transform failures and schema mismatches on the target key all
// abort the run; only unmet source data is a skip.
func (s *Solver) runEdge(d mover.Direction, source, target string, pass int) (executed, changed bool, err error) {
	m, err := s.board.Mover(source, target, d)
	if err != nil {
		return false, false, err
	}
	src, err := s.board.Perch(source)
	if err != nil {
		return false, false, err
	}
	tgt, err := s.board.Perch(target)
	if err != nil {
		return false, false, err
	}

	if !m.Executable() {
		return false, false, fmt.Errorf("mover %s -> %s (%s): %w", source, target, d, mover.ErrNoTransformDefined)
	}
	in, ready := s.input(m, src)
	if !ready {
		s.emit(Event{Kind: EdgeSkipped, Direction: d, Pass: pass, Source: source, Target: target, Reason: "source not ready"})
		return false, false, nil
	}

	out, err := m.Execute(in)
	if err != nil {
		return false, false, fmt.Errorf("mover %s -> %s (%s): %w", source, target, d, err)
	}

	changed, err = s.writeOutput(m, tgt, out)
	if err != nil {
		return false, false, fmt.Errorf("mover %s -> %s (%s): %w", source, target, d, err)
	}

	s.emit(Event{Kind: EdgeExecuted, Direction: d, Pass: pass, Source: source, Target: target, Changed: changed})
	return true, changed, nil
}

// writeOutput stores a transform result on the target perch. A keyed bundle
// fans out over the attributes that exist in the target schema; a bare
// value goes to the mover's declared target key. Reports whether any slot
// actually changed, by deep comparison.
func (s *Solver) writeOutput(m *mover.Mover, tgt *perch.Perch, out cty.Value) (bool, error) {
	write := func(key string, v cty.Value) (bool, error) {
		slotChanged := !tgt.IsInitialized(key)
		if !slotChanged {
			old, err := tgt.Get(key)
			if err != nil {
				return false, err
			}
			slotChanged = !v.RawEquals(old)
		}
		if err := tgt.Set(key, v); err != nil {
			return false, err
		}
		return slotChanged, nil
	}

	if out != cty.NilVal && out.Type().IsObjectType() {
		names := make([]string, 0, len(out.Type().AttributeTypes()))
		for name := range out.Type().AttributeTypes() {
			names = append(names, name)
		}
		sort.Strings(names)
		changed := false
		for _, name := range names {
			if !tgt.HasKey(name) {
				continue
			}
			c, err := write(name, out.GetAttr(name))
			if err != nil {
				return changed, err
			}
			changed = changed || c
		}
		return changed, nil
	}
	return write(m.TargetKey(), out)
}

// ExecuteEdge runs a single mover outside a solving run. Unlike the pass
// loop, an unready source is an error here.
func (s *Solver) ExecuteEdge(ctx context.Context, d mover.Direction, source, target string) error {
	m, err := s.board.Mover(source, target, d)
	if err != nil {
		return err
	}
	if !m.Executable() {
		return fmt.Errorf("mover %s -> %s (%s): %w", source, target, d, mover.ErrNoTransformDefined)
	}
	executed, _, err := s.runEdge(d, source, target, 0)
	if err != nil {
		return err
	}
	if !executed {
		return fmt.Errorf("mover %s -> %s (%s): %w", source, target, d, ErrSourceNotReady)
	}
	return nil
}

// run drives the convergence loop over one edge set. Edges are visited per
// source in topological order, successors in insertion order. The loop ends
// on the first pass that changes nothing, or when the pass cap is reached.
func (s *Solver) run(ctx context.Context, d mover.Direction, order []string) (*Result, error) {
	res := &Result{Status: StatusCapExhausted}
	for pass := 1; pass <= s.maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.emit(Event{Kind: PassStarted, Direction: d, Pass: pass})
		changed := false
		for _, source := range order {
			for _, target := range s.board.Successors(d, source) {
				_, c, err := s.runEdge(d, source, target, pass)
				if err != nil {
					return nil, err
				}
				if c {
					changed = true
				}
			}
		}
		res.Passes = pass
		s.emit(Event{Kind: PassCompleted, Direction: d, Pass: pass, Changed: changed})
		if !changed {
			res.Status = StatusConverged
			break
		}
	}
	return res, nil
}

func (s *Solver) anyPerchInitialized(key string) bool {
	for _, name := range s.board.PerchNames() {
		p, err := s.board.Perch(name)
		if err != nil {
			continue
		}
		if p.IsInitialized(key) {
			return true
		}
	}
	return false
}

func (s *Solver) missing(key string) []string {
	var out []string
	for _, name := range s.board.PerchNames() {
		p, err := s.board.Perch(name)
		if err != nil {
			continue
		}
		if !p.IsInitialized(key) {
			out = append(out, name)
		}
	}
	return out
}

// SolveBackward propagates upstream values along the backward edge set. The
// model must be finalized and at least one perch must hold an initialized
// upstream value. The board is not mutated on precondition or cycle errors.
// When every perch ends up with an upstream value the board is marked
// solved.
func (s *Solver) SolveBackward(ctx context.Context) (*Result, error) {
	if !s.board.ModelFinalized() {
		return nil, fmt.Errorf("backward solve: %w", board.ErrNotFinalized)
	}
	if !s.anyPerchInitialized(perch.KeyUp) {
		return nil, fmt.Errorf("backward solve: no upstream value seeded: %w", board.ErrNotSolvable)
	}
	order, err := s.board.TopoOrder(mover.Backward)
	if err != nil {
		return nil, fmt.Errorf("backward solve: %w", err)
	}

	res, err := s.run(ctx, mover.Backward, order)
	if err != nil {
		return nil, err
	}
	res.Uninitialized = s.missing(perch.KeyUp)
	if len(res.Uninitialized) == 0 {
		s.board.MarkSolved()
	}
	s.emit(Event{Kind: SolveCompleted, Direction: mover.Backward, Pass: res.Passes, Reason: res.Status.String()})
	return res, nil
}

// SolveForward propagates downstream values along the forward edge set. The
// model must be finalized, some forward-initial perch must hold an
// initialized downstream value, and any backward movers must have been
// solved first. The board is marked simulated once the whole
// forward-reachable closure holds downstream values; perches outside the
// forward flow do not block the flag.
func (s *Solver) SolveForward(ctx context.Context) (*Result, error) {
	if !s.board.ModelFinalized() {
		return nil, fmt.Errorf("forward solve: %w", board.ErrNotFinalized)
	}
	if s.board.BackwardMoversExist() && !s.board.Solved() {
		return nil, fmt.Errorf("forward solve: %w", board.ErrBackwardNotDone)
	}
	if !s.initialSeeded() {
		return nil, fmt.Errorf("forward solve: no downstream value seeded at a forward-initial perch: %w", board.ErrNotSolvable)
	}
	order, err := s.board.TopoOrder(mover.Forward)
	if err != nil {
		return nil, fmt.Errorf("forward solve: %w", err)
	}

	res, err := s.run(ctx, mover.Forward, order)
	if err != nil {
		return nil, err
	}
	res.Uninitialized = s.forwardMissing()
	if len(res.Uninitialized) == 0 {
		s.board.MarkSimulated()
	}
	s.emit(Event{Kind: SolveCompleted, Direction: mover.Forward, Pass: res.Passes, Reason: res.Status.String()})
	return res, nil
}

// forwardMissing returns the perches reachable along forward edges from a
// downstream value that still lack one themselves. Perches the forward flow
// never touches are excluded.
func (s *Solver) forwardMissing() []string {
	reached := make(map[string]bool)
	var queue []string
	for _, name := range s.board.PerchNames() {
		p, err := s.board.Perch(name)
		if err == nil && p.IsInitialized(perch.KeyDown) {
			reached[name] = true
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, next := range s.board.Successors(mover.Forward, name) {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	var out []string
	for _, name := range s.board.PerchNames() {
		if !reached[name] {
			continue
		}
		p, err := s.board.Perch(name)
		if err != nil || !p.IsInitialized(perch.KeyDown) {
			out = append(out, name)
		}
	}
	return out
}

func (s *Solver) initialSeeded() bool {
	for _, name := range s.board.InitialPerches(mover.Forward) {
		p, err := s.board.Perch(name)
		if err != nil {
			continue
		}
		if p.IsInitialized(perch.KeyDown) {
			return true
		}
	}
	return false
}

// Outcome collects the directional results of a combined Solve call. A nil
// entry means that direction did not run.
type Outcome struct {
	Backward *Result
	Forward  *Result
}

// Solve runs the backward pass, then the forward pass, skipping directions
// whose edge set is empty. backwardOnly and forwardOnly restrict the run to
// one direction and are mutually exclusive. A forward-only run on a board
// with unsolved backward movers is refused.
func (s *Solver) Solve(ctx context.Context, backwardOnly, forwardOnly bool) (*Outcome, error) {
	if backwardOnly && forwardOnly {
		return nil, board.ErrConflictingFlags
	}
	if !s.board.Solvable() {
		return nil, fmt.Errorf("solve: %w", board.ErrNotSolvable)
	}
	if forwardOnly && s.board.BackwardMoversExist() && !s.board.Solved() {
		return nil, fmt.Errorf("solve: %w", board.ErrBackwardNotDone)
	}

	out := &Outcome{}
	if !forwardOnly && s.board.BackwardMoversExist() {
		res, err := s.SolveBackward(ctx)
		if err != nil {
			return nil, err
		}
		out.Backward = res
	}
	if !backwardOnly && s.board.EdgeCount(mover.Forward) > 0 {
		res, err := s.SolveForward(ctx)
		if err != nil {
			return nil, err
		}
		out.Forward = res
	}
	return out, nil
}
