package solver

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/circuitgo/internal/board"
	"github.com/vk/circuitgo/internal/mover"
	"github.com/vk/circuitgo/internal/perch"
)

func identity(in cty.Value) (cty.Value, error) { return in, nil }

func halve(in cty.Value) (cty.Value, error) {
	vals := in.AsValueSlice()
	out := make([]cty.Value, len(vals))
	for i, v := range vals {
		f, _ := v.AsBigFloat().Float64()
		out[i] = cty.NumberFloatVal(f / 2)
	}
	return cty.TupleVal(out), nil
}

func addOne(in cty.Value) (cty.Value, error) {
	f, _ := in.AsBigFloat().Float64()
	return cty.NumberFloatVal(f + 1), nil
}

// backwardChain builds A -> B -> C in the backward edge set with halve on
// the first hop and identity on the second, seeded at A.
func backwardChain(t *testing.T) *board.Board {
	t.Helper()
	b := board.New("chain")
	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, b.AddPerch(perch.New(name)))
	}
	require.NoError(t, b.AddMover("A", "B", mover.Backward, board.MoverConfig{}))
	require.NoError(t, b.AddMover("B", "C", mover.Backward, board.MoverConfig{}))
	require.NoError(t, b.SetMoverTransform("A", "B", mover.Backward, halve))
	require.NoError(t, b.SetMoverTransform("B", "C", mover.Backward, identity))
	require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
		perch.KeyUp: cty.TupleVal([]cty.Value{cty.NumberFloatVal(10), cty.NumberFloatVal(5)}),
	}))
	b.FinalizeModel()
	return b
}

func TestSolveBackwardChain(t *testing.T) {
	b := backwardChain(t)
	s := New(b)

	res, err := s.SolveBackward(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusConverged, res.Status)
	assert.Equal(t, 2, res.Passes)
	assert.Empty(t, res.Uninitialized)
	assert.True(t, b.Solved())

	want := cty.TupleVal([]cty.Value{cty.NumberFloatVal(5), cty.NumberFloatVal(2.5)})
	for _, name := range []string{"B", "C"} {
		got, err := b.PerchValue(name, perch.KeyUp)
		require.NoError(t, err)
		assert.True(t, want.RawEquals(got), "perch %s upstream = %v", name, got)
	}
}

func TestSolveBackwardIdempotent(t *testing.T) {
	b := backwardChain(t)
	s := New(b)
	ctx := context.Background()

	_, err := s.SolveBackward(ctx)
	require.NoError(t, err)
	before, err := b.PerchValue("C", perch.KeyUp)
	require.NoError(t, err)

	res, err := s.SolveBackward(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, res.Status)
	assert.Equal(t, 1, res.Passes)

	after, err := b.PerchValue("C", perch.KeyUp)
	require.NoError(t, err)
	assert.True(t, before.RawEquals(after))
}

func TestSolveForwardChain(t *testing.T) {
	b := board.New("sim")
	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, b.AddPerch(perch.New(name)))
	}
	cfg := board.MoverConfig{SourceKey: perch.KeyDown}
	require.NoError(t, b.AddMover("A", "B", mover.Forward, cfg))
	require.NoError(t, b.AddMover("B", "C", mover.Forward, cfg))
	require.NoError(t, b.SetMoverTransform("A", "B", mover.Forward, addOne))
	require.NoError(t, b.SetMoverTransform("B", "C", mover.Forward, addOne))
	require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
		perch.KeyDown: cty.NumberFloatVal(1),
	}))
	b.FinalizeModel()

	res, err := New(b).SolveForward(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, res.Status)
	assert.True(t, b.Simulated())

	got, err := b.PerchValue("C", perch.KeyDown)
	require.NoError(t, err)
	assert.True(t, cty.NumberFloatVal(3).RawEquals(got), "got %v", got)
}

// A perch the forward flow never touches must not hold the simulated flag
// hostage.
func TestSolveForwardIgnoresUnconnectedPerches(t *testing.T) {
	b := board.New("sparse")
	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, b.AddPerch(perch.New(name)))
	}
	cfg := board.MoverConfig{SourceKey: perch.KeyDown}
	require.NoError(t, b.AddMover("A", "B", mover.Forward, cfg))
	require.NoError(t, b.SetMoverTransform("A", "B", mover.Forward, addOne))
	require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
		perch.KeyDown: cty.NumberFloatVal(1),
	}))
	b.FinalizeModel()

	res, err := New(b).SolveForward(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusConverged, res.Status)
	assert.Empty(t, res.Uninitialized)
	assert.True(t, b.Simulated())

	c, err := b.Perch("C")
	require.NoError(t, err)
	assert.False(t, c.IsInitialized(perch.KeyDown))
}

// Forward movers default to a keyed bundle of both reserved slots, so a
// simulation step can read the solved upstream policy alongside the
// downstream state.
func TestSolveForwardKeyedBundle(t *testing.T) {
	b := board.New("bundle")
	require.NoError(t, b.AddPerch(perch.New("A")))
	require.NoError(t, b.AddPerch(perch.New("B")))
	require.NoError(t, b.AddMover("A", "B", mover.Forward, board.MoverConfig{}))
	apply := func(in cty.Value) (cty.Value, error) {
		up, _ := in.GetAttr(perch.KeyUp).AsBigFloat().Float64()
		down, _ := in.GetAttr(perch.KeyDown).AsBigFloat().Float64()
		return cty.NumberFloatVal(up * down), nil
	}
	require.NoError(t, b.SetMoverTransform("A", "B", mover.Forward, apply))
	require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
		perch.KeyUp:   cty.NumberFloatVal(0.5),
		perch.KeyDown: cty.NumberFloatVal(8),
	}))
	b.FinalizeModel()

	m, err := b.Mover("A", "B", mover.Forward)
	require.NoError(t, err)
	assert.Equal(t, mover.KeyedBundle, m.InputMode())

	_, err = New(b).SolveForward(context.Background())
	require.NoError(t, err)

	got, err := b.PerchValue("B", perch.KeyDown)
	require.NoError(t, err)
	assert.True(t, cty.NumberFloatVal(4).RawEquals(got), "got %v", got)
}

// A transform returning a keyed bundle writes every attribute that exists
// in the target schema.
func TestSolveBundleFanOut(t *testing.T) {
	b := board.New("fan")
	require.NoError(t, b.AddPerch(perch.New("A")))
	require.NoError(t, b.AddPerch(perch.New("B")))
	require.NoError(t, b.AddMover("A", "B", mover.Backward, board.MoverConfig{}))

	split := func(in cty.Value) (cty.Value, error) {
		f, _ := in.AsBigFloat().Float64()
		return cty.ObjectVal(map[string]cty.Value{
			perch.KeyUp:   cty.NumberFloatVal(f * 2),
			perch.KeyDown: cty.NumberFloatVal(f),
			"stray":       cty.NumberFloatVal(-1),
		}), nil
	}
	require.NoError(t, b.SetMoverTransform("A", "B", mover.Backward, split))
	require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
		perch.KeyUp: cty.NumberFloatVal(3),
	}))
	b.FinalizeModel()

	res, err := New(b).SolveBackward(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, res.Status)

	up, err := b.PerchValue("B", perch.KeyUp)
	require.NoError(t, err)
	assert.True(t, cty.NumberFloatVal(6).RawEquals(up))

	down, err := b.PerchValue("B", perch.KeyDown)
	require.NoError(t, err)
	assert.True(t, cty.NumberFloatVal(3).RawEquals(down))

	p, err := b.Perch("B")
	require.NoError(t, err)
	assert.False(t, p.HasKey("stray"), "keys outside the schema are dropped")
}

func TestSolveBackwardCycle(t *testing.T) {
	b := board.New("cycle")
	require.NoError(t, b.AddPerch(perch.New("A")))
	require.NoError(t, b.AddPerch(perch.New("B")))
	require.NoError(t, b.AddMover("A", "B", mover.Backward, board.MoverConfig{}))
	require.NoError(t, b.AddMover("B", "A", mover.Backward, board.MoverConfig{}))
	require.NoError(t, b.SetMoverTransform("A", "B", mover.Backward, identity))
	require.NoError(t, b.SetMoverTransform("B", "A", mover.Backward, identity))
	require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
		perch.KeyUp: cty.NumberFloatVal(1),
	}))
	b.FinalizeModel()

	_, err := New(b).SolveBackward(context.Background())
	require.ErrorIs(t, err, board.ErrCyclicGraph)

	// The failed run must leave the board untouched.
	p, err := b.Perch("B")
	require.NoError(t, err)
	assert.False(t, p.IsInitialized(perch.KeyUp))
	assert.False(t, b.Solved())
}

func TestSolvePreconditions(t *testing.T) {
	t.Run("not finalized", func(t *testing.T) {
		b := board.New("raw")
		require.NoError(t, b.AddPerch(perch.New("A")))
		_, err := New(b).SolveBackward(context.Background())
		require.ErrorIs(t, err, board.ErrNotFinalized)
	})

	t.Run("no upstream seed", func(t *testing.T) {
		b := board.New("unseeded")
		require.NoError(t, b.AddPerch(perch.New("A")))
		require.NoError(t, b.AddPerch(perch.New("B")))
		require.NoError(t, b.AddMover("A", "B", mover.Backward, board.MoverConfig{}))
		require.NoError(t, b.SetMoverTransform("A", "B", mover.Backward, identity))
		b.FinalizeModel()
		_, err := New(b).SolveBackward(context.Background())
		require.ErrorIs(t, err, board.ErrNotSolvable)
	})

	t.Run("conflicting flags", func(t *testing.T) {
		b := backwardChain(t)
		_, err := New(b).Solve(context.Background(), true, true)
		require.ErrorIs(t, err, board.ErrConflictingFlags)
	})

	t.Run("forward before backward", func(t *testing.T) {
		b := backwardChain(t)
		require.NoError(t, b.AddMover("A", "B", mover.Forward, board.MoverConfig{SourceKey: perch.KeyDown}))
		require.NoError(t, b.SetMoverTransform("A", "B", mover.Forward, addOne))
		require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
			perch.KeyDown: cty.NumberFloatVal(0),
		}))
		b.FinalizeModel()

		_, err := New(b).SolveForward(context.Background())
		require.ErrorIs(t, err, board.ErrBackwardNotDone)

		_, err = New(b).Solve(context.Background(), false, true)
		require.ErrorIs(t, err, board.ErrBackwardNotDone)
	})
}

func TestSolveBothDirections(t *testing.T) {
	b := backwardChain(t)
	require.NoError(t, b.AddMover("A", "B", mover.Forward, board.MoverConfig{SourceKey: perch.KeyDown}))
	require.NoError(t, b.AddMover("B", "C", mover.Forward, board.MoverConfig{SourceKey: perch.KeyDown}))
	require.NoError(t, b.SetMoverTransform("A", "B", mover.Forward, addOne))
	require.NoError(t, b.SetMoverTransform("B", "C", mover.Forward, addOne))
	require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
		perch.KeyDown: cty.NumberFloatVal(0),
	}))
	b.FinalizeModel()
	require.True(t, b.Solvable())

	out, err := New(b).Solve(context.Background(), false, false)
	require.NoError(t, err)
	require.NotNil(t, out.Backward)
	require.NotNil(t, out.Forward)
	assert.True(t, b.Solved())
	assert.True(t, b.Simulated())

	down, err := b.PerchValue("C", perch.KeyDown)
	require.NoError(t, err)
	assert.True(t, cty.NumberFloatVal(2).RawEquals(down), "got %v", down)
}

func TestSolveCapExhausted(t *testing.T) {
	b := board.New("wobble")
	require.NoError(t, b.AddPerch(perch.New("A")))
	require.NoError(t, b.AddPerch(perch.New("B")))
	require.NoError(t, b.AddMover("A", "B", mover.Backward, board.MoverConfig{}))

	// Emits a fresh value on every call, so the run can never settle.
	n := 0
	restless := func(cty.Value) (cty.Value, error) {
		n++
		return cty.NumberIntVal(int64(n)), nil
	}
	require.NoError(t, b.SetMoverTransform("A", "B", mover.Backward, restless))
	require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
		perch.KeyUp: cty.NumberFloatVal(1),
	}))
	b.FinalizeModel()

	res, err := New(b, WithMaxPasses(5)).SolveBackward(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCapExhausted, res.Status)
	assert.Equal(t, 5, res.Passes)
}

func TestSolveObserverEvents(t *testing.T) {
	b := backwardChain(t)

	var events []Event
	s := New(b, WithObserver(func(e Event) { events = append(events, e) }))
	_, err := s.SolveBackward(context.Background())
	require.NoError(t, err)

	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, PassStarted, kinds[0])
	assert.Equal(t, PassCompleted, kinds[len(kinds)-2])
	assert.Equal(t, SolveCompleted, kinds[len(kinds)-1])

	executed := 0
	for _, e := range events {
		if e.Kind == EdgeExecuted {
			executed++
		}
	}
	assert.Equal(t, 4, executed, "two edges over two passes")

	quiet := events[len(events)-2]
	assert.False(t, quiet.Changed)
	summary := events[len(events)-1]
	assert.Equal(t, StatusConverged.String(), summary.Reason)
	assert.Equal(t, 2, summary.Pass)
}

func TestSolveSkipsUnreadyEdges(t *testing.T) {
	// X has no seed and nothing feeds it, so X -> Y is skipped on every
	// pass. The run still converges on the seeded branch, and the board is
	// not marked solved while X lacks an upstream value.
	b := board.New("partial")
	for _, name := range []string{"S", "X", "Y"} {
		require.NoError(t, b.AddPerch(perch.New(name)))
	}
	require.NoError(t, b.AddMover("S", "Y", mover.Backward, board.MoverConfig{}))
	require.NoError(t, b.AddMover("X", "Y", mover.Backward, board.MoverConfig{}))
	require.NoError(t, b.SetMoverTransform("S", "Y", mover.Backward, identity))
	require.NoError(t, b.SetMoverTransform("X", "Y", mover.Backward, identity))
	require.NoError(t, b.SetPerchValues("S", map[string]cty.Value{
		perch.KeyUp: cty.NumberFloatVal(7),
	}))
	b.FinalizeModel()

	var skipped []Event
	s := New(b, WithObserver(func(e Event) {
		if e.Kind == EdgeSkipped {
			skipped = append(skipped, e)
		}
	}))
	res, err := s.SolveBackward(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusConverged, res.Status)
	assert.Equal(t, []string{"X"}, res.Uninitialized)
	assert.False(t, b.Solved())

	require.NotEmpty(t, skipped)
	assert.Equal(t, "X", skipped[0].Source)
	assert.Equal(t, "Y", skipped[0].Target)
	assert.Equal(t, "source not ready", skipped[0].Reason)

	got, err := b.PerchValue("Y", perch.KeyUp)
	require.NoError(t, err)
	assert.True(t, cty.NumberFloatVal(7).RawEquals(got))
}

// Only unmet source data is a skip. A mover that can never execute fails
// the run instead of converging vacuously.
func TestSolveBackwardRejectsMissingTransform(t *testing.T) {
	b := board.New("bare")
	require.NoError(t, b.AddPerch(perch.New("A")))
	require.NoError(t, b.AddPerch(perch.New("B")))
	require.NoError(t, b.AddMover("A", "B", mover.Backward, board.MoverConfig{}))
	require.NoError(t, b.SetPerchValues("A", map[string]cty.Value{
		perch.KeyUp: cty.NumberFloatVal(1),
	}))
	b.FinalizeModel()

	res, err := New(b).SolveBackward(context.Background())
	require.ErrorIs(t, err, mover.ErrNoTransformDefined)
	assert.Nil(t, res)
	assert.False(t, b.Solved())
}

// Without an observer a solving run writes nothing anywhere, including the
// process-default logger.
func TestSolveQuietWithoutObserver(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	b := backwardChain(t)
	_, err := New(b).SolveBackward(context.Background())
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestExecuteEdge(t *testing.T) {
	ctx := context.Background()

	t.Run("runs a single mover", func(t *testing.T) {
		b := backwardChain(t)
		s := New(b)
		require.NoError(t, s.ExecuteEdge(ctx, mover.Backward, "A", "B"))
		got, err := b.PerchValue("B", perch.KeyUp)
		require.NoError(t, err)
		want := cty.TupleVal([]cty.Value{cty.NumberFloatVal(5), cty.NumberFloatVal(2.5)})
		assert.True(t, want.RawEquals(got))
	})

	t.Run("unknown mover", func(t *testing.T) {
		b := backwardChain(t)
		err := New(b).ExecuteEdge(ctx, mover.Forward, "A", "B")
		require.ErrorIs(t, err, board.ErrMoverNotFound)
	})

	t.Run("source not ready", func(t *testing.T) {
		b := backwardChain(t)
		err := New(b).ExecuteEdge(ctx, mover.Backward, "B", "C")
		require.ErrorIs(t, err, ErrSourceNotReady)
	})

	t.Run("no transform", func(t *testing.T) {
		b := board.New("bare")
		require.NoError(t, b.AddPerch(perch.New("A")))
		require.NoError(t, b.AddPerch(perch.New("B")))
		require.NoError(t, b.AddMover("A", "B", mover.Backward, board.MoverConfig{}))
		err := New(b).ExecuteEdge(ctx, mover.Backward, "A", "B")
		require.ErrorIs(t, err, mover.ErrNoTransformDefined)
	})
}
