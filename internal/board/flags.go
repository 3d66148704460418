package board

import (
	"github.com/vk/circuitgo/internal/mover"
	"github.com/vk/circuitgo/internal/perch"
)

// The lifecycle flags gate which operations are legal. HasEmptyPerches,
// Portable and Solvable are recomputed whenever structure or data changes;
// Solved and Simulated are explicit outputs of the solver, never derived
// spontaneously.

// HasEmptyPerches is true until at least one perch holds an initialized
// value.
func (b *Board) HasEmptyPerches() bool { return b.hasEmptyPerches }

// ModelFinalized is true only after FinalizeModel, and false again when the
// structure is mutated afterwards.
func (b *Board) ModelFinalized() bool { return b.finalized }

// BackwardMoversExist is true iff the backward edge set is non-empty.
func (b *Board) BackwardMoversExist() bool { return len(b.backward.order) > 0 }

// Portable is true iff every mover with a map also has a transform, i.e.
// the executable form is reproducible from the declarative form without
// external closures.
func (b *Board) Portable() bool { return b.portable }

// Solvable is true iff the model is finalized and each non-empty edge set
// has at least one seeded entry perch (see refreshSolvability).
func (b *Board) Solvable() bool { return b.solvable }

// Solved is true once a backward solving pass has produced upstream values
// for the full backward-reachable closure.
func (b *Board) Solved() bool { return b.solved }

// Simulated is true once a forward solving pass has produced downstream
// values.
func (b *Board) Simulated() bool { return b.simulated }

// FinalizeModel declares structural construction complete and recomputes
// solvability.
func (b *Board) FinalizeModel() {
	b.finalized = true
	b.refreshSolvability()
}

// MarkSolved records the completion of a full backward solve. Owned by the
// solver.
func (b *Board) MarkSolved() { b.solved = true }

// MarkSimulated records the completion of a forward pass. Owned by the
// solver.
func (b *Board) MarkSimulated() { b.simulated = true }

// structureChanged invalidates the flags that depend on the structure being
// settled. Any structural mutation after FinalizeModel forces the caller to
// re-finalize before solving.
func (b *Board) structureChanged() {
	b.finalized = false
	b.solvable = false
	b.refreshPortability()
}

// refreshPortability recomputes the portability flag: no mover may have a
// map without a transform.
func (b *Board) refreshPortability() {
	for _, d := range []mover.Direction{mover.Backward, mover.Forward} {
		for _, m := range b.Movers(d) {
			if m.HasMap() && !m.Executable() {
				b.portable = false
				return
			}
		}
	}
	b.portable = true
}

// refreshSolvability recomputes whether the board has enough data to start a
// solve: the model must be finalized; if backward movers exist, some perch
// must have an initialized upstream value to seed the backward pass; if
// forward edges exist, some forward-initial perch must have an initialized
// downstream value.
func (b *Board) refreshSolvability() {
	if !b.finalized {
		b.solvable = false
		return
	}
	if b.BackwardMoversExist() && !b.anyInitialized(b.PerchNames(), perch.KeyUp) {
		b.solvable = false
		return
	}
	if len(b.forward.order) > 0 && !b.anyInitialized(b.InitialPerches(mover.Forward), perch.KeyDown) {
		b.solvable = false
		return
	}
	b.solvable = true
}

func (b *Board) anyInitialized(names []string, key string) bool {
	for _, name := range names {
		if b.perches[name].IsInitialized(key) {
			return true
		}
	}
	return false
}
