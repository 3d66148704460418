package board

import "errors"

// Sentinel errors for the board's structural and lifecycle failure modes.
// All are raised synchronously at the point of violation and wrapped with
// identifying context; callers match them with errors.Is.
var (
	// ErrDuplicateName is returned when adding a perch or mover whose
	// identity is already taken.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrUnknownPerch is returned when an operation names a perch the board
	// does not contain.
	ErrUnknownPerch = errors.New("unknown perch")
	// ErrAmbiguousSourceKeys is returned when both the singular and plural
	// source-key forms are given at once.
	ErrAmbiguousSourceKeys = errors.New("ambiguous source keys: provide source_key or source_keys, not both")
	// ErrMoverNotFound is returned when no mover exists for the requested
	// (source, target, direction) triple.
	ErrMoverNotFound = errors.New("mover not found")
	// ErrNotFinalized is returned when an operation requires FinalizeModel
	// to have been called first.
	ErrNotFinalized = errors.New("model not finalized")
	// ErrNotSolvable is returned when a solve is requested without the data
	// preconditions being met.
	ErrNotSolvable = errors.New("circuit not solvable")
	// ErrBackwardNotDone is returned when a forward-only solve is requested
	// before any backward solve has completed.
	ErrBackwardNotDone = errors.New("backward solve not completed")
	// ErrConflictingFlags is returned when contradictory solve restrictions
	// are requested together.
	ErrConflictingFlags = errors.New("conflicting flags: backward-only and forward-only are mutually exclusive")
	// ErrCyclicGraph is returned when an edge set that must be acyclic for
	// topological execution contains a cycle.
	ErrCyclicGraph = errors.New("cyclic graph")
)
