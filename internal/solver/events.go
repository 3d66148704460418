package solver

import (
	"log/slog"

	"github.com/vk/circuitgo/internal/mover"
)

// EventKind identifies a step in a solving run.
type EventKind int

const (
	PassStarted EventKind = iota
	EdgeExecuted
	EdgeSkipped
	PassCompleted
	SolveCompleted
)

func (k EventKind) String() string {
	switch k {
	case PassStarted:
		return "pass_started"
	case EdgeExecuted:
		return "edge_executed"
	case EdgeSkipped:
		return "edge_skipped"
	case PassCompleted:
		return "pass_completed"
	case SolveCompleted:
		return "solve_completed"
	default:
		return "unknown"
	}
}

// Event describes one observable step of a solving run. Source, Target and
// Changed are only set for edge events; Reason carries the skip cause for
// EdgeSkipped and the final status for SolveCompleted.
type Event struct {
	Kind      EventKind
	Direction mover.Direction
	Pass      int
	Source    string
	Target    string
	Changed   bool
	Reason    string
}

// Observer receives solver events as they happen. Observers must not mutate
// the board.
type Observer func(Event)

// SlogObserver adapts a structured logger into an Observer. Per-edge and
// per-pass events are emitted at debug level, run summaries at info.
func SlogObserver(logger *slog.Logger) Observer {
	return func(e Event) {
		switch e.Kind {
		case PassStarted:
			logger.Debug("solver pass started",
				"direction", e.Direction.String(),
				"pass", e.Pass)
		case EdgeExecuted:
			logger.Debug("mover executed",
				"direction", e.Direction.String(),
				"pass", e.Pass,
				"source", e.Source,
				"target", e.Target,
				"changed", e.Changed)
		case EdgeSkipped:
			logger.Debug("mover skipped",
				"direction", e.Direction.String(),
				"pass", e.Pass,
				"source", e.Source,
				"target", e.Target,
				"reason", e.Reason)
		case PassCompleted:
			logger.Debug("solver pass completed",
				"direction", e.Direction.String(),
				"pass", e.Pass,
				"changed", e.Changed)
		case SolveCompleted:
			logger.Info("solve finished",
				"direction", e.Direction.String(),
				"passes", e.Pass,
				"status", e.Reason)
		}
	}
}
