// Package app wires the front end together: load a circuit file, build the
// board, solve it, print the resulting perch values and optionally write a
// snapshot.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/circuitgo/internal/board"
	"github.com/vk/circuitgo/internal/builder"
	"github.com/vk/circuitgo/internal/circuitfile"
	"github.com/vk/circuitgo/internal/ctxlog"
	"github.com/vk/circuitgo/internal/eulerian"
	"github.com/vk/circuitgo/internal/persist"
	"github.com/vk/circuitgo/internal/registry"
	"github.com/vk/circuitgo/internal/solver"
)

// App encapsulates the runner's dependencies and configuration.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	ops    *registry.Registry
}

// NewApp constructs the runner with its own isolated logger and the built-in
// op registry.
func NewApp(outW io.Writer, config *Config) *App {
	logger := newLogger(config.LogLevel, config.LogFormat, outW)
	return &App{
		outW:   outW,
		logger: logger,
		config: config,
		ops:    registry.Default(),
	}
}

// Run loads, builds, solves and reports one circuit.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run started.", "circuit", a.config.CircuitPath)

	spec, err := circuitfile.Load(a.config.CircuitPath)
	if err != nil {
		return fmt.Errorf("loading circuit: %w", err)
	}
	a.logger.Debug("Circuit file loaded.",
		"perches", len(spec.Perches), "movers", len(spec.Movers))

	spec.Factory = a.ops.Factory()
	b, err := builder.Build(ctx, spec)
	if err != nil {
		return fmt.Errorf("building board: %w", err)
	}
	a.logger.Info("Board built.", "board", b.String())

	if a.config.CheckCircuit {
		if !eulerian.IsCircuit(b) {
			return fmt.Errorf("board %q does not close into an Eulerian round trip", b.Name())
		}
		path, _ := eulerian.FindPath(b)
		a.logger.Info("Round trip verified.", "path", path)
	}

	opts := []solver.Option{solver.WithObserver(solver.SlogObserver(a.logger))}
	if a.config.MaxPasses > 0 {
		opts = append(opts, solver.WithMaxPasses(a.config.MaxPasses))
	}
	out, err := solver.New(b, opts...).Solve(ctx, a.config.BackwardOnly, a.config.ForwardOnly)
	if err != nil {
		return fmt.Errorf("solving: %w", err)
	}
	if out.Backward != nil {
		a.logger.Info("Backward pass done.",
			"passes", out.Backward.Passes, "status", out.Backward.Status.String())
	}
	if out.Forward != nil {
		a.logger.Info("Forward pass done.",
			"passes", out.Forward.Passes, "status", out.Forward.Status.String())
	}

	a.report(b)

	if a.config.SnapshotPath != "" {
		if err := persist.Save(a.config.SnapshotPath, b); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		a.logger.Info("Snapshot written.", "path", a.config.SnapshotPath)
	}

	a.logger.Debug("App.Run finished.")
	return nil
}

// report prints every initialized perch value in insertion order.
func (a *App) report(b *board.Board) {
	fmt.Fprintf(a.outW, "board %s\n", b.Name())
	for _, name := range b.PerchNames() {
		p, err := b.Perch(name)
		if err != nil {
			continue
		}
		for _, key := range p.InitializedKeys() {
			v, err := p.Get(key)
			if err != nil {
				continue
			}
			fmt.Fprintf(a.outW, "  %s.%s = %s\n", name, key, renderValue(v))
		}
	}
}

func renderValue(v cty.Value) string {
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return v.GoString()
	}
	return string(raw)
}
