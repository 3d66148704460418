package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	CircuitPath  string // hcl circuit file
	SnapshotPath string // optional JSON snapshot written after solving

	LogFormat string
	LogLevel  string

	MaxPasses    int
	BackwardOnly bool
	ForwardOnly  bool
	CheckCircuit bool // verify the Eulerian round trip before solving
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.CircuitPath == "" {
		return nil, errors.New("CircuitPath is a required configuration field and cannot be empty")
	}
	if cfg.BackwardOnly && cfg.ForwardOnly {
		return nil, errors.New("backward-only and forward-only cannot both be set")
	}
	return &cfg, nil
}
