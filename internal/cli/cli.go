package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/circuitgo/internal/app"
)

// ExitError is an error carrying a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("circuitgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
circuitgo - a dual-direction dataflow solver for circuit files.

Usage:
  circuitgo [options] [CIRCUIT_PATH]

Arguments:
  CIRCUIT_PATH
    Path to a .hcl circuit file.

Options:
`)
		flagSet.PrintDefaults()
	}

	circuitFlag := flagSet.String("circuit", "", "Path to the circuit file.")
	cFlag := flagSet.String("c", "", "Path to the circuit file (shorthand).")
	snapshotFlag := flagSet.String("snapshot", "", "Write the solved board as JSON to this path.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	maxPassesFlag := flagSet.Int("max-passes", 0, "Convergence pass cap. 0 uses the solver default.")
	backwardFlag := flagSet.Bool("backward-only", false, "Run only the backward pass.")
	forwardFlag := flagSet.Bool("forward-only", false, "Run only the forward pass.")
	checkFlag := flagSet.Bool("check-circuit", false, "Verify the Eulerian round trip before solving.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *circuitFlag != "" {
		path = *circuitFlag
	} else if *cFlag != "" {
		path = *cFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		CircuitPath:  path,
		SnapshotPath: *snapshotFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		MaxPasses:    *maxPassesFlag,
		BackwardOnly: *backwardFlag,
		ForwardOnly:  *forwardFlag,
		CheckCircuit: *checkFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
