package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
)

// Exit code constants
const (
	ExitCodeSuccess    = 0
	ExitCodeRuntime    = 1
	ExitCodeParseError = 2
	ExitCodeValidation = 3
	ExitCodeTimeout    = 4
)

// ExitCode maps an error to the process exit code of a one-shot deployment
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, ErrParse):
		return ExitCodeParseError
	case errors.Is(err, deployment.ErrInvalidRequest):
		return ExitCodeValidation
	case errors.Is(err, context.DeadlineExceeded):
		return ExitCodeTimeout
	default:
		return ExitCodeRuntime
	}
}

// LogErrorToStderr logs an error through hclog and echoes it to stdout so job runners capture it
func LogErrorToStderr(logger hclog.Logger, phase string, err error) {
	logger.Error("Operation failed", "phase", phase, "error", err)

	fmt.Fprintf(os.Stdout, "ERROR [%s]: %v\n", phase, err)
	os.Stdout.Sync()
}
