package lifecycle

import "errors"

var (
	// ErrNoCommit is returned when the source import finishes without a commit
	ErrNoCommit = errors.New("no commit found")

	// ErrCancelled is returned when a run is cancelled between steps
	ErrCancelled = errors.New("deployment cancelled")

	// ErrTimedOut is returned when the deadline of a run passes between steps
	ErrTimedOut = errors.New("deployment timed out")
)

// StepError is a fatal error of one pipeline step
type StepError struct {
	// Step names the step that failed (import, build, deploy, ...)
	Step string
	Err  error

	// logged is set when the step already wrote its own build log line
	logged bool
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(step string, err error) *StepError {
	return &StepError{Step: step, Err: err}
}
