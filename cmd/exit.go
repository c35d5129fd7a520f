package cmd

import (
	"context"
	"errors"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// ExitError ends the process with Code. A nil Err prints nothing.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitCode maps a command error to the process exit status. An interrupt
// that reached a pipeline step is 130; the menu and the service treat an
// interrupt as a normal exit and return nil.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	return exitFailure
}
