package cli

import (
	"context"
	"errors"
	"fmt"

	"genesynth/internal/fault"
)

const (
	ExitSuccess           = 0
	ExitGenerationFailure = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// InvocationError is a command line that could not be turned into a run.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error to its semantic exit code. Unknown errors are
// internal errors.
func ExitCode(err error) int {
	var invErr *InvocationError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &invErr) && invErr != nil:
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	case errors.Is(err, fault.ErrConfig):
		return ExitConfigError
	case errors.Is(err, fault.ErrGeneration),
		errors.Is(err, fault.ErrIntegrity),
		errors.Is(err, fault.ErrLane),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ExitGenerationFailure
	}
	return ExitInternalError
}
