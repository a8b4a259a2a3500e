package shell

import (
	"errors"
	"fmt"
)

// ExitError carries the exit code of the application and, if the
// application failed, the cause.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("application exited with code %d: %v", e.Code, e.Err)
	}

	return fmt.Sprintf("application exited with code %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, cause error) *ExitError {
	return &ExitError{Code: code, Err: cause}
}

// ExitStatus returns the exit code carried by err, if any.
func ExitStatus(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}

	return 0, false
}
