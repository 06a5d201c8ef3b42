package vm

import (
	"errors"
	"fmt"
)

// ErrInvalidOperation indicates an operation that is not valid in the
// instance's current state (for example starting while suspending), or
// not supported by the backend at all. It is surfaced synchronously to
// the caller and changes no state.
var ErrInvalidOperation = errors.New("invalid operation")

// StartError indicates a start attempt that terminated before the
// instance became reachable, as distinct from an ordinary request
// failure. The readiness guard raises it when an instance turns off
// mid-start.
type StartError struct {
	Name   string
	Reason string
}

func (e *StartError) Error() string {
	return fmt.Sprintf("instance %q failed to start: %s", e.Name, e.Reason)
}

// AbortedError indicates an operation cancelled by the caller, as
// distinct from a remote failure. The image fetch pipeline raises it
// when the progress monitor requests cancellation.
type AbortedError struct {
	Reason string
}

func (e *AbortedError) Error() string {
	return e.Reason
}

// IPTimeoutError indicates that IP discovery exhausted its bounded
// retry without the instance reporting an address.
type IPTimeoutError struct {
	Name string
}

func (e *IPTimeoutError) Error() string {
	return fmt.Sprintf("instance %q: failed to determine IP address", e.Name)
}
