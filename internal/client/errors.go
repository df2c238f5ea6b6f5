package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
)

// RemoteError is an errno reply from the daemon. It unwraps to the matching
// errno sentinel, so errors.Is(err, errno.ErrBusy) works across the socket.
type RemoteError struct {
	Status  int
	Errno   string
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("devipcd: %s (%s)", e.Message, e.Errno)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// isTransportFailure decides what trips the circuit breaker: anything that
// is not an errno reply, except the caller's own cancellation. A daemon
// that is shutting down counts as a failure.
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return errors.Is(re, errno.ErrShutdown)
	}
	return true
}
