package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// TimeoutError means the remote did not answer within the call's timeout.
type TimeoutError struct {
	Dependency string
	Instance   string
	Timeout    time.Duration
	Err        error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call to %s at %s timed out after %s", e.Dependency, e.Instance, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError is a connection-level failure: refused, reset, DNS, or the
// caller cancelling the call.
type TransportError struct {
	Dependency string
	Instance   string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("call to %s at %s failed: %v", e.Dependency, e.Instance, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is an application-level non-2xx answer.
type RemoteError struct {
	Dependency string
	Instance   string
	StatusCode int
	Body       []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("call to %s at %s returned %d", e.Dependency, e.Instance, e.StatusCode)
}

// ServerError reports a 5xx status, i.e. the dependency itself is unhealthy.
func (e *RemoteError) ServerError() bool {
	return e.StatusCode >= 500
}

// IsRetryable reports whether err is worth another attempt: timeouts,
// transport failures other than caller cancellation, and 5xx answers.
// A bare deadline error, as returned by an attempt timeout, counts as a timeout.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var tr *TransportError
	if errors.As(err, &tr) {
		return true
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.ServerError()
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
