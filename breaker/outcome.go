package breaker

import (
	"context"
	"errors"

	"mini-call/client"
	"mini-call/message"
	"mini-call/middleware"
	"mini-call/registry"
)

// Outcome is how a finished call counts toward the breaker.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	// OutcomeIgnored calls are not recorded: they say nothing about the
	// dependency's health.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "ignored"
	}
}

// Classify maps a call error to an outcome.
//
//	nil                                       -> success
//	timeout, transport error, 5xx             -> failure
//	no instances, registry unreachable        -> failure
//	4xx, unknown service, rate limited,
//	malformed descriptor, caller cancellation -> ignored
//
// Anything else counts as a failure.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, message.ErrMalformedDescriptor) ||
		errors.Is(err, registry.ErrNotFound) ||
		errors.Is(err, middleware.ErrRateLimited) {
		return OutcomeIgnored
	}

	var re *client.RemoteError
	if errors.As(err, &re) {
		if re.ServerError() {
			return OutcomeFailure
		}
		return OutcomeIgnored
	}

	return OutcomeFailure
}
