package breaker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"mini-call/client"
	"mini-call/loadbalance"
	"mini-call/message"
	"mini-call/middleware"
	"mini-call/registry"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSuccess},
		{"timeout", &client.TimeoutError{Dependency: "billing", Err: context.DeadlineExceeded}, OutcomeFailure},
		{"transport", &client.TransportError{Dependency: "billing", Err: errors.New("connection refused")}, OutcomeFailure},
		{"500", &client.RemoteError{StatusCode: 500}, OutcomeFailure},
		{"503", &client.RemoteError{StatusCode: 503}, OutcomeFailure},
		{"404", &client.RemoteError{StatusCode: 404}, OutcomeIgnored},
		{"400", &client.RemoteError{StatusCode: 400}, OutcomeIgnored},
		{"no instances", fmt.Errorf("pick: %w", loadbalance.ErrNoInstances), OutcomeFailure},
		{"registry down", registry.ErrUnavailable, OutcomeFailure},
		{"unknown service", registry.ErrNotFound, OutcomeIgnored},
		{"rate limited", middleware.ErrRateLimited, OutcomeIgnored},
		{"malformed", message.ErrMalformedDescriptor, OutcomeIgnored},
		{"caller cancelled", &client.TransportError{Err: context.Canceled}, OutcomeIgnored},
		{"anything else", errors.New("boom"), OutcomeFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
