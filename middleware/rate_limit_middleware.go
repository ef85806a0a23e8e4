package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"mini-call/message"
	"mini-call/registry"
)

// ErrRateLimited is returned when the client-side limiter rejects a call.
// The call never reaches the network, so it says nothing about the
// dependency's health.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware creates a token bucket limiter shared by every call
// going through the chain.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, desc *message.CallDescriptor, inst registry.Instance) (*message.Response, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, desc, inst)
		}
	}
}
