// Package middleware wraps the single invoke step of the client.
//
// Middlewares follow the onion model: Chain(A, B, C)(h) == A(B(C(h))), so A
// sees the call first and the result last. They run after an instance has been
// selected and inside the call's timeout.
package middleware

import (
	"context"

	"mini-call/message"
	"mini-call/registry"
)

type HandlerFunc func(ctx context.Context, desc *message.CallDescriptor, inst registry.Instance) (*message.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines several middlewares into one.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
