package middleware

import (
	"context"
	"fmt"
	"time"

	"mini-call/message"
	"mini-call/registry"
)

// TimeOutMiddleware caps everything below it, retries included, at timeout.
// It returns as soon as the deadline passes even if next ignores ctx.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, desc *message.CallDescriptor, inst registry.Instance) (*message.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp *message.Response
				err  error
			}
			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, desc, inst)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, fmt.Errorf("request timed out after %s: %w", timeout, ctx.Err())
			}
		}
	}
}
