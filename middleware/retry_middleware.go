package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-call/message"
	"mini-call/registry"
)

// RetryMiddleware retries calls whose error satisfies retryable, waiting
// baseDelay, 2*baseDelay, 4*baseDelay... between attempts. It is opt-in:
// the client does not retry on its own.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, retryable func(error) bool, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, desc *message.CallDescriptor, inst registry.Instance) (*message.Response, error) {
			resp, err := next(ctx, desc, inst)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !retryable(err) {
					return resp, err
				}
				logger.Info("retrying remote call",
					zap.Int("attempt", i+1),
					zap.String("dependency", desc.Dependency),
					zap.Error(err))

				select {
				case <-ctx.Done():
					return resp, err
				case <-time.After(baseDelay * time.Duration(1<<i)):
				}
				resp, err = next(ctx, desc, inst)
			}
			return resp, err
		}
	}
}
