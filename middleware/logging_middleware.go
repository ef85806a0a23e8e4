package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-call/message"
	"mini-call/registry"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, desc *message.CallDescriptor, inst registry.Instance) (*message.Response, error) {
			start := time.Now()
			resp, err := next(ctx, desc, inst)

			fields := []zap.Field{
				zap.String("dependency", desc.Dependency),
				zap.String("method", desc.Method),
				zap.String("path", desc.PathTemplate),
				zap.String("instance", inst.Addr()),
				zap.Duration("duration", time.Since(start)),
			}
			if resp != nil {
				fields = append(fields, zap.Int("status", resp.StatusCode))
			}
			if err != nil {
				logger.Warn("remote call failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("remote call", fields...)
			}
			return resp, err
		}
	}
}
