// Package fallback holds the degraded answers served when a dependency cannot
// be called.
package fallback

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"mini-call/message"
)

// ServiceUnavailableBody is the body of the response synthesized for keys
// without a registered fallback.
const ServiceUnavailableBody = "Service Unavailable"

// Func produces a degraded response for a call that could not be made.
// cause is why: a breaker refusal or the call's own error.
type Func func(ctx context.Context, desc *message.CallDescriptor, cause error) (*message.Response, error)

// Static returns a fallback that always answers status with body.
func Static(status int, body string) Func {
	return func(context.Context, *message.CallDescriptor, error) (*message.Response, error) {
		return message.NewTextResponse(status, body), nil
	}
}

// Dispatcher maps each BreakerKey to exactly one fallback.
type Dispatcher struct {
	logger *zap.Logger

	mu        sync.RWMutex
	fallbacks map[message.BreakerKey]Func
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:    logger,
		fallbacks: make(map[message.BreakerKey]Func),
	}
}

// Register installs fn for key, replacing any earlier one.
func (d *Dispatcher) Register(key message.BreakerKey, fn Func) {
	d.mu.Lock()
	_, replaced := d.fallbacks[key]
	d.fallbacks[key] = fn
	d.mu.Unlock()

	if replaced {
		d.logger.Warn("fallback replaced", zap.Stringer("breaker", key))
	}
}

// Dispatch runs the fallback of key. Without one it synthesizes a 503.
// A fallback that panics or returns no response yields an error.
func (d *Dispatcher) Dispatch(ctx context.Context, key message.BreakerKey, desc *message.CallDescriptor, cause error) (resp *message.Response, err error) {
	d.mu.RLock()
	fn, ok := d.fallbacks[key]
	d.mu.RUnlock()

	if !ok {
		d.logger.Debug("no fallback registered", zap.Stringer("breaker", key), zap.Error(cause))
		return message.NewTextResponse(http.StatusServiceUnavailable, ServiceUnavailableBody), nil
	}

	defer func() {
		if p := recover(); p != nil {
			resp, err = nil, fmt.Errorf("fallback for %s panicked: %v", key, p)
		}
	}()

	resp, err = fn(ctx, desc, cause)
	if err != nil {
		return nil, fmt.Errorf("fallback for %s: %w", key, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("fallback for %s returned no response", key)
	}
	return resp, nil
}
