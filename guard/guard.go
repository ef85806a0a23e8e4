// Package guard is the caller-facing entry point: a remote call wrapped in
// the dependency's circuit breaker, with a fallback on every failure path.
//
// Call never returns an error. Callers switch on Result.Kind:
//
//	res := g.Call(ctx, desc)
//	if !res.OK() {
//		log.Printf("degraded: %v", res.Cause)
//	}
//	w.Write(res.Response.Body)
package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"mini-call/breaker"
	"mini-call/client"
	"mini-call/fallback"
	"mini-call/message"
)

var (
	// ErrDegraded marks a call whose fallback failed too.
	ErrDegraded = errors.New("degraded service")

	// ErrInvokerPanic wraps a panic raised by the Invoker.
	ErrInvokerPanic = errors.New("invoker panicked")
)

// Invoker performs the remote call. *client.Client implements it.
type Invoker interface {
	Do(ctx context.Context, desc *message.CallDescriptor) (*message.Response, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, desc *message.CallDescriptor) (*message.Response, error)

func (f InvokerFunc) Do(ctx context.Context, desc *message.CallDescriptor) (*message.Response, error) {
	return f(ctx, desc)
}

type Guard struct {
	caller    string
	breakers  *breaker.Registry
	proxy     Invoker
	fallbacks *fallback.Dispatcher
	binding   *client.Binding
	logger    *zap.Logger
}

type Option func(*Guard)

// WithBinding enables CallBinding.
func WithBinding(b *client.Binding) Option {
	return func(g *Guard) {
		g.binding = b
	}
}

// New creates the guard of one calling service. callerID is the caller half
// of every BreakerKey it uses.
func New(callerID string, breakers *breaker.Registry, proxy Invoker, fallbacks *fallback.Dispatcher, logger *zap.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallbacks == nil {
		fallbacks = fallback.NewDispatcher(logger)
	}
	g := &Guard{
		caller:    callerID,
		breakers:  breakers,
		proxy:     proxy,
		fallbacks: fallbacks,
		logger:    logger.With(zap.String("caller", callerID)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key returns the breaker key used for calls to dependency.
func (g *Guard) Key(dependency string) message.BreakerKey {
	return message.BreakerKey{Caller: g.caller, Dependency: dependency}
}

// Call invokes desc through its breaker.
func (g *Guard) Call(ctx context.Context, desc *message.CallDescriptor) message.Result {
	if err := desc.Validate(); err != nil {
		g.logger.Error("malformed call", zap.Error(err))
		return malformed(err)
	}

	key := g.Key(desc.Dependency)
	var resp *message.Response
	err := g.breakers.Get(key).Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = g.invoke(ctx, desc)
		return err
	})
	if err != nil {
		return g.degrade(ctx, key, desc, err)
	}
	return message.Result{Kind: message.Success, Response: resp}
}

// invoke turns an Invoker panic into an error so the breaker counts a
// failure and the fallback still answers.
func (g *Guard) invoke(ctx context.Context, desc *message.CallDescriptor) (resp *message.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("invoker panicked",
				zap.String("dependency", desc.Dependency),
				zap.Any("panic", r),
				zap.Stack("stack"))
			resp, err = nil, fmt.Errorf("%w: %v", ErrInvokerPanic, r)
		}
	}()
	return g.proxy.Do(ctx, desc)
}

// CallBinding describes the named operation and calls it. It needs WithBinding.
func (g *Guard) CallBinding(ctx context.Context, name string, params map[string]string) message.Result {
	if g.binding == nil {
		err := fmt.Errorf("%w: %w %q: no binding configured", message.ErrMalformedDescriptor, client.ErrUnknownEndpoint, name)
		return malformed(err)
	}
	desc, err := g.binding.Describe(name, params)
	if err != nil {
		g.logger.Error("malformed call", zap.String("endpoint", name), zap.Error(err))
		return malformed(err)
	}
	return g.Call(ctx, desc)
}

// malformed results are not counted by any breaker: the call never left.
func malformed(err error) message.Result {
	return message.Result{
		Kind:     message.Degraded,
		Response: message.NewTextResponse(http.StatusBadRequest, err.Error()),
		Cause:    err,
	}
}

func (g *Guard) degrade(ctx context.Context, key message.BreakerKey, desc *message.CallDescriptor, cause error) message.Result {
	resp, err := g.fallbacks.Dispatch(ctx, key, desc, cause)
	if err != nil {
		g.logger.Error("fallback failed",
			zap.String("dependency", key.Dependency),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return message.Result{
			Kind:     message.Degraded,
			Response: message.NewTextResponse(http.StatusServiceUnavailable, ErrDegraded.Error()),
			Cause:    fmt.Errorf("%w: %w (fallback: %w)", ErrDegraded, cause, err),
		}
	}

	g.logger.Info("serving fallback",
		zap.String("dependency", key.Dependency),
		zap.Error(cause))
	return message.Result{Kind: message.Degraded, Response: resp, Cause: cause}
}
