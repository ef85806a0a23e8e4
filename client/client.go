// Package client is the invocation proxy: it resolves a dependency to an
// instance and performs exactly one network call against it.
package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mini-call/loadbalance"
	"mini-call/message"
	"mini-call/middleware"
	"mini-call/registry"
	"mini-call/transport"
)

// DefaultTimeout applies to descriptors that carry no timeout of their own.
const DefaultTimeout = 2 * time.Second

// Resolver is the read side of the registry client.
type Resolver interface {
	Resolve(serviceName string) (registry.InstanceSet, error)
}

type Client struct {
	resolver       Resolver
	balancer       loadbalance.Balancer
	transport      transport.Transport
	defaultTimeout time.Duration
	logger         *zap.Logger

	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
}

type Option func(*Client)

func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMiddlewares installs middlewares around the invoke step, outermost first.
func WithMiddlewares(mws ...middleware.Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

func New(resolver Resolver, balancer loadbalance.Balancer, tr transport.Transport, opts ...Option) *Client {
	c := &Client{
		resolver:       resolver,
		balancer:       balancer,
		transport:      tr,
		defaultTimeout: DefaultTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.handler = middleware.Chain(c.middlewares...)(c.send)
	return c
}

// Do validates desc, picks an instance of desc.Dependency and invokes it.
// Resolution errors are returned as they are.
func (c *Client) Do(ctx context.Context, desc *message.CallDescriptor) (*message.Response, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	set, err := c.resolver.Resolve(desc.Dependency)

	if err != nil {
		return nil, err
	}

	inst, err := c.balancer.Pick(desc.Dependency, set)

	if err != nil {
		return nil, err
	}

	return c.Invoke(ctx, desc, inst)
}

// Invoke performs one call against inst, bounded by the descriptor timeout.
// A non-2xx answer is returned together with a *RemoteError.
func (c *Client) Invoke(ctx context.Context, desc *message.CallDescriptor, inst registry.Instance) (*message.Response, error) {
	timeout := c.timeoutFor(desc)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.handler(ctx, desc, inst)
	if err == nil {
		return resp, nil
	}

	// Middlewares may surface a bare context error.
	var te *TimeoutError
	var tr *TransportError
	var re *RemoteError
	switch {
	case errors.As(err, &te), errors.As(err, &tr), errors.As(err, &re):
	case errors.Is(err, context.Canceled):
		err = &TransportError{Dependency: desc.Dependency, Instance: inst.Addr(), Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		err = &TimeoutError{Dependency: desc.Dependency, Instance: inst.Addr(), Timeout: timeout, Err: err}
	}
	return resp, err
}

func (c *Client) timeoutFor(desc *message.CallDescriptor) time.Duration {
	if desc.Timeout > 0 {
		return desc.Timeout
	}
	return c.defaultTimeout
}

// send is the innermost handler of the chain.
func (c *Client) send(ctx context.Context, desc *message.CallDescriptor, inst registry.Instance) (*message.Response, error) {
	path, err := desc.Path()

	if err != nil {
		return nil, err
	}

	req := &transport.Request{
		Method: desc.Method,
		Addr:   inst.Addr(),
		Path:   path,
		Query:  desc.Query,
		Header: desc.Header,
		Body:   desc.Body,
	}

	raw, err := c.transport.Do(ctx, req)

	if err != nil {
		// The caller cancelling is not a timeout even if a deadline is also set.
		if isTimeout(err) && !errors.Is(err, context.Canceled) {
			return nil, &TimeoutError{Dependency: desc.Dependency, Instance: inst.Addr(), Timeout: c.timeoutFor(desc), Err: err}
		}
		return nil, &TransportError{Dependency: desc.Dependency, Instance: inst.Addr(), Err: err}
	}

	resp := &message.Response{
		StatusCode: raw.StatusCode,
		Header:     raw.Header,
		Body:       raw.Body,
		Instance:   inst.Addr(),
	}
	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		c.logger.Debug("non-2xx answer",
			zap.String("dependency", desc.Dependency),
			zap.String("instance", inst.Addr()),
			zap.Int("status", raw.StatusCode))
		return resp, &RemoteError{
			Dependency: desc.Dependency,
			Instance:   inst.Addr(),
			StatusCode: raw.StatusCode,
			Body:       raw.Body,
		}
	}
	return resp, nil
}
