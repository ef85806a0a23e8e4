// Package bootstrap turns a loaded configuration into the wired components
// a service binary needs.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mini-call/breaker"
	"mini-call/client"
	"mini-call/config"
	"mini-call/fallback"
	"mini-call/guard"
	"mini-call/loadbalance"
	"mini-call/middleware"
	"mini-call/registry"
	"mini-call/transport"
)

// Backend is a discovery backend that can also be closed.
type Backend interface {
	registry.Backend
	Close() error
}

// NewBackend connects to the configured discovery backend.
func NewBackend(cfg config.Discovery, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendEtcd:
		r, err := registry.NewEtcdRegistry(cfg.Endpoints, cfg.Prefix, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.BackendConsul:
		addr := ""
		if len(cfg.Endpoints) > 0 {
			addr = cfg.Endpoints[0]
		}
		r, err := registry.NewConsulRegistry(addr, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.BackendMemory:
		return memoryBackend{registry.NewMemoryRegistry()}, nil
	default:
		return nil, fmt.Errorf("unknown discovery backend %q", cfg.Backend)
	}
}

type memoryBackend struct {
	*registry.MemoryRegistry
}

func (memoryBackend) Close() error { return nil }

// clientMiddlewares orders the chain outermost first: logging sees the final
// outcome, one rate-limit token covers all retries, and each retry gets its
// own attempt timeout.
func clientMiddlewares(cfg config.Client, logger *zap.Logger) []middleware.Middleware {
	mws := []middleware.Middleware{middleware.LoggingMiddleware(logger)}
	if cfg.Rate > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.Rate, cfg.Burst))
	}
	if cfg.Retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.Retries, cfg.RetryBaseDelay.Duration, client.IsRetryable, logger))
	}
	if cfg.AttemptTimeout.Duration > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(cfg.AttemptTimeout.Duration))
	}
	return mws
}

// Caller bundles everything a service needs to call its dependencies.
type Caller struct {
	Resolver  *registry.Client
	Client    *client.Client
	Breakers  *breaker.Registry
	Fallbacks *fallback.Dispatcher
	Guard     *guard.Guard
}

// NewCaller wires discovery, balancing, transport, breakers and fallbacks for
// the service named callerID. dependencies are tracked up front so the first
// refresh already knows them.
func NewCaller(cfg config.Config, callerID string, discovery registry.Discovery, logger *zap.Logger, binding *client.Binding, dependencies ...string) (*Caller, error) {
	balancer, err := loadbalance.New(cfg.Balancer.Policy)
	if err != nil {
		return nil, err
	}

	resolver := registry.NewClient(discovery,
		registry.WithRefreshInterval(cfg.Discovery.RefreshInterval.Duration),
		registry.WithDiscoverTimeout(cfg.Discovery.DiscoverTimeout.Duration),
		registry.WithLogger(logger))
	resolver.Track(dependencies...)

	c := client.New(resolver, balancer, transport.NewHTTPTransport(cfg.Client.Scheme),
		client.WithDefaultTimeout(cfg.Client.DefaultTimeout.Duration),
		client.WithLogger(logger),
		client.WithMiddlewares(clientMiddlewares(cfg.Client, logger)...))

	opts := []breaker.RegistryOption{breaker.WithLogger(logger)}
	for dep, bc := range cfg.Breaker.Overrides() {
		opts = append(opts, breaker.WithOverride(dep, bc))
	}
	breakers, err := breaker.NewRegistry(cfg.Breaker.Defaults(), opts...)
	if err != nil {
		return nil, err
	}

	fallbacks := fallback.NewDispatcher(logger)
	var gopts []guard.Option
	if binding != nil {
		gopts = append(gopts, guard.WithBinding(binding))
	}

	return &Caller{
		Resolver:  resolver,
		Client:    c,
		Breakers:  breakers,
		Fallbacks: fallbacks,
		Guard:     guard.New(callerID, breakers, c, fallbacks, logger, gopts...),
	}, nil
}

// Start does one synchronous refresh and keeps the registry view current
// until ctx is done.
func (c *Caller) Start(ctx context.Context) {
	c.Resolver.Refresh(ctx)
	go c.Resolver.Run(ctx)
}
