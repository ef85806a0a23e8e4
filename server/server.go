// Package server hosts a service's HTTP endpoints and keeps the service
// registered in discovery while it runs.
//
// Lifecycle:
//
//	Start: listen → register instance (uuid id, advertise addr) → serve
//	Shutdown: deregister → stop accepting → wait for in-flight requests (bounded)
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mini-call/registry"
)

// DefaultTTL is the registration lease of an instance.
const DefaultTTL = 10 * time.Second

type Server struct {
	service  string
	router   *mux.Router
	logger   *zap.Logger
	ttl      time.Duration
	metadata map[string]string

	httpServer *http.Server
	listener   net.Listener
	registrar  registry.Registrar // nil when not using discovery
	instance   registry.Instance
	shutdown   atomic.Bool
	done       chan error
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMetadata attaches metadata (e.g. "weight") to the registered instance.
func WithMetadata(md map[string]string) Option {
	return func(s *Server) {
		s.metadata = md
	}
}

// NewServer creates a server for service with request logging installed.
func NewServer(service string, opts ...Option) *Server {
	s := &Server{
		service: service,
		router:  mux.NewRouter(),
		logger:  zap.NewNop(),
		ttl:     DefaultTTL,
		done:    make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router.Use(LoggingMiddleware(s.logger))
	return s
}

// Handle adds routes. It must be called before Start.
func (s *Server) Handle(routes ...Route) {
	for _, r := range routes {
		s.router.HandleFunc(r.Pattern, r.HandlerFunc).Methods(r.Method).Name(r.Name)
	}
}

// Use adds a router middleware.
func (s *Server) Use(mw mux.MiddlewareFunc) {
	s.router.Use(mw)
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Instance returns the registered instance. Valid after Start.
func (s *Server) Instance() registry.Instance {
	return s.instance
}

// Start listens on address, registers the instance with reg (if not nil)
// and serves in the background. advertise is the host:port other services
// should dial; empty derives it from the listener.
func (s *Server) Start(ctx context.Context, address, advertise string, reg registry.Registrar) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.listener = listener

	inst, err := s.advertisedInstance(advertise)
	if err != nil {
		listener.Close()
		return err
	}
	s.instance = inst

	if reg != nil {
		if err := reg.Register(ctx, s.service, inst, s.ttl); err != nil {
			listener.Close()
			return fmt.Errorf("register %s: %w", s.service, err)
		}
		s.registrar = reg
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		err := s.httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) && s.shutdown.Load() {
			err = nil
		}
		s.done <- err
	}()

	s.logger.Info("service started",
		zap.String("service", s.service),
		zap.String("instance", inst.InstanceID),
		zap.String("listen", listener.Addr().String()),
		zap.String("advertise", inst.Addr()))
	return nil
}

// Serve is Start followed by waiting until the server stops.
func (s *Server) Serve(ctx context.Context, address, advertise string, reg registry.Registrar) error {
	if err := s.Start(ctx, address, advertise, reg); err != nil {
		return err
	}
	return s.Wait()
}

// Wait blocks until the serving goroutine exits.
func (s *Server) Wait() error {
	return <-s.done
}

func (s *Server) advertisedInstance(advertise string) (registry.Instance, error) {
	if advertise == "" {
		advertise = s.listener.Addr().String()
	}
	host, portStr, err := net.SplitHostPort(advertise)
	if err != nil {
		return registry.Instance{}, fmt.Errorf("advertise address %q: %w", advertise, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return registry.Instance{}, fmt.Errorf("advertise port %q: %w", portStr, err)
	}
	if port == 0 {
		port = s.listener.Addr().(*net.TCPAddr).Port
	}
	// A wildcard listen address is not dialable.
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	id := s.service + "-" + uuid.NewString()
	return registry.NewInstance(host, port, id, s.metadata), nil
}

// Shutdown deregisters first so callers stop picking this instance, then
// stops the listener and waits up to timeout for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.registrar != nil {
		if err := s.registrar.Deregister(ctx, s.service, s.instance.InstanceID); err != nil {
			s.logger.Warn("deregister failed", zap.String("instance", s.instance.InstanceID), zap.Error(err))
		}
	}

	s.shutdown.Store(true)
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("timeout waiting for ongoing requests to finish: %w", err)
	}
	s.logger.Info("service stopped", zap.String("instance", s.instance.InstanceID))
	return nil
}
