package breaker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"mini-call/message"
)

// Listener is told about every real state transition of any breaker.
type Listener func(key message.BreakerKey, from, to State)

// Snapshot describes one breaker at a point in time.
type Snapshot struct {
	Key    message.BreakerKey
	State  State
	Counts Counts
}

// Registry owns the breakers of a process, one per BreakerKey, created on
// first use. Lookups of existing breakers take no lock.
type Registry struct {
	defaults  Config
	overrides map[string]Config // by dependency

	now           func() time.Time
	logger        *zap.Logger
	meterProvider metric.MeterProvider
	metrics       *instruments

	breakers sync.Map // message.BreakerKey -> *Breaker

	listenersMu sync.RWMutex
	listeners   []Listener
}

type RegistryOption func(*Registry)

// WithOverride sets the config of every breaker guarding dependency.
func WithOverride(dependency string, cfg Config) RegistryOption {
	return func(r *Registry) {
		r.overrides[dependency] = cfg
	}
}

func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMeterProvider replaces the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) RegistryOption {
	return func(r *Registry) {
		if mp != nil {
			r.meterProvider = mp
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithListener registers a transition listener at construction time.
func WithListener(l Listener) RegistryOption {
	return func(r *Registry) {
		r.listeners = append(r.listeners, l)
	}
}

// NewRegistry validates defaults and every override.
func NewRegistry(defaults Config, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		defaults:      defaults,
		overrides:     make(map[string]Config),
		now:           time.Now,
		logger:        zap.NewNop(),
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	for dep, cfg := range r.overrides {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("dependency %s: %w", dep, err)
		}
	}

	m, err := newInstruments(r.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("create breaker instruments: %w", err)
	}
	r.metrics = m
	return r, nil
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key message.BreakerKey) *Breaker {
	if b, ok := r.breakers.Load(key); ok {
		return b.(*Breaker)
	}
	b, loaded := r.breakers.LoadOrStore(key, newBreaker(key, r.configFor(key.Dependency), r))
	if !loaded {
		r.logger.Debug("circuit breaker created", zap.Stringer("breaker", key))
	}
	return b.(*Breaker)
}

func (r *Registry) configFor(dependency string) Config {
	if cfg, ok := r.overrides[dependency]; ok {
		return cfg
	}
	return r.defaults
}

// State reports the state of key's breaker. A breaker never used is closed.
func (r *Registry) State(key message.BreakerKey) State {
	if b, ok := r.breakers.Load(key); ok {
		return b.(*Breaker).State()
	}
	return StateClosed
}

// OnStateChange adds a listener for all breakers.
func (r *Registry) OnStateChange(l Listener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) fire(key message.BreakerKey, from, to State) {
	r.listenersMu.RLock()
	listeners := r.listeners
	r.listenersMu.RUnlock()

	for _, l := range listeners {
		r.safeCall(l, key, from, to)
	}
}

func (r *Registry) safeCall(l Listener, key message.BreakerKey, from, to State) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("breaker listener panicked",
				zap.Stringer("breaker", key),
				zap.Any("panic", p))
		}
	}()
	l(key, from, to)
}

// Snapshot lists every breaker created so far, sorted by key.
func (r *Registry) Snapshot() []Snapshot {
	var out []Snapshot
	r.breakers.Range(func(_, v any) bool {
		b := v.(*Breaker)
		b.mu.Lock()
		out = append(out, Snapshot{
			Key:   b.key,
			State: b.state,
			Counts: Counts{
				Total:       b.window.Total(),
				Failures:    b.window.Failures(),
				FailureRate: b.window.FailureRate(),
			},
		})
		b.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}
