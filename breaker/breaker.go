package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-call/message"
)

var (
	// ErrOpen is returned while the breaker refuses calls.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTooManyTrials is returned in half-open state when the trial slots are taken.
	ErrTooManyTrials = errors.New("circuit breaker trial in progress")
)

// Counts is a point-in-time view of a breaker's window.
type Counts struct {
	Total       int
	Failures    int
	FailureRate float64
}

type transition struct {
	from, to State
}

// Breaker guards one caller/dependency pair.
//
// State, window and openedAt change together under mu. The half-open trial
// slots are an atomic counter taken by compare-and-set. Nothing under mu does
// I/O; listeners run after it is released.
type Breaker struct {
	key     message.BreakerKey
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
	metrics *instruments
	notify  func(key message.BreakerKey, from, to State)

	mu         sync.Mutex
	state      State
	window     *RollingWindow
	openedAt   time.Time
	generation uint64 // bumped on every transition

	trials atomic.Int32
}

func newBreaker(key message.BreakerKey, cfg Config, r *Registry) *Breaker {
	return &Breaker{
		key:     key,
		cfg:     cfg,
		now:     r.now,
		logger:  r.logger.With(zap.String("breaker", key.String())),
		metrics: r.metrics,
		notify:  r.fire,
		state:   StateClosed,
		window:  NewRollingWindow(cfg.WindowSize),
	}
}

// Key returns the caller/dependency pair this breaker guards.
func (b *Breaker) Key() message.BreakerKey { return b.key }

// Config returns the effective configuration.
func (b *Breaker) Config() Config { return b.cfg }

// Permit is the admission ticket of one call. Done must be called exactly
// once with the call's outcome; later calls are no-ops.
type Permit struct {
	b          *Breaker
	generation uint64
	trial      bool
	done       atomic.Bool
}

// Trial reports whether the call is the half-open probe.
func (p *Permit) Trial() bool { return p.trial }

// Done reports the outcome of the admitted call.
func (p *Permit) Done(outcome Outcome) {
	if !p.done.CompareAndSwap(false, true) {
		return
	}
	p.b.record(p, outcome)
}

// Allow decides whether a call may go through. A nil error comes with a
// permit; otherwise the error is ErrOpen or ErrTooManyTrials.
func (b *Breaker) Allow() (*Permit, error) {
	b.mu.Lock()
	var changed []transition

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.CoolDown {
			b.mu.Unlock()
			b.reject(ErrOpen)
			return nil, ErrOpen
		}
		changed = b.setState(StateHalfOpen, changed)
	}

	if b.state == StateHalfOpen {
		if !b.acquireTrial() {
			b.mu.Unlock()
			b.announce(changed)
			b.reject(ErrTooManyTrials)
			return nil, ErrTooManyTrials
		}
		p := &Permit{b: b, generation: b.generation, trial: true}
		b.mu.Unlock()
		b.announce(changed)
		return p, nil
	}

	p := &Permit{b: b, generation: b.generation}
	b.mu.Unlock()
	return p, nil
}

func (b *Breaker) acquireTrial() bool {
	for {
		n := b.trials.Load()
		if int(n) >= b.cfg.HalfOpenTrials {
			return false
		}
		if b.trials.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (b *Breaker) record(p *Permit, outcome Outcome) {
	b.metrics.call(b.key.String(), outcome)

	b.mu.Lock()
	var changed []transition

	switch {
	case p.generation != b.generation:
		// Admitted before the last transition; its outcome describes a
		// state that no longer exists.
	case outcome == OutcomeIgnored:
		if p.trial {
			b.trials.Add(-1)
		}
	case b.state == StateHalfOpen && p.trial:
		if outcome == OutcomeSuccess {
			changed = b.setState(StateClosed, changed)
		} else {
			changed = b.setState(StateOpen, changed)
		}
	case b.state == StateClosed:
		b.window.Record(outcome == OutcomeFailure)
		if b.window.Total() >= b.cfg.MinimumCalls && b.window.FailureRate() >= b.cfg.FailureRateThreshold {
			changed = b.setState(StateOpen, changed)
		}
	}

	b.mu.Unlock()
	b.announce(changed)
}

// setState must be called with mu held. Moving to the current state is a no-op.
func (b *Breaker) setState(to State, changed []transition) []transition {
	from := b.state
	if from == to {
		return changed
	}
	b.state = to
	b.generation++

	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateHalfOpen:
		b.trials.Store(0)
	case StateClosed:
		b.window.Reset()
		b.trials.Store(0)
	}
	return append(changed, transition{from: from, to: to})
}

// announce logs, counts and fans out transitions. Must be called without mu.
func (b *Breaker) announce(changed []transition) {
	for _, t := range changed {
		fields := []zap.Field{zap.Stringer("from", t.from), zap.Stringer("to", t.to)}
		if t.to == StateOpen {
			b.logger.Warn("circuit breaker opened", fields...)
		} else {
			b.logger.Info("circuit breaker state changed", fields...)
		}
		b.metrics.transition(b.key.String(), t.from, t.to)
		if b.notify != nil {
			b.notify(b.key, t.from, t.to)
		}
	}
}

func (b *Breaker) reject(reason error) {
	b.metrics.rejection(b.key.String(), reason)
	b.logger.Debug("call rejected", zap.Error(reason))
}

// Execute runs fn if the breaker admits it and records the classified error.
// A refused call returns ErrOpen or ErrTooManyTrials without running fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	p, err := b.Allow()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			p.Done(OutcomeFailure)
			panic(r)
		}
	}()

	err = fn(ctx)
	p.Done(Classify(err))
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{
		Total:       b.window.Total(),
		Failures:    b.window.Failures(),
		FailureRate: b.window.FailureRate(),
	}
}

// Reset forces the breaker closed with an empty window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	changed := b.setState(StateClosed, nil)
	b.window.Reset()
	b.mu.Unlock()
	b.announce(changed)
}
