package breaker

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultWindowSize           = 10
	DefaultFailureRateThreshold = 0.5
	DefaultMinimumCalls         = 5
	DefaultCoolDown             = 10 * time.Second
	DefaultHalfOpenTrials       = 1
)

var ErrInvalidConfig = errors.New("invalid breaker config")

// Config holds the tripping rules of one breaker.
type Config struct {
	// WindowSize is the number of most recent counted calls considered.
	WindowSize int
	// FailureRateThreshold in (0, 1]: the breaker opens when the failure rate
	// of the window reaches it.
	FailureRateThreshold float64
	// MinimumCalls is the number of recorded calls below which the breaker
	// never opens.
	MinimumCalls int
	// CoolDown is how long the breaker stays open before letting a trial through.
	CoolDown time.Duration
	// HalfOpenTrials is the number of concurrent trial calls allowed while half-open.
	HalfOpenTrials int
}

func DefaultConfig() Config {
	return Config{
		WindowSize:           DefaultWindowSize,
		FailureRateThreshold: DefaultFailureRateThreshold,
		MinimumCalls:         DefaultMinimumCalls,
		CoolDown:             DefaultCoolDown,
		HalfOpenTrials:       DefaultHalfOpenTrials,
	}
}

// Validate rejects configs the state machine cannot honour.
func (c Config) Validate() error {
	switch {
	case c.WindowSize <= 0:
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	case c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1:
		return fmt.Errorf("%w: failure rate threshold must be in (0, 1], got %v", ErrInvalidConfig, c.FailureRateThreshold)
	case c.MinimumCalls <= 0:
		return fmt.Errorf("%w: minimum calls must be positive, got %d", ErrInvalidConfig, c.MinimumCalls)
	case c.MinimumCalls > c.WindowSize:
		return fmt.Errorf("%w: minimum calls %d exceed window size %d", ErrInvalidConfig, c.MinimumCalls, c.WindowSize)
	case c.CoolDown <= 0:
		return fmt.Errorf("%w: cool-down must be positive, got %s", ErrInvalidConfig, c.CoolDown)
	case c.HalfOpenTrials <= 0:
		return fmt.Errorf("%w: half-open trials must be positive, got %d", ErrInvalidConfig, c.HalfOpenTrials)
	}
	return nil
}
