package breaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingWindowEvictsOldest(t *testing.T) {
	w := NewRollingWindow(3)
	w.Record(true)
	w.Record(false)
	w.Record(true)
	assert.Equal(t, 3, w.Total())
	assert.Equal(t, 2, w.Failures())

	// Pushes out the first failure.
	w.Record(false)
	assert.Equal(t, 3, w.Total())
	assert.Equal(t, 1, w.Failures())
	assert.InDelta(t, 1.0/3, w.FailureRate(), 1e-9)

	w.Reset()
	assert.Zero(t, w.Total())
	assert.Zero(t, w.FailureRate())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.WindowSize = 0 },
		func(c *Config) { c.FailureRateThreshold = 0 },
		func(c *Config) { c.FailureRateThreshold = 1.5 },
		func(c *Config) { c.MinimumCalls = 0 },
		func(c *Config) { c.MinimumCalls = c.WindowSize + 1 },
		func(c *Config) { c.CoolDown = 0 },
		func(c *Config) { c.HalfOpenTrials = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "case %d", i)
	}
}
