package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-call/breaker"
)

const sample = `
[log]
level = "debug"
encoding = "console"

[discovery]
backend = "consul"
endpoints = ["127.0.0.1:8500"]
refresh_interval = "2s"

[balancer]
policy = "weighted_random"

[breaker]
minimum_calls = 4
cool_down = "30s"

[breaker.dependencies.billing]
window_size = 20
failure_rate_threshold = 0.25

[client]
default_timeout = "750ms"
rate = 100
burst = 10

[server]
service = "shopping"
listen = ":8000"
`

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestParseEmptyGivesDefaults(t *testing.T) {
	cfg, err := Parse(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, breaker.DefaultConfig(), cfg.Breaker.Defaults())
}

func TestParseFile(t *testing.T) {
	cfg, err := Parse([]byte(sample), nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, BackendConsul, cfg.Discovery.Backend)
	assert.Equal(t, []string{"127.0.0.1:8500"}, cfg.Discovery.Endpoints)
	assert.Equal(t, 2*time.Second, cfg.Discovery.RefreshInterval.Duration)
	// Untouched keys keep their default.
	assert.Equal(t, 10*time.Second, cfg.Discovery.TTL.Duration)
	assert.Equal(t, "weighted_random", cfg.Balancer.Policy)
	assert.Equal(t, 750*time.Millisecond, cfg.Client.DefaultTimeout.Duration)
	assert.Equal(t, "shopping", cfg.Server.Service)

	defaults := cfg.Breaker.Defaults()
	assert.Equal(t, 4, defaults.MinimumCalls)
	assert.Equal(t, 30*time.Second, defaults.CoolDown)
	assert.Equal(t, breaker.DefaultWindowSize, defaults.WindowSize)

	billing := cfg.Breaker.Overrides()["billing"]
	assert.Equal(t, 20, billing.WindowSize)
	assert.Equal(t, 0.25, billing.FailureRateThreshold)
	assert.Equal(t, 4, billing.MinimumCalls)
	assert.Equal(t, 30*time.Second, billing.CoolDown)
}

func TestEnvOverridesFile(t *testing.T) {
	cfg, err := Parse([]byte(sample), env(map[string]string{
		"MINICALL_LOG_LEVEL":           "warn",
		"MINICALL_DISCOVERY_ENDPOINTS": "10.0.0.1:8500,10.0.0.2:8500",
	}))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"10.0.0.1:8500", "10.0.0.2:8500"}, cfg.Discovery.Endpoints)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "[log]\nlevl = \"info\"",
		"bad level":     "[log]\nlevel = \"loud\"",
		"bad backend":   "[discovery]\nbackend = \"zookeeper\"",
		"bad policy":    "[balancer]\npolicy = \"random\"",
		"bad threshold": "[breaker]\nfailure_rate_threshold = 2.0",
		"bad override":  "[breaker.dependencies.billing]\nminimum_calls = 50",
		"zero timeout":  "[client]\ndefault_timeout = \"0s\"",
		"rate no burst": "[client]\nrate = 5",
		"bad duration":  "[client]\ndefault_timeout = \"soon\"",
		"no endpoints":  "[discovery]\nbackend = \"etcd\"\nendpoints = []",
		"bad scheme":    "[client]\nscheme = \"ftp\"",
		"bad encoding":  "[log]\nencoding = \"xml\"",
		"neg retries":   "[client]\nretries = -1",
		"retry delay":   "[client]\nretries = 2\nretry_base_delay = \"0s\"",
		"neg attempt":   "[client]\nattempt_timeout = \"-1s\"",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shopping.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	t.Setenv("MINICALL_SERVER_LISTEN", ":9000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestShippedConfigs(t *testing.T) {
	for _, name := range []string{"billing.toml", "shopping.toml"} {
		t.Run(name, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join("..", "configs", name))
			require.NoError(t, err)
			_, err = Parse(data, nil)
			require.NoError(t, err)
		})
	}

	data, err := os.ReadFile(filepath.Join("..", "configs", "shopping.toml"))
	require.NoError(t, err)
	cfg, err := Parse(data, nil)
	require.NoError(t, err)
	billing := cfg.Breaker.Overrides()["billing"]
	assert.Equal(t, 15*time.Second, billing.CoolDown)
	assert.Equal(t, breaker.DefaultMinimumCalls, billing.MinimumCalls)
}
