// Package config loads the TOML configuration shared by the service binaries.
//
// Values are layered: built-in defaults, then the file, then environment
// overrides (MINICALL_DISCOVERY_ENDPOINTS, MINICALL_LOG_LEVEL, ...).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"mini-call/breaker"
	"mini-call/loadbalance"
)

var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a string ("5s", "250ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Log       Log       `toml:"log"`
	Discovery Discovery `toml:"discovery"`
	Balancer  Balancer  `toml:"balancer"`
	Breaker   Breaker   `toml:"breaker"`
	Client    Client    `toml:"client"`
	Server    Server    `toml:"server"`
}

type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
	Encoding    string `toml:"encoding"` // json or console
}

type Discovery struct {
	Backend         string   `toml:"backend"` // memory, etcd or consul
	Endpoints       []string `toml:"endpoints"`
	Prefix          string   `toml:"prefix"`
	RefreshInterval Duration `toml:"refresh_interval"`
	DiscoverTimeout Duration `toml:"discover_timeout"`
	TTL             Duration `toml:"ttl"`
}

type Balancer struct {
	Policy string `toml:"policy"`
}

// BreakerSettings mirrors breaker.Config. In a dependency override, zero
// fields inherit the [breaker] value.
type BreakerSettings struct {
	WindowSize           int      `toml:"window_size"`
	FailureRateThreshold float64  `toml:"failure_rate_threshold"`
	MinimumCalls         int      `toml:"minimum_calls"`
	CoolDown             Duration `toml:"cool_down"`
	HalfOpenTrials       int      `toml:"half_open_trials"`
}

type Breaker struct {
	BreakerSettings
	Dependencies map[string]BreakerSettings `toml:"dependencies"`
}

type Client struct {
	DefaultTimeout Duration `toml:"default_timeout"`
	Rate           float64  `toml:"rate"` // calls per second, 0 disables limiting
	Burst          int      `toml:"burst"`
	Scheme         string   `toml:"scheme"`
	// Retries re-sends a failed attempt to the same instance, within the
	// call's timeout. Only timeouts, transport errors and 5xx are retried.
	Retries        int      `toml:"retries"`
	RetryBaseDelay Duration `toml:"retry_base_delay"` // doubles per retry
	AttemptTimeout Duration `toml:"attempt_timeout"`  // 0: an attempt may use the whole call timeout
}

type Server struct {
	Service         string   `toml:"service"`
	Listen          string   `toml:"listen"`
	Advertise       string   `toml:"advertise"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

const (
	BackendMemory = "memory"
	BackendEtcd   = "etcd"
	BackendConsul = "consul"
)

func Default() Config {
	return Config{
		Log: Log{Level: "info", Encoding: "json"},
		Discovery: Discovery{
			Backend:         BackendEtcd,
			Endpoints:       []string{"127.0.0.1:2379"},
			Prefix:          "/mini-call",
			RefreshInterval: Duration{5 * time.Second},
			DiscoverTimeout: Duration{3 * time.Second},
			TTL:             Duration{10 * time.Second},
		},
		Balancer: Balancer{Policy: loadbalance.RoundRobinName},
		Breaker: Breaker{
			BreakerSettings: BreakerSettings{
				WindowSize:           breaker.DefaultWindowSize,
				FailureRateThreshold: breaker.DefaultFailureRateThreshold,
				MinimumCalls:         breaker.DefaultMinimumCalls,
				CoolDown:             Duration{breaker.DefaultCoolDown},
				HalfOpenTrials:       breaker.DefaultHalfOpenTrials,
			},
		},
		Client: Client{
			DefaultTimeout: Duration{2 * time.Second},
			Scheme:         "http",
			RetryBaseDelay: Duration{50 * time.Millisecond},
		},
		Server: Server{
			Listen:          ":8080",
			ShutdownTimeout: Duration{10 * time.Second},
		},
	}
}

// Load reads path (skipped when empty), applies the environment and validates.
func Load(path string) (Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes TOML over the defaults. lookupEnv may be nil.
func Parse(data []byte, lookupEnv func(string) (string, bool)) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown keys %v", ErrInvalid, undecoded)
	}
	if lookupEnv != nil {
		cfg.applyEnv(lookupEnv)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("MINICALL_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("MINICALL_DISCOVERY_BACKEND"); ok && v != "" {
		c.Discovery.Backend = v
	}
	if v, ok := lookup("MINICALL_DISCOVERY_ENDPOINTS"); ok && v != "" {
		c.Discovery.Endpoints = strings.Split(v, ",")
	}
	if v, ok := lookup("MINICALL_SERVER_LISTEN"); ok && v != "" {
		c.Server.Listen = v
	}
	if v, ok := lookup("MINICALL_SERVER_ADVERTISE"); ok && v != "" {
		c.Server.Advertise = v
	}
}

func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log level: %v", ErrInvalid, err)
	}
	if c.Log.Encoding != "json" && c.Log.Encoding != "console" {
		return fmt.Errorf("%w: log encoding %q", ErrInvalid, c.Log.Encoding)
	}

	switch c.Discovery.Backend {
	case BackendMemory:
	case BackendEtcd, BackendConsul:
		if len(c.Discovery.Endpoints) == 0 {
			return fmt.Errorf("%w: discovery backend %s needs endpoints", ErrInvalid, c.Discovery.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown discovery backend %q", ErrInvalid, c.Discovery.Backend)
	}
	if c.Discovery.RefreshInterval.Duration <= 0 || c.Discovery.TTL.Duration <= 0 {
		return fmt.Errorf("%w: discovery intervals must be positive", ErrInvalid)
	}

	if _, err := loadbalance.New(c.Balancer.Policy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := c.Breaker.Defaults().Validate(); err != nil {
		return fmt.Errorf("%w: [breaker]: %v", ErrInvalid, err)
	}
	for dep, cfg := range c.Breaker.Overrides() {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: [breaker.dependencies.%s]: %v", ErrInvalid, dep, err)
		}
	}

	if c.Client.DefaultTimeout.Duration <= 0 {
		return fmt.Errorf("%w: client default timeout must be positive", ErrInvalid)
	}
	if c.Client.Rate < 0 || (c.Client.Rate > 0 && c.Client.Burst < 1) {
		return fmt.Errorf("%w: client rate %v needs a burst of at least 1", ErrInvalid, c.Client.Rate)
	}
	if c.Client.Scheme != "http" && c.Client.Scheme != "https" {
		return fmt.Errorf("%w: client scheme %q", ErrInvalid, c.Client.Scheme)
	}
	if c.Client.Retries < 0 || (c.Client.Retries > 0 && c.Client.RetryBaseDelay.Duration <= 0) {
		return fmt.Errorf("%w: client retries %d need a positive retry_base_delay", ErrInvalid, c.Client.Retries)
	}
	if c.Client.AttemptTimeout.Duration < 0 {
		return fmt.Errorf("%w: client attempt timeout must not be negative", ErrInvalid)
	}
	return nil
}

// Defaults returns the [breaker] section as a breaker config.
func (b Breaker) Defaults() breaker.Config {
	return b.BreakerSettings.toBreaker()
}

// Overrides returns one full breaker config per [breaker.dependencies.<name>].
func (b Breaker) Overrides() map[string]breaker.Config {
	out := make(map[string]breaker.Config, len(b.Dependencies))
	for dep, s := range b.Dependencies {
		out[dep] = s.inherit(b.BreakerSettings).toBreaker()
	}
	return out
}

func (s BreakerSettings) inherit(base BreakerSettings) BreakerSettings {
	if s.WindowSize == 0 {
		s.WindowSize = base.WindowSize
	}
	if s.FailureRateThreshold == 0 {
		s.FailureRateThreshold = base.FailureRateThreshold
	}
	if s.MinimumCalls == 0 {
		s.MinimumCalls = base.MinimumCalls
	}
	if s.CoolDown.Duration == 0 {
		s.CoolDown = base.CoolDown
	}
	if s.HalfOpenTrials == 0 {
		s.HalfOpenTrials = base.HalfOpenTrials
	}
	return s
}

func (s BreakerSettings) toBreaker() breaker.Config {
	return breaker.Config{
		WindowSize:           s.WindowSize,
		FailureRateThreshold: s.FailureRateThreshold,
		MinimumCalls:         s.MinimumCalls,
		CoolDown:             s.CoolDown.Duration,
		HalfOpenTrials:       s.HalfOpenTrials,
	}
}
