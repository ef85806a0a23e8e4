package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	DefaultRefreshInterval = 5 * time.Second
	DefaultDiscoverTimeout = 3 * time.Second
	refreshJitterFactor    = 0.1
	watchRetryInterval     = time.Second
)

// entry is the cached state of one service name after the last refresh.
type entry struct {
	instances InstanceSet
	err       error // last refresh error, nil on success
}

type snapshot map[string]entry

// Client keeps a local view of service name -> instances.
//
// Readers go through Resolve, which only loads an atomic pointer and copies a
// slice. The refresh routine is the single writer: it builds a whole new map
// and swaps it in, so a reader never sees a half-updated view.
//
//	Resolve ──load──► *snapshot ◄──store── Refresh (every interval, or on Watch push)
type Client struct {
	discovery       Discovery
	interval        time.Duration
	discoverTimeout time.Duration
	logger          *zap.Logger

	mu      sync.Mutex          // guards names and watched
	names   map[string]struct{} // services to refresh
	watched map[string]struct{} // services with a running watch goroutine

	refreshMu sync.Mutex // serializes writers
	current   atomic.Pointer[snapshot]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRefreshInterval sets the polling period.
func WithRefreshInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithDiscoverTimeout bounds each backend call made during a refresh.
func WithDiscoverTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.discoverTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a registry client over the given discovery backend.
// The snapshot starts empty; call Refresh or Run to populate it.
func NewClient(d Discovery, opts ...ClientOption) *Client {
	c := &Client{
		discovery:       d,
		interval:        DefaultRefreshInterval,
		discoverTimeout: DefaultDiscoverTimeout,
		logger:          zap.NewNop(),
		names:           make(map[string]struct{}),
		watched:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	empty := make(snapshot)
	c.current.Store(&empty)
	return c
}

// Track enrolls service names for refreshing ahead of the first Resolve.
func (c *Client) Track(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		c.names[n] = struct{}{}
	}
}

// Names returns the enrolled service names, sorted.
func (c *Client) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.names))
	for n := range c.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the last known instances of serviceName without doing I/O.
//
//   - never refreshed (cold start): empty set, nil error, and the name is
//     enrolled for the next refresh;
//   - cached instances: a copy, even if the last refresh failed (stale serve);
//   - nothing cached and the last refresh failed: ErrNotFound or ErrUnavailable;
//   - nothing cached and the backend reported no instances: empty set, nil.
func (c *Client) Resolve(serviceName string) (InstanceSet, error) {
	snap := *c.current.Load()
	e, ok := snap[serviceName]
	if !ok {
		c.Track(serviceName)
		return InstanceSet{}, nil
	}
	if len(e.instances) > 0 {
		return e.instances.Clone(), nil
	}
	if e.err != nil {
		return InstanceSet{}, e.err
	}
	return InstanceSet{}, nil
}

// Refresh queries the backend for every enrolled name and publishes a new
// snapshot.
func (c *Client) Refresh(ctx context.Context) {
	names := c.Names()

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	prev := *c.current.Load()
	next := make(snapshot, len(names))
	for _, name := range names {
		next[name] = c.fetch(ctx, name, prev[name])
	}
	c.current.Store(&next)
}

// RefreshService refreshes a single name, keeping every other entry as is.
func (c *Client) RefreshService(ctx context.Context, serviceName string) {
	c.Track(serviceName)

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	prev := *c.current.Load()
	next := make(snapshot, len(prev)+1)
	for k, v := range prev {
		next[k] = v
	}
	next[serviceName] = c.fetch(ctx, serviceName, prev[serviceName])
	c.current.Store(&next)
}

func (c *Client) fetch(ctx context.Context, name string, prev entry) entry {
	ctx, cancel := context.WithTimeout(ctx, c.discoverTimeout)
	defer cancel()

	found, err := c.discovery.Discover(ctx, name)
	switch {
	case err == nil:
		return entry{instances: InstanceSet(found).Clone()}
	case errors.Is(err, ErrNotFound):
		c.logger.Warn("service unknown to discovery backend", zap.String("service", name))
		return entry{err: err}
	default:
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(prev.instances) > 0 {
			c.logger.Warn("discovery refresh failed, serving stale instances",
				zap.String("service", name),
				zap.Int("instances", len(prev.instances)),
				zap.Error(err))
			return entry{instances: prev.instances, err: err}
		}
		c.logger.Error("discovery refresh failed", zap.String("service", name), zap.Error(err))
		return entry{err: err}
	}
}

// Run refreshes on a jittered interval until ctx is done. If the backend is a
// Watcher, every enrolled name also gets a push subscription that triggers an
// immediate refresh of that name.
func (c *Client) Run(ctx context.Context) {
	c.logger.Info("registry client started", zap.Duration("interval", c.interval))
	wait.JitterUntilWithContext(ctx, func(ctx context.Context) {
		c.Refresh(ctx)
		c.startWatches(ctx)
	}, c.interval, refreshJitterFactor, true)
	c.logger.Info("registry client stopped")
}

func (c *Client) startWatches(ctx context.Context) {
	w, ok := c.discovery.(Watcher)
	if !ok {
		return
	}

	c.mu.Lock()
	var pending []string
	for n := range c.names {
		if _, running := c.watched[n]; !running {
			c.watched[n] = struct{}{}
			pending = append(pending, n)
		}
	}
	c.mu.Unlock()

	for _, name := range pending {
		go c.watch(ctx, w, name)
	}
}

func (c *Client) watch(ctx context.Context, w Watcher, name string) {
	defer func() {
		c.mu.Lock()
		delete(c.watched, name)
		c.mu.Unlock()
	}()

	for {
		ch, err := w.Watch(ctx, name)
		if err != nil {
			c.logger.Warn("watch failed", zap.String("service", name), zap.Error(err))
		} else {
			for range ch {
				c.RefreshService(ctx, name)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRetryInterval):
		}
	}
}
