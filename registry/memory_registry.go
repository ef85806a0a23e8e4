package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-process discovery backend for tests and
// single-node development. A service becomes known on its first registration
// (or AddService) and stays known after its last instance leaves.
type MemoryRegistry struct {
	mu          sync.RWMutex
	services    map[string]map[string]Instance // service -> instanceID -> instance
	watchers    map[string][]chan struct{}
	unavailable bool
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]map[string]Instance),
		watchers: make(map[string][]chan struct{}),
	}
}

// AddService makes a service known without any instance.
func (r *MemoryRegistry) AddService(serviceName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[serviceName]; !ok {
		r.services[serviceName] = make(map[string]Instance)
	}
}

// SetUnavailable simulates a backend outage.
func (r *MemoryRegistry) SetUnavailable(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = down
}

// Register adds or replaces an instance. The TTL is ignored.
func (r *MemoryRegistry) Register(_ context.Context, serviceName string, instance Instance, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return ErrUnavailable
	}
	if _, ok := r.services[serviceName]; !ok {
		r.services[serviceName] = make(map[string]Instance)
	}
	r.services[serviceName][instance.InstanceID] = instance
	r.notify(serviceName)
	return nil
}

// Deregister removes an instance.
func (r *MemoryRegistry) Deregister(_ context.Context, serviceName string, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return ErrUnavailable
	}
	instances, ok := r.services[serviceName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, serviceName)
	}
	delete(instances, instanceID)
	r.notify(serviceName)
	return nil
}

// Discover returns the instances of a service ordered by instance ID.
func (r *MemoryRegistry) Discover(_ context.Context, serviceName string) ([]Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unavailable {
		return nil, ErrUnavailable
	}
	instances, ok := r.services[serviceName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, serviceName)
	}
	out := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out, nil
}

// Watch notifies on every registration change of serviceName.
func (r *MemoryRegistry) Watch(ctx context.Context, serviceName string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.watchers[serviceName]
		for i, w := range list {
			if w == ch {
				r.watchers[serviceName] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// notify must be called with mu held.
func (r *MemoryRegistry) notify(serviceName string) {
	for _, ch := range r.watchers[serviceName] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
