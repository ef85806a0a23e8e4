package loadbalance

import (
	"fmt"
	"sync"
	"sync/atomic"

	"mini-call/registry"
)

// RoundRobinBalancer distributes calls evenly across all instances in order.
//
// Each service has its own cursor, so traffic to one dependency does not
// shift the rotation of another. The cursor only moves forward and is taken
// modulo the size of whatever snapshot the caller passes in, which keeps the
// rotation correct across registry refreshes.
//
// Best for: stateless services where all instances have similar capacity.
type RoundRobinBalancer struct {
	cursors sync.Map // service name -> *atomic.Uint64
}

// NewRoundRobinBalancer creates a balancer with no cursors.
func NewRoundRobinBalancer() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

func (b *RoundRobinBalancer) cursor(service string) *atomic.Uint64 {
	if c, ok := b.cursors.Load(service); ok {
		return c.(*atomic.Uint64)
	}
	c, _ := b.cursors.LoadOrStore(service, new(atomic.Uint64))
	return c.(*atomic.Uint64)
}

// Pick selects the next instance in round-robin order. The first pick for a
// service returns the first instance.
func (b *RoundRobinBalancer) Pick(service string, instances registry.InstanceSet) (registry.Instance, error) {
	if len(instances) == 0 {
		return registry.Instance{}, fmt.Errorf("%w: %s", ErrNoInstances, service)
	}
	n := b.cursor(service).Add(1) - 1
	return instances[n%uint64(len(instances))], nil
}

func (b *RoundRobinBalancer) Name() string {
	return RoundRobinName
}
