// Package loadbalance picks one instance out of a resolved instance set for
// each call.
//
// Two strategies are implemented:
//   - RoundRobin:      default; rotates through every instance, one cursor per service
//   - WeightedRandom:  heterogeneous instances, weight taken from the "weight" metadata key
package loadbalance

import (
	"errors"
	"fmt"

	"mini-call/registry"
)

// ErrNoInstances is returned when the set to pick from is empty.
var ErrNoInstances = errors.New("no instances available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each remote call to select a target instance.
type Balancer interface {
	// Pick selects one instance of service from the available set.
	// Called on every call, must be goroutine-safe.
	Pick(service string, instances registry.InstanceSet) (registry.Instance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

const (
	RoundRobinName     = "round_robin"
	WeightedRandomName = "weighted_random"
)

// New returns the balancer registered under name. An empty name selects
// round robin.
func New(name string) (Balancer, error) {
	switch name {
	case "", RoundRobinName:
		return NewRoundRobinBalancer(), nil
	case WeightedRandomName:
		return &WeightedRandomBalancer{}, nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
