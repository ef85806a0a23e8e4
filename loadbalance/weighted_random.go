package loadbalance

import (
	"fmt"
	"math/rand"
	"strconv"

	"mini-call/registry"
)

// WeightKey is the metadata key holding an instance's relative weight.
const WeightKey = "weight"

// WeightedRandomBalancer picks instances at random, proportionally to their
// weight. Instances without a valid positive weight count as weight 1.
type WeightedRandomBalancer struct{}

func weightOf(inst registry.Instance) int {
	v, ok := inst.Meta(WeightKey)
	if !ok {
		return 1
	}
	w, err := strconv.Atoi(v)
	if err != nil || w <= 0 {
		return 1
	}
	return w
}

func (b *WeightedRandomBalancer) Pick(service string, instances registry.InstanceSet) (registry.Instance, error) {
	if len(instances) == 0 {
		return registry.Instance{}, fmt.Errorf("%w: %s", ErrNoInstances, service)
	}

	// Sum the weights
	totalWeight := 0
	for _, v := range instances {
		totalWeight += weightOf(v)
	}

	// Random number in [0, totalWeight)
	r := rand.Intn(totalWeight)
	for _, v := range instances {
		r -= weightOf(v)
		if r < 0 {
			return v, nil
		}
	}

	return instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return WeightedRandomName
}
