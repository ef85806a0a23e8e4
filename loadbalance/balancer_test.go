package loadbalance

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-call/registry"
)

var testInstances = registry.InstanceSet{
	registry.NewInstance("127.0.0.1", 8001, "a", map[string]string{WeightKey: "10"}),
	registry.NewInstance("127.0.0.1", 8002, "b", map[string]string{WeightKey: "5"}),
	registry.NewInstance("127.0.0.1", 8003, "c", map[string]string{WeightKey: "10"}),
}

func TestRoundRobinRotates(t *testing.T) {
	b := NewRoundRobinBalancer()

	// Pick 3 times, should cycle through all instances in order
	for i := 0; i < 3; i++ {
		inst, err := b.Pick("billing", testInstances)
		require.NoError(t, err)
		assert.Equal(t, testInstances[i].InstanceID, inst.InstanceID)
	}

	// Pick again, should wrap around to first
	inst, err := b.Pick("billing", testInstances)
	require.NoError(t, err)
	assert.Equal(t, "a", inst.InstanceID)
}

func TestRoundRobinEvenDistribution(t *testing.T) {
	b := NewRoundRobinBalancer()
	const n = 100
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		inst, err := b.Pick("billing", testInstances)
		require.NoError(t, err)
		counts[inst.InstanceID]++
	}
	k := len(testInstances)
	for _, inst := range testInstances {
		assert.InDelta(t, n/k, counts[inst.InstanceID], 1, "instance %s", inst.InstanceID)
	}
}

func TestRoundRobinCursorPerService(t *testing.T) {
	b := NewRoundRobinBalancer()

	first, _ := b.Pick("billing", testInstances)
	_, _ = b.Pick("billing", testInstances)
	other, _ := b.Pick("inventory", testInstances)

	assert.Equal(t, "a", first.InstanceID)
	assert.Equal(t, "a", other.InstanceID, "a new service starts at the first instance")
}

func TestRoundRobinConcurrent(t *testing.T) {
	b := NewRoundRobinBalancer()
	const goroutines, perG = 8, 300

	var mu sync.Mutex
	counts := map[string]int{}
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := map[string]int{}
			for i := 0; i < perG; i++ {
				inst, err := b.Pick("billing", testInstances)
				if err != nil {
					t.Error(err)
					return
				}
				local[inst.InstanceID]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, inst := range testInstances {
		assert.Equal(t, goroutines*perG/len(testInstances), counts[inst.InstanceID])
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := NewRoundRobinBalancer()
	_, err := b.Pick("billing", registry.InstanceSet{})
	assert.ErrorIs(t, err, ErrNoInstances)
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick("billing", testInstances)
		require.NoError(t, err)
		counts[inst.InstanceID]++
	}

	// Weight ratio is 10:5:10, so a and c should be ~2x of b
	ratio := float64(counts["a"]) / float64(counts["b"])
	assert.True(t, ratio > 1.5 && ratio < 2.5, fmt.Sprintf("weight ratio a/b = %.2f, expect ~2.0", ratio))
}

func TestWeightedRandomEmpty(t *testing.T) {
	_, err := (&WeightedRandomBalancer{}).Pick("billing", nil)
	assert.ErrorIs(t, err, ErrNoInstances)
}

func TestNew(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)
	assert.Equal(t, RoundRobinName, b.Name())

	b, err = New(WeightedRandomName)
	require.NoError(t, err)
	assert.Equal(t, WeightedRandomName, b.Name())

	_, err = New("consistent_hash")
	assert.Error(t, err)
}
