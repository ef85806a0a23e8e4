package breaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"mini-call/message"
)

func TestRegistryReturnsOneBreakerPerKey(t *testing.T) {
	r, err := NewRegistry(DefaultConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	got := make([]*Breaker, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.Get(billingKey)
		}(i)
	}
	wg.Wait()
	for _, b := range got {
		assert.Same(t, got[0], b)
	}

	other := r.Get(message.BreakerKey{Caller: "checkout", Dependency: "billing"})
	assert.NotSame(t, got[0], other)
}

func TestRegistryOverrides(t *testing.T) {
	strict := DefaultConfig()
	strict.MinimumCalls = 2
	strict.CoolDown = time.Minute

	r, err := NewRegistry(DefaultConfig(), WithOverride("billing", strict))
	require.NoError(t, err)

	assert.Equal(t, strict, r.Get(billingKey).Config())
	assert.Equal(t, DefaultConfig(), r.Get(message.BreakerKey{Caller: "shopping", Dependency: "catalog"}).Config())
}

func TestRegistryRejectsInvalidConfig(t *testing.T) {
	bad := DefaultConfig()
	bad.WindowSize = 0

	_, err := NewRegistry(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRegistry(DefaultConfig(), WithOverride("billing", bad))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRegistryStateAndSnapshot(t *testing.T) {
	clock := newFakeClock()
	r, err := NewRegistry(DefaultConfig(), WithClock(clock.Now))
	require.NoError(t, err)

	assert.Equal(t, StateClosed, r.State(billingKey))
	assert.Empty(t, r.Snapshot())

	trip(t, r.Get(billingKey))
	catalog := message.BreakerKey{Caller: "shopping", Dependency: "catalog"}
	require.NoError(t, pass(r.Get(catalog), OutcomeSuccess))

	assert.Equal(t, StateOpen, r.State(billingKey))
	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, billingKey, snap[0].Key)
	assert.Equal(t, StateOpen, snap[0].State)
	assert.Equal(t, catalog, snap[1].Key)
	assert.Equal(t, Counts{Total: 1}, snap[1].Counts)
}

func TestListenersFireOncePerTransition(t *testing.T) {
	clock := newFakeClock()
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(key message.BreakerKey, from, to State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, from.String()+">"+to.String())
	}
	r, err := NewRegistry(DefaultConfig(), WithClock(clock.Now), WithListener(record))
	require.NoError(t, err)
	r.OnStateChange(func(message.BreakerKey, State, State) { panic("bad listener") })

	b := r.Get(billingKey)
	trip(t, b)
	// Refusals while open are not transitions.
	_, err = b.Allow()
	require.ErrorIs(t, err, ErrOpen)

	clock.Advance(DefaultCoolDown)
	p, err := b.Allow()
	require.NoError(t, err)
	p.Done(OutcomeSuccess)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, seen)
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	b, _ := newTestBreaker(t, DefaultConfig(), WithMeterProvider(mp))
	trip(t, b)
	for i := 0; i < 3; i++ {
		_, err := b.Allow()
		require.ErrorIs(t, err, ErrOpen)
	}

	assert.Equal(t, int64(DefaultMinimumCalls), sumOf(t, reader, "breaker.calls"))
	assert.Equal(t, int64(3), sumOf(t, reader, "breaker.rejections"))
	assert.Equal(t, int64(1), sumOf(t, reader, "breaker.transitions"))
}
