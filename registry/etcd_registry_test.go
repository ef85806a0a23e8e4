package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// etcdEndpoints skips the test unless ETCD_ENDPOINTS points at a live cluster.
func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	v := os.Getenv("ETCD_ENDPOINTS")
	if v == "" {
		t.Skip("ETCD_ENDPOINTS not set")
	}
	return strings.Split(v, ",")
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	ctx := context.Background()
	reg, err := NewEtcdRegistry(etcdEndpoints(t), "/mini-call-test", nil)
	require.NoError(t, err)
	defer reg.Close()

	inst1 := NewInstance("127.0.0.1", 8001, "billing-1", nil)
	inst2 := NewInstance("127.0.0.1", 8002, "billing-2", map[string]string{"weight": "5"})

	require.NoError(t, reg.Register(ctx, "billing", inst1, 10*time.Second))
	require.NoError(t, reg.Register(ctx, "billing", inst2, 10*time.Second))

	instances, err := reg.Discover(ctx, "billing")
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	require.NoError(t, reg.Deregister(ctx, "billing", inst1.InstanceID))

	instances, err = reg.Discover(ctx, "billing")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, inst2.InstanceID, instances[0].InstanceID)
	w, _ := instances[0].Meta("weight")
	assert.Equal(t, "5", w)

	require.NoError(t, reg.Deregister(ctx, "billing", inst2.InstanceID))
}

func TestEtcdDiscoverUnknownIsEmpty(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), "/mini-call-test", nil)
	require.NoError(t, err)
	defer reg.Close()

	instances, err := reg.Discover(context.Background(), "nobody-registered-this")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestEtcdWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := NewEtcdRegistry(etcdEndpoints(t), "/mini-call-test", nil)
	require.NoError(t, err)
	defer reg.Close()

	ch, err := reg.Watch(ctx, "watched")
	require.NoError(t, err)

	inst := NewInstance("127.0.0.1", 8003, "watched-1", nil)
	require.NoError(t, reg.Register(ctx, "watched", inst, 10*time.Second))
	defer reg.Deregister(context.Background(), "watched", inst.InstanceID)

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a watch notification")
	}
}
