package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// DefaultEtcdPrefix is the root under which services are stored.
const DefaultEtcdPrefix = "/mini-call"

// EtcdRegistry stores instances in etcd v3.
//
//	Key:   {prefix}/{ServiceName}/{InstanceID}
//	Value: JSON-encoded instance record
//
// Registration uses TTL leases: if the process dies, the lease expires and
// the entry disappears, so crashed instances do not linger.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	prefix string
	logger *zap.Logger
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, prefix string, logger *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return newEtcdRegistry(c, prefix, logger), nil
}

func newEtcdRegistry(c *clientv3.Client, prefix string, logger *zap.Logger) *EtcdRegistry {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdRegistry{client: c, prefix: prefix, logger: logger}
}

func (r *EtcdRegistry) servicePrefix(serviceName string) string {
	return r.prefix + "/" + serviceName + "/"
}

// Register stores an instance under a lease of the given TTL and keeps the
// lease alive until ctx is cancelled or the instance is deregistered.
//
// The lease ID stays local to this call; several servers may share one
// EtcdRegistry.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, instance Instance, ttl time.Duration) error {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	lease, err := r.client.Grant(ctx, seconds)
	if err != nil {
		return fmt.Errorf("%w: grant lease: %v", ErrUnavailable, err)
	}

	val, err := json.Marshal(toRecord(instance))
	if err != nil {
		return err
	}

	key := r.servicePrefix(serviceName) + instance.InstanceID
	if _, err = r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrUnavailable, key, err)
	}

	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return fmt.Errorf("%w: keepalive: %v", ErrUnavailable, err)
	}

	// Drain keepalive responses so the channel never fills up.
	go func() {
		for range ch {
		}
		r.logger.Debug("etcd lease keepalive ended", zap.String("key", key))
	}()

	r.logger.Info("registered instance",
		zap.String("service", serviceName),
		zap.String("instance", instance.String()),
		zap.Duration("ttl", ttl))
	return nil
}

// Deregister removes an instance. Called during graceful shutdown before the
// listener is closed. The lease is revoked with the key, which also stops its
// keepalive.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, instanceID string) error {
	key := r.servicePrefix(serviceName) + instanceID
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	for _, kv := range resp.Kvs {
		if kv.Lease != 0 {
			if _, err := r.client.Revoke(ctx, clientv3.LeaseID(kv.Lease)); err != nil {
				r.logger.Warn("revoke lease failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return nil
}

// Discover returns every instance stored under the service prefix. etcd has no
// catalog of service names, so an empty prefix yields an empty list, never
// ErrNotFound.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, r.servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec record
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			r.logger.Warn("skipping malformed instance record", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, rec.instance())
	}
	return instances, nil
}

// Watch emits a notification whenever anything under the service prefix
// changes (registration, deregistration, lease expiry). Uses etcd's
// server-push watch instead of polling.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	watchChan := r.client.Watch(clientv3.WithRequireLeader(ctx), r.servicePrefix(serviceName), clientv3.WithPrefix())

	go func() {
		defer close(out)
		for resp := range watchChan {
			if err := resp.Err(); err != nil {
				r.logger.Warn("etcd watch error", zap.String("service", serviceName), zap.Error(err))
				return
			}
			select {
			case out <- struct{}{}:
			default: // a refresh is already pending
			}
		}
	}()
	return out, nil
}

// Close releases the etcd connection.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
