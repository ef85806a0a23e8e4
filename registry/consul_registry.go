package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

const (
	consulWatchTimeout  = 30 * time.Second
	consulRetryInterval = 15 * time.Second
)

// ConsulRegistry registers and discovers instances through a Consul agent.
//
// Instances carry a TTL check that a heartbeat goroutine keeps passing;
// discovery only returns instances whose checks pass.
type ConsulRegistry struct {
	client *consul.Client
	logger *zap.Logger

	mu         sync.Mutex
	heartbeats map[string]context.CancelFunc // instanceID -> stop heartbeat
}

// NewConsulRegistry connects to the Consul agent at address (host:port).
// An empty address uses the agent defaults (CONSUL_HTTP_ADDR or 127.0.0.1:8500).
func NewConsulRegistry(address string, logger *zap.Logger) (*ConsulRegistry, error) {
	cfg := consul.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := consul.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsulRegistry{
		client:     client,
		logger:     logger,
		heartbeats: make(map[string]context.CancelFunc),
	}, nil
}

func checkID(instanceID string) string {
	return "service:" + instanceID
}

// Register adds the instance to the local agent with a TTL check and starts a
// heartbeat that refreshes the check every ttl/2.
func (r *ConsulRegistry) Register(ctx context.Context, serviceName string, instance Instance, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	reg := &consul.AgentServiceRegistration{
		ID:      instance.InstanceID,
		Name:    serviceName,
		Address: instance.Host,
		Port:    instance.Port,
		Meta:    instance.Metadata(),
		Check: &consul.AgentServiceCheck{
			CheckID:                        checkID(instance.InstanceID),
			TTL:                            ttl.String(),
			DeregisterCriticalServiceAfter: (3 * ttl).String(),
		},
	}
	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		return fmt.Errorf("%w: register %s: %v", ErrUnavailable, instance.InstanceID, err)
	}
	if err := r.client.Agent().UpdateTTL(checkID(instance.InstanceID), "registered", consul.HealthPassing); err != nil {
		return fmt.Errorf("%w: pass check: %v", ErrUnavailable, err)
	}

	hbCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	if prev, ok := r.heartbeats[instance.InstanceID]; ok {
		prev()
	}
	r.heartbeats[instance.InstanceID] = cancel
	r.mu.Unlock()

	go r.heartbeat(hbCtx, instance.InstanceID, ttl/2)

	r.logger.Info("registered instance",
		zap.String("service", serviceName),
		zap.String("instance", instance.String()),
		zap.Duration("ttl", ttl))
	return nil
}

func (r *ConsulRegistry) heartbeat(ctx context.Context, instanceID string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.client.Agent().UpdateTTL(checkID(instanceID), "alive", consul.HealthPassing); err != nil {
				r.logger.Warn("consul heartbeat failed", zap.String("instance", instanceID), zap.Error(err))
			}
		}
	}
}

// Deregister stops the heartbeat and removes the instance from the agent.
func (r *ConsulRegistry) Deregister(ctx context.Context, serviceName string, instanceID string) error {
	r.mu.Lock()
	if cancel, ok := r.heartbeats[instanceID]; ok {
		cancel()
		delete(r.heartbeats, instanceID)
	}
	r.mu.Unlock()

	if err := r.client.Agent().ServiceDeregister(instanceID); err != nil {
		return fmt.Errorf("%w: deregister %s: %v", ErrUnavailable, instanceID, err)
	}
	return nil
}

// Discover lists passing instances. A name missing from the catalog yields
// ErrNotFound.
func (r *ConsulRegistry) Discover(ctx context.Context, serviceName string) ([]Instance, error) {
	q := (&consul.QueryOptions{}).WithContext(ctx)

	services, _, err := r.client.Catalog().Services(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, ok := services[serviceName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, serviceName)
	}

	entries, _, err := r.client.Health().Service(serviceName, "", true, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entriesToInstances(entries), nil
}

func entriesToInstances(entries []*consul.ServiceEntry) []Instance {
	instances := make([]Instance, 0, len(entries))
	for _, e := range entries {
		if e.Service == nil {
			continue
		}
		host := e.Service.Address
		if host == "" && e.Node != nil {
			// the agent leaves Address empty when the service uses the node address
			host = e.Node.Address
		}
		instances = append(instances, NewInstance(host, e.Service.Port, e.Service.ID, e.Service.Meta))
	}
	return instances
}

// Watch long-polls the health endpoint with blocking queries and emits a
// notification whenever the index moves.
func (r *ConsulRegistry) Watch(ctx context.Context, serviceName string) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		var lastIndex uint64
		for ctx.Err() == nil {
			q := (&consul.QueryOptions{WaitIndex: lastIndex, WaitTime: consulWatchTimeout}).WithContext(ctx)
			_, meta, err := r.client.Health().Service(serviceName, "", true, q)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Warn("consul watch failed", zap.String("service", serviceName), zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(consulRetryInterval):
				}
				continue
			}
			// Same index: the blocking query timed out without a change.
			if meta.LastIndex == lastIndex {
				continue
			}
			lastIndex = meta.LastIndex
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

// Close stops all heartbeats.
func (r *ConsulRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cancel := range r.heartbeats {
		cancel()
		delete(r.heartbeats, id)
	}
	return nil
}
