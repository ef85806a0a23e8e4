// Package registry resolves logical service names to live network endpoints.
//
// Two roles live here:
//   - discovery backends (etcd, Consul, in-memory) that know which instances
//     exist for a service and optionally accept registrations;
//   - the Client, which keeps a local, atomically replaced snapshot of those
//     instances so that Resolve never waits on the network.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when the backend does not know the service name.
	ErrNotFound = errors.New("service not found")

	// ErrUnavailable is returned when the discovery backend cannot be reached
	// and nothing is cached for the service.
	ErrUnavailable = errors.New("discovery backend unavailable")
)

// Instance is one network endpoint of a service. It is a value type: the
// metadata map is copied on construction and on read, so holders of an
// Instance can never observe a later refresh.
type Instance struct {
	Host       string
	Port       int
	InstanceID string
	metadata   map[string]string
}

// NewInstance builds an instance. If id is empty, host:port is used.
func NewInstance(host string, port int, id string, metadata map[string]string) Instance {
	if id == "" {
		id = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return Instance{
		Host:       host,
		Port:       port,
		InstanceID: id,
		metadata:   copyMetadata(metadata),
	}
}

// Addr returns host:port.
func (i Instance) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// Metadata returns a copy of the instance metadata.
func (i Instance) Metadata() map[string]string {
	return copyMetadata(i.metadata)
}

// Meta returns one metadata value.
func (i Instance) Meta(key string) (string, bool) {
	v, ok := i.metadata[key]
	return v, ok
}

func (i Instance) String() string {
	return fmt.Sprintf("%s@%s", i.InstanceID, i.Addr())
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// InstanceSet is an ordered snapshot of the instances of one service.
type InstanceSet []Instance

// Clone returns a copy that shares nothing with s.
func (s InstanceSet) Clone() InstanceSet {
	out := make(InstanceSet, len(s))
	copy(out, s)
	return out
}

// record is the wire form stored in key-value backends.
type record struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	InstanceID string            `json:"instanceId"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func toRecord(i Instance) record {
	return record{Host: i.Host, Port: i.Port, InstanceID: i.InstanceID, Metadata: i.metadata}
}

func (r record) instance() Instance {
	return NewInstance(r.Host, r.Port, r.InstanceID, r.Metadata)
}

// Discovery lists the instances currently registered for a service.
//
// Implementations return ErrNotFound (possibly wrapped) for unknown names and
// ErrUnavailable (possibly wrapped) when the backend cannot be reached.
type Discovery interface {
	Discover(ctx context.Context, serviceName string) ([]Instance, error)
}

// Registrar is implemented by backends that accept self-registration.
type Registrar interface {
	Register(ctx context.Context, serviceName string, instance Instance, ttl time.Duration) error
	Deregister(ctx context.Context, serviceName string, instanceID string) error
}

// Watcher is implemented by backends that can push change notifications.
// The returned channel is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, serviceName string) (<-chan struct{}, error)
}

// Backend is a discovery backend that also accepts registrations.
type Backend interface {
	Discovery
	Registrar
}
