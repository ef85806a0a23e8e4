package guard

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"mini-call/breaker"
	"mini-call/client"
	"mini-call/fallback"
	"mini-call/loadbalance"
	"mini-call/message"
	"mini-call/registry"
	"mini-call/transport"
)

func setupGuard(b *testing.B) *Guard {
	b.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	b.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	ctx := context.Background()
	mem := registry.NewMemoryRegistry()
	if err := mem.Register(ctx, "billing", registry.NewInstance(host, port, "", nil), 0); err != nil {
		b.Fatal(err)
	}
	resolver := registry.NewClient(mem)
	resolver.Track("billing")
	resolver.Refresh(ctx)

	breakers, err := breaker.NewRegistry(breaker.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	c := client.New(resolver, loadbalance.NewRoundRobinBalancer(), transport.NewHTTPTransport(""))
	return New("shopping", breakers, c, fallback.NewDispatcher(nil), nil)
}

func benchDesc() *message.CallDescriptor {
	return &message.CallDescriptor{
		Dependency:   "billing",
		Method:       http.MethodGet,
		PathTemplate: "/billing-api/payment",
		Timeout:      time.Second,
	}
}

// Serial calls from one goroutine.
func BenchmarkSerialCall(b *testing.B) {
	g := setupGuard(b)
	desc := benchDesc()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if res := g.Call(context.Background(), desc); !res.OK() {
			b.Fatal(res.Cause)
		}
	}
}

// Concurrent calls sharing one breaker.
func BenchmarkParallelCall(b *testing.B) {
	g := setupGuard(b)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		desc := benchDesc()
		for pb.Next() {
			if res := g.Call(context.Background(), desc); !res.OK() {
				b.Error(res.Cause)
				return
			}
		}
	})
}

// Calls refused by an open breaker never touch the network.
func BenchmarkOpenBreaker(b *testing.B) {
	breakers, err := breaker.NewRegistry(breaker.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	down := InvokerFunc(func(context.Context, *message.CallDescriptor) (*message.Response, error) {
		return nil, &client.TransportError{Dependency: "billing"}
	})
	g := New("shopping", breakers, down, fallback.NewDispatcher(nil), nil)
	desc := benchDesc()
	for i := 0; i < breaker.DefaultMinimumCalls; i++ {
		g.Call(context.Background(), desc)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		g.Call(context.Background(), desc)
	}
}
