package bootstrap

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mini-call/config"
	"mini-call/message"
	"mini-call/server"
)

// Full chain over etcd: server registers → caller resolves → balancer →
// HTTP call → breaker; then deregistration empties the view.
func TestFullIntegrationWithEtcd(t *testing.T) {
	endpoints := os.Getenv("ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("ETCD_ENDPOINTS not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	cfg.Discovery.Endpoints = strings.Split(endpoints, ",")
	cfg.Discovery.Prefix = "/mini-call-it"

	backend, err := NewBackend(cfg.Discovery, zap.NewNop())
	require.NoError(t, err)
	defer backend.Close()

	svr := server.NewServer("billing-it")
	svr.Handle(server.Route{
		Name:    "PAYMENT",
		Method:  http.MethodGet,
		Pattern: "/billing-api/payment",
		HandlerFunc: func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "paid")
		},
	})
	require.NoError(t, svr.Start(ctx, "127.0.0.1:0", "", backend))

	caller, err := NewCaller(cfg, "shopping-it", backend, zap.NewNop(), nil, "billing-it")
	require.NoError(t, err)
	caller.Resolver.Refresh(ctx)

	desc := &message.CallDescriptor{Dependency: "billing-it", Method: http.MethodGet, PathTemplate: "/billing-api/payment"}
	res := caller.Guard.Call(ctx, desc)
	require.True(t, res.OK(), "cause: %v", res.Cause)
	assert.Equal(t, "paid", res.Response.Text())

	require.NoError(t, svr.Shutdown(3*time.Second))
	caller.Resolver.Refresh(ctx)

	set, err := caller.Resolver.Resolve("billing-it")
	require.NoError(t, err)
	assert.Empty(t, set)

	res = caller.Guard.Call(ctx, desc)
	assert.Equal(t, message.Degraded, res.Kind)
}
