// Command shopping is a demo caller: its purchase endpoint pays through the
// billing service behind a circuit breaker.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mini-call/bootstrap"
	"mini-call/breaker"
	"mini-call/config"
	"mini-call/fallback"
	"mini-call/logger"
	"mini-call/message"
	"mini-call/server"
)

const (
	defaultService = "shopping"
	billingService = "billing"
	outOfService   = "Billing operations are out of service"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Server.Service == "" {
		cfg.Server.Service = defaultService
	}

	log, _, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	backend, err := bootstrap.NewBackend(cfg.Discovery, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	binding, err := billingBinding(billingService)
	if err != nil {
		return err
	}
	caller, err := bootstrap.NewCaller(cfg, cfg.Server.Service, backend, log, binding, billingService)
	if err != nil {
		return err
	}
	caller.Fallbacks.Register(caller.Guard.Key(billingService),
		fallback.Static(http.StatusInternalServerError, outOfService))
	caller.Breakers.OnStateChange(func(key message.BreakerKey, from, to breaker.State) {
		log.Info("billing breaker", zap.Stringer("breaker", key), zap.Stringer("from", from), zap.Stringer("to", to))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	caller.Start(ctx)

	h := &handlers{guard: caller.Guard, direct: caller.Client, binding: binding, logger: log}
	svr := server.NewServer(cfg.Server.Service,
		server.WithLogger(log),
		server.WithTTL(cfg.Discovery.TTL.Duration))
	svr.Handle(h.routes()...)

	if err := svr.Start(ctx, cfg.Server.Listen, cfg.Server.Advertise, backend); err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() { served <- svr.Wait() }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.String("instance", svr.Instance().InstanceID))
	return svr.Shutdown(cfg.Server.ShutdownTimeout.Duration)
}
