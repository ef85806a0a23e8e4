// Command billing is a demo dependency: it serves bills and keeps itself
// registered in discovery while running.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mini-call/bootstrap"
	"mini-call/config"
	"mini-call/logger"
	"mini-call/server"
)

const defaultService = "billing"

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

	svr := server.NewServer(cfg.Server.Service,
		server.WithLogger(log),
		server.WithTTL(cfg.Discovery.TTL.Duration))
	h := newHandlers(svr.Instance, log)
	svr.Handle(h.routes()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
