package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeshift/internal/gateway/app"
	"codeshift/internal/gateway/config"
	"codeshift/internal/logging"
)

func main() {
	port := flag.String("port", "", "server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "text", "info").Error("failed to load config", logging.Error(err))
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = config.NormalizePort(*port)
	}
	log := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to initialize app", logging.Error(err))
		os.Exit(1)
	}

	go func() {
		if err := a.Start(); err != nil {
			log.Error("server error", logging.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", logging.Error(err))
		os.Exit(1)
	}

	log.Info("server exiting")
}
