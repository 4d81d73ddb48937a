package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codeshift/internal/gateway/app"
	"codeshift/internal/gateway/config"
	"codeshift/internal/logging"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the translation gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != "" {
			cfg.Port = config.NormalizePort(servePort)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- a.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", logging.Error(err))
			return err
		}
		log.Info("server exiting")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen address, e.g. 8080 or :8080 (overrides PORT)")
}
