package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-fancycamera/internal/app"
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		port    string
		backend string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the camera service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if port != "" {
				cfg.Server.Port = port
			}
			if backend != "" {
				cfg.Backend.Kind = backend
			}

			a, err := app.New(cfg, opts.logger)
			if err != nil {
				return err
			}
			if err := a.Init(); err != nil {
				return err
			}
			defer func() {
				if err := a.Shutdown(); err != nil {
					opts.logger.Warn("shutdown", "error", err)
				}
			}()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			opts.logger.Info("fancycam serving", "port", cfg.Server.Port, "backend", cfg.Backend.Kind)
			return a.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides config)")
	cmd.Flags().StringVar(&backend, "backend", "", "camera backend: mock or gocv")
	return cmd
}
