package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-fancycamera/internal/config"
	"github.com/teslashibe/go-fancycamera/internal/log"
)

const version = "0.1.0"

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	logLevel   string
	server     string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "fancycam",
		Short:         "Camera control service",
		Long:          "fancycam drives a webcam or a mock camera: orientation tracking, audio levels, recording profiles, photos and a WebRTC preview, served over HTTP.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = opts.logLevel
			}
			log.Init(cfg.LogLevel)
			opts.cfg = cfg
			opts.logger = log.L()
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8080", "URL of a running fancycam service")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newProfilesCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newPhotoCmd(opts))
	rootCmd.AddCommand(newRecordCmd(opts))
	rootCmd.AddCommand(newOrientCmd(opts))

	return rootCmd
}
