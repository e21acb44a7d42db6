package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/bridge"
	"github.com/illmade-knight/go-vizbridge/pkg/config"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to load config: %v\n", err)
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to initialize logger: %v\n", err)
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := bridge.New(ctx, cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to initialize bridge")
				return err
			}
			if err := b.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start bridge")
				return err
			}

			<-ctx.Done()
			logger.Info().Msg("Shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := b.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("Bridge shutdown was not clean")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "vizbridge.yaml", "path to the YAML config file")
	return cmd
}
