package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonomatch/internal/app"
	"github.com/MrWong99/phonomatch/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var watchInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the recognition HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			// Metrics must be exported before the app creates its instruments.
			shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: app.Version})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}

			a, cfg, err := newApp(cmd, opts, app.WithConfigWatch(opts.configPath, watchInterval))
			if err != nil {
				return err
			}

			slog.Info("phonomatch starting",
				"config", opts.configPath,
				"listen_addr", cfg.Server.ListenAddr,
				"g2p", cfg.G2P.Provider.Name,
				"log_level", cfg.Server.LogLevel,
			)

			runErr := a.Run(ctx)
			if errors.Is(runErr, context.Canceled) {
				runErr = nil
			}

			slog.Info("shutdown signal received, stopping")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "err", err)
			}
			if err := shutdownOtel(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
			if runErr != nil {
				return runErr
			}
			slog.Info("goodbye")
			return nil
		},
	}
	cmd.Flags().DurationVar(&watchInterval, "watch-interval", 5*time.Second, "how often the config and intent files are checked for changes")
	return cmd
}
