package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chunkvault/internal/config"
	"chunkvault/internal/server"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the chunkvault upload gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.ListenAddr)
			if err != nil {
				return err
			}
			opts := serverOptions(cfg, addr)
			if opts.WAV != nil {
				if err := opts.WAV.Validate(); err != nil {
					return fmt.Errorf("audio config: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			for _, path := range cfg.LoadedFrom {
				logger.Info("loaded config", "path", path)
			}
			return server.New(backend, opts, logger).ListenAndServe(ctx)
		},
	}
}
