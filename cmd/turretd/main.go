package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/turret/internal/config"
	"github.com/ehrlich-b/turret/internal/daemon"
	"github.com/ehrlich-b/turret/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:   "turretd",
		Short: "turret capability-gate daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			logLevel, _ := cmd.Flags().GetString("log-level")

			cfg, err := config.Load(dir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("turretd starting", "dir", dir)
			if err := daemon.Run(ctx, cfg); err != nil {
				return fmt.Errorf("engagement ended with error: %w", err)
			}
			logger.Info("turretd exited cleanly")
			return nil
		},
	}

	root.Flags().String("dir", defaultDir(), "bunker directory (bunker file, host identity, sockets, audit db)")
	root.Flags().String("log-level", "", "override the configured log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// defaultDir prefers $TURRET_DIR, then ~/.turret, and falls back to the
// current directory rather than failing startup.
func defaultDir() string {
	if dir := os.Getenv("TURRET_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home + "/.turret"
}
