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

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "fire up the bunker and engage (runs in the foreground)",
		Long:  "start unlocks the bunker, opens the agent/repeater/metrics sockets, and blocks until interrupted.\nRun it under a service manager, or with & and disown, for unattended operation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load(dir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("turret engaging in %s\n", dir)
			if err := daemon.Run(ctx, cfg); err != nil {
				return fmt.Errorf("engagement ended with error: %w", err)
			}
			fmt.Println("turret disengaged")
			return nil
		},
	}
}
