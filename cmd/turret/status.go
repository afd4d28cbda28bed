package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/turret/internal/config"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report whether turret is engaged",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			cfg, err := config.Load(dir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			pid, err := readPID(cfg.PIDFilePath())
			if err != nil {
				fmt.Println("cold (no pid file)")
				return nil
			}
			if !processAlive(pid) {
				fmt.Printf("cold (stale pid file, pid %d not running)\n", pid)
				return nil
			}

			fmt.Printf("engaged (pid %d)\n", pid)
			reportSocket("agent socket", cfg.AgentSocketPath())
			reportSocket("repeater socket", cfg.RepeaterSocketPath())
			reportSocket("metrics socket", cfg.MetricsSocketPath())
			return nil
		},
	}
}

func reportSocket(label, path string) {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		fmt.Printf("  %s: unreachable (%v)\n", label, err)
		return
	}
	conn.Close()
	fmt.Printf("  %s: listening at %s\n", label, path)
}
