package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/turret/internal/config"
)

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "disengage a running turret by signalling its pid file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			cfg, err := config.Load(dir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			pid, err := readPID(cfg.PIDFilePath())
			if err != nil {
				return fmt.Errorf("reading pid file: %w", err)
			}

			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				return fmt.Errorf("signalling pid %d: %w", pid, err)
			}

			fmt.Printf("sent SIGTERM to pid %d, waiting for disengage\n", pid)
			for i := 0; i < 50; i++ {
				if !processAlive(pid) {
					fmt.Println("disengaged")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("pid %d did not exit within 5s", pid)
		},
	}
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %s: %w", path, err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
