package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "turret",
		Short: "operator control for the turret capability-gate daemon",
		Long:  "turret starts, stops, and inspects a turretd engagement, and provisions new agent/repeater principals.",
	}

	root.PersistentFlags().String("dir", defaultDir(), "bunker directory (bunker file, host identity, sockets, audit db, pid file)")

	root.AddCommand(
		startCmd(),
		stopCmd(),
		statusCmd(),
		keygenCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

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
