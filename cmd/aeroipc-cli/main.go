package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	driverDir  string
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aeroipc-cli",
		Short: "Shared-memory messaging transport command line interface",
		Long: `aeroipc-cli drives a running media driver through its shared-memory
command-and-control file. It provides commands for publishing and subscribing
to streams, latency measurement, and driver introspection.`,
	}

	rootCmd.PersistentFlags().StringVar(&driverDir, "dir", "", "driver directory holding cnc.dat (defaults to the environment or temp dir)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file with defaults for dir, channel, and stream id")

	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newSubscribeCommand())
	rootCmd.AddCommand(newPingCommand())
	rootCmd.AddCommand(newPongCommand())
	rootCmd.AddCommand(newStatCommand())
	rootCmd.AddCommand(newErrorsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
