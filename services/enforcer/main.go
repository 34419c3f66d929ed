package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "enforcer",
	Short:   "Enforcer - subscription and plan-limit enforcement for the adboard platform",
	Long:    `Enforcer runs the periodic sweeps that expire subscriptions, restrict and restore tenant access, and remediate plan-limit overages.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(enforceLimitsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Enforcer %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
