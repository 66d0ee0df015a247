package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Bastion - web application firewall rule evaluation engine",
	Long: `Bastion is an open-source web application firewall rule evaluation
engine. It evaluates HTTP requests against a declarative policy and
produces a single enforcement verdict per request.

Capabilities:
  - Custom match rules evaluated in priority order with short-circuiting
  - Keyed sliding-window rate limiting
  - Managed rule sets with exclusions, overrides and anomaly scoring
  - Detection mode for observing a policy without enforcing it
  - Structured event emission with optional SQLite retention`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
