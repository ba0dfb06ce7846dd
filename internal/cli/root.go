// Package cli defines the lootbox command-line surface: initialising a
// project layout, starting the server, running an inline script against a
// running server, and printing its discovery documents.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jx-codes/lootbox/internal/version"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "lootbox",
	Short:         "Sandboxed RPC runtime for script-expressed tool calls",
	Version:       version.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from cmd/lootbox's main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to lootbox.yaml (defaults to ./lootbox.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "emit debug-level logs")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
}
