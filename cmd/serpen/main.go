// Package main provides the entry point for the serpen CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinovyatkin/serpen/cmd/serpen/commands"
	"github.com/tinovyatkin/serpen/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "serpen",
		Short: "Serpen - Python source bundler",
		Long: `Serpen merges a multi-module Python program into a single self-contained file.

Commands:
  bundle    Bundle an entry module and everything it imports into one file
  graph     Show the dependency graph and import cycles without bundling`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	// Add commands.
	rootCmd.AddCommand(commands.NewBundleCommand())
	rootCmd.AddCommand(commands.NewGraphCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "serpen %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
