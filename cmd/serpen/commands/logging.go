package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// commandLogger builds the logger for a command invocation from the root
// command's persistent --verbose and --quiet flags.
func commandLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")

	level := slog.LevelInfo

	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})

	return slog.New(handler)
}
