// Package commands implements CLI command handlers for serpen.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tinovyatkin/serpen/internal/bundle"
	"github.com/tinovyatkin/serpen/internal/config"
	"github.com/tinovyatkin/serpen/internal/manifest"
)

// ErrNoEntryModule is returned when no entry module path is given.
var ErrNoEntryModule = errors.New("no entry module given; pass the path to the program's entry .py file")

// BundleCommand holds configuration and dependencies for the bundle command.
type BundleCommand struct {
	output        string
	configPath    string
	sourceDirs    []string
	requirements  string
	targetVersion string
	noComments    bool
	noTypeHints   bool
	noMetadata    bool
}

// NewBundleCommand creates the bundle command.
func NewBundleCommand() *cobra.Command {
	bc := &BundleCommand{}

	cmd := &cobra.Command{
		Use:   "bundle <entry.py>",
		Short: "Bundle a Python program into a single self-contained file",
		Long: "Bundle resolves every first-party import reachable from the entry module,\n" +
			"inlines the modules into one file in dependency order, and hoists the\n" +
			"remaining stdlib and third-party imports to the top.",
		Args: cobra.MaximumNArgs(1),
		RunE: bc.run,
	}

	cmd.Flags().StringVarP(&bc.output, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVarP(&bc.configPath, "config", "c", "", "Config file path (default: .serpen.{yaml,toml,json} in cwd)")
	cmd.Flags().StringSliceVarP(&bc.sourceDirs, "source-dir", "s", nil, "Source root directories (overrides config)")
	cmd.Flags().StringVar(&bc.requirements, "requirements", "", "Also write a requirements file for surviving third-party imports")
	cmd.Flags().StringVar(&bc.targetVersion, "target-version", "", "Target Python version for stdlib classification (e.g. 3.12)")
	cmd.Flags().BoolVar(&bc.noComments, "no-comments", false, "Drop comments from the bundled output")
	cmd.Flags().BoolVar(&bc.noTypeHints, "no-type-hints", false, "Strip type annotations from the bundled output")
	cmd.Flags().BoolVar(&bc.noMetadata, "no-module-metadata", false, "Skip __module__ metadata assignments for inlined definitions")

	return cmd
}

func (bc *BundleCommand) run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return ErrNoEntryModule
	}

	entryPath := args[0]

	cfg, err := bc.loadConfig()
	if err != nil {
		return err
	}

	log := commandLogger(cmd)

	out, err := bundle.Run(cmd.Context(), cfg, entryPath, log)
	if err != nil {
		return err
	}

	if err := bc.writeOutput(cmd.OutOrStdout(), out.Code); err != nil {
		return err
	}

	if bc.requirements != "" {
		if err := manifest.Write(bc.requirements, out.ThirdParty); err != nil {
			return err
		}
	}

	bc.summarize(log, out)

	return nil
}

// loadConfig loads the file/env configuration and applies flag overrides.
func (bc *BundleCommand) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(bc.configPath)
	if err != nil {
		return nil, err
	}

	if len(bc.sourceDirs) > 0 {
		cfg.SourceDirs = bc.sourceDirs
	}

	if bc.targetVersion != "" {
		cfg.TargetVersion = bc.targetVersion
	}

	if bc.noComments {
		cfg.PreserveComments = false
	}

	if bc.noTypeHints {
		cfg.PreserveTypeHints = false
	}

	if bc.noMetadata {
		cfg.PreserveModuleMetadata = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// writeOutput writes the bundle to the output path atomically, or to stdout
// when no path (or "-") is given.
func (bc *BundleCommand) writeOutput(stdout io.Writer, code []byte) error {
	if bc.output == "" || bc.output == "-" {
		_, err := stdout.Write(code)

		return err
	}

	dir := filepath.Dir(bc.output)

	tmp, err := os.CreateTemp(dir, ".serpen-*.py")
	if err != nil {
		return fmt.Errorf("create temp output in %s: %w", dir, err)
	}

	tmpName := tmp.Name()

	if _, err = tmp.Write(code); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("write bundle: %w", err)
	}

	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("close bundle: %w", err)
	}

	if err = os.Chmod(tmpName, 0o755); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("chmod bundle: %w", err)
	}

	if err = os.Rename(tmpName, bc.output); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("move bundle into place: %w", err)
	}

	return nil
}

func (bc *BundleCommand) summarize(log *slog.Logger, out *bundle.Output) {
	target := bc.output
	if target == "" || target == "-" {
		target = "stdout"
	}

	log.Info("bundle written",
		"entry", out.EntryName,
		"target", target,
		"size", humanize.Bytes(uint64(len(out.Code))),
		"modules", out.ModuleCount,
		"deferred_imports", out.DeferredImports,
		"trimmed_imports", out.TrimmedImports)
}
