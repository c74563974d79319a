package commands

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tinovyatkin/serpen/internal/bundle"
	"github.com/tinovyatkin/serpen/internal/config"
	"github.com/tinovyatkin/serpen/internal/cycles"
	"github.com/tinovyatkin/serpen/internal/graph"
)

// GraphCommand holds configuration for the graph analysis command.
type GraphCommand struct {
	configPath    string
	sourceDirs    []string
	targetVersion string
	noColor       bool
}

// NewGraphCommand creates the graph command. It builds and analyzes the
// dependency graph without producing a bundle, so it reports unresolvable
// cycles instead of failing on them.
func NewGraphCommand() *cobra.Command {
	gc := &GraphCommand{}

	cmd := &cobra.Command{
		Use:   "graph <entry.py>",
		Short: "Show the dependency graph and import cycles for an entry module",
		Args:  cobra.MaximumNArgs(1),
		RunE:  gc.run,
	}

	cmd.Flags().StringVarP(&gc.configPath, "config", "c", "", "Config file path (default: .serpen.{yaml,toml,json} in cwd)")
	cmd.Flags().StringSliceVarP(&gc.sourceDirs, "source-dir", "s", nil, "Source root directories (overrides config)")
	cmd.Flags().StringVar(&gc.targetVersion, "target-version", "", "Target Python version for stdlib classification (e.g. 3.12)")
	cmd.Flags().BoolVar(&gc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (gc *GraphCommand) run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return ErrNoEntryModule
	}

	cfg, err := config.LoadConfig(gc.configPath)
	if err != nil {
		return err
	}

	if len(gc.sourceDirs) > 0 {
		cfg.SourceDirs = gc.sourceDirs
	}

	if gc.targetVersion != "" {
		cfg.TargetVersion = gc.targetVersion
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if gc.noColor {
		color.NoColor = true
	}

	analysis, err := bundle.Analyze(cmd.Context(), cfg, args[0], commandLogger(cmd))
	if err != nil {
		return err
	}

	gc.renderModules(cmd, analysis.Graph)
	gc.renderCycles(cmd, analysis)

	if analysis.Cycles.HasUnresolvable() {
		return &cycles.UnresolvableCycleError{
			Groups: analysis.Cycles.Unresolved,
			Names: func(id int) string {
				return analysis.Graph.Node(id).Module.Name
			},
		}
	}

	return nil
}

func (gc *GraphCommand) renderModules(cmd *cobra.Command, g *graph.Graph) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Module", "File", "Size", "Imports", "Importers"})

	order, acyclic := g.TopoOrder()
	if !acyclic {
		order = order[:0]
		for _, node := range g.Nodes() {
			order = append(order, node.ID)
		}
	}

	for _, id := range order {
		node := g.Node(id)

		name := node.Module.Name
		if id == g.Entry() {
			name += " (entry)"
		}

		tw.AppendRow(table.Row{
			name,
			node.Module.Path,
			humanize.Bytes(uint64(len(node.Module.Source))),
			len(g.Deps(id)),
			len(g.Importers(id)),
		})
	}

	tw.Render()
}

func (gc *GraphCommand) renderCycles(cmd *cobra.Command, analysis *bundle.Analysis) {
	out := cmd.OutOrStdout()

	if len(analysis.Cycles.Resolved) == 0 && len(analysis.Cycles.Unresolved) == 0 {
		fmt.Fprintln(out, color.GreenString("No import cycles."))

		return
	}

	names := func(ids []int) string {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = analysis.Graph.Node(id).Module.Name
		}

		return strings.Join(parts, " -> ")
	}

	for _, group := range analysis.Cycles.Resolved {
		fmt.Fprintf(out, "%s cycle [%s]: %d import(s) deferred\n",
			color.YellowString("resolvable"), names(group.IDs), len(group.Deferred))
	}

	for _, group := range analysis.Cycles.Unresolved {
		fmt.Fprintf(out, "%s cycle [%s]\n", color.RedString("unresolvable"), names(group.IDs))

		for _, off := range group.Offenders {
			fmt.Fprintf(out, "  %s:%d: %s\n", off.ModuleName, off.Line, firstLine(off.Statement))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}
