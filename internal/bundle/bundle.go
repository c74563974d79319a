// Package bundle orchestrates the full pipeline: parse and resolve the
// module graph, analyze cycles, rewrite, trim, and emit the single-file
// program.
package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tinovyatkin/serpen/internal/config"
	"github.com/tinovyatkin/serpen/internal/cycles"
	"github.com/tinovyatkin/serpen/internal/emit"
	"github.com/tinovyatkin/serpen/internal/graph"
	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/resolve"
	"github.com/tinovyatkin/serpen/internal/rewrite"
	"github.com/tinovyatkin/serpen/internal/trim"
)

// Output is the result of a successful bundling run.
type Output struct {
	// Code is the complete bundled program.
	Code []byte
	// EntryName is the dotted name of the entry module.
	EntryName string
	// ModuleCount is the number of first-party modules inlined.
	ModuleCount int
	// Renamed maps original dotted symbol paths ("pkg.helpers.process") to
	// their final bundled names, for diagnostics.
	Renamed map[string]string
	// Externals is the trimmed hoisted import block.
	Externals []rewrite.ExternalImport
	// ThirdParty lists the distinct root names of surviving third-party
	// imports, sorted, for requirements manifests.
	ThirdParty []string
	// ResolvedCycles and DeferredImports summarize cycle handling.
	ResolvedCycles  int
	DeferredImports int
	// TrimmedImports counts external imports dropped as unused.
	TrimmedImports int
}

// Analysis bundles the graph and cycle results for analysis-only consumers.
type Analysis struct {
	Graph  *graph.Graph
	Cycles *cycles.Analysis
}

// Analyze builds and analyzes the dependency graph without bundling. Unlike
// Run it succeeds even in the presence of unresolvable cycles, so callers
// can report them.
func Analyze(ctx context.Context, cfg *config.Config, entryPath string, log *slog.Logger) (*Analysis, error) {
	g, err := buildGraph(ctx, cfg, entryPath, log)
	if err != nil {
		return nil, err
	}

	return &Analysis{Graph: g, Cycles: cycles.Analyze(g)}, nil
}

// Run executes the whole pipeline for one entry module.
func Run(ctx context.Context, cfg *config.Config, entryPath string, log *slog.Logger) (*Output, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	g, err := buildGraph(ctx, cfg, entryPath, log)
	if err != nil {
		return nil, err
	}

	log.Debug("dependency graph built", "modules", g.Len())

	analysis := cycles.Analyze(g)
	if analysis.HasUnresolvable() {
		return nil, &cycles.UnresolvableCycleError{
			Groups: analysis.Unresolved,
			Names: func(id int) string {
				return g.Node(id).Module.Name
			},
		}
	}

	for _, group := range analysis.Resolved {
		names := make([]string, len(group.IDs))
		for i, id := range group.IDs {
			names[i] = g.Node(id).Module.Name
		}

		log.Debug("resolvable cycle deferred",
			"members", strings.Join(names, " -> "),
			"imports", len(group.Deferred))
	}

	res, err := rewrite.Rewrite(g, analysis, rewrite.Options{
		PreserveComments:       cfg.PreserveComments,
		PreserveTypeHints:      cfg.PreserveTypeHints,
		PreserveModuleMetadata: cfg.PreserveModuleMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("rewriting modules: %w", err)
	}

	externals := trim.Externals(g, res)

	entryName := g.Node(g.Entry()).Module.Name

	out := &Output{
		Code:            emit.Bundle(res, externals, emit.Options{EntryName: entryName, Shebang: true}),
		EntryName:       entryName,
		ModuleCount:     g.Len(),
		Renamed:         collectRenames(g, res),
		Externals:       externals,
		ThirdParty:      thirdPartyRoots(externals),
		ResolvedCycles:  len(analysis.Resolved),
		DeferredImports: len(res.DeferredImports),
		TrimmedImports:  len(res.Externals) - len(externals),
	}

	log.Info("bundle assembled",
		"entry", out.EntryName,
		"modules", out.ModuleCount,
		"renamed", len(out.Renamed),
		"externals", len(out.Externals),
		"trimmed", out.TrimmedImports)

	return out, nil
}

func buildGraph(ctx context.Context, cfg *config.Config, entryPath string, log *slog.Logger) (*graph.Graph, error) {
	absEntry, err := filepath.Abs(entryPath)
	if err != nil {
		return nil, fmt.Errorf("resolve entry path: %w", err)
	}

	resolver, err := resolve.NewResolver(cfg, filepath.Dir(absEntry))
	if err != nil {
		return nil, err
	}

	builder := graph.NewBuilder(pysrc.NewParser(), resolver, cfg.Parse.Workers, log)

	g, err := builder.Build(ctx, absEntry)
	if err != nil {
		return nil, fmt.Errorf("building dependency graph: %w", err)
	}

	return g, nil
}

// collectRenames flattens the symbol table into dotted-path form.
func collectRenames(g *graph.Graph, res *rewrite.Result) map[string]string {
	renamed := make(map[string]string)

	for _, id := range res.Order {
		node := g.Node(id)
		for _, name := range node.Module.DefinedNames() {
			if res.Symbols.Renamed(id, name) {
				renamed[node.Module.Name+"."+name] = res.Symbols.Final(id, name)
			}
		}
	}

	return renamed
}

// thirdPartyRoots extracts the sorted distinct root package names of the
// surviving third-party imports.
func thirdPartyRoots(externals []rewrite.ExternalImport) []string {
	seen := make(map[string]bool)

	var roots []string

	for _, ext := range externals {
		if ext.Class != resolve.ThirdParty || ext.Module == "" {
			continue
		}

		root := ext.Module
		if i := strings.IndexByte(root, '.'); i >= 0 {
			root = root[:i]
		}

		if !seen[root] {
			seen[root] = true

			roots = append(roots, root)
		}
	}

	sort.Strings(roots)

	return roots
}
