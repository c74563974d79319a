package graph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/resolve"
)

// Builder constructs the dependency graph from an entry module. Parsing of
// independent modules is parallelized; results are merged back in path-sorted
// order so node ids and edge order are deterministic.
type Builder struct {
	parser   *pysrc.Parser
	resolver *resolve.Resolver
	workers  int
	log      *slog.Logger
}

// NewBuilder creates a Builder. workers bounds concurrent parses; zero means
// GOMAXPROCS.
func NewBuilder(parser *pysrc.Parser, resolver *resolve.Resolver, workers int, logger *slog.Logger) *Builder {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Builder{parser: parser, resolver: resolver, workers: workers, log: logger}
}

// pending describes a discovered module awaiting parse.
type pending struct {
	path      string
	name      string
	isPackage bool
}

// Build parses every first-party module reachable from entryPath and returns
// the completed graph. It aborts on the first parse or resolution failure in
// any reachable module.
func (b *Builder) Build(ctx context.Context, entryPath string) (*Graph, error) {
	absEntry, err := filepath.Abs(entryPath)
	if err != nil {
		return nil, fmt.Errorf("resolve entry path: %w", err)
	}

	g := &Graph{paths: newPathTable(), adj: newIntGraph()}

	entry := pending{path: absEntry, name: entryModuleName(absEntry)}
	entry.isPackage = filepath.Base(absEntry) == "__init__.py"
	g.entry = g.paths.Intern(absEntry)
	g.adj.addNode(g.entry)
	g.nodes = append(g.nodes, nil)

	frontier := []pending{entry}

	for len(frontier) > 0 {
		parsed, parseErr := b.parseBatch(ctx, frontier)
		if parseErr != nil {
			return nil, parseErr
		}

		var next []pending

		for _, item := range parsed {
			discovered, integrateErr := b.integrate(g, item)
			if integrateErr != nil {
				return nil, integrateErr
			}

			next = append(next, discovered...)
		}

		frontier = next
	}

	if bindErr := b.computeBindings(g); bindErr != nil {
		return nil, bindErr
	}

	b.log.Debug("dependency graph complete", "modules", g.Len())

	return g, nil
}

// parsedModule pairs a parse result with its pending descriptor.
type parsedModule struct {
	pending
	module *pysrc.Module
}

// parseBatch parses one discovery frontier with bounded parallelism and
// returns the results sorted by path, so downstream integration order never
// depends on goroutine scheduling.
func (b *Builder) parseBatch(ctx context.Context, frontier []pending) ([]parsedModule, error) {
	sort.Slice(frontier, func(i, j int) bool { return frontier[i].path < frontier[j].path })

	results := make([]parsedModule, len(frontier))

	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.workers)

	for idx, item := range frontier {
		eg.Go(func() error {
			content, readErr := os.ReadFile(item.path)
			if readErr != nil {
				return fmt.Errorf("read module %s: %w", item.path, readErr)
			}

			module, parseErr := b.parser.Parse(egCtx, item.path, item.name, content)
			if parseErr != nil {
				return parseErr
			}

			mu.Lock()
			results[idx] = parsedModule{pending: item, module: module}
			mu.Unlock()

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// integrate adds one parsed module to the graph, resolving its imports and
// returning newly discovered modules. Runs sequentially in sorted order.
func (b *Builder) integrate(g *Graph, item parsedModule) ([]pending, error) {
	id := g.paths.Intern(item.path)
	g.adj.addNode(id)

	for len(g.nodes) <= id {
		g.nodes = append(g.nodes, nil)
	}

	node := &Node{
		ID:        id,
		Module:    item.module,
		IsPackage: item.isPackage,
	}
	g.nodes[id] = node

	from := resolve.Importer{Path: item.path, Name: item.name, IsPackage: item.isPackage}

	var discovered []pending

	for stmtIdx := range item.module.Stmts {
		stmt := &item.module.Stmts[stmtIdx]

		for _, ref := range stmt.Imports {
			if ref.Module == "__future__" {
				continue
			}

			result, resolveErr := b.resolver.Resolve(ref, from)
			if resolveErr != nil {
				return nil, resolveErr
			}

			node.Refs = append(node.Refs, ResolvedRef{Ref: ref, Result: result, StmtIdx: stmtIdx})

			if result.Class != resolve.FirstParty {
				continue
			}

			discovered = b.link(g, id, result, discovered)

			// A dotted first-party import also executes every ancestor
			// package, so they are reachable and must be inlined too.
			if ref.Level == 0 {
				discovered = b.linkAncestors(g, id, result.Name, discovered)
			}

			// A from-import member may itself be a submodule file.
			if ref.Kind == pysrc.ImportFrom && result.IsPackage && ref.Name != "" && ref.Name != "*" {
				if sub, ok := b.resolver.ResolveMember(result.Name, ref.Name); ok {
					discovered = b.link(g, id, sub, discovered)
				}
			}
		}
	}

	return discovered, nil
}

// link adds an edge from importer to the resolved module, discovering the
// target if it has not been seen before.
func (b *Builder) link(g *Graph, importer int, target resolve.Result, discovered []pending) []pending {
	_, seen := g.paths.Lookup(target.Path)
	targetID := g.paths.Intern(target.Path)
	g.adj.addNode(targetID)

	if importer != targetID {
		g.adj.addEdge(importer, targetID)
	}

	if !seen {
		for len(g.nodes) <= targetID {
			g.nodes = append(g.nodes, nil)
		}

		discovered = append(discovered, pending{
			path:      target.Path,
			name:      target.Name,
			isPackage: target.IsPackage,
		})
	}

	return discovered
}

// linkAncestors links every ancestor package of a dotted module name that
// resolves to a first-party package file.
func (b *Builder) linkAncestors(g *Graph, importer int, dotted string, discovered []pending) []pending {
	parts := strings.Split(dotted, ".")

	for i := 1; i < len(parts); i++ {
		ancestor := strings.Join(parts[:i], ".")
		ref := pysrc.ImportRef{Kind: pysrc.ImportDirect, Module: ancestor}

		result, err := b.resolver.Resolve(ref, resolve.Importer{})
		if err != nil || result.Class != resolve.FirstParty {
			continue
		}

		discovered = b.link(g, importer, result, discovered)
	}

	return discovered
}

// entryModuleName derives the dotted name of the entry module from its path.
func entryModuleName(path string) string {
	base := filepath.Base(path)
	if base == "__init__.py" {
		return filepath.Base(filepath.Dir(path))
	}

	return strings.TrimSuffix(base, ".py")
}
