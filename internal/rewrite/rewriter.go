// Package rewrite flattens the dependency graph into namespace-safe module
// fragments: it computes the bundling order, assigns collision-safe names,
// deletes first-party import statements, rewrites every reference site, and
// collects the hoisted external imports and future-feature declarations.
package rewrite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tinovyatkin/serpen/internal/cycles"
	"github.com/tinovyatkin/serpen/internal/graph"
	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/resolve"
)

// Options controls rewriting behavior; values come from the run config.
type Options struct {
	PreserveComments       bool
	PreserveTypeHints      bool
	PreserveModuleMetadata bool
}

// Fragment is one module's rewritten body, ready for emission.
type Fragment struct {
	ModuleID int
	Name     string
	Path     string
	// Blocks are the statement texts in original intra-module order, leading
	// trivia included when preserved. The emitter joins them.
	Blocks []string
}

// ExternalImport is one deduplicated stdlib or third-party import hoisted to
// the top of the bundle.
type ExternalImport struct {
	Kind   pysrc.ImportKind
	Module string
	// Name is set for from-imports; "*" marks a wildcard.
	Name  string
	Alias string
	Class resolve.Classification
}

// BoundName returns the name the import binds at bundle scope, or empty for
// wildcards.
func (e ExternalImport) BoundName() string {
	ref := pysrc.ImportRef{Kind: e.Kind, Module: e.Module, Name: e.Name, Alias: e.Alias}

	return ref.BoundName()
}

// Bare reports whether this is a plain `import x` with no alias, which is
// never trimmed since it may exist for side effects alone.
func (e ExternalImport) Bare() bool {
	return e.Kind == pysrc.ImportDirect && e.Alias == ""
}

// Result is the rewriter's output, consumed by the trimmer and emitter.
type Result struct {
	// Order is the bundling order of module ids, entry last.
	Order []int
	// Fragments follow Order.
	Fragments []Fragment
	// Externals is the deduplicated external import block, sorted by target
	// module then imported name.
	Externals []ExternalImport
	// Futures is the merged, sorted set of future-feature names.
	Futures []string
	// Symbols records every rename for diagnostics and trimming.
	Symbols *SymbolTable
	// DeferredImports echoes the cycle analyzer's flagged imports.
	DeferredImports []cycles.FlaggedImport
	// Opts echoes the options the fragments were produced under, so the
	// trimmer can mirror annotation stripping.
	Opts Options
}

// Rewrite produces the flattened program from the analyzed graph.
func Rewrite(g *graph.Graph, analysis *cycles.Analysis, opts Options) (*Result, error) {
	order := emissionOrder(g, analysis)
	externals := collectExternals(g, order)
	futures := collectFutures(g, order)

	reserved := make([]string, 0, len(externals))
	for _, ext := range externals {
		if bound := ext.BoundName(); bound != "" {
			reserved = append(reserved, bound)
		}
	}

	symbols := newSymbolTable(g, order, reserved)

	result := &Result{
		Order:     order,
		Externals: externals,
		Futures:   futures,
		Symbols:   symbols,
		Opts:      opts,
	}

	for _, group := range analysis.Resolved {
		result.DeferredImports = append(result.DeferredImports, group.Deferred...)
	}

	rw := &rewriter{g: g, symbols: symbols, opts: opts, entry: g.Entry()}

	for _, id := range order {
		fragment, err := rw.rewriteModule(g.Node(id))
		if err != nil {
			return nil, err
		}

		result.Fragments = append(result.Fragments, fragment)
	}

	return result, nil
}

type rewriter struct {
	g       *graph.Graph
	symbols *SymbolTable
	opts    Options
	entry   int
}

// rewriteModule turns one module into an emission-ready fragment.
func (rw *rewriter) rewriteModule(node *graph.Node) (Fragment, error) {
	if err := rw.checkRenameSafety(node); err != nil {
		return Fragment{}, err
	}

	fragment := Fragment{
		ModuleID: node.ID,
		Name:     node.Module.Name,
		Path:     node.Module.Path,
	}

	isEntry := node.ID == rw.entry

	var guards []string

	for stmtIdx := range node.Module.Stmts {
		stmt := &node.Module.Stmts[stmtIdx]

		switch stmt.Kind {
		case pysrc.StmtImport, pysrc.StmtImportFrom, pysrc.StmtFutureImport:
			// First-party targets are inlined definitions now and external
			// targets live in the hoisted block; either way the statement is
			// a no-op here.
			continue
		}

		// An imported module's __name__ was never "__main__", so its guarded
		// block is dead code; only the entry's guards survive.
		if stmt.Kind == pysrc.StmtMainGuard && !isEntry {
			continue
		}

		block, err := rw.rewriteStatement(node, stmt)
		if err != nil {
			return Fragment{}, err
		}

		if isEntry && stmt.Kind == pysrc.StmtMainGuard {
			guards = append(guards, block)
			continue
		}

		fragment.Blocks = append(fragment.Blocks, block)
	}

	if rw.opts.PreserveModuleMetadata && !isEntry {
		fragment.Blocks = append(fragment.Blocks, rw.metadataBlocks(node)...)
	}

	// The entry module's guarded code always closes the bundle.
	fragment.Blocks = append(fragment.Blocks, guards...)

	return fragment, nil
}

// rewriteStatement applies renames, module-reference rewrites, deferred
// import rework, and annotation stripping to one statement.
func (rw *rewriter) rewriteStatement(node *graph.Node, stmt *pysrc.Statement) (string, error) {
	var edits []edit

	// Attribute chains on inlined module references collapse to the target
	// symbol's final name. Longest object prefix wins via edit ranking.
	for _, attr := range stmt.Attrs {
		targetID, ok := node.ModuleRefs[attr.Object]
		if !ok {
			continue
		}

		edits = append(edits, edit{
			span: attr.Span,
			text: rw.symbols.Final(targetID, attr.Attr),
			rank: 0,
		})
	}

	renames := 0

	for _, ident := range stmt.Idents {
		if ident.Local {
			continue
		}

		final, ok := rw.finalNameFor(node, ident.Name)
		if !ok {
			if err := rw.checkModuleObjectUse(node, stmt, ident); err != nil {
				return "", err
			}

			continue
		}

		if final == ident.Name {
			continue
		}

		renames++

		edits = append(edits, edit{span: ident.Span, text: final, rank: 1})
	}

	if renames > 0 && node.Module.UsesDynamicLookup() {
		return "", &SymbolCollisionError{
			Module: node.Module.Name,
			Symbol: "*",
			Reason: "module performs dynamic name lookup (eval/exec/globals/locals/vars/__import__)",
		}
	}

	if !rw.opts.PreserveTypeHints {
		for _, span := range stmt.AnnSpans {
			edits = append(edits, edit{span: span, text: "", rank: 0})
		}
	}

	nestedEdits, err := rw.rewriteNestedImports(node, stmt)
	if err != nil {
		return "", err
	}

	edits = append(edits, nestedEdits...)

	text := applyEdits(node.Module.StmtText(stmt), stmt.Span.Start, edits)

	if rw.opts.PreserveComments {
		if leading := node.Module.LeadingText(stmt); leading != "" {
			text = leading + text
		}
	}

	return text, nil
}

// finalNameFor resolves an identifier to its bundled name through the
// module's own definitions or its from-import bindings.
func (rw *rewriter) finalNameFor(node *graph.Node, name string) (string, bool) {
	if rw.symbols.Defines(node.ID, name) {
		return rw.symbols.Final(node.ID, name), true
	}

	if binding, ok := node.Members[name]; ok {
		return rw.symbols.Final(binding.Target, binding.Symbol), true
	}

	return "", false
}

// checkModuleObjectUse rejects identifiers that reference an inlined module
// as a first-class object, since the flattened program has no module object
// to offer.
func (rw *rewriter) checkModuleObjectUse(node *graph.Node, stmt *pysrc.Statement, ident pysrc.Ident) error {
	if _, isModule := node.ModuleRefs[ident.Name]; !isModule {
		return nil
	}

	// Attribute access rooted at this identifier is fine; the whole chain is
	// rewritten as a unit.
	for _, attr := range stmt.Attrs {
		if attr.Span.Start == ident.Span.Start {
			return nil
		}
	}

	return &SymbolCollisionError{
		Module: node.Module.Name,
		Symbol: ident.Name,
		Line:   ident.Line,
		Reason: "inlined module used as a first-class object",
	}
}

// checkRenameSafety rejects renames that would be observable through a
// stringified export list or defeat dynamic member access.
func (rw *rewriter) checkRenameSafety(node *graph.Node) error {
	if entries, ok := node.Module.AllList(); ok {
		for _, entry := range entries {
			if rw.symbols.Renamed(node.ID, entry.Value) {
				return &SymbolCollisionError{
					Module: node.Module.Name,
					Symbol: entry.Value,
					Reason: "renamed symbol is referenced by the module's __all__ export list",
				}
			}
		}
	}

	for stmtIdx := range node.Module.Stmts {
		stmt := &node.Module.Stmts[stmtIdx]

		for _, object := range stmt.GetattrObjects {
			if _, isModule := node.ModuleRefs[object]; isModule {
				return &SymbolCollisionError{
					Module: node.Module.Name,
					Symbol: object,
					Line:   stmt.Line,
					Reason: "dynamic attribute access on an inlined module",
				}
			}
		}
	}

	return nil
}

// rewriteNestedImports reworks import statements inside function bodies:
// first-party targets are dropped (their definitions are global now) while
// external targets stay in place. A statement left empty becomes `pass`.
func (rw *rewriter) rewriteNestedImports(node *graph.Node, stmt *pysrc.Statement) ([]edit, error) {
	if len(stmt.Imports) == 0 {
		return nil, nil
	}

	// Group refs by their enclosing import statement.
	groups := make(map[pysrc.Span][]pysrc.ImportRef)

	var spans []pysrc.Span

	for _, ref := range stmt.Imports {
		if !ref.Deferred {
			continue
		}

		if _, seen := groups[ref.StmtSpan]; !seen {
			spans = append(spans, ref.StmtSpan)
		}

		groups[ref.StmtSpan] = append(groups[ref.StmtSpan], ref)
	}

	var edits []edit

	for _, span := range spans {
		refs := groups[span]

		kept := make([]pysrc.ImportRef, 0, len(refs))

		for _, ref := range refs {
			if rw.isFirstParty(node, ref) {
				continue
			}

			kept = append(kept, ref)
		}

		if len(kept) == len(refs) {
			continue
		}

		edits = append(edits, edit{span: span, text: regenerateImport(kept), rank: 0})
	}

	return edits, nil
}

// isFirstParty reports whether a ref resolved to an inlined module.
func (rw *rewriter) isFirstParty(node *graph.Node, ref pysrc.ImportRef) bool {
	for _, rr := range node.Refs {
		if rr.Ref.Line == ref.Line && rr.Ref.Module == ref.Module && rr.Ref.Name == ref.Name {
			return rr.Result.Class == resolve.FirstParty
		}
	}

	return false
}

// regenerateImport renders the surviving refs of one import statement back
// to source. All refs of a statement share the same form and target module.
func regenerateImport(refs []pysrc.ImportRef) string {
	if len(refs) == 0 {
		return "pass"
	}

	if refs[0].Kind == pysrc.ImportDirect {
		items := make([]string, len(refs))
		for i, ref := range refs {
			items[i] = ref.Module
			if ref.Alias != "" {
				items[i] += " as " + ref.Alias
			}
		}

		return "import " + strings.Join(items, ", ")
	}

	items := make([]string, len(refs))
	for i, ref := range refs {
		items[i] = ref.Name
		if ref.Alias != "" {
			items[i] += " as " + ref.Alias
		}
	}

	target := strings.Repeat(".", refs[0].Level) + refs[0].Module

	return "from " + target + " import " + strings.Join(items, ", ")
}

// metadataBlocks emits __module__ reassignments so reflection over inlined
// classes and functions still reports the original owning module.
func (rw *rewriter) metadataBlocks(node *graph.Node) []string {
	var lines []string

	for stmtIdx := range node.Module.Stmts {
		stmt := &node.Module.Stmts[stmtIdx]
		if stmt.Kind != pysrc.StmtFunctionDef && stmt.Kind != pysrc.StmtClassDef {
			continue
		}

		for _, name := range stmt.Binds {
			final := rw.symbols.Final(node.ID, name)
			lines = append(lines, fmt.Sprintf("%s.__module__ = %q", final, node.Module.Name))
		}
	}

	return lines
}

// collectExternals gathers every module-level stdlib and third-party import
// across the bundle into one deduplicated block, sorted by target module
// name then imported name then alias.
func collectExternals(g *graph.Graph, order []int) []ExternalImport {
	seen := make(map[string]bool)

	var externals []ExternalImport

	for _, id := range order {
		for _, rr := range g.Node(id).Refs {
			if rr.Result.Class == resolve.FirstParty || rr.Ref.Deferred {
				continue
			}

			ext := ExternalImport{
				Kind:   rr.Ref.Kind,
				Module: rr.Ref.Module,
				Name:   rr.Ref.Name,
				Alias:  rr.Ref.Alias,
				Class:  rr.Result.Class,
			}

			key := fmt.Sprintf("%d|%s|%s|%s", ext.Kind, ext.Module, ext.Name, ext.Alias)
			if seen[key] {
				continue
			}

			seen[key] = true

			externals = append(externals, ext)
		}
	}

	sort.Slice(externals, func(i, j int) bool {
		a, b := externals[i], externals[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}

		if a.Name != b.Name {
			return a.Name < b.Name
		}

		return a.Alias < b.Alias
	})

	return externals
}

// collectFutures merges future-feature names across all modules, sorted.
func collectFutures(g *graph.Graph, order []int) []string {
	seen := make(map[string]bool)

	var futures []string

	for _, id := range order {
		for _, feature := range g.Node(id).Module.Future {
			if !seen[feature] {
				seen[feature] = true

				futures = append(futures, feature)
			}
		}
	}

	sort.Strings(futures)

	return futures
}
