// Package trim removes hoisted external imports whose bound names are never
// referenced anywhere in the flattened program. Bare `import x` statements
// are exempt since they may exist for import-time side effects alone, and
// wildcard imports are exempt since their bindings are unknowable statically.
package trim

import (
	"github.com/tinovyatkin/serpen/internal/graph"
	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/rewrite"
)

// Externals filters the hoisted import block down to the imports the bundle
// actually uses, preserving the block's sorted order.
func Externals(g *graph.Graph, res *rewrite.Result) []rewrite.ExternalImport {
	used := usedNames(g, res)

	kept := make([]rewrite.ExternalImport, 0, len(res.Externals))

	for _, ext := range res.Externals {
		bound := ext.BoundName()
		if ext.Bare() || bound == "" || used[bound] {
			kept = append(kept, ext)
		}
	}

	return kept
}

// usedNames collects every name that survives into the emitted bundle text
// where an external binding could satisfy it.
func usedNames(g *graph.Graph, res *rewrite.Result) map[string]bool {
	used := make(map[string]bool)

	for _, id := range res.Order {
		node := g.Node(id)

		for stmtIdx := range node.Module.Stmts {
			stmt := &node.Module.Stmts[stmtIdx]

			switch stmt.Kind {
			case pysrc.StmtImport, pysrc.StmtImportFrom, pysrc.StmtFutureImport:
				continue
			}

			collectStatementUses(node, stmt, res, used)
		}
	}

	return used
}

func collectStatementUses(node *graph.Node, stmt *pysrc.Statement, res *rewrite.Result, used map[string]bool) {
	// Stripped annotation clauses never reach the bundle, so names occurring
	// only inside them are not uses.
	stripped := !res.Opts.PreserveTypeHints

	for _, ident := range stmt.Idents {
		if ident.Local {
			continue
		}

		if stripped && inAnnotation(stmt, ident.Span) {
			continue
		}

		// References to inlined modules never survive as identifiers; they
		// are either rewritten away as attribute chains or rejected earlier.
		if _, isModule := node.ModuleRefs[ident.Name]; isModule {
			continue
		}

		used[emittedName(node, ident.Name, res)] = true
	}

	// Rewritten attribute chains introduce the target symbol's final name,
	// which falls through to an external binding when the target module only
	// re-exported it.
	for _, attr := range stmt.Attrs {
		if stripped && inAnnotation(stmt, attr.Span) {
			continue
		}

		if targetID, ok := node.ModuleRefs[attr.Object]; ok {
			used[res.Symbols.Final(targetID, attr.Attr)] = true
		}
	}

	// Export lists and dynamic attribute lookups reference names as strings.
	for _, entry := range stmt.AllEntries {
		used[entry.Value] = true
	}

	for _, object := range stmt.GetattrObjects {
		used[object] = true
	}
}

// inAnnotation reports whether the span lies inside one of the statement's
// annotation clauses.
func inAnnotation(stmt *pysrc.Statement, span pysrc.Span) bool {
	for _, ann := range stmt.AnnSpans {
		if span.Start >= ann.Start && span.End <= ann.End {
			return true
		}
	}

	return false
}

// emittedName mirrors the rewriter's identifier resolution: names defined by
// the module or bound through its from-imports emit as their final bundled
// names, everything else passes through.
func emittedName(node *graph.Node, name string, res *rewrite.Result) string {
	if res.Symbols.Defines(node.ID, name) {
		return res.Symbols.Final(node.ID, name)
	}

	if binding, ok := node.Members[name]; ok {
		return res.Symbols.Final(binding.Target, binding.Symbol)
	}

	return name
}
