// Package pysrc parses Python source files into a statement-level module
// model suitable for static inlining: every top-level statement keeps its
// byte span in the original source together with the extracted import,
// binding, and reference metadata the bundling pipeline needs.
package pysrc

// StmtKind identifies the closed set of top-level statement variants the
// bundler distinguishes. Anything not named here is StmtOther and is carried
// through verbatim.
type StmtKind int

const (
	// StmtImport is a plain "import a.b [as c]" statement.
	StmtImport StmtKind = iota
	// StmtImportFrom is a "from x import a [as b]" statement, including
	// relative and wildcard forms.
	StmtImportFrom
	// StmtFutureImport is a "from __future__ import ..." statement.
	StmtFutureImport
	// StmtFunctionDef is a top-level (possibly decorated, possibly async)
	// function definition.
	StmtFunctionDef
	// StmtClassDef is a top-level (possibly decorated) class definition.
	StmtClassDef
	// StmtAssign is a top-level assignment or annotated assignment.
	StmtAssign
	// StmtMainGuard is an `if __name__ == "__main__":` block.
	StmtMainGuard
	// StmtExpr is a bare expression statement (docstrings included).
	StmtExpr
	// StmtOther is any other compound or simple statement.
	StmtOther
)

// ImportKind distinguishes the syntactic form an import reference came from.
type ImportKind int

const (
	// ImportDirect is `import a.b` or `import a.b as c`.
	ImportDirect ImportKind = iota
	// ImportFrom is `from a.b import x` or `from a.b import x as y`.
	ImportFrom
)

// ImportRef is one imported target extracted from an import statement. A
// single statement may produce several refs (`import a, b` or
// `from m import x, y`).
type ImportRef struct {
	Kind ImportKind
	// Module is the dotted target module. Empty for `from . import x`.
	Module string
	// Level is the number of leading dots on a relative import.
	Level int
	// Name is the imported member for from-imports, "*" for wildcards,
	// empty for direct imports.
	Name string
	// Alias is the `as` binding, empty when absent.
	Alias string
	// Line is the 1-based source line of the statement.
	Line int
	// Deferred marks a ref that already lives inside a function body rather
	// than at module level.
	Deferred bool
	// StmtSpan is the byte span of the import statement the ref came from.
	// Only set for deferred refs, where the rewriter must edit the statement
	// in place inside its enclosing definition.
	StmtSpan Span
}

// BoundName returns the name this ref binds in the importing module's
// namespace, or empty for wildcard imports.
func (r ImportRef) BoundName() string {
	if r.Alias != "" {
		return r.Alias
	}

	switch r.Kind {
	case ImportFrom:
		if r.Name == "*" {
			return ""
		}

		return r.Name
	default:
		// `import a.b` binds the root package name `a`.
		for i := range len(r.Module) {
			if r.Module[i] == '.' {
				return r.Module[:i]
			}
		}

		return r.Module
	}
}

// Span is a half-open byte range [Start, End) into a module's source.
type Span struct {
	Start uint
	End   uint
}

// Ident is one identifier occurrence inside a statement, excluding attribute
// names, keyword-argument names, and import targets.
type Ident struct {
	Name string
	Span Span
	// InFunction reports whether the occurrence is inside a function, method,
	// or lambda body rather than evaluated at module load.
	InFunction bool
	// Local reports whether the name is bound locally (parameter or
	// assignment target) within the enclosing function and therefore shadows
	// any module-level symbol of the same name.
	Local bool
	Line  int
}

// AttrRef is a dotted reference whose object part is a plain identifier
// chain, e.g. `helpers.greet` or `pkg.util.clamp`. The span covers the whole
// `object.attr` expression so it can be replaced as a unit.
type AttrRef struct {
	// Object is the dotted object path ("helpers", "pkg.util").
	Object string
	// Attr is the final attribute name.
	Attr       string
	Span       Span
	InFunction bool
	Line       int
}

// StringEntry is one literal string element of an `__all__` list, with the
// span of the full string token (quotes included).
type StringEntry struct {
	Value string
	Span  Span
}

// Statement is one top-level statement of a parsed module.
type Statement struct {
	Kind StmtKind
	// Span covers the statement itself, leading trivia excluded.
	Span Span
	// LeadStart is the byte offset where the statement's leading comment
	// block begins; equal to Span.Start when there is none.
	LeadStart uint
	Line      int

	// Binds lists the top-level names this statement binds (function and
	// class names, assignment targets). Import bindings are tracked through
	// Imports instead.
	Binds []string

	Imports []ImportRef
	Idents  []Ident
	Attrs   []AttrRef

	// AnnSpans are annotation clause spans eligible for type-hint stripping.
	AnnSpans []Span

	// AllEntries holds the literal string elements when this statement
	// assigns `__all__`. AllDynamic marks a non-literal `__all__` value.
	AllEntries []StringEntry
	AllDynamic bool

	// DynamicLookup marks use of eval/exec/globals/locals/vars/__import__
	// anywhere inside the statement.
	DynamicLookup bool

	// GetattrObjects lists plain-identifier first arguments of getattr calls
	// inside the statement, used to reject dynamic access to inlined modules.
	GetattrObjects []string

	// Docstring marks a leading string expression statement.
	Docstring bool
}

// Module is one parsed first-party source file. Immutable once parsed.
type Module struct {
	// Path is the resolved absolute file path; it is the module's identity.
	Path string
	// Name is the dotted import name ("pkg.helpers").
	Name string
	// Source is the raw file content all spans index into.
	Source []byte

	Stmts []Statement

	// Future lists future-feature names imported by this module.
	Future []string
}

// Text returns the source text of the given span.
func (m *Module) Text(s Span) string {
	if s.End > uint(len(m.Source)) || s.Start > s.End {
		return ""
	}

	return string(m.Source[s.Start:s.End])
}

// StmtText returns the source text of a statement, leading trivia excluded.
func (m *Module) StmtText(st *Statement) string {
	return m.Text(st.Span)
}

// LeadingText returns the comment block preceding a statement, if any.
func (m *Module) LeadingText(st *Statement) string {
	if st.LeadStart >= st.Span.Start {
		return ""
	}

	return m.Text(Span{Start: st.LeadStart, End: st.Span.Start})
}

// TopLevelNames returns every name the module binds at top level, in first
// occurrence order. Import bindings are included since they are part of the
// module namespace.
func (m *Module) TopLevelNames() []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(m.Stmts))

	record := func(name string) {
		if name == "" || seen[name] {
			return
		}

		seen[name] = true
		names = append(names, name)
	}

	for i := range m.Stmts {
		for _, bound := range m.Stmts[i].Binds {
			record(bound)
		}

		for _, ref := range m.Stmts[i].Imports {
			record(ref.BoundName())
		}
	}

	return names
}

// DefinedNames returns the names bound by definitions and assignments only,
// import bindings excluded. These are the symbols that survive inlining.
func (m *Module) DefinedNames() []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(m.Stmts))

	for i := range m.Stmts {
		for _, bound := range m.Stmts[i].Binds {
			if bound != "" && !seen[bound] {
				seen[bound] = true
				names = append(names, bound)
			}
		}
	}

	return names
}

// AllList returns the literal `__all__` entries and whether `__all__` is
// assigned at all. The second result is false when no assignment exists.
func (m *Module) AllList() ([]StringEntry, bool) {
	for i := range m.Stmts {
		if len(m.Stmts[i].AllEntries) > 0 || m.Stmts[i].AllDynamic {
			return m.Stmts[i].AllEntries, true
		}
	}

	return nil, false
}

// HasDynamicAll reports whether `__all__` is assigned a non-literal value.
func (m *Module) HasDynamicAll() bool {
	for i := range m.Stmts {
		if m.Stmts[i].AllDynamic {
			return true
		}
	}

	return false
}

// UsesDynamicLookup reports whether any statement in the module performs
// fully dynamic name resolution.
func (m *Module) UsesDynamicLookup() bool {
	for i := range m.Stmts {
		if m.Stmts[i].DynamicLookup {
			return true
		}
	}

	return false
}
