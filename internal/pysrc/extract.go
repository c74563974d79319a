package pysrc

import (
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// buildStatement converts one top-level CST node into a Statement, extracting
// kind, bindings, imports, and reference metadata.
func buildStatement(node sitter.Node, src []byte) Statement {
	stmt := Statement{
		Kind: StmtOther,
		Span: Span{Start: node.StartByte(), End: node.EndByte()},
		Line: int(node.StartPoint().Row) + 1,
	}
	stmt.LeadStart = stmt.Span.Start

	classify(node, src, &stmt)

	w := walker{src: src, stmt: &stmt}
	w.walk(node)

	return stmt
}

func classify(node sitter.Node, src []byte, stmt *Statement) {
	switch node.Type() {
	case "import_statement":
		stmt.Kind = StmtImport
		stmt.Imports = topLevelImports(node, src)

	case "import_from_statement":
		stmt.Kind = StmtImportFrom
		stmt.Imports = topLevelImports(node, src)

		if len(stmt.Imports) > 0 && stmt.Imports[0].Module == "__future__" {
			stmt.Kind = StmtFutureImport
		}

	case "future_import_statement":
		stmt.Kind = StmtFutureImport
		stmt.Imports = topLevelImports(node, src)

	case "function_definition":
		stmt.Kind = StmtFunctionDef
		recordDefName(node, src, stmt)

	case "class_definition":
		stmt.Kind = StmtClassDef
		recordDefName(node, src, stmt)

	case "decorated_definition":
		definition := node.ChildByFieldName("definition")
		if definition.IsNull() {
			return
		}

		if definition.Type() == "class_definition" {
			stmt.Kind = StmtClassDef
		} else {
			stmt.Kind = StmtFunctionDef
		}

		recordDefName(definition, src, stmt)

	case "expression_statement":
		classifyExpression(node, src, stmt)

	case "if_statement":
		if isMainGuard(node, src) {
			stmt.Kind = StmtMainGuard
		}
	}
}

func recordDefName(definition sitter.Node, src []byte, stmt *Statement) {
	if name := definition.ChildByFieldName("name"); !name.IsNull() {
		stmt.Binds = append(stmt.Binds, nodeText(name, src))
	}
}

func classifyExpression(node sitter.Node, src []byte, stmt *Statement) {
	if node.NamedChildCount() == 0 {
		stmt.Kind = StmtExpr
		return
	}

	inner := node.NamedChild(0)

	switch inner.Type() {
	case "assignment", "augmented_assignment":
		stmt.Kind = StmtAssign

		left := inner.ChildByFieldName("left")
		if !left.IsNull() {
			names := make(map[string]bool)
			collectTargetNames(left, src, names)

			for _, name := range sortedNames(names) {
				stmt.Binds = append(stmt.Binds, name)
			}

			if left.Type() == "identifier" && nodeText(left, src) == "__all__" {
				extractAllEntries(inner, src, stmt)
			}
		}

	case "string":
		stmt.Kind = StmtExpr
		stmt.Docstring = true

	default:
		stmt.Kind = StmtExpr
	}
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}

	// Insertion sort keeps this allocation-light for the tiny target sets.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}

	return names
}

// extractAllEntries pulls the literal string elements out of an
// `__all__ = [...]` assignment. Any non-literal shape marks the statement as
// dynamic, which blocks renaming and wildcard expansion for the module.
func extractAllEntries(assignment sitter.Node, src []byte, stmt *Statement) {
	right := assignment.ChildByFieldName("right")
	if right.IsNull() {
		stmt.AllDynamic = true
		return
	}

	if right.Type() != "list" && right.Type() != "tuple" {
		stmt.AllDynamic = true
		return
	}

	for idx := range right.NamedChildCount() {
		element := right.NamedChild(idx)
		if element.Type() != "string" {
			stmt.AllDynamic = true
			return
		}

		value, ok := literalStringValue(element, src)
		if !ok {
			stmt.AllDynamic = true
			return
		}

		stmt.AllEntries = append(stmt.AllEntries, StringEntry{
			Value: value,
			Span:  Span{Start: element.StartByte(), End: element.EndByte()},
		})
	}
}

// literalStringValue returns the content of a plain string node. F-strings
// and concatenations are rejected.
func literalStringValue(str sitter.Node, src []byte) (string, bool) {
	var (
		content string
		seen    bool
	)

	for idx := range str.NamedChildCount() {
		child := str.NamedChild(idx)

		switch child.Type() {
		case "string_content":
			if seen {
				return "", false
			}

			content = nodeText(child, src)
			seen = true
		case "string_start", "string_end":
		default:
			// Interpolation or escape machinery: not a plain literal.
			return "", false
		}
	}

	return content, seen
}

// isMainGuard reports whether an if statement is the conventional
// `if __name__ == "__main__":` entry guard.
func isMainGuard(node sitter.Node, src []byte) bool {
	condition := node.ChildByFieldName("condition")
	if condition.IsNull() {
		return false
	}

	text := nodeText(condition, src)
	text = strings.NewReplacer(" ", "", "\t", "", "(", "", ")", "", "'", `"`).Replace(text)

	return text == `__name__=="__main__"` || text == `"__main__"==__name__`
}

// topLevelImports extracts import refs from a module-level import statement
// and stamps them with the statement span.
func topLevelImports(node sitter.Node, src []byte) []ImportRef {
	refs := extractImports(node, src)
	span := Span{Start: node.StartByte(), End: node.EndByte()}

	for i := range refs {
		refs[i].StmtSpan = span
	}

	return refs
}

// extractImports decodes an import_statement, import_from_statement, or
// future_import_statement node into one ref per imported target.
func extractImports(node sitter.Node, src []byte) []ImportRef {
	line := int(node.StartPoint().Row) + 1

	switch node.Type() {
	case "import_statement":
		return extractDirectImports(node, src, line)
	case "import_from_statement":
		return extractFromImports(node, src, line)
	case "future_import_statement":
		return extractFutureImports(node, src, line)
	default:
		return nil
	}
}

func extractDirectImports(node sitter.Node, src []byte, line int) []ImportRef {
	var refs []ImportRef

	for idx := range node.NamedChildCount() {
		child := node.NamedChild(idx)

		switch child.Type() {
		case "dotted_name":
			refs = append(refs, ImportRef{
				Kind:   ImportDirect,
				Module: nodeText(child, src),
				Line:   line,
			})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")

			ref := ImportRef{Kind: ImportDirect, Line: line}
			if !name.IsNull() {
				ref.Module = nodeText(name, src)
			}

			if !alias.IsNull() {
				ref.Alias = nodeText(alias, src)
			}

			refs = append(refs, ref)
		}
	}

	return refs
}

func extractFromImports(node sitter.Node, src []byte, line int) []ImportRef {
	moduleName := node.ChildByFieldName("module_name")
	if moduleName.IsNull() {
		return nil
	}

	module, level := decodeFromTarget(moduleName, src)

	var refs []ImportRef

	for idx := range node.NamedChildCount() {
		child := node.NamedChild(idx)
		if child.StartByte() == moduleName.StartByte() {
			continue
		}

		switch child.Type() {
		case "dotted_name":
			refs = append(refs, ImportRef{
				Kind: ImportFrom, Module: module, Level: level,
				Name: nodeText(child, src), Line: line,
			})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")

			ref := ImportRef{Kind: ImportFrom, Module: module, Level: level, Line: line}
			if !name.IsNull() {
				ref.Name = nodeText(name, src)
			}

			if !alias.IsNull() {
				ref.Alias = nodeText(alias, src)
			}

			refs = append(refs, ref)
		case "wildcard_import":
			refs = append(refs, ImportRef{
				Kind: ImportFrom, Module: module, Level: level,
				Name: "*", Line: line,
			})
		}
	}

	return refs
}

// decodeFromTarget splits the module_name field of a from-import into its
// dotted path and relative level.
func decodeFromTarget(moduleName sitter.Node, src []byte) (string, int) {
	if moduleName.Type() == "dotted_name" {
		return nodeText(moduleName, src), 0
	}

	// relative_import: a run of dots optionally followed by a dotted name.
	var (
		module string
		level  int
	)

	text := nodeText(moduleName, src)
	for level < len(text) && text[level] == '.' {
		level++
	}

	module = text[level:]

	return module, level
}

func extractFutureImports(node sitter.Node, src []byte, line int) []ImportRef {
	var refs []ImportRef

	for idx := range node.NamedChildCount() {
		child := node.NamedChild(idx)

		switch child.Type() {
		case "dotted_name":
			refs = append(refs, ImportRef{
				Kind: ImportFrom, Module: "__future__",
				Name: nodeText(child, src), Line: line,
			})
		case "aliased_import":
			if name := child.ChildByFieldName("name"); !name.IsNull() {
				refs = append(refs, ImportRef{
					Kind: ImportFrom, Module: "__future__",
					Name: nodeText(name, src), Line: line,
				})
			}
		}
	}

	return refs
}
