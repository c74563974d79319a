package pysrc

import (
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// dynamicLookupNames are builtins that defeat static name resolution. Any use
// inside a module makes renaming that module's symbols unsafe.
var dynamicLookupNames = map[string]bool{
	"eval":       true,
	"exec":       true,
	"globals":    true,
	"locals":     true,
	"vars":       true,
	"__import__": true,
}

// scope tracks names bound inside the enclosing function or class body.
// Identifiers matching a scope binding shadow module-level symbols and must
// not be rewritten.
type scope struct {
	names  map[string]bool
	parent *scope
}

func (s *scope) bound(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.names[name] {
			return true
		}
	}

	return false
}

// frame is one unit of pending traversal work.
type frame struct {
	node       sitter.Node
	inFunction bool
	sc         *scope
}

// walker accumulates reference metadata for a single top-level statement.
type walker struct {
	src  []byte
	stmt *Statement
}

// walk traverses the statement subtree with an explicit stack over the closed
// set of node variants the bundler understands, so traversal order is fully
// deterministic. Children are pushed in reverse so they are visited in source
// order.
func (w *walker) walk(root sitter.Node) {
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		stack = w.visit(top, stack)
	}
}

//nolint:funlen // one case per node variant; splitting would obscure the dispatch
func (w *walker) visit(f frame, stack []frame) []frame {
	node := f.node

	switch node.Type() {
	case "identifier":
		w.recordIdent(node, f)
		return stack

	case "attribute":
		if w.recordAttrChain(node, f) {
			return stack
		}
		// Dynamic object expression: walk the object, never the attribute
		// name, which is a field access and not a name reference.
		if object := node.ChildByFieldName("object"); !object.IsNull() {
			stack = append(stack, frame{node: object, inFunction: f.inFunction, sc: f.sc})
		}

		return stack

	case "keyword_argument":
		// Only the value is a reference; the keyword itself is not.
		if value := node.ChildByFieldName("value"); !value.IsNull() {
			stack = append(stack, frame{node: value, inFunction: f.inFunction, sc: f.sc})
		}

		return stack

	case "call":
		w.inspectCall(node)
		return w.pushChildren(node, f, stack)

	case "function_definition":
		return w.enterFunction(node, f, stack)

	case "lambda":
		inner := &scope{names: make(map[string]bool), parent: f.sc}
		if params := node.ChildByFieldName("parameters"); !params.IsNull() {
			collectParameterNames(params, w.src, inner.names)
		}

		if body := node.ChildByFieldName("body"); !body.IsNull() {
			stack = append(stack, frame{node: body, inFunction: true, sc: inner})
		}

		return stack

	case "class_definition":
		return w.enterClass(node, f, stack)

	case "typed_parameter", "typed_default_parameter":
		w.recordParamAnnotation(node)
		return w.pushChildren(node, f, stack)

	case "assignment":
		w.recordAssignAnnotation(node)
		return w.pushChildren(node, f, stack)

	case "import_statement", "import_from_statement", "future_import_statement":
		// Import targets are handled by extractImports; nothing inside an
		// import statement is an identifier reference.
		if f.inFunction {
			w.recordNestedImport(node)
		}

		return stack

	case "decorator":
		return w.pushChildren(node, f, stack)

	default:
		return w.pushChildren(node, f, stack)
	}
}

// pushChildren queues all named children in reverse order.
func (w *walker) pushChildren(node sitter.Node, f frame, stack []frame) []frame {
	count := node.NamedChildCount()
	for idx := count; idx > 0; idx-- {
		child := node.NamedChild(idx - 1)
		stack = append(stack, frame{node: child, inFunction: f.inFunction, sc: f.sc})
	}

	return stack
}

// enterFunction records the function name as a reference (it is a binding
// site eligible for renaming at top level), collects the function's local
// bindings, and walks decorators, defaults, and the body.
func (w *walker) enterFunction(node sitter.Node, f frame, stack []frame) []frame {
	if name := node.ChildByFieldName("name"); !name.IsNull() {
		w.recordIdent(name, f)
	}

	inner := &scope{names: make(map[string]bool), parent: f.sc}

	params := node.ChildByFieldName("parameters")
	if !params.IsNull() {
		collectParameterNames(params, w.src, inner.names)
	}

	body := node.ChildByFieldName("body")
	if !body.IsNull() {
		collectLocalBindings(body, w.src, inner.names)
		stack = append(stack, frame{node: body, inFunction: true, sc: inner})
	}

	if returnType := node.ChildByFieldName("return_type"); !returnType.IsNull() {
		w.recordReturnAnnotation(params, returnType)
		stack = append(stack, frame{node: returnType, inFunction: f.inFunction, sc: f.sc})
	}

	// Parameter defaults and annotations evaluate in the enclosing scope.
	if !params.IsNull() {
		stack = append(stack, frame{node: params, inFunction: f.inFunction, sc: f.sc})
	}

	return stack
}

// enterClass walks a class body. Class bodies execute at module level, so
// inFunction is not flipped, but class-level assignments shadow module
// symbols within the body.
func (w *walker) enterClass(node sitter.Node, f frame, stack []frame) []frame {
	if name := node.ChildByFieldName("name"); !name.IsNull() {
		w.recordIdent(name, f)
	}

	inner := &scope{names: make(map[string]bool), parent: f.sc}

	body := node.ChildByFieldName("body")
	if !body.IsNull() {
		collectLocalBindings(body, w.src, inner.names)
		stack = append(stack, frame{node: body, inFunction: f.inFunction, sc: inner})
	}

	// Base classes and keyword arguments evaluate in the enclosing scope.
	if superclasses := node.ChildByFieldName("superclasses"); !superclasses.IsNull() {
		stack = append(stack, frame{node: superclasses, inFunction: f.inFunction, sc: f.sc})
	}

	return stack
}

func (w *walker) recordIdent(node sitter.Node, f frame) {
	name := nodeText(node, w.src)
	if name == "" {
		return
	}

	w.stmt.Idents = append(w.stmt.Idents, Ident{
		Name:       name,
		Span:       Span{Start: node.StartByte(), End: node.EndByte()},
		InFunction: f.inFunction,
		Local:      f.sc.bound(name),
		Line:       int(node.StartPoint().Row) + 1,
	})
}

// recordAttrChain flattens a pure-identifier attribute chain such as
// `pkg.util.clamp`. It records the root identifier plus one AttrRef per
// prefix split so the rewriter can match module bindings of any dotted
// depth. Returns false when the chain contains non-identifier parts.
func (w *walker) recordAttrChain(node sitter.Node, f frame) bool {
	parts := flattenAttribute(node)
	if parts == nil {
		return false
	}

	root := parts[0]
	w.recordIdent(root, f)

	dotted := nodeText(root, w.src)
	for i := 1; i < len(parts); i++ {
		attr := nodeText(parts[i], w.src)
		w.stmt.Attrs = append(w.stmt.Attrs, AttrRef{
			Object:     dotted,
			Attr:       attr,
			Span:       Span{Start: root.StartByte(), End: parts[i].EndByte()},
			InFunction: f.inFunction,
			Line:       int(root.StartPoint().Row) + 1,
		})
		dotted = dotted + "." + attr
	}

	return true
}

// flattenAttribute returns the identifier nodes of an attribute chain in
// source order, or nil if any link is not a plain identifier.
func flattenAttribute(node sitter.Node) []sitter.Node {
	var parts []sitter.Node

	for node.Type() == "attribute" {
		attr := node.ChildByFieldName("attribute")
		if attr.IsNull() || attr.Type() != "identifier" {
			return nil
		}

		parts = append(parts, attr)

		node = node.ChildByFieldName("object")
		if node.IsNull() {
			return nil
		}
	}

	if node.Type() != "identifier" {
		return nil
	}

	parts = append(parts, node)

	// Collected leaf-first; reverse to source order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	return parts
}

func (w *walker) inspectCall(node sitter.Node) {
	function := node.ChildByFieldName("function")
	if function.IsNull() || function.Type() != "identifier" {
		return
	}

	name := nodeText(function, w.src)
	if dynamicLookupNames[name] {
		w.stmt.DynamicLookup = true
	}

	if name != "getattr" && name != "setattr" && name != "delattr" {
		return
	}

	args := node.ChildByFieldName("arguments")
	if args.IsNull() || args.NamedChildCount() == 0 {
		return
	}

	first := args.NamedChild(0)
	if first.Type() == "identifier" {
		w.stmt.GetattrObjects = append(w.stmt.GetattrObjects, nodeText(first, w.src))
	}
}

// recordNestedImport extracts import refs found inside a function body so the
// graph builder sees the edge and the rewriter can rework the statement. The
// refs carry the span of the whole import statement.
func (w *walker) recordNestedImport(node sitter.Node) {
	span := Span{Start: node.StartByte(), End: node.EndByte()}
	refs := extractImports(node, w.src)

	for i := range refs {
		refs[i].Deferred = true
		refs[i].StmtSpan = span
	}

	w.stmt.Imports = append(w.stmt.Imports, refs...)
}

// recordParamAnnotation records the `: T` clause span of a typed parameter.
func (w *walker) recordParamAnnotation(node sitter.Node) {
	typeNode := node.ChildByFieldName("type")
	if typeNode.IsNull() {
		return
	}

	var nameEnd uint

	switch node.Type() {
	case "typed_default_parameter":
		name := node.ChildByFieldName("name")
		if name.IsNull() {
			return
		}

		nameEnd = name.EndByte()
	default:
		if node.NamedChildCount() == 0 {
			return
		}

		nameEnd = node.NamedChild(0).EndByte()
	}

	w.stmt.AnnSpans = append(w.stmt.AnnSpans, Span{Start: nameEnd, End: typeNode.EndByte()})
}

// recordReturnAnnotation records the ` -> T` clause span.
func (w *walker) recordReturnAnnotation(params, returnType sitter.Node) {
	if params.IsNull() {
		return
	}

	w.stmt.AnnSpans = append(w.stmt.AnnSpans, Span{Start: params.EndByte(), End: returnType.EndByte()})
}

// recordAssignAnnotation records the `: T` clause of an annotated assignment
// that also carries a value. Bare declarations (`x: int`) are left intact
// since removing the annotation would leave no statement behind.
func (w *walker) recordAssignAnnotation(node sitter.Node) {
	typeNode := node.ChildByFieldName("type")
	if typeNode.IsNull() {
		return
	}

	if right := node.ChildByFieldName("right"); right.IsNull() {
		return
	}

	left := node.ChildByFieldName("left")
	if left.IsNull() {
		return
	}

	w.stmt.AnnSpans = append(w.stmt.AnnSpans, Span{Start: left.EndByte(), End: typeNode.EndByte()})
}

// collectParameterNames adds every parameter name of a parameters node to the
// given set.
func collectParameterNames(params sitter.Node, src []byte, into map[string]bool) {
	for idx := range params.NamedChildCount() {
		child := params.NamedChild(idx)

		switch child.Type() {
		case "identifier":
			into[nodeText(child, src)] = true
		case "typed_parameter":
			if child.NamedChildCount() > 0 && child.NamedChild(0).Type() == "identifier" {
				into[nodeText(child.NamedChild(0), src)] = true
			}
		case "default_parameter", "typed_default_parameter":
			if name := child.ChildByFieldName("name"); !name.IsNull() && name.Type() == "identifier" {
				into[nodeText(name, src)] = true
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if child.NamedChildCount() > 0 && child.NamedChild(0).Type() == "identifier" {
				into[nodeText(child.NamedChild(0), src)] = true
			}
		}
	}
}

// collectLocalBindings scans a function or class body for names bound by
// assignments, loop targets, with/except aliases, walrus expressions, and
// nested definitions. Names declared `global` are excluded since they refer
// to module scope. Nested function and class bodies are not descended into;
// their bindings belong to their own scopes.
func collectLocalBindings(body sitter.Node, src []byte, into map[string]bool) {
	globals := make(map[string]bool)
	stack := []sitter.Node{body}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node.Type() {
		case "function_definition", "class_definition":
			if name := node.ChildByFieldName("name"); !name.IsNull() {
				into[nodeText(name, src)] = true
			}

			continue

		case "lambda":
			continue

		case "global_statement":
			for idx := range node.NamedChildCount() {
				globals[nodeText(node.NamedChild(idx), src)] = true
			}

			continue

		case "assignment", "augmented_assignment":
			if left := node.ChildByFieldName("left"); !left.IsNull() {
				collectTargetNames(left, src, into)
			}

			if right := node.ChildByFieldName("right"); !right.IsNull() {
				stack = append(stack, right)
			}

			continue

		case "named_expression":
			if name := node.ChildByFieldName("name"); !name.IsNull() && name.Type() == "identifier" {
				into[nodeText(name, src)] = true
			}

			if value := node.ChildByFieldName("value"); !value.IsNull() {
				stack = append(stack, value)
			}

			continue

		case "for_statement":
			if left := node.ChildByFieldName("left"); !left.IsNull() {
				collectTargetNames(left, src, into)
			}

		case "as_pattern":
			if alias := node.ChildByFieldName("alias"); !alias.IsNull() {
				collectTargetNames(alias, src, into)
			}

		case "except_clause":
			// `except E as name:` binds name; the alias is the second named
			// child when present.
			if node.NamedChildCount() > 1 && node.NamedChild(1).Type() == "identifier" {
				into[nodeText(node.NamedChild(1), src)] = true
			}
		}

		for idx := node.NamedChildCount(); idx > 0; idx-- {
			stack = append(stack, node.NamedChild(idx-1))
		}
	}

	for name := range globals {
		delete(into, name)
	}
}

// collectTargetNames adds every identifier found in an assignment target
// pattern (plain names, tuple/list patterns, starred targets).
func collectTargetNames(target sitter.Node, src []byte, into map[string]bool) {
	stack := []sitter.Node{target}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node.Type() {
		case "identifier":
			into[nodeText(node, src)] = true
		case "attribute", "subscript":
			// `obj.field = x` and `seq[i] = x` bind nothing locally.
		default:
			for idx := node.NamedChildCount(); idx > 0; idx-- {
				stack = append(stack, node.NamedChild(idx-1))
			}
		}
	}
}

func nodeText(node sitter.Node, src []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if end > uint(len(src)) || start > end {
		return ""
	}

	return string(src[start:end])
}
