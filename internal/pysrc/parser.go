package pysrc

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexaandru/go-sitter-forest/python"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// ParseError reports malformed source in a reachable module. It is fatal for
// the bundling run.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("parse error in %s at line %d, column %d: near %q", e.Path, e.Line, e.Column, e.Snippet)
	}

	return fmt.Sprintf("parse error in %s at line %d, column %d", e.Path, e.Line, e.Column)
}

// Parser turns Python source files into Modules. It is safe for concurrent
// use; tree-sitter parser instances are pooled per goroutine.
type Parser struct {
	language *sitter.Language
	pool     sync.Pool
}

// NewParser creates a Parser backed by the tree-sitter Python grammar.
func NewParser() *Parser {
	lang := sitter.NewLanguage(python.GetLanguage())

	return &Parser{
		language: lang,
		pool: sync.Pool{
			New: func() any {
				tsParser := sitter.NewParser()
				tsParser.SetLanguage(lang)

				return tsParser
			},
		},
	}
}

// errPoolType guards against a corrupted parser pool.
var errPoolType = fmt.Errorf("parser pool returned unexpected type")

// Parse parses one source file into a Module. The dotted name is assigned by
// the caller since it depends on which source root the file was found under.
func (p *Parser) Parse(ctx context.Context, path, name string, content []byte) (*Module, error) {
	tsParser, ok := p.pool.Get().(*sitter.Parser)
	if !ok {
		return nil, errPoolType
	}
	defer p.pool.Put(tsParser)

	tree, err := tsParser.ParseString(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, &ParseError{Path: path, Line: 1, Column: 1}
	}

	if root.HasError() {
		return nil, parseErrorAt(root, path, content)
	}

	module := &Module{
		Path:   path,
		Name:   name,
		Source: content,
	}

	var prevEnd uint

	for idx := range root.NamedChildCount() {
		child := root.NamedChild(idx)
		if child.Type() == "comment" {
			continue
		}

		stmt := buildStatement(child, content)
		stmt.LeadStart = leadingCommentStart(content, prevEnd, stmt.Span.Start)

		if stmt.Kind == StmtFutureImport {
			for _, ref := range stmt.Imports {
				module.Future = appendUnique(module.Future, ref.Name)
			}
		}

		module.Stmts = append(module.Stmts, stmt)
		prevEnd = stmt.Span.End
	}

	// Only the very first string expression is the module docstring.
	for i := range module.Stmts {
		if module.Stmts[i].Docstring && i > 0 {
			module.Stmts[i].Docstring = false
		}
	}

	return module, nil
}

// parseErrorAt locates the first error or missing node for diagnostics.
func parseErrorAt(root sitter.Node, path string, content []byte) *ParseError {
	stack := []sitter.Node{root}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if node.IsError() || node.IsMissing() {
			point := node.StartPoint()

			return &ParseError{
				Path:    path,
				Line:    int(point.Row) + 1,
				Column:  int(point.Column) + 1,
				Snippet: errorSnippet(node, content),
			}
		}

		for idx := node.ChildCount(); idx > 0; idx-- {
			stack = append(stack, node.Child(idx-1))
		}
	}

	return &ParseError{Path: path, Line: 1, Column: 1}
}

// errorSnippetMax bounds the quoted source excerpt in parse errors.
const errorSnippetMax = 40

func errorSnippet(node sitter.Node, content []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if start >= uint(len(content)) {
		return ""
	}

	if end > uint(len(content)) {
		end = uint(len(content))
	}

	if end-start > errorSnippetMax {
		end = start + errorSnippetMax
	}

	return string(content[start:end])
}

// leadingCommentStart finds the start of the comment block immediately above
// a statement, scanning the gap since the previous statement. Blank lines
// between the comment block and the statement break the attachment.
func leadingCommentStart(src []byte, gapStart, stmtStart uint) uint {
	if gapStart >= stmtStart || stmtStart > uint(len(src)) {
		return stmtStart
	}

	gap := src[gapStart:stmtStart]

	// Walk the gap line by line, remembering the start of the trailing run
	// of comment-only lines that touches the statement.
	lead := stmtStart
	lineStart := uint(0)
	attached := false

	for lineStart < uint(len(gap)) {
		lineEnd := lineStart
		for lineEnd < uint(len(gap)) && gap[lineEnd] != '\n' {
			lineEnd++
		}

		line := gap[lineStart:lineEnd]
		trimmed := trimSpace(line)

		switch {
		case len(trimmed) == 0:
			attached = false
			lead = stmtStart
		case trimmed[0] == '#':
			if !attached {
				lead = gapStart + lineStart + indexOf(line, '#')
				attached = true
			}
		default:
			attached = false
			lead = stmtStart
		}

		lineStart = lineEnd + 1
	}

	if !attached {
		return stmtStart
	}

	return lead
}

func trimSpace(line []byte) []byte {
	start := 0
	for start < len(line) && (line[start] == ' ' || line[start] == '\t' || line[start] == '\r') {
		start++
	}

	return line[start:]
}

func indexOf(line []byte, b byte) uint {
	for i := range line {
		if line[i] == b {
			return uint(i)
		}
	}

	return 0
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}

	return append(list, value)
}
