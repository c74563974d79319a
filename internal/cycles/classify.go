package cycles

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tinovyatkin/serpen/internal/graph"
	"github.com/tinovyatkin/serpen/internal/pysrc"
)

// CycleType classifies an import cycle.
type CycleType int

const (
	// FunctionLevel marks a cycle whose every cross-module name use occurs
	// inside function bodies; deferring the cyclic imports resolves it.
	FunctionLevel CycleType = iota
	// ModuleLevelUnresolvable marks a cycle with a module-level evaluation
	// dependency, which no static reordering can satisfy.
	ModuleLevelUnresolvable
)

func (t CycleType) String() string {
	switch t {
	case FunctionLevel:
		return "function-level"
	case ModuleLevelUnresolvable:
		return "module-level unresolvable"
	default:
		return "unknown"
	}
}

// FlaggedImport names one module-level import statement that must be treated
// as deferred because it participates in a resolvable cycle.
type FlaggedImport struct {
	ModuleID int
	Ref      pysrc.ImportRef
}

// Offender is one module-level statement that evaluates a name from another
// cycle member, making the cycle unresolvable.
type Offender struct {
	ModuleName string
	ModulePath string
	Line       int
	Statement  string
}

// Group is one strongly connected component of size greater than one.
type Group struct {
	// IDs lists member module ids in lexical path order; for resolvable
	// groups this is also the internal emission order.
	IDs  []int
	Type CycleType

	// Deferred lists the module-level imports to convert for FunctionLevel
	// groups.
	Deferred []FlaggedImport

	// Offenders lists the exact offending statements for unresolvable
	// groups.
	Offenders []Offender
}

// Analysis is the cycle analyzer's output.
type Analysis struct {
	Resolved   []*Group
	Unresolved []*Group

	// groupOf maps a module id to its group, nil when acyclic.
	groupOf map[int]*Group
}

// GroupOf returns the cycle group containing the module, or nil.
func (a *Analysis) GroupOf(id int) *Group {
	return a.groupOf[id]
}

// HasUnresolvable reports whether any cycle blocks bundling.
func (a *Analysis) HasUnresolvable() bool {
	return len(a.Unresolved) > 0
}

// UnresolvableCycleError aborts bundling when any cycle has a module-level
// evaluation dependency. It enumerates every unresolvable cycle with its
// exact offending statements; no partial bundle is produced.
type UnresolvableCycleError struct {
	Groups []*Group
	// Names resolves module ids to dotted names for the message.
	Names func(id int) string
}

func (e *UnresolvableCycleError) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "unresolvable circular import%s:", plural(len(e.Groups)))

	for _, group := range e.Groups {
		names := make([]string, len(group.IDs))
		for i, id := range group.IDs {
			names[i] = e.Names(id)
		}

		fmt.Fprintf(&sb, "\n  cycle [%s] (%s)", strings.Join(names, " -> "), group.Type)

		for _, off := range group.Offenders {
			fmt.Fprintf(&sb, "\n    %s:%d: %s", off.ModuleName, off.Line, firstLine(off.Statement))
		}
	}

	return sb.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}

	return "s"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}

// Analyze finds all import cycles and classifies each one.
func Analyze(g *graph.Graph) *Analysis {
	analysis := &Analysis{groupOf: make(map[int]*Group)}

	for _, component := range tarjan(g) {
		if len(component) < 2 {
			continue
		}

		group := classify(g, component)
		for _, id := range group.IDs {
			analysis.groupOf[id] = group
		}

		if group.Type == FunctionLevel {
			analysis.Resolved = append(analysis.Resolved, group)
		} else {
			analysis.Unresolved = append(analysis.Unresolved, group)
		}
	}

	sortGroups(g, analysis.Resolved)
	sortGroups(g, analysis.Unresolved)

	return analysis
}

// sortGroups orders groups by their first member's path so diagnostics and
// emission are stable across runs.
func sortGroups(g *graph.Graph, groups []*Group) {
	sort.Slice(groups, func(i, j int) bool {
		return g.Node(groups[i].IDs[0]).Module.Path < g.Node(groups[j].IDs[0]).Module.Path
	})
}

// classify inspects every module-level statement of the component's members
// for name uses that reach back into the component. Import statements are
// exempt: they are deleted or deferred by the rewriter. Anything else that
// evaluates a cycle member's symbol at module top level is a genuine temporal
// paradox.
func classify(g *graph.Graph, component []int) *Group {
	members := make(map[int]bool, len(component))
	for _, id := range component {
		members[id] = true
	}

	group := &Group{IDs: append([]int(nil), component...)}

	// Internal emission order: deterministic lexical path order. Any order
	// is execution-safe for FunctionLevel groups, and unresolvable groups
	// never emit.
	sort.Slice(group.IDs, func(i, j int) bool {
		return g.Node(group.IDs[i]).Module.Path < g.Node(group.IDs[j]).Module.Path
	})

	for _, id := range group.IDs {
		node := g.Node(id)

		for stmtIdx := range node.Module.Stmts {
			stmt := &node.Module.Stmts[stmtIdx]

			switch stmt.Kind {
			case pysrc.StmtImport, pysrc.StmtImportFrom, pysrc.StmtFutureImport:
				continue
			}

			group.Offenders = append(group.Offenders, topLevelUses(node, stmt, members)...)
		}

		// Flag every module-level import that stays inside the component.
		for _, rr := range node.Refs {
			if rr.Ref.Deferred {
				continue
			}

			target, ok := g.ByPath(rr.Result.Path)
			if !ok || !members[target.ID] {
				continue
			}

			group.Deferred = append(group.Deferred, FlaggedImport{ModuleID: id, Ref: rr.Ref})
		}
	}

	if len(group.Offenders) > 0 {
		group.Type = ModuleLevelUnresolvable
	} else {
		group.Type = FunctionLevel
	}

	return group
}

// topLevelUses returns the statement as an offender for every module-level
// reference it makes to a symbol or submodule of another cycle member.
func topLevelUses(node *graph.Node, stmt *pysrc.Statement, members map[int]bool) []Offender {
	var offenders []Offender

	flag := func(line int) {
		offenders = append(offenders, Offender{
			ModuleName: node.Module.Name,
			ModulePath: node.Module.Path,
			Line:       line,
			Statement:  node.Module.StmtText(stmt),
		})
	}

	for _, ident := range stmt.Idents {
		if ident.InFunction || ident.Local {
			continue
		}

		binding, bound := node.Members[ident.Name]
		if bound && members[binding.Target] {
			flag(ident.Line)
			return offenders
		}
	}

	for _, attr := range stmt.Attrs {
		if attr.InFunction {
			continue
		}

		targetID, bound := node.ModuleRefs[attr.Object]
		if bound && members[targetID] {
			flag(attr.Line)
			return offenders
		}
	}

	return offenders
}
