// Package graph builds the first-party module dependency graph: an arena of
// parsed modules indexed by dense integer id, with import edges discovered
// recursively from the entry module. Only modules reachable from the entry
// point are ever added.
package graph

import (
	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/resolve"
)

// ResolvedRef pairs one import reference with its classification result.
type ResolvedRef struct {
	Ref    pysrc.ImportRef
	Result resolve.Result
	// StmtIdx is the index of the statement carrying the ref.
	StmtIdx int
}

// MemberBinding records that a module binds a local name to a symbol defined
// in another first-party module, via a from-import.
type MemberBinding struct {
	// Target is the id of the module the symbol lives in.
	Target int
	// Symbol is the name within the target module.
	Symbol string
	Line   int
	// Deferred marks a binding created inside a function body.
	Deferred bool
	// ViaStar marks a binding synthesized by wildcard expansion.
	ViaStar bool
}

// Node is one first-party module in the graph.
type Node struct {
	ID        int
	Module    *pysrc.Module
	IsPackage bool

	// Refs lists every import reference of the module with its resolution,
	// in statement order.
	Refs []ResolvedRef

	// Members maps locally bound names to first-party symbols (from-imports,
	// wildcard expansions, submodule re-exports are in ModuleRefs instead).
	Members map[string]MemberBinding

	// ModuleRefs maps dotted reference prefixes to module ids: direct import
	// paths and aliases, plus from-imported submodules. References in source
	// look like `<prefix>.<attr>`.
	ModuleRefs map[string]int

	// DeferredModuleRefs marks ModuleRefs entries bound inside functions.
	DeferredModuleRefs map[string]bool
}

// Graph is the complete dependency graph of one bundling run.
type Graph struct {
	nodes []*Node
	paths *pathTable
	adj   *intGraph
	entry int
}

// Entry returns the entry module's id.
func (g *Graph) Entry() int {
	return g.entry
}

// Len returns the number of modules in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) *Node {
	return g.nodes[id]
}

// Nodes returns all nodes in id (discovery) order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// ByPath returns the node for a resolved file path.
func (g *Graph) ByPath(path string) (*Node, bool) {
	id, ok := g.paths.Lookup(path)
	if !ok || id >= len(g.nodes) || g.nodes[id] == nil {
		return nil, false
	}

	return g.nodes[id], true
}

// Deps returns the ids this module imports, in edge insertion order.
func (g *Graph) Deps(id int) []int {
	if id >= g.adj.len() {
		return nil
	}

	return g.adj.fwd[id]
}

// Importers returns the ids that import this module.
func (g *Graph) Importers(id int) []int {
	if id >= g.adj.len() {
		return nil
	}

	return g.adj.rev[id]
}

// TopoOrder returns a deterministic topological order of module ids. The
// boolean is false when the graph is cyclic; cyclic graphs must go through
// the cycle analyzer instead.
func (g *Graph) TopoOrder() ([]int, bool) {
	return g.adj.topoSort()
}
