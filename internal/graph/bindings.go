package graph

import (
	"github.com/tinovyatkin/serpen/internal/pysrc"
	"github.com/tinovyatkin/serpen/internal/resolve"
)

// computeBindings fills each node's Members and ModuleRefs maps from its
// resolved refs, expands wildcard imports, and chases re-export chains to the
// defining module. Runs after the whole graph is parsed since expansion and
// chasing need the target modules' symbol sets.
func (b *Builder) computeBindings(g *Graph) error {
	for _, node := range g.nodes {
		node.Members = make(map[string]MemberBinding)
		node.ModuleRefs = make(map[string]int)
		node.DeferredModuleRefs = make(map[string]bool)

		for _, rr := range node.Refs {
			if rr.Result.Class != resolve.FirstParty {
				continue
			}

			if err := b.bindRef(g, node, rr); err != nil {
				return err
			}
		}
	}

	chaseReExports(g)

	return nil
}

func (b *Builder) bindRef(g *Graph, node *Node, rr ResolvedRef) error {
	target, ok := g.ByPath(rr.Result.Path)
	if !ok {
		return nil
	}

	ref := rr.Ref

	switch ref.Kind {
	case pysrc.ImportDirect:
		prefix := ref.Alias
		if prefix == "" {
			prefix = ref.Module
		}

		node.ModuleRefs[prefix] = target.ID
		if ref.Deferred {
			node.DeferredModuleRefs[prefix] = true
		}

	case pysrc.ImportFrom:
		if ref.Name == "*" {
			return b.expandWildcard(node, target, ref)
		}

		bound := ref.BoundName()

		// The member may be a submodule file of the target package rather
		// than a symbol inside it.
		if rr.Result.IsPackage {
			if sub, found := b.resolver.ResolveMember(rr.Result.Name, ref.Name); found {
				if subNode, exists := g.ByPath(sub.Path); exists {
					node.ModuleRefs[bound] = subNode.ID
					if ref.Deferred {
						node.DeferredModuleRefs[bound] = true
					}

					return nil
				}
			}
		}

		node.Members[bound] = MemberBinding{
			Target:   target.ID,
			Symbol:   ref.Name,
			Line:     ref.Line,
			Deferred: ref.Deferred,
		}
	}

	return nil
}

// expandWildcard turns `from m import *` into one member binding per public
// symbol of the target: the literal __all__ list when present, otherwise
// every defined name not starting with an underscore. A non-literal __all__
// defeats static expansion and fails the run.
func (b *Builder) expandWildcard(node *Node, target *Node, ref pysrc.ImportRef) error {
	if target.Module.HasDynamicAll() {
		return &resolve.ResolutionError{
			Module:   target.Module.Name + ".* (dynamic __all__)",
			Importer: node.Module.Path,
			Line:     ref.Line,
		}
	}

	var names []string

	if entries, ok := target.Module.AllList(); ok {
		for _, entry := range entries {
			names = append(names, entry.Value)
		}
	} else {
		for _, name := range target.Module.DefinedNames() {
			if len(name) > 0 && name[0] != '_' {
				names = append(names, name)
			}
		}
	}

	for _, name := range names {
		if _, taken := node.Members[name]; taken {
			continue
		}

		node.Members[name] = MemberBinding{
			Target:   target.ID,
			Symbol:   name,
			Line:     ref.Line,
			Deferred: ref.Deferred,
			ViaStar:  true,
		}
	}

	return nil
}

// chaseReExports rewrites member bindings that point at re-exported symbols
// so every binding names the module that actually defines its symbol.
// Bindings that land on a module ref (a re-exported submodule) become module
// refs themselves.
func chaseReExports(g *Graph) {
	defined := make([]map[string]bool, len(g.nodes))
	for i, node := range g.nodes {
		defined[i] = make(map[string]bool)
		for _, name := range node.Module.DefinedNames() {
			defined[i][name] = true
		}
	}

	for _, node := range g.nodes {
		for name, binding := range node.Members {
			steps := 0

			for !defined[binding.Target][binding.Symbol] {
				target := g.nodes[binding.Target]

				if subID, isModule := target.ModuleRefs[binding.Symbol]; isModule {
					node.ModuleRefs[name] = subID
					if binding.Deferred {
						node.DeferredModuleRefs[name] = true
					}

					delete(node.Members, name)

					break
				}

				next, ok := target.Members[binding.Symbol]
				if !ok || steps >= len(g.nodes) {
					// Symbol is not statically visible in the target; leave
					// the binding alone. The name may resolve through a
					// hoisted external import at runtime.
					break
				}

				binding.Target = next.Target
				binding.Symbol = next.Symbol
				steps++
			}

			if _, still := node.Members[name]; still {
				node.Members[name] = binding
			}
		}
	}
}
