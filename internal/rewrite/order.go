package rewrite

import (
	"github.com/tinovyatkin/serpen/internal/cycles"
	"github.com/tinovyatkin/serpen/internal/graph"
)

// emissionOrder computes the bundling order: a depth-first postorder from the
// entry module following each module's imports in statement order, with cycle
// groups collapsed into atomic units. Dependencies therefore precede their
// importers, the order mirrors the original import-induced execution order,
// and the entry module is always last (its own cycle group members included).
func emissionOrder(g *graph.Graph, analysis *cycles.Analysis) []int {
	visited := make(map[int]bool, g.Len())
	order := make([]int, 0, g.Len())

	var visit func(id int)
	visit = func(id int) {
		if visited[id] {
			return
		}

		unit := []int{id}
		if group := analysis.GroupOf(id); group != nil {
			unit = group.IDs
		}

		for _, member := range unit {
			visited[member] = true
		}

		inUnit := make(map[int]bool, len(unit))
		for _, member := range unit {
			inUnit[member] = true
		}

		for _, member := range unit {
			for _, dep := range g.Deps(member) {
				if !inUnit[dep] {
					visit(dep)
				}
			}
		}

		order = append(order, unit...)
	}

	visit(g.Entry())

	// The entry must close the bundle even when it sits inside a cycle
	// group whose lexical order placed it elsewhere.
	entry := g.Entry()
	for i, id := range order {
		if id == entry && i != len(order)-1 {
			order = append(append(order[:i:i], order[i+1:]...), entry)
			break
		}
	}

	return order
}
