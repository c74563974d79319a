// Package cycles finds strongly connected components in the dependency
// graph, classifies each import cycle as resolvable or not, and derives the
// deferral strategy for resolvable ones.
package cycles

import (
	"github.com/tinovyatkin/serpen/internal/graph"
)

// tarjan computes strongly connected components over the graph's forward
// adjacency using an explicit stack, returning components in completion
// order. Member ids inside each component keep discovery order; callers sort
// as needed.
func tarjan(g *graph.Graph) [][]int {
	n := g.Len()

	const unvisited = -1

	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)

	for i := range index {
		index[i] = unvisited
	}

	var (
		counter    int
		stack      []int
		components [][]int
	)

	type workItem struct {
		node  int
		child int
	}

	for start := range n {
		if index[start] != unvisited {
			continue
		}

		work := []workItem{{node: start}}

		for len(work) > 0 {
			top := &work[len(work)-1]
			v := top.node

			if top.child == 0 {
				index[v] = counter
				lowlink[v] = counter
				counter++

				stack = append(stack, v)
				onStack[v] = true
			}

			deps := g.Deps(v)

			if top.child < len(deps) {
				next := deps[top.child]
				top.child++

				if index[next] == unvisited {
					work = append(work, workItem{node: next})
				} else if onStack[next] {
					lowlink[v] = minInt(lowlink[v], index[next])
				}

				continue
			}

			// All children explored; pop and propagate lowlink.
			work = work[:len(work)-1]

			if len(work) > 0 {
				parent := work[len(work)-1].node
				lowlink[parent] = minInt(lowlink[parent], lowlink[v])
			}

			if lowlink[v] == index[v] {
				var component []int

				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					component = append(component, w)

					if w == v {
						break
					}
				}

				components = append(components, component)
			}
		}
	}

	return components
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}
