package graph

import "sort"

// intGraph is a directed graph over dense integer module ids, kept as plain
// adjacency slices so cycle groups never need recursive ownership.
type intGraph struct {
	// fwd[u] lists v for every edge u -> v, in insertion order.
	fwd [][]int
	// rev[v] lists u for every edge u -> v.
	rev [][]int
	// inDegree[v] is the number of incoming edges.
	inDegree []int
}

func newIntGraph() *intGraph {
	return &intGraph{}
}

// ensureCapacity grows the graph to hold at least n nodes.
func (g *intGraph) ensureCapacity(n int) {
	for len(g.fwd) < n {
		g.fwd = append(g.fwd, nil)
		g.rev = append(g.rev, nil)
		g.inDegree = append(g.inDegree, 0)
	}
}

// addNode makes id addressable.
func (g *intGraph) addNode(id int) {
	g.ensureCapacity(id + 1)
}

// addEdge adds u -> v, ignoring duplicates. Returns true when the edge was
// newly added.
func (g *intGraph) addEdge(u, v int) bool {
	g.ensureCapacity(maxInt(u, v) + 1)

	for _, neighbor := range g.fwd[u] {
		if neighbor == v {
			return false
		}
	}

	g.fwd[u] = append(g.fwd[u], v)
	g.rev[v] = append(g.rev[v], u)
	g.inDegree[v]++

	return true
}

func (g *intGraph) len() int {
	return len(g.fwd)
}

// topoSort runs Kahn's algorithm. Ties are broken by ascending id, which the
// builder assigns in discovery order, so the result is deterministic. The
// boolean is false when a cycle prevents a full ordering.
func (g *intGraph) topoSort() ([]int, bool) {
	n := len(g.fwd)
	if n == 0 {
		return []int{}, true
	}

	inDegree := make([]int, n)
	copy(inDegree, g.inDegree)

	queue := make([]int, 0, n)
	for i := range n {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	sort.Ints(queue)

	result := make([]int, 0, n)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		result = append(result, u)

		for _, v := range g.fwd[u] {
			inDegree[v]--
			if inDegree[v] == 0 {
				insertSorted(&queue, v)
			}
		}
	}

	return result, len(result) == n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

// insertSorted inserts v into the sorted slice s.
func insertSorted(s *[]int, v int) {
	i := sort.SearchInts(*s, v)
	*s = append(*s, 0)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}
