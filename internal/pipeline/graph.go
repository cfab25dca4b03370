package pipeline

import (
	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/emirpasic/gods/utils"
)

// graph is the node-level dependency graph of one pipeline. Vertices are
// addressed by their index in the source node sequence.
type graph struct {
	vertices []*vertex
}

// vertex is a single pipeline node in the graph.
type vertex struct {
	index int
	// deps holds the vertices this vertex consumes from (predecessors).
	deps map[int]*vertex
	// dependents holds the vertices consuming from this vertex (successors).
	dependents map[int]*vertex
}

func newGraph(n int) *graph {
	g := &graph{vertices: make([]*vertex, n)}
	for i := range g.vertices {
		g.vertices[i] = &vertex{
			index:      i,
			deps:       make(map[int]*vertex),
			dependents: make(map[int]*vertex),
		}
	}
	return g
}

// addEdge records that `to` consumes a name produced by `from`. Self edges are
// kept: a node consuming its own output is a cycle of length one.
func (g *graph) addEdge(from, to int) {
	f, t := g.vertices[from], g.vertices[to]
	t.deps[from] = f
	f.dependents[to] = t
}

// sort runs Kahn's algorithm. The ready set is a priority queue keyed by the
// source index, so ties resolve in source order. It returns the order and
// the indices left with a residual in-degree (non-empty only on a cycle).
func (g *graph) sort() (order []int, residual []int) {
	inDegree := make([]int, len(g.vertices))
	ready := priorityqueue.NewWith(utils.IntComparator)
	for _, v := range g.vertices {
		inDegree[v.index] = len(v.deps)
		if inDegree[v.index] == 0 {
			ready.Enqueue(v.index)
		}
	}

	order = make([]int, 0, len(g.vertices))
	for !ready.Empty() {
		item, _ := ready.Dequeue()
		idx := item.(int)
		order = append(order, idx)
		for _, dependent := range g.vertices[idx].dependents {
			inDegree[dependent.index]--
			if inDegree[dependent.index] == 0 {
				ready.Enqueue(dependent.index)
			}
		}
	}

	for i, d := range inDegree {
		if d > 0 {
			residual = append(residual, i)
		}
	}
	return order, residual
}

// findCycle returns one cycle among the residual vertices, in edge order.
// Every residual vertex has at least one residual predecessor, so walking
// predecessors from any of them must revisit a vertex.
func (g *graph) findCycle(residual []int) []int {
	if len(residual) == 0 {
		return nil
	}
	inResidual := make(map[int]bool, len(residual))
	for _, i := range residual {
		inResidual[i] = true
	}

	seenAt := make(map[int]int)
	var walk []int
	cur := residual[0]
	for {
		if pos, ok := seenAt[cur]; ok {
			// walk[pos:] follows predecessor links; reverse it into edge order.
			cycle := append([]int(nil), walk[pos:]...)
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			return cycle
		}
		seenAt[cur] = len(walk)
		walk = append(walk, cur)
		cur = g.lowestResidualDep(cur, inResidual)
	}
}

// lowestResidualDep picks the residual predecessor with the smallest index so
// the reported cycle is deterministic.
func (g *graph) lowestResidualDep(idx int, inResidual map[int]bool) int {
	best := -1
	for dep := range g.vertices[idx].deps {
		if inResidual[dep] && (best == -1 || dep < best) {
			best = dep
		}
	}
	return best
}
