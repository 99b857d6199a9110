package network

import (
	"math"

	"gonum.org/v1/gonum/graph/simple"
)

// StreetGrid builds an m×n grid street graph. Node ids are row*n+col and
// every edge has unit length.
func StreetGrid(m, n int) *simple.WeightedUndirectedGraph {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	id := func(row, col int) simple.Node { return simple.Node(int64(row*n + col)) }

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if g.Node(int64(i*n+j)) == nil {
				g.AddNode(id(i, j))
			}
			if i > 0 {
				g.SetWeightedEdge(g.NewWeightedEdge(id(i, j), id(i-1, j), 1))
			}
			if j > 0 {
				g.SetWeightedEdge(g.NewWeightedEdge(id(i, j), id(i, j-1), 1))
			}
		}
	}
	return g
}
