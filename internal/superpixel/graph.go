package superpixel

// Edge is an unordered pair of adjacent superpixel ids with A < B.
type Edge struct {
	A int
	B int
}

// Graph is the adjacency graph over a superpixel map: vertices are the
// superpixel ids [0, K), edges connect superpixels that touch under
// 4-connectivity. Edges are unique and contain no self-loops.
type Graph struct {
	NumVertices int
	Edges       []Edge
}

// BuildGraph derives the 4-connected adjacency graph from a superpixel map.
// Edges are deduplicated in scan order: each pair appears once, at the
// position of its first row-major encounter.
func BuildGraph(m *Map) Graph {
	k := m.NumSegments()
	seen := make(map[Edge]struct{})
	var edges []Edge

	add := func(a, b int) {
		if a == b {
			return
		}
		if a > b {
			a, b = b, a
		}
		e := Edge{A: a, B: b}
		if _, ok := seen[e]; !ok {
			seen[e] = struct{}{}
			edges = append(edges, e)
		}
	}

	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			id := m.At(r, c)
			if c+1 < m.Cols {
				add(id, m.At(r, c+1))
			}
			if r+1 < m.Rows {
				add(id, m.At(r+1, c))
			}
		}
	}

	return Graph{NumVertices: k, Edges: edges}
}

// Neighbors expands the edge list into per-vertex adjacency lists.
func (g Graph) Neighbors() [][]int {
	adj := make([][]int, g.NumVertices)
	for _, e := range g.Edges {
		adj[e.A] = append(adj[e.A], e.B)
		adj[e.B] = append(adj[e.B], e.A)
	}
	return adj
}
