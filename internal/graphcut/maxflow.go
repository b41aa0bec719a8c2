package graphcut

import (
	"math"
)

// flowNetwork is a Dinic max-flow solver used for the binary min-cut inside
// each swap move. Edges are stored as paired directed arcs so residual
// updates are O(1).
type flowNetwork struct {
	head  []int // first arc index per node, -1 terminated chain
	next  []int
	to    []int
	cap   []float64
	level []int
	iter  []int
}

func newFlowNetwork(nodes int) *flowNetwork {
	head := make([]int, nodes)
	for i := range head {
		head[i] = -1
	}
	return &flowNetwork{head: head}
}

// addEdge adds a directed arc u->v with the given capacity and its reverse
// arc with revCap. Undirected edges pass the same capacity twice.
func (f *flowNetwork) addEdge(u, v int, capacity, revCap float64) {
	f.to = append(f.to, v)
	f.cap = append(f.cap, capacity)
	f.next = append(f.next, f.head[u])
	f.head[u] = len(f.to) - 1

	f.to = append(f.to, u)
	f.cap = append(f.cap, revCap)
	f.next = append(f.next, f.head[v])
	f.head[v] = len(f.to) - 1
}

func (f *flowNetwork) bfs(s, t int) bool {
	f.level = make([]int, len(f.head))
	for i := range f.level {
		f.level[i] = -1
	}
	queue := []int{s}
	f.level[s] = 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for e := f.head[u]; e != -1; e = f.next[e] {
			if f.cap[e] > 1e-12 && f.level[f.to[e]] < 0 {
				f.level[f.to[e]] = f.level[u] + 1
				queue = append(queue, f.to[e])
			}
		}
	}
	return f.level[t] >= 0
}

func (f *flowNetwork) dfs(u, t int, pushed float64) float64 {
	if u == t {
		return pushed
	}
	for ; f.iter[u] != -1; f.iter[u] = f.next[f.iter[u]] {
		e := f.iter[u]
		v := f.to[e]
		if f.cap[e] > 1e-12 && f.level[v] == f.level[u]+1 {
			d := f.dfs(v, t, math.Min(pushed, f.cap[e]))
			if d > 0 {
				f.cap[e] -= d
				f.cap[e^1] += d
				return d
			}
		}
	}
	return 0
}

// maxflow runs Dinic from s to t and returns the total flow.
func (f *flowNetwork) maxflow(s, t int) float64 {
	var flow float64
	for f.bfs(s, t) {
		f.iter = append([]int(nil), f.head...)
		for {
			pushed := f.dfs(s, t, math.Inf(1))
			if pushed <= 0 {
				break
			}
			flow += pushed
		}
	}
	return flow
}

// sourceSide returns, after maxflow, which nodes remain reachable from s in
// the residual network. Those nodes form the source side of a minimum cut.
func (f *flowNetwork) sourceSide(s int) []bool {
	side := make([]bool, len(f.head))
	queue := []int{s}
	side[s] = true
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for e := f.head[u]; e != -1; e = f.next[e] {
			if f.cap[e] > 1e-12 && !side[f.to[e]] {
				side[f.to[e]] = true
				queue = append(queue, f.to[e])
			}
		}
	}
	return side
}
