package graphcut

import (
	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/superpixel"
)

const defaultMaxSweeps = 10

// Segment finds a low-energy labeling of the superpixel graph given the
// K x C label probability matrix. The minimization is alpha-beta swap
// move-making: every class pair is visited in a fixed order and the optimal
// swap for that pair is found with a min-cut; sweeps repeat until no move
// improves the energy or the sweep budget runs out. The result is a local
// optimum, deterministic for identical inputs.
//
// With Regul == 0 the pairwise term vanishes and the result is the
// per-superpixel argmax of the probabilities.
func Segment(g superpixel.Graph, proba *mat.Dense, opts Options) ([]int, error) {
	em, err := buildModel(g, proba, opts)
	if err != nil {
		return nil, err
	}

	labels := argmaxLabels(em.unary)
	if em.regul == 0 || len(em.edges) == 0 {
		return labels, nil
	}

	maxSweeps := opts.MaxSweeps
	if maxSweeps <= 0 {
		maxSweeps = defaultMaxSweeps
	}

	energy := em.totalEnergy(labels)
	for sweep := 0; sweep < maxSweeps; sweep++ {
		improved := false
		for alpha := 0; alpha < em.numClasses; alpha++ {
			for beta := alpha + 1; beta < em.numClasses; beta++ {
				candidate := em.swapMove(labels, alpha, beta)
				if candidate == nil {
					continue
				}
				if e := em.totalEnergy(candidate); e < energy-1e-12 {
					labels = candidate
					energy = e
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return labels, nil
}

// swapMove computes the optimal reassignment of labels alpha/beta among the
// superpixels currently holding one of them. Returns nil when no superpixel
// participates. The move graph follows the standard construction: source
// side takes beta, sink side takes alpha, t-links carry the unary cost plus
// boundary terms to non-participating neighbors, n-links carry the
// alpha-beta pairwise cost.
func (em *energyModel) swapMove(labels []int, alpha, beta int) []int {
	participants := make([]int, 0)
	nodeIdx := make(map[int]int)
	for i, lb := range labels {
		if lb == alpha || lb == beta {
			nodeIdx[i] = len(participants)
			participants = append(participants, i)
		}
	}
	if len(participants) == 0 {
		return nil
	}

	// Node layout: 0..n-1 participants, n = source, n+1 = sink.
	n := len(participants)
	net := newFlowNetwork(n + 2)
	source, sink := n, n+1

	for pi, i := range participants {
		capSrc := em.unary[i][alpha]
		capSink := em.unary[i][beta]
		for _, e := range em.adj[i] {
			edge := em.edges[e]
			j := edge.A
			if j == i {
				j = edge.B
			}
			if _, in := nodeIdx[j]; in {
				continue
			}
			capSrc += em.edgeCost(e, alpha, labels[j])
			capSink += em.edgeCost(e, beta, labels[j])
		}
		net.addEdge(source, pi, capSrc, 0)
		net.addEdge(pi, sink, capSink, 0)
	}

	for e, edge := range em.edges {
		pa, ina := nodeIdx[edge.A]
		pb, inb := nodeIdx[edge.B]
		if !ina || !inb {
			continue
		}
		w := em.edgeCost(e, alpha, beta)
		if w > 0 {
			net.addEdge(pa, pb, w, w)
		}
	}

	net.maxflow(source, sink)
	side := net.sourceSide(source)

	out := append([]int(nil), labels...)
	for pi, i := range participants {
		if side[pi] {
			out[i] = beta
		} else {
			out[i] = alpha
		}
	}
	return out
}
