// Package graphcut assigns classes to superpixels by minimizing a
// unary+pairwise energy over the superpixel adjacency graph.
//
// The unary cost of giving superpixel i class c is -log(proba[i][c]). The
// pairwise cost of an edge (i, j) with differing labels is
//
//	regul * weight(i, j) * V(y_i, y_j)
//
// where weight comes from the selected edge policy (constant, or visual
// dissimilarity) and V is either the Potts indicator or a learned
// label-transition penalty matrix.
package graphcut

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/features"
	"cell-segm/internal/superpixel"
)

// Typed failure conditions. These are caller bugs or degenerate inputs and
// are never retried internally.
var (
	ErrInvalidParameter   = errors.New("graphcut: invalid parameter")
	ErrEmptyGraph         = errors.New("graphcut: adjacency graph has no edges")
	ErrInvalidProbability = errors.New("graphcut: label probability row is not normalizable")
)

const probFloor = 1e-9

// Options configures one energy minimization.
type Options struct {
	// Regul is the global smoothness scalar (gc_regul). Zero disables the
	// pairwise term, reducing the solve to a per-superpixel argmax.
	Regul float64

	// EdgeWeights holds one weight per graph edge, aligned with the edge
	// list. Nil means the constant policy: every edge weighs 1.
	EdgeWeights []float64

	// Transitions, when non-nil, replaces the Potts indicator with a
	// class-pair penalty matrix (symmetric, non-negative, zero diagonal).
	Transitions *mat.Dense

	// MaxSweeps bounds the swap-move passes. Zero means the default of 10.
	MaxSweeps int
}

// ModelEdgeWeights computes the model-based edge weighting: the visual
// dissimilarity of the two superpixels joined by each edge, mapped through
// exp(-d/scale) so larger differences yield lower smoothness cost. The scale
// is the mean edge dissimilarity; when all dissimilarities are zero every
// weight is exactly 1, matching the constant policy at the boundary case.
func ModelEdgeWeights(g superpixel.Graph, feats *mat.Dense) []float64 {
	dists := make([]float64, len(g.Edges))
	var sum float64
	for i, e := range g.Edges {
		dists[i] = features.RowDistance(feats, e.A, e.B)
		sum += dists[i]
	}
	scale := 1.0
	if len(dists) > 0 {
		if mean := sum / float64(len(dists)); mean > 0 {
			scale = mean
		}
	}
	weights := make([]float64, len(dists))
	for i, d := range dists {
		weights[i] = math.Exp(-d / scale)
	}
	return weights
}

// IntensityEdgeWeights is the model policy computed from mean superpixel
// intensities instead of the full feature rows.
func IntensityEdgeWeights(g superpixel.Graph, intensity []float64) []float64 {
	dists := make([]float64, len(g.Edges))
	var sum float64
	for i, e := range g.Edges {
		dists[i] = math.Abs(intensity[e.A] - intensity[e.B])
		sum += dists[i]
	}
	scale := 1.0
	if len(dists) > 0 {
		if mean := sum / float64(len(dists)); mean > 0 {
			scale = mean
		}
	}
	weights := make([]float64, len(dists))
	for i, d := range dists {
		weights[i] = math.Exp(-d / scale)
	}
	return weights
}

// energyModel is the validated, ready-to-minimize form of the inputs.
type energyModel struct {
	unary      [][]float64 // K x C, -log p
	edges      []superpixel.Edge
	weights    []float64
	numClasses int
	regul      float64
	trans      *mat.Dense // nil for Potts
	adj        [][]int    // per-vertex indices into edges
}

// pairCost returns the label-compatibility cost V(a, b) scaled by regul.
func (em *energyModel) pairCost(a, b int) float64 {
	if a == b {
		return 0
	}
	if em.trans != nil {
		return em.regul * em.trans.At(a, b)
	}
	return em.regul
}

// edgeCost returns the full pairwise cost of edge e under labels (a, b).
func (em *energyModel) edgeCost(e int, a, b int) float64 {
	return em.weights[e] * em.pairCost(a, b)
}

// totalEnergy evaluates E(y) for a labeling.
func (em *energyModel) totalEnergy(labels []int) float64 {
	var total float64
	for i, lb := range labels {
		total += em.unary[i][lb]
	}
	for e, edge := range em.edges {
		total += em.edgeCost(e, labels[edge.A], labels[edge.B])
	}
	return total
}

// buildModel validates the probability matrix and assembles the energy.
func buildModel(g superpixel.Graph, proba *mat.Dense, opts Options) (*energyModel, error) {
	k, numClasses := proba.Dims()
	if k != g.NumVertices {
		return nil, fmt.Errorf("%w: probability matrix has %d rows for %d vertices",
			ErrInvalidParameter, k, g.NumVertices)
	}
	if opts.Regul < 0 {
		return nil, fmt.Errorf("%w: negative regularization %g", ErrInvalidParameter, opts.Regul)
	}
	if opts.EdgeWeights != nil && len(opts.EdgeWeights) != len(g.Edges) {
		return nil, fmt.Errorf("%w: %d edge weights for %d edges",
			ErrInvalidParameter, len(opts.EdgeWeights), len(g.Edges))
	}
	if opts.Transitions != nil {
		tr, tc := opts.Transitions.Dims()
		if tr != numClasses || tc != numClasses {
			return nil, fmt.Errorf("%w: transition matrix is %dx%d for %d classes",
				ErrInvalidParameter, tr, tc, numClasses)
		}
	}
	if opts.Regul > 0 && len(g.Edges) == 0 {
		return nil, ErrEmptyGraph
	}

	unary := make([][]float64, k)
	for i := 0; i < k; i++ {
		var rowSum float64
		for c := 0; c < numClasses; c++ {
			v := proba.At(i, c)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("%w: row %d", ErrInvalidProbability, i)
			}
			rowSum += v
		}
		if rowSum <= 0 {
			return nil, fmt.Errorf("%w: row %d sums to %g", ErrInvalidProbability, i, rowSum)
		}
		unary[i] = make([]float64, numClasses)
		for c := 0; c < numClasses; c++ {
			p := proba.At(i, c) / rowSum
			if p < probFloor {
				p = probFloor
			}
			unary[i][c] = -math.Log(p)
		}
	}

	weights := opts.EdgeWeights
	if weights == nil {
		weights = make([]float64, len(g.Edges))
		for i := range weights {
			weights[i] = 1
		}
	}

	adj := make([][]int, k)
	for e, edge := range g.Edges {
		adj[edge.A] = append(adj[edge.A], e)
		adj[edge.B] = append(adj[edge.B], e)
	}

	return &energyModel{
		unary:      unary,
		edges:      g.Edges,
		weights:    weights,
		numClasses: numClasses,
		regul:      opts.Regul,
		trans:      opts.Transitions,
		adj:        adj,
	}, nil
}

// argmaxLabels is the unconstrained per-superpixel MAP assignment.
func argmaxLabels(unary [][]float64) []int {
	labels := make([]int, len(unary))
	for i, row := range unary {
		best := 0
		for c := 1; c < len(row); c++ {
			if row[c] < row[best] {
				best = c
			}
		}
		labels[i] = best
	}
	return labels
}
