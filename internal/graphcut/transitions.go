package graphcut

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/superpixel"
)

// CountTransitions tallies label transitions across adjacent superpixels
// over a set of training images. The result is a symmetric C x C count
// matrix: entry (a, b) is how often neighboring superpixels carried labels
// a and b.
func CountTransitions(maps []*superpixel.Map, labels [][]int, numClasses int) (*mat.Dense, error) {
	if len(maps) != len(labels) {
		return nil, fmt.Errorf("%w: %d superpixel maps for %d label sets",
			ErrInvalidParameter, len(maps), len(labels))
	}
	if numClasses <= 0 {
		for _, lbs := range labels {
			for _, lb := range lbs {
				if lb+1 > numClasses {
					numClasses = lb + 1
				}
			}
		}
	}
	counts := mat.NewDense(numClasses, numClasses, nil)
	for idx, m := range maps {
		lbs := labels[idx]
		if len(lbs) < m.NumSegments() {
			return nil, fmt.Errorf("%w: image %d has %d labels for %d superpixels",
				ErrInvalidParameter, idx, len(lbs), m.NumSegments())
		}
		g := superpixel.BuildGraph(m)
		for _, e := range g.Edges {
			a, b := lbs[e.A], lbs[e.B]
			if a < 0 || b < 0 {
				continue // ignore-labeled superpixels carry no evidence
			}
			counts.Set(a, b, counts.At(a, b)+1)
			if a != b {
				counts.Set(b, a, counts.At(b, a)+1)
			}
		}
	}
	return counts, nil
}

// TransitionPenalty converts a transition count matrix into the pairwise
// penalty matrix used in place of the Potts indicator: frequently observed
// class pairs are cheap to cut between, rare ones expensive. Class pairs
// never observed in training cost nothing, and self-transitions always cost
// zero so the matrix stays a valid swap-move compatibility.
func TransitionPenalty(counts *mat.Dense) *mat.Dense {
	n, _ := counts.Dims()
	var total float64
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			if a != b {
				total += counts.At(a, b)
			}
		}
	}
	penalty := mat.NewDense(n, n, nil)
	if total == 0 {
		return penalty
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			c := counts.At(a, b)
			if c <= 0 {
				continue
			}
			p := -math.Log(c / total)
			penalty.Set(a, b, p)
			penalty.Set(b, a, p)
		}
	}
	return penalty
}
