package graphcut

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/superpixel"
)

// chainGraph builds a path graph 0-1-2-...-n.
func chainGraph(n int) superpixel.Graph {
	g := superpixel.Graph{NumVertices: n}
	for i := 0; i+1 < n; i++ {
		g.Edges = append(g.Edges, superpixel.Edge{A: i, B: i + 1})
	}
	return g
}

func TestSegmentZeroRegulIsArgmax(t *testing.T) {
	g := chainGraph(4)
	proba := mat.NewDense(4, 3, []float64{
		0.7, 0.2, 0.1,
		0.1, 0.8, 0.1,
		0.3, 0.3, 0.4,
		0.05, 0.05, 0.9,
	})

	labels, err := Segment(g, proba, Options{Regul: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 2}, labels)
}

func TestSegmentSmoothsNoisyNode(t *testing.T) {
	// Middle node weakly prefers class 1 while both neighbors strongly say 0.
	g := chainGraph(3)
	proba := mat.NewDense(3, 2, []float64{
		0.95, 0.05,
		0.45, 0.55,
		0.95, 0.05,
	})

	labels, err := Segment(g, proba, Options{Regul: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, labels, "regularization must flip the weak middle vote")

	labels, err = Segment(g, proba, Options{Regul: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0}, labels, "without regularization the argmax stays")
}

func TestSegmentDeterministic(t *testing.T) {
	g := chainGraph(6)
	proba := mat.NewDense(6, 3, []float64{
		0.5, 0.3, 0.2,
		0.3, 0.5, 0.2,
		0.2, 0.3, 0.5,
		0.34, 0.33, 0.33,
		0.2, 0.5, 0.3,
		0.5, 0.2, 0.3,
	})
	opts := Options{Regul: 2}

	first, err := Segment(g, proba, opts)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Segment(g, proba, opts)
		require.NoError(t, err)
		assert.Equal(t, first, again, "identical inputs must yield identical labelings")
	}
}

func TestSegmentLowersEnergy(t *testing.T) {
	g := chainGraph(5)
	proba := mat.NewDense(5, 2, []float64{
		0.9, 0.1,
		0.6, 0.4,
		0.45, 0.55,
		0.6, 0.4,
		0.1, 0.9,
	})
	opts := Options{Regul: 1.5}

	labels, err := Segment(g, proba, opts)
	require.NoError(t, err)

	em, err := buildModel(g, proba, opts)
	require.NoError(t, err)
	assert.LessOrEqual(t, em.totalEnergy(labels), em.totalEnergy(argmaxLabels(em.unary)),
		"the solver must never end above the argmax energy")
}

func TestSegmentEmptyGraph(t *testing.T) {
	g := superpixel.Graph{NumVertices: 3}
	proba := mat.NewDense(3, 2, []float64{0.6, 0.4, 0.3, 0.7, 0.5, 0.5})

	_, err := Segment(g, proba, Options{Regul: 1})
	assert.ErrorIs(t, err, ErrEmptyGraph)

	// Without regularization an edgeless graph is fine.
	labels, err := Segment(g, proba, Options{Regul: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0}, labels)
}

func TestSegmentInvalidInputs(t *testing.T) {
	g := chainGraph(2)

	_, err := Segment(g, mat.NewDense(3, 2, nil), Options{})
	assert.ErrorIs(t, err, ErrInvalidParameter, "row count mismatch")

	_, err = Segment(g, mat.NewDense(2, 2, []float64{0.5, 0.5, 0.5, 0.5}), Options{Regul: -1})
	assert.ErrorIs(t, err, ErrInvalidParameter, "negative regularization")

	_, err = Segment(g, mat.NewDense(2, 2, []float64{0, 0, 0.5, 0.5}), Options{})
	assert.ErrorIs(t, err, ErrInvalidProbability, "zero row")

	_, err = Segment(g, mat.NewDense(2, 2, []float64{math.NaN(), 0.5, 0.5, 0.5}), Options{})
	assert.ErrorIs(t, err, ErrInvalidProbability, "non-finite entry")

	_, err = Segment(g, mat.NewDense(2, 2, []float64{0.5, 0.5, 0.5, 0.5}),
		Options{Regul: 1, EdgeWeights: []float64{1, 2}})
	assert.ErrorIs(t, err, ErrInvalidParameter, "edge weight count mismatch")

	_, err = Segment(g, mat.NewDense(2, 2, []float64{0.5, 0.5, 0.5, 0.5}),
		Options{Regul: 1, Transitions: mat.NewDense(3, 3, nil)})
	assert.ErrorIs(t, err, ErrInvalidParameter, "transition shape mismatch")
}

func TestSegmentUnnormalizedRowsAreRescaled(t *testing.T) {
	g := chainGraph(2)
	// Rows sum to 10 and 2; the solver normalizes rather than rejecting.
	proba := mat.NewDense(2, 2, []float64{9, 1, 0.4, 1.6})

	labels, err := Segment(g, proba, Options{Regul: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, labels)
}

func TestModelEdgeWeights(t *testing.T) {
	g := chainGraph(3)
	feats := mat.NewDense(3, 1, []float64{0, 0, 10})

	weights := ModelEdgeWeights(g, feats)
	require.Len(t, weights, 2)
	assert.Equal(t, 1.0, weights[0], "zero dissimilarity maps to weight 1")
	assert.Less(t, weights[1], weights[0], "dissimilar pairs get weaker smoothing")
	assert.Greater(t, weights[1], 0.0)

	// All-zero dissimilarity: the scale guard keeps every weight at 1.
	flat := ModelEdgeWeights(g, mat.NewDense(3, 1, []float64{2, 2, 2}))
	assert.Equal(t, []float64{1, 1}, flat)
}

func TestIntensityEdgeWeights(t *testing.T) {
	g := chainGraph(3)

	weights := IntensityEdgeWeights(g, []float64{0.5, 0.5, 0.9})
	require.Len(t, weights, 2)
	assert.Equal(t, 1.0, weights[0], "equal intensities map to weight 1")
	assert.Less(t, weights[1], weights[0], "contrasting pairs get weaker smoothing")
	assert.Greater(t, weights[1], 0.0)

	flat := IntensityEdgeWeights(g, []float64{0.3, 0.3, 0.3})
	assert.Equal(t, []float64{1, 1}, flat)
}

func TestTransitionPenalty(t *testing.T) {
	counts := mat.NewDense(3, 3, []float64{
		10, 4, 0,
		4, 8, 1,
		0, 1, 6,
	})
	penalty := TransitionPenalty(counts)

	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, penalty.At(i, i), "diagonal stays zero")
	}
	assert.Equal(t, 0.0, penalty.At(0, 2), "unobserved pairs cost nothing")
	assert.Greater(t, penalty.At(1, 2), penalty.At(0, 1),
		"rare transitions must cost more than common ones")
	assert.Equal(t, penalty.At(0, 1), penalty.At(1, 0), "penalty is symmetric")
}

func TestCountTransitions(t *testing.T) {
	m := &superpixel.Map{Rows: 2, Cols: 4, Labels: []int{
		0, 0, 1, 1,
		0, 0, 1, 1,
	}}
	counts, err := CountTransitions([]*superpixel.Map{m}, [][]int{{0, 1}}, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, counts.At(0, 1))
	assert.Equal(t, 1.0, counts.At(1, 0))
	assert.Equal(t, 0.0, counts.At(0, 0))

	// Ignore-labeled superpixels contribute nothing.
	counts, err = CountTransitions([]*superpixel.Map{m}, [][]int{{-1, 1}}, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, counts.At(0, 1))
}
