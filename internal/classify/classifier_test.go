package classify

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/config"
)

// twoBlobs builds well-separated training data: class 0 near (0, 0) and
// class 1 near (10, 10), with one ignore-labeled row.
func twoBlobs() (*mat.Dense, []int) {
	rows := [][]float64{
		{0, 0}, {0.5, 0.2}, {-0.3, 0.4}, {0.1, -0.2},
		{10, 10}, {10.4, 9.8}, {9.7, 10.3}, {10.1, 9.9},
		{500, 500}, // ignored outlier
	}
	labels := []int{0, 0, 0, 0, 1, 1, 1, 1, -1}
	m := mat.NewDense(len(rows), 2, nil)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return m, labels
}

func TestGaussianFitPredict(t *testing.T) {
	feats, labels := twoBlobs()

	clf := &Gaussian{}
	require.NoError(t, clf.Fit(feats, labels))
	require.Equal(t, 2, clf.NumClasses())

	test := mat.NewDense(2, 2, []float64{0.2, 0.1, 9.9, 10.2})
	pred, err := clf.Predict(test)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, pred)

	proba, err := clf.PredictProba(test)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		var sum float64
		for c := 0; c < 2; c++ {
			p := proba.At(i, c)
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "probability rows sum to one")
	}
	assert.Greater(t, proba.At(0, 0), 0.9)
	assert.Greater(t, proba.At(1, 1), 0.9)
}

func TestGaussianFitValidation(t *testing.T) {
	clf := &Gaussian{}

	err := clf.Fit(mat.NewDense(2, 2, nil), []int{0})
	assert.Error(t, err, "row count mismatch")

	err = clf.Fit(mat.NewDense(2, 2, nil), []int{0, 0})
	assert.Error(t, err, "single class is not trainable")

	_, err = (&Gaussian{}).PredictProba(mat.NewDense(1, 2, nil))
	assert.Error(t, err, "untrained classifier")
}

func TestNearestCentroidPredict(t *testing.T) {
	feats, labels := twoBlobs()

	clf := &NearestCentroid{}
	require.NoError(t, clf.Fit(feats, labels))

	pred, err := clf.Predict(mat.NewDense(2, 2, []float64{1, 1, 9, 9}))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, pred)

	// The capability assertion is how callers discover probability support.
	var c Classifier = clf
	_, ok := c.(Probabilistic)
	assert.False(t, ok, "nearest centroid must not advertise probabilities")

	var g Classifier = &Gaussian{}
	_, ok = g.(Probabilistic)
	assert.True(t, ok)
}

func TestBundleRoundTrip(t *testing.T) {
	feats, labels := twoBlobs()
	clf := &Gaussian{}
	require.NoError(t, clf.Fit(feats, labels))

	params := config.Default()
	params.NumClasses = 2
	params.GCRegul = 2.5

	transitions := mat.NewDense(2, 2, []float64{0, 1.5, 1.5, 0})
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, SaveBundle(path, clf, params, transitions))

	loaded, loadedParams, loadedTrans, err := LoadBundle(path)
	require.NoError(t, err)

	assert.Equal(t, params.GCRegul, loadedParams.GCRegul)
	assert.Equal(t, params.NumClasses, loadedParams.NumClasses)
	require.NotNil(t, loadedTrans)
	assert.InDelta(t, 1.5, loadedTrans.At(0, 1), 1e-12)

	// The reloaded classifier predicts identically.
	test := mat.NewDense(2, 2, []float64{0.2, 0.1, 9.9, 10.2})
	want, err := clf.Predict(test)
	require.NoError(t, err)
	got, err := loaded.Predict(test)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBundleWithoutTransitions(t *testing.T) {
	feats, labels := twoBlobs()
	clf := &NearestCentroid{}
	require.NoError(t, clf.Fit(feats, labels))

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, SaveBundle(path, clf, config.Default(), nil))

	loaded, _, trans, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Nil(t, trans)
	assert.IsType(t, &NearestCentroid{}, loaded)
}
