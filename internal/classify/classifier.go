// Package classify provides per-superpixel classifiers over feature vectors.
//
// Two concrete classifiers exist: a Gaussian statistics classifier that
// exposes class probabilities, and a nearest-centroid classifier that only
// produces hard labels. Callers that need probabilities check for the
// Probabilistic capability with a type assertion rather than probing for
// runtime failures.
package classify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Classifier predicts a hard class label per feature row.
type Classifier interface {
	Predict(features *mat.Dense) ([]int, error)
	NumClasses() int
}

// Probabilistic is the optional probability-output capability.
type Probabilistic interface {
	Classifier
	PredictProba(features *mat.Dense) (*mat.Dense, error)
}

// featureStats holds per-feature mean and standard deviation for one class.
type featureStats struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Gaussian is a diagonal-covariance Gaussian classifier: each class is
// modeled by per-feature mean and standard deviation plus a prior from the
// training label frequencies.
type Gaussian struct {
	Stats   []featureStats `json:"stats"`   // indexed by class
	Priors  []float64      `json:"priors"`  // indexed by class
	NumFeat int            `json:"nb_feat"`
	Trained bool           `json:"trained"`
}

// Fit estimates class statistics from the feature matrix and labels.
// Rows with a negative label (the ignore label) are skipped.
func (g *Gaussian) Fit(features *mat.Dense, labels []int) error {
	rows, cols := features.Dims()
	if rows != len(labels) {
		return fmt.Errorf("feature matrix has %d rows, labels %d", rows, len(labels))
	}

	numClasses := 0
	for _, lb := range labels {
		if lb+1 > numClasses {
			numClasses = lb + 1
		}
	}
	if numClasses < 2 {
		return fmt.Errorf("training needs at least 2 classes, got %d", numClasses)
	}

	byClass := make([][][]float64, numClasses)
	for c := range byClass {
		byClass[c] = make([][]float64, cols)
	}
	counts := make([]float64, numClasses)
	total := 0.0
	for i, lb := range labels {
		if lb < 0 {
			continue
		}
		counts[lb]++
		total++
		for j := 0; j < cols; j++ {
			byClass[lb][j] = append(byClass[lb][j], features.At(i, j))
		}
	}
	if total == 0 {
		return fmt.Errorf("no labeled training rows")
	}

	g.Stats = make([]featureStats, numClasses)
	g.Priors = make([]float64, numClasses)
	for c := 0; c < numClasses; c++ {
		fs := featureStats{
			Mean: make([]float64, cols),
			Std:  make([]float64, cols),
		}
		for j := 0; j < cols; j++ {
			vals := byClass[c][j]
			if len(vals) == 0 {
				continue
			}
			fs.Mean[j] = stat.Mean(vals, nil)
			if len(vals) > 1 {
				fs.Std[j] = stat.StdDev(vals, nil)
			}
		}
		g.Stats[c] = fs
		g.Priors[c] = counts[c] / total
	}
	g.NumFeat = cols
	g.Trained = true
	return nil
}

// NumClasses returns the number of classes the classifier was trained on.
func (g *Gaussian) NumClasses() int {
	return len(g.Stats)
}

// PredictProba returns the row-normalized class probability matrix.
func (g *Gaussian) PredictProba(features *mat.Dense) (*mat.Dense, error) {
	if !g.Trained {
		return nil, fmt.Errorf("classifier is not trained")
	}
	rows, cols := features.Dims()
	if cols != g.NumFeat {
		return nil, fmt.Errorf("feature matrix has %d columns, classifier expects %d", cols, g.NumFeat)
	}
	numClasses := len(g.Stats)
	out := mat.NewDense(rows, numClasses, nil)

	logLik := make([]float64, numClasses)
	for i := 0; i < rows; i++ {
		for c := 0; c < numClasses; c++ {
			ll := math.Log(g.Priors[c] + 1e-12)
			for j := 0; j < cols; j++ {
				sd := g.Stats[c].Std[j]
				if sd < 1e-6 {
					sd = 1e-6
				}
				d := (features.At(i, j) - g.Stats[c].Mean[j]) / sd
				ll += -0.5*d*d - math.Log(sd)
			}
			logLik[c] = ll
		}
		// Softmax over log-likelihoods, shifted for stability.
		maxLL := logLik[0]
		for _, v := range logLik[1:] {
			if v > maxLL {
				maxLL = v
			}
		}
		var sum float64
		for c := range logLik {
			logLik[c] = math.Exp(logLik[c] - maxLL)
			sum += logLik[c]
		}
		for c := range logLik {
			out.Set(i, c, logLik[c]/sum)
		}
	}
	return out, nil
}

// Predict returns the most probable class per row.
func (g *Gaussian) Predict(features *mat.Dense) ([]int, error) {
	proba, err := g.PredictProba(features)
	if err != nil {
		return nil, err
	}
	rows, numClasses := proba.Dims()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		best := 0
		for c := 1; c < numClasses; c++ {
			if proba.At(i, c) > proba.At(i, best) {
				best = c
			}
		}
		out[i] = best
	}
	return out, nil
}

// NearestCentroid assigns each row to the class with the closest feature
// centroid. It deliberately has no probability output, exercising the
// hard-label fallback path of the pipeline.
type NearestCentroid struct {
	Centroids [][]float64 `json:"centroids"` // indexed by class
	NumFeat   int         `json:"nb_feat"`
	Trained   bool        `json:"trained"`
}

// Fit computes per-class centroids. Negative labels are skipped.
func (n *NearestCentroid) Fit(features *mat.Dense, labels []int) error {
	rows, cols := features.Dims()
	if rows != len(labels) {
		return fmt.Errorf("feature matrix has %d rows, labels %d", rows, len(labels))
	}
	numClasses := 0
	for _, lb := range labels {
		if lb+1 > numClasses {
			numClasses = lb + 1
		}
	}
	if numClasses < 2 {
		return fmt.Errorf("training needs at least 2 classes, got %d", numClasses)
	}
	sums := make([][]float64, numClasses)
	counts := make([]float64, numClasses)
	for c := range sums {
		sums[c] = make([]float64, cols)
	}
	for i, lb := range labels {
		if lb < 0 {
			continue
		}
		counts[lb]++
		for j := 0; j < cols; j++ {
			sums[lb][j] += features.At(i, j)
		}
	}
	n.Centroids = make([][]float64, numClasses)
	for c := range sums {
		n.Centroids[c] = make([]float64, cols)
		if counts[c] == 0 {
			continue
		}
		for j := 0; j < cols; j++ {
			n.Centroids[c][j] = sums[c][j] / counts[c]
		}
	}
	n.NumFeat = cols
	n.Trained = true
	return nil
}

// NumClasses returns the number of classes the classifier was trained on.
func (n *NearestCentroid) NumClasses() int {
	return len(n.Centroids)
}

// Predict assigns each row to its nearest centroid.
func (n *NearestCentroid) Predict(features *mat.Dense) ([]int, error) {
	if !n.Trained {
		return nil, fmt.Errorf("classifier is not trained")
	}
	rows, cols := features.Dims()
	if cols != n.NumFeat {
		return nil, fmt.Errorf("feature matrix has %d columns, classifier expects %d", cols, n.NumFeat)
	}
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		best := 0
		bestDist := math.Inf(1)
		for c := range n.Centroids {
			var sum float64
			for j := 0; j < cols; j++ {
				d := features.At(i, j) - n.Centroids[c][j]
				sum += d * d
			}
			if sum < bestDist {
				bestDist = sum
				best = c
			}
		}
		out[i] = best
	}
	return out, nil
}
