// Package labeling maps ground-truth pixel annotations onto superpixels and
// scores predicted labelings against annotations.
package labeling

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/superpixel"
)

// Ignore marks superpixels excluded from training, e.g. for low annotation purity.
const Ignore = -1

// OverlapHistogram builds the K x C matrix whose row i is the normalized
// histogram of annotation labels inside superpixel i. Rows sum to 1.
func OverlapHistogram(m *superpixel.Map, annot []int, numClasses int) (*mat.Dense, error) {
	if len(annot) != m.Rows*m.Cols {
		return nil, fmt.Errorf("annotation has %d pixels, superpixel map has %d",
			len(annot), m.Rows*m.Cols)
	}
	if numClasses <= 0 {
		for _, lb := range annot {
			if lb+1 > numClasses {
				numClasses = lb + 1
			}
		}
	}
	k := m.NumSegments()
	hist := mat.NewDense(k, numClasses, nil)
	for idx, lb := range annot {
		if lb < 0 || lb >= numClasses {
			return nil, fmt.Errorf("annotation label %d outside [0, %d)", lb, numClasses)
		}
		id := m.Labels[idx]
		hist.Set(id, lb, hist.At(id, lb)+1)
	}
	for i := 0; i < k; i++ {
		var total float64
		for c := 0; c < numClasses; c++ {
			total += hist.At(i, c)
		}
		if total == 0 {
			continue
		}
		for c := 0; c < numClasses; c++ {
			hist.Set(i, c, hist.At(i, c)/total)
		}
	}
	return hist, nil
}

// Argmax returns the per-row most probable class of a K x C matrix.
func Argmax(probs *mat.Dense) []int {
	k, c := probs.Dims()
	out := make([]int, k)
	for i := 0; i < k; i++ {
		best := 0
		bestV := probs.At(i, 0)
		for j := 1; j < c; j++ {
			if probs.At(i, j) > bestV {
				bestV = probs.At(i, j)
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// ApplyPurity replaces labels whose histogram peak falls below purity with
// Ignore, so ambiguous superpixels never enter classifier training.
func ApplyPurity(labels []int, hist *mat.Dense, purity float64) []int {
	out := append([]int(nil), labels...)
	_, c := hist.Dims()
	for i := range out {
		var peak float64
		for j := 0; j < c; j++ {
			if hist.At(i, j) > peak {
				peak = hist.At(i, j)
			}
		}
		if peak < purity {
			out[i] = Ignore
		}
	}
	return out
}

// ProjectToPixels expands a per-superpixel labeling back to a pixel grid.
func ProjectToPixels(m *superpixel.Map, labels []int) []int {
	out := make([]int, len(m.Labels))
	for idx, id := range m.Labels {
		out[idx] = labels[id]
	}
	return out
}

// Stats summarizes agreement between a predicted labeling and an annotation.
type Stats struct {
	Confusion [][]int
	Accuracy  float64
	Precision []float64 // per class
	Recall    []float64 // per class
}

// Evaluate compares two equally sized label fields. Positions where either
// side carries a negative label are excluded from every statistic.
func Evaluate(pred, truth []int, numClasses int) (Stats, error) {
	if len(pred) != len(truth) {
		return Stats{}, fmt.Errorf("prediction has %d labels, annotation %d", len(pred), len(truth))
	}
	if numClasses <= 0 {
		for i := range pred {
			if pred[i]+1 > numClasses {
				numClasses = pred[i] + 1
			}
			if truth[i]+1 > numClasses {
				numClasses = truth[i] + 1
			}
		}
	}
	conf := make([][]int, numClasses)
	for i := range conf {
		conf[i] = make([]int, numClasses)
	}
	correct, scored := 0, 0
	for i := range pred {
		if pred[i] < 0 || truth[i] < 0 {
			continue
		}
		scored++
		conf[truth[i]][pred[i]]++
		if pred[i] == truth[i] {
			correct++
		}
	}

	st := Stats{
		Confusion: conf,
		Precision: make([]float64, numClasses),
		Recall:    make([]float64, numClasses),
	}
	if scored > 0 {
		st.Accuracy = float64(correct) / float64(scored)
	}
	for c := 0; c < numClasses; c++ {
		var colSum, rowSum int
		for r := 0; r < numClasses; r++ {
			colSum += conf[r][c]
			rowSum += conf[c][r]
		}
		if colSum > 0 {
			st.Precision[c] = float64(conf[c][c]) / float64(colSum)
		}
		if rowSum > 0 {
			st.Recall[c] = float64(conf[c][c]) / float64(rowSum)
		}
	}
	return st, nil
}
