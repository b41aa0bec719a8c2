package ellipse

import (
	"fmt"
	"math/rand"

	"cell-segm/pkg/geometry"
)

// RansacSegm fits an ellipse to candidate boundary points by repeated random
// sampling, scoring every trial model against the full label field with
// Model.Criterion instead of counting inliers. The best model is the one with
// the lowest criterion; the inlier mask tracks the largest inlier set seen
// among criterion improvements, and the winning model is re-estimated on
// those inliers at the end.
//
// points are the boundary candidates sampled from; pointsAll, weights, labels
// and tableProb describe the label field the criterion is evaluated on.
// minSamples in (0, 1] is interpreted as a fraction of len(points), values
// above 1 as an absolute sample count. Sampling is with replacement, driven
// by rng so runs are reproducible; a nil rng falls back to a fixed seed.
//
// Returns (nil, nil, nil) when no trial produces a valid model, such as when
// maxTrials is zero or every sample is degenerate.
func RansacSegm(points, pointsAll []geometry.Point2D, weights []float64, labels []int,
	tableProb [][]float64, minSamples, residualThreshold float64, maxTrials int,
	rng *rand.Rand) (*Model, []bool, error) {

	var sampleCount int
	if minSamples > 0 && minSamples <= 1 {
		sampleCount = int(minSamples * float64(len(points)))
	} else {
		sampleCount = int(minSamples)
	}
	if sampleCount < 0 {
		return nil, nil, fmt.Errorf("%w: negative sample count %d", ErrInvalidParameter, sampleCount)
	}
	if maxTrials < 0 {
		return nil, nil, fmt.Errorf("%w: negative trial count %d", ErrInvalidParameter, maxTrials)
	}
	if err := validateTable(tableProb); err != nil {
		return nil, nil, err
	}
	if len(pointsAll) != len(weights) || len(pointsAll) != len(labels) {
		return nil, nil, fmt.Errorf("%w: %d field points, %d weights, %d labels",
			ErrInvalidParameter, len(pointsAll), len(weights), len(labels))
	}
	if len(points) == 0 {
		return nil, nil, nil
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}

	var best trialBest
	sample := make([]geometry.Point2D, sampleCount)
	for trial := 0; trial < maxTrials; trial++ {
		for i := range sample {
			sample[i] = points[rng.Intn(len(points))]
		}

		var model Model
		if !model.Estimate(sample) {
			continue
		}

		crit, err := model.Criterion(pointsAll, weights, labels, tableProb)
		if err != nil {
			return nil, nil, err
		}
		if !best.improves(crit) {
			continue
		}

		inliers := make([]bool, len(points))
		count := 0
		for i, res := range model.Residuals(points) {
			if res < residualThreshold {
				inliers[i] = true
				count++
			}
		}
		best.accept(&model, crit, inliers, count)
	}

	if best.model == nil {
		return nil, nil, nil
	}
	if best.inliers != nil {
		inlierPoints := make([]geometry.Point2D, 0, best.inlierNum)
		for i, in := range best.inliers {
			if in {
				inlierPoints = append(inlierPoints, points[i])
			}
		}
		refit := *best.model
		if refit.Estimate(inlierPoints) {
			best.model = &refit
		}
	}
	return best.model, best.inliers, nil
}

// trialBest tracks the winning trial. The model follows the lowest criterion
// alone; the inlier mask only advances when the criterion improves AND the
// inlier count beats the running maximum, so a later trial can take the model
// while an earlier, larger mask stays in place.
type trialBest struct {
	model     *Model
	criterion float64
	inliers   []bool
	inlierNum int
}

// improves reports whether a trial with the given criterion would become the
// new best model.
func (b *trialBest) improves(criterion float64) bool {
	return b.model == nil || criterion < b.criterion
}

// accept installs a trial that passed the improves check.
func (b *trialBest) accept(m *Model, criterion float64, inliers []bool, count int) {
	b.model = m
	b.criterion = criterion
	if count > b.inlierNum {
		b.inliers = inliers
		b.inlierNum = count
	}
}
