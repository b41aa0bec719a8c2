// Package pipeline composes the segmentation stages into end-to-end training
// and prediction flows: superpixels, features, classification, and graph-cut
// regularization over the superpixel adjacency graph.
package pipeline

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/classify"
	"cell-segm/internal/config"
	"cell-segm/internal/dataset"
	"cell-segm/internal/features"
	"cell-segm/internal/graphcut"
	"cell-segm/internal/imgproc"
	"cell-segm/internal/labeling"
	"cell-segm/internal/superpixel"
)

// Result is the segmentation of one image.
type Result struct {
	Superpixels *superpixel.Map
	Labels      []int      // per superpixel
	Pixels      []int      // per pixel, projected from Labels
	Proba       *mat.Dense // nil when the classifier has no probability output
}

// Segmenter applies a trained classifier to new images. The value is
// read-only after construction, so one Segmenter can serve concurrent
// goroutines.
type Segmenter struct {
	Classifier  classify.Classifier
	Params      config.Params
	Transitions *mat.Dense // learned pairwise penalty, nil for Potts
	Log         zerolog.Logger
}

// SegmentImage runs the full prediction pipeline on one image.
//
// When the classifier exposes probabilities the superpixel labels come from
// a graph-cut energy minimization; otherwise the hard predictions are used
// directly and the regularization stage is skipped with a warning.
func (s *Segmenter) SegmentImage(img image.Image) (*Result, error) {
	slicParams := superpixel.DefaultParams()
	slicParams.Size = s.Params.SlicSize
	slicParams.Compactness = s.Params.SlicRegul

	spx, err := superpixel.Segment(img, slicParams)
	if err != nil {
		return nil, fmt.Errorf("superpixel segmentation: %w", err)
	}
	feats, _, err := features.Extract(img, spx, s.Params.Features)
	if err != nil {
		return nil, fmt.Errorf("feature extraction: %w", err)
	}

	res := &Result{Superpixels: spx}

	prob, ok := s.Classifier.(classify.Probabilistic)
	if !ok {
		s.Log.Warn().
			Str("classifier", fmt.Sprintf("%T", s.Classifier)).
			Msg("classifier has no probability output, skipping graph-cut regularization")
		labels, err := s.Classifier.Predict(feats)
		if err != nil {
			return nil, fmt.Errorf("classification: %w", err)
		}
		res.Labels = labels
		res.Pixels = labeling.ProjectToPixels(spx, labels)
		return res, nil
	}

	proba, err := prob.PredictProba(feats)
	if err != nil {
		return nil, fmt.Errorf("classification: %w", err)
	}
	res.Proba = proba

	g := superpixel.BuildGraph(spx)
	opts := graphcut.Options{
		Regul:       s.Params.GCRegul,
		Transitions: s.Transitions,
	}
	switch s.Params.GCEdgeType {
	case "model":
		opts.EdgeWeights = graphcut.ModelEdgeWeights(g, feats)
	case "model_img":
		gray, _, _ := imgproc.GrayChannel(img)
		opts.EdgeWeights = graphcut.IntensityEdgeWeights(g, meanIntensity(spx, gray))
	}
	labels, err := graphcut.Segment(g, proba, opts)
	if err != nil {
		return nil, fmt.Errorf("graph-cut regularization: %w", err)
	}
	res.Labels = labels
	res.Pixels = labeling.ProjectToPixels(spx, labels)
	return res, nil
}

// meanIntensity averages the grayscale channel inside every superpixel,
// feeding the intensity flavor of the model edge policy.
func meanIntensity(m *superpixel.Map, gray []float64) []float64 {
	sums := make([]float64, m.NumSegments())
	counts := make([]float64, len(sums))
	for idx, id := range m.Labels {
		sums[id] += gray[idx]
		counts[id]++
	}
	for i := range sums {
		sums[i] /= counts[i]
	}
	return sums
}

// TrainInput is one annotated training image. Annot holds a per-pixel class
// in row-major order matching the image shape.
type TrainInput struct {
	Image image.Image
	Annot []int
}

// PrepareTraining runs the per-image half of training: superpixels,
// features, and superpixel training labels by majority annotation overlap
// filtered with the purity threshold. The result is cachable, so repeated
// training runs can skip this stage.
func PrepareTraining(img image.Image, annot []int, imagePath string, params config.Params, numClasses int) (*dataset.Features, error) {
	slicParams := superpixel.DefaultParams()
	slicParams.Size = params.SlicSize
	slicParams.Compactness = params.SlicRegul

	spx, err := superpixel.Segment(img, slicParams)
	if err != nil {
		return nil, fmt.Errorf("superpixel segmentation: %w", err)
	}
	feats, names, err := features.Extract(img, spx, params.Features)
	if err != nil {
		return nil, fmt.Errorf("feature extraction: %w", err)
	}
	hist, err := labeling.OverlapHistogram(spx, annot, numClasses)
	if err != nil {
		return nil, fmt.Errorf("label overlap: %w", err)
	}
	labels := labeling.ApplyPurity(labeling.Argmax(hist), hist, params.LabelPurity)
	return dataset.NewFeatures(imagePath, spx, feats, names, labels), nil
}

// Train builds a Segmenter from annotated images. With transition learning
// enabled the pairwise penalty matrix is estimated from the training label
// adjacency.
func Train(inputs []TrainInput, params config.Params, log zerolog.Logger) (*Segmenter, error) {
	numClasses := params.NumClasses
	if numClasses <= 0 {
		for _, in := range inputs {
			for _, lb := range in.Annot {
				if lb+1 > numClasses {
					numClasses = lb + 1
				}
			}
		}
	}
	params.NumClasses = numClasses

	items := make([]*dataset.Features, len(inputs))
	for i, in := range inputs {
		item, err := PrepareTraining(in.Image, in.Annot, "", params, numClasses)
		if err != nil {
			return nil, fmt.Errorf("training image %d: %w", i, err)
		}
		items[i] = item
		log.Debug().Int("image", i).Int("superpixels", len(item.SuperpixelLabels)).Msg("training image prepared")
	}
	return TrainFromFeatures(items, params, log)
}

// TrainFromFeatures fits the classifier (and optionally the transition
// penalties) from prepared per-image features, fresh or from cache.
func TrainFromFeatures(items []*dataset.Features, params config.Params, log zerolog.Logger) (*Segmenter, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no training images")
	}
	numClasses := params.NumClasses
	if numClasses <= 0 {
		for _, item := range items {
			for _, lb := range item.SuperpixelLabels {
				if lb+1 > numClasses {
					numClasses = lb + 1
				}
			}
		}
		params.NumClasses = numClasses
	}

	var (
		labelSets [][]int
		maps      []*superpixel.Map
		totalRows int
		numFeat   int
	)
	featBlocks := make([]*mat.Dense, len(items))
	for i, item := range items {
		featBlocks[i] = item.FeatureMatrix()
		k, nf := featBlocks[i].Dims()
		labelSets = append(labelSets, item.SuperpixelLabels)
		maps = append(maps, item.Superpixels())
		totalRows += k
		numFeat = nf
	}

	pooledFeats := mat.NewDense(totalRows, numFeat, nil)
	pooledLabels := make([]int, 0, totalRows)
	row := 0
	buf := make([]float64, numFeat)
	for bi, block := range featBlocks {
		k, _ := block.Dims()
		for i := 0; i < k; i++ {
			mat.Row(buf, i, block)
			pooledFeats.SetRow(row, buf)
			row++
		}
		pooledLabels = append(pooledLabels, labelSets[bi]...)
	}

	clf, err := fitClassifier(params.Classifier, pooledFeats, pooledLabels)
	if err != nil {
		return nil, err
	}

	var transitions *mat.Dense
	if params.GCUseTransitions {
		counts, err := graphcut.CountTransitions(maps, labelSets, numClasses)
		if err != nil {
			return nil, fmt.Errorf("learning label transitions: %w", err)
		}
		transitions = graphcut.TransitionPenalty(counts)
	}

	log.Info().
		Int("images", len(items)).
		Int("rows", totalRows).
		Int("classes", numClasses).
		Str("classifier", params.Classifier).
		Msg("training finished")

	return &Segmenter{
		Classifier:  clf,
		Params:      params,
		Transitions: transitions,
		Log:         log,
	}, nil
}

func fitClassifier(kind string, feats *mat.Dense, labels []int) (classify.Classifier, error) {
	switch kind {
	case "gaussian", "":
		clf := &classify.Gaussian{}
		if err := clf.Fit(feats, labels); err != nil {
			return nil, fmt.Errorf("fitting gaussian classifier: %w", err)
		}
		return clf, nil
	case "centroid":
		clf := &classify.NearestCentroid{}
		if err := clf.Fit(feats, labels); err != nil {
			return nil, fmt.Errorf("fitting centroid classifier: %w", err)
		}
		return clf, nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", kind)
	}
}
