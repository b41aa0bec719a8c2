// Command segmtrain trains a superpixel classifier from annotated microscopy
// images. It reads a CSV sample list pairing images with pixel annotations,
// extracts per-superpixel features (optionally through a gzip cache), fits
// the classifier, and writes a model bundle usable by segmpredict.
//
// Usage: segmtrain -list samples.csv -out model.json [flags]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"cell-segm/internal/classify"
	"cell-segm/internal/config"
	"cell-segm/internal/dataset"
	"cell-segm/internal/imgproc"
	"cell-segm/internal/pipeline"
)

func main() {
	defaults := config.Default().LoadEnv()

	listPath := flag.String("list", "", "CSV sample list with path_image,path_annot columns")
	outPath := flag.String("out", "model.json", "output model bundle")
	cacheDir := flag.String("cache", "", "feature cache directory (empty disables caching)")
	classifier := flag.String("classifier", defaults.Classifier, "classifier kind: gaussian or centroid")
	slicSize := flag.Int("slic-size", defaults.SlicSize, "approximate superpixel size in pixels")
	slicRegul := flag.Float64("slic-regul", defaults.SlicRegul, "SLIC relative compactness in [0,1]")
	purity := flag.Float64("purity", defaults.LabelPurity, "training label purity threshold")
	gcRegul := flag.Float64("gc-regul", defaults.GCRegul, "graph-cut regularization strength")
	edgeType := flag.String("edge", defaults.GCEdgeType, "graph-cut edge weighting: const, model or model_img")
	useTrans := flag.Bool("transitions", defaults.GCUseTransitions, "learn label transition penalties")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *listPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -list samples.csv -out model.json [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if *verbose {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	params := defaults
	params.Classifier = *classifier
	params.SlicSize = *slicSize
	params.SlicRegul = *slicRegul
	params.LabelPurity = *purity
	params.GCRegul = *gcRegul
	params.GCEdgeType = *edgeType
	params.GCUseTransitions = *useTrans

	samples, err := dataset.LoadList(*listPath)
	if err != nil {
		log.Fatal().Err(err).Msg("reading sample list")
	}
	log.Info().Int("samples", len(samples)).Str("list", *listPath).Msg("sample list loaded")

	items := make([]*dataset.Features, 0, len(samples))
	for _, s := range samples {
		item, err := prepareSample(s, params, *cacheDir, log)
		if err != nil {
			log.Fatal().Err(err).Str("image", s.ImagePath).Msg("preparing training image")
		}
		items = append(items, item)
	}

	seg, err := pipeline.TrainFromFeatures(items, params, log)
	if err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}

	if err := classify.SaveBundle(*outPath, seg.Classifier, seg.Params, seg.Transitions); err != nil {
		log.Fatal().Err(err).Msg("writing model bundle")
	}
	log.Info().Str("model", *outPath).Msg("model bundle written")
}

// prepareSample returns cached features when available and valid, otherwise
// extracts them from the image and refreshes the cache.
func prepareSample(s dataset.Sample, params config.Params, cacheDir string, log zerolog.Logger) (*dataset.Features, error) {
	if cacheDir != "" {
		cachePath := dataset.CachePath(cacheDir, s.ImagePath)
		if item, err := dataset.LoadCache(cachePath); err == nil {
			log.Debug().Str("cache", cachePath).Msg("features loaded from cache")
			return item, nil
		}
	}

	img, err := imgproc.Load(s.ImagePath)
	if err != nil {
		return nil, err
	}
	annot, rows, cols, err := imgproc.LoadAnnotation(s.AnnotPath)
	if err != nil {
		return nil, err
	}
	if rows != img.Bounds().Dy() || cols != img.Bounds().Dx() {
		return nil, fmt.Errorf("annotation shape %dx%d does not match image %dx%d",
			rows, cols, img.Bounds().Dy(), img.Bounds().Dx())
	}

	item, err := pipeline.PrepareTraining(img, annot, s.ImagePath, params, params.NumClasses)
	if err != nil {
		return nil, err
	}
	if cacheDir != "" {
		cachePath := dataset.CachePath(cacheDir, s.ImagePath)
		if err := dataset.SaveCache(cachePath, item); err != nil {
			log.Warn().Err(err).Str("cache", cachePath).Msg("writing feature cache failed")
		}
	}
	return item, nil
}
