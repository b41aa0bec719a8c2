// Command segmpredict segments microscopy images with a trained model
// bundle. Images are processed concurrently by a worker pool; each result is
// written next to the output directory as a color label image.
//
// Usage: segmpredict -model model.json -out dir image...
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"cell-segm/internal/classify"
	"cell-segm/internal/imgproc"
	"cell-segm/internal/labeling"
	"cell-segm/internal/pipeline"
)

func main() {
	modelPath := flag.String("model", "", "trained model bundle from segmtrain")
	outDir := flag.String("out", "segm_out", "output directory for label images")
	annotDir := flag.String("annot-dir", "", "directory of annotations to score against (matched by image name)")
	workers := flag.Int("workers", 0, "concurrent images (0 uses the trained parameter)")
	gcRegul := flag.Float64("gc-regul", -1, "override graph-cut regularization (negative keeps the trained value)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *modelPath == "" || flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s -model model.json -out dir image...\n\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if *verbose {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	clf, params, transitions, err := classify.LoadBundle(*modelPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading model bundle")
	}
	params = params.LoadEnv()
	if *gcRegul >= 0 {
		params.GCRegul = *gcRegul
	}

	seg := &pipeline.Segmenter{
		Classifier:  clf,
		Params:      params,
		Transitions: transitions,
		Log:         log,
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("creating output directory")
	}

	poolSize := *workers
	if poolSize <= 0 {
		poolSize = params.Workers
	}
	results := seg.SegmentBatch(flag.Args(), poolSize)

	var eval *csv.Writer
	if *annotDir != "" {
		f, err := os.Create(filepath.Join(*outDir, "evaluation.csv"))
		if err != nil {
			log.Fatal().Err(err).Msg("creating evaluation file")
		}
		defer f.Close()
		eval = csv.NewWriter(f)
		defer eval.Flush()
		_ = eval.Write([]string{"image", "accuracy"})
	}

	failures := 0
	for _, br := range results {
		if br.Err != nil {
			failures++
			continue
		}
		spx := br.Result.Superpixels
		out := imgproc.LabelImage(br.Result.Pixels, spx.Rows, spx.Cols, params.NumClasses)
		name := strings.TrimSuffix(filepath.Base(br.Path), filepath.Ext(br.Path))
		dest := filepath.Join(*outDir, name+"_segm.png")
		if err := imgproc.Save(out, dest); err != nil {
			log.Error().Err(err).Str("image", br.Path).Msg("writing segmentation")
			failures++
			continue
		}
		log.Info().Str("image", br.Path).Str("segm", dest).
			Int("superpixels", spx.NumSegments()).Msg("image segmented")

		if eval != nil {
			st, err := scoreAgainstAnnotation(br, *annotDir, name, params.NumClasses)
			if err != nil {
				log.Warn().Err(err).Str("image", br.Path).Msg("skipping evaluation")
				continue
			}
			_ = eval.Write([]string{name, strconv.FormatFloat(st.Accuracy, 'f', 4, 64)})
			log.Info().Str("image", br.Path).Float64("accuracy", st.Accuracy).Msg("scored against annotation")
		}
	}
	if failures > 0 {
		log.Warn().Int("failed", failures).Int("total", len(results)).Msg("batch finished with failures")
		os.Exit(1)
	}
}

// scoreAgainstAnnotation looks up an annotation image with the same base name
// as the segmented image and computes the confusion statistics.
func scoreAgainstAnnotation(br pipeline.BatchResult, annotDir, name string, numClasses int) (labeling.Stats, error) {
	var annotPath string
	for _, ext := range []string{".png", ".tif", ".tiff", ".jpg"} {
		p := filepath.Join(annotDir, name+ext)
		if _, err := os.Stat(p); err == nil {
			annotPath = p
			break
		}
	}
	if annotPath == "" {
		return labeling.Stats{}, fmt.Errorf("no annotation for %q in %s", name, annotDir)
	}

	annot, rows, cols, err := imgproc.LoadAnnotation(annotPath)
	if err != nil {
		return labeling.Stats{}, fmt.Errorf("loading annotation: %w", err)
	}
	spx := br.Result.Superpixels
	if rows != spx.Rows || cols != spx.Cols {
		return labeling.Stats{}, fmt.Errorf("annotation shape %dx%d does not match image %dx%d", rows, cols, spx.Rows, spx.Cols)
	}
	return labeling.Evaluate(br.Result.Pixels, annot, numClasses)
}
