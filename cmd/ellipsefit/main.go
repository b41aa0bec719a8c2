// Command ellipsefit fits ellipses to segmented objects. It reads a label
// image and a CSV of object centers, extracts boundary point candidates with
// the chosen strategy, runs the label-aware RANSAC per object, and writes
// the fitted parameters plus an instance overlay image.
//
// Usage: ellipsefit -segm segm.png -centers centers.csv [flags]
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"cell-segm/internal/ellipse"
	"cell-segm/internal/imgproc"
	"cell-segm/pkg/geometry"
)

// fgProbability is the interior-affinity table driving the RANSAC criterion:
// row 0 holds the probability of each segmentation class belonging inside an
// object, row 1 the complement. Classes follow the ovary annotation order
// (background, follicle, nucleus, cytoplasm).
var fgProbability = [][]float64{
	{0.01, 0.7, 0.95, 0.8},
	{0.99, 0.3, 0.05, 0.2},
}

func main() {
	segmPath := flag.String("segm", "", "segmentation label image")
	centersPath := flag.String("centers", "", "CSV of object centers as row,col")
	strategy := flag.String("strategy", "ray_edge", "boundary points: ray_join, ray_edge, ray_mean, ray_dist or close")
	minSamples := flag.Float64("min-samples", 0.6, "RANSAC sample size, fraction in (0,1] or absolute count")
	threshold := flag.Float64("threshold", 15, "RANSAC inlier residual threshold in pixels")
	maxTrials := flag.Int("max-trials", 100, "RANSAC iterations per object")
	seed := flag.Int64("seed", 1, "random seed for reproducible sampling")
	overlayPath := flag.String("out", "", "optional instance overlay image")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *segmPath == "" || *centersPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -segm segm.png -centers centers.csv [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if *verbose {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	seg, rows, cols, err := imgproc.LoadAnnotation(*segmPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading segmentation")
	}
	centers, err := loadCenters(*centersPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading centers")
	}
	log.Info().Int("centers", len(centers)).Str("strategy", *strategy).Msg("fitting ellipses")

	groups, err := boundaryPoints(*strategy, seg, rows, cols, centers)
	if err != nil {
		log.Fatal().Err(err).Msg("extracting boundary points")
	}

	// The criterion field pools every candidate point with its class label.
	var pointsAll []geometry.Point2D
	var labels []int
	var weights []float64
	for _, pts := range groups {
		for _, p := range pts {
			pi := p.Round()
			if pi.R < 0 || pi.R >= rows || pi.C < 0 || pi.C >= cols {
				continue
			}
			pointsAll = append(pointsAll, p)
			labels = append(labels, seg[pi.R*cols+pi.C])
			weights = append(weights, 1)
		}
	}

	canvas := make([]int, rows*cols)
	rng := rand.New(rand.NewSource(*seed))
	fitted := 0
	for i, pts := range groups {
		model, _, err := ellipse.RansacSegm(pts, pointsAll, weights, labels,
			fgProbability, *minSamples, *threshold, *maxTrials, rng)
		if err != nil {
			log.Fatal().Err(err).Int("object", i).Msg("ransac failed")
		}
		if model == nil {
			log.Warn().Int("object", i).Int("points", len(pts)).Msg("no ellipse found")
			continue
		}
		p := model.Params()
		fmt.Printf("object %d: center=(%.1f, %.1f) axes=(%.1f, %.1f) theta=%.3f\n",
			i, p[0], p[1], p[2], p[3], p[4])
		model.AddOverlap(canvas, rows, cols, fitted+1, 0.5)
		fitted++
	}
	log.Info().Int("fitted", fitted).Int("objects", len(groups)).Msg("done")

	if *overlayPath != "" {
		img := imgproc.LabelImage(canvas, rows, cols, fitted+1)
		if err := imgproc.Save(img, *overlayPath); err != nil {
			log.Fatal().Err(err).Msg("writing overlay")
		}
	}
}

func boundaryPoints(strategy string, seg []int, rows, cols int, centers []geometry.Point2D) ([][]geometry.Point2D, error) {
	const closeDist = 5
	switch strategy {
	case "ray_join":
		return ellipse.BoundaryPointsRayJoin(seg, rows, cols, centers,
			closeDist, ellipse.DefaultMinDiam, ellipse.DefaultSelBG, ellipse.DefaultSelFG), nil
	case "ray_edge":
		return ellipse.BoundaryPointsRayEdge(seg, rows, cols, centers,
			closeDist, ellipse.DefaultMinDiam, ellipse.DefaultSelBG, ellipse.DefaultSelFG), nil
	case "ray_mean":
		return ellipse.BoundaryPointsRayMean(seg, rows, cols, centers,
			closeDist, ellipse.DefaultMinDiam, ellipse.DefaultSelBG, ellipse.DefaultSelFG), nil
	case "ray_dist":
		return ellipse.BoundaryPointsRayDist(seg, rows, cols, centers,
			closeDist, ellipse.DefaultSelBG, ellipse.DefaultSelFG), nil
	case "close":
		return ellipse.BoundaryPointsClose(seg, rows, cols, centers, 25, 0.3)
	default:
		return nil, fmt.Errorf("unknown boundary strategy %q", strategy)
	}
}

func loadCenters(path string) ([]geometry.Point2D, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	var centers []geometry.Point2D
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want row,col", i+1)
		}
		r, errR := strconv.ParseFloat(rec[0], 64)
		c, errC := strconv.ParseFloat(rec[1], 64)
		if errR != nil || errC != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: non-numeric center", i+1)
		}
		centers = append(centers, geometry.Point2D{R: r, C: c})
	}
	return centers, nil
}
