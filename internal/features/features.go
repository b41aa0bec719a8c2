// Package features computes per-superpixel statistics used as classifier
// input and as graph-cut edge-weighting signals.
package features

import (
	"fmt"
	"image"
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cell-segm/internal/superpixel"
	"cell-segm/pkg/colorutil"
)

// Group names a channel family and the statistics to aggregate over it.
type Group struct {
	Name  string   `json:"name"`
	Stats []string `json:"stats"`
}

// Spec is an ordered feature-set specification. Order matters: the same spec
// always yields the same column ordering, which classifier training and
// prediction both rely on.
type Spec []Group

// DefaultSpec mirrors the minimal feature set used for microscopy slices:
// color statistics plus a small texture descriptor.
func DefaultSpec() Spec {
	return Spec{
		{Name: "color", Stats: []string{"mean", "std", "energy"}},
		{Name: "texture", Stats: []string{"mean"}},
	}
}

// channel is one per-pixel scalar field contributing to the statistics.
type channel struct {
	name   string
	values []float64 // row-major, rows*cols
}

// Extract computes the K x F feature matrix over a color image, one row per
// superpixel id, plus the parallel column-name list.
func Extract(img image.Image, m *superpixel.Map, spec Spec) (*mat.Dense, []string, error) {
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()
	if rows != m.Rows || cols != m.Cols {
		return nil, nil, fmt.Errorf("image %dx%d does not match superpixel map %dx%d",
			rows, cols, m.Rows, m.Cols)
	}

	l := make([]float64, rows*cols)
	a := make([]float64, rows*cols)
	b := make([]float64, rows*cols)
	h := make([]float64, rows*cols)
	s := make([]float64, rows*cols)
	v := make([]float64, rows*cols)
	gray := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			pr, pg, pb, _ := img.At(bounds.Min.X+c, bounds.Min.Y+r).RGBA()
			fr, fg, fb := float64(pr>>8), float64(pg>>8), float64(pb>>8)
			idx := r*cols + c
			col := colorful.Color{R: fr / 255.0, G: fg / 255.0, B: fb / 255.0}
			l[idx], a[idx], b[idx] = col.Lab()
			h[idx], s[idx], v[idx] = colorutil.RGBToHSV(fr, fg, fb)
			gray[idx] = colorutil.Luminance(fr, fg, fb) / 255.0
		}
	}

	groups := map[string][]channel{
		"color": {
			{name: "L", values: l},
			{name: "a", values: a},
			{name: "b", values: b},
		},
		"hsv": {
			{name: "H", values: h},
			{name: "S", values: s},
			{name: "V", values: v},
		},
		"texture": textureChannels(gray, rows, cols),
	}
	return aggregate(groups, m, spec)
}

// ExtractGray computes the feature matrix over a single-channel image.
// The "color" group degenerates to statistics of the intensity band.
func ExtractGray(gray []float64, rows, cols int, m *superpixel.Map, spec Spec) (*mat.Dense, []string, error) {
	if len(gray) != rows*cols {
		return nil, nil, fmt.Errorf("gray channel has %d values, want %d", len(gray), rows*cols)
	}
	if rows != m.Rows || cols != m.Cols {
		return nil, nil, fmt.Errorf("image %dx%d does not match superpixel map %dx%d",
			rows, cols, m.Rows, m.Cols)
	}
	groups := map[string][]channel{
		"color":   {{name: "I", values: gray}},
		"texture": textureChannels(gray, rows, cols),
	}
	return aggregate(groups, m, spec)
}

// textureChannels derives simple texture fields: gradient magnitude and a
// Laplacian response of the intensity band.
func textureChannels(gray []float64, rows, cols int) []channel {
	grad := make([]float64, rows*cols)
	lap := make([]float64, rows*cols)
	at := func(r, c int) float64 {
		if r < 0 {
			r = 0
		}
		if r >= rows {
			r = rows - 1
		}
		if c < 0 {
			c = 0
		}
		if c >= cols {
			c = cols - 1
		}
		return gray[r*cols+c]
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			gr := (at(r+1, c) - at(r-1, c)) / 2
			gc := (at(r, c+1) - at(r, c-1)) / 2
			grad[r*cols+c] = math.Sqrt(gr*gr + gc*gc)
			lap[r*cols+c] = at(r+1, c) + at(r-1, c) + at(r, c+1) + at(r, c-1) - 4*at(r, c)
		}
	}
	return []channel{
		{name: "grad", values: grad},
		{name: "lap", values: lap},
	}
}

// aggregate groups pixel values by superpixel id and computes the requested
// statistics, producing the feature matrix and column names in spec order.
func aggregate(groups map[string][]channel, m *superpixel.Map, spec Spec) (*mat.Dense, []string, error) {
	k := m.NumSegments()

	var names []string
	type colSrc struct {
		ch   channel
		stat string
	}
	var sources []colSrc
	for _, g := range spec {
		chans, ok := groups[g.Name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown feature group %q", g.Name)
		}
		for _, ch := range chans {
			for _, st := range g.Stats {
				if !validStat(st) {
					return nil, nil, fmt.Errorf("unknown statistic %q in group %q", st, g.Name)
				}
				names = append(names, fmt.Sprintf("%s-%s-%s", g.Name, ch.name, st))
				sources = append(sources, colSrc{ch: ch, stat: st})
			}
		}
	}

	// Bucket pixel values per superpixel once per distinct channel.
	buckets := map[string][][]float64{}
	for _, src := range sources {
		if _, ok := buckets[src.ch.name]; ok {
			continue
		}
		b := make([][]float64, k)
		for idx, val := range src.ch.values {
			id := m.Labels[idx]
			b[id] = append(b[id], val)
		}
		buckets[src.ch.name] = b
	}

	out := mat.NewDense(k, len(sources), nil)
	for j, src := range sources {
		b := buckets[src.ch.name]
		for i := 0; i < k; i++ {
			out.Set(i, j, computeStat(src.stat, b[i]))
		}
	}
	return out, names, nil
}

func validStat(name string) bool {
	switch name {
	case "mean", "std", "energy", "median":
		return true
	}
	return false
}

func computeStat(name string, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch name {
	case "mean":
		return stat.Mean(values, nil)
	case "std":
		if len(values) < 2 {
			return 0
		}
		return stat.StdDev(values, nil)
	case "energy":
		var sum float64
		for _, v := range values {
			sum += v * v
		}
		return sum / float64(len(values))
	case "median":
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		return stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}
	return 0
}

// RowDistance returns the Euclidean distance between two feature rows,
// the dissimilarity signal used by model-based graph-cut edge weights.
func RowDistance(features *mat.Dense, i, j int) float64 {
	_, cols := features.Dims()
	var sum float64
	for c := 0; c < cols; c++ {
		d := features.At(i, c) - features.At(j, c)
		sum += d * d
	}
	return math.Sqrt(sum)
}
