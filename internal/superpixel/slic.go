package superpixel

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Params controls SLIC segmentation.
type Params struct {
	Size        int     // approximate superpixel size in pixels
	Compactness float64 // relative spatial regularization in [0, 1]
	Iterations  int     // k-means refinement passes
	SmoothSigma float64 // Gaussian pre-smoothing applied to image input
}

// DefaultParams returns SLIC parameters tuned for microscopy slices.
func DefaultParams() Params {
	return Params{
		Size:        35,
		Compactness: 0.3,
		Iterations:  10,
		SmoothSigma: 1.5,
	}
}

// cluster is one SLIC center: feature vector plus spatial position.
type cluster struct {
	feat []float64
	r, c float64
}

// Segment runs SLIC on a color image. Pixels are clustered in CIE-Lab space
// plus (row, col), so perceptually similar neighborhoods end up in one
// superpixel.
func Segment(img image.Image, p Params) (*Map, error) {
	if p.SmoothSigma > 0 {
		img = blur.Gaussian(img, p.SmoothSigma)
	}
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()

	channels := make([][]float64, 3)
	for i := range channels {
		channels[i] = make([]float64, rows*cols)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cr, cg, cb, _ := img.At(bounds.Min.X+c, bounds.Min.Y+r).RGBA()
			col := colorful.Color{
				R: float64(cr) / 65535.0,
				G: float64(cg) / 65535.0,
				B: float64(cb) / 65535.0,
			}
			l, a, b := col.Lab()
			idx := r*cols + c
			// go-colorful returns L in [0,1]; scale to the conventional 0-100
			// so the compactness term is comparable to standard SLIC.
			channels[0][idx] = l * 100.0
			channels[1][idx] = a * 100.0
			channels[2][idx] = b * 100.0
		}
	}
	return SegmentChannels(channels, rows, cols, p)
}

// SegmentGray runs SLIC on a single-channel image. Values are rescaled to a
// 0-100 range first so the compactness trade-off matches the color path.
func SegmentGray(gray []float64, rows, cols int, p Params) (*Map, error) {
	if len(gray) != rows*cols {
		return nil, fmt.Errorf("gray channel has %d values, want %d", len(gray), rows*cols)
	}
	maxV := 0.0
	for _, v := range gray {
		if v > maxV {
			maxV = v
		}
	}
	scaled := make([]float64, len(gray))
	if maxV > 0 {
		for i, v := range gray {
			scaled[i] = v / maxV * 100.0
		}
	}
	return SegmentChannels([][]float64{scaled}, rows, cols, p)
}

// SegmentChannels is the generic SLIC core over per-pixel feature channels
// (each channel row-major with rows*cols values).
func SegmentChannels(channels [][]float64, rows, cols int, p Params) (*Map, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid image shape %dx%d", rows, cols)
	}
	if p.Size <= 0 {
		return nil, fmt.Errorf("superpixel size must be positive, got %d", p.Size)
	}
	if p.Compactness < 0 || p.Compactness > 1 {
		return nil, fmt.Errorf("compactness %g outside [0, 1]", p.Compactness)
	}
	iterations := p.Iterations
	if iterations <= 0 {
		iterations = 10
	}

	step := int(math.Sqrt(float64(p.Size)) + 0.5)
	if step < 1 {
		step = 1
	}

	nf := len(channels)
	featAt := func(idx int) []float64 {
		f := make([]float64, nf)
		for i := range channels {
			f[i] = channels[i][idx]
		}
		return f
	}

	// Seed cluster centers on a regular grid, offset to the cell middle.
	var clusters []cluster
	for r := step / 2; r < rows; r += step {
		for c := step / 2; c < cols; c += step {
			clusters = append(clusters, cluster{
				feat: featAt(r*cols + c),
				r:    float64(r),
				c:    float64(c),
			})
		}
	}
	if len(clusters) == 0 {
		clusters = append(clusters, cluster{feat: featAt(0)})
	}

	labels := make([]int, rows*cols)
	dists := make([]float64, rows*cols)

	// Relative compactness maps to the absolute SLIC m as m = compactness*step,
	// which reduces the distance to d_feat^2 + compactness^2 * d_xy^2.
	wSpatial := p.Compactness * p.Compactness

	for it := 0; it < iterations; it++ {
		for i := range dists {
			dists[i] = math.Inf(1)
			labels[i] = 0
		}

		// Assignment: each center claims pixels within a 2S x 2S window.
		for ci, cl := range clusters {
			rMin := int(cl.r) - 2*step
			rMax := int(cl.r) + 2*step
			cMin := int(cl.c) - 2*step
			cMax := int(cl.c) + 2*step
			if rMin < 0 {
				rMin = 0
			}
			if cMin < 0 {
				cMin = 0
			}
			if rMax >= rows {
				rMax = rows - 1
			}
			if cMax >= cols {
				cMax = cols - 1
			}

			for r := rMin; r <= rMax; r++ {
				for c := cMin; c <= cMax; c++ {
					idx := r*cols + c
					var df float64
					for f := 0; f < nf; f++ {
						d := channels[f][idx] - cl.feat[f]
						df += d * d
					}
					dr := float64(r) - cl.r
					dc := float64(c) - cl.c
					d := df + wSpatial*(dr*dr+dc*dc)
					if d < dists[idx] {
						dists[idx] = d
						labels[idx] = ci
					}
				}
			}
		}

		// Update: recompute centers from their assigned pixels.
		sumFeat := make([][]float64, len(clusters))
		sumR := make([]float64, len(clusters))
		sumC := make([]float64, len(clusters))
		count := make([]float64, len(clusters))
		for i := range sumFeat {
			sumFeat[i] = make([]float64, nf)
		}
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				idx := r*cols + c
				ci := labels[idx]
				for f := 0; f < nf; f++ {
					sumFeat[ci][f] += channels[f][idx]
				}
				sumR[ci] += float64(r)
				sumC[ci] += float64(c)
				count[ci]++
			}
		}
		for ci := range clusters {
			if count[ci] == 0 {
				continue
			}
			for f := 0; f < nf; f++ {
				clusters[ci].feat[f] = sumFeat[ci][f] / count[ci]
			}
			clusters[ci].r = sumR[ci] / count[ci]
			clusters[ci].c = sumC[ci] / count[ci]
		}
	}

	m := &Map{Rows: rows, Cols: cols, Labels: enforceConnectivity(labels, rows, cols, p.Size)}
	return m, nil
}

// enforceConnectivity relabels the raw k-means assignment into contiguous
// connected superpixels. Fragments smaller than a quarter of the target size
// are absorbed into an already-labeled neighbor, so every pixel keeps an id
// and ids stay contiguous from zero.
func enforceConnectivity(labels []int, rows, cols, size int) []int {
	minSize := size / 4
	if minSize < 1 {
		minSize = 1
	}

	out := make([]int, len(labels))
	for i := range out {
		out[i] = -1
	}

	dr := []int{-1, 0, 1, 0}
	dc := []int{0, -1, 0, 1}
	next := 0
	queue := make([]int, 0, size*4)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			start := r*cols + c
			if out[start] >= 0 {
				continue
			}

			// Remember a previously labeled neighbor to absorb fragments into.
			adj := -1
			for d := 0; d < 4; d++ {
				nr, nc := r+dr[d], c+dc[d]
				if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
					continue
				}
				if out[nr*cols+nc] >= 0 {
					adj = out[nr*cols+nc]
					break
				}
			}

			// Flood fill the component of equal raw labels.
			queue = queue[:0]
			queue = append(queue, start)
			out[start] = next
			for qi := 0; qi < len(queue); qi++ {
				cur := queue[qi]
				cr, cc := cur/cols, cur%cols
				for d := 0; d < 4; d++ {
					nr, nc := cr+dr[d], cc+dc[d]
					if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
						continue
					}
					nidx := nr*cols + nc
					if out[nidx] < 0 && labels[nidx] == labels[start] {
						out[nidx] = next
						queue = append(queue, nidx)
					}
				}
			}

			if len(queue) < minSize && adj >= 0 {
				for _, idx := range queue {
					out[idx] = adj
				}
			} else {
				next++
			}
		}
	}

	return out
}
