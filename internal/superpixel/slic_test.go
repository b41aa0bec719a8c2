package superpixel

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoToneImage builds an image split into a dark left half and bright right
// half, an easy target for any superpixel method.
func twoToneImage(rows, cols int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := uint8(40)
			if c >= cols/2 {
				v = 220
			}
			img.SetRGBA(c, r, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestSegmentCoversEveryPixel(t *testing.T) {
	p := Params{Size: 25, Compactness: 0.3, Iterations: 5}
	m, err := Segment(twoToneImage(60, 80), p)
	require.NoError(t, err)

	require.Equal(t, 60, m.Rows)
	require.Equal(t, 80, m.Cols)
	require.Len(t, m.Labels, 60*80)
	for idx, id := range m.Labels {
		assert.GreaterOrEqual(t, id, 0, "pixel %d must be assigned", idx)
	}
	assert.NoError(t, m.Validate(), "ids must be contiguous from zero")
}

func TestSegmentConnectivity(t *testing.T) {
	p := Params{Size: 25, Compactness: 0.2, Iterations: 5}
	m, err := Segment(twoToneImage(50, 50), p)
	require.NoError(t, err)

	// Flood fill each superpixel from one seed; every pixel of the id must
	// be reachable, i.e. each superpixel is a single connected component.
	k := m.NumSegments()
	seen := make([]bool, len(m.Labels))
	components := make([]int, k)
	dr := []int{-1, 0, 1, 0}
	dc := []int{0, -1, 0, 1}
	for idx := range m.Labels {
		if seen[idx] {
			continue
		}
		id := m.Labels[idx]
		components[id]++
		queue := []int{idx}
		seen[idx] = true
		for qi := 0; qi < len(queue); qi++ {
			r, c := queue[qi]/m.Cols, queue[qi]%m.Cols
			for d := 0; d < 4; d++ {
				nr, nc := r+dr[d], c+dc[d]
				if nr < 0 || nr >= m.Rows || nc < 0 || nc >= m.Cols {
					continue
				}
				nidx := nr*m.Cols + nc
				if !seen[nidx] && m.Labels[nidx] == id {
					seen[nidx] = true
					queue = append(queue, nidx)
				}
			}
		}
	}
	for id, n := range components {
		assert.Equal(t, 1, n, "superpixel %d must be connected", id)
	}
}

func TestSegmentGrayRespectsIntensityBoundary(t *testing.T) {
	const rows, cols = 40, 40
	gray := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c >= cols/2 {
				gray[r*cols+c] = 1
			}
		}
	}
	m, err := SegmentGray(gray, rows, cols, Params{Size: 30, Compactness: 0.2, Iterations: 5})
	require.NoError(t, err)

	// Superpixels should follow the sharp intensity boundary; small fragment
	// absorption may leak a few pixels across, never a substantial share.
	for id := 0; id < m.NumSegments(); id++ {
		dark, bright := 0, 0
		for idx, lb := range m.Labels {
			if lb != id {
				continue
			}
			if gray[idx] > 0 {
				bright++
			} else {
				dark++
			}
		}
		minority := dark
		if bright < dark {
			minority = bright
		}
		assert.LessOrEqual(t, minority, (dark+bright)/10+1,
			"superpixel %d mixes %d dark and %d bright pixels", id, dark, bright)
	}
}

func TestSegmentParameterValidation(t *testing.T) {
	_, err := SegmentChannels([][]float64{make([]float64, 100)}, 10, 10, Params{Size: 0})
	assert.Error(t, err, "size must be positive")

	_, err = SegmentChannels([][]float64{make([]float64, 100)}, 10, 10,
		Params{Size: 10, Compactness: 1.5})
	assert.Error(t, err, "compactness outside [0, 1]")

	_, err = SegmentGray(make([]float64, 5), 10, 10, Params{Size: 10})
	assert.Error(t, err, "shape mismatch")
}

func TestBuildGraphAdjacency(t *testing.T) {
	// 2x2 blocks on a 4x4 grid: ids 0..3 in reading order.
	m := &Map{Rows: 4, Cols: 4, Labels: []int{
		0, 0, 1, 1,
		0, 0, 1, 1,
		2, 2, 3, 3,
		2, 2, 3, 3,
	}}
	g := BuildGraph(m)

	require.Equal(t, 4, g.NumVertices)
	want := map[Edge]bool{
		{A: 0, B: 1}: true,
		{A: 0, B: 2}: true,
		{A: 1, B: 3}: true,
		{A: 2, B: 3}: true,
	}
	require.Len(t, g.Edges, len(want))
	for _, e := range g.Edges {
		assert.Less(t, e.A, e.B, "edges are stored with A < B")
		assert.True(t, want[e], "unexpected edge %v", e)
	}

	nbrs := g.Neighbors()
	assert.ElementsMatch(t, []int{1, 2}, nbrs[0])
	assert.ElementsMatch(t, []int{0, 3}, nbrs[3])
}

func TestMapCentersAndSizes(t *testing.T) {
	m := &Map{Rows: 2, Cols: 4, Labels: []int{
		0, 0, 1, 1,
		0, 0, 1, 1,
	}}
	sizes := m.Sizes()
	assert.Equal(t, []int{4, 4}, sizes)

	centers := m.Centers()
	require.Len(t, centers, 2)
	assert.InDelta(t, 0.5, centers[0].R, 1e-9)
	assert.InDelta(t, 0.5, centers[0].C, 1e-9)
	assert.InDelta(t, 2.5, centers[1].C, 1e-9)
}
