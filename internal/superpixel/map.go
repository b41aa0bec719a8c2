// Package superpixel partitions 2-D images into SLIC superpixels and derives
// the adjacency structure consumed by the classification and graph-cut stages.
package superpixel

import (
	"fmt"

	"cell-segm/pkg/geometry"
)

// Map assigns every pixel of an image to a superpixel id in [0, K).
// Ids are contiguous and start at zero. A Map is immutable once built.
type Map struct {
	Rows   int
	Cols   int
	Labels []int // row-major, len Rows*Cols
}

// NewMap allocates a zeroed map of the given shape.
func NewMap(rows, cols int) *Map {
	return &Map{Rows: rows, Cols: cols, Labels: make([]int, rows*cols)}
}

// At returns the superpixel id at pixel (r, c).
func (m *Map) At(r, c int) int {
	return m.Labels[r*m.Cols+c]
}

// NumSegments returns K, the number of superpixels.
func (m *Map) NumSegments() int {
	maxID := -1
	for _, id := range m.Labels {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// Sizes returns the pixel count of every superpixel, indexed by id.
func (m *Map) Sizes() []int {
	sizes := make([]int, m.NumSegments())
	for _, id := range m.Labels {
		sizes[id]++
	}
	return sizes
}

// Centers returns the centroid of every superpixel, indexed by id.
func (m *Map) Centers() []geometry.Point2D {
	k := m.NumSegments()
	sumR := make([]float64, k)
	sumC := make([]float64, k)
	count := make([]float64, k)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			id := m.At(r, c)
			sumR[id] += float64(r)
			sumC[id] += float64(c)
			count[id]++
		}
	}
	centers := make([]geometry.Point2D, k)
	for i := 0; i < k; i++ {
		centers[i] = geometry.Point2D{R: sumR[i] / count[i], C: sumC[i] / count[i]}
	}
	return centers
}

// Validate checks the contiguous-id invariant: every id in [0, K) occurs
// at least once and no id is negative.
func (m *Map) Validate() error {
	k := m.NumSegments()
	seen := make([]bool, k)
	for _, id := range m.Labels {
		if id < 0 || id >= k {
			return fmt.Errorf("superpixel id %d outside [0, %d)", id, k)
		}
		seen[id] = true
	}
	for id, ok := range seen {
		if !ok {
			return fmt.Errorf("superpixel id %d unused, ids must be contiguous", id)
		}
	}
	return nil
}
