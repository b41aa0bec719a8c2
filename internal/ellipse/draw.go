package ellipse

import (
	"cell-segm/pkg/geometry"
)

// Pixels rasterizes the ellipse interior onto a rows x cols grid: every pixel
// whose normalized radius is strictly below 1 and inside the grid bounds.
// Pixels on the perimeter itself are excluded.
func (m *Model) Pixels(rows, cols int) []geometry.PointInt {
	r0 := int(m.CenterR - maxAxis(m) - 1)
	r1 := int(m.CenterR + maxAxis(m) + 1)
	c0 := int(m.CenterC - maxAxis(m) - 1)
	c1 := int(m.CenterC + maxAxis(m) + 1)
	if r0 < 0 {
		r0 = 0
	}
	if c0 < 0 {
		c0 = 0
	}
	if r1 >= rows {
		r1 = rows - 1
	}
	if c1 >= cols {
		c1 = cols - 1
	}

	var pts []geometry.PointInt
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			p := geometry.Point2D{R: float64(r), C: float64(c)}
			if m.NormalizedRadius(p) < 1 {
				pts = append(pts, geometry.PointInt{R: r, C: c})
			}
		}
	}
	return pts
}

func maxAxis(m *Model) float64 {
	if m.A > m.B {
		return m.A
	}
	return m.B
}

// AddOverlap stamps the ellipse interior onto an instance label canvas with
// the given label, unless the ellipse overlaps any existing instance by more
// than thrOverlap of the smaller region, in which case the canvas is left
// untouched. The overlap ratio for instance lb is
//
//	|mask AND (canvas == lb)| / min(|canvas == lb|, |mask|)
//
// The canvas is modified in place; the return reports whether the stamp was
// applied.
func (m *Model) AddOverlap(canvas []int, rows, cols int, label int, thrOverlap float64) bool {
	mask := m.Pixels(rows, cols)
	if len(mask) == 0 {
		return false
	}

	maxLabel := 0
	instanceSize := make(map[int]int)
	for _, lb := range canvas {
		if lb > 0 {
			instanceSize[lb]++
			if lb > maxLabel {
				maxLabel = lb
			}
		}
	}

	overlap := make(map[int]int)
	for _, p := range mask {
		if lb := canvas[p.R*cols+p.C]; lb > 0 {
			overlap[lb]++
		}
	}

	for lb := 1; lb <= maxLabel; lb++ {
		denom := instanceSize[lb]
		if len(mask) < denom {
			denom = len(mask)
		}
		if denom == 0 {
			continue
		}
		if float64(overlap[lb])/float64(denom) > thrOverlap {
			return false
		}
	}

	for _, p := range mask {
		canvas[p.R*cols+p.C] = label
	}
	return true
}
