// Package geometry provides basic geometric types shared across the
// segmentation pipeline. Points use image (row, column) coordinates.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point row/column coordinates.
type Point2D struct {
	R float64 `json:"r"`
	C float64 `json:"c"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(r, c float64) Point2D {
	return Point2D{R: r, C: c}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dr := p.R - other.R
	dc := p.C - other.C
	return math.Sqrt(dr*dr + dc*dc)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{R: p.R + other.R, C: p.C + other.C}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{R: p.R - other.R, C: p.C - other.C}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{R: p.R * factor, C: p.C * factor}
}

// Round converts a Point2D to the nearest integer pixel.
func (p Point2D) Round() PointInt {
	return PointInt{R: int(math.Round(p.R)), C: int(math.Round(p.C))}
}

// PointInt represents a 2D point with integer row/column coordinates.
type PointInt struct {
	R int `json:"r"`
	C int `json:"c"`
}

// ToFloat converts to Point2D.
func (p PointInt) ToFloat() Point2D {
	return Point2D{R: float64(p.R), C: float64(p.C)}
}

// NearestIndex returns the index of the center closest to p.
// Ties resolve to the first (lowest-index) center.
func NearestIndex(p Point2D, centers []Point2D) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centers {
		if d := p.Distance(c); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
