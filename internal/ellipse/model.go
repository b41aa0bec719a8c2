// Package ellipse fits ellipses to noisy boundary points extracted from
// segmentation masks. The fit is a RANSAC loop whose acceptance criterion is
// agreement with a background/foreground label field rather than plain
// inlier count.
package ellipse

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"cell-segm/pkg/geometry"
)

// ErrInvalidParameter marks malformed numeric arguments. It is a caller bug,
// never retried.
var ErrInvalidParameter = errors.New("ellipse: invalid parameter")

// Model describes a 2-D ellipse in image (row, col) coordinates.
//
// The functional model is
//
//	rt = CenterR + A*cos(Theta)*cos(t) - B*sin(Theta)*sin(t)
//	ct = CenterC + A*sin(Theta)*cos(t) + B*cos(Theta)*sin(t)
//
// where (rt, ct) is a perimeter point at parameter t. A Model mutates only
// through Estimate.
type Model struct {
	CenterR float64
	CenterC float64
	A       float64 // semi-axis along Theta
	B       float64 // semi-axis across Theta
	Theta   float64 // rotation in radians
}

// Params returns the five parameters in (centerR, centerC, a, b, theta) order.
func (m *Model) Params() [5]float64 {
	return [5]float64{m.CenterR, m.CenterC, m.A, m.B, m.Theta}
}

// PerimeterPoints samples n points uniformly in parameter t along the ellipse.
func (m *Model) PerimeterPoints(n int) []geometry.Point2D {
	pts := make([]geometry.Point2D, n)
	sinT, cosT := math.Sincos(m.Theta)
	for i := 0; i < n; i++ {
		t := 2 * math.Pi * float64(i) / float64(n)
		ct, st := math.Cos(t), math.Sin(t)
		pts[i] = geometry.Point2D{
			R: m.CenterR + m.A*cosT*ct - m.B*sinT*st,
			C: m.CenterC + m.A*sinT*ct + m.B*cosT*st,
		}
	}
	return pts
}

// NormalizedRadius maps a point into the squared ellipse-relative radius:
// exactly 1 on the perimeter, below 1 inside.
func (m *Model) NormalizedRadius(p geometry.Point2D) float64 {
	sinT, cosT := math.Sincos(m.Theta)
	dr := p.R - m.CenterR
	dc := p.C - m.CenterC
	u := (dr*cosT + dc*sinT) / m.A
	w := (dr*sinT - dc*cosT) / m.B
	return u*u + w*w
}

// Estimate fits the ellipse to points with a direct algebraic least-squares
// conic solve (no iterations). Points are centered on their centroid first,
// which both conditions the system and guarantees the F=-1 conic
// normalization is safe. Returns false for degenerate input: fewer than five
// distinct points, collinear samples, or a conic that is not an ellipse.
func (m *Model) Estimate(points []geometry.Point2D) bool {
	if countDistinct(points) < 5 {
		return false
	}

	var mr, mc float64
	for _, p := range points {
		mr += p.R
		mc += p.C
	}
	mr /= float64(len(points))
	mc /= float64(len(points))

	// Solve [x^2, xy, y^2, x, y] . coef = 1 in centered coordinates.
	n := len(points)
	design := mat.NewDense(n, 5, nil)
	rhs := mat.NewVecDense(n, nil)
	for i, p := range points {
		x := p.R - mr
		y := p.C - mc
		design.Set(i, 0, x*x)
		design.Set(i, 1, x*y)
		design.Set(i, 2, y*y)
		design.Set(i, 3, x)
		design.Set(i, 4, y)
		rhs.SetVec(i, 1)
	}

	var qr mat.QR
	qr.Factorize(design)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, rhs); err != nil {
		return false
	}

	// Conic a x^2 + b xy + c y^2 + d x + e y + f = 0 with f = -1.
	a := coef.AtVec(0)
	b := coef.AtVec(1)
	c := coef.AtVec(2)
	d := coef.AtVec(3)
	e := coef.AtVec(4)
	f := -1.0

	disc := 4*a*c - b*b
	if disc <= 0 {
		return false // not an ellipse
	}

	// Center solves [2a b; b 2c] [x0 y0]^T = [-d -e]^T.
	x0 := (b*e - 2*c*d) / disc
	y0 := (b*d - 2*a*e) / disc
	f0 := a*x0*x0 + b*x0*y0 + c*y0*y0 + d*x0 + e*y0 + f

	// Eigen-decompose the quadratic form [[a, b/2], [b/2, c]].
	b2 := b / 2
	mean := (a + c) / 2
	spread := math.Sqrt((a-c)*(a-c)/4 + b2*b2)
	l1 := mean - spread
	l2 := mean + spread

	axis1 := -f0 / l1
	axis2 := -f0 / l2
	if axis1 <= 0 || axis2 <= 0 {
		return false
	}
	axis1 = math.Sqrt(axis1)
	axis2 = math.Sqrt(axis2)

	var theta float64
	if math.Abs(b2) > 1e-12 {
		theta = math.Atan2(l1-a, b2)
	} else if a > c {
		theta = math.Pi / 2
	}
	// Normalize rotation into [0, pi).
	theta = math.Mod(theta, math.Pi)
	if theta < 0 {
		theta += math.Pi
	}

	if !isFinite(axis1) || !isFinite(axis2) || !isFinite(theta) {
		return false
	}

	m.CenterR = x0 + mr
	m.CenterC = y0 + mc
	m.A = axis1
	m.B = axis2
	m.Theta = theta
	return true
}

// Residuals returns the approximate geometric distance of every point to the
// ellipse, found by Newton iteration on the closest perimeter parameter.
func (m *Model) Residuals(points []geometry.Point2D) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = m.distance(p)
	}
	return out
}

func (m *Model) distance(p geometry.Point2D) float64 {
	sinT, cosT := math.Sincos(m.Theta)
	dr := p.R - m.CenterR
	dc := p.C - m.CenterC
	// Point in the ellipse frame.
	u := dr*cosT + dc*sinT
	w := -dr*sinT + dc*cosT

	t := math.Atan2(w/m.B, u/m.A)
	for iter := 0; iter < 50; iter++ {
		ct, st := math.Cos(t), math.Sin(t)
		ex := m.A*ct - u
		ey := m.B*st - w
		grad := -ex*m.A*st + ey*m.B*ct
		hess := m.A*m.A*st*st + m.B*m.B*ct*ct - ex*m.A*ct - ey*m.B*st
		if math.Abs(grad) < 1e-12 {
			break
		}
		if hess <= 1e-12 {
			t -= grad * 1e-3 // fall back to a damped gradient step
			continue
		}
		t -= grad / hess
	}
	ct, st := math.Cos(t), math.Sin(t)
	ex := m.A*ct - u
	ey := m.B*st - w
	return math.Sqrt(ex*ex + ey*ey)
}

// Criterion scores label agreement between the ellipse interior and a
// labeled point field. tableProb[0][c] is the probability that class c
// belongs to an object interior and tableProb[1][c] that it belongs outside.
// For every field point whose normalized radius is <= 1 the score gains
//
//	weight * (-log(tableProb[0][class]) + log(tableProb[1][class]))
//
// so interiors covering interior-affine classes drive the score down. Lower
// is better. Each point contributes with its own weight.
//
// Precondition: all tableProb entries must be strictly positive so the log
// costs stay finite; the estimator validates rather than clamps.
func (m *Model) Criterion(points []geometry.Point2D, weights []float64, labels []int, tableProb [][]float64) (float64, error) {
	if len(points) != len(weights) || len(points) != len(labels) {
		return 0, fmt.Errorf("%w: %d points, %d weights, %d labels",
			ErrInvalidParameter, len(points), len(weights), len(labels))
	}
	if err := validateTable(tableProb); err != nil {
		return 0, err
	}
	numClasses := len(tableProb[0])

	var residual float64
	for i, p := range points {
		if m.NormalizedRadius(p) > 1 {
			continue
		}
		lb := labels[i]
		if lb < 0 || lb >= numClasses {
			return 0, fmt.Errorf("%w: label %d exceeds cost table width %d",
				ErrInvalidParameter, lb, numClasses)
		}
		q0 := -math.Log(tableProb[0][lb])
		q1 := -math.Log(tableProb[1][lb])
		residual += weights[i] * (q0 - q1)
	}
	return residual, nil
}

func validateTable(tableProb [][]float64) error {
	if len(tableProb) != 2 || len(tableProb[0]) == 0 || len(tableProb[0]) != len(tableProb[1]) {
		return fmt.Errorf("%w: cost table must be 2 x C", ErrInvalidParameter)
	}
	for _, row := range tableProb {
		for _, v := range row {
			if !(v > 0) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: cost table probabilities must be positive and finite",
					ErrInvalidParameter)
			}
		}
	}
	return nil
}

func countDistinct(points []geometry.Point2D) int {
	seen := make(map[geometry.Point2D]struct{}, len(points))
	for _, p := range points {
		seen[p] = struct{}{}
	}
	return len(seen)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
