package ellipse

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"cell-segm/internal/superpixel"
	"cell-segm/pkg/geometry"
)

// Default knobs for boundary point extraction, sized for eggs a few hundred
// pixels across.
const (
	DefaultAngleStep = 5.0 // degrees between consecutive rays
	DefaultMinDiam   = 25.0
	DefaultSelBG     = 15 // disk radius smoothing the background mask
	DefaultSelFG     = 5  // disk radius smoothing the foreground mask
)

// SplitBackgroundForeground derives two cleaned binary masks from a
// segmentation: the background (complement of the hole-filled nonzero
// region) and the foreground (class 1), each smoothed with a morphological
// disk opening of the given radius. Radius zero skips the opening.
func SplitBackgroundForeground(seg []int, rows, cols, selBG, selFG int) (bg, fg []bool) {
	nonzero := make([]bool, rows*cols)
	for i, v := range seg {
		nonzero[i] = v > 0
	}
	filled := fillHoles(nonzero, rows, cols)
	bg = make([]bool, rows*cols)
	for i, v := range filled {
		bg[i] = !v
	}
	bg = openDisk(bg, rows, cols, selBG)

	fg = make([]bool, rows*cols)
	for i, v := range seg {
		fg[i] = v == 1
	}
	fg = openDisk(fg, rows, cols, selFG)
	return bg, fg
}

// fillHoles closes interior cavities of a binary mask: background regions
// not connected to the image border are flipped to foreground.
func fillHoles(mask []bool, rows, cols int) []bool {
	reached := make([]bool, rows*cols)
	queue := make([]int, 0, 2*(rows+cols))
	push := func(r, c int) {
		idx := r*cols + c
		if !mask[idx] && !reached[idx] {
			reached[idx] = true
			queue = append(queue, idx)
		}
	}
	for r := 0; r < rows; r++ {
		push(r, 0)
		push(r, cols-1)
	}
	for c := 0; c < cols; c++ {
		push(0, c)
		push(rows-1, c)
	}
	dr := []int{-1, 0, 1, 0}
	dc := []int{0, -1, 0, 1}
	for qi := 0; qi < len(queue); qi++ {
		r, c := queue[qi]/cols, queue[qi]%cols
		for d := 0; d < 4; d++ {
			nr, nc := r+dr[d], c+dc[d]
			if nr >= 0 && nr < rows && nc >= 0 && nc < cols {
				push(nr, nc)
			}
		}
	}
	out := make([]bool, rows*cols)
	for i := range out {
		out[i] = mask[i] || !reached[i]
	}
	return out
}

// openDisk applies a morphological opening with a disk structuring element of
// the given radius. Radius <= 0 returns the mask unchanged.
func openDisk(mask []bool, rows, cols, radius int) []bool {
	if radius <= 0 {
		return mask
	}
	src := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	defer src.Close()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if mask[r*cols+c] {
				src.SetUCharAt(r, c, 255)
			}
		}
	}
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(2*radius+1, 2*radius+1))
	defer kernel.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.MorphologyEx(src, &dst, gocv.MorphOpen, kernel)

	out := make([]bool, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[r*cols+c] = dst.GetUCharAt(r, c) > 0
		}
	}
	return out
}

// RayEdge selects which mask transition a ray stops at.
type RayEdge int

const (
	// EdgeUp stops where the mask turns true, measuring the distance from a
	// center inside a false region to the surrounding true region.
	EdgeUp RayEdge = iota
	// EdgeDown stops where the mask turns false.
	EdgeDown
)

// RayFeatures casts rays from center every angleStep degrees and returns the
// distance at which each ray crosses the requested mask transition, or -1
// when the ray leaves the image without crossing. Angles are measured from
// the positive row axis toward the positive column axis.
func RayFeatures(mask []bool, rows, cols int, center geometry.Point2D, angleStep float64, edge RayEdge) []float64 {
	n := int(360.0 / angleStep)
	rays := make([]float64, n)
	for i := 0; i < n; i++ {
		a := float64(i) * angleStep * math.Pi / 180.0
		dr, dc := math.Cos(a), math.Sin(a)
		rays[i] = -1
		for dist := 1.0; ; dist++ {
			r := int(math.Round(center.R + dist*dr))
			c := int(math.Round(center.C + dist*dc))
			if r < 0 || r >= rows || c < 0 || c >= cols {
				break
			}
			v := mask[r*cols+c]
			if (edge == EdgeUp && v) || (edge == EdgeDown && !v) {
				rays[i] = dist
				break
			}
		}
	}
	return rays
}

// ReconstructRayPoints maps ray distances back to 2-D points around the
// center, skipping rays that never found an edge. The angle layout must
// match the RayFeatures call that produced the distances.
func ReconstructRayPoints(center geometry.Point2D, rays []float64, angleStep float64) []geometry.Point2D {
	pts := make([]geometry.Point2D, 0, len(rays))
	for i, dist := range rays {
		if dist < 0 || math.IsInf(dist, 0) {
			continue
		}
		a := float64(i) * angleStep * math.Pi / 180.0
		pts = append(pts, geometry.Point2D{
			R: center.R + dist*math.Cos(a),
			C: center.C + dist*math.Sin(a),
		})
	}
	return pts
}

// ReduceClosePoints greedily drops points closer than minDist to an already
// kept point, preserving input order. The result contains no pair of points
// within minDist of each other, and running it twice changes nothing.
func ReduceClosePoints(points []geometry.Point2D, minDist float64) []geometry.Point2D {
	kept := make([]geometry.Point2D, 0, len(points))
	for _, p := range points {
		ok := true
		for _, q := range kept {
			if p.Distance(q) < minDist {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, p)
		}
	}
	return kept
}

// clampRays raises every found distance below minDiam to minDiam, keeping
// tiny masks from collapsing the fitted ellipse. Not-found rays stay -1.
func clampRays(rays []float64, minDiam float64) {
	for i, v := range rays {
		if v >= 0 && v < minDiam {
			rays[i] = minDiam
		}
	}
}

// BoundaryPointsRayJoin extracts per-center boundary candidates by casting
// rays against both the background and foreground masks and joining the two
// point sets.
func BoundaryPointsRayJoin(seg []int, rows, cols int, centers []geometry.Point2D,
	closeDist, minDiam float64, selBG, selFG int) [][]geometry.Point2D {

	bg, fg := SplitBackgroundForeground(seg, rows, cols, selBG, selFG)

	out := make([][]geometry.Point2D, len(centers))
	for i, center := range centers {
		rayBG := RayFeatures(bg, rows, cols, center, DefaultAngleStep, EdgeUp)
		clampRays(rayBG, minDiam)
		ptsBG := ReduceClosePoints(ReconstructRayPoints(center, rayBG, DefaultAngleStep), closeDist)

		rayFG := RayFeatures(fg, rows, cols, center, DefaultAngleStep, EdgeDown)
		clampRays(rayFG, minDiam)
		ptsFG := ReduceClosePoints(ReconstructRayPoints(center, rayFG, DefaultAngleStep), closeDist)

		out[i] = append(ptsBG, ptsFG...)
	}
	return out
}

// BoundaryPointsRayEdge takes, per ray direction, the nearer of the
// background and foreground crossings, so the candidate set hugs whichever
// mask edge is closest.
func BoundaryPointsRayEdge(seg []int, rows, cols int, centers []geometry.Point2D,
	closeDist, minDiam float64, selBG, selFG int) [][]geometry.Point2D {

	bg, fg := SplitBackgroundForeground(seg, rows, cols, selBG, selFG)

	out := make([][]geometry.Point2D, len(centers))
	for i, center := range centers {
		rays := combineRays(
			RayFeatures(bg, rows, cols, center, DefaultAngleStep, EdgeUp),
			RayFeatures(fg, rows, cols, center, DefaultAngleStep, EdgeDown),
			minDiam, false)
		out[i] = ReduceClosePoints(ReconstructRayPoints(center, rays, DefaultAngleStep), closeDist)
	}
	return out
}

// BoundaryPointsRayMean averages the background and foreground crossings per
// direction, falling back to the nearer one when only a single mask was hit.
func BoundaryPointsRayMean(seg []int, rows, cols int, centers []geometry.Point2D,
	closeDist, minDiam float64, selBG, selFG int) [][]geometry.Point2D {

	bg, fg := SplitBackgroundForeground(seg, rows, cols, selBG, selFG)

	out := make([][]geometry.Point2D, len(centers))
	for i, center := range centers {
		rays := combineRays(
			RayFeatures(bg, rows, cols, center, DefaultAngleStep, EdgeUp),
			RayFeatures(fg, rows, cols, center, DefaultAngleStep, EdgeDown),
			minDiam, true)
		out[i] = ReduceClosePoints(ReconstructRayPoints(center, rays, DefaultAngleStep), closeDist)
	}
	return out
}

// combineRays merges two ray sets per direction. Not-found entries become
// +Inf so the minimum ignores them; when mean is requested the average is
// used unless one side was missing, in which case the minimum stands in.
func combineRays(a, b []float64, minDiam float64, mean bool) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		ra, rb := a[i], b[i]
		if ra < 0 {
			ra = math.Inf(1)
		} else if ra < minDiam {
			ra = minDiam
		}
		if rb < 0 {
			rb = math.Inf(1)
		} else if rb < minDiam {
			rb = minDiam
		}
		v := math.Min(ra, rb)
		if mean && !math.IsInf(ra, 0) && !math.IsInf(rb, 0) {
			v = (ra + rb) / 2
		}
		out[i] = v
	}
	return out
}

// BoundaryPointsRayDist casts background rays from every center, pools all
// resulting points, and reassigns each point to its nearest center. Unlike
// the other ray strategies a point found from one center can end up
// belonging to another.
func BoundaryPointsRayDist(seg []int, rows, cols int, centers []geometry.Point2D,
	closeDist float64, selBG, selFG int) [][]geometry.Point2D {

	bg, _ := SplitBackgroundForeground(seg, rows, cols, selBG, selFG)

	var pool []geometry.Point2D
	for _, center := range centers {
		rays := RayFeatures(bg, rows, cols, center, DefaultAngleStep, EdgeUp)
		pts := ReduceClosePoints(ReconstructRayPoints(center, rays, DefaultAngleStep), closeDist)
		pool = append(pool, pts...)
	}
	return groupByNearestCenter(pool, centers)
}

// BoundaryPointsClose over-segments the label image itself with SLIC and
// keeps the superpixel centers sitting on the background/foreground border:
// background superpixels with a non-background neighbor and foreground
// superpixels with a background neighbor. Points are then grouped by nearest
// object center.
func BoundaryPointsClose(seg []int, rows, cols int, centers []geometry.Point2D,
	spSize int, spCompactness float64) ([][]geometry.Point2D, error) {

	maxV := 0
	for _, v := range seg {
		if v > maxV {
			maxV = v
		}
	}
	gray := make([]float64, len(seg))
	if maxV > 0 {
		for i, v := range seg {
			gray[i] = float64(v) / float64(maxV)
		}
	}
	p := superpixel.DefaultParams()
	p.Size = spSize
	p.Compactness = spCompactness
	p.SmoothSigma = 0
	spx, err := superpixel.SegmentGray(gray, rows, cols, p)
	if err != nil {
		return nil, err
	}
	return groupByNearestCenter(filterBoundaryPoints(seg, spx), centers), nil
}

// filterBoundaryPoints keeps superpixel centers adjacent to the opposite
// class: label-0 centers with any nonzero neighbor, label-1 centers with any
// zero neighbor.
func filterBoundaryPoints(seg []int, spx *superpixel.Map) []geometry.Point2D {
	centers := spx.Centers()
	labels := make([]int, len(centers))
	for i, c := range centers {
		labels[i] = seg[int(c.R)*spx.Cols+int(c.C)]
	}

	g := superpixel.BuildGraph(spx)
	hasBGNeighbor := make([]bool, len(centers))
	hasFGNeighbor := make([]bool, len(centers))
	for _, e := range g.Edges {
		if labels[e.B] == 0 {
			hasBGNeighbor[e.A] = true
		} else {
			hasFGNeighbor[e.A] = true
		}
		if labels[e.A] == 0 {
			hasBGNeighbor[e.B] = true
		} else {
			hasFGNeighbor[e.B] = true
		}
	}

	var pts []geometry.Point2D
	for i, c := range centers {
		if (labels[i] == 0 && hasFGNeighbor[i]) || (labels[i] == 1 && hasBGNeighbor[i]) {
			pts = append(pts, c)
		}
	}
	return pts
}

// groupByNearestCenter buckets points by their nearest center, first index
// winning ties. Centers attracting no point get an empty bucket.
func groupByNearestCenter(points, centers []geometry.Point2D) [][]geometry.Point2D {
	out := make([][]geometry.Point2D, len(centers))
	if len(centers) == 0 {
		return out
	}
	for _, p := range points {
		i := geometry.NearestIndex(p, centers)
		out[i] = append(out[i], p)
	}
	return out
}
