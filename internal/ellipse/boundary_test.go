package ellipse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cell-segm/pkg/geometry"
)

func TestFillHoles(t *testing.T) {
	const rows, cols = 9, 9
	mask := make([]bool, rows*cols)
	// A square ring with an empty interior.
	for i := 2; i <= 6; i++ {
		mask[2*cols+i] = true
		mask[6*cols+i] = true
		mask[i*cols+2] = true
		mask[i*cols+6] = true
	}

	filled := fillHoles(mask, rows, cols)

	assert.True(t, filled[4*cols+4], "interior must be filled")
	assert.False(t, filled[0], "exterior stays background")
	for i, v := range mask {
		if v {
			assert.True(t, filled[i], "original foreground is preserved")
		}
	}
}

func TestSplitBackgroundForeground(t *testing.T) {
	const rows, cols = 15, 20
	m := Model{CenterR: 7, CenterC: 10, A: 5, B: 8, Theta: 30 * math.Pi / 180}
	seg := make([]int, rows*cols)
	require.True(t, m.AddOverlap(seg, rows, cols, 1, 1.0))

	bg, fg := SplitBackgroundForeground(seg, rows, cols, 0, 0)

	for idx, lb := range seg {
		assert.Equal(t, lb == 1, fg[idx])
		assert.Equal(t, lb == 0, bg[idx], "without holes, background is the complement")
	}
}

func TestRayFeaturesSquare(t *testing.T) {
	const rows, cols = 21, 21
	mask := make([]bool, rows*cols)
	// Everything outside a centered 11x11 square is "background".
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if r < 5 || r > 15 || c < 5 || c > 15 {
				mask[r*cols+c] = true
			}
		}
	}
	center := geometry.Point2D{R: 10, C: 10}

	rays := RayFeatures(mask, rows, cols, center, 90, EdgeUp)
	require.Len(t, rays, 4)
	for i, d := range rays {
		assert.InDelta(t, 6, d, 0.5, "axis-aligned ray %d", i)
	}

	// A mask with no edge to find: every ray reports -1.
	empty := make([]bool, rows*cols)
	for _, d := range RayFeatures(empty, rows, cols, center, 45, EdgeUp) {
		assert.Equal(t, -1.0, d)
	}
}

func TestRayFeaturesEdgeDown(t *testing.T) {
	const rows, cols = 21, 21
	mask := make([]bool, rows*cols)
	for r := 5; r <= 15; r++ {
		for c := 5; c <= 15; c++ {
			mask[r*cols+c] = true
		}
	}
	center := geometry.Point2D{R: 10, C: 10}

	rays := RayFeatures(mask, rows, cols, center, 90, EdgeDown)
	require.Len(t, rays, 4)
	for i, d := range rays {
		assert.InDelta(t, 6, d, 0.5, "ray %d leaves the square after 5 pixels", i)
	}
}

func TestReconstructRayPoints(t *testing.T) {
	center := geometry.Point2D{R: 10, C: 20}
	rays := []float64{4, 4, -1, 4}

	pts := ReconstructRayPoints(center, rays, 90)
	require.Len(t, pts, 3, "not-found rays produce no point")
	for _, p := range pts {
		assert.InDelta(t, 4, p.Distance(center), 1e-9)
	}
}

func TestReduceClosePoints(t *testing.T) {
	points := []geometry.Point2D{
		{R: 0, C: 0}, {R: 0, C: 1}, {R: 0, C: 5}, {R: 0, C: 5.5}, {R: 10, C: 10},
	}
	kept := ReduceClosePoints(points, 2)

	assert.Equal(t, []geometry.Point2D{{R: 0, C: 0}, {R: 0, C: 5}, {R: 10, C: 10}}, kept)
	for i := range kept {
		for j := i + 1; j < len(kept); j++ {
			assert.GreaterOrEqual(t, kept[i].Distance(kept[j]), 2.0)
		}
	}
	assert.Equal(t, kept, ReduceClosePoints(kept, 2), "reduction is idempotent")
}

func TestBoundaryPointsRayEdgeOnSyntheticObject(t *testing.T) {
	const rows, cols = 80, 100
	truth := Model{CenterR: 40, CenterC: 50, A: 20, B: 30, Theta: 0.3}
	seg := make([]int, rows*cols)
	require.True(t, truth.AddOverlap(seg, rows, cols, 1, 1.0))

	center := geometry.Point2D{R: 40, C: 50}
	groups := BoundaryPointsRayEdge(seg, rows, cols, []geometry.Point2D{center}, 3, 5, 0, 0)
	require.Len(t, groups, 1)
	pts := groups[0]
	require.NotEmpty(t, pts)

	for _, p := range pts {
		nr := truth.NormalizedRadius(p)
		assert.InDelta(t, 1.0, nr, 0.35, "boundary point (%g, %g) should hug the object edge", p.R, p.C)
	}
}

func TestBoundaryPointsRayDistReassignsToNearestCenter(t *testing.T) {
	const rows, cols = 60, 120
	a := Model{CenterR: 30, CenterC: 30, A: 15, B: 15}
	b := Model{CenterR: 30, CenterC: 90, A: 15, B: 15}
	seg := make([]int, rows*cols)
	require.True(t, a.AddOverlap(seg, rows, cols, 1, 1.0))
	require.True(t, b.AddOverlap(seg, rows, cols, 1, 1.0))

	centers := []geometry.Point2D{{R: 30, C: 30}, {R: 30, C: 90}}
	groups := BoundaryPointsRayDist(seg, rows, cols, centers, 2, 0, 0)
	require.Len(t, groups, 2)

	for gi, pts := range groups {
		require.NotEmpty(t, pts, "group %d", gi)
		for _, p := range pts {
			own := p.Distance(centers[gi])
			other := p.Distance(centers[1-gi])
			assert.LessOrEqual(t, own, other, "point must belong to its nearest center")
		}
	}
}

func TestGroupByNearestCenterTies(t *testing.T) {
	centers := []geometry.Point2D{{R: 0, C: 0}, {R: 0, C: 10}}
	groups := groupByNearestCenter([]geometry.Point2D{{R: 0, C: 5}}, centers)

	assert.Len(t, groups[0], 1, "equidistant points go to the first center")
	assert.Empty(t, groups[1])
}
