package features

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/superpixel"
)

// halfMap splits a 4x8 grid into two superpixels, left and right.
func halfMap() *superpixel.Map {
	m := superpixel.NewMap(4, 8)
	for r := 0; r < 4; r++ {
		for c := 4; c < 8; c++ {
			m.Labels[r*8+c] = 1
		}
	}
	return m
}

func TestExtractGrayStats(t *testing.T) {
	m := halfMap()
	gray := make([]float64, 4*8)
	for r := 0; r < 4; r++ {
		for c := 0; c < 8; c++ {
			if c >= 4 {
				gray[r*8+c] = 0.5
			}
		}
	}

	spec := Spec{{Name: "color", Stats: []string{"mean", "std", "energy", "median"}}}
	feats, names, err := ExtractGray(gray, 4, 8, m, spec)
	require.NoError(t, err)

	require.Equal(t, []string{"color-I-mean", "color-I-std", "color-I-energy", "color-I-median"}, names)
	k, f := feats.Dims()
	require.Equal(t, 2, k)
	require.Equal(t, 4, f)

	assert.InDelta(t, 0.0, feats.At(0, 0), 1e-12, "left mean")
	assert.InDelta(t, 0.5, feats.At(1, 0), 1e-12, "right mean")
	assert.InDelta(t, 0.0, feats.At(1, 1), 1e-12, "constant region has zero std")
	assert.InDelta(t, 0.25, feats.At(1, 2), 1e-12, "energy is the mean square")
	assert.InDelta(t, 0.5, feats.At(1, 3), 1e-12, "median")
}

func TestExtractColumnOrderFollowsSpec(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for r := 0; r < 4; r++ {
		for c := 0; c < 8; c++ {
			img.SetRGBA(c, r, color.RGBA{100, 150, 200, 255})
		}
	}
	m := halfMap()

	spec := Spec{
		{Name: "texture", Stats: []string{"mean"}},
		{Name: "color", Stats: []string{"mean"}},
	}
	_, names, err := Extract(img, m, spec)
	require.NoError(t, err)
	require.Equal(t, []string{
		"texture-grad-mean", "texture-lap-mean",
		"color-L-mean", "color-a-mean", "color-b-mean",
	}, names)

	// Same spec, second run: identical ordering.
	_, again, err := Extract(img, m, spec)
	require.NoError(t, err)
	assert.Equal(t, names, again)
}

func TestExtractValidation(t *testing.T) {
	m := halfMap()
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))

	_, _, err := Extract(img, m, DefaultSpec())
	assert.Error(t, err, "image and map shapes must match")

	_, _, err = ExtractGray(make([]float64, 4*8), 4, 8, m, Spec{{Name: "nope", Stats: []string{"mean"}}})
	assert.Error(t, err, "unknown group")

	_, _, err = ExtractGray(make([]float64, 4*8), 4, 8, m, Spec{{Name: "color", Stats: []string{"max"}}})
	assert.Error(t, err, "unknown statistic")
}

func matFromRows(rows [][]float64) *mat.Dense {
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return m
}

func TestRowDistance(t *testing.T) {
	feats := matFromRows([][]float64{{0, 0}, {3, 4}, {3, 4}})
	assert.InDelta(t, 5, RowDistance(feats, 0, 1), 1e-12)
	assert.InDelta(t, 0, RowDistance(feats, 1, 2), 1e-12)
	assert.False(t, math.IsNaN(RowDistance(feats, 0, 0)))
}
