// Package imgproc handles image and annotation I/O for the segmentation
// pipeline: decoding microscopy images, flattening to intensity channels,
// reading label annotations, and exporting label maps for inspection.
package imgproc

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/tiff"

	"cell-segm/pkg/colorutil"
)

// Load decodes an image from disk. TIFF, PNG and JPEG cover the microscopy
// exports in common use.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading image %s: %w", path, err)
	}
	return img, nil
}

// Save writes an image, with the format inferred from the file extension.
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("saving image %s: %w", path, err)
	}
	return nil
}

// GrayChannel flattens an image to a row-major luminance channel in [0, 1].
func GrayChannel(img image.Image) ([]float64, int, int) {
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()
	gray := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cr, cg, cb, _ := img.At(bounds.Min.X+c, bounds.Min.Y+r).RGBA()
			gray[r*cols+c] = colorutil.Luminance(
				float64(cr)/65535.0, float64(cg)/65535.0, float64(cb)/65535.0)
		}
	}
	return gray, rows, cols
}

// LoadAnnotation reads a label image where each distinct gray value encodes
// one class. Values are ranked ascending and mapped to class indices from
// zero, so annotations drawn with arbitrary gray levels still load as
// contiguous classes.
func LoadAnnotation(path string) ([]int, int, int, error) {
	img, err := Load(path)
	if err != nil {
		return nil, 0, 0, err
	}
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()

	values := make([]int, rows*cols)
	distinct := make(map[int]struct{})
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g := color.GrayModel.Convert(img.At(bounds.Min.X+c, bounds.Min.Y+r)).(color.Gray)
			v := int(g.Y)
			values[r*cols+c] = v
			distinct[v] = struct{}{}
		}
	}

	ranked := make([]int, 0, len(distinct))
	for v := range distinct {
		ranked = append(ranked, v)
	}
	sort.Ints(ranked)
	rank := make(map[int]int, len(ranked))
	for i, v := range ranked {
		rank[v] = i
	}

	labels := make([]int, len(values))
	for i, v := range values {
		labels[i] = rank[v]
	}
	return labels, rows, cols, nil
}

// LabelImage renders a label map as a color PNG-ready image. Colors are
// spread around the hue circle so adjacent class ids stay distinguishable;
// negative labels render black.
func LabelImage(labels []int, rows, cols, numClasses int) *image.RGBA {
	if numClasses < 1 {
		numClasses = 1
	}
	palette := make([]color.RGBA, numClasses)
	for i := range palette {
		hue := 360.0 * float64(i) / float64(numClasses)
		r, g, b := colorful.Hsv(hue, 0.85, 0.95).RGB255()
		palette[i] = color.RGBA{r, g, b, 255}
	}

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lb := labels[r*cols+c]
			if lb < 0 || lb >= numClasses {
				img.SetRGBA(c, r, color.RGBA{0, 0, 0, 255})
				continue
			}
			img.SetRGBA(c, r, palette[lb])
		}
	}
	return img
}
