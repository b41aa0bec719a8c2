// Package dataset manages training data on disk: CSV sample lists pairing
// images with annotations, and a gzip-compressed cache of per-image
// superpixel features so repeated training runs skip the extraction stage.
package dataset

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/superpixel"
)

// Sample pairs a microscopy image with its pixel annotation.
type Sample struct {
	ImagePath string
	AnnotPath string
}

// LoadList reads a CSV sample list with a path_image,path_annot header.
// Relative paths resolve against the directory of the list file.
func LoadList(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sample list: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing sample list %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sample list %s is empty", path)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	start := 0
	if strings.EqualFold(strings.TrimSpace(records[0][0]), "path_image") {
		start = 1
	}
	samples := make([]Sample, 0, len(records)-start)
	for i, rec := range records[start:] {
		if len(rec) < 2 {
			return nil, fmt.Errorf("sample list %s line %d: want 2 columns, got %d",
				path, start+i+1, len(rec))
		}
		samples = append(samples, Sample{
			ImagePath: resolve(strings.TrimSpace(rec[0])),
			AnnotPath: resolve(strings.TrimSpace(rec[1])),
		})
	}
	return samples, nil
}

// Features is the cached extraction result for one image.
type Features struct {
	ImagePath string   `json:"image_path"`
	Rows      int      `json:"rows"`
	Cols      int      `json:"cols"`
	Labels    []int    `json:"superpixels"` // row-major superpixel map
	Names     []string `json:"feature_names"`
	// Matrix is the K x F feature matrix stored row by row.
	Matrix [][]float64 `json:"features"`
	// SuperpixelLabels is the per-superpixel training label, -1 for ignored.
	SuperpixelLabels []int `json:"labels,omitempty"`
}

// Superpixels rebuilds the superpixel map from the cached fields.
func (f *Features) Superpixels() *superpixel.Map {
	return &superpixel.Map{Rows: f.Rows, Cols: f.Cols, Labels: f.Labels}
}

// FeatureMatrix rebuilds the dense matrix from the cached rows.
func (f *Features) FeatureMatrix() *mat.Dense {
	if len(f.Matrix) == 0 {
		return mat.NewDense(0, 0, nil)
	}
	k, nf := len(f.Matrix), len(f.Matrix[0])
	m := mat.NewDense(k, nf, nil)
	for i, row := range f.Matrix {
		m.SetRow(i, row)
	}
	return m
}

// NewFeatures flattens a superpixel map and feature matrix into the cachable
// form.
func NewFeatures(imagePath string, spx *superpixel.Map, feats *mat.Dense, names []string, labels []int) *Features {
	k, nf := feats.Dims()
	rowsOut := make([][]float64, k)
	for i := 0; i < k; i++ {
		rowsOut[i] = make([]float64, nf)
		mat.Row(rowsOut[i], i, feats)
	}
	return &Features{
		ImagePath:        imagePath,
		Rows:             spx.Rows,
		Cols:             spx.Cols,
		Labels:           spx.Labels,
		Names:            names,
		Matrix:           rowsOut,
		SuperpixelLabels: labels,
	}
}

// CachePath maps an image path into the cache directory.
func CachePath(cacheDir, imagePath string) string {
	name := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	return filepath.Join(cacheDir, name+".json.gz")
}

// SaveCache writes the features as gzip-compressed JSON.
func SaveCache(path string, feats *Features) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(feats); err != nil {
		zw.Close()
		return fmt.Errorf("encoding cache %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing cache %s: %w", path, err)
	}
	return nil
}

// LoadCache reads a gzip-compressed feature cache.
func LoadCache(path string) (*Features, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	defer zr.Close()

	var feats Features
	if err := json.NewDecoder(zr).Decode(&feats); err != nil {
		return nil, fmt.Errorf("decoding cache %s: %w", path, err)
	}
	return &feats, nil
}
