// Package config holds the immutable parameter record passed through the
// segmentation pipeline. Parameters are plain values: a call never reads
// process-wide state, so independent images can be processed concurrently.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"cell-segm/internal/features"
)

// Params configures one segmentation run.
type Params struct {
	Name        string        `json:"name"`
	NumClasses  int           `json:"nb_classes"`
	SlicSize    int           `json:"slic_size"`
	SlicRegul   float64       `json:"slic_regul"`
	Features    features.Spec `json:"features"`
	LabelPurity float64       `json:"label_purity"`
	Classifier  string        `json:"classif"` // "gaussian" or "centroid"

	GCRegul          float64 `json:"gc_regul"`
	GCEdgeType       string  `json:"gc_edge_type"` // "const", "model" or "model_img"
	GCUseTransitions bool    `json:"gc_use_trans"`

	Workers int `json:"workers"`
}

// Default returns parameters tuned for ovary microscopy slices, matching the
// defaults the experiments were historically run with.
func Default() Params {
	return Params{
		Name:        "ovary",
		SlicSize:    35,
		SlicRegul:   0.3,
		Features:    features.DefaultSpec(),
		LabelPurity: 0.95,
		Classifier:  "gaussian",
		GCRegul:     5.0,
		GCEdgeType:  "model",
		Workers:     4,
	}
}

// WithGC returns a copy with graph-cut settings replaced.
func (p Params) WithGC(regul float64, edgeType string, useTransitions bool) Params {
	p.GCRegul = regul
	p.GCEdgeType = edgeType
	p.GCUseTransitions = useTransitions
	return p
}

// WithSlic returns a copy with superpixel settings replaced.
func (p Params) WithSlic(size int, regul float64) Params {
	p.SlicSize = size
	p.SlicRegul = regul
	return p
}

// LoadEnv overlays values from the environment (and an optional .env file)
// onto p. Unset variables leave the existing value untouched.
func (p Params) LoadEnv() Params {
	_ = godotenv.Load() // missing .env is fine

	if v := os.Getenv("CELLSEGM_NAME"); v != "" {
		p.Name = v
	}
	if v, err := strconv.Atoi(os.Getenv("CELLSEGM_SLIC_SIZE")); err == nil {
		p.SlicSize = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("CELLSEGM_SLIC_REGUL"), 64); err == nil {
		p.SlicRegul = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("CELLSEGM_GC_REGUL"), 64); err == nil {
		p.GCRegul = v
	}
	if v := os.Getenv("CELLSEGM_GC_EDGE_TYPE"); v != "" {
		p.GCEdgeType = v
	}
	if v, err := strconv.Atoi(os.Getenv("CELLSEGM_WORKERS")); err == nil && v > 0 {
		p.Workers = v
	}
	return p
}
