package classify

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"cell-segm/internal/config"
)

// Bundle pairs a fitted classifier with the parameter set it was trained
// under, so prediction runs reproduce the training-time feature columns. The
// optional transition matrix carries the learned pairwise penalties for the
// graph-cut stage.
type Bundle struct {
	Kind        string          `json:"kind"` // "gaussian" or "centroid"
	Params      config.Params   `json:"params"`
	Model       json.RawMessage `json:"model"`
	Transitions [][]float64     `json:"transitions,omitempty"`
}

// SaveBundle writes a classifier bundle to a JSON file. A nil transitions
// matrix is omitted.
func SaveBundle(path string, clf Classifier, params config.Params, transitions *mat.Dense) error {
	var kind string
	switch clf.(type) {
	case *Gaussian:
		kind = "gaussian"
	case *NearestCentroid:
		kind = "centroid"
	default:
		return fmt.Errorf("unknown classifier type %T", clf)
	}
	model, err := json.Marshal(clf)
	if err != nil {
		return fmt.Errorf("marshal classifier: %w", err)
	}
	b := Bundle{Kind: kind, Params: params, Model: model}
	if transitions != nil {
		n, _ := transitions.Dims()
		b.Transitions = make([][]float64, n)
		for i := 0; i < n; i++ {
			b.Transitions[i] = make([]float64, n)
			mat.Row(b.Transitions[i], i, transitions)
		}
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadBundle reads a classifier bundle from a JSON file.
func LoadBundle(path string) (Classifier, config.Params, *mat.Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, config.Params{}, nil, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, config.Params{}, nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	var clf Classifier
	switch b.Kind {
	case "gaussian":
		clf = &Gaussian{}
	case "centroid":
		clf = &NearestCentroid{}
	default:
		return nil, config.Params{}, nil, fmt.Errorf("unknown classifier kind %q", b.Kind)
	}
	if err := json.Unmarshal(b.Model, clf); err != nil {
		return nil, config.Params{}, nil, fmt.Errorf("unmarshal classifier: %w", err)
	}
	var transitions *mat.Dense
	if len(b.Transitions) > 0 {
		n := len(b.Transitions)
		transitions = mat.NewDense(n, n, nil)
		for i, row := range b.Transitions {
			if len(row) != n {
				return nil, config.Params{}, nil, fmt.Errorf("transition matrix row %d has %d entries, want %d", i, len(row), n)
			}
			transitions.SetRow(i, row)
		}
	}
	return clf, b.Params, transitions, nil
}
