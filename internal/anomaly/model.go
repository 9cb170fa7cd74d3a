package anomaly

import (
	"encoding/json"
	"os"
)

// Label is the classifier's binary verdict.
type Label int

const (
	Normal Label = iota
	Anomaly
)

// Model is the boundary §9's design notes call for: a single-method
// interface so the concrete classifier implementation (whatever
// serialization format the offline training pipeline produced) stays
// swappable without touching the scorer or the pipeline.
type Model interface {
	Classify(v Vector) (Label, error)
}

// LinearModel is a lightweight stand-in for the offline-trained
// classifier: a weight vector plus bias over the eight features,
// thresholded at zero exactly like the reference's sklearn-style
// predict() returning {-1, +1}. Training and serialization remain
// external to the core (§1); this is only the runtime side of the
// contract.
type LinearModel struct {
	Weights [8]float64 `json:"weights"`
	Bias    float64    `json:"bias"`
}

func (m *LinearModel) Classify(v Vector) (Label, error) {
	row := v.Row()
	score := m.Bias
	for i, w := range m.Weights {
		score += w * row[i]
	}
	if score < 0 {
		return Anomaly, nil
	}
	return Normal, nil
}

// LoadModel reads a LinearModel from a JSON artifact at path. A missing
// file is not an error: it simply means no model is configured, and
// callers should treat that as "anomaly scoring disabled" (§3, §7).
func LoadModel(path string) (Model, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m LinearModel
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
