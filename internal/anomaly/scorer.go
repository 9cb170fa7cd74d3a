package anomaly

import (
	"net/http"
	"strings"

	"github.com/KingSajxxd/pathhelm/internal/features"
)

// Scorer is a stateless wrapper around a Model: it builds the feature
// vector for one request and classifies it. A nil model means scoring is
// disabled (§3); Score reports that via the ok return.
type Scorer struct {
	model Model
}

func NewScorer(model Model) *Scorer { return &Scorer{model: model} }

func (s *Scorer) Enabled() bool { return s.model != nil }

// BuildVector assembles the eight-dimensional row from the sliding-window
// snapshot and the inbound request's own attributes (§4.3).
func BuildVector(snap features.Snapshot, r *http.Request, bodySize int64) Vector {
	ua := r.Header.Get("User-Agent")
	isEmptyUA := 0.0
	if strings.TrimSpace(ua) == "" {
		isEmptyUA = 1.0
	}

	ct := r.Header.Get("Content-Type")
	isJSON := 0.0
	if strings.Contains(strings.ToLower(ct), "application/json") {
		isJSON = 1.0
	}

	size := bodySize
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		// keep size as measured
	default:
		size = 0
	}

	return Vector{
		RequestFrequency:   float64(snap.RequestFrequency),
		ErrorRate:          ErrorRate(snap.ErrorCount, snap.RequestFrequency),
		UniquePathsAccessed: float64(snap.UniquePaths),
		IsEmptyUserAgent:   isEmptyUA,
		UserAgentLength:    float64(len(ua)),
		RequestBodySize:    float64(size),
		IsJSONContentType:  isJSON,
		NumHeaders:         float64(headerCount(r.Header)),
	}
}

func headerCount(h http.Header) int {
	n := 0
	for _, vs := range h {
		n += len(vs)
	}
	return n
}

// Score classifies v. ok is false when no model is loaded, in which case
// the caller must not treat the result as terminal.
func (s *Scorer) Score(v Vector) (label Label, ok bool, err error) {
	if s.model == nil {
		return Normal, false, nil
	}
	label, err = s.model.Classify(v)
	if err != nil {
		return Normal, false, err
	}
	return label, true, nil
}
