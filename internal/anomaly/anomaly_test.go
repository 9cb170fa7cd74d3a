package anomaly_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KingSajxxd/pathhelm/internal/anomaly"
	"github.com/KingSajxxd/pathhelm/internal/features"
)

func TestErrorRate_GuardsAgainstSparseWindow(t *testing.T) {
	if got := anomaly.ErrorRate(5, 1); got != 0 {
		t.Fatalf("want 0 when requestFrequency<=1, got %v", got)
	}
	if got := anomaly.ErrorRate(5, 0); got != 0 {
		t.Fatalf("want 0 when requestFrequency is 0, got %v", got)
	}
	if got := anomaly.ErrorRate(1, 4); got != 0.25 {
		t.Fatalf("want 0.25, got %v", got)
	}
}

func TestBuildVector(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	snap := features.Snapshot{RequestFrequency: 10, ErrorCount: 2, UniquePaths: 3}
	v := anomaly.BuildVector(snap, req, 128)

	if v.RequestFrequency != 10 {
		t.Fatalf("want request_frequency 10, got %v", v.RequestFrequency)
	}
	if v.ErrorRate != 0.2 {
		t.Fatalf("want error_rate 0.2, got %v", v.ErrorRate)
	}
	if v.UniquePathsAccessed != 3 {
		t.Fatalf("want unique_paths_accessed 3, got %v", v.UniquePathsAccessed)
	}
	if v.IsEmptyUserAgent != 0 {
		t.Fatalf("want is_empty_user_agent 0, got %v", v.IsEmptyUserAgent)
	}
	if v.UserAgentLength != float64(len("curl/8.0")) {
		t.Fatalf("want user_agent_length %d, got %v", len("curl/8.0"), v.UserAgentLength)
	}
	if v.RequestBodySize != 128 {
		t.Fatalf("want request_body_size 128 on POST, got %v", v.RequestBodySize)
	}
	if v.IsJSONContentType != 1 {
		t.Fatalf("want is_json_content_type 1, got %v", v.IsJSONContentType)
	}
}

func TestBuildVector_BodySizeIgnoredOnGET(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	v := anomaly.BuildVector(features.Snapshot{}, req, 999)
	if v.RequestBodySize != 0 {
		t.Fatalf("want request_body_size 0 on GET, got %v", v.RequestBodySize)
	}
}

func TestBuildVector_EmptyUserAgent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Del("User-Agent")
	v := anomaly.BuildVector(features.Snapshot{}, req, 0)
	if v.IsEmptyUserAgent != 1 {
		t.Fatalf("want is_empty_user_agent 1, got %v", v.IsEmptyUserAgent)
	}
}

type stubModel struct {
	label anomaly.Label
	err   error
}

func (s stubModel) Classify(anomaly.Vector) (anomaly.Label, error) { return s.label, s.err }

func TestScorer_DisabledWithoutModel(t *testing.T) {
	s := anomaly.NewScorer(nil)
	if s.Enabled() {
		t.Fatal("want disabled with nil model")
	}
	_, ok, err := s.Score(anomaly.Vector{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("want ok=false with nil model")
	}
}

func TestScorer_ClassifiesWithModel(t *testing.T) {
	s := anomaly.NewScorer(stubModel{label: anomaly.Anomaly})
	if !s.Enabled() {
		t.Fatal("want enabled with model")
	}
	label, ok, err := s.Score(anomaly.Vector{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("want ok=true with model")
	}
	if label != anomaly.Anomaly {
		t.Fatalf("want Anomaly, got %v", label)
	}
}

func TestLinearModel_Classify(t *testing.T) {
	m := &anomaly.LinearModel{
		Weights: [8]float64{-1, -1, 0, -1, 0, 0, 0, 0},
		Bias:    2.5,
	}

	normal, err := m.Classify(anomaly.Vector{RequestFrequency: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normal != anomaly.Normal {
		t.Fatalf("want Normal for a low-frequency vector, got %v", normal)
	}

	anomalous, err := m.Classify(anomaly.Vector{RequestFrequency: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if anomalous != anomaly.Anomaly {
		t.Fatalf("want Anomaly for a high-frequency vector, got %v", anomalous)
	}
}

func TestLoadModel_MissingFileDisablesScoring(t *testing.T) {
	m, err := anomaly.LoadModel("/nonexistent/path/model.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatal("want nil model for a missing file")
	}
}

func TestLoadModel_EmptyPathDisablesScoring(t *testing.T) {
	m, err := anomaly.LoadModel("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatal("want nil model for an empty path")
	}
}
