// Package anomaly wraps a pre-trained binary classifier behind a narrow
// interface and builds the fixed eight-dimensional feature vector §4.3
// contracts with training. Absence of a model disables scoring (§3).
package anomaly

// Vector is the eight-dimensional feature row, in the contractual order
// of §4.3. Field order matters: it is the compatibility contract with
// whatever trained the model.
type Vector struct {
	RequestFrequency    float64
	ErrorRate           float64
	UniquePathsAccessed float64
	IsEmptyUserAgent    float64
	UserAgentLength     float64
	RequestBodySize     float64
	IsJSONContentType   float64
	NumHeaders          float64
}

// Row renders the vector as a slice in column order, the shape most
// classifier implementations (including a loaded linear model) consume.
func (v Vector) Row() []float64 {
	return []float64{
		v.RequestFrequency,
		v.ErrorRate,
		v.UniquePathsAccessed,
		v.IsEmptyUserAgent,
		v.UserAgentLength,
		v.RequestBodySize,
		v.IsJSONContentType,
		v.NumHeaders,
	}
}

// ErrorRate computes errors/requestFrequency, guarding against division
// by zero and against spuriously high rates when the window is
// near-empty (§4.3 feature 2): the rate is only meaningful once more than
// one request has been observed in the window.
func ErrorRate(errors, requestFrequency int64) float64 {
	if requestFrequency <= 1 {
		return 0
	}
	return float64(errors) / float64(requestFrequency)
}
