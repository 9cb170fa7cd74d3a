// Package dispatcher implements the Upstream Dispatcher (§4.6):
// round-robin upstream selection, header sanitization, bounded retries
// against the same selected upstream, circuit-breaker coordination, and
// streaming of the upstream response body back to the client.
package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KingSajxxd/pathhelm/internal/breaker"
	"github.com/KingSajxxd/pathhelm/pkg/metrics"
)

// Settings mirror the §6 environment knobs governing retries.
type Settings struct {
	MaxRetries         int
	RetryDelay         time.Duration
	RequestTimeout     time.Duration
	BreakerEnabled     bool
}

type Dispatcher struct {
	upstreams []string
	cursor    uint64 // advanced atomically; process-wide round-robin cursor (§3, §5)
	client    *http.Client
	breakers  *breaker.Registry
	settings  Settings
}

func New(upstreams []string, breakers *breaker.Registry, settings Settings) *Dispatcher {
	return &Dispatcher{
		upstreams: upstreams,
		client:    &http.Client{Timeout: settings.RequestTimeout},
		breakers:  breakers,
		settings:  settings,
	}
}

// next advances the process-wide cursor atomically and returns the
// selected upstream base URL.
func (d *Dispatcher) next() string {
	n := atomic.AddUint64(&d.cursor, 1) - 1
	return d.upstreams[n%uint64(len(d.upstreams))]
}

// Outcome is what the dispatcher reports back to the orchestrator for
// analytics and feature-tracker write-back.
type Outcome struct {
	Status    int  // HTTP status ultimately sent to the client
	IsError   bool // true when Status >= 400, drives the error counter (§4.3)
	Upstream  string
}

var ErrBreakerOpen = breaker.ErrOpen

// Dispatch selects the next upstream, gates it through that upstream's
// circuit breaker, retries on transport failure or 5xx up to
// Settings.MaxRetries, and streams the final response straight to w. The
// response body is never buffered in full (§4.6): only the status line is
// inspected to decide whether to retry; the body of a non-retried
// response is copied directly to the client.
func (d *Dispatcher) Dispatch(ctx context.Context, w http.ResponseWriter, r *http.Request, body []byte) (Outcome, error) {
	upstream := d.next()
	dispatchID := uuid.NewString()

	attempt := func() (*breaker.Result, error) {
		return d.attemptWithRetries(ctx, w, r, body, upstream, dispatchID)
	}

	var result *breaker.Result
	var err error
	if d.settings.BreakerEnabled {
		result, err = d.breakers.Execute(upstream, attempt)
	} else {
		result, err = attempt()
	}

	if err != nil {
		if errors.Is(err, ErrBreakerOpen) {
			log.Warn().Str("upstream", upstream).Msg("breaker_open_fail_fast")
			writeSynthetic(w, http.StatusServiceUnavailable, "circuit breaker open")
			metrics.UpstreamRequests.WithLabelValues(upstream, "503").Inc()
			return Outcome{Status: http.StatusServiceUnavailable, IsError: true, Upstream: upstream}, nil
		}
		log.Error().Err(err).Str("upstream", upstream).Msg("upstream_exhausted")
		writeSynthetic(w, http.StatusBadGateway, err.Error())
		metrics.UpstreamRequests.WithLabelValues(upstream, "502").Inc()
		return Outcome{Status: http.StatusBadGateway, IsError: true, Upstream: upstream}, nil
	}

	metrics.UpstreamRequests.WithLabelValues(upstream, strconv.Itoa(result.Status)).Inc()
	return Outcome{Status: result.Status, IsError: result.Status >= 400, Upstream: upstream}, nil
}

// attemptWithRetries performs up to 1+MaxRetries attempts against the
// same upstream. A nil error return means the breaker should treat this
// as a success (including 4xx responses, which are not retried and are
// not breaker failures per §4.5's table: only status>=500 counts as a
// failure). A non-nil error return means every attempt was exhausted by
// transport failure or 5xx, and the breaker should count one failure.
func (d *Dispatcher) attemptWithRetries(ctx context.Context, w http.ResponseWriter, r *http.Request, body []byte, upstream, dispatchID string) (*breaker.Result, error) {
	var lastErr error

	for attempt := 0; attempt <= d.settings.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.settings.RetryDelay):
			}
		}

		resp, err := d.issue(ctx, r, body, upstream)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("dispatch_id", dispatchID).Str("upstream", upstream).Int("attempt", attempt).Msg("upstream_attempt_failed")
			continue
		}

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			lastErr = errUpstreamStatus(resp.StatusCode)
			log.Warn().Str("dispatch_id", dispatchID).Str("upstream", upstream).Int("attempt", attempt).Int("status", resp.StatusCode).Msg("upstream_attempt_5xx")
			continue
		}

		// Final answer: stream straight through, never buffered whole.
		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		_, copyErr := io.Copy(w, resp.Body)
		resp.Body.Close()
		if copyErr != nil {
			log.Warn().Err(copyErr).Str("upstream", upstream).Msg("response_stream_interrupted")
		}
		return &breaker.Result{Status: resp.StatusCode}, nil
	}

	return nil, lastErr
}

func (d *Dispatcher) issue(ctx context.Context, r *http.Request, body []byte, upstream string) (*http.Response, error) {
	url := strings.TrimRight(upstream, "/") + r.URL.Path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	copyHeaders(req.Header, r.Header)
	req.Header.Del("Host") // §4.6: Host is stripped (case-insensitively) before forwarding

	return d.client.Do(req)
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func writeSynthetic(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

type upstreamStatusError struct{ status int }

func (e upstreamStatusError) Error() string {
	return "upstream returned status " + http.StatusText(e.status)
}

func errUpstreamStatus(status int) error { return upstreamStatusError{status: status} }
