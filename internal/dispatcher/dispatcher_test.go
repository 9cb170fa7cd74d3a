package dispatcher_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KingSajxxd/pathhelm/internal/breaker"
	"github.com/KingSajxxd/pathhelm/internal/dispatcher"
)

func newDispatcher(t *testing.T, upstreams []string, settings dispatcher.Settings) *dispatcher.Dispatcher {
	t.Helper()
	breakers := breaker.NewRegistry(breaker.Settings{FailureThreshold: 100, ResetTimeout: time.Minute})
	return dispatcher.New(upstreams, breakers, settings)
}

func TestDispatch_HappyPath(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" {
			t.Errorf("want path /orders, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer up.Close()

	d := newDispatcher(t, []string{up.URL}, dispatcher.Settings{MaxRetries: 0, RequestTimeout: time.Second})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)

	outcome, err := d.Dispatch(req.Context(), rec, req, nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome.Status != http.StatusOK {
		t.Fatalf("want 200, got %d", outcome.Status)
	}
	if outcome.IsError {
		t.Fatal("200 must not count as an error")
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("want streamed body, got %q", rec.Body.String())
	}
}

func TestDispatch_RoundRobin(t *testing.T) {
	var hitsA, hitsB int64
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&hitsA, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&hitsB, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer b.Close()

	d := newDispatcher(t, []string{a.URL, b.URL}, dispatcher.Settings{MaxRetries: 0, RequestTimeout: time.Second})

	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if _, err := d.Dispatch(req.Context(), rec, req, nil); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	if hitsA != 2 || hitsB != 2 {
		t.Fatalf("want 2/2 round-robin split, got a=%d b=%d", hitsA, hitsB)
	}
}

func TestDispatch_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int64
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	d := newDispatcher(t, []string{up.URL}, dispatcher.Settings{MaxRetries: 2, RetryDelay: time.Millisecond, RequestTimeout: time.Second})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	outcome, err := d.Dispatch(req.Context(), rec, req, nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome.Status != http.StatusOK {
		t.Fatalf("want eventual 200, got %d", outcome.Status)
	}
	if calls != 2 {
		t.Fatalf("want exactly 2 calls (1 failure + 1 success), got %d", calls)
	}
}

func TestDispatch_4xxIsNotRetried(t *testing.T) {
	var calls int64
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer up.Close()

	d := newDispatcher(t, []string{up.URL}, dispatcher.Settings{MaxRetries: 2, RetryDelay: time.Millisecond, RequestTimeout: time.Second})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	outcome, err := d.Dispatch(req.Context(), rec, req, nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome.Status != http.StatusNotFound {
		t.Fatalf("want 404, got %d", outcome.Status)
	}
	if !outcome.IsError {
		t.Fatal("404 must count as an error for the feature tracker")
	}
	if calls != 1 {
		t.Fatalf("want exactly 1 call, a 4xx must not be retried, got %d", calls)
	}
}

func TestDispatch_BreakerOpenFailsFastWithSynthetic503(t *testing.T) {
	var calls int64
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer up.Close()

	breakers := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, ResetTimeout: time.Minute})
	d := dispatcher.New([]string{up.URL}, breakers, dispatcher.Settings{
		MaxRetries: 0, RequestTimeout: time.Second, BreakerEnabled: true,
	})

	// First request trips the breaker (single failing attempt, threshold 1).
	rec1 := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodGet, "/x", nil)
	if _, err := d.Dispatch(req1.Context(), rec1, req1, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	callsBefore := atomic.LoadInt64(&calls)

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/x", nil)
	outcome, err := d.Dispatch(req2.Context(), rec2, req2, nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome.Status != http.StatusServiceUnavailable {
		t.Fatalf("want synthetic 503 while breaker is open, got %d", outcome.Status)
	}
	if atomic.LoadInt64(&calls) != callsBefore {
		t.Fatal("an open breaker must fail fast without touching the network")
	}
}

func TestDispatch_HostHeaderStripped(t *testing.T) {
	var sawHost string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawHost = r.Header.Get("Host")
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	d := newDispatcher(t, []string{up.URL}, dispatcher.Settings{MaxRetries: 0, RequestTimeout: time.Second})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Host", "original-client-host.example")

	if _, err := d.Dispatch(req.Context(), rec, req, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sawHost != "" {
		t.Fatalf("want Host header stripped from the forwarded request, got %q", sawHost)
	}
}
