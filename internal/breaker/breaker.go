// Package breaker implements the per-upstream Circuit Breaker (§4.5) on
// top of sony/gobreaker: one CLOSED/OPEN/HALF_OPEN machine per upstream
// URL, trip threshold from FAILURE_THRESHOLD, cool-down from
// RESET_TIMEOUT, and a single half-open probe (gobreaker's MaxRequests:1)
// matching the "allow a single probe" transition in §4.5's table.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/KingSajxxd/pathhelm/pkg/metrics"
)

// ErrOpen is returned by Execute when the breaker fails fast; it maps
// 1:1 to gobreaker's own open-state error so callers don't need to
// import gobreaker to recognize it.
var ErrOpen = gobreaker.ErrOpenState

type Settings struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
}

// Result is the value an upstream call produces for Execute. Callers
// decide, via the error they return from the wrapped function, whether
// the attempt trips or resets the breaker; Result carries through the
// actual HTTP-level outcome for the caller to render.
type Result struct {
	Status int
}

// Registry holds one breaker per upstream URL, created lazily. Per §9's
// design notes, each breaker gets its own lock (gobreaker already
// serializes a single instance's transitions internally); the registry
// itself is guarded separately so creating a new upstream's breaker never
// blocks calls against an existing one.
type Registry struct {
	mu       sync.RWMutex
	settings Settings
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewRegistry(settings Settings) *Registry {
	return &Registry{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (r *Registry) get(upstream string) *gobreaker.CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[upstream]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[upstream]; ok {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        upstream,
		MaxRequests: 1,
		Timeout:     r.settings.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	r.breakers[upstream] = cb
	return cb
}

// Execute runs fn under the named upstream's breaker. If the breaker is
// OPEN (and the reset timeout hasn't elapsed), fn is never called and
// ErrOpen is returned — the "fail fast" path of §4.5/§8 that must not
// touch the network. A HALF_OPEN breaker admits exactly one concurrent
// probe; gobreaker rejects extra concurrent callers with
// ErrTooManyRequests, which Execute returns to them as ErrOpen.
func (r *Registry) Execute(upstream string, fn func() (*Result, error)) (*Result, error) {
	cb := r.get(upstream)
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrOpen
		}
		return nil, err
	}
	result, _ := res.(*Result)
	return result, nil
}

// State reports the current state of upstream's breaker, creating it
// (as CLOSED) if it doesn't exist yet.
func (r *Registry) State(upstream string) gobreaker.State {
	return r.get(upstream).State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
