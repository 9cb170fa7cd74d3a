// Package metrics holds the gateway's internal Prometheus vectors: the
// analytics counters mandated by §3/§4.9 plus the circuit breaker gauge
// and the upstream and rate-limiter counters that make pipeline decisions
// observable. The
// admin/status/dashboard surfaces named in spec.md §1 remain external
// collaborators; this package only backs the core's own instrumentation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TotalRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pathhelm",
		Name:      "analytics_total_requests",
		Help:      "Requests let through by the whitelist, or that passed authentication and rate limiting.",
	})

	TotalRequestsBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pathhelm",
			Name:      "analytics_total_requests_blocked",
			Help:      "Requests rejected by the rate limiter or the anomaly scorer (and the blacklist, when counted), labeled by reason.",
		},
		[]string{"reason"},
	)

	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pathhelm",
			Name:      "upstream_requests_total",
			Help:      "Requests dispatched to upstreams, labeled by upstream and outcome status.",
		},
		[]string{"upstream", "status"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pathhelm",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per upstream (0=closed, 1=half_open, 2=open).",
		},
		[]string{"upstream"},
	)

	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pathhelm",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter, labeled by key kind.",
		},
		[]string{"key_kind"},
	)

	registerOnce sync.Once
)

// Register registers every gateway metric once against reg.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(TotalRequests)
		reg.MustRegister(TotalRequestsBlocked)
		reg.MustRegister(UpstreamRequests)
		reg.MustRegister(BreakerState)
		reg.MustRegister(RateLimitRejections)
	})
}
