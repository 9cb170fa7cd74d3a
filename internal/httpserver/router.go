// Package httpserver wires PathHelm's chi router: health/drain endpoints,
// internal Prometheus metrics, and the catch-all proxy entry point that
// the Pipeline Orchestrator serves.
package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KingSajxxd/pathhelm/internal/middleware"
)

type RouterDeps struct {
	// Pipeline serves every proxy-entry-point request (ANY /{path...},
	// §6). It is a plain http.Handler so httpserver does not need to
	// import the pipeline package directly.
	Pipeline http.Handler
}

// NewRouter builds the chi router. /health and the internal metrics
// endpoint are local; everything else is handed to the pipeline.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, middleware.AccessLoggerFromEnv())

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if IsDraining() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"draining"}` + "\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	})

	r.Handle("/pathhelm/internal/metrics", promhttp.Handler())

	// Everything else is the proxy entry point (ANY /{path...}, §6),
	// including the root path.
	r.Handle("/*", d.Pipeline)
	r.Handle("/", d.Pipeline)

	return r
}
