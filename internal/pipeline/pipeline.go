// Package pipeline implements the Pipeline Orchestrator (§4.1): the fixed
// ordering of access-list, auth, rate-limit, anomaly, and dispatch stages
// that produces exactly one terminal response per inbound request.
package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KingSajxxd/pathhelm/internal/accesslist"
	"github.com/KingSajxxd/pathhelm/internal/anomaly"
	"github.com/KingSajxxd/pathhelm/internal/auth"
	"github.com/KingSajxxd/pathhelm/internal/dispatcher"
	"github.com/KingSajxxd/pathhelm/internal/features"
	"github.com/KingSajxxd/pathhelm/internal/ratelimit"
	"github.com/KingSajxxd/pathhelm/pkg/config"
	"github.com/KingSajxxd/pathhelm/pkg/metrics"
	"github.com/KingSajxxd/pathhelm/pkg/store"
)

type Orchestrator struct {
	cfg        *config.Config
	store      *store.Store
	limiter    *ratelimit.Limiter
	scorer     *anomaly.Scorer
	dispatcher *dispatcher.Dispatcher
	timeframe  time.Duration
}

func New(cfg *config.Config, st *store.Store, limiter *ratelimit.Limiter, scorer *anomaly.Scorer, disp *dispatcher.Dispatcher) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		store:      st,
		limiter:    limiter,
		scorer:     scorer,
		dispatcher: disp,
		timeframe:  time.Duration(cfg.TimeframeSeconds) * time.Second,
	}
}

// ServeHTTP implements the pipeline's fixed ordering. It always produces
// exactly one HTTP response: every branch below either writes a terminal
// response (and returns) or falls through to the next stage.
func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)
	path := r.URL.Path
	now := time.Now()

	body, err := bufferBody(r)
	if err != nil {
		log.Error().Err(err).Str("client_ip", ip).Msg("body_read_failed")
		reject(w, http.StatusBadRequest, "could not read request body")
		return
	}
	r.Body = nil // already buffered; downstream stages use `body` directly

	// ---- 1/2: access list gate ----
	switch accesslist.Gate(ctx, o.store, ip) {
	case accesslist.Deny:
		if o.cfg.Counting.CountBlacklistAsBlocked {
			o.incrBlocked(ctx, "blacklist")
		}
		log.Info().Str("client_ip", ip).Str("path", path).Int("status", http.StatusForbidden).Msg("blacklisted")
		reject(w, http.StatusForbidden, "forbidden")
		return
	case accesslist.AllowBypass:
		o.incrTotal(ctx)
		outcome, err := o.dispatcher.Dispatch(ctx, w, r, body)
		if err != nil {
			log.Error().Err(err).Str("client_ip", ip).Msg("dispatch_error")
			return
		}
		// Whitelisted clients update timestamps/paths only, never the
		// error counter (§4.1 step 2).
		if err := features.WriteBack(ctx, o.store, ip, path, now, false, o.timeframe); err != nil {
			log.Warn().Err(err).Str("client_ip", ip).Msg("feature_writeback_failed")
		}
		log.Info().Str("client_ip", ip).Str("path", path).Int("status", outcome.Status).Str("upstream", outcome.Upstream).Msg("proxied_whitelisted")
		return
	}

	// ---- 3: API-key authentication ----
	clientID, outcome := auth.Authenticate(ctx, o.store, r.Header.Get("X-API-Key"))
	switch outcome {
	case auth.MissingKey:
		log.Info().Str("client_ip", ip).Str("path", path).Int("status", http.StatusUnauthorized).Msg("missing_api_key")
		reject(w, http.StatusUnauthorized, "missing API key")
		return
	case auth.Unavailable:
		log.Error().Str("client_ip", ip).Str("path", path).Int("status", http.StatusInternalServerError).Msg("auth_store_unavailable")
		reject(w, http.StatusInternalServerError, "auth store unavailable")
		return
	case auth.UnknownKey:
		log.Info().Str("client_ip", ip).Str("path", path).Int("status", http.StatusForbidden).Msg("unknown_api_key")
		reject(w, http.StatusForbidden, "forbidden")
		return
	}

	// ---- 4: rate limiter ----
	if o.cfg.RateLimit.Enabled {
		key := ip
		if o.cfg.RateLimitByClient {
			key = clientID
		}
		allowed, count, err := o.limiter.Allow(ctx, key, o.cfg.RateLimit.PerMinute, o.cfg.RateLimit.WindowSeconds)
		if err != nil {
			log.Error().Err(err).Str("client_ip", ip).Msg("rate_limiter_error")
			reject(w, http.StatusInternalServerError, "rate limiter unavailable")
			return
		}
		if !allowed {
			o.incrBlocked(ctx, "rate_limit")
			metrics.RateLimitRejections.WithLabelValues(rateLimitKeyKind(o.cfg)).Inc()
			log.Info().Str("client_id", clientID).Str("client_ip", ip).Int64("count", count).Int("status", http.StatusTooManyRequests).Msg("rate_limited")
			reject(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	// ---- 5: analytics ----
	o.incrTotal(ctx)

	// ---- 6: feature read + anomaly scorer ----
	if o.scorer.Enabled() {
		snap, err := features.Read(ctx, o.store, ip, now, o.timeframe)
		if err != nil {
			log.Warn().Err(err).Str("client_ip", ip).Msg("feature_read_failed_degrading_open")
		} else {
			vec := anomaly.BuildVector(snap, r, int64(len(body)))
			label, ok, err := o.scorer.Score(vec)
			if err != nil {
				log.Warn().Err(err).Str("client_ip", ip).Msg("anomaly_scorer_error_degrading_open")
			} else if ok && label == anomaly.Anomaly {
				o.incrBlocked(ctx, "anomaly")
				log.Warn().Str("client_ip", ip).Str("path", path).Int("status", http.StatusForbidden).Msg("anomaly_detected")
				reject(w, http.StatusForbidden, "forbidden: suspicious activity detected")
				return
			}
		}
	}

	// ---- 7: dispatch ----
	dispatchOutcome, err := o.dispatcher.Dispatch(ctx, w, r, body)
	if err != nil {
		log.Error().Err(err).Str("client_ip", ip).Msg("dispatch_error")
		return
	}

	// ---- 8: feature tracker write-back ----
	if err := features.WriteBack(ctx, o.store, ip, path, now, dispatchOutcome.IsError, o.timeframe); err != nil {
		log.Warn().Err(err).Str("client_ip", ip).Msg("feature_writeback_failed")
	}

	log.Info().
		Str("client_id", clientID).
		Str("client_ip", ip).
		Str("path", path).
		Int("status", dispatchOutcome.Status).
		Str("upstream", dispatchOutcome.Upstream).
		Msg("proxied")
}

func (o *Orchestrator) incrTotal(ctx context.Context) {
	metrics.TotalRequests.Inc()
	if _, err := o.store.Incr(ctx, "analytics:total_requests"); err != nil {
		log.Warn().Err(err).Msg("analytics_total_requests_incr_failed")
	}
}

func (o *Orchestrator) incrBlocked(ctx context.Context, reason string) {
	metrics.TotalRequestsBlocked.WithLabelValues(reason).Inc()
	if _, err := o.store.Incr(ctx, "analytics:total_requests_blocked"); err != nil {
		log.Warn().Err(err).Msg("analytics_total_requests_blocked_incr_failed")
	}
}

func rateLimitKeyKind(cfg *config.Config) string {
	if cfg.RateLimitByClient {
		return "client_id"
	}
	return "client_ip"
}

func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
