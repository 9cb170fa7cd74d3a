// Command gateway is the PathHelm process entrypoint: logging setup,
// config load, Redis client construction, and the pipeline's HTTP server
// lifecycle (§1's "process bootstrap", an external collaborator the
// core is wired into but does not itself specify).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/KingSajxxd/pathhelm/internal/anomaly"
	"github.com/KingSajxxd/pathhelm/internal/breaker"
	"github.com/KingSajxxd/pathhelm/internal/dispatcher"
	"github.com/KingSajxxd/pathhelm/internal/httpserver"
	"github.com/KingSajxxd/pathhelm/internal/pipeline"
	"github.com/KingSajxxd/pathhelm/internal/ratelimit"
	"github.com/KingSajxxd/pathhelm/pkg/config"
	"github.com/KingSajxxd/pathhelm/pkg/metrics"
	"github.com/KingSajxxd/pathhelm/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// ------- Logging setup -------
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	switch strings.ToLower(getenv("LOG_LEVEL", "info")) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// ---- Load config ----
	cfgPath := getenv("PATHHELM_CONFIG", "configs/gateway.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", cfgPath).Msg("load config")
	}

	// ---- Shared state store ----
	st := store.New(cfg.Redis.Host+":"+cfg.Redis.Port, "", 0)

	pingCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	if err := st.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("shared store not reachable yet")
	} else {
		log.Info().Msg("shared store reachable")
	}
	cancel()

	// ---- Components ----
	metrics.Register(prometheus.DefaultRegisterer)

	limiter := ratelimit.New(st)

	model, err := anomaly.LoadModel(cfg.Anomaly.ModelPath)
	if err != nil {
		log.Fatal().Err(err).Str("model_path", cfg.Anomaly.ModelPath).Msg("load anomaly model")
	}
	if model == nil {
		log.Warn().Msg("no anomaly model configured; anomaly scoring disabled")
	}
	scorer := anomaly.NewScorer(model)

	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: uint32(cfg.CircuitBreaker.FailureThreshold),
		ResetTimeout:     time.Duration(cfg.CircuitBreaker.ResetTimeout) * time.Second,
	})

	disp := dispatcher.New(cfg.TargetServiceURLs, breakers, dispatcher.Settings{
		MaxRetries:     cfg.CircuitBreaker.MaxRetries,
		RetryDelay:     time.Duration(cfg.CircuitBreaker.RetryDelay) * time.Second,
		RequestTimeout: 5 * time.Second,
		BreakerEnabled: cfg.CircuitBreaker.Enabled,
	})

	orchestrator := pipeline.New(cfg, st, limiter, scorer, disp)

	router := httpserver.NewRouter(httpserver.RouterDeps{Pipeline: orchestrator})

	log.Info().
		Str("addr", cfg.Addr).
		Strs("upstreams", cfg.TargetServiceURLs).
		Str("config", cfgPath).
		Str("log_level", zerolog.GlobalLevel().String()).
		Msg("pathhelm starting")

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // streaming responses; bounded instead by the dispatcher's per-attempt client timeout
		IdleTimeout:       60 * time.Second,
	}

	httpserver.EnableDrainFlag(true)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown requested; draining")

	httpserver.SetDraining(true)

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown did not complete in time; forcing close")
		_ = srv.Close()
	} else {
		log.Info().Msg("http server shut down cleanly")
	}

	if err := st.Close(); err != nil {
		log.Warn().Err(err).Msg("store close")
	} else {
		log.Info().Msg("store closed")
	}

	log.Info().Msg("pathhelm exited")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
