// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/cmd/lakehouse-api/handlers"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/cmd/lakehouse-api/middleware"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/api/rpc"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
)

// Services are the components the routes call into.
type Services struct {
	Runner     handlers.Runner
	Stages     func() pipeline.StageConfig
	Asker      handlers.Asker
	Translator rpc.Translator
	Runs       runlog.Store
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

// RouterConfig holds HTTP-level settings.
type RouterConfig struct {
	RequestTimeout time.Duration
	AuthToken      string
	AllowedOrigins []string
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, svc Services, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"lakehouse-agent"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if svc.Ready != nil {
			if err := svc.Ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	pipelineHandler := handlers.NewPipelineHandler(logger, svc.Runner, svc.Stages, svc.Runs)
	queryHandler := handlers.NewQueryHandler(logger, svc.Asker)
	invokeHandler := handlers.NewInvokeHandler(logger, pipelineHandler, queryHandler)

	auth := middleware.Auth(middleware.AuthConfig{Token: cfg.AuthToken})

	// Pipeline runs outlive the request timeout.
	r.With(auth).Post("/invoke", invokeHandler.Invoke)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth)
		r.Post("/etl", pipelineHandler.ETL)

		r.Group(func(r chi.Router) {
			if cfg.RequestTimeout > 0 {
				r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
			}
			r.Post("/query", queryHandler.Query)
			r.Get("/runs", pipelineHandler.ListRuns)
			r.Get("/runs/{runID}", pipelineHandler.GetRun)
		})
	})

	rpcService := rpc.NewService(logger, svc.Runner, svc.Stages, svc.Translator, svc.Asker, svc.Runs)
	path, handler := rpcService.Handler()
	r.With(auth).Handle(path+"*", handler)

	return r
}
