package api

import (
	"net/http"

	"pairlab/internal/event"
	"pairlab/internal/experiment"
	"pairlab/internal/gateway"
	"pairlab/internal/logging"
	"pairlab/internal/metrics"
	"pairlab/internal/results"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Options struct {
	Hub            *gateway.Hub
	Events         *event.Bus[event.ExperimentEvent]
	Stimuli        experiment.StimulusSource
	Results        results.Store
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
}

// NewRouter builds the HTTP surface: the participant socket, experimenter
// streams and the read-only REST endpoints.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger.Category("api")
	rest := &RestHandler{
		Hub:     opts.Hub,
		Stimuli: opts.Stimuli,
		Results: opts.Results,
		Logger:  logger,
		Metrics: opts.Metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(logger))

	r.Method(http.MethodGet, "/ws", securityHeadersMiddleware(cacheControlNoStore, &ParticipantHandler{
		Hub:            opts.Hub,
		Logger:         logger,
		AuthToken:      opts.AuthToken,
		AllowedOrigins: opts.AllowedOrigins,
	}))
	r.Method(http.MethodGet, "/ws/events", securityHeadersMiddleware(cacheControlNoStore, &EventsHandler{
		Bus:            opts.Events,
		Logger:         logger,
		AuthToken:      opts.AuthToken,
		AllowedOrigins: opts.AllowedOrigins,
	}))
	r.Method(http.MethodGet, "/ws/logs", securityHeadersMiddleware(cacheControlNoStore, &LogsHandler{
		Logger:         logger,
		AuthToken:      opts.AuthToken,
		AllowedOrigins: opts.AllowedOrigins,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Method(http.MethodGet, "/status", restHandler(opts.AuthToken, rest.handleStatus))
		api.Method(http.MethodGet, "/logs", restHandler(opts.AuthToken, rest.handleLogs))
		api.Method(http.MethodGet, "/results", restHandler(opts.AuthToken, rest.handleResults))
	})
	r.Get("/metrics", rest.handleMetrics)
	r.Get("/healthz", rest.handleHealth)

	return r
}
