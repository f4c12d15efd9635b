// Package router assembles the HTTP surface of the platform.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agendia-app/agendia-platform/internal/api/handlers"
	apimiddleware "github.com/agendia-app/agendia-platform/internal/api/middleware"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Webhook        *handlers.WebhookHandler
	Health         *handlers.HealthHandler
	JobStatus      *handlers.JobStatusHandler
	FollowUps      *handlers.FollowUpHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(apimiddleware.RequestLogger(cfg.Logger))
	}

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Live)
		r.Get("/health/queue", cfg.Health.QueueHealth)
	}
	if cfg.Webhook != nil {
		r.Post("/webhooks/gateway/messages", cfg.Webhook.HandleMessage)
	}
	if cfg.JobStatus != nil {
		r.Get("/jobs/{jobID}", cfg.JobStatus.Get)
		r.Delete("/jobs/{jobID}", cfg.JobStatus.Cancel)
	}
	if cfg.FollowUps != nil {
		r.Post("/followups/run", cfg.FollowUps.Run)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
