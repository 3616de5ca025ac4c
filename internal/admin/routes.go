// Package admin implements the read-only dispatch-introspection HTTP
// surface: controller and task snapshots, queue depths, a Prometheus
// /metrics endpoint, and a live event feed over WebSocket. It never
// mutates dispatch state — there is no durable or authenticated admin
// control plane in this system, only observability.
package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gabrieleiannetti/cyclone/internal/admin/feed"
	adminMiddleware "github.com/gabrieleiannetti/cyclone/internal/admin/middleware"
	"github.com/gabrieleiannetti/cyclone/internal/events"
)

// Config controls the optional gates on the admin surface.
type Config struct {
	Auth         adminMiddleware.AuthConfig
	RateLimitRPS int
}

// Server is the admin HTTP surface: a chi router wired to a dispatch-loop
// Introspector and an event publisher.
type Server struct {
	router *chi.Mux
}

// New builds the admin server. cfg.RateLimitRPS <= 0 disables rate
// limiting; cfg.Auth.Enabled false (the default) disables the JWT gate.
func New(introspector Introspector, publisher *events.Publisher, cfg Config) *Server {
	h := &handlers{m: introspector}
	fh := feed.NewHandler(publisher)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/admin", func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(adminMiddleware.RateLimit(cfg.RateLimitRPS))
		}
		r.Use(adminMiddleware.Auth(cfg.Auth))

		r.Get("/health", h.health)
		r.Get("/status", h.status)
		r.Get("/controllers", h.controllers)
		r.Get("/tasks", h.tasks)
	})

	r.Get("/feed", fh.ServeWS)
	r.Handle("/metrics", promhttp.Handler())

	return &Server{router: r}
}

// ServeHTTP implements http.Handler so Server can back an http.Server
// directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
