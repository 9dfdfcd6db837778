package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vitrine/gateway/middleware"
)

// Config wires the daemon's HTTP surface.
type Config struct {
	RPCHandler    http.Handler
	EventsHandler http.Handler
	HealthHandler http.Handler
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// New mounts /rpc, /ws/events, /healthz and /metrics.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	health := cfg.HealthHandler
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}
	r.Get("/healthz", health.ServeHTTP)

	r.Group(func(sr chi.Router) {
		if cfg.Authenticator != nil {
			sr.Use(cfg.Authenticator.Middleware())
		}
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("rpc"))
		}
		if obs != nil {
			sr.Use(obs.Middleware("rpc"))
		}
		if cfg.RPCHandler != nil {
			sr.Handle("/rpc", cfg.RPCHandler)
		}
	})

	if cfg.EventsHandler != nil {
		r.Group(func(sr chi.Router) {
			if cfg.Authenticator != nil {
				sr.Use(cfg.Authenticator.Middleware())
			}
			sr.Handle("/ws/events", cfg.EventsHandler)
		})
	}

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}
	return r
}
