// Package api assembles the Control Plane API: the chi router, JWT
// middleware, and request logging wrapping internal/api/handlers.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/nexus/internal/api/auth"
	"github.com/marmos91/nexus/internal/api/handlers"
	apimiddleware "github.com/marmos91/nexus/internal/api/middleware"
	"github.com/marmos91/nexus/internal/logger"
	"github.com/marmos91/nexus/internal/metrics"
)

// Config configures the Control Plane API server.
type Config struct {
	// RequestTimeout bounds how long a single request may run.
	RequestTimeout time.Duration
}

// NewRouter builds the chi router exposing the routes of SPEC_FULL.md §4.6.
//
// Routes:
//   - GET  /healthz                                   - liveness probe (unauthenticated)
//   - GET  /metrics                                    - Prometheus scrape endpoint (unauthenticated)
//   - PUT  /v1/nexuses/{name}                          - create_nexus
//   - GET  /v1/nexuses/{name}                           - read-only topology snapshot
//   - DELETE /v1/nexuses/{name}                         - destroy_children
//   - POST /v1/nexuses/{name}/children                  - register_children
//   - POST /v1/nexuses/{name}/children/{uri}             - add_child
//   - DELETE /v1/nexuses/{name}/children/{uri}           - remove_child
//   - POST /v1/nexuses/{name}/children/{uri}/offline      - offline_child
//   - POST /v1/nexuses/{name}/children/{uri}/online       - online_child
//   - POST /v1/nexuses/{name}/children/{uri}/fault        - fault_child
//   - POST /v1/nexuses/{name}/open                       - try_open_children
//   - GET  /v1/nexuses/{name}/labels                      - update_child_labels
func NewRouter(mgr handlers.Manager, jwtSvc *auth.Service, cfg Config) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics.IsEnabled() {
		r.Handle("/metrics", metrics.Handler())
	}

	nexusHandler := handlers.NewNexusHandler(mgr)

	r.Route("/v1/nexuses/{name}", func(r chi.Router) {
		r.Use(apimiddleware.JWTAuth(jwtSvc))

		r.Put("/", nexusHandler.Create)
		r.Get("/", nexusHandler.Show)
		r.Delete("/", nexusHandler.Destroy)
		r.Post("/open", nexusHandler.Open)
		r.Get("/labels", nexusHandler.Labels)

		r.Route("/children", func(r chi.Router) {
			r.Post("/", nexusHandler.RegisterChildren)
			r.Post("/{uri}", nexusHandler.AddChild)
			r.Delete("/{uri}", nexusHandler.RemoveChild)
			r.Post("/{uri}/offline", nexusHandler.OfflineChild)
			r.Post("/{uri}/online", nexusHandler.OnlineChild)
			r.Post("/{uri}/fault", nexusHandler.FaultChild)
		})
	})

	return r
}

func isHealthPath(path string) bool {
	return path == "/healthz" || path == "/metrics"
}

// requestLogger logs every request via the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		args := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}
		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", args...)
		} else {
			logger.Info("API request completed", args...)
		}
	})
}
