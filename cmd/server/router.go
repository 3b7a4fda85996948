package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"piivault/internal/platform/config"
	"piivault/internal/platform/health"
	"piivault/internal/platform/metrics"
	"piivault/internal/platform/middleware"
)

const maxBodyBytes = 1 << 20

// routes is implemented by every domain handler.
type routes interface {
	Register(r chi.Router)
}

type adminRoutes interface {
	RegisterAdmin(r chi.Router)
}

// newRouter wires the middleware stack and mounts health, metrics, and the
// authenticated API.
func newRouter(
	cfg *config.Config,
	log *slog.Logger,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	validator middleware.TokenValidator,
	healthHandler *health.Handler,
	handlers []routes,
) (http.Handler, error) {
	trusted, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata(trusted))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(m))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		api.Use(middleware.BodyLimit(maxBodyBytes))
		api.Use(middleware.ContentTypeJSON)
		api.Use(middleware.RequireAuth(validator, log))
		for _, h := range handlers {
			h.Register(api)
			if admin, ok := h.(adminRoutes); ok {
				admin.RegisterAdmin(api)
			}
		}
	})
	return r, nil
}
