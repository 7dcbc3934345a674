// Package httptransport assembles the API surface: platform middleware
// chain, authenticated feature routers, and the operational endpoints.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	notifyhandler "github.com/musicamatics/queueskip/internal/notify/handler"
	passhandler "github.com/musicamatics/queueskip/internal/pass/handler"
	"github.com/musicamatics/queueskip/internal/platform/metrics"
	"github.com/musicamatics/queueskip/internal/platform/middleware"
	rotationhandler "github.com/musicamatics/queueskip/internal/rotation/handler"
)

const requestTimeout = 30 * time.Second

// Health reports readiness of a backing dependency.
type Health interface {
	Health(w http.ResponseWriter, r *http.Request)
}

// Deps carries everything the router mounts.
type Deps struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Validator middleware.IdentityValidator

	// Limiter throttles the authenticated JSON API per caller. Nil disables
	// rate limiting.
	Limiter *middleware.SlidingWindow

	Passes   *passhandler.Handler
	Rotation *rotationhandler.Handler
	Events   *notifyhandler.Handler

	Healthz http.HandlerFunc
}

// NewRouter wires the full HTTP surface.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	if d.Metrics != nil {
		r.Use(metrics.Latency(d.Metrics))
	}

	r.Get("/healthz", d.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.RequireAuth(d.Validator, d.Logger))

		// Event streams hold their connection open; everything else gets the
		// request timeout and JSON content type.
		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(requestTimeout))
			g.Use(middleware.ContentTypeJSON)
			if d.Limiter != nil {
				g.Use(middleware.RateLimit(d.Limiter, d.Logger))
			}
			d.Passes.Register(g)
			d.Rotation.Register(g)
		})
		d.Events.Register(api)
	})

	return r
}
