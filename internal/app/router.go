package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-commerce/meridian-admin/internal/gate"
	"github.com/meridian-commerce/meridian-admin/internal/observability"
	"github.com/meridian-commerce/meridian-admin/internal/session"
	"github.com/meridian-commerce/meridian-admin/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Sessions    *session.Manager
	AuthHandler *gate.Handler
	Proxy       *gate.Proxy
	Gate        gate.Middleware
	CSRF        *shared.CSRFManager
	Metrics     *observability.Metrics
}

// NewRouter constructs the chi.Router with gateway defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Sessions: params.Sessions,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.Proxy != nil {
		r.Route("/api", func(r chi.Router) {
			if params.CSRF != nil {
				r.Use(params.Gate.RequireCSRF(params.CSRF))
			}
			params.Proxy.MountRoutes(r, params.Gate)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
