package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fieldpay-hr/fieldpay/internal/batch"
	"github.com/fieldpay-hr/fieldpay/internal/claims"
	"github.com/fieldpay-hr/fieldpay/internal/directory"
	"github.com/fieldpay-hr/fieldpay/internal/observability"
	"github.com/fieldpay-hr/fieldpay/internal/payout"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
	"github.com/fieldpay-hr/fieldpay/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Actors        directory.Middleware
	ClaimsHandler *claims.Handler
	PayoutHandler *payout.Handler
	BatchHandler  *batch.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	// Everything below requires a resolved actor.
	r.Group(func(r chi.Router) {
		r.Use(params.Actors.ResolveActor)

		r.Route("/claims", params.ClaimsHandler.MountRoutes)
		if params.PayoutHandler != nil {
			r.Route("/payout", params.PayoutHandler.MountRoutes)
		}
		if params.BatchHandler != nil {
			r.Route("/batch", func(r chi.Router) {
				r.Use(params.Actors.RequireRole(shared.RoleReviewer))
				params.BatchHandler.MountRoutes(r)
			})
		}
		if params.JobHandler != nil {
			r.Route("/tasks", func(r chi.Router) {
				r.Use(params.Actors.RequireRole(shared.RoleReviewer))
				params.JobHandler.MountEnqueueRoutes(r)
			})
		}
		r.Route("/maintenance", func(r chi.Router) {
			r.Use(params.Actors.RequireRole(shared.RoleAdmin))
			params.ClaimsHandler.MountMaintenanceRoutes(r)
		})
	})

	return r
}
