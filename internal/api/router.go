package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ad-reporting-engine/internal/observability"
)

// Router mounts the reporting API. requestTimeout should exceed the
// reporting overall timeout so the pipeline resolves first.
func Router(h *ReportingHandler, health func(context.Context) error, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Post("/v1/ad-selections/{id}/report-impression", h.ReportImpression)
	r.Route("/v1/dev/overrides", func(r chi.Router) {
		r.Put("/ad-selection-config", h.PutAdSelectionOverride)
		r.Delete("/ad-selection-config", h.DeleteAdSelectionOverride)
		r.Delete("/ad-selection-config/all", h.ResetAdSelectionOverrides)
		r.Put("/custom-audience", h.PutCustomAudienceOverride)
		r.Delete("/custom-audience", h.DeleteCustomAudienceOverride)
		r.Delete("/custom-audience/all", h.ResetCustomAudienceOverrides)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(req.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
