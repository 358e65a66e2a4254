package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lanternlabs/lantern/internal/metrics"
	"github.com/lanternlabs/lantern/internal/middleware"
)

// NewRouter wires all HTTP surface: the detector push endpoint, the camera
// registry, dashboard stats, health and the Prometheus scrape target.
func NewRouter(det *DetectionHandler, cams *CameraHandler, st *StatsHandler, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/detections", det.Ingest)

		r.Route("/cameras", func(r chi.Router) {
			r.Post("/", cams.Create)
			r.Get("/", cams.List)
			r.Get("/{id}", cams.Get)
			r.Post("/{id}/enable", cams.Enable)
			r.Post("/{id}/disable", cams.Disable)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/cameras", st.CameraCounts)
			r.Get("/hourly", st.Hourly)
			r.Get("/locations", st.TopLocations)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
