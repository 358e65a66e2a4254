package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lanternlabs/lantern/internal/stats"
)

type StatsHandler struct {
	Service *stats.Service
}

func NewStatsHandler(svc *stats.Service) *StatsHandler {
	return &StatsHandler{Service: svc}
}

// GET /api/v1/stats/cameras?hours=24
func (h *StatsHandler) CameraCounts(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 24*31 {
			respondError(w, http.StatusBadRequest, "Invalid hours")
			return
		}
		hours = n
	}

	out, err := h.Service.DetectionCounts(r.Context(), hours)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /api/v1/stats/hourly?date=2026-08-28
func (h *StatsHandler) Hourly(w http.ResponseWriter, r *http.Request) {
	day, ok := h.parseDate(w, r)
	if !ok {
		return
	}

	out, err := h.Service.HourlyCounts(r.Context(), day)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /api/v1/stats/locations?date=2026-08-28&limit=5
func (h *StatsHandler) TopLocations(w http.ResponseWriter, r *http.Request) {
	day, ok := h.parseDate(w, r)
	if !ok {
		return
	}

	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	out, err := h.Service.TopLocations(r.Context(), day, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *StatsHandler) parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return time.Now(), true
	}
	day, err := time.Parse("2006-01-02", v)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date, want YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}
