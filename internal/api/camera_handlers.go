package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lanternlabs/lantern/internal/data"
)

// CameraRepository is the registry storage behind the CRUD endpoints.
type CameraRepository interface {
	Create(ctx context.Context, c *data.Camera) error
	GetByID(ctx context.Context, id uuid.UUID) (*data.Camera, error)
	List(ctx context.Context) ([]data.Camera, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

type CameraHandler struct {
	Repo CameraRepository
}

func NewCameraHandler(repo CameraRepository) *CameraHandler {
	return &CameraHandler{Repo: repo}
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// POST /api/v1/cameras
func (h *CameraHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Location string `json:"location"`
		Channel  int    `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}

	c := &data.Camera{
		Name:      req.Name,
		Location:  req.Location,
		Channel:   req.Channel,
		IsEnabled: true,
	}
	if err := h.Repo.Create(r.Context(), c); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// GET /api/v1/cameras
func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	cameras, err := h.Repo.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cameras == nil {
		cameras = []data.Camera{}
	}
	respondJSON(w, http.StatusOK, cameras)
}

// GET /api/v1/cameras/{id}
func (h *CameraHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid camera ID")
		return
	}

	cam, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "Camera not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cam)
}

// POST /api/v1/cameras/{id}/enable
func (h *CameraHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// POST /api/v1/cameras/{id}/disable
func (h *CameraHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *CameraHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid camera ID")
		return
	}

	if err := h.Repo.SetEnabled(r.Context(), id, enabled); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "Camera not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"is_enabled": enabled})
}
