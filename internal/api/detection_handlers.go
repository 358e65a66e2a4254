package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lanternlabs/lantern/internal/data"
	"github.com/lanternlabs/lantern/internal/ingest"
)

// Producer is the push side of the ingest pipeline.
type Producer interface {
	Produce(ctx context.Context, d data.Detection) error
}

// CameraResolver looks up registered cameras; the handler uses it to fill a
// missing location label and to reject disabled sources.
type CameraResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.Camera, error)
}

type DetectionHandler struct {
	Producer Producer
	Cameras  CameraResolver
}

func NewDetectionHandler(p Producer, cams CameraResolver) *DetectionHandler {
	return &DetectionHandler{Producer: p, Cameras: cams}
}

type frameRequest struct {
	CameraID   string    `json:"camera_id"`
	Timestamp  time.Time `json:"timestamp"`
	Location   string    `json:"location"`
	Detections []struct {
		ObjectClass string           `json:"object_class"`
		Confidence  float64          `json:"confidence"`
		Box         data.BoundingBox `json:"bounding_box"`
	} `json:"detections"`
}

// POST /api/v1/detections
// One request per processed frame; each detected object becomes one record.
// The call blocks under channel backpressure until the client context expires,
// which is the flow-control contract with the detector service.
func (h *DetectionHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	cameraID, err := uuid.Parse(req.CameraID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid camera_id")
		return
	}
	if len(req.Detections) == 0 {
		respondJSON(w, http.StatusAccepted, map[string]int{"accepted": 0})
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	location := req.Location
	cam, err := h.Cameras.GetByID(r.Context(), cameraID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "Unknown camera")
			return
		}
		respondError(w, http.StatusInternalServerError, "Camera lookup failed")
		return
	}
	if !cam.IsEnabled {
		respondError(w, http.StatusConflict, "Camera is disabled")
		return
	}
	if location == "" {
		location = cam.Location
	}

	accepted := 0
	for _, obj := range req.Detections {
		d := data.Detection{
			Timestamp:   req.Timestamp.UTC(),
			CameraID:    cameraID,
			Location:    location,
			ObjectClass: obj.ObjectClass,
			Confidence:  obj.Confidence,
			Box:         obj.Box,
		}
		if err := h.Producer.Produce(r.Context(), d); err != nil {
			switch {
			case errors.Is(err, ingest.ErrPipelineClosed):
				respondError(w, http.StatusServiceUnavailable, "Ingest pipeline is shutting down")
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				respondError(w, http.StatusRequestTimeout, "Request cancelled under backpressure")
			default:
				respondError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		accepted++
	}

	respondJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}
