package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/airea/airea/internal/model"
	"github.com/airea/airea/internal/server/middleware"
)

// CoughStore persists cough detections.
type CoughStore interface {
	CreateCoughEvent(ctx context.Context, e *model.CoughEvent) error
	ListCoughEvents(ctx context.Context, deviceID string, from, to *time.Time) ([]model.CoughEvent, error)
}

// CoughHandler accepts detections from authenticated devices and serves
// them back per device.
type CoughHandler struct {
	store  CoughStore
	logger *slog.Logger
}

// NewCoughHandler creates a new CoughHandler.
func NewCoughHandler(store CoughStore, logger *slog.Logger) *CoughHandler {
	return &CoughHandler{store: store, logger: logger}
}

type coughEventRequest struct {
	DeviceID    string     `json:"deviceId"`
	CoughType   string     `json:"coughType"`
	Confidence  *float64   `json:"confidence"`
	RawScore    *float64   `json:"rawScore"`
	Timestamp   *eventTime `json:"timestamp"`
	AudioVolume *float64   `json:"audioVolume"`
}

// CreateEvent records a detection for the calling device. The device is
// taken from the session; a body deviceId naming another device is refused.
// POST /api/cough/event
func (h *CoughHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetDeviceID(r.Context())
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req coughEventRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DeviceID != "" && req.DeviceID != caller {
		writeError(w, http.StatusForbidden, "Devices may only report their own events")
		return
	}
	if req.CoughType == "" {
		req.CoughType = model.CoughUnknown
	}
	if !model.ValidCoughType(req.CoughType) {
		writeError(w, http.StatusBadRequest, "coughType must be one of dry, wet, unknown")
		return
	}
	if req.Confidence == nil || *req.Confidence < 0 || *req.Confidence > 1 {
		writeError(w, http.StatusBadRequest, "confidence is required and must be between 0 and 1")
		return
	}

	event := &model.CoughEvent{
		DeviceID:    caller,
		CoughType:   req.CoughType,
		Confidence:  *req.Confidence,
		RawScore:    req.RawScore,
		AudioVolume: req.AudioVolume,
	}
	if req.Timestamp != nil {
		event.Timestamp = req.Timestamp.Time
	}

	if err := h.store.CreateCoughEvent(r.Context(), event); err != nil {
		writeInternalError(w, r, h.logger, "store cough event failed", err)
		return
	}
	h.logger.DebugContext(r.Context(), "cough event stored",
		"device", caller, "type", event.CoughType, "confidence", event.Confidence)
	writeJSON(w, http.StatusCreated, event)
}

// ListByDevice returns a device's detections, newest first, optionally
// bounded by start and end (Unix milliseconds, inclusive).
// GET /api/cough/device/{deviceId}
func (h *CoughHandler) ListByDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	from, err := queryEpochMillis(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryEpochMillis(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		writeError(w, http.StatusBadRequest, "end must not be before start")
		return
	}

	events, err := h.store.ListCoughEvents(r.Context(), deviceID, from, to)
	if err != nil {
		writeInternalError(w, r, h.logger, "list cough events failed", err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: events,
		Meta:     &model.ResponseMeta{Count: len(events)},
	})
}

// Health reports liveness of the cough detection area.
// GET /api/cough/health
func (h *CoughHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: "cough-detection"})
}
