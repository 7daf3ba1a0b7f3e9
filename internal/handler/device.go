package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/airea/airea/internal/config"
	"github.com/airea/airea/internal/model"
)

// DeviceStore is the persistence the device registry needs.
type DeviceStore interface {
	RegisterDevice(ctx context.Context, d *model.Device) (*model.Device, bool, error)
	FindByExternalID(ctx context.Context, deviceID string) (*model.Device, error)
	Save(ctx context.Context, d *model.Device) (*model.Device, error)
	ListDevices(ctx context.Context, activeOnly bool) ([]model.Device, error)
}

// DeviceHandler manages the device registry.
type DeviceHandler struct {
	store   DeviceStore
	pattern *DeviceIDPattern
	logger  *slog.Logger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(store DeviceStore, pattern *DeviceIDPattern, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{store: store, pattern: pattern, logger: logger}
}

type registerDeviceRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Location   string `json:"location"`
}

// updateDeviceRequest leaves fields that are absent from the body unchanged.
type updateDeviceRequest struct {
	DeviceName *string `json:"deviceName"`
	Location   *string `json:"location"`
}

// Register adds a device, or returns the existing record for a known ID.
// POST /api/device/register
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.pattern.Valid(req.DeviceID) {
		writeError(w, http.StatusBadRequest, "Invalid device ID format",
			map[string]interface{}{"pattern": h.pattern.String()})
		return
	}

	dev, created, err := h.store.RegisterDevice(r.Context(), &model.Device{
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		Location:   req.Location,
	})
	if err != nil {
		writeInternalError(w, r, h.logger, "register device failed", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.InfoContext(r.Context(), "device registered", "device", dev.DeviceID)
	}
	writeJSON(w, status, dev)
}

// ListActive returns active devices.
// GET /api/device/active
func (h *DeviceHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// ListAll returns every registered device.
// GET /api/device/all
func (h *DeviceHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *DeviceHandler) list(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	devices, err := h.store.ListDevices(r.Context(), activeOnly)
	if err != nil {
		writeInternalError(w, r, h.logger, "list devices failed", err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: devices,
		Meta:     &model.ResponseMeta{Count: len(devices)},
	})
}

// Get returns one device.
// GET /api/device/{deviceId}
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.find(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// Update changes a device's name and location.
// PUT /api/device/{deviceId}
func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	dev, ok := h.find(w, r)
	if !ok {
		return
	}
	if req.DeviceName != nil {
		dev.DeviceName = *req.DeviceName
	}
	if req.Location != nil {
		dev.Location = *req.Location
	}
	h.save(w, r, dev)
}

// Deactivate marks a device inactive. Its key is kept but no longer
// authenticates.
// DELETE /api/device/{deviceId}
func (h *DeviceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.find(w, r)
	if !ok {
		return
	}
	dev.IsActive = false
	if _, err := h.store.Save(r.Context(), dev); err != nil {
		writeInternalError(w, r, h.logger, "deactivate device failed", err)
		return
	}
	h.logger.InfoContext(r.Context(), "device deactivated", "device", dev.DeviceID)
	writeJSON(w, http.StatusOK, messageResponse{
		Message:  "Device deactivated successfully",
		DeviceID: dev.DeviceID,
	})
}

func (h *DeviceHandler) find(w http.ResponseWriter, r *http.Request) (*model.Device, bool) {
	deviceID := chi.URLParam(r, "deviceId")
	dev, err := h.store.FindByExternalID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Device not found: "+deviceID)
			return nil, false
		}
		writeInternalError(w, r, h.logger, "get device failed", err)
		return nil, false
	}
	return dev, true
}

func (h *DeviceHandler) save(w http.ResponseWriter, r *http.Request, dev *model.Device) {
	saved, err := h.store.Save(r.Context(), dev)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Device not found: "+dev.DeviceID)
			return
		}
		writeInternalError(w, r, h.logger, "update device failed", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
