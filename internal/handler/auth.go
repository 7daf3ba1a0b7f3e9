package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/airea/airea/internal/model"
	"github.com/airea/airea/internal/service"
)

// AuthHandler exposes API key issuance, device login and key revocation.
// Its routes are public; the admission pipeline still rate limits them.
type AuthHandler struct {
	auth    *service.AuthService
	pattern *DeviceIDPattern
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService, pattern *DeviceIDPattern, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, pattern: pattern, logger: logger}
}

// GenerateKey issues a fresh API key for a registered device. Any previous
// key stops working.
// POST /api/auth/generate-key/{deviceId}
func (h *AuthHandler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if !h.pattern.Valid(deviceID) {
		writeError(w, http.StatusBadRequest, "Invalid device ID format")
		return
	}

	issue, err := h.auth.IssueAPIKey(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "Device not found: "+deviceID)
			return
		}
		writeInternalError(w, r, h.logger, "issue api key failed", err)
		return
	}

	h.logger.InfoContext(r.Context(), "api key issued", "device", deviceID)
	writeJSON(w, http.StatusOK, issue)
}

// Login exchanges a device's API key for a session token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DeviceID == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "deviceId and apiKey are required")
		return
	}
	if !h.pattern.Valid(req.DeviceID) {
		writeError(w, http.StatusBadRequest, "Invalid device ID format")
		return
	}

	session, err := h.auth.Authenticate(r.Context(), req.DeviceID, req.APIKey)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, session)
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrDeviceDeactivated):
		writeError(w, http.StatusUnauthorized, "Device is deactivated")
	case errors.Is(err, service.ErrNoKeyIssued):
		writeError(w, http.StatusUnauthorized, "Device has no API key. Please generate one first.")
	default:
		writeInternalError(w, r, h.logger, "device login failed", err)
	}
}

// Revoke clears a device's API key. It succeeds whether or not the device
// exists or holds a key.
// DELETE /api/auth/revoke/{deviceId}
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if err := h.auth.RevokeAPIKey(r.Context(), deviceID); err != nil {
		writeInternalError(w, r, h.logger, "revoke api key failed", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message:  "API key revoked successfully",
		DeviceID: deviceID,
	})
}

// Health reports liveness of the authentication area.
// GET /api/auth/health
func (h *AuthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: "authentication"})
}
