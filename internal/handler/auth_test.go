package handler

import (
	"net/http"
	"testing"

	"github.com/airea/airea/internal/model"
	"github.com/airea/airea/internal/service"
)

// ---------------------------------------------------------------------------
// Key issuance
// ---------------------------------------------------------------------------

func TestGenerateKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "ESP32_A")

	rr := env.do(t, "POST", "/api/auth/generate-key/ESP32_A", nil)
	assertStatus(t, rr, http.StatusOK)

	var issue model.APIKeyIssue
	decodeJSON(t, rr, &issue)
	if issue.APIKey == "" {
		t.Error("expected apiKey in response")
	}
	if issue.DeviceID != "ESP32_A" {
		t.Errorf("deviceId = %q", issue.DeviceID)
	}
	if issue.Message != service.APIKeyNotice {
		t.Errorf("message = %q", issue.Message)
	}
}

func TestGenerateKey_UnknownDevice(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/auth/generate-key/ESP32_NOPE", nil)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestGenerateKey_BadDeviceID(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/auth/generate-key/not-a-sensor", nil)
	assertStatus(t, rr, http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLogin_ValidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "ESP32_A")

	rr := env.do(t, "POST", "/api/auth/generate-key/ESP32_A", nil)
	var issue model.APIKeyIssue
	decodeJSON(t, rr, &issue)

	rr = env.do(t, "POST", "/api/auth/login", toJSON(t, model.LoginRequest{DeviceID: "ESP32_A", APIKey: issue.APIKey}))
	assertStatus(t, rr, http.StatusOK)

	var sess model.Session
	decodeJSON(t, rr, &sess)
	if sess.Token == "" {
		t.Error("expected non-empty token")
	}
	if sess.TokenType != "Bearer" {
		t.Errorf("tokenType = %q, want Bearer", sess.TokenType)
	}
	if sess.ExpiresIn != 86400 {
		t.Errorf("expiresIn = %d, want 86400", sess.ExpiresIn)
	}

	// The session opens authenticated routes.
	rr = env.do(t, "GET", "/api/device/ESP32_A", nil, sess.Token)
	assertStatus(t, rr, http.StatusOK)
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "ESP32_NOKEY")
	env.seedDevice(t, "ESP32_A")
	key, _ := env.authSvc.IssueAPIKey(t.Context(), "ESP32_A")

	env.seedDevice(t, "ESP32_OFF")
	offKey, _ := env.authSvc.IssueAPIKey(t.Context(), "ESP32_OFF")
	off, _ := env.store.FindByExternalID(t.Context(), "ESP32_OFF")
	off.IsActive = false
	env.store.Save(t.Context(), off)

	tests := []struct {
		name    string
		body    interface{}
		status  int
		message string
	}{
		{"wrong key", model.LoginRequest{DeviceID: "ESP32_A", APIKey: "nope"}, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown device", model.LoginRequest{DeviceID: "ESP32_GHOST", APIKey: key.APIKey}, http.StatusUnauthorized, "Invalid credentials"},
		{"deactivated", model.LoginRequest{DeviceID: "ESP32_OFF", APIKey: offKey.APIKey}, http.StatusUnauthorized, "Device is deactivated"},
		{"no key", model.LoginRequest{DeviceID: "ESP32_NOKEY", APIKey: key.APIKey}, http.StatusUnauthorized, "Device has no API key. Please generate one first."},
		{"missing key", model.LoginRequest{DeviceID: "ESP32_A"}, http.StatusBadRequest, "deviceId and apiKey are required"},
		{"missing device", model.LoginRequest{APIKey: key.APIKey}, http.StatusBadRequest, "deviceId and apiKey are required"},
		{"bad device format", model.LoginRequest{DeviceID: "esp32-a", APIKey: key.APIKey}, http.StatusBadRequest, "Invalid device ID format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/auth/login", toJSON(t, tt.body))
			assertStatus(t, rr, tt.status)
			if msg := errorMessage(t, rr); msg != tt.message {
				t.Errorf("message = %q, want %q", msg, tt.message)
			}
		})
	}
}

func TestLogin_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/auth/login", toJSON(t, "not an object"))
	assertStatus(t, rr, http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// Revocation
// ---------------------------------------------------------------------------

func TestRevoke(t *testing.T) {
	env := newTestEnv(t)
	token := env.sessionFor(t, "ESP32_A")

	rr := env.do(t, "DELETE", "/api/auth/revoke/ESP32_A", nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Message  string `json:"message"`
		DeviceID string `json:"deviceId"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Message != "API key revoked successfully" || resp.DeviceID != "ESP32_A" {
		t.Errorf("response = %+v", resp)
	}

	dev, _ := env.store.FindByExternalID(t.Context(), "ESP32_A")
	if dev.HasAPIKey() {
		t.Error("key should be cleared")
	}

	// Sessions already handed out stay valid until they expire.
	rr = env.do(t, "GET", "/api/device/ESP32_A", nil, token)
	assertStatus(t, rr, http.StatusOK)
}

func TestRevoke_UnknownDevice(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "DELETE", "/api/auth/revoke/ESP32_GHOST", nil)
	assertStatus(t, rr, http.StatusOK)
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for path, svc := range map[string]string{
		"/api/auth/health":  "authentication",
		"/api/cough/health": "cough-detection",
	} {
		rr := env.do(t, "GET", path, nil)
		assertStatus(t, rr, http.StatusOK)
		var h struct {
			Status  string `json:"status"`
			Service string `json:"service"`
		}
		decodeJSON(t, rr, &h)
		if h.Status != "healthy" || h.Service != svc {
			t.Errorf("%s: %+v", path, h)
		}
	}
}
