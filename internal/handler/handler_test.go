package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/airea/airea/internal/config"
	"github.com/airea/airea/internal/model"
	"github.com/airea/airea/internal/server/middleware"
	"github.com/airea/airea/internal/service"
)

const testSigningKey = "handler-test-signing-key-32-bytes!"

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *config.Store
	authSvc *service.AuthService
	router  chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// Chi router carrying the device routes. Authenticated routes sit behind
// middleware.Authenticate so handlers see a real device in context.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	hasher, err := service.NewHasher(service.HashBcrypt, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	codec, err := service.NewTokenCodec("primary", testSigningKey)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	authSvc := service.NewAuthService(store, hasher, codec)

	pattern, err := NewDeviceIDPattern(`^ESP32_[A-Z0-9_]+$`)
	if err != nil {
		t.Fatalf("NewDeviceIDPattern: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authH := NewAuthHandler(authSvc, pattern, logger)
	deviceH := NewDeviceHandler(store, pattern, logger)
	coughH := NewCoughHandler(store, logger)

	r := chi.NewRouter()
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/generate-key/{deviceId}", authH.GenerateKey)
		r.Post("/login", authH.Login)
		r.Delete("/revoke/{deviceId}", authH.Revoke)
		r.Get("/health", authH.Health)
	})
	r.Get("/api/cough/health", coughH.Health)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(authSvc, nil))
		r.Post("/api/device/register", deviceH.Register)
		r.Get("/api/device/active", deviceH.ListActive)
		r.Get("/api/device/all", deviceH.ListAll)
		r.Get("/api/device/{deviceId}", deviceH.Get)
		r.Put("/api/device/{deviceId}", deviceH.Update)
		r.Delete("/api/device/{deviceId}", deviceH.Deactivate)
		r.Post("/api/cough/event", coughH.CreateEvent)
		r.Get("/api/cough/device/{deviceId}", coughH.ListByDevice)
	})

	return &testEnv{store: store, authSvc: authSvc, router: r}
}

// seedDevice registers a device directly in the store.
func (e *testEnv) seedDevice(t *testing.T, id string) *model.Device {
	t.Helper()
	d, _, err := e.store.RegisterDevice(context.Background(), &model.Device{DeviceID: id, DeviceName: "Test " + id})
	if err != nil {
		t.Fatalf("seedDevice: %v", err)
	}
	return d
}

// sessionFor registers id, issues a key and logs in, returning the bearer
// token.
func (e *testEnv) sessionFor(t *testing.T, id string) string {
	t.Helper()
	ctx := context.Background()
	e.seedDevice(t, id)
	issue, err := e.authSvc.IssueAPIKey(ctx, id)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	sess, err := e.authSvc.Authenticate(ctx, id, issue.APIKey)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return sess.Token
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, token ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(token) > 0 {
		req.Header.Set("Authorization", "Bearer "+token[0])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var er model.ErrorResponse
	decodeJSON(t, rr, &er)
	return er.Error.Message
}
