package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/airea/airea/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterDevice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dev, created, err := s.RegisterDevice(ctx, &model.Device{
		DeviceID:   "ESP32_LIVING_ROOM",
		DeviceName: "Living room",
		Location:   "Ground floor",
	})
	if err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	if !created {
		t.Error("expected created=true on first registration")
	}
	if dev.ID == "" {
		t.Error("expected generated ID")
	}
	if !dev.IsActive {
		t.Error("new devices should be active")
	}
	if dev.HasAPIKey() {
		t.Error("new devices should have no key")
	}

	// Registering again returns the existing record untouched.
	again, created, err := s.RegisterDevice(ctx, &model.Device{
		DeviceID:   "ESP32_LIVING_ROOM",
		DeviceName: "Renamed",
	})
	if err != nil {
		t.Fatalf("RegisterDevice (again): %v", err)
	}
	if created {
		t.Error("expected created=false for existing device")
	}
	if again.ID != dev.ID {
		t.Errorf("ID = %q, want %q", again.ID, dev.ID)
	}
	if again.DeviceName != "Living room" {
		t.Errorf("DeviceName = %q, want original %q", again.DeviceName, "Living room")
	}
}

func TestFindByExternalIDNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindByExternalID(context.Background(), "ESP32_MISSING")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAPIKeyPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dev, _, err := s.RegisterDevice(ctx, &model.Device{DeviceID: "ESP32_A"})
	if err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	issued := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	dev.SetAPIKey("$2a$10$abcdefghijklmnopqrstuv", issued)
	if _, err := s.Save(ctx, dev); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.FindByExternalID(ctx, "ESP32_A")
	if err != nil {
		t.Fatalf("FindByExternalID: %v", err)
	}
	if got.APIKeyHash != "$2a$10$abcdefghijklmnopqrstuv" {
		t.Errorf("APIKeyHash = %q", got.APIKeyHash)
	}
	if got.APIKeyIssuedAt == nil || !got.APIKeyIssuedAt.Equal(issued) {
		t.Errorf("APIKeyIssuedAt = %v, want %v", got.APIKeyIssuedAt, issued)
	}

	got.ClearAPIKey()
	if _, err := s.Save(ctx, got); err != nil {
		t.Fatalf("Save (clear): %v", err)
	}
	cleared, err := s.FindByExternalID(ctx, "ESP32_A")
	if err != nil {
		t.Fatalf("FindByExternalID: %v", err)
	}
	if cleared.HasAPIKey() || cleared.APIKeyIssuedAt != nil {
		t.Errorf("expected cleared pair, got hash=%q issuedAt=%v", cleared.APIKeyHash, cleared.APIKeyIssuedAt)
	}
}

func TestSaveUnknownDevice(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Save(context.Background(), &model.Device{DeviceID: "ESP32_GHOST", IsActive: true})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListDevices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"ESP32_B", "ESP32_A", "ESP32_C"} {
		if _, _, err := s.RegisterDevice(ctx, &model.Device{DeviceID: id}); err != nil {
			t.Fatalf("RegisterDevice(%s): %v", id, err)
		}
	}

	b, _ := s.FindByExternalID(ctx, "ESP32_B")
	b.IsActive = false
	if _, err := s.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	all, err := s.ListDevices(ctx, false)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d devices, want 3", len(all))
	}
	if all[0].DeviceID != "ESP32_A" {
		t.Errorf("first device = %q, want ESP32_A (ordered by id)", all[0].DeviceID)
	}

	active, err := s.ListDevices(ctx, true)
	if err != nil {
		t.Fatalf("ListDevices(active): %v", err)
	}
	if len(active) != 2 {
		t.Errorf("got %d active devices, want 2", len(active))
	}
	for _, d := range active {
		if d.DeviceID == "ESP32_B" {
			t.Error("deactivated device listed as active")
		}
	}
}

func TestCoughEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := 0.93
	for i := 0; i < 3; i++ {
		e := &model.CoughEvent{
			DeviceID:   "ESP32_A",
			CoughType:  model.CoughDry,
			Confidence: 0.8,
			RawScore:   &raw,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.CreateCoughEvent(ctx, e); err != nil {
			t.Fatalf("CreateCoughEvent: %v", err)
		}
		if e.ID == "" {
			t.Error("expected generated event ID")
		}
	}
	if err := s.CreateCoughEvent(ctx, &model.CoughEvent{DeviceID: "ESP32_OTHER", CoughType: model.CoughWet, Confidence: 0.5}); err != nil {
		t.Fatalf("CreateCoughEvent: %v", err)
	}

	events, err := s.ListCoughEvents(ctx, "ESP32_A", nil, nil)
	if err != nil {
		t.Fatalf("ListCoughEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if !events[0].Timestamp.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("first event at %v, want newest first", events[0].Timestamp)
	}
	if events[0].RawScore == nil || *events[0].RawScore != raw {
		t.Errorf("RawScore = %v, want %v", events[0].RawScore, raw)
	}
	if events[0].AudioVolume != nil {
		t.Errorf("AudioVolume = %v, want nil", *events[0].AudioVolume)
	}

	from := base.Add(30 * time.Minute)
	to := base.Add(90 * time.Minute)
	ranged, err := s.ListCoughEvents(ctx, "ESP32_A", &from, &to)
	if err != nil {
		t.Fatalf("ListCoughEvents(range): %v", err)
	}
	if len(ranged) != 1 {
		t.Fatalf("got %d events in range, want 1", len(ranged))
	}
	if !ranged[0].Timestamp.Equal(base.Add(time.Hour)) {
		t.Errorf("ranged event at %v, want %v", ranged[0].Timestamp, base.Add(time.Hour))
	}
}

func TestOpenStoreUnsupportedDriver(t *testing.T) {
	_, err := OpenStore("oracle", "whatever")
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Errorf("second migrate: %v", err)
	}
}

func TestNewStoreFileUsesWAL(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.db.Get(&mode, "PRAGMA journal_mode"); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var timeout int
	if err := s.db.Get(&timeout, "PRAGMA busy_timeout"); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}
