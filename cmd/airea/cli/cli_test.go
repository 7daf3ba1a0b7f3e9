package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/airea/airea/internal/config"
)

const testSigningKey = "cli-test-signing-key-0123456789abcdef"

// useTestConfig resets the global viper state to defaults with a signing key
// and a temporary data directory.
func useTestConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults(viper.GetViper())
	viper.Set("auth.signing_key", testSigningKey)
	viper.Set("auth.hash_cost", bcrypt.MinCost)

	dataDir = t.TempDir()
	t.Cleanup(func() { dataDir = "" })
}

func TestDeviceKeyTokenFlow(t *testing.T) {
	useTestConfig(t)

	var out bytes.Buffer
	if err := runDeviceRegister(&out, "ESP32_KITCHEN", "Kitchen", "Ground floor"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.Contains(out.String(), "Registered device ESP32_KITCHEN") {
		t.Errorf("register output = %q", out.String())
	}

	out.Reset()
	if err := runDeviceRegister(&out, "ESP32_KITCHEN", "", ""); err != nil {
		t.Fatalf("second register: %v", err)
	}
	if !strings.Contains(out.String(), "already registered") {
		t.Errorf("second register output = %q", out.String())
	}

	out.Reset()
	if err := runKeyIssue(&out, "ESP32_KITCHEN", false); err != nil {
		t.Fatalf("key issue: %v", err)
	}
	rawKey := strings.TrimSpace(out.String())
	if strings.Count(rawKey, ".") != 2 {
		t.Fatalf("non-interactive issue should print only the key, got %q", rawKey)
	}

	out.Reset()
	if err := runTokenInspect(&out, rawKey, true); err != nil {
		t.Fatalf("token inspect: %v", err)
	}
	var info tokenInfo
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("decode inspect output: %v", err)
	}
	if info.Subject != "ESP32_KITCHEN" || info.Kind != "api_key" {
		t.Errorf("inspect = %+v, want subject ESP32_KITCHEN kind api_key", info)
	}
	if !info.ExpiresAt.After(info.IssuedAt) {
		t.Errorf("expiresAt %v not after issuedAt %v", info.ExpiresAt, info.IssuedAt)
	}

	out.Reset()
	if err := runDeviceList(&out, false, false); err != nil {
		t.Fatalf("device list: %v", err)
	}
	if !strings.Contains(out.String(), "ESP32_KITCHEN") {
		t.Errorf("list output missing device: %q", out.String())
	}

	out.Reset()
	if err := runKeyRevoke(&out, "ESP32_KITCHEN"); err != nil {
		t.Fatalf("key revoke: %v", err)
	}
	if err := runDeviceDeactivate(&out, "ESP32_KITCHEN"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	out.Reset()
	if err := runDeviceList(&out, true, true); err != nil {
		t.Fatalf("active list: %v", err)
	}
	var devices []map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &devices); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("active devices = %v, want none after deactivate", devices)
	}
}

func TestDeviceRegisterRejectsBadID(t *testing.T) {
	useTestConfig(t)

	var out bytes.Buffer
	if err := runDeviceRegister(&out, "kitchen", "", ""); err == nil {
		t.Fatal("expected error for an ID outside the device pattern")
	}
}

func TestKeyIssueUnknownDevice(t *testing.T) {
	useTestConfig(t)

	var out bytes.Buffer
	err := runKeyIssue(&out, "ESP32_MISSING", false)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestKeyIssueRequiresSigningKey(t *testing.T) {
	useTestConfig(t)
	viper.Set("auth.signing_key", "")

	var out bytes.Buffer
	if err := runDeviceRegister(&out, "ESP32_KITCHEN", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := runKeyIssue(&out, "ESP32_KITCHEN", false); err != errNoSigningKey {
		t.Fatalf("err = %v, want errNoSigningKey", err)
	}
}

func TestTokenInspectRejectsForeignToken(t *testing.T) {
	useTestConfig(t)

	var out bytes.Buffer
	if err := runTokenInspect(&out, "not-a-token", false); err == nil {
		t.Fatal("expected malformed token to be rejected")
	}
	if err := runTokenInspect(&out, "", false); err == nil {
		t.Fatal("expected empty token to be rejected")
	}
}

func TestReadTokenFromPipe(t *testing.T) {
	got, err := readToken(strings.NewReader("  abc.def.ghi  \nextra\n"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("readToken: %v", err)
	}
	if got != "abc.def.ghi" {
		t.Errorf("readToken = %q, want abc.def.ghi", got)
	}

	got, err = readToken(strings.NewReader("abc.def.ghi"), &bytes.Buffer{})
	if err != nil || got != "abc.def.ghi" {
		t.Errorf("readToken without newline = %q, %v", got, err)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airea.yaml")

	var out bytes.Buffer
	if err := runConfigInit(&out, path, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := runConfigInit(&out, path, false); err == nil {
		t.Fatal("expected error when the file exists without --force")
	}
	if err := runConfigInit(&out, path, true); err != nil {
		t.Fatalf("init --force: %v", err)
	}

	// The written file must load and validate.
	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read generated config: %v", err)
	}
	s, err := config.Load(v)
	if err != nil {
		t.Fatalf("load generated config: %v", err)
	}
	if s.RateLimit.Capacity != 100 || s.Auth.HashAlgorithm != "bcrypt" {
		t.Errorf("generated settings = %+v", s)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	useTestConfig(t)
	viper.Set("auth.retired_signing_keys", map[string]interface{}{"old": "retired-signing-key-0123456789abcdef"})

	var out bytes.Buffer
	if err := runConfigShow(&out); err != nil {
		t.Fatalf("show: %v", err)
	}
	s := out.String()
	if strings.Contains(s, testSigningKey) || strings.Contains(s, "retired-signing-key") {
		t.Errorf("config show leaked a signing key:\n%s", s)
	}
	if !strings.Contains(s, "old:") || !strings.Contains(s, redacted) {
		t.Errorf("retired key ID should remain visible:\n%s", s)
	}
	if !strings.Contains(s, "capacity: 100") {
		t.Errorf("expected rate_limit.capacity in output:\n%s", s)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, config.LogSettings{Level: "warn", Format: "json"}, false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("json logger output = %q", buf.String())
	}

	buf.Reset()
	logger, err = newLogger(&buf, config.LogSettings{Level: "error", Format: "text"}, true)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("debug line")
	if !strings.Contains(buf.String(), "debug line") {
		t.Errorf("dev mode should force debug, got %q", buf.String())
	}

	if _, err := newLogger(&buf, config.LogSettings{Level: "loud", Format: "text"}, false); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestResolveDataDir(t *testing.T) {
	dataDir = ""
	t.Setenv("AIREA_DATA_DIR", "/srv/airea")
	if got := resolveDataDir(); got != "/srv/airea" {
		t.Errorf("resolveDataDir = %q, want env value", got)
	}

	dataDir = "/tmp/flag"
	defer func() { dataDir = "" }()
	if got := resolveDataDir(); got != "/tmp/flag" {
		t.Errorf("resolveDataDir = %q, want flag value", got)
	}
}

func TestVersionString(t *testing.T) {
	defer func(v string) { appVersion = v }(appVersion)

	for in, want := range map[string]string{"": "dev", "dev": "dev", "1.2.0": "v1.2.0", "v1.2.0": "v1.2.0"} {
		appVersion = in
		if got := versionString(); got != want {
			t.Errorf("versionString(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildInfo(t *testing.T) {
	defer func(v, c, d string) { appVersion, appCommit, appDate = v, c, d }(appVersion, appCommit, appDate)
	appVersion, appCommit, appDate = "0.3.1", "4f2a9c1", "2025-03-01"

	var out bytes.Buffer
	currentBuild().writeText(&out)
	for _, want := range []string{"airea v0.3.1", "commit:   4f2a9c1", "built:    2025-03-01"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("version output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"serve"}, {"version"}, {"openapi"},
		{"device", "register"}, {"device", "list"}, {"device", "deactivate"},
		{"key", "issue"}, {"key", "revoke"},
		{"token", "inspect"},
		{"config", "init"}, {"config", "show"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("command %v not found", path)
		}
	}
}
