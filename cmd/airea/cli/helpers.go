package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/airea/airea/internal/config"
	"github.com/airea/airea/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// devSigningKey stands in for auth.signing_key under serve --dev. Tokens
// signed with it are worthless outside a development machine.
const devSigningKey = "airea-dev-signing-key-change-me-before-deploying"

var errNoSigningKey = errors.New("auth.signing_key is not set (use AIREA_AUTH_SIGNING_KEY or airea.yaml)")

// resolveDataDir returns the data directory from --data-dir flag,
// AIREA_DATA_DIR env var, or ~/.airea as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("AIREA_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".airea")
}

// openStore opens the configured device store. SQLite without a DSN lives
// in the data directory.
func openStore(s *config.Settings) (*config.Store, error) {
	if s.Database.Driver == config.DriverSQLite && s.Database.DSN == "" {
		return config.NewStore(resolveDataDir())
	}
	return config.OpenStore(s.Database.Driver, s.Database.DSN)
}

// newTokenCodec builds the codec from auth settings. With allowDevKey a
// missing signing key is replaced by devSigningKey.
func newTokenCodec(s *config.Settings, allowDevKey bool) (*service.TokenCodec, error) {
	key := s.Auth.SigningKey
	if key == "" {
		if !allowDevKey {
			return nil, errNoSigningKey
		}
		key = devSigningKey
	}
	return service.NewTokenCodec(s.Auth.SigningKeyID, key,
		service.WithTTLs(s.Auth.SessionTTL, s.Auth.APIKeyTTL),
		service.WithRetiredKeys(s.Auth.RetiredSigningKeys),
	)
}

// buildAuth wires the hasher, token codec and store into an AuthService.
func buildAuth(s *config.Settings, store *config.Store, allowDevKey bool) (*service.AuthService, error) {
	hasher, err := service.NewHasher(s.Auth.HashAlgorithm, s.Auth.HashCost)
	if err != nil {
		return nil, err
	}
	tokens, err := newTokenCodec(s, allowDevKey)
	if err != nil {
		return nil, err
	}
	return service.NewAuthService(store, hasher, tokens), nil
}

// newLogger builds the process logger from log settings.
func newLogger(w io.Writer, s config.LogSettings, debug bool) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if s.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
