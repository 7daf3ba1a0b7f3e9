package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/airea/airea/internal/config"
	"github.com/airea/airea/internal/model"
)

// Authentication failures. ErrInvalidCredentials covers both an unknown
// device and a wrong key so callers cannot enumerate device IDs.
var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeviceDeactivated  = errors.New("device is deactivated")
	ErrNoKeyIssued        = errors.New("device has no api key")
)

// APIKeyNotice accompanies every freshly issued API key.
const APIKeyNotice = "IMPORTANT: Save this API key securely. It will not be shown again!"

// CredentialStore is the device persistence the auth service depends on.
// FindByExternalID returns config.ErrNotFound for unknown devices.
type CredentialStore interface {
	FindByExternalID(ctx context.Context, deviceID string) (*model.Device, error)
	Save(ctx context.Context, d *model.Device) (*model.Device, error)
}

// AuthService implements the device credential lifecycle. It holds no
// device state between calls.
type AuthService struct {
	store  CredentialStore
	hasher Hasher
	tokens *TokenCodec
}

func NewAuthService(store CredentialStore, hasher Hasher, tokens *TokenCodec) *AuthService {
	return &AuthService{
		store:  store,
		hasher: hasher,
		tokens: tokens,
	}
}

// Tokens exposes the codec used for signing.
func (s *AuthService) Tokens() *TokenCodec { return s.tokens }

// IssueAPIKey generates a new API key for the device and stores only its
// digest. The previous key, if any, stops verifying. The raw key in the
// result is never observable again.
func (s *AuthService) IssueAPIKey(ctx context.Context, deviceID string) (*model.APIKeyIssue, error) {
	dev, err := s.store.FindByExternalID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	rawKey, err := s.tokens.IssueAPIKeyToken(dev.DeviceID)
	if err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(rawKey)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}

	dev.SetAPIKey(digest, s.tokens.Now())
	if _, err := s.store.Save(ctx, dev); err != nil {
		return nil, err
	}

	return &model.APIKeyIssue{
		DeviceID: dev.DeviceID,
		APIKey:   rawKey,
		Message:  APIKeyNotice,
	}, nil
}

// Authenticate exchanges a device's raw API key for a session token.
func (s *AuthService) Authenticate(ctx context.Context, deviceID, rawKey string) (*model.Session, error) {
	dev, err := s.store.FindByExternalID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !dev.IsActive {
		return nil, ErrDeviceDeactivated
	}
	if !dev.HasAPIKey() {
		return nil, ErrNoKeyIssued
	}
	if !s.hasher.Verify(rawKey, dev.APIKeyHash) {
		return nil, ErrInvalidCredentials
	}
	// The key is itself a signed token; past its lifetime or under a
	// withdrawn signing key it no longer authenticates.
	claims, err := s.tokens.Inspect(rawKey)
	if err != nil || claims.Kind != KindAPIKey || claims.Subject != dev.DeviceID {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.IssueSessionToken(dev.DeviceID)
	if err != nil {
		return nil, err
	}
	return &model.Session{
		Token:     token,
		DeviceID:  dev.DeviceID,
		TokenType: "Bearer",
		ExpiresIn: int64(s.tokens.SessionTTL().Seconds()),
	}, nil
}

// RevokeAPIKey clears the device's key. Unknown devices and devices without
// a key are not errors.
func (s *AuthService) RevokeAPIKey(ctx context.Context, deviceID string) error {
	dev, err := s.store.FindByExternalID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil
		}
		return err
	}
	if !dev.HasAPIKey() {
		return nil
	}

	dev.ClearAPIKey()
	_, err = s.store.Save(ctx, dev)
	return err
}

// ValidateAndExtractSubject returns the subject of any valid token, session
// or API key. The cause of a failure is dropped. The HTTP admission pipeline
// uses the stricter ValidateSession; this is the kind-agnostic check for
// other callers of the package.
func (s *AuthService) ValidateAndExtractSubject(token string) (string, bool) {
	subject, err := s.tokens.Verify(token)
	if err != nil {
		return "", false
	}
	return subject, true
}

// ValidateSession is ValidateAndExtractSubject restricted to session
// tokens. Bearer authentication uses it so a revoked API key cannot be
// replayed as a bearer token.
func (s *AuthService) ValidateSession(token string) (string, bool) {
	claims, err := s.tokens.Inspect(token)
	if err != nil || claims.Kind != KindSession {
		return "", false
	}
	return claims.Subject, true
}
