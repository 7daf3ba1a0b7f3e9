package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token verification failures.
var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("bad token signature")
	ErrTokenExpired   = errors.New("token expired")
)

// TokenKind distinguishes short-lived session tokens from the long-lived
// tokens handed out as API keys.
type TokenKind string

const (
	KindSession TokenKind = "session"
	KindAPIKey  TokenKind = "api_key"
)

// Default token lifetimes.
const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultAPIKeyTTL  = 365 * 24 * time.Hour
)

// claimPrecision is the resolution of iat and exp. Tokens are often issued
// part-way through a second and must stay valid for their full lifetime.
const claimPrecision = time.Microsecond

func init() {
	jwt.TimePrecision = claimPrecision
}

// Claims is the signed payload of every token. Subject is the device's
// external ID.
type Claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// GetExpirationTime returns exp snapped back onto claimPrecision; NumericDate
// decodes through float64 and may land just below the encoded instant.
func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return snap(c.ExpiresAt), nil
}

// GetIssuedAt returns iat snapped onto claimPrecision.
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return snap(c.IssuedAt), nil
}

func snap(d *jwt.NumericDate) *jwt.NumericDate {
	if d == nil {
		return nil
	}
	return &jwt.NumericDate{Time: d.Round(claimPrecision)}
}

// TokenCodec issues and verifies HS256 tokens. Tokens are signed with the
// current key and carry its ID in the kid header; retired keys still verify
// tokens that name them.
type TokenCodec struct {
	keyID      string
	key        []byte
	retired    map[string][]byte
	sessionTTL time.Duration
	apiKeyTTL  time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithTTLs overrides the session and API-key token lifetimes. Non-positive
// values keep the defaults.
func WithTTLs(session, apiKey time.Duration) TokenOption {
	return func(c *TokenCodec) {
		if session > 0 {
			c.sessionTTL = session
		}
		if apiKey > 0 {
			c.apiKeyTTL = apiKey
		}
	}
}

// WithRetiredKeys registers verify-only keys by key ID.
func WithRetiredKeys(keys map[string]string) TokenOption {
	return func(c *TokenCodec) {
		for kid, k := range keys {
			c.retired[kid] = []byte(k)
		}
	}
}

// WithClock replaces time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec builds a codec signing with key under keyID.
func NewTokenCodec(keyID, key string, opts ...TokenOption) (*TokenCodec, error) {
	if key == "" {
		return nil, errors.New("token codec: signing key is empty")
	}
	c := &TokenCodec{
		keyID:      keyID,
		key:        []byte(key),
		retired:    make(map[string][]byte),
		sessionTTL: DefaultSessionTTL,
		apiKeyTTL:  DefaultAPIKeyTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := c.retired[keyID]; ok {
		return nil, fmt.Errorf("token codec: retired key %q collides with the signing key ID", keyID)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// SessionTTL reports the lifetime of session tokens.
func (c *TokenCodec) SessionTTL() time.Duration { return c.sessionTTL }

// Now is the codec's clock.
func (c *TokenCodec) Now() time.Time { return c.now() }

// IssueSessionToken signs a session token for subject.
func (c *TokenCodec) IssueSessionToken(subject string) (string, error) {
	return c.issue(subject, KindSession, c.sessionTTL)
}

// IssueAPIKeyToken signs a long-lived token used as a device's raw API key.
func (c *TokenCodec) IssueAPIKeyToken(subject string) (string, error) {
	return c.issue(subject, KindAPIKey, c.apiKeyTTL)
}

func (c *TokenCodec) issue(subject string, kind TokenKind, ttl time.Duration) (string, error) {
	now := c.now().Truncate(claimPrecision)
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.Must(uuid.NewV7()).String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = c.keyID
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the subject. The error is
// one of ErrMalformedToken, ErrBadSignature or ErrTokenExpired.
func (c *TokenCodec) Verify(token string) (string, error) {
	claims, err := c.Inspect(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Inspect verifies token like Verify and returns all of its claims.
func (c *TokenCodec) Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, c.keyFor)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrMalformedToken
	}
	if claims.Subject == "" {
		return nil, ErrMalformedToken
	}
	claims.IssuedAt = snap(claims.IssuedAt)
	claims.ExpiresAt = snap(claims.ExpiresAt)
	return claims, nil
}

// IsExpired reports whether token is unusable. Any verification failure
// counts as expired. It is a yes/no shortcut for callers that don't need
// Verify's error; nothing in the gateway itself calls it.
func (c *TokenCodec) IsExpired(token string) bool {
	_, err := c.Verify(token)
	return err != nil
}

func (c *TokenCodec) keyFor(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" || kid == c.keyID {
		return c.key, nil
	}
	if k, ok := c.retired[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}
