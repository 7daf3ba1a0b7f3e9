package middleware

import (
	"context"
	"net/http"
	"strings"
)

type deviceKey struct{}

// SessionValidator resolves a bearer token to the device it was issued to.
type SessionValidator interface {
	ValidateSession(token string) (deviceID string, ok bool)
}

// AllowList matches request paths that skip authentication. A pattern
// ending in "/**" matches its prefix and everything below it; any other
// pattern matches exactly.
type AllowList struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewAllowList compiles patterns into an AllowList.
func NewAllowList(patterns []string) *AllowList {
	a := &AllowList{exact: make(map[string]struct{})}
	for _, p := range patterns {
		if base, ok := strings.CutSuffix(p, "/**"); ok {
			a.prefixes = append(a.prefixes, base)
			continue
		}
		a.exact[p] = struct{}{}
	}
	return a
}

// Allows reports whether path is public.
func (a *AllowList) Allows(path string) bool {
	if a == nil {
		return false
	}
	if _, ok := a.exact[path]; ok {
		return true
	}
	for _, base := range a.prefixes {
		if path == base || strings.HasPrefix(path, base+"/") {
			return true
		}
	}
	return false
}

// Authenticate requires a valid session token on every path not in public.
// The device the token names is attached to the request context. Failure
// causes are not distinguished in the response.
func Authenticate(sessions SessionValidator, public *AllowList) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Allows(r.URL.Path) {
				setStage(r.Context(), StageAuthChecked)
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			deviceID, ok := "", false
			if token != "" {
				deviceID, ok = sessions.ValidateSession(token)
			}
			if !ok {
				setStage(r.Context(), StageUnauthorized)
				w.Header().Set("WWW-Authenticate", `Bearer realm="airea"`)
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			setStage(r.Context(), StageAuthChecked)
			if a := admissionFrom(r.Context()); a != nil {
				a.deviceID = deviceID
			}
			ctx := context.WithValue(r.Context(), deviceKey{}, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetDeviceID returns the authenticated device, or "" on public routes.
func GetDeviceID(ctx context.Context) string {
	id, _ := ctx.Value(deviceKey{}).(string)
	return id
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
