package middleware

import (
	"context"
	"net/http"

	"github.com/airea/airea/internal/ratelimit"
)

// Stage is a request's position in the admission pipeline.
type Stage string

const (
	StageReceived     Stage = "received"
	StageRateChecked  Stage = "rate_checked"
	StageAuthChecked  Stage = "auth_checked"
	StageDispatched   Stage = "dispatched"
	StageThrottled    Stage = "throttled"
	StageUnauthorized Stage = "unauthorized"
)

type admissionKey struct{}

// admission is shared by pointer through the request context so the
// request logger, which runs outside the pipeline, sees the final stage.
type admission struct {
	stage     Stage
	clientKey string
	deviceID  string
}

func withAdmission(ctx context.Context) (context.Context, *admission) {
	if a, ok := ctx.Value(admissionKey{}).(*admission); ok {
		return ctx, a
	}
	a := &admission{stage: StageReceived}
	return context.WithValue(ctx, admissionKey{}, a), a
}

func admissionFrom(ctx context.Context) *admission {
	a, _ := ctx.Value(admissionKey{}).(*admission)
	return a
}

func setStage(ctx context.Context, s Stage) {
	if a := admissionFrom(ctx); a != nil {
		a.stage = s
	}
}

// GetStage reports the admission stage reached by the request in ctx.
func GetStage(ctx context.Context) Stage {
	if a := admissionFrom(ctx); a != nil {
		return a.stage
	}
	return ""
}

// Admission is the fixed pipeline every request passes before reaching a
// handler: Throttle, then Authenticate. Allow-listed paths skip
// authentication but are still throttled.
func Admission(limiter ratelimit.Limiter, sessions SessionValidator, public *AllowList) func(http.Handler) http.Handler {
	throttle := Throttle(limiter)
	authenticate := Authenticate(sessions, public)
	return func(next http.Handler) http.Handler {
		dispatch := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			setStage(r.Context(), StageDispatched)
			next.ServeHTTP(w, r)
		})
		pipeline := throttle(authenticate(dispatch))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := withAdmission(r.Context())
			pipeline.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
