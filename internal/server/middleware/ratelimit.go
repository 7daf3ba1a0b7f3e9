package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/airea/airea/internal/ratelimit"
)

const throttledMessage = "Too many requests. Please try again later."

// ClientKey derives the rate limit partition for r: the first entry of
// X-Forwarded-For if present, otherwise the host part of the remote address.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Throttle consumes one token from the caller's bucket and answers 429
// without calling next when none is left.
func Throttle(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			if a := admissionFrom(r.Context()); a != nil {
				a.clientKey = key
			}

			d := limiter.TryConsume(key, 1)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				setStage(r.Context(), StageThrottled)
				h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				writeError(w, http.StatusTooManyRequests, throttledMessage)
				return
			}

			setStage(r.Context(), StageRateChecked)
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// IssuanceLimit caps API key generation per device ID path parameter.
// Mount it on the route itself so chi has resolved {deviceId}. A
// non-positive perHour disables the limit.
func IssuanceLimit(perHour int) func(http.Handler) http.Handler {
	if perHour <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		perHour,
		time.Hour,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return chi.URLParam(r, "deviceId"), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "Too many API key requests for this device. Please try again later.")
		}),
	)
}
