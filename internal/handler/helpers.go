package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/airea/airea/internal/model"
)

// maxBodySize bounds every JSON request body. Device payloads are tiny.
const maxBodySize = 64 << 10

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeInternalError logs err and answers 500 without exposing it.
func writeInternalError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(r.Context(), msg, "error", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryEpochMillis parses an optional Unix-millisecond query parameter. A
// missing parameter yields nil.
func queryEpochMillis(r *http.Request, key string) (*time.Time, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a Unix timestamp in milliseconds", key)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

// eventTime is a request timestamp given either as Unix milliseconds (what
// devices send) or as an RFC 3339 string.
type eventTime struct {
	time.Time
}

func (t *eventTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp must be Unix milliseconds or RFC 3339: %w", err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds or RFC 3339: %w", err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// messageResponse acknowledges an operation on a device.
type messageResponse struct {
	Message  string `json:"message"`
	DeviceID string `json:"deviceId"`
}

// healthResponse is served by the per-area health endpoints.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// DeviceIDPattern validates external device identifiers. A nil pattern
// accepts any non-empty ID.
type DeviceIDPattern struct {
	re *regexp.Regexp
}

// NewDeviceIDPattern compiles expr; an empty expr disables the check.
func NewDeviceIDPattern(expr string) (*DeviceIDPattern, error) {
	if expr == "" {
		return &DeviceIDPattern{}, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile device id pattern: %w", err)
	}
	return &DeviceIDPattern{re: re}, nil
}

// Valid reports whether id is acceptable.
func (p *DeviceIDPattern) Valid(id string) bool {
	if id == "" {
		return false
	}
	if p == nil || p.re == nil {
		return true
	}
	return p.re.MatchString(id)
}

// String returns the pattern source.
func (p *DeviceIDPattern) String() string {
	if p == nil || p.re == nil {
		return ""
	}
	return p.re.String()
}
