package model

import "time"

// Cough classifications reported by the on-device model.
const (
	CoughDry     = "dry"
	CoughWet     = "wet"
	CoughUnknown = "unknown"
)

// CoughEvent is a single detection submitted by a device.
type CoughEvent struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"deviceId"`
	CoughType   string    `json:"coughType"`
	Confidence  float64   `json:"confidence"`
	RawScore    *float64  `json:"rawScore,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	AudioVolume *float64  `json:"audioVolume,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ValidCoughType reports whether t is one of the known classifications.
func ValidCoughType(t string) bool {
	switch t {
	case CoughDry, CoughWet, CoughUnknown:
		return true
	}
	return false
}
