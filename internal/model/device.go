package model

import "time"

// Device is a registered sensor. DeviceID is the stable external identifier
// the device authenticates with; ID is the internal row key.
//
// APIKeyHash and APIKeyIssuedAt form a pair: both are set when a key is
// issued and both are cleared when it is revoked. Use SetAPIKey and
// ClearAPIKey rather than assigning the fields directly.
type Device struct {
	ID             string     `json:"id"`
	DeviceID       string     `json:"deviceId"`
	DeviceName     string     `json:"deviceName,omitempty"`
	Location       string     `json:"location,omitempty"`
	IsActive       bool       `json:"isActive"`
	APIKeyHash     string     `json:"-"` // never expose
	APIKeyIssuedAt *time.Time `json:"apiKeyIssuedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// HasAPIKey reports whether a key is currently issued for the device.
func (d *Device) HasAPIKey() bool {
	return d.APIKeyHash != ""
}

// SetAPIKey records a newly issued key digest, replacing any previous one.
func (d *Device) SetAPIKey(digest string, issuedAt time.Time) {
	t := issuedAt.UTC()
	d.APIKeyHash = digest
	d.APIKeyIssuedAt = &t
}

// ClearAPIKey removes the issued key digest and its issue time.
func (d *Device) ClearAPIKey() {
	d.APIKeyHash = ""
	d.APIKeyIssuedAt = nil
}
