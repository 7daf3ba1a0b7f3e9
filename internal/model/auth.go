package model

// APIKeyIssue is returned exactly once when a key is issued. The raw key is
// not stored anywhere and cannot be retrieved again.
type APIKeyIssue struct {
	DeviceID string `json:"deviceId"`
	APIKey   string `json:"apiKey"`
	Message  string `json:"message"`
}

// Session is the result of a successful device login.
type Session struct {
	Token     string `json:"token"`
	DeviceID  string `json:"deviceId"`
	TokenType string `json:"tokenType"`
	ExpiresIn int64  `json:"expiresIn"` // seconds
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	DeviceID string `json:"deviceId"`
	APIKey   string `json:"apiKey"`
}
