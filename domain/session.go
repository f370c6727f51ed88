package domain

import "time"

// Session represents an active server-side user session.
type Session struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	TokenID           string            `json:"token_id,omitempty"`      // JTI of the bearer token, if any
	RefreshToken      string            `json:"refresh_token,omitempty"` // If using refresh tokens
	IPAddress         string            `json:"ip_address,omitempty"`
	UserAgent         string            `json:"user_agent,omitempty"`
	DeviceFingerprint string            `json:"device_fingerprint,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	LastActivityAt    time.Time         `json:"last_activity_at"`
	ExpiresAt         time.Time         `json:"expires_at"`
	IsActive          bool              `json:"is_active"`
}

// Clone returns a deep copy of the session so callers can't mutate the
// manager's indexed record through the returned pointer.
func (s *Session) Clone() *Session {
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
