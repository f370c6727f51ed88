package domain

import "time"

// TokenGrant maps an opaque bearer string to the user and scopes it was
// granted for. Both access and refresh tokens are recorded this way; the two
// differ only in type and lifetime.
type TokenGrant struct {
	ID         string    `json:"id"`
	TokenType  string    `json:"token_type"` // "access_token" or "refresh_token"
	TokenValue string    `json:"token_value"`
	ClientID   string    `json:"client_id"`
	UserID     string    `json:"user_id"`
	Scope      string    `json:"scope,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}
