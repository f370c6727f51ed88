package domain

import "time"

// AuthCode represents an OAuth 2.0 authorization code. A code is bound to the
// client and redirect URI it was issued for and is consumed at most once.
type AuthCode struct {
	Code        string    `json:"code"`         // Unique authorization code
	ClientID    string    `json:"client_id"`    // Client application ID
	UserID      string    `json:"user_id"`      // User who authorized the request
	RedirectURI string    `json:"redirect_uri"` // Client's callback URL
	Scope       string    `json:"scope"`        // Authorized scopes
	State       string    `json:"state"`        // Opaque state from the authorize request
	ExpiresAt   time.Time `json:"expires_at"`   // Expiration timestamp
	CreatedAt   time.Time `json:"created_at"`   // Creation timestamp
}
