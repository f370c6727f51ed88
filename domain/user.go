package domain

// OAuthUser represents a user profile registered with a simulated identity
// provider. Providers keep disjoint registries, so the same natural person
// registered with two providers is two distinct OAuthUsers.
type OAuthUser struct {
	ID                string         `json:"id"`
	Email             string         `json:"email"`
	Name              string         `json:"name,omitempty"`
	EmailVerified     bool           `json:"email_verified"`
	Provider          string         `json:"provider,omitempty"`
	ProviderAccountID string         `json:"provider_account_id,omitempty"`
	Raw               map[string]any `json:"raw,omitempty"`

	// PasswordHash is set only for users registered with a password.
	PasswordHash string `json:"-"`
}
