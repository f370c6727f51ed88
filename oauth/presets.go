package oauth

import (
	"strings"

	"github.com/authsim-dev/authsim/domain"
)

// Well-known endpoint shapes for the provider presets. The simulator never
// contacts these hosts; they exist so authorization URLs and user-info
// documents look like the real provider's.
const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	githubAuthURL     = "https://github.com/login/oauth/authorize"
	githubTokenURL    = "https://github.com/login/oauth/access_token"
	githubUserInfoURL = "https://api.github.com/user"
)

// NewGoogleProvider creates a Google-shaped provider. The openid, profile and
// email scopes are always requested, matching Google's OIDC requirements.
func NewGoogleProvider(cfg Config, opts ...Option) *Provider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = googleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = googleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}
	cfg.Scopes = ensureScopes(cfg.Scopes, "openid", "profile", "email")
	cfg.IssueIDToken = true

	opts = append([]Option{WithNormalizer(normalizeGoogle)}, opts...)
	return NewProvider("google", cfg, opts...)
}

// NewGitHubProvider creates a GitHub-shaped provider. GitHub is plain OAuth2
// (no id_token).
func NewGitHubProvider(cfg Config, opts ...Option) *Provider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = githubAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = githubTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = githubUserInfoURL
	}
	cfg.Scopes = ensureScopes(cfg.Scopes, "read:user", "user:email")

	opts = append([]Option{WithNormalizer(normalizeGitHub)}, opts...)
	return NewProvider("github", cfg, opts...)
}

// NewAuth0Provider creates an Auth0-shaped provider for the given tenant
// domain (e.g. "example.auth0.com").
func NewAuth0Provider(tenantDomain string, cfg Config, opts ...Option) *Provider {
	base := "https://" + tenantDomain
	if cfg.AuthURL == "" {
		cfg.AuthURL = base + "/authorize"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = base + "/oauth/token"
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = base + "/userinfo"
	}
	cfg.Scopes = ensureScopes(cfg.Scopes, "openid", "profile", "email")
	cfg.IssueIDToken = true

	opts = append([]Option{WithNormalizer(normalizeAuth0)}, opts...)
	return NewProvider("auth0", cfg, opts...)
}

// NewGenericProvider creates a provider with no vendor shape: the user record
// is surfaced as-is.
func NewGenericProvider(name string, cfg Config, opts ...Option) *Provider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://" + name + ".example.com/oauth/authorize"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://" + name + ".example.com/oauth/token"
	}
	return NewProvider(name, cfg, opts...)
}

func normalizeGoogle(u *domain.OAuthUser) map[string]any {
	sub := u.ProviderAccountID
	if sub == "" {
		sub = u.ID
	}
	info := map[string]any{
		"sub":            sub,
		"email":          u.Email,
		"email_verified": u.EmailVerified,
		"name":           u.Name,
	}
	mergeRaw(info, u.Raw)
	return info
}

func normalizeGitHub(u *domain.OAuthUser) map[string]any {
	id := u.ProviderAccountID
	if id == "" {
		id = u.ID
	}
	login := u.Name
	if login == "" && u.Email != "" {
		login = strings.SplitN(u.Email, "@", 2)[0]
	}
	info := map[string]any{
		"id":    id,
		"login": login,
		"email": u.Email,
		"name":  u.Name,
	}
	mergeRaw(info, u.Raw)
	return info
}

func normalizeAuth0(u *domain.OAuthUser) map[string]any {
	info := map[string]any{
		"sub":            "auth0|" + u.ID,
		"email":          u.Email,
		"email_verified": u.EmailVerified,
		"name":           u.Name,
		"nickname":       u.Name,
	}
	mergeRaw(info, u.Raw)
	return info
}

func normalizeGeneric(u *domain.OAuthUser) map[string]any {
	info := map[string]any{
		"id":             u.ID,
		"email":          u.Email,
		"email_verified": u.EmailVerified,
		"name":           u.Name,
	}
	mergeRaw(info, u.Raw)
	return info
}

func mergeRaw(info map[string]any, raw map[string]any) {
	for k, v := range raw {
		if _, exists := info[k]; !exists {
			info[k] = v
		}
	}
}

func ensureScopes(scopes []string, required ...string) []string {
	for _, req := range required {
		found := false
		for _, s := range scopes {
			if s == req {
				found = true
				break
			}
		}
		if !found {
			scopes = append(scopes, req)
		}
	}
	return scopes
}
