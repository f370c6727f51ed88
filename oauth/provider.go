// Package oauth implements a closed, stateful simulation of the OAuth2
// authorization-code grant. Each Provider is one simulated identity provider
// holding its own user registry, outstanding-code registry and issued-token
// registry; nothing here talks to a network.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/authsim-dev/authsim/api"
	"github.com/authsim-dev/authsim/domain"
	serrors "github.com/authsim-dev/authsim/errors"
	"github.com/authsim-dev/authsim/internal/auth"
	"github.com/authsim-dev/authsim/internal/crypto"
	"github.com/authsim-dev/authsim/token"
)

var (
	ErrUserNotRegistered        = errors.New("user not registered")
	ErrUserAlreadyRegistered    = errors.New("user already registered")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
	ErrAuthorizationCodeExpired = errors.New("authorization code expired")
	ErrInvalidClientID          = errors.New("invalid client_id")
	ErrInvalidRedirectURI       = errors.New("invalid redirect_uri")
	ErrInvalidAccessToken       = errors.New("invalid access token")
	ErrAccessTokenExpired       = errors.New("access token expired")
	ErrInvalidRefreshToken      = errors.New("invalid refresh token")
)

// Default registry lifetimes.
const (
	DefaultCodeTTL         = 10 * time.Minute
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Config holds the per-provider client registration and endpoint shape.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	CodeTTL         time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// IssueIDToken enables OpenID-Connect-style id_token minting on code
	// exchange. Requires a token engine (WithTokenEngine).
	IssueIDToken bool
}

// NormalizeFunc converts a registered user into the provider-shaped user-info
// document. This is the only behavior that varies between provider presets.
type NormalizeFunc func(*domain.OAuthUser) map[string]any

// Option customizes a Provider.
type Option func(*Provider)

// WithTokenEngine wires the token engine used to mint id_tokens.
func WithTokenEngine(engine *token.Engine) Option {
	return func(p *Provider) { p.engine = engine }
}

// WithNormalizer overrides the user-info normalization strategy.
func WithNormalizer(fn NormalizeFunc) Option {
	return func(p *Provider) { p.normalize = fn }
}

// WithLogger sets the provider's logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// WithClock injects the time source, for deterministic expiry tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// Provider simulates a single OAuth2 identity provider.
type Provider struct {
	name      string
	cfg       Config
	normalize NormalizeFunc
	engine    *token.Engine
	hasher    auth.PasswordHasher
	now       func() time.Time
	log       zerolog.Logger

	// mu guards every read-modify-write on the registries below so code
	// consumption and token rotation are atomic.
	mu      sync.Mutex
	users   map[string]*domain.OAuthUser
	emails  map[string]string
	codes   *ttlcache.Cache[string, *domain.AuthCode]
	grants  *ttlcache.Cache[string, *domain.TokenGrant]
	refresh *ttlcache.Cache[string, *domain.TokenGrant]
}

// NewProvider creates a provider simulator. Call Close when done to stop the
// registry cleanup goroutines.
func NewProvider(name string, cfg Config, opts ...Option) *Provider {
	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}

	codes := ttlcache.New(
		ttlcache.WithTTL[string, *domain.AuthCode](cfg.CodeTTL),
		ttlcache.WithDisableTouchOnHit[string, *domain.AuthCode](),
	)
	grants := ttlcache.New(
		ttlcache.WithTTL[string, *domain.TokenGrant](cfg.AccessTokenTTL),
		ttlcache.WithDisableTouchOnHit[string, *domain.TokenGrant](),
	)
	refresh := ttlcache.New(
		ttlcache.WithTTL[string, *domain.TokenGrant](cfg.RefreshTokenTTL),
		ttlcache.WithDisableTouchOnHit[string, *domain.TokenGrant](),
	)

	p := &Provider{
		name:      name,
		cfg:       cfg,
		normalize: normalizeGeneric,
		hasher:    auth.NewBcryptPasswordHasher(0),
		now:       time.Now,
		log:       zerolog.Nop(),
		users:     make(map[string]*domain.OAuthUser),
		emails:    make(map[string]string),
		codes:     codes,
		grants:    grants,
		refresh:   refresh,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().Str("provider", name).Logger()

	go codes.Start()
	go grants.Start()
	go refresh.Start()

	return p
}

// Name returns the provider's registered name (e.g. "google").
func (p *Provider) Name() string {
	return p.name
}

// Close stops the registry cleanup goroutines.
func (p *Provider) Close() {
	p.codes.Stop()
	p.grants.Stop()
	p.refresh.Stop()
}

// RegisterUser adds a user to the provider's registry. Users must be
// registered before any flow can authorize them.
func (p *Provider) RegisterUser(user *domain.OAuthUser) error {
	return p.RegisterUserWithPassword(user, "")
}

// RegisterUserWithPassword registers a user together with a bcrypt-hashed
// password, enabling AuthenticateUser.
func (p *Provider) RegisterUserWithPassword(user *domain.OAuthUser, password string) error {
	if user.ID == "" {
		return errors.New("user id is required")
	}
	if user.Provider == "" {
		user.Provider = p.name
	}
	if password != "" {
		hashed, err := p.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = hashed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.users[user.ID]; exists {
		return fmt.Errorf("%w: %s", ErrUserAlreadyRegistered, user.ID)
	}
	p.users[user.ID] = user
	if user.Email != "" {
		p.emails[user.Email] = user.ID
	}

	p.log.Debug().Str("user_id", user.ID).Msg("user registered")
	return nil
}

// GetUser returns a registered user by id.
func (p *Provider) GetUser(userID string) (*domain.OAuthUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotRegistered, userID)
	}
	return user, nil
}

// AuthenticateUser verifies a password-registered user's credentials.
func (p *Provider) AuthenticateUser(email, password string) (*domain.OAuthUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.emails[email]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	user := p.users[userID]
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := p.hasher.Verify(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// AuthorizeOptions tunes a single authorize request. Zero values fall back to
// the provider configuration.
type AuthorizeOptions struct {
	State       string
	Scopes      []string
	RedirectURI string
}

// AuthorizeResult carries the constructed authorization URL and the state
// bound to this attempt.
type AuthorizeResult struct {
	URL   string
	State string
}

// Authorize builds the provider-shaped authorization URL. It models the
// browser redirect only; no registry state changes.
func (p *Provider) Authorize(opts AuthorizeOptions) (*AuthorizeResult, error) {
	state, err := p.stateOrRandom(opts.State)
	if err != nil {
		return nil, err
	}
	conf := p.oauth2Config(p.redirectOrDefault(opts.RedirectURI), p.scopesOrDefault(opts.Scopes))
	return &AuthorizeResult{
		URL:   conf.AuthCodeURL(state),
		State: state,
	}, nil
}

// AuthorizationGrant is the outcome of a simulated user consent: the freshly
// minted code, its state, and the redirect-back URL a browser would follow.
type AuthorizationGrant struct {
	Code        string
	State       string
	RedirectURL string
}

// SimulateUserAuthorization models the registered user approving the consent
// screen: it mints a short-lived single-use authorization code bound to the
// client, redirect URI, scopes and state.
func (p *Provider) SimulateUserAuthorization(userID string, opts AuthorizeOptions) (*AuthorizationGrant, error) {
	state, err := p.stateOrRandom(opts.State)
	if err != nil {
		return nil, err
	}
	code, err := crypto.RandomToken(32)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.users[userID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotRegistered, userID)
	}

	now := p.now()
	redirect := p.redirectOrDefault(opts.RedirectURI)
	authCode := &domain.AuthCode{
		Code:        code,
		ClientID:    p.cfg.ClientID,
		UserID:      userID,
		RedirectURI: redirect,
		Scope:       strings.Join(p.scopesOrDefault(opts.Scopes), " "),
		State:       state,
		ExpiresAt:   now.Add(p.cfg.CodeTTL),
		CreatedAt:   now,
	}
	p.codes.Set(code, authCode, p.cfg.CodeTTL)

	p.log.Debug().Str("user_id", userID).Msg("authorization code issued")

	return &AuthorizationGrant{
		Code:        code,
		State:       state,
		RedirectURL: redirect + "?code=" + url.QueryEscape(code) + "&state=" + url.QueryEscape(state),
	}, nil
}

// ExchangeOptions carries the client's side of the code exchange. Zero values
// skip the corresponding binding check.
type ExchangeOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// ExchangeCodeForToken consumes an authorization code and mints an
// access/refresh token pair (and, when configured, an id_token). The code is
// deleted on success and on expiry, so a code is never exchangeable twice.
func (p *Provider) ExchangeCodeForToken(ctx context.Context, code string, opts ExchangeOptions) (*api.TokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item := p.codes.Get(code)
	if item == nil {
		return nil, ErrInvalidAuthorizationCode
	}
	authCode := item.Value()

	if p.now().After(authCode.ExpiresAt) {
		p.codes.Delete(code)
		return nil, ErrAuthorizationCodeExpired
	}
	if opts.ClientID != "" && opts.ClientID != authCode.ClientID {
		return nil, ErrInvalidClientID
	}
	if opts.RedirectURI != "" && opts.RedirectURI != authCode.RedirectURI {
		return nil, ErrInvalidRedirectURI
	}

	user, ok := p.users[authCode.UserID]
	if !ok {
		// User was unregistered between consent and exchange; the code is no
		// longer redeemable.
		p.codes.Delete(code)
		return nil, ErrInvalidAuthorizationCode
	}

	resp, err := p.mintTokensLocked(authCode.UserID, authCode.Scope)
	if err != nil {
		return nil, err
	}

	if p.cfg.IssueIDToken && p.engine != nil {
		idToken, idErr := p.engine.IssueIDToken(user.ID, p.normalize(user))
		if idErr != nil {
			return nil, fmt.Errorf("failed to mint id_token: %w", idErr)
		}
		resp.IDToken = idToken
	}

	// Single use: the code is gone the moment the exchange succeeds.
	p.codes.Delete(code)

	p.log.Debug().Str("user_id", authCode.UserID).Msg("authorization code exchanged")
	return resp, nil
}

// GetUserInfo resolves an access token to the bound user's provider-shaped
// profile, merged with token metadata. Expired tokens are evicted on read.
func (p *Provider) GetUserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item := p.grants.Get(accessToken)
	if item == nil {
		return nil, ErrInvalidAccessToken
	}
	grant := item.Value()

	if p.now().After(grant.ExpiresAt) {
		p.grants.Delete(accessToken)
		return nil, ErrAccessTokenExpired
	}
	grant.LastUsedAt = p.now()

	user, ok := p.users[grant.UserID]
	if !ok {
		return nil, ErrInvalidAccessToken
	}

	info := p.normalize(user)
	info["provider"] = p.name
	if grant.Scope != "" {
		info["scope"] = grant.Scope
	}
	return info, nil
}

// RefreshToken rotates a refresh token: the presented token is invalidated
// and a fresh access/refresh pair is minted for the owning user without
// re-authorization.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item := p.refresh.Get(refreshToken)
	if item == nil {
		return nil, ErrInvalidRefreshToken
	}
	grant := item.Value()
	if p.now().After(grant.ExpiresAt) {
		p.refresh.Delete(refreshToken)
		return nil, ErrInvalidRefreshToken
	}

	p.refresh.Delete(refreshToken)
	return p.mintTokensLocked(grant.UserID, grant.Scope)
}

// RevokeToken removes a token from the registries. It is idempotent and
// reports whether a token was actually present.
func (p *Provider) RevokeToken(ctx context.Context, tokenValue string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.grants.Has(tokenValue) {
		p.grants.Delete(tokenValue)
		p.log.Debug().Msg("access token revoked")
		return true
	}
	if p.refresh.Has(tokenValue) {
		p.refresh.Delete(tokenValue)
		p.log.Debug().Msg("refresh token revoked")
		return true
	}
	return false
}

// SimulateError always fails with one of the standard OAuth2 error kinds, for
// negative-path tests. Unknown kinds map to server_error.
func (p *Provider) SimulateError(kind, description string) error {
	switch kind {
	case serrors.AccessDenied:
		return serrors.NewAccessDenied(description)
	case serrors.InvalidRequest:
		return serrors.NewInvalidRequest(description)
	default:
		return serrors.NewServerError(description)
	}
}

// OutstandingCodes reports how many unconsumed authorization codes exist.
func (p *Provider) OutstandingCodes() int {
	return p.codes.Len()
}

// ActiveAccessTokens reports how many access tokens are registered.
func (p *Provider) ActiveAccessTokens() int {
	return p.grants.Len()
}

// ActiveRefreshTokens reports how many refresh tokens are registered.
func (p *Provider) ActiveRefreshTokens() int {
	return p.refresh.Len()
}

func (p *Provider) mintTokensLocked(userID, scope string) (*api.TokenResponse, error) {
	accessToken, err := crypto.RandomToken(32)
	if err != nil {
		return nil, err
	}
	refreshToken, err := crypto.RandomToken(32)
	if err != nil {
		return nil, err
	}

	now := p.now()
	p.grants.Set(accessToken, &domain.TokenGrant{
		ID:         uuid.NewString(),
		TokenType:  api.TokenTypeAccessToken,
		TokenValue: accessToken,
		ClientID:   p.cfg.ClientID,
		UserID:     userID,
		Scope:      scope,
		ExpiresAt:  now.Add(p.cfg.AccessTokenTTL),
		CreatedAt:  now,
		LastUsedAt: now,
	}, p.cfg.AccessTokenTTL)

	p.refresh.Set(refreshToken, &domain.TokenGrant{
		ID:         uuid.NewString(),
		TokenType:  api.TokenTypeRefreshToken,
		TokenValue: refreshToken,
		ClientID:   p.cfg.ClientID,
		UserID:     userID,
		Scope:      scope,
		ExpiresAt:  now.Add(p.cfg.RefreshTokenTTL),
		CreatedAt:  now,
		LastUsedAt: now,
	}, p.cfg.RefreshTokenTTL)

	return &api.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(p.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        scope,
	}, nil
}

func (p *Provider) oauth2Config(redirect string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.cfg.AuthURL,
			TokenURL: p.cfg.TokenURL,
		},
	}
}

func (p *Provider) stateOrRandom(state string) (string, error) {
	if state != "" {
		return state, nil
	}
	return crypto.RandomToken(16)
}

func (p *Provider) redirectOrDefault(redirect string) string {
	if redirect != "" {
		return redirect
	}
	return p.cfg.RedirectURI
}

func (p *Provider) scopesOrDefault(scopes []string) []string {
	if len(scopes) > 0 {
		return scopes
	}
	return p.cfg.Scopes
}
