// Package authsim is a self-contained authentication and session simulation
// engine for driving tests against applications that depend on token-based
// auth, OAuth2 login and server-side sessions, without contacting a real
// identity provider. The engine is deterministic and inspectable: every
// failure mode is a typed result tests can assert on.
//
// The root package is a thin composition layer. The protocol logic lives in
// the token, oauth and session packages; ContextBuilder wires a user record,
// signed tokens and a session into one "current auth state" object for test
// setup.
package authsim

import (
	"context"
	"errors"

	"github.com/authsim-dev/authsim/domain"
	"github.com/authsim-dev/authsim/session"
	"github.com/authsim-dev/authsim/token"
)

// AuthContext is the fully wired auth state of one simulated user: the user
// record, a signed access/refresh/identity token set and a live session.
type AuthContext struct {
	User         *domain.OAuthUser
	AccessToken  string
	RefreshToken string
	IDToken      string
	Session      *domain.Session
}

// ContextBuilder assembles an AuthContext from explicitly injected
// components. There are no process-wide defaults; callers construct the
// engines they need and pass them in.
type ContextBuilder struct {
	engine   *token.Engine
	sessions *session.Manager

	user    *domain.OAuthUser
	scope   string
	roles   []string
	session session.CreateOptions
}

// NewContextBuilder creates a builder over a token engine and a session
// manager.
func NewContextBuilder(engine *token.Engine, sessions *session.Manager) *ContextBuilder {
	return &ContextBuilder{
		engine:   engine,
		sessions: sessions,
	}
}

// WithUser sets the user the context is built for.
func (b *ContextBuilder) WithUser(user *domain.OAuthUser) *ContextBuilder {
	b.user = user
	return b
}

// WithScope sets the access token's scope claim.
func (b *ContextBuilder) WithScope(scope string) *ContextBuilder {
	b.scope = scope
	return b
}

// WithRoles sets the access token's roles claim.
func (b *ContextBuilder) WithRoles(roles ...string) *ContextBuilder {
	b.roles = roles
	return b
}

// WithSessionOptions attaches client metadata to the created session.
func (b *ContextBuilder) WithSessionOptions(opts session.CreateOptions) *ContextBuilder {
	b.session = opts
	return b
}

// Build creates the session, mints the token set and returns the assembled
// AuthContext.
func (b *ContextBuilder) Build(ctx context.Context) (*AuthContext, error) {
	if b.user == nil {
		return nil, errors.New("a user is required to build an auth context")
	}

	sess, err := b.sessions.CreateSession(ctx, b.user.ID, b.session)
	if err != nil {
		return nil, err
	}

	accessToken, err := b.engine.IssueAccessToken(b.user.ID, b.roles, nil, b.scope)
	if err != nil {
		return nil, err
	}
	refreshToken, err := b.engine.IssueRefreshToken(b.user.ID, sess.ID)
	if err != nil {
		return nil, err
	}
	idToken, err := b.engine.IssueIDToken(b.user.ID, map[string]any{
		"email":          b.user.Email,
		"email_verified": b.user.EmailVerified,
		"name":           b.user.Name,
	})
	if err != nil {
		return nil, err
	}

	return &AuthContext{
		User:         b.user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IDToken:      idToken,
		Session:      sess,
	}, nil
}
