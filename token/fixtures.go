package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default lifetimes for the convenience issuers.
const (
	RefreshTokenTTL = 30 * 24 * time.Hour
	IDTokenTTL      = 10 * time.Minute
)

// IssueAccessToken mints an access-token-shaped token for subject with the
// given roles, permissions and scope.
func (e *Engine) IssueAccessToken(subject string, roles, permissions []string, scope string) (string, error) {
	claims := jwt.MapClaims{
		"sub":   subject,
		"scope": scope,
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	if len(permissions) > 0 {
		claims["permissions"] = permissions
	}
	return e.Issue(claims, IssueOptions{})
}

// IssueRefreshToken mints a long-lived refresh token bound to a session.
func (e *Engine) IssueRefreshToken(subject, sessionID string) (string, error) {
	return e.Issue(jwt.MapClaims{
		"sub": subject,
		"sid": sessionID,
	}, IssueOptions{ExpiresIn: RefreshTokenTTL})
}

// IssueIDToken mints a short-lived identity token carrying profile claims.
func (e *Engine) IssueIDToken(subject string, profile map[string]any) (string, error) {
	claims := jwt.MapClaims{"sub": subject}
	for k, v := range profile {
		claims[k] = v
	}
	return e.Issue(claims, IssueOptions{ExpiresIn: IDTokenTTL})
}

// IssueExpiredToken mints a token whose expiry is already in the past.
func (e *Engine) IssueExpiredToken(claims jwt.MapClaims) (string, error) {
	return e.Issue(claims, IssueOptions{ExpiresIn: -time.Hour})
}

// IssueNotYetValidToken mints a token whose not-before lies in the future.
func (e *Engine) IssueNotYetValidToken(claims jwt.MapClaims) (string, error) {
	return e.Issue(claims, IssueOptions{NotBefore: time.Hour, ExpiresIn: 2 * time.Hour})
}

// IssueTokenWithoutSubject mints a well-formed token that carries no sub
// claim, for required-claim tests.
func (e *Engine) IssueTokenWithoutSubject() (string, error) {
	return e.Issue(jwt.MapClaims{}, IssueOptions{})
}

// IssueTamperedToken mints a token and then corrupts one character of its
// signature segment, producing a syntactically valid token that fails
// signature verification.
func (e *Engine) IssueTamperedToken(claims jwt.MapClaims) (string, error) {
	signed, err := e.Issue(claims, IssueOptions{})
	if err != nil {
		return "", err
	}
	return TamperSignature(signed), nil
}

// TamperSignature flips the last character of a compact token's signature.
func TamperSignature(tokenString string) string {
	if tokenString == "" {
		return tokenString
	}
	replacement := byte('A')
	if tokenString[len(tokenString)-1] == 'A' {
		replacement = 'B'
	}
	return tokenString[:len(tokenString)-1] + string(replacement)
}
