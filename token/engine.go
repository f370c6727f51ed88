// Package token implements the simulation engine's token layer: a compact
// signed-token issuer and verifier with deterministic, inspectable failure
// reasons. Tokens are never stored; verification recomputes everything from
// the wire value.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failure reasons. Tests assert on these, so they are part of
// the engine's contract.
const (
	ReasonInvalidFormat    = "invalid format"
	ReasonInvalidSignature = "invalid signature"
	ReasonExpired          = "expired"
	ReasonNotYetValid      = "not yet valid"
)

// MissingClaimReason returns the failure reason reported when a required
// claim is absent.
func MissingClaimReason(name string) string {
	return "missing required claim: " + name
}

// Options configures a token Engine. Secret is required for the HS family,
// PrivateKey for RS256.
type Options struct {
	Secret     string
	PrivateKey *rsa.PrivateKey
	Algorithm  string // HS256 (default), HS384, HS512 or RS256
	Issuer     string
	Audience   string
	DefaultTTL time.Duration
	KeyID      string
	Clock      func() time.Time
}

// Engine issues and verifies signed claims-bearing tokens.
type Engine struct {
	issuer     string
	audience   string
	defaultTTL time.Duration
	keyID      string
	signer     *Signer
	now        func() time.Time
}

// New creates a token Engine from the given options.
func New(opts Options) (*Engine, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = "HS256"
	}
	if opts.Issuer == "" {
		opts.Issuer = "authsim"
	}
	if opts.Audience == "" {
		opts.Audience = "authsim-clients"
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	signer := NewSigner()
	switch opts.Algorithm {
	case "HS256", "HS384", "HS512":
		if opts.Secret == "" {
			return nil, fmt.Errorf("algorithm %s requires a signing secret", opts.Algorithm)
		}
		method := map[string]*jwt.SigningMethodHMAC{
			"HS256": jwt.SigningMethodHS256,
			"HS384": jwt.SigningMethodHS384,
			"HS512": jwt.SigningMethodHS512,
		}[opts.Algorithm]
		signer.AddHMACKey(opts.KeyID, opts.Secret, method)
	case "RS256":
		if opts.PrivateKey == nil {
			return nil, errors.New("algorithm RS256 requires a private key")
		}
		signer.AddRSAKey(opts.KeyID, opts.PrivateKey, jwt.SigningMethodRS256)
	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", opts.Algorithm)
	}

	return &Engine{
		issuer:     opts.Issuer,
		audience:   opts.Audience,
		defaultTTL: opts.DefaultTTL,
		keyID:      opts.KeyID,
		signer:     signer,
		now:        opts.Clock,
	}, nil
}

// Signer exposes the engine's key registry so additional keys can be
// registered (e.g. a secondary key for rotation tests).
func (e *Engine) Signer() *Signer {
	return e.signer
}

// IssueOptions tunes a single issuance. ExpiresIn may be negative to mint an
// already-expired token for negative-path tests.
type IssueOptions struct {
	ExpiresIn time.Duration
	NotBefore time.Duration
	TokenID   string
	KeyID     string
}

// Issue merges the caller's claims over the engine defaults (issuer,
// audience, issued-at, expiry, token ID) and returns the signed compact
// serialization. Caller claims win on conflict.
func (e *Engine) Issue(claims jwt.MapClaims, opts IssueOptions) (string, error) {
	now := e.now()

	ttl := e.defaultTTL
	if opts.ExpiresIn != 0 {
		ttl = opts.ExpiresIn
	}
	tokenID := opts.TokenID
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	merged := jwt.MapClaims{
		"iss": e.issuer,
		"aud": e.audience,
		"iat": jwt.NewNumericDate(now).Unix(),
		"exp": jwt.NewNumericDate(now.Add(ttl)).Unix(),
		"jti": tokenID,
	}
	if opts.NotBefore != 0 {
		merged["nbf"] = jwt.NewNumericDate(now.Add(opts.NotBefore)).Unix()
	}
	for k, v := range claims {
		merged[k] = v
	}

	keyID := opts.KeyID
	if keyID == "" {
		keyID = e.keyID
	}
	return e.signer.Sign(merged, keyID)
}

// ParsedToken is the structural decode of a compact token. The signature
// segment is kept in its encoded form.
type ParsedToken struct {
	Header    map[string]any
	Claims    jwt.MapClaims
	Signature string
}

// Parse decodes a token without verifying it. It returns nil if the token
// does not have exactly three segments or either structured segment fails to
// decode. Parse never checks the signature.
func (e *Engine) Parse(tokenString string) *ParsedToken {
	if len(strings.Split(tokenString, ".")) != 3 {
		return nil
	}

	parser := jwt.NewParser()
	parsed, parts, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return &ParsedToken{
		Header:    parsed.Header,
		Claims:    claims,
		Signature: parts[2],
	}
}

// VerifyOptions tunes a single verification.
type VerifyOptions struct {
	IgnoreExpiration bool
	IgnoreNotBefore  bool
	ClockTolerance   time.Duration
	RequiredClaims   []string
}

// VerifyResult is the discriminated outcome of Verify. Reason is set exactly
// when Valid is false.
type VerifyResult struct {
	Valid  bool
	Claims jwt.MapClaims
	Reason string
}

// Verify checks a token and reports the first failure in a fixed order:
// format, signature, expiry, not-before, required claims. It never returns an
// error; every failure mode is a reason in the result.
func (e *Engine) Verify(tokenString string, opts VerifyOptions) VerifyResult {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, err := parser.Parse(tokenString, e.signer.Keyfunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return VerifyResult{Reason: ReasonInvalidFormat}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return VerifyResult{Reason: ReasonInvalidSignature}
		default:
			return VerifyResult{Reason: ReasonInvalidFormat}
		}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return VerifyResult{Reason: ReasonInvalidFormat}
	}

	now := e.now()

	if !opts.IgnoreExpiration {
		exp, expErr := claims.GetExpirationTime()
		if expErr == nil && exp != nil && now.After(exp.Time.Add(opts.ClockTolerance)) {
			return VerifyResult{Reason: ReasonExpired}
		}
	}
	if !opts.IgnoreNotBefore {
		nbf, nbfErr := claims.GetNotBefore()
		if nbfErr == nil && nbf != nil && now.Add(opts.ClockTolerance).Before(nbf.Time) {
			return VerifyResult{Reason: ReasonNotYetValid}
		}
	}
	for _, name := range opts.RequiredClaims {
		if _, present := claims[name]; !present {
			return VerifyResult{Reason: MissingClaimReason(name)}
		}
	}

	return VerifyResult{Valid: true, Claims: claims}
}

// IsExpired reports whether the token's expiry claim has passed. Malformed
// tokens are reported as expired.
func (e *Engine) IsExpired(tokenString string) bool {
	parsed := e.Parse(tokenString)
	if parsed == nil {
		return true
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return e.now().After(exp.Time)
}
