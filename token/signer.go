package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKeyID = errors.New("invalid key id")

type signerEntry struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// Signer holds a registry of named signing keys. The first key added becomes
// the default used when no key ID is supplied.
type Signer struct {
	mu        sync.RWMutex
	keys      map[string]signerEntry
	defaultID string
}

// NewSigner creates a new Signer instance
func NewSigner() *Signer {
	return &Signer{
		keys: make(map[string]signerEntry),
	}
}

// AddHMACKey registers a shared-secret key under keyID. Method must be one of
// the HS family; HS256 is used when method is nil.
func (s *Signer) AddHMACKey(keyID, secret string, method *jwt.SigningMethodHMAC) {
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	s.add(keyID, signerEntry{
		method:    method,
		signKey:   []byte(secret),
		verifyKey: []byte(secret),
	})
}

// AddRSAKey registers an RSA private key under keyID. Method must be one of
// the RS family; RS256 is used when method is nil.
func (s *Signer) AddRSAKey(keyID string, key *rsa.PrivateKey, method *jwt.SigningMethodRSA) {
	if method == nil {
		method = jwt.SigningMethodRS256
	}
	s.add(keyID, signerEntry{
		method:    method,
		signKey:   key,
		verifyKey: key.Public(),
	})
}

func (s *Signer) add(keyID string, entry signerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.defaultID == "" {
		s.defaultID = keyID
	}
	s.keys[keyID] = entry
}

// Sign signs claims with the key registered under keyID, or the default key
// when keyID is empty. A non-empty keyID is recorded in the token header.
func (s *Signer) Sign(claims jwt.Claims, keyID string) (string, error) {
	entry, err := s.lookup(keyID)
	if err != nil {
		return "", err
	}

	tok := jwt.NewWithClaims(entry.method, claims)
	if keyID != "" {
		tok.Header["kid"] = keyID
	}

	signed, err := tok.SignedString(entry.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Keyfunc resolves the verification key for a parsed token, honoring the kid
// header when present and rejecting algorithm mismatches.
func (s *Signer) Keyfunc(t *jwt.Token) (any, error) {
	keyID, _ := t.Header["kid"].(string)
	entry, err := s.lookup(keyID)
	if err != nil {
		return nil, err
	}
	if t.Method.Alg() != entry.method.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
	}
	return entry.verifyKey, nil
}

func (s *Signer) lookup(keyID string) (signerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if keyID == "" {
		keyID = s.defaultID
	}
	entry, ok := s.keys[keyID]
	if !ok {
		return signerEntry{}, ErrInvalidKeyID
	}
	return entry, nil
}
