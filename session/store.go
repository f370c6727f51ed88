// Package session models server-side session lifecycle: creation, sliding
// expiration, per-user concurrency limits, background cleanup and cookie
// encoding. It is independent of the token and oauth layers; it only needs an
// already-authenticated user id.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/authsim-dev/authsim/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// Store is the pluggable session storage backend. Operations are
// context-first so a real backing store (e.g. Redis) can be substituted
// without changing the Manager's logic; the in-memory default completes
// synchronously.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Set(ctx context.Context, session *domain.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
}

// MemoryStore implements Store with a mutex-guarded map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
	}
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Set implements Store.Set. The TTL is ignored; expiry is decided by the
// Manager on read.
func (s *MemoryStore) Set(_ context.Context, session *domain.Session, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Exists implements Store.Exists.
func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok, nil
}

// Clear implements Store.Clear.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*domain.Session)
	return nil
}

var _ Store = (*MemoryStore)(nil)
