package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/authsim-dev/authsim/domain"
)

// Validation failure reasons, mirroring the token engine's discrete-reason
// philosophy.
const (
	ReasonNotFound = "not found"
	ReasonInactive = "inactive"
	ReasonExpired  = "expired"
)

// Defaults applied by NewManager.
const (
	DefaultMaxAge          = time.Hour
	DefaultMaxConcurrent   = 5
	DefaultCleanupInterval = 60 * time.Second
)

// Hooks are optional lifecycle callbacks. OnCreated, OnDestroyed and
// OnEvicted run synchronously under the manager lock, so they must not call
// back into the Manager. OnCleanup runs after the sweep has released the
// lock and may call back in.
type Hooks struct {
	OnCreated   func(*domain.Session)
	OnDestroyed func(*domain.Session)
	OnEvicted   func(*domain.Session)
	OnCleanup   func(removed int)
}

// Options configures a session Manager.
type Options struct {
	MaxAge          time.Duration
	Sliding         bool
	MaxConcurrent   int
	CleanupInterval time.Duration
	Cookie          CookieOptions
	Hooks           Hooks
	Logger          zerolog.Logger
	Clock           func() time.Time
}

// Manager owns the session registry: an in-memory index, a pluggable storage
// backend, a per-user concurrency policy and a background expiry sweep.
// Expiry is checked lazily on every read; the sweep is advisory housekeeping.
type Manager struct {
	store Store
	opts  Options
	now   func() time.Time
	log   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*domain.Session
	byUser   map[string]map[string]struct{}

	stop      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a session Manager backed by store (an in-memory store
// when nil) and starts the background cleanup sweep. Call Close to stop it.
func NewManager(store Store, opts Options) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	opts.Cookie = opts.Cookie.withDefaults(opts.MaxAge)

	m := &Manager{
		store:    store,
		opts:     opts,
		now:      opts.Clock,
		log:      opts.Logger,
		sessions: make(map[string]*domain.Session),
		byUser:   make(map[string]map[string]struct{}),
		stop:     make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// Close stops the background cleanup sweep. It is safe to call more than
// once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
	})
}

// CreateOptions carries client metadata attached to a new session.
type CreateOptions struct {
	TokenID           string
	RefreshToken      string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Metadata          map[string]string
}

// CreateSession admits a new session for userID. If the user is already at
// the concurrency limit, the least-recently-active session(s) are evicted
// first so the live count never exceeds the maximum.
func (m *Manager) CreateSession(ctx context.Context, userID string, opts CreateOptions) (*domain.Session, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictForSlotLocked(ctx, userID)

	now := m.now()
	sess := &domain.Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		TokenID:           opts.TokenID,
		RefreshToken:      opts.RefreshToken,
		IPAddress:         opts.IPAddress,
		UserAgent:         opts.UserAgent,
		DeviceFingerprint: opts.DeviceFingerprint,
		Metadata:          opts.Metadata,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(m.opts.MaxAge),
		IsActive:          true,
	}

	if err := m.store.Set(ctx, sess, m.opts.MaxAge); err != nil {
		return nil, err
	}
	m.indexLocked(sess)

	if m.opts.Hooks.OnCreated != nil {
		m.opts.Hooks.OnCreated(sess)
	}
	m.log.Debug().Str("session_id", sess.ID).Str("user_id", userID).Msg("session created")

	return sess.Clone(), nil
}

// GetSession returns a live session by id. It reads the in-memory index
// first and falls back to the storage backend, rehydrating the index on a
// hit. An expired record is destroyed and reported as not found.
func (m *Manager) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.liveSessionLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// UpdateActivity advances a live session's last-activity time, and under the
// sliding-expiration policy pushes its expiry to now + max-age. It reports
// false for an absent or expired session.
func (m *Manager) UpdateActivity(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.liveSessionLocked(ctx, id)
	if err != nil {
		return false
	}

	now := m.now()
	sess.LastActivityAt = now
	if m.opts.Sliding {
		sess.ExpiresAt = now.Add(m.opts.MaxAge)
	}
	if err := m.store.Set(ctx, sess, sess.ExpiresAt.Sub(now)); err != nil {
		m.log.Warn().Err(err).Str("session_id", id).Msg("failed to persist activity update")
	}
	return true
}

// DeactivateSession clears a session's active flag without destroying it,
// modeling a logged-out-but-not-yet-purged record. Reports false for an
// absent or expired session.
func (m *Manager) DeactivateSession(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.liveSessionLocked(ctx, id)
	if err != nil {
		return false
	}
	sess.IsActive = false
	if err := m.store.Set(ctx, sess, sess.ExpiresAt.Sub(m.now())); err != nil {
		m.log.Warn().Err(err).Str("session_id", id).Msg("failed to persist deactivation")
	}
	return true
}

// DestroySession removes a session from the index, the storage backend and
// the owning user's session set. Like the read paths, it falls back to the
// storage backend so a record this manager never indexed is still destroyed.
func (m *Manager) DestroySession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		stored, err := m.store.Get(ctx, id)
		if err != nil {
			return ErrSessionNotFound
		}
		sess = stored
		m.indexLocked(sess)
	}
	m.destroyLocked(ctx, sess, m.opts.Hooks.OnDestroyed)
	return nil
}

// DestroyUserSessions destroys every session owned by a user ("log out
// everywhere") and returns how many were removed. It covers the sessions this
// manager has indexed; a record living only in the storage backend joins the
// index on its first read (the Store interface has no per-user enumeration)
// and is destroyed from then on.
func (m *Manager) DestroyUserSessions(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.byUser[userID]
	count := 0
	for id := range ids {
		if sess, ok := m.sessions[id]; ok {
			m.destroyLocked(ctx, sess, m.opts.Hooks.OnDestroyed)
			count++
		}
	}
	return count, nil
}

// GetUserSessions returns the user's live sessions. Expired records found on
// the way are destroyed, same as GetSession.
func (m *Manager) GetUserSessions(ctx context.Context, userID string) []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []*domain.Session
	for id := range m.byUser[userID] {
		sess, ok := m.sessions[id]
		if !ok {
			continue
		}
		if now.After(sess.ExpiresAt) {
			m.destroyLocked(ctx, sess, m.opts.Hooks.OnDestroyed)
			continue
		}
		out = append(out, sess.Clone())
	}
	return out
}

// ValidationResult is the discriminated outcome of ValidateSession.
type ValidationResult struct {
	Valid   bool
	Session *domain.Session
	Reason  string
}

// ValidateSession reports whether a session is usable, with the reason
// ("not found", "inactive" or "expired") when it is not.
func (m *Manager) ValidateSession(ctx context.Context, id string) ValidationResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		stored, err := m.store.Get(ctx, id)
		if err != nil {
			return ValidationResult{Reason: ReasonNotFound}
		}
		sess = stored
		m.indexLocked(sess)
	}

	if !sess.IsActive {
		return ValidationResult{Reason: ReasonInactive}
	}
	if m.now().After(sess.ExpiresAt) {
		m.destroyLocked(ctx, sess, m.opts.Hooks.OnDestroyed)
		return ValidationResult{Reason: ReasonExpired}
	}
	return ValidationResult{Valid: true, Session: sess.Clone()}
}

// liveSessionLocked resolves a session by id, rehydrating from the store and
// applying lazy expiry. The returned pointer is the indexed record.
func (m *Manager) liveSessionLocked(ctx context.Context, id string) (*domain.Session, error) {
	sess, ok := m.sessions[id]
	if !ok {
		stored, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, ErrSessionNotFound
		}
		sess = stored
		m.indexLocked(sess)
	}

	if m.now().After(sess.ExpiresAt) {
		m.destroyLocked(ctx, sess, m.opts.Hooks.OnDestroyed)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// evictForSlotLocked enforces the per-user concurrency limit before a new
// session is admitted: least-recently-active sessions are evicted until
// exactly one slot is free.
func (m *Manager) evictForSlotLocked(ctx context.Context, userID string) {
	for len(m.byUser[userID]) >= m.opts.MaxConcurrent {
		var oldest *domain.Session
		for id := range m.byUser[userID] {
			sess, ok := m.sessions[id]
			if !ok {
				continue
			}
			if oldest == nil || sess.LastActivityAt.Before(oldest.LastActivityAt) {
				oldest = sess
			}
		}
		if oldest == nil {
			return
		}
		m.destroyLocked(ctx, oldest, m.opts.Hooks.OnEvicted)
		m.log.Debug().
			Str("session_id", oldest.ID).
			Str("user_id", userID).
			Msg("session evicted by concurrency limit")
	}
}

func (m *Manager) indexLocked(sess *domain.Session) {
	m.sessions[sess.ID] = sess
	if m.byUser[sess.UserID] == nil {
		m.byUser[sess.UserID] = make(map[string]struct{})
	}
	m.byUser[sess.UserID][sess.ID] = struct{}{}
}

func (m *Manager) destroyLocked(ctx context.Context, sess *domain.Session, hook func(*domain.Session)) {
	delete(m.sessions, sess.ID)
	if ids := m.byUser[sess.UserID]; ids != nil {
		delete(ids, sess.ID)
		if len(ids) == 0 {
			delete(m.byUser, sess.UserID)
		}
	}
	if err := m.store.Delete(ctx, sess.ID); err != nil {
		m.log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to delete session from store")
	}
	if hook != nil {
		hook(sess)
	}
}

// cleanupLoop is the advisory background sweep. Correctness never depends on
// it; lazy expiry on read is the authoritative check.
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

func (m *Manager) sweepExpired() {
	ctx := context.Background()

	m.mu.Lock()
	now := m.now()
	var expired []*domain.Session
	for _, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			expired = append(expired, sess)
		}
	}
	for _, sess := range expired {
		m.destroyLocked(ctx, sess, m.opts.Hooks.OnDestroyed)
	}
	onCleanup := m.opts.Hooks.OnCleanup
	m.mu.Unlock()

	if len(expired) > 0 {
		m.log.Debug().Int("removed", len(expired)).Msg("expired sessions cleaned up")
		if onCleanup != nil {
			onCleanup(len(expired))
		}
	}
}
