package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authsim-dev/authsim/domain"
	"github.com/authsim-dev/authsim/session"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T, clock *testClock, opts session.Options) *session.Manager {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = clock.Now
	}
	if opts.CleanupInterval == 0 {
		// Keep the advisory sweep out of the way unless a test wants it.
		opts.CleanupInterval = time.Hour
	}
	opts.Logger = zerolog.Nop()
	m := session.NewManager(nil, opts)
	t.Cleanup(m.Close)
	return m
}

func TestCreateAndGetSession(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	m := newTestManager(t, clock, session.Options{MaxAge: time.Hour})

	sess, err := m.CreateSession(ctx, "user-1", session.CreateOptions{
		IPAddress: "127.0.0.1",
		UserAgent: "go-test",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.True(t, sess.IsActive)
	assert.Equal(t, sess.CreatedAt.Add(time.Hour), sess.ExpiresAt)
	assert.False(t, sess.ExpiresAt.Before(sess.CreatedAt), "expiry must never precede creation")

	got, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "127.0.0.1", got.IPAddress)
}

func TestGetSessionLazyExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	m := newTestManager(t, clock, session.Options{MaxAge: time.Hour})

	sess, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = m.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Empty(t, m.GetUserSessions(ctx, "user-1"),
		"an expired session must not linger in the user's session set")
}

func TestUpdateActivitySliding(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	m := newTestManager(t, clock, session.Options{MaxAge: time.Hour, Sliding: true})

	sess, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)
	firstExpiry := sess.ExpiresAt

	clock.Advance(10 * time.Minute)
	require.True(t, m.UpdateActivity(ctx, sess.ID))

	afterFirst, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, afterFirst.ExpiresAt.After(firstExpiry))
	assert.Equal(t, clock.Now(), afterFirst.LastActivityAt)

	clock.Advance(10 * time.Minute)
	require.True(t, m.UpdateActivity(ctx, sess.ID))

	afterSecond, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, afterSecond.LastActivityAt.After(afterFirst.LastActivityAt))
	assert.True(t, afterSecond.ExpiresAt.After(afterFirst.ExpiresAt),
		"sliding expiry must only ever move forward")
}

func TestUpdateActivityWithoutSliding(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	m := newTestManager(t, clock, session.Options{MaxAge: time.Hour})

	sess, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	require.True(t, m.UpdateActivity(ctx, sess.ID))

	got, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ExpiresAt, got.ExpiresAt, "absolute expiry must not move without the sliding policy")
	assert.Equal(t, clock.Now(), got.LastActivityAt)
}

func TestUpdateActivityAbsentSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newTestClock(), session.Options{})

	assert.False(t, m.UpdateActivity(ctx, "missing"))
}

func TestConcurrencyLimitEvictsLRU(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()

	var evicted []string
	m := newTestManager(t, clock, session.Options{
		MaxAge:        time.Hour,
		MaxConcurrent: 2,
		Hooks: session.Hooks{
			OnEvicted: func(s *domain.Session) {
				evicted = append(evicted, s.ID)
			},
		},
	})

	s1, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	s2, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	// Touch s1 so s2 becomes the least-recently-active session.
	clock.Advance(time.Minute)
	require.True(t, m.UpdateActivity(ctx, s1.ID))

	clock.Advance(time.Minute)
	s3, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{s2.ID}, evicted, "exactly the LRU session must be evicted")
	assert.Len(t, m.GetUserSessions(ctx, "user-1"), 2, "the live count stays at the maximum")

	_, err = m.GetSession(ctx, s2.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = m.GetSession(ctx, s1.ID)
	assert.NoError(t, err)
	_, err = m.GetSession(ctx, s3.ID)
	assert.NoError(t, err)

	// Eviction is per-user, not global: another user is unaffected.
	other, err := m.CreateSession(ctx, "user-2", session.CreateOptions{})
	require.NoError(t, err)
	assert.Len(t, evicted, 1)
	_, err = m.GetSession(ctx, other.ID)
	assert.NoError(t, err)
}

func TestDestroySession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newTestClock(), session.Options{})

	sess, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, m.DestroySession(ctx, sess.ID))
	_, err = m.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	assert.ErrorIs(t, m.DestroySession(ctx, sess.ID), session.ErrSessionNotFound)
}

func TestDestroyUserSessions(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newTestClock(), session.Options{})

	for i := 0; i < 3; i++ {
		_, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
		require.NoError(t, err)
	}
	keep, err := m.CreateSession(ctx, "user-2", session.CreateOptions{})
	require.NoError(t, err)

	count, err := m.DestroyUserSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Empty(t, m.GetUserSessions(ctx, "user-1"))

	_, err = m.GetSession(ctx, keep.ID)
	assert.NoError(t, err, "log-out-everywhere is scoped to one user")
}

func TestValidateSessionReasons(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	m := newTestManager(t, clock, session.Options{MaxAge: time.Hour})

	result := m.ValidateSession(ctx, "missing")
	assert.False(t, result.Valid)
	assert.Equal(t, session.ReasonNotFound, result.Reason)

	sess, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	result = m.ValidateSession(ctx, sess.ID)
	assert.True(t, result.Valid)
	require.NotNil(t, result.Session)
	assert.Equal(t, sess.ID, result.Session.ID)

	require.True(t, m.DeactivateSession(ctx, sess.ID))
	result = m.ValidateSession(ctx, sess.ID)
	assert.False(t, result.Valid)
	assert.Equal(t, session.ReasonInactive, result.Reason)

	expired, err := m.CreateSession(ctx, "user-2", session.CreateOptions{})
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	result = m.ValidateSession(ctx, expired.ID)
	assert.False(t, result.Valid)
	assert.Equal(t, session.ReasonExpired, result.Reason)

	// The expired session was destroyed by the validation read.
	result = m.ValidateSession(ctx, expired.ID)
	assert.Equal(t, session.ReasonNotFound, result.Reason)
}

func TestStoreFallbackRehydratesIndex(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := session.NewMemoryStore()

	first := session.NewManager(store, session.Options{Clock: clock.Now, CleanupInterval: time.Hour})
	t.Cleanup(first.Close)
	sess, err := first.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	// A second manager over the same backend has a cold in-memory index.
	second := session.NewManager(store, session.Options{Clock: clock.Now, CleanupInterval: time.Hour})
	t.Cleanup(second.Close)

	got, err := second.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Contains(t,
		sessionIDs(second.GetUserSessions(ctx, "user-1")), sess.ID,
		"the rehydrated session must be indexed under its user")
}

func TestDestroySessionFromStoreOnly(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := session.NewMemoryStore()

	first := session.NewManager(store, session.Options{Clock: clock.Now, CleanupInterval: time.Hour})
	t.Cleanup(first.Close)
	sess, err := first.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	// A second manager never indexed this session; destroy must still reach
	// the backend record.
	second := session.NewManager(store, session.Options{Clock: clock.Now, CleanupInterval: time.Hour})
	t.Cleanup(second.Close)

	require.NoError(t, second.DestroySession(ctx, sess.ID))

	ok, err := store.Exists(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ok, "the backend record must be gone")
	_, err = second.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = first.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestDestroyUserSessionsCoversRehydrated(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := session.NewMemoryStore()

	first := session.NewManager(store, session.Options{Clock: clock.Now, CleanupInterval: time.Hour})
	t.Cleanup(first.Close)
	sess, err := first.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	second := session.NewManager(store, session.Options{Clock: clock.Now, CleanupInterval: time.Hour})
	t.Cleanup(second.Close)

	// The read rehydrates the index, so log-out-everywhere sees the session.
	_, err = second.GetSession(ctx, sess.ID)
	require.NoError(t, err)

	count, err := second.DestroyUserSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ok, err := store.Exists(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

// ttlRecordingStore captures the TTL handed to Set so tests can check the
// manager's TTL arithmetic.
type ttlRecordingStore struct {
	*session.MemoryStore
	mu      sync.Mutex
	lastTTL time.Duration
}

func (s *ttlRecordingStore) Set(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	s.lastTTL = ttl
	s.mu.Unlock()
	return s.MemoryStore.Set(ctx, sess, ttl)
}

func (s *ttlRecordingStore) TTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTTL
}

func TestStoreTTLFollowsInjectedClock(t *testing.T) {
	ctx := context.Background()
	// A clock far from wall time exposes any TTL math done with the real one.
	clock := &testClock{t: time.Now().Add(5000 * time.Hour)}
	store := &ttlRecordingStore{MemoryStore: session.NewMemoryStore()}

	m := session.NewManager(store, session.Options{
		Clock:           clock.Now,
		MaxAge:          time.Hour,
		Sliding:         true,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(m.Close)

	sess, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	require.True(t, m.UpdateActivity(ctx, sess.ID))
	assert.Equal(t, time.Hour, store.TTL(),
		"sliding expiry pushes ExpiresAt to now+MaxAge, so the persisted TTL is exactly MaxAge")

	require.True(t, m.DeactivateSession(ctx, sess.ID))
	assert.Equal(t, time.Hour, store.TTL())
}

func TestBackgroundCleanup(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()

	var m *session.Manager
	cleaned := make(chan int, 1)
	m = newTestManager(t, clock, session.Options{
		MaxAge:          time.Hour,
		CleanupInterval: 20 * time.Millisecond,
		Hooks: session.Hooks{
			OnCleanup: func(removed int) {
				// Runs outside the manager lock, so calling back in is fine.
				m.ValidateSession(context.Background(), "missing")
				select {
				case cleaned <- removed:
				default:
				}
			},
		},
	})

	_, err := m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, "user-1", session.CreateOptions{})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	select {
	case removed := <-cleaned:
		assert.Equal(t, 2, removed)
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup sweep did not run")
	}
	assert.Empty(t, m.GetUserSessions(ctx, "user-1"))
}

func sessionIDs(sessions []*domain.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}
