package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authsim-dev/authsim/session"
)

func TestEncodeCookieDefaults(t *testing.T) {
	m := newTestManager(t, newTestClock(), session.Options{MaxAge: time.Hour})

	assert.Equal(t, "sessionId=abc-123; Max-Age=3600; Path=/", m.EncodeCookie("abc-123"))
}

func TestEncodeCookieAllAttributes(t *testing.T) {
	m := newTestManager(t, newTestClock(), session.Options{
		MaxAge: time.Hour,
		Cookie: session.CookieOptions{
			Name:     "sid",
			MaxAge:   30 * time.Minute,
			Domain:   "example.com",
			Path:     "/app",
			Secure:   true,
			HTTPOnly: true,
			SameSite: "Strict",
		},
	})

	assert.Equal(t,
		"sid=abc-123; Max-Age=1800; Path=/app; Domain=example.com; Secure; HttpOnly; SameSite=Strict",
		m.EncodeCookie("abc-123"))
}

func TestDecodeCookieRoundTrip(t *testing.T) {
	m := newTestManager(t, newTestClock(), session.Options{MaxAge: time.Hour})

	id, err := m.DecodeCookie(m.EncodeCookie("abc-123"))
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestDecodeCookiePicksNamedCookie(t *testing.T) {
	id, err := session.DecodeCookie("theme=dark; sessionId=abc-123; lang=en", "sessionId")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestDecodeCookieMalformed(t *testing.T) {
	for _, header := range []string{
		"",
		"garbage",
		"other=value",
		"sessionId=",
	} {
		_, err := session.DecodeCookie(header, "sessionId")
		assert.ErrorIs(t, err, session.ErrMalformedCookie, "header %q", header)
	}
}
