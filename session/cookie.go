package session

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrMalformedCookie = errors.New("malformed session cookie")

// CookieOptions describes the attributes written into the session cookie
// header. The serialized layout is fixed:
//
//	sessionId=<id>; Max-Age=<seconds>; Path=<path>[; Domain=<d>][; Secure][; HttpOnly][; SameSite=<mode>]
type CookieOptions struct {
	Name     string
	MaxAge   time.Duration
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	SameSite string
}

func (c CookieOptions) withDefaults(maxAge time.Duration) CookieOptions {
	if c.Name == "" {
		c.Name = "sessionId"
	}
	if c.MaxAge == 0 {
		c.MaxAge = maxAge
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

// EncodeCookie serializes a session id into a header-ready cookie string
// using the manager's configured cookie attributes.
func (m *Manager) EncodeCookie(sessionID string) string {
	c := m.opts.Cookie

	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(sessionID)
	b.WriteString("; Max-Age=")
	b.WriteString(strconv.Itoa(int(c.MaxAge.Seconds())))
	b.WriteString("; Path=")
	b.WriteString(c.Path)
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(c.SameSite)
	}
	return b.String()
}

// DecodeCookie parses the session id back out of a raw cookie header. The
// header may carry several cookies; only the manager's configured cookie name
// is considered.
func (m *Manager) DecodeCookie(header string) (string, error) {
	return DecodeCookie(header, m.opts.Cookie.Name)
}

// DecodeCookie extracts the value of the named cookie from a raw cookie
// header string.
func DecodeCookie(header, name string) (string, error) {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		if key == name {
			if value == "" {
				return "", ErrMalformedCookie
			}
			return value, nil
		}
	}
	return "", ErrMalformedCookie
}
