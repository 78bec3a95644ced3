package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is the session cookie read by every guard
const DefaultCookieName = "token"

// TokenStore reads and writes the opaque session token. It never interprets
// the token beyond presence.
type TokenStore interface {
	// Token returns the stored token; ok is false when absent or empty
	Token(r *http.Request) (token string, ok bool)
	// SetToken persists the token until expiresAt
	SetToken(w http.ResponseWriter, token string, expiresAt time.Time)
	// ClearToken removes the token
	ClearToken(w http.ResponseWriter)
}

// CookieTokenStore keeps the token in an HTTP-only cookie
type CookieTokenStore struct {
	name   string
	secure bool
	maxAge time.Duration
	now    func() time.Time
}

// NewCookieTokenStore creates a cookie-backed TokenStore. maxAge is used when
// the token carries no readable expiry.
func NewCookieTokenStore(name string, secure bool, maxAge time.Duration) *CookieTokenStore {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieTokenStore{
		name:   name,
		secure: secure,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Name returns the cookie name
func (s *CookieTokenStore) Name() string {
	return s.name
}

// Token reads the session cookie without side effects
func (s *CookieTokenStore) Token(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// SetToken writes the session cookie. A zero expiresAt falls back to the
// token's exp claim and then to the configured max age.
func (s *CookieTokenStore) SetToken(w http.ResponseWriter, token string, expiresAt time.Time) {
	now := s.now()
	if expiresAt.IsZero() {
		expiresAt = s.ExpiryOf(token)
	}
	maxAge := int(expiresAt.Sub(now).Seconds())
	if maxAge <= 0 {
		// Token already expired
		s.ClearToken(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearToken expires the session cookie
func (s *CookieTokenStore) ClearToken(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ExpiryOf returns the cookie expiry for token. The exp claim is read
// unverified and only bounds cookie lifetime; authorization always goes
// through the identity service.
func (s *CookieTokenStore) ExpiryOf(token string) time.Time {
	fallback := s.now().Add(s.maxAge)

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return fallback
	}
	if claims.ExpiresAt == nil {
		return fallback
	}
	return claims.ExpiresAt.Time
}
