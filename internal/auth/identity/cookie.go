package identity

import (
	"net/http"
	"time"

	id "bikeauth/pkg/domain"
)

const (
	// CookieName carries the signed identity token.
	CookieName = "auth"
	// SessionCookieName carries the server-side session id.
	SessionCookieName = "_bikeauth_session"

	// PermanentMaxAge is the identity cookie lifetime when no TTL is configured.
	PermanentMaxAge = 20 * 365 * 24 * time.Hour
)

// Cookies writes and clears the identity cookie.
type Cookies struct {
	Secure bool
	// MaxAge of the identity cookie. Zero means PermanentMaxAge.
	MaxAge time.Duration
}

// Set stores token in a long-lived, script-inaccessible cookie.
func (c Cookies) Set(w http.ResponseWriter, token string) {
	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = PermanentMaxAge
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Revoke clears the cookie. Safe to call when none was set.
func (c Cookies) Revoke(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest returns the raw token, or "" when the browser sent none.
func FromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetSession stores the session id in a browser-session cookie.
func (c Cookies) SetSession(w http.ResponseWriter, sessionID id.SessionID) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RevokeSession clears the session cookie.
func (c Cookies) RevokeSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFromRequest returns the session id from the cookie. A missing or
// malformed cookie yields the zero id, which the service treats as a new
// browser.
func SessionFromRequest(r *http.Request) id.SessionID {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return id.SessionID{}
	}
	sessionID, err := id.ParseSessionID(cookie.Value)
	if err != nil {
		return id.SessionID{}
	}
	return sessionID
}
