package auth

import (
	"net/http"
	"time"
)

const (
	AccessCookieName  = "kickabout_access"
	RefreshCookieName = "kickabout_refresh"
)

// Cookies writes the session cookies. Secure is off only in development.
type Cookies struct {
	Secure bool
}

func (c Cookies) SetAccess(w http.ResponseWriter, token string, ttl time.Duration) {
	c.set(w, AccessCookieName, token, ttl)
}

func (c Cookies) SetRefresh(w http.ResponseWriter, token string, ttl time.Duration) {
	c.set(w, RefreshCookieName, token, ttl)
}

// Clear expires both session cookies.
func (c Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}

func (c Cookies) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}
