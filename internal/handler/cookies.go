package handler

import (
	"net/http"
	"time"

	"github.com/dukerupert/crownvault/internal/middleware"
)

// Cookies sets and clears the member and admin cookies.
type Cookies struct {
	Secure bool
}

func (c Cookies) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) SetSession(w http.ResponseWriter, token string, ttl time.Duration) {
	c.set(w, middleware.SessionCookieName, token, ttl)
}

func (c Cookies) ClearSession(w http.ResponseWriter) {
	c.clear(w, middleware.SessionCookieName)
}

func (c Cookies) SetAdmin(w http.ResponseWriter, token string, ttl time.Duration) {
	c.set(w, middleware.AdminCookieName, token, ttl)
}

func (c Cookies) ClearAdmin(w http.ResponseWriter) {
	c.clear(w, middleware.AdminCookieName)
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(middleware.SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// redirect sends HTMX clients an HX-Redirect and everyone else a 303.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// swapStatus keeps HTMX responses at 200 so inline errors are swapped in.
func swapStatus(r *http.Request, status int) int {
	if isHTMX(r) {
		return http.StatusOK
	}
	return status
}
