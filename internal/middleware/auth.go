package middleware

import (
	"context"
	"net/http"

	"github.com/dukerupert/crownvault/internal/auth"
	"github.com/dukerupert/crownvault/internal/model"
)

const (
	SessionCookieName = "crownvault_session"
	AdminCookieName   = "crownvault_admin"
)

// SessionLookup resolves a member session token.
type SessionLookup interface {
	Session(ctx context.Context, token string) (*model.Session, error)
}

// TokenValidator checks an admin token.
type TokenValidator interface {
	ValidateToken(token string) error
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// Identify attaches the member and admin identity when valid cookies are
// present. It never rejects a request.
func Identify(sessions SessionLookup, admin TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if token := cookieValue(r, SessionCookieName); token != "" {
				if sess, err := sessions.Session(ctx, token); err == nil && sess != nil {
					ctx = auth.WithMember(ctx, auth.Member{Email: sess.Email, SessionID: sess.ID})
				}
			}
			if token := cookieValue(r, AdminCookieName); token != "" {
				if admin.ValidateToken(token) == nil {
					ctx = auth.WithAdmin(ctx)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin validates the admin token on every request. HTMX-aware:
// returns HX-Redirect header instead of 303 redirect for HTMX requests.
func RequireAdmin(admin TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := admin.ValidateToken(cookieValue(r, AdminCookieName)); err != nil {
				redirectTo(w, r, "/admin")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAdmin(r.Context())))
		})
	}
}

func redirectTo(w http.ResponseWriter, r *http.Request, target string) {
	switch {
	case r.Header.Get("HX-Request") == "true":
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		http.Redirect(w, r, target, http.StatusSeeOther)
	default:
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}
