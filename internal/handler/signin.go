package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/crownvault/internal/backend"
	"github.com/dukerupert/crownvault/internal/catalog"
	"github.com/dukerupert/crownvault/internal/signin"
)

type SignInHandler struct {
	signin  *signin.Service
	auth    backend.Auth
	catalog *catalog.Service
	cookies Cookies
	render  *Renderer
	logger  *slog.Logger
}

func NewSignInHandler(
	svc *signin.Service,
	a backend.Auth,
	cat *catalog.Service,
	cookies Cookies,
	render *Renderer,
	logger *slog.Logger,
) *SignInHandler {
	return &SignInHandler{
		signin:  svc,
		auth:    a,
		catalog: cat,
		cookies: cookies,
		render:  render,
		logger:  logger,
	}
}

func (h *SignInHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render.Page(w, http.StatusOK, "login.html", map[string]any{
		"Title": "Sign in · Crown Vault",
		"View":  signin.FromRedirect(r.URL.Query().Get("error")),
	})
}

func (h *SignInHandler) Login(w http.ResponseWriter, r *http.Request) {
	view := h.signin.Submit(r.Context(), r.FormValue("email"))

	if isHTMX(r) {
		h.render.Partial(w, http.StatusOK, "login-panel", view)
		return
	}
	h.render.Page(w, http.StatusOK, "login.html", map[string]any{
		"Title": "Sign in · Crown Vault",
		"View":  view,
	})
}

func (h *SignInHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.catalog.SignOut(r.Context(), sessionToken(r))
	h.cookies.ClearSession(w)
	redirect(w, r, "/marketplace")
}
