package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/crownvault/internal/access"
)

type AccessHandler struct {
	access *access.Service
	render *Renderer
	logger *slog.Logger
}

func NewAccessHandler(svc *access.Service, render *Renderer, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{access: svc, render: render, logger: logger}
}

// AccessForm is the request-access panel on the homepage.
type AccessForm struct {
	Email    string
	Error    string
	Received bool
}

func (h *AccessHandler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.render.Page(w, http.StatusOK, "index.html", map[string]any{
		"Title": "Crown Vault",
		"Form":  AccessForm{},
	})
}

func (h *AccessHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")

	res, err := h.access.Submit(r.Context(), email)
	form := AccessForm{Email: email}
	status := http.StatusOK
	switch {
	case err != nil:
		form.Error = access.Message(err)
		status = http.StatusUnprocessableEntity
	case res.Received():
		form = AccessForm{Received: true}
	default:
		form.Error = access.MsgTryAgain
		status = http.StatusServiceUnavailable
	}

	if isHTMX(r) {
		h.render.Partial(w, http.StatusOK, "access-form", form)
		return
	}
	h.render.Page(w, status, "index.html", map[string]any{
		"Title": "Crown Vault",
		"Form":  form,
	})
}
