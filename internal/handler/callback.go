package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dukerupert/crownvault/internal/auth"
	"github.com/dukerupert/crownvault/internal/model"
	"github.com/dukerupert/crownvault/internal/signin"
	"github.com/dukerupert/crownvault/internal/store"
)

const msgAuthFailed = "authentication failed"

// Callback finishes a magic link sign-in. It always answers with exactly one
// redirect: to the catalog on success, to the sign-in page with an error
// otherwise.
func (h *SignInHandler) Callback(w http.ResponseWriter, r *http.Request) {
	target := h.completeCallback(r.Context(), w, r.URL.Query())
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func loginError(msg string) string {
	return "/login?error=" + url.QueryEscape(msg)
}

func (h *SignInHandler) completeCallback(ctx context.Context, w http.ResponseWriter, q url.Values) (target string) {
	if e := q.Get("error"); e != "" {
		h.logger.Info("auth callback error", "error", e, "description", q.Get("error_description"))
		return loginError(e)
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("auth callback panic", "panic", fmt.Sprint(rec))
			target = loginError(msgAuthFailed)
		}
	}()

	var sess *model.Session
	var err error
	switch {
	case q.Get("token_hash") != "" && q.Get("type") != "":
		sess, err = h.auth.VerifyToken(ctx, q.Get("token_hash"), q.Get("type"))
	case q.Get("code") != "":
		sess, err = h.auth.ExchangeCode(ctx, q.Get("code"))
	default:
		return "/marketplace"
	}

	if err != nil {
		h.logger.Warn("auth callback verification failed", "error", err)
		return loginError(callbackMessage(err))
	}
	if sess == nil {
		return loginError(msgAuthFailed)
	}

	h.cookies.SetSession(w, sess.Token, store.SessionTTL)
	return "/marketplace"
}

func callbackMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidLink):
		return "Email link is invalid or has expired"
	case errors.Is(err, auth.ErrNotApproved):
		return signin.MsgNoAccess
	default:
		return msgAuthFailed
	}
}
