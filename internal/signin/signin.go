package signin

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukerupert/crownvault/internal/access"
	"github.com/dukerupert/crownvault/internal/backend"
	"github.com/dukerupert/crownvault/internal/model"
)

// State is where the sign-in form is. Loading only exists while a
// submission is in flight and is rendered by the client as a busy button.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSent    State = "sent"
	StateError   State = "error"
)

const (
	MsgPending     = "Your access request is still under review."
	MsgNoAccess    = "No approved access found for this email. Request access from the homepage."
	MsgSendFailed  = "Failed to send login link. Please try again."
	MsgExpired     = "Sign-in link expired. Please request a new one."
	MsgEmailNeeded = "Please enter your email address."
)

// View is what the sign-in page renders.
type View struct {
	State State
	Email string
	Error string
}

type Service struct {
	requests    backend.AccessRequests
	auth        backend.Auth
	callbackURL string
	logger      *slog.Logger
}

func NewService(requests backend.AccessRequests, a backend.Auth, callbackURL string, logger *slog.Logger) *Service {
	return &Service{requests: requests, auth: a, callbackURL: callbackURL, logger: logger}
}

// Submit checks the email has approved access before asking for a magic
// link. Unapproved emails never get a link.
func (s *Service) Submit(ctx context.Context, email string) View {
	email = access.Normalize(email)
	if email == "" {
		return View{State: StateError, Error: MsgEmailNeeded}
	}

	req, err := s.requests.GetByEmail(email)
	if err != nil {
		s.logger.Error("sign-in lookup", "email", email, "error", err)
		return View{State: StateError, Email: email, Error: MsgSendFailed}
	}
	if req == nil || req.Status != model.AccessApproved {
		msg := MsgNoAccess
		if req != nil && req.Status == model.AccessPending {
			msg = MsgPending
		}
		return View{State: StateError, Email: email, Error: msg}
	}

	if err := s.auth.SignInWithMagicLink(ctx, email, s.callbackURL); err != nil {
		s.logger.Error("send magic link", "email", email, "error", err)
		return View{State: StateError, Email: email, Error: MsgSendFailed}
	}

	s.logger.Info("magic link sent", "email", email)
	return View{State: StateSent, Email: email}
}

// FromRedirect builds the initial view from an error handed back by the
// callback endpoint or the identity provider.
func FromRedirect(errParam string) View {
	errParam = strings.TrimSpace(errParam)
	if errParam == "" {
		return View{State: StateIdle}
	}
	return View{State: StateError, Error: Humanize(errParam)}
}

// Humanize rewrites provider error codes into something a member can act
// on. Expired or denied links get a fixed message; anything else is shown
// as-is.
func Humanize(msg string) string {
	if msg == "access_denied" || strings.Contains(strings.ToLower(msg), "expired") {
		return MsgExpired
	}
	return msg
}
