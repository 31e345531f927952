package access

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/dukerupert/crownvault/internal/backend"
	"github.com/dukerupert/crownvault/internal/store"
	"github.com/dukerupert/crownvault/internal/websocket"
)

type Result int

const (
	Ok Result = iota
	AlreadyRequested
	TransientError
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case AlreadyRequested:
		return "already_requested"
	default:
		return "transient_error"
	}
}

// Received reports whether the visitor should see the confirmation page.
func (r Result) Received() bool {
	return r == Ok || r == AlreadyRequested
}

const (
	MsgEmailRequired = "Please enter your email address."
	MsgEmailInvalid  = "Please enter a valid email address."
	MsgTryAgain      = "Something went wrong. Please try again."
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrEmailInvalid  = errors.New("email is invalid")
)

// Normalize lower-cases and trims an email address.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate normalizes email and checks it is a bare address.
func Validate(email string) (string, error) {
	email = Normalize(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrEmailInvalid
	}
	return email, nil
}

type Service struct {
	requests backend.AccessRequests
	events   websocket.Broadcaster
	logger   *slog.Logger
}

func NewService(requests backend.AccessRequests, events websocket.Broadcaster, logger *slog.Logger) *Service {
	return &Service{requests: requests, events: events, logger: logger}
}

// Submit records an access request. A second request for the same email is
// reported as AlreadyRequested, which callers present exactly like Ok.
// Validation failures are returned as errors before the table is touched.
func (s *Service) Submit(ctx context.Context, email string) (Result, error) {
	email, err := Validate(email)
	if err != nil {
		return TransientError, err
	}

	req, err := s.requests.Create(email)
	if errors.Is(err, store.ErrDuplicate) {
		s.logger.Info("duplicate access request", "email", email)
		return AlreadyRequested, nil
	}
	if err != nil {
		s.logger.Error("create access request", "email", email, "error", err)
		return TransientError, nil
	}

	s.logger.Info("access requested", "email", email, "id", req.ID)
	if s.events != nil {
		s.events.Broadcast(websocket.NewMessage(websocket.EntityAccessRequest, websocket.ActionCreated, req.ID, nil))
	}
	return Ok, nil
}

// Message is the inline form error for a validation failure.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrEmailRequired):
		return MsgEmailRequired
	case errors.Is(err, ErrEmailInvalid):
		return MsgEmailInvalid
	default:
		return MsgTryAgain
	}
}
