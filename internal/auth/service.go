package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dukerupert/crownvault/internal/model"
	"github.com/dukerupert/crownvault/internal/store"
)

const (
	LinkModeTokenHash = "token_hash"
	LinkModeCode      = "code"

	// OTP types accepted alongside token_hash.
	TypeMagicLink = "magiclink"
	TypeEmail     = "email"
)

var (
	ErrInvalidLink = errors.New("email link is invalid or has expired")
	ErrNotApproved = errors.New("no approved access for this email")
)

// Mailer delivers sign-in links.
type Mailer interface {
	SendMagicLink(ctx context.Context, toEmail, link string) error
	Configured() bool
}

// Service implements passwordless sign-in on top of the magic link and
// session tables. Only emails with an approved access request can obtain a
// session.
type Service struct {
	links    *store.MagicLinkStore
	sessions *store.SessionStore
	requests *store.AccessRequestStore
	mailer   Mailer
	linkMode string
	logger   *slog.Logger
}

func NewService(
	links *store.MagicLinkStore,
	sessions *store.SessionStore,
	requests *store.AccessRequestStore,
	mailer Mailer,
	linkMode string,
	logger *slog.Logger,
) *Service {
	if linkMode != LinkModeCode {
		linkMode = LinkModeTokenHash
	}
	return &Service{
		links:    links,
		sessions: sessions,
		requests: requests,
		mailer:   mailer,
		linkMode: linkMode,
		logger:   logger,
	}
}

// SignInWithMagicLink issues a link for email pointing at redirectURL and
// mails it. When no mail transport is configured the link is logged instead.
func (s *Service) SignInWithMagicLink(ctx context.Context, email, redirectURL string) error {
	ml, token, err := s.links.Create(email)
	if err != nil {
		return fmt.Errorf("create magic link: %w", err)
	}

	link, err := buildLink(redirectURL, s.linkMode, token, ml.Code)
	if err != nil {
		return err
	}

	if s.mailer == nil || !s.mailer.Configured() {
		s.logger.Info("email not configured, magic link", "email", email, "link", link)
		return nil
	}
	if err := s.mailer.SendMagicLink(ctx, email, link); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	return nil
}

func buildLink(redirectURL, mode, token, code string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	if mode == LinkModeCode {
		q.Set("code", code)
	} else {
		q.Set("token_hash", token)
		q.Set("type", TypeMagicLink)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyToken consumes a token_hash link and opens a session.
func (s *Service) VerifyToken(ctx context.Context, tokenHash, typ string) (*model.Session, error) {
	if typ != TypeMagicLink && typ != TypeEmail {
		return nil, fmt.Errorf("unsupported link type %q: %w", typ, ErrInvalidLink)
	}
	if tokenHash == "" {
		return nil, ErrInvalidLink
	}
	ml, err := s.links.GetByTokenHash(store.HashToken(tokenHash))
	if err != nil {
		return nil, err
	}
	return s.consume(ml)
}

// ExchangeCode consumes a code link and opens a session.
func (s *Service) ExchangeCode(ctx context.Context, code string) (*model.Session, error) {
	if code == "" {
		return nil, ErrInvalidLink
	}
	ml, err := s.links.GetByCode(code)
	if err != nil {
		return nil, err
	}
	return s.consume(ml)
}

func (s *Service) consume(ml *model.MagicLink) (*model.Session, error) {
	if ml == nil || ml.UsedAt != nil || !time.Now().Before(ml.ExpiresAt) {
		return nil, ErrInvalidLink
	}

	ok, err := s.links.MarkUsed(ml.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidLink
	}

	// Approval may have been revoked since the link was sent.
	req, err := s.requests.GetByEmail(ml.Email)
	if err != nil {
		return nil, err
	}
	if req == nil || req.Status != model.AccessApproved {
		return nil, ErrNotApproved
	}

	sess, err := s.sessions.Create(ml.Email)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("member signed in", "email", ml.Email)
	return sess, nil
}

// Session returns the live session for token, or nil.
func (s *Service) Session(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}
	return s.sessions.GetByToken(token)
}

// SignOut ends the session. Unknown tokens are not an error.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.DeleteByToken(token)
}

// Cleanup removes expired sessions and links.
func (s *Service) Cleanup(ctx context.Context) error {
	sessions, err := s.sessions.DeleteExpired()
	if err != nil {
		return err
	}
	links, err := s.links.DeleteExpired()
	if err != nil {
		return err
	}
	if sessions > 0 || links > 0 {
		s.logger.Info("cleaned up expired auth rows", "sessions", sessions, "magic_links", links)
	}
	return nil
}
