package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/dukerupert/crownvault/internal/database"
	"github.com/dukerupert/crownvault/internal/logging"
	"github.com/dukerupert/crownvault/internal/model"
	"github.com/dukerupert/crownvault/internal/store"
)

type fakeMailer struct {
	configured bool
	err        error
	sent       []string
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) SendMagicLink(ctx context.Context, toEmail, link string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, link)
	return nil
}

type testEnv struct {
	svc      *Service
	mailer   *fakeMailer
	requests *store.AccessRequestStore
	links    *store.MagicLinkStore
}

func setupService(t *testing.T, mode string) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		mailer:   &fakeMailer{configured: true},
		requests: store.NewAccessRequestStore(db),
		links:    store.NewMagicLinkStore(db),
	}
	env.svc = NewService(env.links, store.NewSessionStore(db), env.requests, env.mailer, mode, logging.Discard())
	return env
}

func (e *testEnv) approve(t *testing.T, email string) {
	t.Helper()
	req, err := e.requests.Create(email)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := e.requests.UpdateStatus(req.ID, model.AccessApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func (e *testEnv) lastLink(t *testing.T) url.Values {
	t.Helper()
	if len(e.mailer.sent) == 0 {
		t.Fatal("no link sent")
	}
	u, err := url.Parse(e.mailer.sent[len(e.mailer.sent)-1])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query()
}

func TestSignInTokenHashFlow(t *testing.T) {
	env := setupService(t, LinkModeTokenHash)
	env.approve(t, "dealer@example.com")
	ctx := context.Background()

	if err := env.svc.SignInWithMagicLink(ctx, "dealer@example.com", "https://vault.test/auth/callback"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	q := env.lastLink(t)
	if q.Get("type") != TypeMagicLink {
		t.Errorf("type = %q, want %q", q.Get("type"), TypeMagicLink)
	}

	sess, err := env.svc.VerifyToken(ctx, q.Get("token_hash"), q.Get("type"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sess.Email != "dealer@example.com" {
		t.Errorf("Email = %q, want %q", sess.Email, "dealer@example.com")
	}

	got, err := env.svc.Session(ctx, sess.Token)
	if err != nil || got == nil {
		t.Fatalf("session lookup: %v, %v", got, err)
	}

	// Links are single use.
	if _, err := env.svc.VerifyToken(ctx, q.Get("token_hash"), q.Get("type")); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("reuse err = %v, want ErrInvalidLink", err)
	}
}

func TestSignInCodeFlow(t *testing.T) {
	env := setupService(t, LinkModeCode)
	env.approve(t, "dealer@example.com")
	ctx := context.Background()

	if err := env.svc.SignInWithMagicLink(ctx, "dealer@example.com", "https://vault.test/auth/callback"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	q := env.lastLink(t)
	if q.Get("code") == "" {
		t.Fatal("expected code in link")
	}
	if q.Get("token_hash") != "" {
		t.Error("code link should not carry token_hash")
	}

	sess, err := env.svc.ExchangeCode(ctx, q.Get("code"))
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if sess.Email != "dealer@example.com" {
		t.Errorf("Email = %q, want %q", sess.Email, "dealer@example.com")
	}
}

func TestVerifyRejectsUnknownAndBadType(t *testing.T) {
	env := setupService(t, LinkModeTokenHash)
	ctx := context.Background()

	if _, err := env.svc.VerifyToken(ctx, "nope", TypeMagicLink); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("unknown token err = %v, want ErrInvalidLink", err)
	}
	if _, err := env.svc.VerifyToken(ctx, "nope", "recovery"); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("bad type err = %v, want ErrInvalidLink", err)
	}
	if _, err := env.svc.ExchangeCode(ctx, ""); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("empty code err = %v, want ErrInvalidLink", err)
	}
}

func TestVerifyRechecksApproval(t *testing.T) {
	env := setupService(t, LinkModeCode)
	env.approve(t, "dealer@example.com")
	ctx := context.Background()

	if err := env.svc.SignInWithMagicLink(ctx, "dealer@example.com", "https://vault.test/auth/callback"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	code := env.lastLink(t).Get("code")

	req, _ := env.requests.GetByEmail("dealer@example.com")
	env.requests.UpdateStatus(req.ID, model.AccessDenied)

	if _, err := env.svc.ExchangeCode(ctx, code); !errors.Is(err, ErrNotApproved) {
		t.Errorf("err = %v, want ErrNotApproved", err)
	}
}

func TestSignInSendFailure(t *testing.T) {
	env := setupService(t, LinkModeTokenHash)
	env.mailer.err = errors.New("smtp down")

	if err := env.svc.SignInWithMagicLink(context.Background(), "dealer@example.com", "https://vault.test/auth/callback"); err == nil {
		t.Fatal("expected send error")
	}
}

func TestSignInUnconfiguredMailerLogsLink(t *testing.T) {
	env := setupService(t, LinkModeTokenHash)
	env.mailer.configured = false

	if err := env.svc.SignInWithMagicLink(context.Background(), "dealer@example.com", "https://vault.test/auth/callback"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if len(env.mailer.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(env.mailer.sent))
	}
}

func TestSignOut(t *testing.T) {
	env := setupService(t, LinkModeCode)
	env.approve(t, "dealer@example.com")
	ctx := context.Background()

	env.svc.SignInWithMagicLink(ctx, "dealer@example.com", "https://vault.test/auth/callback")
	sess, err := env.svc.ExchangeCode(ctx, env.lastLink(t).Get("code"))
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if err := env.svc.SignOut(ctx, sess.Token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	got, err := env.svc.Session(ctx, sess.Token)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if got != nil {
		t.Error("expected no session after sign out")
	}

	if err := env.svc.SignOut(ctx, ""); err != nil {
		t.Errorf("empty sign out: %v", err)
	}
}

func TestCleanup(t *testing.T) {
	env := setupService(t, LinkModeCode)
	if err := env.svc.Cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
