// Package backend defines the narrow interfaces the marketplace flows use
// for tables, authentication, object storage and text generation, and
// composes the SQLite-backed implementation.
package backend

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/dukerupert/crownvault/internal/auth"
	"github.com/dukerupert/crownvault/internal/describe"
	"github.com/dukerupert/crownvault/internal/model"
	"github.com/dukerupert/crownvault/internal/storage"
	"github.com/dukerupert/crownvault/internal/store"
)

// AccessRequests is the access_requests table. Create reports
// store.ErrDuplicate when the email already has a row.
type AccessRequests interface {
	Create(email string) (*model.AccessRequest, error)
	GetByID(id int64) (*model.AccessRequest, error)
	GetByEmail(email string) (*model.AccessRequest, error)
	ListByStatus(status string) ([]model.AccessRequest, error)
	UpdateStatus(id int64, status string) (*model.AccessRequest, error)
	CountByStatus() (map[string]int, error)
}

// Items is the items table.
type Items interface {
	Create(n model.NewItem) (*model.Item, error)
	GetByID(id int64) (*model.Item, error)
	List(status string) ([]model.Item, error)
	UpdateStatus(id int64, status string) (*model.Item, error)
	UpdateImages(id int64, images []string) (*model.Item, error)
	Delete(id int64) (bool, error)
}

// Auth is passwordless sign-in and session lookup.
type Auth interface {
	SignInWithMagicLink(ctx context.Context, email, redirectURL string) error
	VerifyToken(ctx context.Context, tokenHash, typ string) (*model.Session, error)
	ExchangeCode(ctx context.Context, code string) (*model.Session, error)
	Session(ctx context.Context, token string) (*model.Session, error)
	SignOut(ctx context.Context, token string) error
}

// Drafter produces listing descriptions. ok is false on any failure.
type Drafter interface {
	Draft(ctx context.Context, f describe.Fields) (string, bool)
}

var (
	_ AccessRequests = (*store.AccessRequestStore)(nil)
	_ Items          = (*store.ItemStore)(nil)
	_ Auth           = (*auth.Service)(nil)
	_ Drafter        = (*describe.Service)(nil)
)

// Client bundles everything the flows talk to.
type Client struct {
	Requests AccessRequests
	Items    Items
	Auth     Auth
	Storage  storage.Storage

	authService *auth.Service
}

// New wires the SQLite tables and auth service over db.
func New(db *sql.DB, mailer auth.Mailer, st storage.Storage, linkMode string, logger *slog.Logger) *Client {
	requests := store.NewAccessRequestStore(db)
	svc := auth.NewService(
		store.NewMagicLinkStore(db),
		store.NewSessionStore(db),
		requests,
		mailer,
		linkMode,
		logger.With("component", "auth"),
	)
	return &Client{
		Requests:    requests,
		Items:       store.NewItemStore(db),
		Auth:        svc,
		Storage:     st,
		authService: svc,
	}
}

// Cleanup removes expired auth rows.
func (c *Client) Cleanup(ctx context.Context) error {
	if c.authService == nil {
		return nil
	}
	return c.authService.Cleanup(ctx)
}
