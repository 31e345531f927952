package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/crownvault/internal/database"
	"github.com/dukerupert/crownvault/internal/logging"
	"github.com/dukerupert/crownvault/internal/model"
	"github.com/dukerupert/crownvault/internal/store"
	"github.com/dukerupert/crownvault/web"
)

// fakeAuth answers the auth calls with canned results.
type fakeAuth struct {
	verify   func(tokenHash, typ string) (*model.Session, error)
	exchange func(code string) (*model.Session, error)
	session  *model.Session
	signOuts []string
}

func (f *fakeAuth) SignInWithMagicLink(ctx context.Context, email, redirectURL string) error {
	return nil
}

func (f *fakeAuth) VerifyToken(ctx context.Context, tokenHash, typ string) (*model.Session, error) {
	return f.verify(tokenHash, typ)
}

func (f *fakeAuth) ExchangeCode(ctx context.Context, code string) (*model.Session, error) {
	return f.exchange(code)
}

func (f *fakeAuth) Session(ctx context.Context, token string) (*model.Session, error) {
	if f.session != nil && f.session.Token == token {
		return f.session, nil
	}
	return nil, nil
}

func (f *fakeAuth) SignOut(ctx context.Context, token string) error {
	f.signOuts = append(f.signOuts, token)
	return nil
}

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(web.TemplatesFS(), logging.Discard())
	require.NoError(t, err)
	return r
}

func testDB(t *testing.T) (*store.AccessRequestStore, *store.ItemStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewAccessRequestStore(db), store.NewItemStore(db)
}

func formRequest(method, target string, form url.Values, htmx bool) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return req
}
