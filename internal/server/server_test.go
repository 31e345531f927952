package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/crownvault/internal/auth"
	"github.com/dukerupert/crownvault/internal/backend"
	"github.com/dukerupert/crownvault/internal/backup"
	"github.com/dukerupert/crownvault/internal/database"
	"github.com/dukerupert/crownvault/internal/describe"
	"github.com/dukerupert/crownvault/internal/handler"
	"github.com/dukerupert/crownvault/internal/logging"
	"github.com/dukerupert/crownvault/internal/middleware"
	"github.com/dukerupert/crownvault/internal/model"
	"github.com/dukerupert/crownvault/internal/storage"
	"github.com/dukerupert/crownvault/web"
)

const adminPassword = "correct horse"

type captureMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *captureMailer) Configured() bool { return true }

func (m *captureMailer) SendMagicLink(ctx context.Context, toEmail, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

func (m *captureMailer) last(t *testing.T) *url.URL {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.links, "no sign-in link was sent")
	u, err := url.Parse(m.links[len(m.links)-1])
	require.NoError(t, err)
	return u
}

type testApp struct {
	handler http.Handler
	client  *backend.Client
	mailer  *captureMailer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := storage.NewDisk(t.TempDir(), "http://vault.test/uploads")
	require.NoError(t, err)

	mailer := &captureMailer{}
	client := backend.New(db, mailer, st, auth.LinkModeCode, logging.Discard())

	gate, err := auth.NewAdminGate(adminPassword, "", "test-secret", time.Hour)
	require.NoError(t, err)

	renderer, err := handler.NewRenderer(web.TemplatesFS(), logging.Discard())
	require.NoError(t, err)

	describer := describe.NewService(describe.Config{}, logging.Discard())
	backups := backup.NewRunner(db, st, backup.Config{Passphrase: "test-passphrase"}, logging.Discard())

	srv := New(Options{
		Client:      client,
		AdminGate:   gate,
		Generator:   describer,
		Drafter:     describer,
		Renderer:    renderer,
		Backup:      backups,
		Static:      web.StaticFS(),
		CallbackURL: "http://vault.test/auth/callback",
	}, logging.Discard())

	return &testApp{handler: srv.Router(), client: client, mailer: mailer}
}

func (a *testApp) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req, cookies...)
}

func (a *testApp) htmxPost(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	return a.do(req, cookies...)
}

func (a *testApp) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func cookieNamed(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func (a *testApp) adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	rec := a.post("/admin/login", url.Values{"password": {adminPassword}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	return cookieNamed(t, rec, middleware.AdminCookieName)
}

func TestDealerJourney(t *testing.T) {
	app := newTestApp(t)
	const email = "dealer@example.com"

	rec := app.post("/request-access", url.Values{"email": {"  Dealer@Example.com "}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Request received")

	// A second request looks exactly the same.
	rec = app.post("/request-access", url.Values{"email": {email}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Request received")

	req, err := app.client.Requests.GetByEmail(email)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, model.AccessPending, req.Status)

	// Pending dealers get no link.
	rec = app.post("/login", url.Values{"email": {email}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "still under review")
	assert.Empty(t, app.mailer.links)

	admin := app.adminCookie(t)
	rec = app.htmxPost("/admin/requests/"+strconv.FormatInt(req.ID, 10)+"/approve", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, strings.TrimSpace(rec.Body.String()))

	rec = app.post("/login", url.Values{"email": {email}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Check your email")

	link := app.mailer.last(t)
	code := link.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, "/auth/callback", link.Path)

	rec = app.get("/auth/callback?code=" + url.QueryEscape(code))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/marketplace", rec.Header().Get("Location"))
	session := cookieNamed(t, rec, middleware.SessionCookieName)

	rec = app.get("/marketplace", session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Signed in as "+email)

	// Links are single use.
	rec = app.get("/auth/callback?code=" + url.QueryEscape(code))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login?error="))
}

func TestMarketplaceSignedOut(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/marketplace")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Members only")
	assert.NotContains(t, rec.Body.String(), `id="catalog"`)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)

	rec := app.post("/admin/requests/1/approve", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.htmxPost("/admin/items", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("HX-Redirect"))

	rec = app.get("/admin/items")
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	bogus := &http.Cookie{Name: middleware.AdminCookieName, Value: "not-a-token"}
	rec = app.post("/api/generate-description", nil, bogus)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminPage(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="password"`)

	rec = app.post("/admin/login", url.Values{"password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incorrect password.")

	rec = app.get("/admin", app.adminCookie(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access requests")
	assert.Contains(t, rec.Body.String(), "New listing")
}

func TestAdminLoginRateLimited(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < adminLoginLimit; i++ {
		rec := app.post("/admin/login", url.Values{"password": {"wrong"}})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := app.post("/admin/login", url.Values{"password": {adminPassword}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestPublishAndBrowse(t *testing.T) {
	app := newTestApp(t)
	admin := app.adminCookie(t)

	rec := app.htmxPost("/admin/items", url.Values{
		"brand":         {"Rolex"},
		"model":         {"Submariner"},
		"price":         {"12500"},
		"condition":     {"Excellent"},
		"location":      {"Miami, FL"},
		"shipping_days": {"2"},
		"images":        {"http://vault.test/uploads/watches/a.jpg"},
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Listing published.")
	assert.Equal(t, "items-changed", rec.Header().Get("HX-Trigger"))

	items, err := app.client.Items.List("")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.ItemAvailable, items[0].Status)
	assert.Equal(t, []string{"http://vault.test/uploads/watches/a.jpg"}, items[0].Images)

	rec = app.do(httptest.NewRequest(http.MethodGet, "/admin/items", nil), admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rolex Submariner")
	assert.Contains(t, rec.Body.String(), "$12,500")
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = app.get("/static/app.css")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManualBackup(t *testing.T) {
	app := newTestApp(t)
	admin := app.adminCookie(t)

	rec := app.post("/api/backup", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.post("/api/backup", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.True(t, strings.HasPrefix(out["key"], backup.KeyPrefix))

	// Snapshots are never served with the listing images.
	rec = app.get("/uploads/" + out["key"])
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.get("/api/backup", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "last_backup")
}
