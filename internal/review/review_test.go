package review

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/crownvault/internal/database"
	"github.com/dukerupert/crownvault/internal/describe"
	"github.com/dukerupert/crownvault/internal/logging"
	"github.com/dukerupert/crownvault/internal/model"
	"github.com/dukerupert/crownvault/internal/store"
	"github.com/dukerupert/crownvault/internal/websocket"
)

type recordingHub struct {
	mu   sync.Mutex
	msgs []websocket.Message
}

func (h *recordingHub) Broadcast(msg websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

type fakeStorage struct {
	deleted []string
}

func (s *fakeStorage) Upload(ctx context.Context, key, contentType string, body io.Reader) error {
	return nil
}
func (s *fakeStorage) PublicURL(key string) string { return "https://cdn.test/" + key }
func (s *fakeStorage) KeyFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, "https://cdn.test/") {
		return "", false
	}
	return strings.TrimPrefix(url, "https://cdn.test/"), true
}
func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

type fakeDrafter struct {
	text string
	ok   bool
	got  describe.Fields
}

func (d *fakeDrafter) Draft(ctx context.Context, f describe.Fields) (string, bool) {
	d.got = f
	return d.text, d.ok
}

type testEnv struct {
	svc      *Service
	requests *store.AccessRequestStore
	items    *store.ItemStore
	storage  *fakeStorage
	drafter  *fakeDrafter
	hub      *recordingHub
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		requests: store.NewAccessRequestStore(db),
		items:    store.NewItemStore(db),
		storage:  &fakeStorage{},
		drafter:  &fakeDrafter{},
		hub:      &recordingHub{},
	}
	env.svc = NewService(env.requests, env.items, env.storage, env.drafter, env.hub, logging.Discard())
	return env
}

func (e *testEnv) item(t *testing.T, images ...string) *model.Item {
	t.Helper()
	it, err := e.items.Create(model.NewItem{
		Brand: "Rolex", Model: "Submariner", Price: 12500, Condition: "Excellent",
		Location: "NYC", ShippingDays: 3, Images: images,
	})
	require.NoError(t, err)
	return it
}

func TestApproveAndDeny(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	a, _ := env.requests.Create("a@example.com")
	b, _ := env.requests.Create("b@example.com")

	got, err := env.svc.Approve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccessApproved, got.Status)
	assert.NotNil(t, got.ReviewedAt)

	got, err = env.svc.Deny(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccessDenied, got.Status)

	pending, err := env.svc.ListRequests("pending")
	require.NoError(t, err)
	assert.Empty(t, pending)

	approved, err := env.svc.ListRequests(model.AccessApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "a@example.com", approved[0].Email)

	require.Len(t, env.hub.msgs, 2)
	assert.Equal(t, "access_request_updated", env.hub.msgs[0].Type)
}

func TestDecideMissingAndInvalid(t *testing.T) {
	env := setup(t)

	_, err := env.svc.Approve(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Decide(context.Background(), 1, model.AccessPending)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDecideOnlyPending(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	req, _ := env.requests.Create("a@example.com")

	_, err := env.svc.Approve(ctx, req.ID)
	require.NoError(t, err)

	got, err := env.svc.Deny(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	require.NotNil(t, got)
	assert.Equal(t, model.AccessApproved, got.Status)

	_, err = env.svc.Approve(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	stored, err := env.requests.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccessApproved, stored.Status)
	assert.Len(t, env.hub.msgs, 1)
}

func TestDecideBusyRow(t *testing.T) {
	env := setup(t)
	req, _ := env.requests.Create("a@example.com")
	other, _ := env.requests.Create("b@example.com")

	done, ok := env.svc.InFlight().Begin(KindRequest, req.ID)
	require.True(t, ok)

	_, err := env.svc.Approve(context.Background(), req.ID)
	assert.ErrorIs(t, err, ErrBusy)

	_, err = env.svc.Approve(context.Background(), other.ID)
	assert.NoError(t, err, "a different row is unaffected")

	done()
	_, err = env.svc.Approve(context.Background(), req.ID)
	assert.NoError(t, err)
}

func TestParseTab(t *testing.T) {
	assert.Equal(t, model.AccessPending, ParseTab(""))
	assert.Equal(t, model.AccessDenied, ParseTab("denied"))
	assert.Equal(t, model.AccessPending, ParseTab("all"))
}

func TestSetItemStatus(t *testing.T) {
	env := setup(t)
	it := env.item(t)

	got, err := env.svc.SetItemStatus(context.Background(), it.ID, model.ItemOnHold)
	require.NoError(t, err)
	assert.Equal(t, model.ItemOnHold, got.Status)

	_, err = env.svc.SetItemStatus(context.Background(), it.ID, "reserved")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = env.svc.SetItemStatus(context.Background(), 999, model.ItemSold)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteItemRemovesBlobs(t *testing.T) {
	env := setup(t)
	it := env.item(t, "https://cdn.test/watches/1.jpg", "https://elsewhere.test/x.jpg", "https://cdn.test/watches/2.jpg")

	require.NoError(t, env.svc.DeleteItem(context.Background(), it.ID))

	got, err := env.items.GetByID(it.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []string{"watches/1.jpg", "watches/2.jpg"}, env.storage.deleted)

	assert.ErrorIs(t, env.svc.DeleteItem(context.Background(), it.ID), ErrNotFound)
}

func TestRemoveItemImage(t *testing.T) {
	env := setup(t)
	it := env.item(t, "a", "b", "c")

	got, err := env.svc.RemoveItemImage(context.Background(), it.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got.Images)
	assert.Equal(t, "b", got.Cover())
	assert.Empty(t, env.storage.deleted, "removing from the list leaves storage alone")

	got, err = env.svc.RemoveItemImage(context.Background(), it.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got.Images)
}

func TestCreateItem(t *testing.T) {
	env := setup(t)

	form := FormFromValues(validValues())
	it, err := env.svc.CreateItem(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, model.ItemAvailable, it.Status)
	assert.Equal(t, "https://cdn.test/a.jpg", it.Cover())

	items, err := env.svc.ListItems()
	require.NoError(t, err)
	assert.Len(t, items, 1)

	form.Price = ""
	_, err = env.svc.CreateItem(context.Background(), form)
	var fe FieldErrors
	assert.True(t, errors.As(err, &fe))

	form.Price = "Inf"
	_, err = env.svc.CreateItem(context.Background(), form)
	assert.True(t, errors.As(err, &fe))

	items, err = env.svc.ListItems()
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestDraftDescription(t *testing.T) {
	env := setup(t)
	form := FormFromValues(validValues())

	env.drafter.text, env.drafter.ok = "Drafted copy.", true
	text, ok := env.svc.DraftDescription(context.Background(), form)
	assert.True(t, ok)
	assert.Equal(t, "Drafted copy.", text)
	assert.Equal(t, "Full set", env.drafter.got.DealerNotes)

	env.drafter.ok = false
	text, ok = env.svc.DraftDescription(context.Background(), form)
	assert.False(t, ok)
	assert.Equal(t, "Clean example.", text, "failure leaves the description untouched")
}
