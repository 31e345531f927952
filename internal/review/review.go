package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/crownvault/internal/backend"
	"github.com/dukerupert/crownvault/internal/model"
	"github.com/dukerupert/crownvault/internal/storage"
	"github.com/dukerupert/crownvault/internal/websocket"
)

const (
	KindRequest = "request"
	KindItem    = "item"
)

var (
	ErrBusy            = errors.New("another action is already running for this row")
	ErrNotFound        = errors.New("not found")
	ErrInvalidStatus   = errors.New("invalid status")
	// ErrAlreadyReviewed is returned when approving or denying a request
	// that is no longer pending.
	ErrAlreadyReviewed = errors.New("access request already reviewed")
)

type Service struct {
	requests backend.AccessRequests
	items    backend.Items
	storage  storage.Storage
	drafter  backend.Drafter
	events   websocket.Broadcaster
	inflight *InFlight
	logger   *slog.Logger
}

func NewService(
	requests backend.AccessRequests,
	items backend.Items,
	st storage.Storage,
	drafter backend.Drafter,
	events websocket.Broadcaster,
	logger *slog.Logger,
) *Service {
	return &Service{
		requests: requests,
		items:    items,
		storage:  st,
		drafter:  drafter,
		events:   events,
		inflight: NewInFlight(),
		logger:   logger,
	}
}

// InFlight exposes the row guard, mainly for rendering disabled controls.
func (s *Service) InFlight() *InFlight {
	return s.inflight
}

func (s *Service) broadcast(entity, action string, id int64, extra map[string]any) {
	if s.events != nil {
		s.events.Broadcast(websocket.NewMessage(entity, action, id, extra))
	}
}

// ParseTab maps a tab query value to a request status, defaulting to pending.
func ParseTab(tab string) string {
	if model.ValidAccessStatus(tab) {
		return tab
	}
	return model.AccessPending
}

func (s *Service) ListRequests(status string) ([]model.AccessRequest, error) {
	return s.requests.ListByStatus(ParseTab(status))
}

func (s *Service) GetRequest(id int64) (*model.AccessRequest, error) {
	req, err := s.requests.GetByID(id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrNotFound
	}
	return req, nil
}

func (s *Service) RequestCounts() (map[string]int, error) {
	return s.requests.CountByStatus()
}

// Decide approves or denies an access request.
func (s *Service) Decide(ctx context.Context, id int64, status string) (*model.AccessRequest, error) {
	if status != model.AccessApproved && status != model.AccessDenied {
		return nil, ErrInvalidStatus
	}
	done, ok := s.inflight.Begin(KindRequest, id)
	if !ok {
		return nil, ErrBusy
	}
	defer done()

	current, err := s.requests.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get access request: %w", err)
	}
	if current == nil {
		return nil, ErrNotFound
	}
	if current.Status != model.AccessPending {
		return current, ErrAlreadyReviewed
	}

	req, err := s.requests.UpdateStatus(id, status)
	if err != nil {
		return nil, fmt.Errorf("update access request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}

	s.logger.Info("access request reviewed", "id", id, "email", req.Email, "status", status)
	s.broadcast(websocket.EntityAccessRequest, websocket.ActionUpdated, id, map[string]any{"status": status})
	return req, nil
}

func (s *Service) Approve(ctx context.Context, id int64) (*model.AccessRequest, error) {
	return s.Decide(ctx, id, model.AccessApproved)
}

func (s *Service) Deny(ctx context.Context, id int64) (*model.AccessRequest, error) {
	return s.Decide(ctx, id, model.AccessDenied)
}

// ListItems returns every item newest first.
func (s *Service) ListItems() ([]model.Item, error) {
	return s.items.List("")
}

func (s *Service) GetItem(id int64) (*model.Item, error) {
	it, err := s.items.GetByID(id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, ErrNotFound
	}
	return it, nil
}

func (s *Service) SetItemStatus(ctx context.Context, id int64, status string) (*model.Item, error) {
	if !model.ValidItemStatus(status) {
		return nil, ErrInvalidStatus
	}
	done, ok := s.inflight.Begin(KindItem, id)
	if !ok {
		return nil, ErrBusy
	}
	defer done()

	it, err := s.items.UpdateStatus(id, status)
	if err != nil {
		return nil, fmt.Errorf("update item status: %w", err)
	}
	if it == nil {
		return nil, ErrNotFound
	}

	s.logger.Info("item status changed", "id", id, "status", status)
	s.broadcast(websocket.EntityItem, websocket.ActionUpdated, id, map[string]any{"status": status})
	return it, nil
}

// DeleteItem removes the item and then, best effort, its stored images.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	done, ok := s.inflight.Begin(KindItem, id)
	if !ok {
		return ErrBusy
	}
	defer done()

	it, err := s.items.GetByID(id)
	if err != nil {
		return fmt.Errorf("get item: %w", err)
	}
	if it == nil {
		return ErrNotFound
	}

	deleted, err := s.items.Delete(id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}

	s.logger.Info("item deleted", "id", id, "brand", it.Brand, "model", it.Model)
	s.broadcast(websocket.EntityItem, websocket.ActionDeleted, id, nil)
	s.deleteBlobs(ctx, it.Images)
	return nil
}

func (s *Service) deleteBlobs(ctx context.Context, images []string) {
	if s.storage == nil {
		return
	}
	for _, url := range images {
		key, ok := s.storage.KeyFromURL(url)
		if !ok {
			continue
		}
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn("delete item image", "key", key, "error", err)
		}
	}
}

// RemoveItemImage drops one image from a saved item. The stored object is
// kept.
func (s *Service) RemoveItemImage(ctx context.Context, id int64, index int) (*model.Item, error) {
	done, ok := s.inflight.Begin(KindItem, id)
	if !ok {
		return nil, ErrBusy
	}
	defer done()

	it, err := s.items.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if it == nil {
		return nil, ErrNotFound
	}
	if index < 0 || index >= len(it.Images) {
		return it, nil
	}

	images := make([]string, 0, len(it.Images)-1)
	images = append(images, it.Images[:index]...)
	images = append(images, it.Images[index+1:]...)

	updated, err := s.items.UpdateImages(id, images)
	if err != nil {
		return nil, fmt.Errorf("update item images: %w", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	s.broadcast(websocket.EntityItem, websocket.ActionUpdated, id, nil)
	return updated, nil
}

// CreateItem validates and inserts a listing. FieldErrors are returned as
// the error when the form is invalid.
func (s *Service) CreateItem(ctx context.Context, form ItemForm) (*model.Item, error) {
	n, err := form.Parse()
	if err != nil {
		return nil, err
	}
	it, err := s.items.Create(n)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.logger.Info("item listed", "id", it.ID, "brand", it.Brand, "model", it.Model, "images", len(it.Images))
	s.broadcast(websocket.EntityItem, websocket.ActionCreated, it.ID, nil)
	return it, nil
}

// DraftDescription returns a drafted description, or the form's current one
// if drafting is unavailable or fails.
func (s *Service) DraftDescription(ctx context.Context, form ItemForm) (string, bool) {
	if s.drafter == nil {
		return form.Description, false
	}
	text, ok := s.drafter.Draft(ctx, form.DraftFields())
	if !ok {
		return form.Description, false
	}
	return text, true
}
