package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/dukerupert/crownvault/internal/backend"
	"github.com/dukerupert/crownvault/internal/model"
)

// Gate is the member check in front of the catalog.
type Gate string

const (
	GateUnknown         Gate = "unknown"
	GateUnauthenticated Gate = "unauthenticated"
	GateAuthenticated   Gate = "authenticated"
)

const FilterAll = "all"

// Filters are the tabs above the grid, in display order.
var Filters = []string{FilterAll, model.ItemAvailable, model.ItemOnHold, model.ItemSold}

// ParseFilter maps a query value to a filter; anything unknown is all.
func ParseFilter(s string) string {
	if model.ValidItemStatus(s) {
		return s
	}
	return FilterAll
}

// StatusLabel is the badge text for an item status.
func StatusLabel(status string) string {
	switch status {
	case model.ItemAvailable:
		return "Available"
	case model.ItemOnHold:
		return "On Hold"
	case model.ItemSold:
		return "Sold"
	case FilterAll:
		return "All"
	default:
		return status
	}
}

// FormatPrice renders a price as whole US dollars, e.g. "$12,500".
func FormatPrice(price float64) string {
	return "$" + humanize.Comma(int64(math.Round(price)))
}

// Card is one watch in the grid.
type Card struct {
	ID           int64
	Brand        string
	Model        string
	Reference    string
	Year         string
	Description  string
	Cover        string
	ImageCount   int
	Status       string
	StatusLabel  string
	Condition    string
	Location     string
	ShippingDays int
	Price        string
}

func NewCard(it model.Item) Card {
	c := Card{
		ID:           it.ID,
		Brand:        it.Brand,
		Model:        it.Model,
		Description:  it.Description,
		Cover:        it.Cover(),
		ImageCount:   len(it.Images),
		Status:       it.Status,
		StatusLabel:  StatusLabel(it.Status),
		Condition:    it.Condition,
		Location:     it.Location,
		ShippingDays: it.ShippingDays,
		Price:        FormatPrice(it.Price),
	}
	if it.ReferenceNumber != nil {
		c.Reference = *it.ReferenceNumber
	}
	if it.Year != nil {
		c.Year = strconv.Itoa(*it.Year)
	}
	return c
}

// Page is the catalog view for one request.
type Page struct {
	Gate   Gate
	Email  string
	Filter string
	Cards  []Card
}

type Service struct {
	items  backend.Items
	auth   backend.Auth
	logger *slog.Logger
}

func NewService(items backend.Items, a backend.Auth, logger *slog.Logger) *Service {
	return &Service{items: items, auth: a, logger: logger}
}

// Resolve settles the gate for a session token. Lookup failures count as
// signed out.
func (s *Service) Resolve(ctx context.Context, token string) (*model.Session, Gate) {
	if token == "" {
		return nil, GateUnauthenticated
	}
	sess, err := s.auth.Session(ctx, token)
	if err != nil {
		s.logger.Error("session lookup", "error", err)
		return nil, GateUnauthenticated
	}
	if sess == nil {
		return nil, GateUnauthenticated
	}
	return sess, GateAuthenticated
}

// Browse resolves the gate and, only for members, loads the grid.
func (s *Service) Browse(ctx context.Context, token, filter string) (Page, error) {
	sess, gate := s.Resolve(ctx, token)
	page := Page{Gate: gate, Filter: ParseFilter(filter)}
	if gate != GateAuthenticated {
		return page, nil
	}
	page.Email = sess.Email

	cards, err := s.Cards(page.Filter)
	if err != nil {
		return page, err
	}
	page.Cards = cards
	return page, nil
}

// Cards lists items newest first for a filter.
func (s *Service) Cards(filter string) ([]Card, error) {
	status := ParseFilter(filter)
	if status == FilterAll {
		status = ""
	}
	items, err := s.items.List(status)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	cards := make([]Card, 0, len(items))
	for _, it := range items {
		cards = append(cards, NewCard(it))
	}
	return cards, nil
}

// SignOut ends the member's session. The caller renders the signed-out view
// regardless of the result.
func (s *Service) SignOut(ctx context.Context, token string) {
	if err := s.auth.SignOut(ctx, token); err != nil {
		s.logger.Error("sign out", "error", err)
	}
}
