package model

import "time"

// Item statuses.
const (
	ItemAvailable = "available"
	ItemOnHold    = "on_hold"
	ItemSold      = "sold"
)

// ItemStatuses lists item statuses in display order.
var ItemStatuses = []string{ItemAvailable, ItemOnHold, ItemSold}

// Conditions lists the accepted item conditions, best first.
var Conditions = []string{"New/Unworn", "Excellent", "Very Good", "Good", "Fair"}

// DefaultShippingDays is used when the shipping lead time cannot be parsed.
const DefaultShippingDays = 3

func ValidItemStatus(s string) bool {
	for _, v := range ItemStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func ValidCondition(c string) bool {
	for _, v := range Conditions {
		if v == c {
			return true
		}
	}
	return false
}

// Item is a watch listed in the catalog. Images are ordered; the first one is
// the cover.
type Item struct {
	ID              int64     `json:"id"`
	Brand           string    `json:"brand"`
	Model           string    `json:"model"`
	ReferenceNumber *string   `json:"reference_number"`
	Year            *int      `json:"year"`
	Description     string    `json:"description"`
	Price           float64   `json:"price"`
	Condition       string    `json:"condition"`
	Status          string    `json:"status"`
	Location        string    `json:"location"`
	ShippingDays    int       `json:"shipping_days"`
	Images          []string  `json:"images"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Cover returns the cover image URL, or "" if the item has no images.
func (i *Item) Cover() string {
	if len(i.Images) == 0 {
		return ""
	}
	return i.Images[0]
}

// NewItem holds the fields needed to insert an item.
type NewItem struct {
	Brand           string
	Model           string
	ReferenceNumber *string
	Year            *int
	Description     string
	Price           float64
	Condition       string
	Location        string
	ShippingDays    int
	Images          []string
}
