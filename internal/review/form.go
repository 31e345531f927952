package review

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/dukerupert/crownvault/internal/describe"
	"github.com/dukerupert/crownvault/internal/model"
)

// ItemForm is the upload panel as submitted. Values are kept raw so a
// failed submission can be rendered back unchanged.
type ItemForm struct {
	Brand        string
	Model        string
	Reference    string
	Year         string
	DealerNotes  string
	Price        string
	Condition    string
	Location     string
	ShippingDays string
	Description  string
	Images       []string
}

// FormFromValues reads an ItemForm from posted form values. Images arrive
// as repeated "images" fields in order.
func FormFromValues(v url.Values) ItemForm {
	f := ItemForm{
		Brand:        strings.TrimSpace(v.Get("brand")),
		Model:        strings.TrimSpace(v.Get("model")),
		Reference:    strings.TrimSpace(v.Get("reference_number")),
		Year:         strings.TrimSpace(v.Get("year")),
		DealerNotes:  strings.TrimSpace(v.Get("dealer_notes")),
		Price:        strings.TrimSpace(v.Get("price")),
		Condition:    strings.TrimSpace(v.Get("condition")),
		Location:     strings.TrimSpace(v.Get("location")),
		ShippingDays: strings.TrimSpace(v.Get("shipping_days")),
		Description:  strings.TrimSpace(v.Get("description")),
	}
	for _, img := range v["images"] {
		if img = strings.TrimSpace(img); img != "" {
			f.Images = append(f.Images, img)
		}
	}
	return f
}

// EmptyForm is a fresh upload panel.
func EmptyForm() ItemForm {
	return ItemForm{
		Condition:    model.Conditions[1],
		ShippingDays: strconv.Itoa(model.DefaultShippingDays),
	}
}

// DraftFields are the inputs for description drafting.
func (f ItemForm) DraftFields() describe.Fields {
	return describe.Fields{
		Brand:           f.Brand,
		Model:           f.Model,
		ReferenceNumber: f.Reference,
		Year:            f.Year,
		Condition:       f.Condition,
		DealerNotes:     f.DealerNotes,
	}
}

// FieldErrors maps form field names to messages.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	return "invalid item form"
}

// Parse validates the form. Year is optional and ignored when unparsable;
// shipping days fall back to the default when missing or not positive.
func (f ItemForm) Parse() (model.NewItem, error) {
	errs := FieldErrors{}

	if f.Brand == "" {
		errs["brand"] = "Brand is required."
	}
	if f.Model == "" {
		errs["model"] = "Model is required."
	}

	price, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimPrefix(f.Price, "$"), ",", ""), 64)
	if err != nil || !validPrice(price) {
		errs["price"] = "Price must be a number greater than zero."
	}
	if !model.ValidCondition(f.Condition) {
		errs["condition"] = "Choose a condition."
	}
	if f.Location == "" {
		errs["location"] = "Location is required."
	}
	if len(errs) > 0 {
		return model.NewItem{}, errs
	}

	n := model.NewItem{
		Brand:        f.Brand,
		Model:        f.Model,
		Description:  f.Description,
		Price:        price,
		Condition:    f.Condition,
		Location:     f.Location,
		ShippingDays: model.DefaultShippingDays,
		Images:       append([]string(nil), f.Images...),
	}
	if f.Reference != "" {
		ref := f.Reference
		n.ReferenceNumber = &ref
	}
	if year, err := strconv.Atoi(f.Year); err == nil {
		n.Year = &year
	}
	if days, err := strconv.Atoi(f.ShippingDays); err == nil && days > 0 {
		n.ShippingDays = days
	}
	return n, nil
}

// maxPrice keeps prices well inside the range FormatPrice can round.
const maxPrice = 1e12

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0 && p <= maxPrice
}
