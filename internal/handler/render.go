package handler

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/crownvault/internal/catalog"
	"github.com/dukerupert/crownvault/internal/model"
)

var pages = []string{
	"index.html",
	"login.html",
	"marketplace.html",
	"admin_login.html",
	"admin.html",
}

// FuncMap returns the template function map.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"statusLabel": catalog.StatusLabel,
		"price":       catalog.FormatPrice,
		"statusClass": func(status string) string {
			return "status-" + strings.ReplaceAll(status, "_", "-")
		},
		"itemStatuses": func() []string { return model.ItemStatuses },
		"conditions":   func() []string { return model.Conditions },
		"derefStr": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"derefInt": func(n *int) string {
			if n == nil {
				return ""
			}
			return fmt.Sprint(*n)
		},
		"date": func(v any) string {
			switch t := v.(type) {
			case time.Time:
				return t.Format("Jan 2, 2006")
			case *time.Time:
				if t != nil {
					return t.Format("Jan 2, 2006")
				}
			}
			return ""
		},
		"add": func(a, b int) int { return a + b },
	}
}

// Renderer holds one template set per page, each parsed with the layout
// and the shared partials, plus a partials-only set for HTMX fragments.
type Renderer struct {
	pages    map[string]*template.Template
	partials *template.Template
	logger   *slog.Logger
}

// NewRenderer parses every page from tfs.
func NewRenderer(tfs fs.FS, logger *slog.Logger) (*Renderer, error) {
	layout, err := fs.ReadFile(tfs, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("reading layout template: %w", err)
	}
	shared, err := fs.ReadFile(tfs, "partials.html")
	if err != nil {
		return nil, fmt.Errorf("reading partials template: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template), logger: logger}

	r.partials, err = template.New("partials.html").Funcs(FuncMap()).Parse(string(shared))
	if err != nil {
		return nil, fmt.Errorf("parsing partials: %w", err)
	}

	for _, page := range pages {
		body, err := fs.ReadFile(tfs, page)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", page, err)
		}
		tmpl := template.New(page).Funcs(FuncMap())
		for _, src := range [][]byte{layout, shared, body} {
			if tmpl, err = tmpl.Parse(string(src)); err != nil {
				return nil, fmt.Errorf("parsing template %s: %w", page, err)
			}
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// Page renders a full page with status.
func (r *Renderer) Page(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := r.pages[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		r.logger.Error("render page", "template", name, "error", err)
	}
}

// Partial renders a named fragment for an HTMX swap.
func (r *Renderer) Partial(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := r.partials.ExecuteTemplate(w, name, data); err != nil {
		r.logger.Error("render partial", "template", name, "error", err)
		fmt.Fprint(w, `<div class="alert alert-error">Template error</div>`)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
