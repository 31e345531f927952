package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/crownvault/internal/catalog"
)

type MarketplaceHandler struct {
	catalog *catalog.Service
	render  *Renderer
	logger  *slog.Logger
}

func NewMarketplaceHandler(cat *catalog.Service, render *Renderer, logger *slog.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{catalog: cat, render: render, logger: logger}
}

type marketplaceData struct {
	Title   string
	Page    catalog.Page
	Filters []string
	Error   string
}

// Marketplace renders the members-only interstitial or the grid.
func (h *MarketplaceHandler) Marketplace(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.Browse(r.Context(), sessionToken(r), r.URL.Query().Get("status"))
	data := marketplaceData{Title: "Marketplace · Crown Vault", Page: page, Filters: catalog.Filters}
	status := http.StatusOK
	if err != nil {
		h.logger.Error("browse catalog", "error", err)
		data.Error = "Could not load watches. Please refresh."
		status = http.StatusInternalServerError
	}

	if isHTMX(r) {
		if page.Gate != catalog.GateAuthenticated {
			redirect(w, r, "/marketplace")
			return
		}
		h.render.Partial(w, swapStatus(r, status), "catalog-grid", data)
		return
	}
	h.render.Page(w, status, "marketplace.html", data)
}
