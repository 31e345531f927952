package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/crownvault/internal/auth"
	"github.com/dukerupert/crownvault/internal/describe"
	"github.com/dukerupert/crownvault/internal/model"
	"github.com/dukerupert/crownvault/internal/review"
)

const (
	msgBadPassword = "Incorrect password."
	msgBusy        = "Another change to this row is still in progress."
	msgReviewed    = "This request has already been reviewed."
	msgActionError = "That didn't work. Please try again."
	msgSaveError   = "Could not save the listing. Please try again."
	msgPublished   = "Listing published."
)

// AdminGate is the password check and token issuer behind /admin.
type AdminGate interface {
	CheckPassword(password string) bool
	IssueToken() (string, error)
	ValidateToken(token string) error
	TTL() time.Duration
}

// DescriptionGenerator backs the JSON drafting endpoint.
type DescriptionGenerator interface {
	Generate(ctx context.Context, f describe.Fields) (string, error)
}

type AdminHandler struct {
	review    *review.Service
	gate      AdminGate
	generator DescriptionGenerator
	cookies   Cookies
	render    *Renderer
	logger    *slog.Logger
}

func NewAdminHandler(
	svc *review.Service,
	gate AdminGate,
	generator DescriptionGenerator,
	cookies Cookies,
	render *Renderer,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		review:    svc,
		gate:      gate,
		generator: generator,
		cookies:   cookies,
		render:    render,
		logger:    logger,
	}
}

// requestsPanel is the access request list for one tab.
type requestsPanel struct {
	Tab      string
	Tabs     []string
	Counts   map[string]int
	Requests []requestRow
	Error    string
}

type requestRow struct {
	Request model.AccessRequest
	Error   string
}

type itemsPanel struct {
	Items []itemRow
	Error string
}

type itemRow struct {
	Item  model.Item
	Error string
}

// itemFormData is the upload panel.
type itemFormData struct {
	Form   review.ItemForm
	Errors review.FieldErrors
	Error  string
	Flash  string
	Images imageList
}

type imageList struct {
	Images []string
	Error  string
}

func newItemFormData(form review.ItemForm) itemFormData {
	return itemFormData{Form: form, Images: imageList{Images: form.Images}}
}

type adminData struct {
	Title    string
	Requests requestsPanel
	Items    itemsPanel
	Upload   itemFormData
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// Page renders the password gate or, for admins, the three panels.
func (h *AdminHandler) Page(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r.Context()) {
		h.render.Page(w, http.StatusOK, "admin_login.html", map[string]any{"Title": "Admin · Crown Vault"})
		return
	}

	data := adminData{
		Title:    "Admin · Crown Vault",
		Requests: h.requestsPanel(review.ParseTab(r.URL.Query().Get("tab"))),
		Items:    h.itemsPanel(),
		Upload:   newItemFormData(review.EmptyForm()),
	}
	h.render.Page(w, http.StatusOK, "admin.html", data)
}

func (h *AdminHandler) requestsPanel(tab string) requestsPanel {
	p := requestsPanel{Tab: tab, Tabs: []string{model.AccessPending, model.AccessApproved, model.AccessDenied}}

	counts, err := h.review.RequestCounts()
	if err != nil {
		h.logger.Error("count access requests", "error", err)
	}
	p.Counts = counts

	reqs, err := h.review.ListRequests(tab)
	if err != nil {
		h.logger.Error("list access requests", "tab", tab, "error", err)
		p.Error = "Could not load requests."
		return p
	}
	for _, req := range reqs {
		p.Requests = append(p.Requests, requestRow{Request: req})
	}
	return p
}

func (h *AdminHandler) itemsPanel() itemsPanel {
	var p itemsPanel
	items, err := h.review.ListItems()
	if err != nil {
		h.logger.Error("list items", "error", err)
		p.Error = "Could not load items."
		return p
	}
	for _, it := range items {
		p.Items = append(p.Items, itemRow{Item: it})
	}
	return p
}

// Login checks the shared password and issues the admin cookie.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.gate.CheckPassword(r.FormValue("password")) {
		h.logger.Warn("admin login failed", "remote", r.RemoteAddr)
		h.render.Page(w, http.StatusUnauthorized, "admin_login.html", map[string]any{
			"Title": "Admin · Crown Vault",
			"Error": msgBadPassword,
		})
		return
	}

	token, err := h.gate.IssueToken()
	if err != nil {
		h.logger.Error("issue admin token", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	h.cookies.SetAdmin(w, token, h.gate.TTL())
	h.logger.Info("admin signed in")
	redirect(w, r, "/admin")
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearAdmin(w)
	redirect(w, r, "/admin")
}

// RequestsPanel re-renders the requests panel for a tab.
func (h *AdminHandler) RequestsPanel(w http.ResponseWriter, r *http.Request) {
	h.render.Partial(w, http.StatusOK, "requests-panel", h.requestsPanel(review.ParseTab(r.URL.Query().Get("tab"))))
}

// ItemsPanel re-renders the items panel.
func (h *AdminHandler) ItemsPanel(w http.ResponseWriter, r *http.Request) {
	h.render.Partial(w, http.StatusOK, "items-panel", h.itemsPanel())
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, model.AccessApproved)
}

func (h *AdminHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, model.AccessDenied)
}

// decide removes the row from the pending tab on success and re-renders it
// with an inline error otherwise.
func (h *AdminHandler) decide(w http.ResponseWriter, r *http.Request, status string) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	_, err := h.review.Decide(r.Context(), id, status)
	if err == nil {
		w.Header().Set("HX-Trigger", "requests-changed")
		w.WriteHeader(http.StatusOK)
		return
	}
	if errors.Is(err, review.ErrNotFound) {
		w.WriteHeader(http.StatusOK)
		return
	}

	code, msg := actionFailure(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("review access request", "id", id, "status", status, "error", err)
	}

	req, gerr := h.review.GetRequest(id)
	if gerr != nil {
		http.Error(w, msg, code)
		return
	}
	h.render.Partial(w, code, "request-row", requestRow{Request: *req, Error: msg})
}

func actionFailure(err error) (int, string) {
	switch {
	case errors.Is(err, review.ErrBusy):
		return http.StatusConflict, msgBusy
	case errors.Is(err, review.ErrAlreadyReviewed):
		return http.StatusConflict, msgReviewed
	case errors.Is(err, review.ErrInvalidStatus):
		return http.StatusUnprocessableEntity, msgActionError
	default:
		return http.StatusInternalServerError, msgActionError
	}
}

func (h *AdminHandler) rowFailure(w http.ResponseWriter, id int64, err error, action string) {
	code, msg := actionFailure(err)
	if code == http.StatusInternalServerError {
		h.logger.Error(action, "id", id, "error", err)
	}
	it, gerr := h.review.GetItem(id)
	if gerr != nil {
		http.Error(w, msg, code)
		return
	}
	h.render.Partial(w, code, "item-row", itemRow{Item: *it, Error: msg})
}

func (h *AdminHandler) ItemStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	it, err := h.review.SetItemStatus(r.Context(), id, r.FormValue("status"))
	if errors.Is(err, review.ErrNotFound) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		h.rowFailure(w, id, err, "update item status")
		return
	}
	h.render.Partial(w, http.StatusOK, "item-row", itemRow{Item: *it})
}

func (h *AdminHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	err := h.review.DeleteItem(r.Context(), id)
	if err == nil || errors.Is(err, review.ErrNotFound) {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.rowFailure(w, id, err, "delete item")
}

func (h *AdminHandler) RemoveItemImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}

	it, err := h.review.RemoveItemImage(r.Context(), id, index)
	if errors.Is(err, review.ErrNotFound) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		h.rowFailure(w, id, err, "remove item image")
		return
	}
	h.render.Partial(w, http.StatusOK, "item-row", itemRow{Item: *it})
}

// CreateItem publishes the upload form. On success the form comes back
// empty with a banner; on failure it comes back as submitted with the error.
func (h *AdminHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := review.FormFromValues(r.PostForm)

	_, err := h.review.CreateItem(r.Context(), form)
	if err == nil {
		data := newItemFormData(review.EmptyForm())
		data.Flash = msgPublished
		w.Header().Set("HX-Trigger", "items-changed")
		h.render.Partial(w, http.StatusOK, "item-form", data)
		return
	}

	data := newItemFormData(form)
	var fe review.FieldErrors
	if errors.As(err, &fe) {
		data.Errors = fe
		h.render.Partial(w, swapStatus(r, http.StatusUnprocessableEntity), "item-form", data)
		return
	}
	h.logger.Error("create item", "error", err)
	data.Error = msgSaveError
	h.render.Partial(w, swapStatus(r, http.StatusInternalServerError), "item-form", data)
}

// DraftDescription fills the description field. Failures leave it as it
// was.
func (h *AdminHandler) DraftDescription(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := review.FormFromValues(r.PostForm)
	form.Description, _ = h.review.DraftDescription(r.Context(), form)
	h.render.Partial(w, http.StatusOK, "description-field", form)
}

// GenerateDescription is the JSON drafting endpoint.
func (h *AdminHandler) GenerateDescription(w http.ResponseWriter, r *http.Request) {
	var f describe.Fields
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	text, err := h.generator.Generate(r.Context(), f)
	if errors.Is(err, describe.ErrNotConfigured) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "AI not configured"})
		return
	}
	if err != nil {
		h.logger.Error("generate description", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to generate description"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": text})
}
