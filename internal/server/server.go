package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/crownvault/internal/access"
	"github.com/dukerupert/crownvault/internal/auth"
	"github.com/dukerupert/crownvault/internal/backup"
	"github.com/dukerupert/crownvault/internal/backend"
	"github.com/dukerupert/crownvault/internal/catalog"
	"github.com/dukerupert/crownvault/internal/handler"
	"github.com/dukerupert/crownvault/internal/middleware"
	"github.com/dukerupert/crownvault/internal/review"
	"github.com/dukerupert/crownvault/internal/signin"
	"github.com/dukerupert/crownvault/internal/storage"
	"github.com/dukerupert/crownvault/internal/upload"
	ws "github.com/dukerupert/crownvault/internal/websocket"
)

// Per-IP budgets for the public forms.
const (
	accessLimit     = 10
	loginLimit      = 10
	adminLoginLimit = 5
	limitWindow     = time.Minute
)

// Options are the pieces the server wires together.
type Options struct {
	Client      *backend.Client
	AdminGate   *auth.AdminGate
	Generator   handler.DescriptionGenerator
	Drafter     backend.Drafter
	Renderer    *handler.Renderer
	Backup      *backup.Runner
	Static      fs.FS
	CallbackURL string
	Secure      bool
}

type Server struct {
	hub         *ws.Hub
	client      *backend.Client
	adminGate   *auth.AdminGate
	accessH     *handler.AccessHandler
	signinH     *handler.SignInHandler
	marketH     *handler.MarketplaceHandler
	adminH      *handler.AdminHandler
	uploadH     *handler.UploadHandler
	backup      *backup.Runner
	rateLimiter *middleware.RateLimiter
	static      fs.FS
	uploadDir   string
	logger      *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	client := opts.Client
	cookies := handler.Cookies{Secure: opts.Secure}

	accessSvc := access.NewService(client.Requests, hub, logger.With("component", "access"))
	signinSvc := signin.NewService(client.Requests, client.Auth, opts.CallbackURL, logger.With("component", "signin"))
	catalogSvc := catalog.NewService(client.Items, client.Auth, logger.With("component", "catalog"))
	reviewSvc := review.NewService(client.Requests, client.Items, client.Storage, opts.Drafter, hub, logger.With("component", "review"))
	uploader := upload.NewUploader(client.Storage, logger.With("component", "upload"))

	s := &Server{
		hub:         hub,
		client:      client,
		adminGate:   opts.AdminGate,
		accessH:     handler.NewAccessHandler(accessSvc, opts.Renderer, logger.With("component", "access_handler")),
		signinH:     handler.NewSignInHandler(signinSvc, client.Auth, catalogSvc, cookies, opts.Renderer, logger.With("component", "signin_handler")),
		marketH:     handler.NewMarketplaceHandler(catalogSvc, opts.Renderer, logger.With("component", "marketplace_handler")),
		adminH:      handler.NewAdminHandler(reviewSvc, opts.AdminGate, opts.Generator, cookies, opts.Renderer, logger.With("component", "admin_handler")),
		uploadH:     handler.NewUploadHandler(uploader, opts.Renderer, logger.With("component", "upload_handler")),
		backup:      opts.Backup,
		rateLimiter: middleware.NewRateLimiter(),
		static:      opts.Static,
		logger:      logger,
	}
	if disk, ok := client.Storage.(*storage.Disk); ok {
		s.uploadDir = disk.Dir()
	}
	return s
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public pages
	mux.HandleFunc("GET /", s.accessH.Index)
	mux.Handle("POST /request-access", s.limited("access", accessLimit, s.accessH.RequestAccess))
	mux.HandleFunc("GET /login", s.signinH.LoginPage)
	mux.Handle("POST /login", s.limited("login", loginLimit, s.signinH.Login))
	mux.HandleFunc("GET /auth/callback", s.signinH.Callback)
	mux.HandleFunc("POST /logout", s.signinH.Logout)
	mux.HandleFunc("GET /marketplace", s.marketH.Marketplace)

	// Admin gate
	mux.HandleFunc("GET /admin", s.adminH.Page)
	mux.Handle("POST /admin/login", s.limited("admin", adminLoginLimit, s.adminH.Login))
	mux.HandleFunc("POST /admin/logout", s.adminH.Logout)

	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)
	requireAdmin := middleware.RequireAdmin(s.adminGate)
	mux.Handle("GET /admin/", requireAdmin(adminMux))
	mux.Handle("POST /admin/", requireAdmin(adminMux))
	mux.Handle("GET /api/", requireAdmin(adminMux))
	mux.Handle("POST /api/", requireAdmin(adminMux))

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
	mux.HandleFunc("GET /health", s.healthHandler)
	if s.static != nil {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(s.static)))
	}
	if s.uploadDir != "" {
		// Only listing images are public; backups share the directory.
		mux.Handle("GET /uploads/watches/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	}

	identify := middleware.Identify(s.client.Auth, s.adminGate)
	return middleware.RequestLogger(s.logger.With("component", "http"), "/static/", "/uploads/", "/health")(identify(mux))
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/requests", s.adminH.RequestsPanel)
	mux.HandleFunc("POST /admin/requests/{id}/approve", s.adminH.Approve)
	mux.HandleFunc("POST /admin/requests/{id}/deny", s.adminH.Deny)

	mux.HandleFunc("GET /admin/items", s.adminH.ItemsPanel)
	mux.HandleFunc("POST /admin/items", s.adminH.CreateItem)
	mux.HandleFunc("POST /admin/items/draft", s.adminH.DraftDescription)
	mux.HandleFunc("POST /admin/items/{id}/status", s.adminH.ItemStatus)
	mux.HandleFunc("POST /admin/items/{id}/delete", s.adminH.DeleteItem)
	mux.HandleFunc("POST /admin/items/{id}/images/remove", s.adminH.RemoveItemImage)

	mux.HandleFunc("POST /admin/uploads", s.uploadH.Upload)
	mux.HandleFunc("POST /admin/uploads/remove", s.uploadH.Remove)

	mux.HandleFunc("POST /api/generate-description", s.adminH.GenerateDescription)

	if s.backup != nil && s.backup.Enabled() {
		mux.HandleFunc("GET /api/backup", s.backupStatus)
		mux.HandleFunc("POST /api/backup", s.backupNow)
	}
}

func (s *Server) backupStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.backup.Status())
}

func (s *Server) backupNow(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	key, err := s.backup.RunNow(r.Context())
	if errors.Is(err, backup.ErrInProgress) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("manual backup", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Backup failed"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"key": key})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) limited(scope string, limit int, h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.ByIP(scope), limit, limitWindow)(h)
}
