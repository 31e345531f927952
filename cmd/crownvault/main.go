package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dukerupert/crownvault/internal/auth"
	"github.com/dukerupert/crownvault/internal/backend"
	"github.com/dukerupert/crownvault/internal/backup"
	"github.com/dukerupert/crownvault/internal/config"
	"github.com/dukerupert/crownvault/internal/database"
	"github.com/dukerupert/crownvault/internal/describe"
	"github.com/dukerupert/crownvault/internal/email"
	"github.com/dukerupert/crownvault/internal/handler"
	"github.com/dukerupert/crownvault/internal/logging"
	"github.com/dukerupert/crownvault/internal/server"
	"github.com/dukerupert/crownvault/internal/storage"
	"github.com/dukerupert/crownvault/web"
)

const cleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st, err := newStorage(cfg, logger)
	if err != nil {
		logger.Error("failed to set up storage", "error", err)
		os.Exit(1)
	}

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.EmailFrom, cfg.SiteName)
	if !emailClient.Configured() {
		logger.Warn("postmark not configured, sign-in links will be logged instead of emailed")
	}

	client := backend.New(db, emailClient, st, cfg.LinkMode, logger)

	gate, err := auth.NewAdminGate(cfg.AdminPassword, cfg.AdminPasswordHash, cfg.AdminJWTSecret, cfg.AdminTokenTTL)
	if err != nil {
		logger.Error("failed to set up admin gate", "error", err)
		os.Exit(1)
	}

	describer := describe.NewService(describe.Config{
		APIKey:  cfg.AnthropicAPIKey,
		Model:   cfg.AnthropicModel,
		BaseURL: cfg.AnthropicURL,
	}, logger.With("component", "describe"))
	if !describer.Configured() {
		logger.Warn("anthropic not configured, description drafting disabled")
	}

	renderer, err := handler.NewRenderer(web.TemplatesFS(), logger.With("component", "render"))
	if err != nil {
		logger.Error("failed to parse templates", "error", err)
		os.Exit(1)
	}

	backups := backup.NewRunner(db, st, backup.Config{
		Passphrase: cfg.BackupPassphrase,
		Interval:   cfg.BackupInterval,
	}, logger.With("component", "backup"))
	if !backups.Enabled() {
		logger.Warn("backup passphrase not set, database backups disabled")
	}

	srv := server.New(server.Options{
		Client:      client,
		AdminGate:   gate,
		Generator:   describer,
		Drafter:     describer,
		Renderer:    renderer,
		Backup:      backups,
		Static:      web.StaticFS(),
		CallbackURL: cfg.CallbackURL(),
		Secure:      strings.HasPrefix(cfg.BaseURL, "https://"),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runCleanup(ctx, client, srv, logger.With("component", "cleanup"))
	go backups.Start(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("crown vault running", "addr", cfg.Addr(), "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func newStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Configured() {
		logger.Info("using object storage", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
		return storage.NewS3(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		}), nil
	}
	logger.Info("object storage not configured, using local disk", "dir", cfg.UploadDir)
	return storage.NewDisk(cfg.UploadDir, cfg.BaseURL+"/uploads")
}

// runCleanup prunes expired auth rows and stale rate limiter entries.
func runCleanup(ctx context.Context, client *backend.Client, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Cleanup(ctx); err != nil {
				logger.Error("auth cleanup", "error", err)
			}
			if n := srv.RateLimiter().Cleanup(); n > 0 {
				logger.Debug("rate limiter cleanup", "removed", n)
			}
		}
	}
}
