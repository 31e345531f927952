// Package backup writes encrypted snapshots of the SQLite database to the
// same object storage that holds listing images.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dukerupert/crownvault/internal/storage"
)

const KeyPrefix = "backups/"

var ErrInProgress = errors.New("a backup is already running")

type Config struct {
	Passphrase string
	Interval   time.Duration
}

// Runner takes snapshots on demand and on a fixed interval.
type Runner struct {
	db      *sql.DB
	storage storage.Storage
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	running sync.Mutex
	mu      sync.RWMutex
	last    *time.Time
	lastErr string
}

func NewRunner(db *sql.DB, st storage.Storage, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{db: db, storage: st, cfg: cfg, logger: logger, now: time.Now}
}

// Enabled reports whether a passphrase is set. Snapshots are never stored
// unencrypted.
func (r *Runner) Enabled() bool {
	return r.cfg.Passphrase != ""
}

// Status is the outcome of the most recent run.
type Status struct {
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{LastBackup: r.last, Error: r.lastErr}
}

// Start runs a snapshot every interval until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	if !r.Enabled() || r.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunNow(ctx); err != nil && !errors.Is(err, ErrInProgress) {
				r.logger.Error("scheduled backup", "error", err)
			}
		}
	}
}

// RunNow snapshots the database, encrypts it and uploads it. It returns the
// object key.
func (r *Runner) RunNow(ctx context.Context) (string, error) {
	if !r.Enabled() {
		return "", fmt.Errorf("backup not configured: passphrase missing")
	}
	if !r.running.TryLock() {
		return "", ErrInProgress
	}
	defer r.running.Unlock()

	key, err := r.run(ctx)

	r.mu.Lock()
	if err != nil {
		r.lastErr = err.Error()
	} else {
		now := r.now().UTC()
		r.last = &now
		r.lastErr = ""
	}
	r.mu.Unlock()

	return key, err
}

func (r *Runner) run(ctx context.Context) (string, error) {
	dir, err := os.MkdirTemp("", "crownvault-backup-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := r.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return "", fmt.Errorf("vacuum into snapshot: %w", err)
	}

	plain, err := os.ReadFile(snapshot)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Seal(plain, r.cfg.Passphrase)
	if err != nil {
		return "", fmt.Errorf("encrypt snapshot: %w", err)
	}

	key := KeyPrefix + "crownvault-" + r.now().UTC().Format("2006-01-02T150405Z") + ".db.enc"
	if err := r.storage.Upload(ctx, key, "application/octet-stream", bytes.NewReader(sealed)); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	r.logger.Info("backup uploaded", "key", key, "bytes", len(sealed))
	return key, nil
}
