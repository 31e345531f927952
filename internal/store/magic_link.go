package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dukerupert/crownvault/internal/model"
)

// MagicLinkTTL is how long an emailed sign-in link stays valid.
const MagicLinkTTL = time.Hour

type MagicLinkStore struct {
	db *sql.DB
}

func NewMagicLinkStore(db *sql.DB) *MagicLinkStore {
	return &MagicLinkStore{db: db}
}

func scanMagicLink(scanner interface{ Scan(...any) error }) (*model.MagicLink, error) {
	var ml model.MagicLink
	var usedAt sql.NullTime

	err := scanner.Scan(&ml.ID, &ml.TokenHash, &ml.Code, &ml.Email, &ml.ExpiresAt, &usedAt, &ml.CreatedAt)
	if err != nil {
		return nil, err
	}

	if usedAt.Valid {
		ml.UsedAt = &usedAt.Time
	}
	return &ml, nil
}

const magicLinkCols = `id, token_hash, code, email, expires_at, used_at, created_at`

// HashToken returns the stored form of an emailed link token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create issues a new magic link for email and returns it along with the raw
// token, which is never stored. Previous pending links for the email are
// invalidated first.
func (s *MagicLinkStore) Create(email string) (*model.MagicLink, string, error) {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE magic_links SET used_at = ? WHERE email = ? AND used_at IS NULL AND expires_at > ?`,
		dbTime(now), email, dbTime(now),
	)
	if err != nil {
		return nil, "", fmt.Errorf("invalidate previous links: %w", err)
	}

	token, err := randomHex(32)
	if err != nil {
		return nil, "", err
	}
	code, err := randomHex(16)
	if err != nil {
		return nil, "", err
	}

	result, err := s.db.Exec(
		`INSERT INTO magic_links (token_hash, code, email, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		HashToken(token), code, email, dbTime(now.Add(MagicLinkTTL)), dbTime(now),
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert magic link: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, "", fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+magicLinkCols+` FROM magic_links WHERE id = ?`, id)
	ml, err := scanMagicLink(row)
	if err != nil {
		return nil, "", fmt.Errorf("get magic link: %w", err)
	}
	return ml, token, nil
}

// GetByTokenHash returns the link matching the hash regardless of whether it
// is used or expired, or nil if no such link was ever issued.
func (s *MagicLinkStore) GetByTokenHash(tokenHash string) (*model.MagicLink, error) {
	return s.getOne(`token_hash = ?`, tokenHash)
}

// GetByCode returns the link matching the exchange code, or nil.
func (s *MagicLinkStore) GetByCode(code string) (*model.MagicLink, error) {
	return s.getOne(`code = ?`, code)
}

func (s *MagicLinkStore) getOne(where string, arg any) (*model.MagicLink, error) {
	row := s.db.QueryRow(`SELECT `+magicLinkCols+` FROM magic_links WHERE `+where, arg)
	ml, err := scanMagicLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get magic link: %w", err)
	}
	return ml, nil
}

// MarkUsed consumes a link. It reports false if the link was already used,
// so two concurrent verifications cannot both succeed.
func (s *MagicLinkStore) MarkUsed(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE magic_links SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		dbTime(time.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark magic link used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *MagicLinkStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM magic_links WHERE expires_at <= ?`, dbTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("delete expired magic links: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
