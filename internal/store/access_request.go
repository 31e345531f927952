package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/crownvault/internal/model"
)

type AccessRequestStore struct {
	db *sql.DB
}

func NewAccessRequestStore(db *sql.DB) *AccessRequestStore {
	return &AccessRequestStore{db: db}
}

func scanAccessRequest(scanner interface{ Scan(...any) error }) (*model.AccessRequest, error) {
	var ar model.AccessRequest
	var reviewedAt sql.NullTime
	var notes sql.NullString

	err := scanner.Scan(&ar.ID, &ar.Email, &ar.Status, &ar.CreatedAt, &reviewedAt, &notes)
	if err != nil {
		return nil, err
	}

	if reviewedAt.Valid {
		ar.ReviewedAt = &reviewedAt.Time
	}
	if notes.Valid {
		ar.Notes = &notes.String
	}
	return &ar, nil
}

const accessRequestCols = `id, email, status, created_at, reviewed_at, notes`

// Create inserts a pending request. The email must already be normalized.
// Returns ErrDuplicate if a request for the email already exists.
func (s *AccessRequestStore) Create(email string) (*model.AccessRequest, error) {
	result, err := s.db.Exec(
		`INSERT INTO access_requests (email, status, created_at) VALUES (?, ?, ?)`,
		email, model.AccessPending, dbTime(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert access request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AccessRequestStore) GetByID(id int64) (*model.AccessRequest, error) {
	row := s.db.QueryRow(`SELECT `+accessRequestCols+` FROM access_requests WHERE id = ?`, id)
	ar, err := scanAccessRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access request: %w", err)
	}
	return ar, nil
}

// GetByEmail returns the request for an exact email match, or nil if none exists.
func (s *AccessRequestStore) GetByEmail(email string) (*model.AccessRequest, error) {
	row := s.db.QueryRow(`SELECT `+accessRequestCols+` FROM access_requests WHERE email = ?`, email)
	ar, err := scanAccessRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access request by email: %w", err)
	}
	return ar, nil
}

// ListByStatus returns requests with the given status, newest first.
func (s *AccessRequestStore) ListByStatus(status string) ([]model.AccessRequest, error) {
	rows, err := s.db.Query(
		`SELECT `+accessRequestCols+` FROM access_requests WHERE status = ? ORDER BY created_at DESC, id DESC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	var requests []model.AccessRequest
	for rows.Next() {
		ar, err := scanAccessRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		requests = append(requests, *ar)
	}
	return requests, rows.Err()
}

// UpdateStatus sets the status and reviewed timestamp in a single update.
// Returns nil if the request does not exist.
func (s *AccessRequestStore) UpdateStatus(id int64, status string) (*model.AccessRequest, error) {
	result, err := s.db.Exec(
		`UPDATE access_requests SET status = ?, reviewed_at = ? WHERE id = ?`,
		status, dbTime(time.Now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update access request status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(id)
}

// CountByStatus returns the number of requests per status.
func (s *AccessRequestStore) CountByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM access_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count access requests: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		model.AccessPending:  0,
		model.AccessApproved: 0,
		model.AccessDenied:   0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
