package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/crownvault/internal/model"
)

type ItemStore struct {
	db *sql.DB
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

func scanItem(scanner interface{ Scan(...any) error }) (*model.Item, error) {
	var it model.Item
	var ref sql.NullString
	var year sql.NullInt64
	var images string

	err := scanner.Scan(
		&it.ID, &it.Brand, &it.Model, &ref, &year, &it.Description, &it.Price,
		&it.Condition, &it.Status, &it.Location, &it.ShippingDays, &images,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ref.Valid {
		it.ReferenceNumber = &ref.String
	}
	if year.Valid {
		y := int(year.Int64)
		it.Year = &y
	}
	if err := json.Unmarshal([]byte(images), &it.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if it.Images == nil {
		it.Images = []string{}
	}
	return &it, nil
}

const itemCols = `id, brand, model, reference_number, year, description, price, condition, status, location, shipping_days, images, created_at, updated_at`

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encode images: %w", err)
	}
	return string(b), nil
}

// Create inserts a new available item.
func (s *ItemStore) Create(n model.NewItem) (*model.Item, error) {
	images, err := encodeImages(n.Images)
	if err != nil {
		return nil, err
	}

	var ref sql.NullString
	if n.ReferenceNumber != nil {
		ref = sql.NullString{String: *n.ReferenceNumber, Valid: true}
	}
	var year sql.NullInt64
	if n.Year != nil {
		year = sql.NullInt64{Int64: int64(*n.Year), Valid: true}
	}
	now := dbTime(time.Now())

	result, err := s.db.Exec(
		`INSERT INTO items (brand, model, reference_number, year, description, price, condition, status, location, shipping_days, images, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Brand, n.Model, ref, year, n.Description, n.Price, n.Condition,
		model.ItemAvailable, n.Location, n.ShippingDays, images, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ItemStore) GetByID(id int64) (*model.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemCols+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// List returns items newest first. An empty status returns every item.
func (s *ItemStore) List(status string) ([]model.Item, error) {
	query := `SELECT ` + itemCols + ` FROM items`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// UpdateStatus changes an item's status. Returns nil if the item does not exist.
func (s *ItemStore) UpdateStatus(id int64, status string) (*model.Item, error) {
	result, err := s.db.Exec(
		`UPDATE items SET status = ?, updated_at = ? WHERE id = ?`,
		status, dbTime(time.Now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update item status: %w", err)
	}
	return s.afterUpdate(result, id)
}

// UpdateImages replaces the ordered image list. Returns nil if the item does not exist.
func (s *ItemStore) UpdateImages(id int64, images []string) (*model.Item, error) {
	encoded, err := encodeImages(images)
	if err != nil {
		return nil, err
	}
	result, err := s.db.Exec(
		`UPDATE items SET images = ?, updated_at = ? WHERE id = ?`,
		encoded, dbTime(time.Now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update item images: %w", err)
	}
	return s.afterUpdate(result, id)
}

func (s *ItemStore) afterUpdate(result sql.Result, id int64) (*model.Item, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(id)
}

// Delete removes an item and reports whether it existed.
func (s *ItemStore) Delete(id int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
