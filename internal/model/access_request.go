package model

import "time"

// Access request statuses.
const (
	AccessPending  = "pending"
	AccessApproved = "approved"
	AccessDenied   = "denied"
)

// ValidAccessStatus reports whether s is a known access request status.
func ValidAccessStatus(s string) bool {
	switch s {
	case AccessPending, AccessApproved, AccessDenied:
		return true
	}
	return false
}

type AccessRequest struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedAt *time.Time `json:"reviewed_at"`
	Notes      *string    `json:"notes"`
}
