// Package models - visitor_application.go defines the VisitorApplication model.
// Approved applications supply the validity window and usage cap when a visitor
// passcode is minted.
package models

import "time"

// VisitorApplication represents an approved (or pending) visit request
type VisitorApplication struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Status     string    `db:"status"`
	ValidFrom  time.Time `db:"valid_from"`
	ValidUntil time.Time `db:"valid_until"`
	UsageLimit int       `db:"usage_limit"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
