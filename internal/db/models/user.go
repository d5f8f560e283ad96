// Package models - user.go defines the User model referenced (never owned) by
// the validation core. Users belong to the surrounding identity system; only
// the fields the validation engine needs are modelled here.
package models

import "time"

// UserStatus is the account state of a user
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User represents an account that can hold passcodes
type User struct {
	ID         string     `db:"id"`
	Name       string     `db:"name"`
	Status     UserStatus `db:"status"`
	UserType   string     `db:"user_type"`
	MerchantID *string    `db:"merchant_id"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// IsActive reports whether the account may present credentials.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
