// Package models - passcode.go defines the Passcode model: an access credential
// with a validity window, a usage quota, and a monotonic status lifecycle
// (active to expired or revoked; terminal states never return to active).
package models

import "time"

// PasscodeType distinguishes employee credentials from visitor credentials
type PasscodeType string

const (
	PasscodeTypeEmployee PasscodeType = "employee"
	PasscodeTypeVisitor  PasscodeType = "visitor"
)

// PasscodeStatus is the lifecycle state of a passcode
type PasscodeStatus string

const (
	PasscodeStatusActive  PasscodeStatus = "active"
	PasscodeStatusExpired PasscodeStatus = "expired"
	PasscodeStatusRevoked PasscodeStatus = "revoked"
)

// Passcode represents an access credential. Passcodes are never physically
// deleted; revocation and expiry only flip the status so the audit trail keeps
// resolving historical records.
type Passcode struct {
	ID            string
	UserID        string
	Code          string // opaque high-entropy secret, unique across all passcodes
	Type          PasscodeType
	Status        PasscodeStatus
	ValidFrom     time.Time
	ValidUntil    time.Time
	UsageLimit    int
	UsageCount    int
	ApplicationID *string  // originating visitor application, if any
	Permissions   []string // granted permission scopes, stored as JSONB
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the passcode is in the active state. It does not
// check the validity window; callers that care about expiry compare ValidUntil
// themselves so the clock stays under their control.
func (p *Passcode) IsActive() bool {
	return p.Status == PasscodeStatusActive
}

// Exhausted reports whether the usage quota has been fully consumed.
func (p *Passcode) Exhausted() bool {
	return p.UsageCount >= p.UsageLimit
}
