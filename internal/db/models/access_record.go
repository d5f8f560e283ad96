// Package models - access_record.go defines the AccessRecord model for the
// append-only audit trail. Records are immutable once created: the application
// never updates or deletes rows in access_records.
package models

import "time"

// AccessDirection is the direction of travel through an access point
type AccessDirection string

const (
	DirectionIn  AccessDirection = "in"
	DirectionOut AccessDirection = "out"
)

// AccessResult is the outcome of a validation attempt
type AccessResult string

const (
	AccessResultSuccess AccessResult = "success"
	AccessResultFailed  AccessResult = "failed"
)

// FailReason is the closed enum of domain rejection reasons. Infrastructure
// errors (store unreachable, timeout) are never mapped onto these values.
type FailReason string

const (
	ReasonPasscodeNotFound   FailReason = "passcode_not_found"
	ReasonAccountDisabled    FailReason = "account_disabled"
	ReasonPasscodeRevoked    FailReason = "passcode_revoked"
	ReasonPasscodeExpired    FailReason = "passcode_expired"
	ReasonUsageLimitExceeded FailReason = "usage_limit_exceeded"
	ReasonPayloadInvalid     FailReason = "payload_invalid"
)

// AccessRecord represents a single validation attempt at an access point.
// UserID and PasscodeID are nullable: an attempt with an unrecognised code is
// still recorded (policy-controlled) with only the device context.
type AccessRecord struct {
	ID         string
	UserID     *string
	PasscodeID *string
	DeviceID   string
	DeviceType string
	Direction  AccessDirection
	Result     AccessResult
	FailReason *FailReason // present iff Result == failed
	ProjectID  *string
	VenueID    *string
	FloorID    *string
	CreatedAt  time.Time
}

// Failed reports whether the record describes a rejected attempt.
func (r *AccessRecord) Failed() bool {
	return r.Result == AccessResultFailed
}
