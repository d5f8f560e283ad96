// Package services implements the gatepass business logic: the validation
// engine, passcode issuance, the access recorder, and device liveness. Every
// service takes its stores as interfaces so unit tests run against in-memory
// fakes with no database; the production wiring injects the repositories from
// internal/db/repositories.
package services

import (
	"context"
	"time"

	"github.com/gatepass/gatepass/internal/db/models"
	"github.com/gatepass/gatepass/internal/db/repositories"
)

// PasscodeStore is the persistence contract for passcodes. Lookups return
// (nil, nil) for absent rows; errors always mean infrastructure failure.
// AtomicIncrementUsage is the single synchronization primitive of the whole
// system; the validation engine never mutates usage_count any other way.
type PasscodeStore interface {
	Create(ctx context.Context, p *models.Passcode) error
	GetByCode(ctx context.Context, code string) (*models.Passcode, error)
	GetByID(ctx context.Context, id string) (*models.Passcode, error)
	GetActiveByUser(ctx context.Context, userID string) (*models.Passcode, error)
	AtomicIncrementUsage(ctx context.Context, id string) (bool, error)
	MarkExpired(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	RevokeActiveByUser(ctx context.Context, userID string) (int64, error)
}

// AccessRecordStore is the persistence contract for the append-only audit trail
type AccessRecordStore interface {
	Append(ctx context.Context, rec *models.AccessRecord) error
	List(ctx context.Context, filters repositories.AccessRecordFilters, limit, offset int) ([]*models.AccessRecord, int, error)
	Counts(ctx context.Context, from, to time.Time, merchantID, deviceID *string) (repositories.AccessCounts, error)
	LatestByDevice(ctx context.Context, deviceID string) (*models.AccessRecord, error)
}

// UserDirectory resolves passcode owners. Users are referenced, never owned,
// by this core.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// VisitorApplicationStore resolves approved visit requests during issuance
type VisitorApplicationStore interface {
	GetByID(ctx context.Context, id string) (*models.VisitorApplication, error)
}
