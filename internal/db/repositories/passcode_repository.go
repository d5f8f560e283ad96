// passcode_repository.go implements PasscodeRepository, providing database queries for
// passcode lookup by code and id, creation with duplicate-code detection, the atomic
// usage-quota update that the whole validation path's correctness rests on, and the
// idempotent status transitions (expire, revoke).
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gatepass/gatepass/internal/db/models"
)

// ErrDuplicateCode is returned by Create when the generated code already exists.
// The caller (code generator) retries with a fresh value.
var ErrDuplicateCode = errors.New("passcode code already exists")

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// PasscodeRepository handles passcode database operations
type PasscodeRepository struct {
	db *sql.DB
}

// NewPasscodeRepository creates a new PasscodeRepository
func NewPasscodeRepository(db *sql.DB) *PasscodeRepository {
	return &PasscodeRepository{db: db}
}

const passcodeColumns = `id, user_id, code, type, status, valid_from, valid_until, usage_limit, usage_count, application_id, permissions, created_at, updated_at`

// Create inserts a new passcode. It assigns the id and timestamps and returns
// ErrDuplicateCode when the code collides with an existing row.
func (r *PasscodeRepository) Create(ctx context.Context, p *models.Passcode) error {
	p.ID = uuid.New().String()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = models.PasscodeStatusActive
	}
	if p.Permissions == nil {
		p.Permissions = []string{}
	}

	// Marshal permissions to JSONB
	permissionsJSON, err := json.Marshal(p.Permissions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO passcodes (id, user_id, code, type, status, valid_from, valid_until, usage_limit, usage_count, application_id, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.Code,
		p.Type,
		p.Status,
		p.ValidFrom,
		p.ValidUntil,
		p.UsageLimit,
		p.UsageCount,
		p.ApplicationID,
		permissionsJSON,
		p.CreatedAt,
		p.UpdatedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateCode
	}

	return err
}

// GetByCode retrieves a passcode by its opaque code value
func (r *PasscodeRepository) GetByCode(ctx context.Context, code string) (*models.Passcode, error) {
	query := `SELECT ` + passcodeColumns + ` FROM passcodes WHERE code = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, code))
}

// GetByID retrieves a passcode by ID
func (r *PasscodeRepository) GetByID(ctx context.Context, id string) (*models.Passcode, error) {
	query := `SELECT ` + passcodeColumns + ` FROM passcodes WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetActiveByUser retrieves the user's currently active passcode, newest first
// when more than one exists (refresh revokes the old one, so overlap is brief).
func (r *PasscodeRepository) GetActiveByUser(ctx context.Context, userID string) (*models.Passcode, error) {
	query := `
		SELECT ` + passcodeColumns + `
		FROM passcodes
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

// AtomicIncrementUsage consumes one unit of the passcode's usage quota in a
// single conditional update. When the new count reaches the limit the status
// flips to expired in the same statement. The guard rejects rows that are no
// longer active or already exhausted, so concurrent callers racing on the same
// passcode serialize at the database: exactly usage_limit of them ever see
// changed=true, independent of arrival order or process boundary.
func (r *PasscodeRepository) AtomicIncrementUsage(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE passcodes
		SET usage_count = usage_count + 1,
		    status = CASE WHEN usage_count + 1 >= usage_limit THEN 'expired' ELSE status END,
		    updated_at = $2
		WHERE id = $1 AND status = 'active' AND usage_count < usage_limit
	`

	res, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// MarkExpired flips an active passcode to expired. Idempotent: a passcode that
// is already expired or revoked is left untouched and no error is returned.
func (r *PasscodeRepository) MarkExpired(ctx context.Context, id string) error {
	query := `
		UPDATE passcodes
		SET status = 'expired', updated_at = $2
		WHERE id = $1 AND status = 'active'
	`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}

// Revoke flips an active passcode to revoked. Idempotent like MarkExpired.
func (r *PasscodeRepository) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE passcodes
		SET status = 'revoked', updated_at = $2
		WHERE id = $1 AND status = 'active'
	`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}

// RevokeActiveByUser revokes every active passcode held by the user and
// reports how many rows changed. Used by the refresh flow before minting a
// replacement.
func (r *PasscodeRepository) RevokeActiveByUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE passcodes
		SET status = 'revoked', updated_at = $2
		WHERE user_id = $1 AND status = 'active'
	`
	res, err := r.db.ExecContext(ctx, query, userID, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SweepExpired marks every active passcode whose validity window has passed as
// expired and reports how many rows changed. Called by the background sweeper;
// the validation path does not depend on it (it checks valid_until itself) but
// the sweep keeps listings and stats honest without per-read clock checks.
func (r *PasscodeRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE passcodes
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND valid_until < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanOne scans a single passcode row; sql.ErrNoRows maps to (nil, nil) so
// callers distinguish "not found" from infrastructure failures.
func (r *PasscodeRepository) scanOne(row *sql.Row) (*models.Passcode, error) {
	p := &models.Passcode{}
	var permissionsJSON []byte

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Code,
		&p.Type,
		&p.Status,
		&p.ValidFrom,
		&p.ValidUntil,
		&p.UsageLimit,
		&p.UsageCount,
		&p.ApplicationID,
		&permissionsJSON,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	// Unmarshal permissions from JSONB
	if err := json.Unmarshal(permissionsJSON, &p.Permissions); err != nil {
		return nil, err
	}

	return p, nil
}
