// access_record_repository.go implements AccessRecordRepository, providing the
// append-only audit trail: insertion of validation attempts, filtered paged
// queries, aggregate stats, and the latest-record lookup that device liveness
// is derived from. The table is never updated or deleted by this code.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatepass/gatepass/internal/db/models"
)

// AccessRecordRepository handles access record database operations
type AccessRecordRepository struct {
	db *sql.DB
}

// NewAccessRecordRepository creates a new AccessRecordRepository
func NewAccessRecordRepository(db *sql.DB) *AccessRecordRepository {
	return &AccessRecordRepository{db: db}
}

// AccessRecordFilters contains filters for querying access records
type AccessRecordFilters struct {
	UserID   *string
	DeviceID *string
	Result   *models.AccessResult
	From     *time.Time
	To       *time.Time
}

// AccessCounts holds the raw aggregates behind the stats endpoint
type AccessCounts struct {
	Total   int64
	Success int64
	Failed  int64
}

const accessRecordColumns = `id, user_id, passcode_id, device_id, device_type, direction, result, fail_reason, project_id, venue_id, floor_id, created_at`

// Append inserts an immutable access record, assigning id and timestamp
func (r *AccessRecordRepository) Append(ctx context.Context, rec *models.AccessRecord) error {
	rec.ID = uuid.New().String()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO access_records (id, user_id, passcode_id, device_id, device_type, direction, result, fail_reason, project_id, venue_id, floor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.PasscodeID,
		rec.DeviceID,
		rec.DeviceType,
		rec.Direction,
		rec.Result,
		rec.FailReason,
		rec.ProjectID,
		rec.VenueID,
		rec.FloorID,
		rec.CreatedAt,
	)

	return err
}

// List retrieves access records with optional filters and pagination, newest first
func (r *AccessRecordRepository) List(ctx context.Context, filters AccessRecordFilters, limit, offset int) ([]*models.AccessRecord, int, error) {
	// Build query with filters
	countQuery := `SELECT COUNT(*) FROM access_records WHERE 1=1`
	query := `SELECT ` + accessRecordColumns + ` FROM access_records WHERE 1=1`

	args := make([]interface{}, 0)
	paramIndex := 1

	appendFilter := func(clause string, value interface{}) {
		countQuery += fmt.Sprintf(clause, paramIndex)
		query += fmt.Sprintf(clause, paramIndex)
		args = append(args, value)
		paramIndex++
	}

	if filters.UserID != nil {
		appendFilter(` AND user_id = $%d`, *filters.UserID)
	}
	if filters.DeviceID != nil {
		appendFilter(` AND device_id = $%d`, *filters.DeviceID)
	}
	if filters.Result != nil {
		appendFilter(` AND result = $%d`, *filters.Result)
	}
	if filters.From != nil {
		appendFilter(` AND created_at >= $%d`, *filters.From)
	}
	if filters.To != nil {
		appendFilter(` AND created_at <= $%d`, *filters.To)
	}

	// Get total count
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Add ordering and pagination
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]*models.AccessRecord, 0)
	for rows.Next() {
		rec := &models.AccessRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.PasscodeID,
			&rec.DeviceID,
			&rec.DeviceType,
			&rec.Direction,
			&rec.Result,
			&rec.FailReason,
			&rec.ProjectID,
			&rec.VenueID,
			&rec.FloorID,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	return records, total, rows.Err()
}

// Counts aggregates attempt totals over a time window, optionally scoped to a
// merchant (via the owning user) or a single device. Used by the stats endpoint.
func (r *AccessRecordRepository) Counts(ctx context.Context, from, to time.Time, merchantID, deviceID *string) (AccessCounts, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE ar.result = 'success'),
		       COUNT(*) FILTER (WHERE ar.result = 'failed')
		FROM access_records ar
	`
	args := []interface{}{from, to}
	paramIndex := 3

	if merchantID != nil {
		query += ` JOIN users u ON ar.user_id = u.id`
	}
	query += ` WHERE ar.created_at >= $1 AND ar.created_at <= $2`

	if merchantID != nil {
		query += fmt.Sprintf(` AND u.merchant_id = $%d`, paramIndex)
		args = append(args, *merchantID)
		paramIndex++
	}
	if deviceID != nil {
		query += fmt.Sprintf(` AND ar.device_id = $%d`, paramIndex)
		args = append(args, *deviceID)
	}

	var counts AccessCounts
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&counts.Total, &counts.Success, &counts.Failed)
	if err != nil {
		return AccessCounts{}, err
	}

	return counts, nil
}

// LatestByDevice retrieves the most recent access record for a device, or
// (nil, nil) when the device has never produced one.
func (r *AccessRecordRepository) LatestByDevice(ctx context.Context, deviceID string) (*models.AccessRecord, error) {
	query := `
		SELECT ` + accessRecordColumns + `
		FROM access_records
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	rec := &models.AccessRecord{}
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.PasscodeID,
		&rec.DeviceID,
		&rec.DeviceType,
		&rec.Direction,
		&rec.Result,
		&rec.FailReason,
		&rec.ProjectID,
		&rec.VenueID,
		&rec.FloorID,
		&rec.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return rec, nil
}
