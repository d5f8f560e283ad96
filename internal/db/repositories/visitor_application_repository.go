// visitor_application_repository.go implements VisitorApplicationRepository,
// the lookup used when minting a visitor passcode from an approved application.
// Follows the same sqlx pattern as UserRepository for consistency.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/gatepass/gatepass/internal/db/models"
)

// VisitorApplicationRepository handles visitor application database operations
type VisitorApplicationRepository struct {
	db *sqlx.DB
}

// NewVisitorApplicationRepository creates a new VisitorApplicationRepository
func NewVisitorApplicationRepository(db *sqlx.DB) *VisitorApplicationRepository {
	return &VisitorApplicationRepository{db: db}
}

// GetByID retrieves a visitor application by ID; (nil, nil) when none exists
func (r *VisitorApplicationRepository) GetByID(ctx context.Context, id string) (*models.VisitorApplication, error) {
	query := `
		SELECT id, user_id, status, valid_from, valid_until, usage_limit, created_at, updated_at
		FROM visitor_applications
		WHERE id = $1
	`

	app := &models.VisitorApplication{}
	err := r.db.GetContext(ctx, app, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return app, nil
}
