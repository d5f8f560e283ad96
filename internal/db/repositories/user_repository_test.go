package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/gatepass/gatepass/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// Column set matching the User struct db tags
var userCols = []string{
	"id", "name", "status", "user_type", "merchant_id", "created_at", "updated_at",
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestUserGetByID_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .*FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("user-1", "Ada", "active", "employee", "merchant-1", time.Now(), time.Now()))

	user, err := repo.GetByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Status != models.UserStatusActive {
		t.Errorf("Status = %q, want active", user.Status)
	}
	if user.MerchantID == nil || *user.MerchantID != "merchant-1" {
		t.Errorf("MerchantID = %v, want merchant-1", user.MerchantID)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .*FROM users").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userCols))

	user, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for missing user, got %+v", user)
	}
}

func TestUserGetByID_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .*FROM users").
		WillReturnError(errDB)

	if _, err := repo.GetByID(context.Background(), "user-1"); err == nil {
		t.Error("expected error, got nil")
	}
}
