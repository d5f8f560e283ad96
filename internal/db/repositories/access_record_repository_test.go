package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/gatepass/gatepass/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var accessRecordCols = []string{
	"id", "user_id", "passcode_id", "device_id", "device_type", "direction",
	"result", "fail_reason", "project_id", "venue_id", "floor_id", "created_at",
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newAccessRecordRepo(t *testing.T) (*AccessRecordRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAccessRecordRepository(db), mock
}

func sampleAccessRecordRow(createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(accessRecordCols).
		AddRow("rec-1", "user-1", "pass-1", "gate-07", "turnstile", "in",
			"success", nil, nil, nil, nil, createdAt)
}

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// Append
// ---------------------------------------------------------------------------

func TestAppend_Success(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	mock.ExpectExec("INSERT INTO access_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := &models.AccessRecord{
		UserID:     strPtr("user-1"),
		PasscodeID: strPtr("pass-1"),
		DeviceID:   "gate-07",
		DeviceType: "turnstile",
		Direction:  models.DirectionIn,
		Result:     models.AccessResultSuccess,
	}
	if err := repo.Append(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be assigned")
	}
}

func TestAppend_UnmatchedAttempt(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	mock.ExpectExec("INSERT INTO access_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// A rejected attempt with an unrecognised code carries no user or
	// passcode linkage, only the device context.
	reason := models.ReasonPasscodeNotFound
	rec := &models.AccessRecord{
		DeviceID:   "gate-07",
		Direction:  models.DirectionIn,
		Result:     models.AccessResultFailed,
		FailReason: &reason,
	}
	if err := repo.Append(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppend_DBError(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	mock.ExpectExec("INSERT INTO access_records").
		WillReturnError(errDB)

	rec := &models.AccessRecord{DeviceID: "gate-07", Result: models.AccessResultFailed}
	if err := repo.Append(context.Background(), rec); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestList_NoFilters(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM access_records").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id.*FROM access_records").
		WillReturnRows(sampleAccessRecordRow(time.Now()))

	records, total, err := repo.List(context.Background(), AccessRecordFilters{}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].DeviceID != "gate-07" {
		t.Errorf("DeviceID = %q, want gate-07", records[0].DeviceID)
	}
}

func TestList_WithFilters(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	userID := "user-1"
	deviceID := "gate-07"
	result := models.AccessResultFailed
	from := time.Now().Add(-time.Hour)
	to := time.Now()

	mock.ExpectQuery("SELECT COUNT.*FROM access_records").
		WithArgs(userID, deviceID, result, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT id.*FROM access_records").
		WithArgs(userID, deviceID, result, from, to, 10, 0).
		WillReturnRows(sqlmock.NewRows(accessRecordCols))

	filters := AccessRecordFilters{
		UserID:   &userID,
		DeviceID: &deviceID,
		Result:   &result,
		From:     &from,
		To:       &to,
	}
	records, total, err := repo.List(context.Background(), filters, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(records) != 0 {
		t.Errorf("total = %d, len = %d, want 0, 0", total, len(records))
	}
}

func TestList_CountError(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM access_records").
		WillReturnError(errDB)

	if _, _, err := repo.List(context.Background(), AccessRecordFilters{}, 10, 0); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Counts
// ---------------------------------------------------------------------------

func TestCounts_NoScope(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	from := time.Now().Add(-24 * time.Hour)
	to := time.Now()

	mock.ExpectQuery("SELECT COUNT.*FROM access_records").
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"total", "success", "failed"}).AddRow(3, 2, 1))

	counts, err := repo.Counts(context.Background(), from, to, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Total != 3 || counts.Success != 2 || counts.Failed != 1 {
		t.Errorf("counts = %+v, want {3 2 1}", counts)
	}
}

func TestCounts_MerchantScope(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	from := time.Now().Add(-24 * time.Hour)
	to := time.Now()
	merchantID := "merchant-1"

	// The merchant scope joins through users
	mock.ExpectQuery("SELECT COUNT.*JOIN users").
		WithArgs(from, to, merchantID).
		WillReturnRows(sqlmock.NewRows([]string{"total", "success", "failed"}).AddRow(5, 5, 0))

	counts, err := repo.Counts(context.Background(), from, to, &merchantID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Total != 5 {
		t.Errorf("Total = %d, want 5", counts.Total)
	}
}

func TestCounts_DBError(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM access_records").
		WillReturnError(errDB)

	if _, err := repo.Counts(context.Background(), time.Now().Add(-time.Hour), time.Now(), nil, nil); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// LatestByDevice
// ---------------------------------------------------------------------------

func TestLatestByDevice_Found(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	seen := time.Now().Add(-2 * time.Minute)
	mock.ExpectQuery("SELECT .*FROM access_records.*WHERE device_id").
		WithArgs("gate-07").
		WillReturnRows(sampleAccessRecordRow(seen))

	rec, err := repo.LatestByDevice(context.Background(), "gate-07")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if !rec.CreatedAt.Equal(seen) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, seen)
	}
}

func TestLatestByDevice_NeverSeen(t *testing.T) {
	repo, mock := newAccessRecordRepo(t)
	mock.ExpectQuery("SELECT .*FROM access_records.*WHERE device_id").
		WithArgs("gate-99").
		WillReturnRows(sqlmock.NewRows(accessRecordCols))

	rec, err := repo.LatestByDevice(context.Background(), "gate-99")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil, got %+v", rec)
	}
}
