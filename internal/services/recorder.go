// recorder.go implements the AccessRecorder: the append side of the audit
// trail plus its read paths (filtered listing, aggregate stats). Audit records
// have different consumers than application logs (security and operations
// teams, with retention measured in months) so they land in the database
// rather than in slog output.
//
// Appends are best-effort relative to the validation outcome: by the time the
// recorder sees an entry the decision has already been computed and returned,
// and a failed audit write must never alter or roll it back. Failed appends
// are logged and counted, nothing more.
package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/gatepass/gatepass/internal/db/models"
	"github.com/gatepass/gatepass/internal/db/repositories"
	"github.com/gatepass/gatepass/internal/safego"
	"github.com/gatepass/gatepass/internal/telemetry"
)

// appendTimeout bounds the detached audit write so a hung database connection
// cannot pin goroutines forever.
const appendTimeout = 5 * time.Second

// AccessRecorder owns the append-only audit trail
type AccessRecorder struct {
	store AccessRecordStore
}

// NewAccessRecorder creates a new AccessRecorder
func NewAccessRecorder(store AccessRecordStore) *AccessRecorder {
	return &AccessRecorder{store: store}
}

// Record appends an access record asynchronously. The write is detached from
// the caller's context: the validation response must not wait on, or fail
// with, the audit write.
func (r *AccessRecorder) Record(rec *models.AccessRecord) {
	rec.CreatedAt = time.Now()

	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()

		if err := r.store.Append(ctx, rec); err != nil {
			telemetry.AccessRecordWriteFailuresTotal.Inc()
			slog.Error("access record append failed",
				"device_id", rec.DeviceID,
				"result", rec.Result,
				"error", err)
			return
		}
		telemetry.AccessRecordsWrittenTotal.WithLabelValues(string(rec.Result)).Inc()
	})
}

// RecordSync appends an access record on the caller's goroutine. Used by tests
// and by callers that need the row visible before returning.
func (r *AccessRecorder) RecordSync(ctx context.Context, rec *models.AccessRecord) error {
	rec.CreatedAt = time.Now()
	if err := r.store.Append(ctx, rec); err != nil {
		telemetry.AccessRecordWriteFailuresTotal.Inc()
		return err
	}
	telemetry.AccessRecordsWrittenTotal.WithLabelValues(string(rec.Result)).Inc()
	return nil
}

// Page is one page of access records plus the unpaginated total
type Page struct {
	Records []*models.AccessRecord
	Total   int
}

// Query returns a page of access records matching the filters, newest first.
// page is 1-based; pageSize falls back to 20 and is capped at 200.
func (r *AccessRecorder) Query(ctx context.Context, filters repositories.AccessRecordFilters, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}

	records, total, err := r.store.List(ctx, filters, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	return &Page{Records: records, Total: total}, nil
}

// Stats summarises attempt outcomes over a window
type Stats struct {
	Total       int64
	Success     int64
	Failed      int64
	SuccessRate float64 // percentage, rounded to 2 decimals; 0 when Total is 0
}

// Stats aggregates outcomes between from and to, optionally scoped to a
// merchant or a device.
func (r *AccessRecorder) Stats(ctx context.Context, from, to time.Time, merchantID, deviceID *string) (*Stats, error) {
	counts, err := r.store.Counts(ctx, from, to, merchantID, deviceID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:   counts.Total,
		Success: counts.Success,
		Failed:  counts.Failed,
	}

	// Defined as 0 rather than NaN for an empty window
	if counts.Total > 0 {
		rate := float64(counts.Success) / float64(counts.Total) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}

	return stats, nil
}
