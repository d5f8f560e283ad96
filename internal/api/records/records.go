// Package records implements the audit-trail read endpoints: filtered access
// record listing and aggregate attempt statistics. The trail itself is
// append-only; nothing in this package writes.
package records

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gatepass/gatepass/internal/db/models"
	"github.com/gatepass/gatepass/internal/db/repositories"
	"github.com/gatepass/gatepass/internal/services"
)

// recordView is the wire form of one access record
type recordView struct {
	ID         string  `json:"id"`
	UserID     *string `json:"user_id,omitempty"`
	PasscodeID *string `json:"passcode_id,omitempty"`
	DeviceID   string  `json:"device_id"`
	DeviceType string  `json:"device_type,omitempty"`
	Direction  string  `json:"direction"`
	Result     string  `json:"result"`
	FailReason *string `json:"fail_reason,omitempty"`
	ProjectID  *string `json:"project_id,omitempty"`
	VenueID    *string `json:"venue_id,omitempty"`
	FloorID    *string `json:"floor_id,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func newRecordView(r *models.AccessRecord) recordView {
	v := recordView{
		ID:         r.ID,
		UserID:     r.UserID,
		PasscodeID: r.PasscodeID,
		DeviceID:   r.DeviceID,
		DeviceType: r.DeviceType,
		Direction:  string(r.Direction),
		Result:     string(r.Result),
		ProjectID:  r.ProjectID,
		VenueID:    r.VenueID,
		FloorID:    r.FloorID,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
	if r.FailReason != nil {
		reason := string(*r.FailReason)
		v.FailReason = &reason
	}
	return v
}

// @Summary      List access records
// @Description  Returns a page of access records, newest first, filtered by user, device, result, and time range.
// @Tags         AccessRecords
// @Produce      json
// @Param        user_id    query  string  false  "Filter by user ID"
// @Param        device_id  query  string  false  "Filter by device ID"
// @Param        result     query  string  false  "Filter by result (success|failed)"
// @Param        from       query  string  false  "Start of time range (RFC3339)"
// @Param        to         query  string  false  "End of time range (RFC3339)"
// @Param        page       query  int     false  "Page number (1-based)"
// @Param        page_size  query  int     false  "Page size (default 20, max 200)"
// @Success      200  {object}  map[string]interface{}  "records, total, page, page_size"
// @Failure      400  {object}  map[string]interface{}  "Malformed filter"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/access-records [get]
// ListHandler handles access record listing
// Implements: GET /api/v1/access-records
func ListHandler(recorder *services.AccessRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters, ok := parseFilters(c)
		if !ok {
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

		result, err := recorder.Query(c.Request.Context(), filters, page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query access records"})
			return
		}

		views := make([]recordView, len(result.Records))
		for i, r := range result.Records {
			views[i] = newRecordView(r)
		}

		c.JSON(http.StatusOK, gin.H{
			"records":   views,
			"total":     result.Total,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

// statsResponse summarises attempt outcomes over the requested window
type statsResponse struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	From        string  `json:"from"`
	To          string  `json:"to"`
}

// @Summary      Access statistics
// @Description  Aggregates attempt outcomes over a time window, optionally scoped to a merchant or device. The window defaults to the last 24 hours.
// @Tags         AccessRecords
// @Produce      json
// @Param        from         query  string  false  "Start of window (RFC3339)"
// @Param        to           query  string  false  "End of window (RFC3339)"
// @Param        merchant_id  query  string  false  "Scope to one merchant"
// @Param        device_id    query  string  false  "Scope to one device"
// @Success      200  {object}  statsResponse
// @Failure      400  {object}  map[string]interface{}  "Malformed time bound"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/access-records/stats [get]
// StatsHandler handles access statistics
// Implements: GET /api/v1/access-records/stats
func StatsHandler(recorder *services.AccessRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		to := time.Now()
		from := to.Add(-24 * time.Hour)

		var ok bool
		if from, ok = parseTimeQuery(c, "from", from); !ok {
			return
		}
		if to, ok = parseTimeQuery(c, "to", to); !ok {
			return
		}

		var merchantID, deviceID *string
		if v := c.Query("merchant_id"); v != "" {
			merchantID = &v
		}
		if v := c.Query("device_id"); v != "" {
			deviceID = &v
		}

		stats, err := recorder.Stats(c.Request.Context(), from, to, merchantID, deviceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate access records"})
			return
		}

		c.JSON(http.StatusOK, statsResponse{
			Total:       stats.Total,
			Success:     stats.Success,
			Failed:      stats.Failed,
			SuccessRate: stats.SuccessRate,
			From:        from.Format(time.RFC3339),
			To:          to.Format(time.RFC3339),
		})
	}
}

func parseFilters(c *gin.Context) (repositories.AccessRecordFilters, bool) {
	filters := repositories.AccessRecordFilters{}

	if v := c.Query("user_id"); v != "" {
		filters.UserID = &v
	}
	if v := c.Query("device_id"); v != "" {
		filters.DeviceID = &v
	}
	if v := c.Query("result"); v != "" {
		if v != string(models.AccessResultSuccess) && v != string(models.AccessResultFailed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "result must be success or failed"})
			return filters, false
		}
		result := models.AccessResult(v)
		filters.Result = &result
	}

	var zero time.Time
	from, ok := parseTimeQuery(c, "from", zero)
	if !ok {
		return filters, false
	}
	if !from.IsZero() {
		filters.From = &from
	}
	to, ok := parseTimeQuery(c, "to", zero)
	if !ok {
		return filters, false
	}
	if !to.IsZero() {
		filters.To = &to
	}

	return filters, true
}

func parseTimeQuery(c *gin.Context, name string, fallback time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339"})
		return time.Time{}, false
	}
	return t, true
}
