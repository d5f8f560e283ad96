// Package devices implements the device liveness endpoint. Liveness is
// derived from audit recency rather than a heartbeat channel, so this is a
// pure read over the access trail.
package devices

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gatepass/gatepass/internal/services"
)

// statusResponse is the wire form of one device's liveness
type statusResponse struct {
	DeviceID   string `json:"device_id"`
	State      string `json:"state"`
	LastSeen   string `json:"last_seen,omitempty"`
	LastResult string `json:"last_result,omitempty"`
}

// @Summary      Device status
// @Description  Reports whether an access point is online, derived from the recency of its most recent access record.
// @Tags         Devices
// @Produce      json
// @Param        device_id  path  string  true  "Device ID"
// @Success      200  {object}  statusResponse
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/devices/{device_id}/status [get]
// StatusHandler handles device liveness queries
// Implements: GET /api/v1/devices/:device_id/status
func StatusHandler(svc *services.DeviceStatusService) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := svc.Status(c.Request.Context(), c.Param("device_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve device status"})
			return
		}

		resp := statusResponse{
			DeviceID:   status.DeviceID,
			State:      string(status.State),
			LastResult: status.LastResult,
		}
		if status.LastSeen != nil {
			resp.LastSeen = status.LastSeen.Format(time.RFC3339)
		}

		c.JSON(http.StatusOK, resp)
	}
}
