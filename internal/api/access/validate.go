// Package access implements the validation endpoints consumed by access-point
// devices (turnstiles, door readers, handheld scanners). These are the hot
// path of the system: every request resolves exactly one credential to an
// accept/reject decision and produces one audit record.
package access

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gatepass/gatepass/internal/db/models"
	"github.com/gatepass/gatepass/internal/services"
)

// validateRequest is the shared request body for the validation endpoints.
// Code carries the static code, QR payload, or rolling code depending on the
// endpoint; BaseCode is only used by the rolling endpoint.
type validateRequest struct {
	Code       string `json:"code" binding:"required"`
	BaseCode   string `json:"base_code"`
	DeviceID   string `json:"device_id" binding:"required"`
	DeviceType string `json:"device_type"`
	Direction  string `json:"direction" binding:"required,oneof=in out"`
	ProjectID  string `json:"project_id"`
	VenueID    string `json:"venue_id"`
	FloorID    string `json:"floor_id"`
}

func (r *validateRequest) deviceContext() services.DeviceContext {
	dev := services.DeviceContext{
		DeviceID:   r.DeviceID,
		DeviceType: r.DeviceType,
		Direction:  models.AccessDirection(r.Direction),
	}
	if r.ProjectID != "" {
		dev.ProjectID = &r.ProjectID
	}
	if r.VenueID != "" {
		dev.VenueID = &r.VenueID
	}
	if r.FloorID != "" {
		dev.FloorID = &r.FloorID
	}
	return dev
}

// validateResponse is the wire form of a validation outcome. Reason is present
// only on rejection.
type validateResponse struct {
	Valid       bool     `json:"valid"`
	UserID      string   `json:"user_id,omitempty"`
	UserType    string   `json:"user_type,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// @Summary      Validate a static code
// @Description  Validates a static passcode presented at an access point and consumes one use on success.
// @Tags         Validation
// @Accept       json
// @Produce      json
// @Param        request  body  validateRequest  true  "Validation request"
// @Success      200  {object}  validateResponse
// @Failure      400  {object}  map[string]interface{}  "Malformed request body"
// @Failure      500  {object}  map[string]interface{}  "Validation backend unavailable"
// @Router       /v1/validate [post]
// ValidateHandler handles static code validation
// Implements: POST /v1/validate
func ValidateHandler(engine *services.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindRequest(c)
		if !ok {
			return
		}

		result, err := engine.Validate(c.Request.Context(), req.Code, req.deviceContext())
		respond(c, result, err)
	}
}

// @Summary      Validate a QR payload
// @Description  Verifies the HMAC signature of a scanned QR payload and validates the passcode it carries.
// @Tags         Validation
// @Accept       json
// @Produce      json
// @Param        request  body  validateRequest  true  "Validation request; code carries the full QR payload"
// @Success      200  {object}  validateResponse
// @Failure      400  {object}  map[string]interface{}  "Malformed request body"
// @Failure      500  {object}  map[string]interface{}  "Validation backend unavailable"
// @Router       /v1/validate/qr [post]
// ValidateQRHandler handles QR payload validation
// Implements: POST /v1/validate/qr
func ValidateQRHandler(engine *services.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindRequest(c)
		if !ok {
			return
		}

		result, err := engine.ValidateQR(c.Request.Context(), req.Code, req.deviceContext())
		respond(c, result, err)
	}
}

// @Summary      Validate a rolling code
// @Description  Checks a time-based rolling code against its base code (current window ±1 step) and validates the passcode.
// @Tags         Validation
// @Accept       json
// @Produce      json
// @Param        request  body  validateRequest  true  "Validation request; code is the rolling code, base_code the passcode code"
// @Success      200  {object}  validateResponse
// @Failure      400  {object}  map[string]interface{}  "Malformed request body"
// @Failure      500  {object}  map[string]interface{}  "Validation backend unavailable"
// @Router       /v1/validate/rolling [post]
// ValidateRollingHandler handles rolling code validation
// Implements: POST /v1/validate/rolling
func ValidateRollingHandler(engine *services.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindRequest(c)
		if !ok {
			return
		}
		if req.BaseCode == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "base_code is required"})
			return
		}

		result, err := engine.ValidateRolling(c.Request.Context(), req.Code, req.BaseCode, req.deviceContext())
		respond(c, result, err)
	}
}

func bindRequest(c *gin.Context) (*validateRequest, bool) {
	req := &validateRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return nil, false
	}
	return req, true
}

// respond maps a validation outcome onto the wire. Domain rejections are 200
// responses with valid=false; only infrastructure failures surface as 500, so
// devices can distinguish "denied" from "try again".
func respond(c *gin.Context, result *services.ValidationResult, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Validation temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, validateResponse{
		Valid:       result.Valid,
		UserID:      result.UserID,
		UserType:    result.UserType,
		Permissions: result.Permissions,
		Reason:      string(result.Reason),
	})
}
