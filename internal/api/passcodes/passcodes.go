// Package passcodes implements the issuance and management endpoints: minting
// employee and visitor passcodes, refreshing, revoking, and the info view.
package passcodes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gatepass/gatepass/internal/db/models"
	"github.com/gatepass/gatepass/internal/services"
)

// issueRequest is the request body for POST /api/v1/passcodes
type issueRequest struct {
	UserID        string   `json:"user_id" binding:"required"`
	Type          string   `json:"type" binding:"required,oneof=employee visitor"`
	ValidMinutes  int      `json:"valid_minutes"`
	UsageLimit    int      `json:"usage_limit"`
	Permissions   []string `json:"permissions"`
	ApplicationID string   `json:"application_id"`
}

// passcodeView is the wire form of a passcode
type passcodeView struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Code        string   `json:"code"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	ValidFrom   string   `json:"valid_from"`
	ValidUntil  string   `json:"valid_until"`
	UsageLimit  int      `json:"usage_limit"`
	UsageCount  int      `json:"usage_count"`
	Permissions []string `json:"permissions,omitempty"`
	QRPayload   string   `json:"qr_payload,omitempty"`
}

func newPasscodeView(p *models.Passcode, qrPayload string) passcodeView {
	return passcodeView{
		ID:          p.ID,
		UserID:      p.UserID,
		Code:        p.Code,
		Type:        string(p.Type),
		Status:      string(p.Status),
		ValidFrom:   p.ValidFrom.Format(time.RFC3339),
		ValidUntil:  p.ValidUntil.Format(time.RFC3339),
		UsageLimit:  p.UsageLimit,
		UsageCount:  p.UsageCount,
		Permissions: p.Permissions,
		QRPayload:   qrPayload,
	}
}

// @Summary      Issue a passcode
// @Description  Mints a new passcode. Visitor passcodes take their validity window and usage cap from the named approved application.
// @Tags         Passcodes
// @Accept       json
// @Produce      json
// @Param        request  body  issueRequest  true  "Issue request"
// @Success      201  {object}  passcodeView
// @Failure      400  {object}  map[string]interface{}  "Malformed request or unknown user/application"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/passcodes [post]
// IssueHandler handles passcode issuance
// Implements: POST /api/v1/passcodes
func IssueHandler(svc *services.PasscodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &issueRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		issued, err := svc.Issue(c.Request.Context(), services.IssueRequest{
			UserID:        req.UserID,
			Type:          models.PasscodeType(req.Type),
			ValidFor:      time.Duration(req.ValidMinutes) * time.Minute,
			UsageLimit:    req.UsageLimit,
			Permissions:   req.Permissions,
			ApplicationID: req.ApplicationID,
		})
		if err != nil {
			respondServiceError(c, err)
			return
		}

		c.JSON(http.StatusCreated, newPasscodeView(issued.Passcode, issued.QRPayload))
	}
}

// @Summary      Refresh a user's passcode
// @Description  Revokes the user's active passcodes and mints a replacement with the same type, quota, and window length.
// @Tags         Passcodes
// @Produce      json
// @Param        user_id  path  string  true  "User ID"
// @Success      201  {object}  passcodeView
// @Failure      404  {object}  map[string]interface{}  "User or active passcode not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users/{user_id}/passcode/refresh [post]
// RefreshHandler handles passcode refresh
// Implements: POST /api/v1/users/:user_id/passcode/refresh
func RefreshHandler(svc *services.PasscodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		issued, err := svc.Refresh(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			respondServiceError(c, err)
			return
		}

		c.JSON(http.StatusCreated, newPasscodeView(issued.Passcode, issued.QRPayload))
	}
}

// @Summary      Revoke a passcode
// @Description  Marks a passcode revoked. Revocation is terminal and idempotent.
// @Tags         Passcodes
// @Produce      json
// @Param        id  path  string  true  "Passcode ID"
// @Success      204  "Revoked"
// @Failure      404  {object}  map[string]interface{}  "Passcode not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/passcodes/{id} [delete]
// RevokeHandler handles passcode revocation
// Implements: DELETE /api/v1/passcodes/:id
func RevokeHandler(svc *services.PasscodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Revoke(c.Request.Context(), c.Param("id")); err != nil {
			respondServiceError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// infoResponse joins the passcode with its owner and the derived credentials
// valid right now.
type infoResponse struct {
	Passcode           passcodeView `json:"passcode"`
	UserName           string       `json:"user_name,omitempty"`
	UserStatus         string       `json:"user_status,omitempty"`
	RollingCode        string       `json:"rolling_code"`
	RollingStepSeconds int          `json:"rolling_step_seconds"`
}

// @Summary      Passcode info
// @Description  Returns the stored passcode, its owner, and the currently valid QR payload and rolling code.
// @Tags         Passcodes
// @Produce      json
// @Param        code  path  string  true  "Passcode code"
// @Success      200  {object}  infoResponse
// @Failure      404  {object}  map[string]interface{}  "Passcode not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /v1/passcodes/{code}/info [get]
// InfoHandler handles the passcode info view
// Implements: GET /v1/passcodes/:code/info
func InfoHandler(svc *services.PasscodeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := svc.Info(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondServiceError(c, err)
			return
		}

		resp := infoResponse{
			Passcode:           newPasscodeView(info.Passcode, info.QRPayload),
			RollingCode:        info.RollingCode,
			RollingStepSeconds: int(info.RollingStep.Seconds()),
		}
		if info.User != nil {
			resp.UserName = info.User.Name
			resp.UserStatus = string(info.User.Status)
		}

		c.JSON(http.StatusOK, resp)
	}
}

// respondServiceError maps service sentinel errors onto HTTP statuses
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrPasscodeNotFound),
		errors.Is(err, services.ErrApplicationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUserInactive),
		errors.Is(err, services.ErrApplicationNotApproved):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
