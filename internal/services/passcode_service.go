// passcode_service.go implements issuance: minting employee and visitor
// passcodes, refreshing (rotate-and-revoke), revocation, and the read-side
// passcode info view. Issuance is the only place static codes are created;
// the validation engine never mints.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatepass/gatepass/internal/codes"
	"github.com/gatepass/gatepass/internal/db/models"
	"github.com/gatepass/gatepass/internal/db/repositories"
	"github.com/gatepass/gatepass/internal/telemetry"
)

// createRetries bounds retry on static-code collision. With 128-bit codes a
// single collision is already vanishingly unlikely; two in a row means
// something is broken and retrying further would mask it.
const createRetries = 3

var (
	// ErrUserNotFound is returned when an issue or refresh request names an
	// unknown user.
	ErrUserNotFound = errors.New("services: user not found")
	// ErrUserInactive is returned when the target account cannot hold
	// credentials.
	ErrUserInactive = errors.New("services: user is not active")
	// ErrApplicationNotFound is returned when a visitor issue request names an
	// unknown application.
	ErrApplicationNotFound = errors.New("services: visitor application not found")
	// ErrApplicationNotApproved is returned when the named application is not
	// in the approved state.
	ErrApplicationNotApproved = errors.New("services: visitor application is not approved")
	// ErrPasscodeNotFound is returned by read paths when no passcode matches.
	ErrPasscodeNotFound = errors.New("services: passcode not found")
)

// IssueRequest describes a passcode to mint. For visitor issuance,
// ApplicationID selects the approved application supplying the validity
// window and usage cap; ValidFor and UsageLimit are then ignored.
type IssueRequest struct {
	UserID        string
	Type          models.PasscodeType
	ValidFor      time.Duration // 0 means the configured default
	UsageLimit    int           // 0 means the configured default
	Permissions   []string
	ApplicationID string // visitor issuance only
}

// IssuedPasscode is the issuance response: the minted passcode plus its
// derived QR payload. The rolling code is not included because it changes
// every step; clients derive it, or fetch it, at display time.
type IssuedPasscode struct {
	Passcode  *models.Passcode
	QRPayload string
}

// PasscodeInfo is the read-side view of a passcode joined with its owner
type PasscodeInfo struct {
	Passcode    *models.Passcode
	User        *models.User
	QRPayload   string
	RollingCode string
	RollingStep time.Duration
}

// PasscodeService mints and manages passcodes
type PasscodeService struct {
	passcodes    PasscodeStore
	users        UserDirectory
	applications VisitorApplicationStore
	generator    *codes.Generator

	defaultValidity   time.Duration
	defaultUsageLimit int

	now func() time.Time
}

// NewPasscodeService creates a PasscodeService
func NewPasscodeService(passcodes PasscodeStore, users UserDirectory, applications VisitorApplicationStore, generator *codes.Generator, defaultValidity time.Duration, defaultUsageLimit int) *PasscodeService {
	return &PasscodeService{
		passcodes:         passcodes,
		users:             users,
		applications:      applications,
		generator:         generator,
		defaultValidity:   defaultValidity,
		defaultUsageLimit: defaultUsageLimit,
		now:               time.Now,
	}
}

// Issue mints a new passcode for a user. Employee passcodes take their window
// and quota from the request (or configured defaults); visitor passcodes take
// them from the approved application.
func (s *PasscodeService) Issue(ctx context.Context, req IssueRequest) (*IssuedPasscode, error) {
	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive() {
		return nil, ErrUserInactive
	}

	now := s.now()

	p := &models.Passcode{
		UserID:      req.UserID,
		Type:        req.Type,
		Status:      models.PasscodeStatusActive,
		ValidFrom:   now,
		Permissions: req.Permissions,
	}

	switch req.Type {
	case models.PasscodeTypeVisitor:
		app, err := s.resolveApplication(ctx, req.ApplicationID, req.UserID)
		if err != nil {
			return nil, err
		}
		p.ApplicationID = &app.ID
		p.ValidFrom = app.ValidFrom
		p.ValidUntil = app.ValidUntil
		p.UsageLimit = app.UsageLimit
	case models.PasscodeTypeEmployee:
		validFor := req.ValidFor
		if validFor <= 0 {
			validFor = s.defaultValidity
		}
		p.ValidUntil = now.Add(validFor)
		p.UsageLimit = req.UsageLimit
		if p.UsageLimit <= 0 {
			p.UsageLimit = s.defaultUsageLimit
		}
	default:
		return nil, fmt.Errorf("services: unknown passcode type %q", req.Type)
	}

	if err := s.create(ctx, p); err != nil {
		return nil, err
	}

	qr, err := s.generator.EncodeQR(p.Code, p.UserID, p.ValidUntil)
	if err != nil {
		return nil, err
	}

	telemetry.PasscodesIssuedTotal.WithLabelValues(string(p.Type)).Inc()
	slog.Info("passcode issued",
		"passcode_id", p.ID,
		"user_id", p.UserID,
		"type", p.Type,
		"valid_until", p.ValidUntil,
		"usage_limit", p.UsageLimit)

	return &IssuedPasscode{Passcode: p, QRPayload: qr}, nil
}

// Refresh revokes the user's active passcodes and mints a replacement of the
// same type. The old codes stop validating the moment the revocation commits;
// there is no overlap window.
func (s *PasscodeService) Refresh(ctx context.Context, userID string) (*IssuedPasscode, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive() {
		return nil, ErrUserInactive
	}

	current, err := s.passcodes.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrPasscodeNotFound
	}

	revoked, err := s.passcodes.RevokeActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	replacement := &models.Passcode{
		UserID:        userID,
		Type:          current.Type,
		Status:        models.PasscodeStatusActive,
		ValidFrom:     now,
		ValidUntil:    now.Add(current.ValidUntil.Sub(current.ValidFrom)),
		UsageLimit:    current.UsageLimit,
		ApplicationID: current.ApplicationID,
		Permissions:   current.Permissions,
	}

	if err := s.create(ctx, replacement); err != nil {
		return nil, err
	}

	qr, err := s.generator.EncodeQR(replacement.Code, replacement.UserID, replacement.ValidUntil)
	if err != nil {
		return nil, err
	}

	telemetry.PasscodesIssuedTotal.WithLabelValues(string(replacement.Type)).Inc()
	slog.Info("passcode refreshed",
		"user_id", userID,
		"revoked", revoked,
		"passcode_id", replacement.ID)

	return &IssuedPasscode{Passcode: replacement, QRPayload: qr}, nil
}

// Revoke marks a passcode revoked. Revocation is idempotent and terminal.
func (s *PasscodeService) Revoke(ctx context.Context, passcodeID string) error {
	p, err := s.passcodes.GetByID(ctx, passcodeID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPasscodeNotFound
	}

	if err := s.passcodes.Revoke(ctx, passcodeID); err != nil {
		return err
	}

	slog.Info("passcode revoked", "passcode_id", passcodeID, "user_id", p.UserID)
	return nil
}

// Info returns the current view of a passcode by its code: the stored row,
// its owner, and the presently valid derived credentials.
func (s *PasscodeService) Info(ctx context.Context, code string) (*PasscodeInfo, error) {
	p, err := s.passcodes.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPasscodeNotFound
	}

	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	qr, err := s.generator.EncodeQR(p.Code, p.UserID, p.ValidUntil)
	if err != nil {
		return nil, err
	}

	return &PasscodeInfo{
		Passcode:    p,
		User:        user,
		QRPayload:   qr,
		RollingCode: s.generator.RollingCode(p.Code, s.now()),
		RollingStep: s.generator.Step(),
	}, nil
}

func (s *PasscodeService) resolveApplication(ctx context.Context, applicationID, userID string) (*models.VisitorApplication, error) {
	if applicationID == "" {
		return nil, ErrApplicationNotFound
	}

	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil || app.UserID != userID {
		return nil, ErrApplicationNotFound
	}
	if app.Status != "approved" {
		return nil, ErrApplicationNotApproved
	}

	return app, nil
}

// create mints a static code and inserts the row, retrying with a fresh code
// on a unique-constraint collision.
func (s *PasscodeService) create(ctx context.Context, p *models.Passcode) error {
	var lastErr error
	for attempt := 0; attempt < createRetries; attempt++ {
		code, err := s.generator.NewStaticCode()
		if err != nil {
			return err
		}
		p.Code = code

		err = s.passcodes.Create(ctx, p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrDuplicateCode) {
			return err
		}
		lastErr = err
		slog.Warn("static code collision, retrying", "attempt", attempt+1)
	}

	return fmt.Errorf("failed to mint a unique code after %d attempts: %w", createRetries, lastErr)
}
