// validator.go implements the validation engine: the protocol state machine
// that resolves a presented credential (static code, QR payload, or rolling
// code) to an accept/reject decision with a stable fail reason.
//
// The engine is stateless between calls. All cross-request coordination is
// pushed into the store's AtomicIncrementUsage conditional update, so the
// engine scales horizontally with no locks: for a passcode with usage limit U
// and N racing validations, exactly min(N, U) succeed regardless of
// interleaving or process boundary.
//
// Domain rejections are normal results carrying a FailReason; infrastructure
// failures (store unreachable, timeout) are returned as errors and never
// disguised as a domain reason, since callers retry those, not the user.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/gatepass/gatepass/internal/codes"
	"github.com/gatepass/gatepass/internal/db/models"
	"github.com/gatepass/gatepass/internal/telemetry"
)

// CredentialKind is the presented credential format, used for metrics labels
type CredentialKind string

const (
	CredentialStatic  CredentialKind = "static"
	CredentialQR      CredentialKind = "qr"
	CredentialRolling CredentialKind = "rolling"
)

// DeviceContext carries the access-point context of a validation attempt
type DeviceContext struct {
	DeviceID   string
	DeviceType string
	Direction  models.AccessDirection
	ProjectID  *string
	VenueID    *string
	FloorID    *string
}

// ValidationResult is the outcome of a validation attempt. Reason is set iff
// Valid is false and always comes from the closed FailReason enum.
type ValidationResult struct {
	Valid       bool
	UserID      string
	UserType    string
	Permissions []string
	Reason      models.FailReason
}

// AttemptRecorder receives exactly one record per validation attempt. The
// production implementation is AccessRecorder; tests substitute a synchronous
// fake.
type AttemptRecorder interface {
	Record(rec *models.AccessRecord)
}

// Engine is the validation state machine
type Engine struct {
	passcodes PasscodeStore
	users     UserDirectory
	generator *codes.Generator
	recorder  AttemptRecorder

	// recordUnmatched controls whether attempts that resolve to no passcode
	// at all still produce an access record (without a user linkage)
	recordUnmatched bool

	// now is injectable for tests; defaults to time.Now
	now func() time.Time
}

// NewEngine creates a validation Engine
func NewEngine(passcodes PasscodeStore, users UserDirectory, generator *codes.Generator, recorder AttemptRecorder, recordUnmatched bool) *Engine {
	return &Engine{
		passcodes:       passcodes,
		users:           users,
		generator:       generator,
		recorder:        recorder,
		recordUnmatched: recordUnmatched,
		now:             time.Now,
	}
}

// Validate checks a static code presented at an access point.
func (e *Engine) Validate(ctx context.Context, code string, dev DeviceContext) (*ValidationResult, error) {
	return e.run(ctx, CredentialStatic, dev, func(ctx context.Context) (*models.Passcode, models.FailReason, error) {
		return e.lookup(ctx, code)
	})
}

// ValidateQR checks a signed QR payload. Any decode or signature failure is
// payload_invalid; the code inside a mis-signed payload is never looked up.
func (e *Engine) ValidateQR(ctx context.Context, payload string, dev DeviceContext) (*ValidationResult, error) {
	return e.run(ctx, CredentialQR, dev, func(ctx context.Context) (*models.Passcode, models.FailReason, error) {
		claims, err := e.generator.DecodeQR(payload)
		if err != nil {
			return nil, models.ReasonPayloadInvalid, nil
		}
		return e.lookup(ctx, claims.Code)
	})
}

// ValidateRolling checks a rolling display code against its base code. The
// derivation is verified first (current window ±1 step); only then is the base
// code resolved to a passcode.
func (e *Engine) ValidateRolling(ctx context.Context, rollingCode, baseCode string, dev DeviceContext) (*ValidationResult, error) {
	return e.run(ctx, CredentialRolling, dev, func(ctx context.Context) (*models.Passcode, models.FailReason, error) {
		if !e.generator.ValidateRolling(rollingCode, baseCode, e.now()) {
			return nil, models.ReasonPayloadInvalid, nil
		}
		return e.lookup(ctx, baseCode)
	})
}

// lookup resolves a code to its passcode; an absent row is passcode_not_found
func (e *Engine) lookup(ctx context.Context, code string) (*models.Passcode, models.FailReason, error) {
	p, err := e.passcodes.GetByCode(ctx, code)
	if err != nil {
		return nil, "", err
	}
	if p == nil {
		return nil, models.ReasonPasscodeNotFound, nil
	}
	return p, "", nil
}

// run executes the validation state machine around a credential-specific
// resolve step. Every domain branch, success or rejection, produces exactly
// one access record; infrastructure errors produce none and propagate.
func (e *Engine) run(ctx context.Context, kind CredentialKind, dev DeviceContext, resolve func(context.Context) (*models.Passcode, models.FailReason, error)) (*ValidationResult, error) {
	start := e.now()

	p, reason, err := resolve(ctx)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return e.reject(kind, dev, p, nil, reason, start), nil
	}

	// Resolve the owning user; a missing or inactive account rejects without
	// touching the passcode
	user, err := e.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive() {
		return e.reject(kind, dev, p, user, models.ReasonAccountDisabled, start), nil
	}

	// Stored terminal states map to their own reasons
	switch p.Status {
	case models.PasscodeStatusRevoked:
		return e.reject(kind, dev, p, user, models.ReasonPasscodeRevoked, start), nil
	case models.PasscodeStatusExpired:
		return e.reject(kind, dev, p, user, models.ReasonPasscodeExpired, start), nil
	}

	// Validity window; the status flip is idempotent and the rejection stands
	// even if the write is lost
	if e.now().After(p.ValidUntil) {
		if err := e.passcodes.MarkExpired(ctx, p.ID); err != nil {
			slog.Error("failed to mark lapsed passcode expired", "passcode_id", p.ID, "error", err)
		}
		return e.reject(kind, dev, p, user, models.ReasonPasscodeExpired, start), nil
	}

	// The one and only mutation of the usage quota. A false return means this
	// call lost the race: the quota was consumed (or the row left active)
	// between our read and this update.
	changed, err := e.passcodes.AtomicIncrementUsage(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return e.reject(kind, dev, p, user, models.ReasonUsageLimitExceeded, start), nil
	}

	e.record(dev, p, user, models.AccessResultSuccess, nil)
	e.observe(kind, models.AccessResultSuccess, "", start)

	return &ValidationResult{
		Valid:       true,
		UserID:      user.ID,
		UserType:    user.UserType,
		Permissions: p.Permissions,
	}, nil
}

func (e *Engine) reject(kind CredentialKind, dev DeviceContext, p *models.Passcode, user *models.User, reason models.FailReason, start time.Time) *ValidationResult {
	if p != nil || reason != models.ReasonPasscodeNotFound || e.recordUnmatched {
		e.record(dev, p, user, models.AccessResultFailed, &reason)
	}
	e.observe(kind, models.AccessResultFailed, reason, start)
	return &ValidationResult{Valid: false, Reason: reason}
}

func (e *Engine) record(dev DeviceContext, p *models.Passcode, user *models.User, result models.AccessResult, reason *models.FailReason) {
	rec := &models.AccessRecord{
		DeviceID:   dev.DeviceID,
		DeviceType: dev.DeviceType,
		Direction:  dev.Direction,
		Result:     result,
		FailReason: reason,
		ProjectID:  dev.ProjectID,
		VenueID:    dev.VenueID,
		FloorID:    dev.FloorID,
	}
	if p != nil {
		rec.PasscodeID = &p.ID
		rec.UserID = &p.UserID
	}
	if user != nil {
		rec.UserID = &user.ID
	}

	e.recorder.Record(rec)
}

func (e *Engine) observe(kind CredentialKind, result models.AccessResult, reason models.FailReason, start time.Time) {
	telemetry.ValidationsTotal.WithLabelValues(string(kind), string(result), string(reason)).Inc()
	telemetry.ValidationDuration.WithLabelValues(string(kind)).Observe(e.now().Sub(start).Seconds())
}
