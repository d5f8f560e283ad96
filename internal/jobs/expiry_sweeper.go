// Package jobs contains background maintenance jobs. expiry_sweeper.go
// implements the ExpirySweeper, which periodically flips passcodes whose
// validity window has lapsed from active to expired. Validation does not
// depend on the sweeper (the engine checks ValidUntil on every attempt); the
// sweep keeps the stored status usable for listing and reporting.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/gatepass/gatepass/internal/db/repositories"
	"github.com/gatepass/gatepass/internal/telemetry"
)

// ExpirySweeper periodically expires passcodes past their validity window
type ExpirySweeper struct {
	passcodeRepo *repositories.PasscodeRepository
	interval     time.Duration
	stopChan     chan struct{}
}

// NewExpirySweeper creates a new expiry sweep job
func NewExpirySweeper(passcodeRepo *repositories.PasscodeRepository, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &ExpirySweeper{
		passcodeRepo: passcodeRepo,
		interval:     interval,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the sweep loop. It blocks until Stop is called or ctx is
// cancelled, so callers run it on its own goroutine.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("expiry sweeper started", "interval", s.interval)

	// Run immediately on start
	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			slog.Info("expiry sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("expiry sweeper context cancelled")
			return
		}
	}
}

// Stop stops the sweep loop
func (s *ExpirySweeper) Stop() {
	close(s.stopChan)
}

// runSweep performs one sweep pass
func (s *ExpirySweeper) runSweep(ctx context.Context) {
	swept, err := s.passcodeRepo.SweepExpired(ctx, time.Now())
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)
		return
	}

	if swept > 0 {
		telemetry.PasscodesSweptTotal.Add(float64(swept))
		slog.Info("expiry sweep completed", "swept", swept)
	}
}
