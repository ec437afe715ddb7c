package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
)

// FallbackController rotates a target between its primary and backup URLs.
// It performs at most one automatic fallback step per target: when a test of
// the primary URL fails, it restarts once on the next backup. Any further
// rotation is caller-triggered through Advance.
type FallbackController struct {
	sessions ports.SessionService
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	target   domain.StreamTarget
	autoUsed bool
}

func NewFallbackController(sessions ports.SessionService, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *FallbackController {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &FallbackController{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// OnError reacts to a terminal Error of the active session. One automatic
// step is taken when the failed test ran on the primary URL and a backup
// exists. A manual test that is already initializing is never preempted.
func (f *FallbackController) OnError(ctx context.Context, target domain.StreamTarget) {
	f.mu.Lock()
	if target.Format != f.target.Format {
		// A format the controller was not tracking. Adopt it fresh.
		f.target = target
		f.autoUsed = false
	}

	if f.autoUsed || !target.OnPrimary() || len(target.BackupURLs) == 0 {
		f.mu.Unlock()
		return
	}
	if f.sessions.State() == domain.StateInitializing {
		f.mu.Unlock()
		f.logger.Debugw("skipping automatic fallback, a newer test is initializing")
		return
	}

	target.ActiveIndex = target.NextBackupIndex()
	f.target = target
	f.autoUsed = true
	f.mu.Unlock()

	f.logger.Infow("automatic fallback to backup source",
		"format", target.Format.String(),
		"backup_index", target.ActiveIndex,
		"url", target.ActiveURL(),
	)
	f.metrics.FallbackPerformed(target.Format)

	if _, err := f.sessions.Start(ctx, target); err != nil {
		f.logger.Warnw("fallback restart failed", "error", err)
	}
}

// Advance rotates to the next backup URL, wrapping around the backup list,
// and restarts the session on it.
func (f *FallbackController) Advance(ctx context.Context) (domain.StreamTarget, error) {
	f.mu.Lock()
	target := f.target
	next := target.NextBackupIndex()
	if next < 0 {
		f.mu.Unlock()
		return target, domain.ErrFallbackExhausted
	}
	target.ActiveIndex = next
	f.target = target
	f.mu.Unlock()

	f.logger.Infow("manual rotation to backup source",
		"format", target.Format.String(),
		"backup_index", target.ActiveIndex,
		"url", target.ActiveURL(),
	)
	f.metrics.FallbackPerformed(target.Format)

	if _, err := f.sessions.Start(ctx, target); err != nil {
		return target, err
	}
	return target, nil
}

// Reset adopts a new target and re-arms the automatic step. Called whenever
// the format or source under test changes.
func (f *FallbackController) Reset(target domain.StreamTarget) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = target
	f.autoUsed = false
}

// Current returns the target the controller tracks.
func (f *FallbackController) Current() domain.StreamTarget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target
}
