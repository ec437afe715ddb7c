package ports

import (
	"context"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
)

// SessionService owns the single active playback session and its lifecycle.
type SessionService interface {
	// Start tears down any prior session, then initializes an engine for the
	// target. Returns the result record ID of the new test.
	Start(ctx context.Context, target domain.StreamTarget) (string, error)
	// StartDebounced coalesces rapid successive Start requests within the
	// debounce window into one initialize.
	StartDebounced(target domain.StreamTarget)
	// Stop tears down the active session. Effective immediately even while
	// an initialize or handshake is still in flight.
	Stop(ctx context.Context) error
	// Status returns the current session status and target.
	Status() (domain.SessionStatus, domain.StreamTarget)
	// State returns the internal lifecycle state.
	State() domain.SessionState
	// Close releases the service, tearing down any live engine.
	Close() error
}

// FallbackService rotates a target between its primary and backup URLs.
type FallbackService interface {
	// OnError is invoked when the active session's status becomes Error.
	// It performs at most one automatic fallback step.
	OnError(ctx context.Context, target domain.StreamTarget)
	// Advance performs a caller-triggered rotation to the next backup URL.
	Advance(ctx context.Context) (domain.StreamTarget, error)
	// Reset clears fallback state, used when the format changes.
	Reset(target domain.StreamTarget)
	// Current returns the target the controller currently tracks.
	Current() domain.StreamTarget
}

// SweepService tests every known format in declared order.
type SweepService interface {
	// Run executes a full sweep and returns the per-format outcomes in sweep
	// order. Formats without a configured sample URL are skipped.
	Run(ctx context.Context) ([]domain.ResultRecord, error)
}

// StatsSink consumes telemetry samples from a live connection.
type StatsSink interface {
	Sample(stats domain.ConnectionStats)
}
