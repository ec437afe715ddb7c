package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// ErrorHook is invoked after a session reaches a terminal Error status. The
// fallback controller registers itself here.
type ErrorHook func(ctx context.Context, target domain.StreamTarget)

// PlaybackSessionService owns the single active playback session. It enforces
// one live engine per surface: every Start fully tears down the prior engine
// before the next initialize, and a generation counter discards async
// completions that belong to a superseded session.
type PlaybackSessionService struct {
	registry ports.EngineRegistry
	surface  ports.Surface
	results  ports.ResultRepository
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger

	debounceWindow  time.Duration
	teardownTimeout time.Duration

	mu            sync.Mutex
	state         domain.SessionState
	status        domain.SessionStatus
	target        domain.StreamTarget
	engine        ports.Engine
	generation    uint64
	recordID      string
	startedAt     time.Time
	debounceTimer *time.Timer
	pendingTarget domain.StreamTarget
	errorHook     ErrorHook
	closed        bool
}

func NewPlaybackSessionService(
	registry ports.EngineRegistry,
	surface ports.Surface,
	results ports.ResultRepository,
	metrics ports.MetricsRecorder,
	debounceWindow time.Duration,
	teardownTimeout time.Duration,
	logger *zap.SugaredLogger,
) *PlaybackSessionService {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if teardownTimeout <= 0 {
		teardownTimeout = 5 * time.Second
	}
	return &PlaybackSessionService{
		registry:        registry,
		surface:         surface,
		results:         results,
		metrics:         metrics,
		debounceWindow:  debounceWindow,
		teardownTimeout: teardownTimeout,
		logger:          logger,
		state:           domain.StateIdle,
		status:          domain.StatusNotTested,
	}
}

// SetErrorHook registers the hook called on terminal errors. Must be called
// before the service is used; it is not synchronized against running sessions.
func (s *PlaybackSessionService) SetErrorHook(hook ErrorHook) {
	s.errorHook = hook
}

// Start supersedes any running session and begins a new test against the
// target's active URL. It returns the ID of the result record created for
// this test. A test that fails synchronously (for example an unsupported
// format) still yields a record; its outcome is in the result log, not in
// the returned error.
func (s *PlaybackSessionService) Start(ctx context.Context, target domain.StreamTarget) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", pkgerrors.New(pkgerrors.ErrCodeInternal, "session service closed")
	}

	s.generation++
	gen := s.generation
	s.mu.Unlock()

	engine, err := s.registry.EngineFor(target.Format)
	if err != nil {
		return "", err
	}

	// The prior engine must be fully released before the new one touches
	// the surface. The teardown is generation-guarded: if a newer Start has
	// already raced past us, this call finds nothing to do and the live
	// session stays untouched.
	s.teardownCurrent(ctx, gen, "superseded by a newer test")

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return "", domain.ErrSessionSuperseded
	}
	s.mu.Unlock()

	record := domain.ResultRecord{
		ID:        uuid.New().String(),
		Format:    target.Format,
		URL:       target.ActiveURL(),
		Status:    domain.StatusLoading,
		StartedAt: time.Now(),
	}
	if err := s.results.Append(ctx, record); err != nil {
		s.logger.Warnw("failed to append result record", "error", err)
	}

	s.mu.Lock()
	if gen != s.generation {
		// Another Start raced in while we were tearing down. Let it win.
		s.mu.Unlock()
		s.finalize(ctx, record.ID, domain.StatusError, domain.ErrSessionSuperseded.Error())
		return record.ID, nil
	}
	s.state = domain.StateInitializing
	s.status = domain.StatusLoading
	s.target = target
	s.engine = engine
	s.recordID = record.ID
	s.startedAt = record.StartedAt
	s.mu.Unlock()

	s.metrics.TestStarted(target.Format)
	s.logger.Infow("playback test started",
		"record_id", record.ID,
		"format", target.Format.String(),
		"url", target.ActiveURL(),
		"on_primary", target.OnPrimary(),
	)

	onStatus := func(status domain.SessionStatus, reason string) {
		s.completeAsync(gen, status, reason)
	}

	if err := engine.Initialize(ctx, target.ActiveURL(), s.surface, onStatus); err != nil {
		reason := err.Error()
		if pe := pkgerrors.AsPlaybackError(err); pe != nil {
			reason = pe.Reason()
		}
		s.completeAsync(gen, domain.StatusError, reason)
		return record.ID, nil
	}
	return record.ID, nil
}

// StartDebounced schedules a Start after the debounce window, replacing any
// not-yet-fired scheduled start. Rapid target changes thus collapse into a
// single initialize of the last requested target.
func (s *PlaybackSessionService) StartDebounced(target domain.StreamTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pendingTarget = target
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(s.debounceWindow, func() {
		s.mu.Lock()
		pending := s.pendingTarget
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if _, err := s.Start(context.Background(), pending); err != nil {
			s.logger.Warnw("debounced start failed", "error", err)
		}
	})
}

// Stop tears down the active session immediately, even while an initialize
// or signaling handshake is still in flight. A still-loading test is
// finalized as stopped.
func (s *PlaybackSessionService) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.teardownCurrent(ctx, gen, "test stopped")

	s.mu.Lock()
	if gen == s.generation {
		s.status = domain.StatusNotTested
	}
	s.mu.Unlock()
	return nil
}

// Status returns the externally visible status and the target under test.
func (s *PlaybackSessionService) Status() (domain.SessionStatus, domain.StreamTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.target
}

// State returns the internal lifecycle state.
func (s *PlaybackSessionService) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close releases the service. Any pending debounced start is cancelled and
// the live engine, if any, is torn down.
func (s *PlaybackSessionService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.generation++
	gen := s.generation
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	s.mu.Unlock()

	s.teardownCurrent(context.Background(), gen, "service shut down")
	return nil
}

// completeAsync applies a terminal status transition coming from an engine
// callback. Transitions from superseded generations are discarded.
func (s *PlaybackSessionService) completeAsync(gen uint64, status domain.SessionStatus, reason string) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debugw("discarding stale status transition",
			"generation", gen, "status", status.String(), "reason", reason)
		return
	}
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}

	s.status = status
	recordID := s.recordID
	target := s.target
	duration := time.Since(s.startedAt)
	hook := s.errorHook

	var engine ports.Engine
	switch status {
	case domain.StatusSuccess:
		s.state = domain.StateActive
	case domain.StatusError:
		// Terminal for the session. The engine has nothing left to do.
		engine = s.engine
		s.engine = nil
		s.state = domain.StateTearingDown
	}
	s.mu.Unlock()

	s.finalize(context.Background(), recordID, status, reason)
	s.metrics.TestFinished(target.Format, status, duration)

	if status == domain.StatusError {
		s.logger.Warnw("playback test failed",
			"record_id", recordID,
			"format", target.Format.String(),
			"url", target.ActiveURL(),
			"reason", reason,
		)
		if engine != nil {
			s.releaseEngine(engine)
		}
		s.mu.Lock()
		if gen == s.generation {
			s.state = domain.StateIdle
		}
		s.mu.Unlock()

		if hook != nil && !isUnsupportedReason(reason) {
			hook(context.Background(), target)
		}
		return
	}

	s.logger.Infow("playback test succeeded",
		"record_id", recordID,
		"format", target.Format.String(),
		"duration", duration,
	)
}

// teardownCurrent releases the live engine, if any, finalizing a still-open
// result record with the given reason. The engine and record are captured
// under the same lock that validates gen, so a caller whose generation has
// been superseded cannot touch the newer session's state.
func (s *PlaybackSessionService) teardownCurrent(ctx context.Context, gen uint64, reason string) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	engine := s.engine
	recordID := s.recordID
	open := s.status == domain.StatusLoading
	s.engine = nil
	s.recordID = ""
	if engine != nil {
		s.state = domain.StateTearingDown
	}
	s.mu.Unlock()

	if open && recordID != "" {
		s.finalize(ctx, recordID, domain.StatusError, reason)
	}
	if engine != nil {
		s.releaseEngine(engine)
	}

	s.mu.Lock()
	if gen == s.generation {
		s.state = domain.StateIdle
	}
	s.mu.Unlock()
}

// releaseEngine runs the engine's teardown, bounded by the configured
// timeout so a wedged engine cannot block the next test indefinitely.
func (s *PlaybackSessionService) releaseEngine(engine ports.Engine) {
	done := make(chan error, 1)
	go func() {
		done <- engine.Teardown()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warnw("engine teardown failed", "error", err)
		}
	case <-time.After(s.teardownTimeout):
		s.logger.Warnw("engine teardown timed out", "timeout", s.teardownTimeout)
	}
}

func (s *PlaybackSessionService) finalize(ctx context.Context, id string, status domain.SessionStatus, reason string) {
	if id == "" {
		return
	}
	if err := s.results.Finalize(ctx, id, status, reason); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warnw("failed to finalize result record", "record_id", id, "error", err)
	}
}

// isUnsupportedReason reports whether the failure is a runtime capability
// gap. Rotating to a backup URL of the same format cannot fix those, so the
// fallback hook is not invoked for them.
func isUnsupportedReason(reason string) bool {
	return strings.Contains(reason, "unsupported in this runtime")
}
