package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
)

// SweepController runs one playback test per format, in the declared sweep
// order, against the sample URLs from the catalog. Formats with no catalog
// entry are skipped. A format that never leaves Loading is forced to Error
// after the per-format timeout and the sweep proceeds.
type SweepController struct {
	sessions ports.SessionService
	catalog  ports.SampleCatalog
	results  ports.ResultRepository
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger

	formatTimeout time.Duration
	pollInterval  time.Duration
	settleDelay   time.Duration
}

type SweepOptions struct {
	FormatTimeout time.Duration
	PollInterval  time.Duration
	SettleDelay   time.Duration
}

func NewSweepController(
	sessions ports.SessionService,
	catalog ports.SampleCatalog,
	results ports.ResultRepository,
	metrics ports.MetricsRecorder,
	opts SweepOptions,
	logger *zap.SugaredLogger,
) *SweepController {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &SweepController{
		sessions:      sessions,
		catalog:       catalog,
		results:       results,
		metrics:       metrics,
		formatTimeout: opts.FormatTimeout,
		pollInterval:  opts.PollInterval,
		settleDelay:   opts.SettleDelay,
		logger:        logger,
	}
}

// Run executes the full sweep and returns the per-format outcome records in
// sweep order. The session is left stopped afterwards.
func (s *SweepController) Run(ctx context.Context) ([]domain.ResultRecord, error) {
	var outcomes []domain.ResultRecord

	for _, format := range domain.SweepOrder {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		primary, backups, ok := s.catalog.Lookup(format)
		if !ok {
			s.logger.Infow("sweep skipping format without sample URL", "format", format.String())
			continue
		}

		target := domain.NewStreamTarget(format, primary, backups)
		recordID, err := s.sessions.Start(ctx, target)
		if err != nil {
			s.logger.Warnw("sweep failed to start test", "format", format.String(), "error", err)
			continue
		}

		s.awaitOutcome(ctx, recordID)

		if record, ok := s.lookupRecord(ctx, recordID); ok {
			outcomes = append(outcomes, record)
		}

		if err := s.settle(ctx); err != nil {
			_ = s.sessions.Stop(ctx)
			return outcomes, err
		}
	}

	if err := s.sessions.Stop(ctx); err != nil {
		s.logger.Warnw("sweep final stop failed", "error", err)
	}

	s.metrics.SweepCompleted(len(outcomes))
	s.logger.Infow("format sweep finished", "tested", len(outcomes))
	return outcomes, nil
}

// awaitOutcome polls the session until its status leaves Loading or the
// per-format timeout expires, in which case the record is finalized as a
// timeout and the session stopped.
func (s *SweepController) awaitOutcome(ctx context.Context, recordID string) {
	deadline := time.Now().Add(s.formatTimeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		status, _ := s.sessions.Status()
		if status.Terminal() {
			return
		}
		if time.Now().After(deadline) {
			s.logger.Warnw("sweep test timed out", "record_id", recordID)
			if err := s.results.Finalize(ctx, recordID, domain.StatusError, domain.ErrTestTimeout.Error()); err != nil {
				s.logger.Warnw("failed to finalize timed out record", "record_id", recordID, "error", err)
			}
			_ = s.sessions.Stop(ctx)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *SweepController) lookupRecord(ctx context.Context, id string) (domain.ResultRecord, bool) {
	records, err := s.results.List(ctx)
	if err != nil {
		s.logger.Warnw("failed to read result log", "error", err)
		return domain.ResultRecord{}, false
	}
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return domain.ResultRecord{}, false
}

// settle waits the fixed delay between formats so teardown side effects
// cannot bleed into the next test.
func (s *SweepController) settle(ctx context.Context) error {
	if s.settleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
