package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
)

// Source produces one telemetry snapshot of a live connection.
type Source interface {
	Snapshot() (domain.ConnectionStats, error)
}

// Sampler polls a live connection on a fixed interval and forwards derived
// telemetry to a sink. Sampling is display-only: a failing source is logged
// and skipped, never surfaced as a session error.
type Sampler struct {
	interval time.Duration
	logger   *zap.SugaredLogger
}

func NewSampler(interval time.Duration, logger *zap.SugaredLogger) *Sampler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Sampler{interval: interval, logger: logger}
}

// Run polls src until the context is cancelled.
func (s *Sampler) Run(ctx context.Context, src Source, sink ports.StatsSink) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := src.Snapshot()
			if err != nil {
				s.logger.Debugw("stats snapshot failed", "error", err)
				continue
			}
			snap.Timestamp = time.Now()
			if sink != nil {
				sink.Sample(snap)
			}
			s.logger.Infow("connection telemetry", "line", snap.Line())
		}
	}
}

// LogSink writes telemetry lines to the process log. The default sink when
// no other consumer is registered.
type LogSink struct {
	Logger *zap.SugaredLogger
}

func (l *LogSink) Sample(stats domain.ConnectionStats) {
	l.Logger.Debugw("telemetry sample",
		"tracks", stats.TrackCount,
		"bytes", stats.BytesReceived,
		"loss_pct", stats.PacketLossPct,
	)
}
