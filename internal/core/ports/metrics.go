package ports

import (
	"time"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
)

// MetricsRecorder receives lifecycle events for monitoring. Implementations
// must be safe for concurrent use and must never block.
type MetricsRecorder interface {
	TestStarted(format domain.StreamFormat)
	TestFinished(format domain.StreamFormat, status domain.SessionStatus, duration time.Duration)
	FallbackPerformed(format domain.StreamFormat)
	SweepCompleted(tested int)
}

// NopMetrics discards every event. The default when monitoring is disabled.
type NopMetrics struct{}

func (NopMetrics) TestStarted(domain.StreamFormat)                                      {}
func (NopMetrics) TestFinished(domain.StreamFormat, domain.SessionStatus, time.Duration) {}
func (NopMetrics) FallbackPerformed(domain.StreamFormat)                                {}
func (NopMetrics) SweepCompleted(int)                                                   {}
