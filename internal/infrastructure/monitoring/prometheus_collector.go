package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
)

// PrometheusCollector implements ports.MetricsRecorder on top of prometheus
// counters registered with the default registry.
type PrometheusCollector struct {
	testsStarted  *prometheus.CounterVec
	testsFinished *prometheus.CounterVec
	testDuration  prometheus.Histogram
	fallbacks     *prometheus.CounterVec
	sweepsTotal   prometheus.Counter
	sweepFormats  prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		testsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lst_tests_started_total",
			Help: "Playback tests started, by stream format",
		}, []string{"format"}),

		testsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lst_tests_finished_total",
			Help: "Playback tests finished, by stream format and outcome",
		}, []string{"format", "status"}),

		testDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lst_test_duration_seconds",
			Help:    "Time from test start to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lst_fallbacks_total",
			Help: "Rotations to a backup source, by stream format",
		}, []string{"format"}),

		sweepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lst_sweeps_total",
			Help: "Full format sweeps completed",
		}),

		sweepFormats: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lst_sweep_formats_tested",
			Help:    "Formats actually tested per sweep",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
	}
}

func (p *PrometheusCollector) TestStarted(format domain.StreamFormat) {
	p.testsStarted.WithLabelValues(format.String()).Inc()
}

func (p *PrometheusCollector) TestFinished(format domain.StreamFormat, status domain.SessionStatus, duration time.Duration) {
	p.testsFinished.WithLabelValues(format.String(), status.String()).Inc()
	p.testDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) FallbackPerformed(format domain.StreamFormat) {
	p.fallbacks.WithLabelValues(format.String()).Inc()
}

func (p *PrometheusCollector) SweepCompleted(tested int) {
	p.sweepsTotal.Inc()
	p.sweepFormats.Observe(float64(tested))
}
