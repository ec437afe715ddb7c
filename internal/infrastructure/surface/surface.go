package surface

import (
	"sync"

	"go.uber.org/zap"
)

// MediaSurface is the single output sink a session renders into. It records
// the assigned source and accounts received samples; exactly one live engine
// owns it at a time.
type MediaSurface struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	source  string
	bytes   uint64
	samples map[string]uint64
}

func New(logger *zap.SugaredLogger) *MediaSurface {
	return &MediaSurface{
		logger:  logger,
		samples: make(map[string]uint64),
	}
}

// SetSource assigns a new source. Any previously assigned source and its
// buffered state are dropped first so nothing leaks into the next session.
func (s *MediaSurface) SetSource(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source != "" {
		s.resetLocked()
	}
	s.source = url
	s.logger.Debugw("surface source assigned", "url", url)
}

// ClearSource drops the current source and all buffered counters.
func (s *MediaSurface) ClearSource() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *MediaSurface) resetLocked() {
	s.source = ""
	s.bytes = 0
	s.samples = make(map[string]uint64)
}

// WriteSample accounts one received media sample on the named track.
func (s *MediaSurface) WriteSample(track string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[track]++
	if n > 0 {
		s.bytes += uint64(n)
	}
}

// Source returns the currently assigned source URL.
func (s *MediaSurface) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// BytesReceived returns the cumulative byte count for the current source.
func (s *MediaSurface) BytesReceived() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// SampleCounts returns a copy of the per-track sample counters.
func (s *MediaSurface) SampleCounts() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.samples))
	for k, v := range s.samples {
		out[k] = v
	}
	return out
}
