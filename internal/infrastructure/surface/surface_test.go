package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestSurfaceAccountsSamples(t *testing.T) {
	s := New(zaptest.NewLogger(t).Sugar())

	s.SetSource("https://example.com/live.m3u8")
	s.WriteSample("video", 1200)
	s.WriteSample("video", 800)
	s.WriteSample("audio", 300)

	assert.Equal(t, "https://example.com/live.m3u8", s.Source())
	assert.EqualValues(t, 2300, s.BytesReceived())

	counts := s.SampleCounts()
	assert.EqualValues(t, 2, counts["video"])
	assert.EqualValues(t, 1, counts["audio"])
}

func TestSetSourceDropsPreviousState(t *testing.T) {
	s := New(zaptest.NewLogger(t).Sugar())

	s.SetSource("https://old.example.com/live.m3u8")
	s.WriteSample("video", 500)

	s.SetSource("https://new.example.com/live.m3u8")
	assert.Equal(t, "https://new.example.com/live.m3u8", s.Source())
	assert.Zero(t, s.BytesReceived(), "state from the previous source must not leak")
	assert.Empty(t, s.SampleCounts())
}

func TestClearSource(t *testing.T) {
	s := New(zaptest.NewLogger(t).Sugar())

	s.SetSource("https://example.com/live.m3u8")
	s.WriteSample("video", 500)
	s.ClearSource()

	assert.Empty(t, s.Source())
	assert.Zero(t, s.BytesReceived())
}
