package domain

import (
	"fmt"
	"time"
)

// ConnectionStats is one telemetry sample taken from a live peer connection.
// Purely informational: sampling failures never change a session's status.
type ConnectionStats struct {
	Timestamp      time.Time         `json:"timestamp"`
	TrackCount     int               `json:"track_count"`
	BytesReceived  uint64            `json:"bytes_received"`
	PacketsLost    int64             `json:"packets_lost"`
	PacketLossPct  float64           `json:"packet_loss_pct"`
	Jitter         time.Duration     `json:"jitter"`
	FramesPerTrack map[string]uint64 `json:"frames_per_track,omitempty"`
}

// Line renders the sample as a single display line.
func (s ConnectionStats) Line() string {
	return fmt.Sprintf("tracks=%d bytes=%d loss=%.2f%% jitter=%s",
		s.TrackCount, s.BytesReceived, s.PacketLossPct, s.Jitter)
}
