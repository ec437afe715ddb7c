package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
)

const sampleCatalog = `
hls:
  primary: https://example.com/live.m3u8
  backups:
    - https://backup-0.example.com/live.m3u8
    - https://backup-1.example.com/live.m3u8
webrtc:
  primary: wss://example.com/signaling
rtmp:
  primary: rtmp://example.com/live/stream
`

func TestParseCatalog(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Formats())

	primary, backups, ok := c.Lookup(domain.FormatHLS)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/live.m3u8", primary)
	assert.Len(t, backups, 2)

	primary, backups, ok = c.Lookup(domain.FormatWebRTC)
	require.True(t, ok)
	assert.Equal(t, "wss://example.com/signaling", primary)
	assert.Empty(t, backups)

	_, _, ok = c.Lookup(domain.FormatSRT)
	assert.False(t, ok)
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown format key", "betamax:\n  primary: https://example.com/live"},
		{"missing primary", "hls:\n  backups:\n    - https://example.com/live.m3u8"},
		{"invalid primary URL", "hls:\n  primary: not-a-url"},
		{"invalid backup URL", "hls:\n  primary: https://example.com/live.m3u8\n  backups:\n    - ftp://example.com/live"},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestEmptyCatalog(t *testing.T) {
	c := Empty()
	assert.Zero(t, c.Formats())
	_, _, ok := c.Lookup(domain.FormatHLS)
	assert.False(t, ok)
}
