package domain

import "fmt"

// StreamFormat identifies the wire format of a live-stream source.
type StreamFormat string

const (
	FormatHLS    StreamFormat = "hls"    // adaptive HTTP, Apple variant
	FormatDASH   StreamFormat = "dash"   // adaptive HTTP, MPEG variant
	FormatWebRTC StreamFormat = "webrtc" // peer-to-peer
	FormatFile   StreamFormat = "file"   // direct progressive file
	FormatRTMP   StreamFormat = "rtmp"   // legacy push
	FormatRTSP   StreamFormat = "rtsp"   // legacy session
	FormatSRT    StreamFormat = "srt"    // reliable transport
	FormatFLV    StreamFormat = "flv"    // legacy container
	FormatMSS    StreamFormat = "mss"    // smooth adaptive
)

// SweepOrder is the fixed order in which a full-format sweep tests formats.
var SweepOrder = []StreamFormat{
	FormatHLS,
	FormatDASH,
	FormatWebRTC,
	FormatFile,
	FormatRTMP,
	FormatRTSP,
	FormatSRT,
	FormatFLV,
	FormatMSS,
}

// ParseFormat converts user input into a StreamFormat.
func ParseFormat(s string) (StreamFormat, error) {
	f := StreamFormat(s)
	for _, known := range SweepOrder {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// IsAdaptive reports whether the format uses adaptive HTTP delivery.
func (f StreamFormat) IsAdaptive() bool {
	return f == FormatHLS || f == FormatDASH || f == FormatMSS
}

func (f StreamFormat) String() string {
	return string(f)
}
