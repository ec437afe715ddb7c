package domain

// RuntimeCapabilities reports which playback paths this runtime can drive.
// It is resolved once at startup and consumed read-only when an engine is
// selected for a session.
type RuntimeCapabilities struct {
	AdaptiveLibrary bool `json:"adaptive_library"` // HLS client library available
	AdaptiveNative  bool `json:"adaptive_native"`  // direct manifest fetch acceptable
	PeerToPeer      bool `json:"peer_to_peer"`     // WebRTC stack available
	MediaBuffering  bool `json:"media_buffering"`  // container remux into buffered playback
	LegacyPush      bool `json:"legacy_push"`      // RTMP client available
}

// DefaultCapabilities reflects what this build links in: the HLS client,
// the pion WebRTC stack and the RTMP client are compiled in unconditionally.
func DefaultCapabilities() RuntimeCapabilities {
	return RuntimeCapabilities{
		AdaptiveLibrary: true,
		AdaptiveNative:  true,
		PeerToPeer:      true,
		MediaBuffering:  true,
		LegacyPush:      true,
	}
}
