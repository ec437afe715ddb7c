package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// schemesByUse maps which URL schemes are acceptable for stream sources and
// for signaling servers.
var (
	streamSchemes    = []string{"http", "https", "rtmp", "rtmps", "rtsp", "srt", "ws", "wss"}
	signalingSchemes = []string{"ws", "wss", "http", "https"}
)

// ValidateStreamURL validates a stream source URL supplied through the API.
func ValidateStreamURL(raw string) error {
	return validateURL(raw, streamSchemes)
}

// ValidateSignalingURL validates a signaling server URL.
func ValidateSignalingURL(raw string) error {
	return validateURL(raw, signalingSchemes)
}

func validateURL(raw string, schemes []string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("URL is required")
	}
	if len(raw) > 2048 {
		return fmt.Errorf("URL is too long (max 2048 characters)")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
}

// ValidateBackupURLs validates every entry of a backup URL list.
func ValidateBackupURLs(urls []string) error {
	for i, raw := range urls {
		if err := ValidateStreamURL(raw); err != nil {
			return fmt.Errorf("backup URL %d: %w", i, err)
		}
	}
	return nil
}
