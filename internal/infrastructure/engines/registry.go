package engines

import (
	"net/http"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/stats"
	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// Registry selects the engine for a stream format, taking the runtime
// capability probe into account. Every EngineFor call returns a fresh
// engine instance; engines hold per-session state and are not reusable.
type Registry struct {
	capabilities     domain.RuntimeCapabilities
	httpClient       *http.Client
	iceServers       []webrtc.ICEServer
	dialer           ports.SignalDialer
	handshakeTimeout time.Duration
	sampler          *stats.Sampler
	sink             ports.StatsSink
	logger           *zap.SugaredLogger
}

// RegistryOptions carries the shared infrastructure engines are built from.
type RegistryOptions struct {
	Capabilities     domain.RuntimeCapabilities
	HTTPClient       *http.Client
	ICEServers       []webrtc.ICEServer
	Dialer           ports.SignalDialer
	HandshakeTimeout time.Duration
	Sampler          *stats.Sampler
	Sink             ports.StatsSink
	Logger           *zap.SugaredLogger
}

func NewRegistry(opts RegistryOptions) *Registry {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Registry{
		capabilities:     opts.Capabilities,
		httpClient:       httpClient,
		iceServers:       opts.ICEServers,
		dialer:           opts.Dialer,
		handshakeTimeout: opts.HandshakeTimeout,
		sampler:          opts.Sampler,
		sink:             opts.Sink,
		logger:           opts.Logger,
	}
}

// EngineFor walks the per-format selection ladder. A format no capability can
// serve gets the unsupported engine, which reports the failure without I/O.
func (r *Registry) EngineFor(format domain.StreamFormat) (ports.Engine, error) {
	caps := r.capabilities
	switch format {
	case domain.FormatHLS:
		if caps.AdaptiveLibrary {
			return newHLSEngine(r.httpClient, r.logger), nil
		}
		if caps.AdaptiveNative {
			return newDirectEngine(r.httpClient, r.logger), nil
		}
		return newUnsupportedEngine(format), nil

	case domain.FormatDASH:
		// No DASH client library is linked in, so the ladder starts at the
		// native direct probe.
		if caps.AdaptiveNative {
			return newDirectEngine(r.httpClient, r.logger), nil
		}
		return newUnsupportedEngine(format), nil

	case domain.FormatMSS:
		if caps.AdaptiveNative && caps.MediaBuffering {
			return newDirectEngine(r.httpClient, r.logger), nil
		}
		return newUnsupportedEngine(format), nil

	case domain.FormatFile:
		return newDirectEngine(r.httpClient, r.logger), nil

	case domain.FormatFLV:
		if caps.MediaBuffering {
			return newDirectEngine(r.httpClient, r.logger), nil
		}
		return newUnsupportedEngine(format), nil

	case domain.FormatWebRTC:
		if caps.PeerToPeer {
			return newWebRTCEngine(r.iceServers, r.dialer, r.handshakeTimeout, r.sampler, r.sink, r.logger), nil
		}
		return newUnsupportedEngine(format), nil

	case domain.FormatRTMP:
		if caps.LegacyPush {
			return newRTMPEngine(r.logger), nil
		}
		return newUnsupportedEngine(format), nil

	case domain.FormatRTSP, domain.FormatSRT:
		return newUnsupportedEngine(format), nil

	default:
		return nil, pkgerrors.Newf(pkgerrors.ErrCodeInvalidInput, "unknown stream format %q", format)
	}
}

// Capabilities reports the probe the registry was built with.
func (r *Registry) Capabilities() domain.RuntimeCapabilities {
	return r.capabilities
}
