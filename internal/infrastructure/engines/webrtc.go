package engines

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/signaling"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/stats"
	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// webrtcEngine receives a peer-to-peer stream: it negotiates via the
// signaling client in whichever dialect the URL selects, attaches
// receive-only transceivers and accounts the media that arrives.
type webrtcEngine struct {
	iceServers       []webrtc.ICEServer
	dialer           ports.SignalDialer
	handshakeTimeout time.Duration
	sampler          *stats.Sampler
	sink             ports.StatsSink
	logger           *zap.SugaredLogger

	mu      sync.Mutex
	handles *handleSet

	telemetry connTelemetry
}

// connTelemetry aggregates per-connection counters fed by the RTP readers
// and the RTCP report loop.
type connTelemetry struct {
	mu          sync.Mutex
	tracks      int
	bytes       uint64
	packetsLost int64
	lossPct     float64
	jitter      time.Duration
	frames      map[string]uint64
}

func (t *connTelemetry) trackOpened(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks++
	if t.frames == nil {
		t.frames = make(map[string]uint64)
	}
	t.frames[id] = 0
}

func (t *connTelemetry) addPacket(id string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytes += uint64(n)
	t.frames[id]++
}

func (t *connTelemetry) reportLoss(lost int64, lossPct float64, jitter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.packetsLost += lost
	t.lossPct = lossPct
	t.jitter = jitter
}

// Snapshot implements stats.Source.
func (t *connTelemetry) Snapshot() (domain.ConnectionStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	frames := make(map[string]uint64, len(t.frames))
	for k, v := range t.frames {
		frames[k] = v
	}
	return domain.ConnectionStats{
		TrackCount:     t.tracks,
		BytesReceived:  t.bytes,
		PacketsLost:    t.packetsLost,
		PacketLossPct:  t.lossPct,
		Jitter:         t.jitter,
		FramesPerTrack: frames,
	}, nil
}

func newWebRTCEngine(
	iceServers []webrtc.ICEServer,
	dialer ports.SignalDialer,
	handshakeTimeout time.Duration,
	sampler *stats.Sampler,
	sink ports.StatsSink,
	logger *zap.SugaredLogger,
) ports.Engine {
	return &webrtcEngine{
		iceServers:       iceServers,
		dialer:           dialer,
		handshakeTimeout: handshakeTimeout,
		sampler:          sampler,
		sink:             sink,
		logger:           logger,
	}
}

func (e *webrtcEngine) Initialize(ctx context.Context, url string, surface ports.Surface, onStatus ports.StatusFunc) error {
	e.mu.Lock()
	if e.handles != nil {
		e.mu.Unlock()
		return pkgerrors.New(pkgerrors.ErrCodeEngineInit, "engine already initialized")
	}
	handles := newHandleSet(e.logger)
	e.handles = handles
	e.mu.Unlock()

	fail := func(err error) error {
		handles.releaseAll()
		e.mu.Lock()
		e.handles = nil
		e.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handles.add("session-context", func() error { cancel(); return nil })

	dialect := signaling.DetectDialect(url)
	channel, err := e.dialer.Dial(ctx, url)
	if err != nil {
		return fail(pkgerrors.Wrap(err, pkgerrors.ErrCodeNetworkFatal, "signaling server unreachable"))
	}
	handles.add("signal-channel", channel.Close)

	pc, err := e.createPeerConnection()
	if err != nil {
		return fail(pkgerrors.Wrap(err, pkgerrors.ErrCodeEngineInit, "failed to create peer connection"))
	}
	handles.add("peer-connection", pc.Close)

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fail(pkgerrors.Wrap(err, pkgerrors.ErrCodeEngineInit, "failed to add receive transceiver"))
		}
	}

	surface.SetSource(url)
	handles.add("surface-source", func() error { surface.ClearSource(); return nil })

	client := signaling.NewClient(dialect, channel, pc, e.handshakeTimeout, e.logger)

	// One terminal status per engine instance; everything after the first
	// transition is noise from handles being torn down.
	var terminal atomic.Bool
	report := func(status domain.SessionStatus, reason string) {
		if terminal.CompareAndSwap(false, true) {
			onStatus(status, reason)
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		e.logger.Infow("remote track opened",
			"track_id", track.ID(),
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)
		e.telemetry.trackOpened(track.ID())
		go e.readTrack(track, surface)
		go e.readRTCP(receiver)
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		e.logger.Infow("ice connection state changed", "state", state.String())
		switch state {
		case webrtc.ICEConnectionStateConnected:
			client.MarkConnected()
			report(domain.StatusSuccess, "")
			if e.sampler != nil && e.sink != nil {
				go e.sampler.Run(runCtx, &e.telemetry, e.sink)
			}
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateDisconnected:
			report(domain.StatusError, fmt.Sprintf("peer connection %s", state))
		}
	})

	go func() {
		if err := client.Run(runCtx); err != nil && runCtx.Err() == nil {
			reason := err.Error()
			if pe := pkgerrors.AsPlaybackError(err); pe != nil {
				reason = pe.Reason()
			}
			report(domain.StatusError, reason)
		}
	}()

	return nil
}

// createPeerConnection builds a pion connection with the configured ICE
// servers.
func (e *webrtcEngine) createPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers:   e.iceServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(webrtc.SettingEngine{}))
	return api.NewPeerConnection(config)
}

// readTrack drains RTP packets from a remote track, feeding the surface and
// the telemetry counters.
func (e *webrtcEngine) readTrack(track *webrtc.TrackRemote, surface ports.Surface) {
	buf := make([]byte, 1500) // MTU size
	packet := &rtp.Packet{}

	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			e.logger.Debugw("undecodable rtp packet", "track_id", track.ID(), "error", err)
			continue
		}
		surface.WriteSample(track.ID(), len(packet.Payload))
		e.telemetry.addPacket(track.ID(), n)
	}
}

// readRTCP extracts loss and jitter from receiver reports.
func (e *webrtcEngine) readRTCP(receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			rr, ok := packet.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			for _, report := range rr.Reports {
				lossPct := float64(report.FractionLost) / 255.0 * 100.0
				jitter := time.Duration(report.Jitter) * time.Millisecond
				e.telemetry.reportLoss(int64(report.TotalLost), lossPct, jitter)
			}
		}
	}
}

func (e *webrtcEngine) Teardown() error {
	e.mu.Lock()
	handles := e.handles
	e.handles = nil
	e.mu.Unlock()

	if handles != nil {
		handles.releaseAll()
	}
	return nil
}
