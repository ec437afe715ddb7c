package engines

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

const defaultRTMPPort = "1935"

// rtmpEngine exercises the legacy push path: it performs the RTMP handshake,
// the connect command for the source application and a stream allocation.
// A source that completes all three is reported playable.
type rtmpEngine struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	handles *handleSet
}

func newRTMPEngine(logger *zap.SugaredLogger) ports.Engine {
	return &rtmpEngine{logger: logger}
}

func (e *rtmpEngine) Initialize(_ context.Context, rawURL string, surface ports.Surface, onStatus ports.StatusFunc) error {
	addr, app, err := splitRTMPURL(rawURL)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeEngineInit, "invalid legacy push URL")
	}

	e.mu.Lock()
	if e.handles != nil {
		e.mu.Unlock()
		return pkgerrors.New(pkgerrors.ErrCodeEngineInit, "engine already initialized")
	}
	handles := newHandleSet(e.logger)
	e.handles = handles
	e.mu.Unlock()

	surface.SetSource(rawURL)
	handles.add("surface-source", func() error { surface.ClearSource(); return nil })

	// The negotiation outlives the caller's context (an HTTP handler's
	// request context is canceled the moment the handler returns); teardown
	// is the only thing that cancels it.
	runCtx, cancel := context.WithCancel(context.Background())
	handles.add("dial-context", func() error { cancel(); return nil })

	go e.negotiate(runCtx, handles, addr, app, rawURL, onStatus)
	return nil
}

func (e *rtmpEngine) negotiate(ctx context.Context, handles *handleSet, addr, app, rawURL string, onStatus ports.StatusFunc) {
	conn, err := rtmp.Dial("rtmp", addr, &rtmp.ConnConfig{})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		onStatus(domain.StatusError, fmt.Sprintf("source unreachable: %v", err))
		return
	}
	handles.add("rtmp-conn", func() error { return conn.Close() })

	if err := conn.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:   app,
			TCURL: rawURL,
		},
	}); err != nil {
		if ctx.Err() != nil {
			return
		}
		onStatus(domain.StatusError, fmt.Sprintf("connect command rejected: %v", err))
		return
	}

	stream, err := conn.CreateStream(&rtmpmsg.NetConnectionCreateStream{}, 128)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		onStatus(domain.StatusError, fmt.Sprintf("stream allocation rejected: %v", err))
		return
	}
	handles.add("rtmp-stream", func() error { return stream.Close() })

	if ctx.Err() != nil {
		return
	}
	e.logger.Infow("legacy push source negotiated", "addr", addr, "app", app)
	onStatus(domain.StatusSuccess, "")
}

func (e *rtmpEngine) Teardown() error {
	e.mu.Lock()
	handles := e.handles
	e.handles = nil
	e.mu.Unlock()
	if handles != nil {
		handles.releaseAll()
	}
	return nil
}

// splitRTMPURL extracts the dial address and the application name from an
// rtmp:// URL. The application is the first path segment; the remainder is
// the stream key and plays no part in the connect command.
func splitRTMPURL(raw string) (addr, app string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "rtmp" && u.Scheme != "rtmps" {
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("URL has no host")
	}

	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, defaultRTMPPort)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", "", fmt.Errorf("URL has no application path")
	}
	return host, segments[0], nil
}
