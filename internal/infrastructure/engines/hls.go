package engines

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/bluenviron/gohlslib/v2"
	"github.com/bluenviron/gohlslib/v2/pkg/codecs"
	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// hlsEngine drives the library-backed adaptive engine: it fetches the
// playlist, decodes track declarations and reports success once media
// samples flow.
type hlsEngine struct {
	httpClient *http.Client
	logger     *zap.SugaredLogger

	mu      sync.Mutex
	handles *handleSet
}

func newHLSEngine(httpClient *http.Client, logger *zap.SugaredLogger) ports.Engine {
	return &hlsEngine{httpClient: httpClient, logger: logger}
}

func (e *hlsEngine) Initialize(_ context.Context, url string, surface ports.Surface, onStatus ports.StatusFunc) error {
	e.mu.Lock()
	if e.handles != nil {
		e.mu.Unlock()
		return pkgerrors.New(pkgerrors.ErrCodeEngineInit, "engine already initialized")
	}
	handles := newHandleSet(e.logger)
	e.handles = handles
	e.mu.Unlock()

	surface.SetSource(url)
	handles.add("surface-source", func() error { surface.ClearSource(); return nil })

	var playing atomic.Bool
	var client *gohlslib.Client
	client = &gohlslib.Client{
		URI:        url,
		HTTPClient: e.httpClient,
		OnTracks: func(tracks []*gohlslib.Track) error {
			e.logger.Infow("playlist tracks declared", "url", url, "tracks", len(tracks))
			for _, track := range tracks {
				t := track
				name := fmt.Sprintf("%T", t.Codec)
				onSample := func(n int) {
					surface.WriteSample(name, n)
					if playing.CompareAndSwap(false, true) {
						onStatus(domain.StatusSuccess, "")
					}
				}

				switch t.Codec.(type) {
				case *codecs.H264, *codecs.H265:
					client.OnDataH26x(t, func(_ int64, _ int64, au [][]byte) {
						total := 0
						for _, nalu := range au {
							total += len(nalu)
						}
						onSample(total)
					})
				case *codecs.MPEG4Audio:
					client.OnDataMPEG4Audio(t, func(_ int64, aus [][]byte) {
						total := 0
						for _, au := range aus {
							total += len(au)
						}
						onSample(total)
					})
				case *codecs.Opus:
					client.OnDataOpus(t, func(_ int64, packets [][]byte) {
						total := 0
						for _, p := range packets {
							total += len(p)
						}
						onSample(total)
					})
				default:
					e.logger.Warnw("track with undecodable codec ignored", "codec", name)
				}
			}
			return nil
		},
	}

	if err := client.Start(); err != nil {
		handles.releaseAll()
		e.mu.Lock()
		e.handles = nil
		e.mu.Unlock()
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeEngineInit, "adaptive client failed to start")
	}
	handles.add("hls-client", func() error { client.Close(); return nil })

	// The watcher outlives the caller's context (an HTTP handler's request
	// context is canceled the moment the handler returns); teardown is the
	// only thing that cancels it.
	runCtx, cancel := context.WithCancel(context.Background())
	handles.add("watch-context", func() error { cancel(); return nil })

	go func() {
		select {
		case err := <-client.Wait():
			if runCtx.Err() != nil {
				return // torn down; the client error is a consequence, not a cause
			}
			if err != nil {
				onStatus(domain.StatusError, fmt.Sprintf("adaptive playback failed: %v", err))
			}
		case <-runCtx.Done():
		}
	}()

	return nil
}

func (e *hlsEngine) Teardown() error {
	e.mu.Lock()
	handles := e.handles
	e.handles = nil
	e.mu.Unlock()

	if handles != nil {
		handles.releaseAll()
	}
	return nil
}
