package engines

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// directProbeBytes is how much payload the direct engine reads before it
// declares the source playable.
const directProbeBytes = 4096

// directEngine assigns the URL straight to the output surface and verifies
// the source actually serves bytes. It backs the direct-file format and the
// native-support branch of the adaptive formats.
type directEngine struct {
	client *http.Client
	logger *zap.SugaredLogger

	mu      sync.Mutex
	handles *handleSet
}

func newDirectEngine(client *http.Client, logger *zap.SugaredLogger) ports.Engine {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &directEngine{client: client, logger: logger}
}

func (e *directEngine) Initialize(_ context.Context, url string, surface ports.Surface, onStatus ports.StatusFunc) error {
	e.mu.Lock()
	if e.handles != nil {
		e.mu.Unlock()
		return pkgerrors.New(pkgerrors.ErrCodeEngineInit, "engine already initialized")
	}
	handles := newHandleSet(e.logger)
	e.handles = handles
	e.mu.Unlock()

	// The probe outlives the caller's context (an HTTP handler's request
	// context is canceled the moment the handler returns); teardown is the
	// only thing that cancels it.
	runCtx, cancel := context.WithCancel(context.Background())
	handles.add("probe-context", func() error { cancel(); return nil })

	surface.SetSource(url)
	handles.add("surface-source", func() error { surface.ClearSource(); return nil })

	go e.probe(runCtx, url, surface, onStatus)
	return nil
}

func (e *directEngine) probe(ctx context.Context, url string, surface ports.Surface, onStatus ports.StatusFunc) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		onStatus(domain.StatusError, fmt.Sprintf("invalid source URL: %v", err))
		return
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return // torn down mid-flight
		}
		onStatus(domain.StatusError, fmt.Sprintf("source unreachable: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		onStatus(domain.StatusError, fmt.Sprintf("source responded %s", resp.Status))
		return
	}

	buf := make([]byte, directProbeBytes)
	n, err := io.ReadFull(resp.Body, buf)
	if n > 0 {
		surface.WriteSample("media", n)
	}
	if n == 0 {
		if ctx.Err() != nil {
			return
		}
		onStatus(domain.StatusError, fmt.Sprintf("source served no data: %v", err))
		return
	}

	e.logger.Infow("direct source playable", "url", url, "probed_bytes", n,
		"content_type", resp.Header.Get("Content-Type"))
	onStatus(domain.StatusSuccess, "")
}

func (e *directEngine) Teardown() error {
	e.mu.Lock()
	handles := e.handles
	e.handles = nil
	e.mu.Unlock()

	if handles != nil {
		handles.releaseAll()
	}
	return nil
}
