package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/repositories/memory"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/surface"
	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// fakeEngine records lifecycle calls and lets the test drive status
// transitions through the captured callback.
type fakeEngine struct {
	mu            sync.Mutex
	initErr       error
	initialized   int
	tornDown      int
	url           string
	onStatus      ports.StatusFunc
	teardownBlock chan struct{} // when set, Teardown waits on it
}

func (e *fakeEngine) Initialize(_ context.Context, url string, _ ports.Surface, onStatus ports.StatusFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initErr != nil {
		return e.initErr
	}
	e.initialized++
	e.url = url
	e.onStatus = onStatus
	return nil
}

func (e *fakeEngine) Teardown() error {
	e.mu.Lock()
	block := e.teardownBlock
	e.mu.Unlock()
	if block != nil {
		<-block
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tornDown++
	return nil
}

func (e *fakeEngine) fire(status domain.SessionStatus, reason string) {
	e.mu.Lock()
	cb := e.onStatus
	e.mu.Unlock()
	cb(status, reason)
}

func (e *fakeEngine) stats() (initialized, tornDown int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized, e.tornDown
}

// fakeRegistry hands out the queued engines in order.
type fakeRegistry struct {
	mu      sync.Mutex
	engines []*fakeEngine
	next    int
}

func (r *fakeRegistry) EngineFor(domain.StreamFormat) (ports.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.engines) {
		r.engines = append(r.engines, &fakeEngine{})
	}
	e := r.engines[r.next]
	r.next++
	return e, nil
}

func (r *fakeRegistry) Capabilities() domain.RuntimeCapabilities {
	return domain.DefaultCapabilities()
}

func newTestService(t *testing.T, registry *fakeRegistry) (*PlaybackSessionService, *memory.ResultRepository) {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	results := memory.NewResultRepository(domain.ResultLogSize)
	svc := NewPlaybackSessionService(registry, surface.New(logger), results, nil, 50*time.Millisecond, time.Second, logger)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, results
}

func hlsTarget() domain.StreamTarget {
	return domain.NewStreamTarget(domain.FormatHLS, "https://example.com/live.m3u8", nil)
}

func awaitStatus(t *testing.T, svc *PlaybackSessionService, want domain.SessionStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := svc.Status(); got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := svc.Status()
	t.Fatalf("status never became %s, last seen %s", want, got)
}

func TestSessionStartToSuccess(t *testing.T) {
	engine := &fakeEngine{}
	registry := &fakeRegistry{engines: []*fakeEngine{engine}}
	svc, results := newTestService(t, registry)

	id, err := svc.Start(context.Background(), hlsTarget())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status, target := svc.Status()
	assert.Equal(t, domain.StatusLoading, status)
	assert.Equal(t, domain.FormatHLS, target.Format)
	assert.Equal(t, domain.StateInitializing, svc.State())

	engine.fire(domain.StatusSuccess, "")
	awaitStatus(t, svc, domain.StatusSuccess)
	assert.Equal(t, domain.StateActive, svc.State())

	records, err := results.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, domain.StatusSuccess, records[0].Status)
}

func TestSessionStartThenStopLeavesOneFinalizedRecord(t *testing.T) {
	registry := &fakeRegistry{}
	svc, results := newTestService(t, registry)

	id, err := svc.Start(context.Background(), hlsTarget())
	require.NoError(t, err)
	require.NoError(t, svc.Stop(context.Background()))

	status, _ := svc.Status()
	assert.Equal(t, domain.StatusNotTested, status)
	assert.Equal(t, domain.StateIdle, svc.State())

	records, err := results.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, domain.StatusError, records[0].Status)
	assert.Contains(t, records[0].Reason, "stopped")

	_, tornDown := registry.engines[0].stats()
	assert.Equal(t, 1, tornDown)
}

func TestSessionSupersededCompletionIsDiscarded(t *testing.T) {
	first := &fakeEngine{}
	second := &fakeEngine{}
	registry := &fakeRegistry{engines: []*fakeEngine{first, second}}
	svc, results := newTestService(t, registry)

	_, err := svc.Start(context.Background(), hlsTarget())
	require.NoError(t, err)

	secondTarget := domain.NewStreamTarget(domain.FormatFile, "https://example.com/clip.mp4", nil)
	secondID, err := svc.Start(context.Background(), secondTarget)
	require.NoError(t, err)

	// Old engine must be gone before the new one initialized.
	_, tornDown := first.stats()
	assert.Equal(t, 1, tornDown)

	// A completion from the superseded session must not leak into the new one.
	first.fire(domain.StatusSuccess, "")
	status, target := svc.Status()
	assert.Equal(t, domain.StatusLoading, status)
	assert.Equal(t, domain.FormatFile, target.Format)

	second.fire(domain.StatusSuccess, "")
	awaitStatus(t, svc, domain.StatusSuccess)

	records, err := results.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, secondID, records[0].ID)
	assert.Equal(t, domain.StatusSuccess, records[0].Status)
	assert.Equal(t, domain.StatusError, records[1].Status, "superseded test finalized as error")
}

// slowRegistry parks the first EngineFor call until the test releases it.
type slowRegistry struct {
	*fakeRegistry
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *slowRegistry) EngineFor(format domain.StreamFormat) (ports.Engine, error) {
	blocked := false
	r.once.Do(func() { blocked = true })
	if blocked {
		close(r.entered)
		<-r.release
	}
	return r.fakeRegistry.EngineFor(format)
}

func TestSessionStaleStartLeavesNewerSessionIntact(t *testing.T) {
	inner := &fakeRegistry{}
	registry := &slowRegistry{
		fakeRegistry: inner,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	logger := zaptest.NewLogger(t).Sugar()
	results := memory.NewResultRepository(domain.ResultLogSize)
	svc := NewPlaybackSessionService(registry, surface.New(logger), results, nil, 50*time.Millisecond, time.Second, logger)
	t.Cleanup(func() { _ = svc.Close() })

	staleErr := make(chan error, 1)
	go func() {
		_, err := svc.Start(context.Background(), hlsTarget())
		staleErr <- err
	}()
	<-registry.entered // the first start is parked inside the registry

	newerID, err := svc.Start(context.Background(), domain.NewStreamTarget(domain.FormatFile, "https://example.com/clip.mp4", nil))
	require.NoError(t, err)

	close(registry.release)
	require.ErrorIs(t, <-staleErr, domain.ErrSessionSuperseded)

	// The stale start's cleanup must not touch the newer session.
	status, target := svc.Status()
	assert.Equal(t, domain.StatusLoading, status)
	assert.Equal(t, domain.FormatFile, target.Format)

	live := inner.engines[0] // the newer start claimed an engine first
	initialized, tornDown := live.stats()
	assert.Equal(t, 1, initialized)
	assert.Equal(t, 0, tornDown)

	live.fire(domain.StatusSuccess, "")
	awaitStatus(t, svc, domain.StatusSuccess)

	records, err := results.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1, "the stale start must not leave a record")
	assert.Equal(t, newerID, records[0].ID)
	assert.Equal(t, domain.StatusSuccess, records[0].Status)
}

func TestSessionSynchronousInitFailure(t *testing.T) {
	engine := &fakeEngine{initErr: pkgerrors.Unsupported("srt")}
	registry := &fakeRegistry{engines: []*fakeEngine{engine}}
	svc, results := newTestService(t, registry)

	id, err := svc.Start(context.Background(), domain.NewStreamTarget(domain.FormatSRT, "srt://example.com:9000", nil))
	require.NoError(t, err, "a failed test is an outcome, not a service error")

	awaitStatus(t, svc, domain.StatusError)
	assert.Equal(t, domain.StateIdle, svc.State())

	records, err := results.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, domain.StatusError, records[0].Status)
	assert.Contains(t, records[0].Reason, "unsupported")
}

func TestSessionStopBoundsStuckTeardown(t *testing.T) {
	block := make(chan struct{})
	engine := &fakeEngine{teardownBlock: block}
	registry := &fakeRegistry{engines: []*fakeEngine{engine}}
	logger := zaptest.NewLogger(t).Sugar()
	results := memory.NewResultRepository(domain.ResultLogSize)
	svc := NewPlaybackSessionService(registry, surface.New(logger), results, nil, 50*time.Millisecond, 50*time.Millisecond, logger)
	t.Cleanup(func() {
		close(block)
		_ = svc.Close()
	})

	_, err := svc.Start(context.Background(), hlsTarget())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = svc.Stop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop never returned despite the teardown bound")
	}
	assert.Equal(t, domain.StateIdle, svc.State())
	status, _ := svc.Status()
	assert.Equal(t, domain.StatusNotTested, status)
}

func TestSessionDebounceCoalescesRapidStarts(t *testing.T) {
	registry := &fakeRegistry{}
	svc, _ := newTestService(t, registry)

	for _, url := range []string{"https://a/live.m3u8", "https://b/live.m3u8", "https://c/live.m3u8"} {
		svc.StartDebounced(domain.NewStreamTarget(domain.FormatHLS, url, nil))
		time.Sleep(5 * time.Millisecond)
	}

	awaitStatus(t, svc, domain.StatusLoading)

	registry.mu.Lock()
	started := registry.next
	registry.mu.Unlock()
	assert.Equal(t, 1, started, "rapid starts must collapse into one initialize")

	engine := registry.engines[0]
	engine.mu.Lock()
	url := engine.url
	engine.mu.Unlock()
	assert.Equal(t, "https://c/live.m3u8", url, "the last requested target wins")
}

func TestSessionErrorInvokesHook(t *testing.T) {
	engine := &fakeEngine{}
	registry := &fakeRegistry{engines: []*fakeEngine{engine}}
	svc, _ := newTestService(t, registry)

	hooked := make(chan domain.StreamTarget, 1)
	svc.SetErrorHook(func(_ context.Context, target domain.StreamTarget) {
		hooked <- target
	})

	target := domain.NewStreamTarget(domain.FormatHLS, "https://example.com/live.m3u8", []string{"https://backup/live.m3u8"})
	_, err := svc.Start(context.Background(), target)
	require.NoError(t, err)

	engine.fire(domain.StatusError, "source unreachable")

	select {
	case got := <-hooked:
		assert.True(t, got.OnPrimary())
		assert.Equal(t, target.PrimaryURL, got.PrimaryURL)
	case <-time.After(2 * time.Second):
		t.Fatal("error hook never invoked")
	}
}

func TestSessionUnsupportedErrorSkipsHook(t *testing.T) {
	engine := &fakeEngine{initErr: pkgerrors.Unsupported("rtsp")}
	registry := &fakeRegistry{engines: []*fakeEngine{engine}}
	svc, _ := newTestService(t, registry)

	hooked := make(chan struct{}, 1)
	svc.SetErrorHook(func(context.Context, domain.StreamTarget) {
		hooked <- struct{}{}
	})

	_, err := svc.Start(context.Background(), domain.NewStreamTarget(domain.FormatRTSP, "rtsp://example.com/live", []string{"rtsp://backup/live"}))
	require.NoError(t, err)
	awaitStatus(t, svc, domain.StatusError)

	select {
	case <-hooked:
		t.Fatal("capability gaps must not trigger URL fallback")
	case <-time.After(100 * time.Millisecond):
	}
}
