package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

var errChannelBroken = errors.New("broken pipe")

// fakeChannel is an in-memory SignalChannel for driving the state machine.
type fakeChannel struct {
	in     chan []byte // server -> client
	out    chan []byte // client -> server
	closed chan struct{}
	once   sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeChannel) Send(ctx context.Context, payload []byte) error {
	select {
	case <-f.closed:
		return errChannelBroken
	case f.out <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeChannel) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-f.in:
		return msg, nil
	case <-f.closed:
		return nil, errChannelBroken
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeChannel) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeChannel) serverSend(t *testing.T, v interface{}) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	f.in <- payload
}

func (f *fakeChannel) awaitClientMessage(t *testing.T) []byte {
	t.Helper()
	select {
	case msg := <-f.out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client message")
		return nil
	}
}

// fakePC satisfies PeerConnection without any network activity.
type fakePC struct {
	mu          sync.Mutex
	remoteSDP   string
	candidates  []webrtc.ICECandidateInit
	onCandidate func(*webrtc.ICECandidate)
}

func (p *fakePC) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\no=- 0 0 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0\r\n"}, nil
}

func (p *fakePC) SetLocalDescription(webrtc.SessionDescription) error { return nil }

func (p *fakePC) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteSDP = desc.SDP
	return nil
}

func (p *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePC) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = f
}

func (p *fakePC) candidateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.candidates)
}

func (p *fakePC) fireCandidate(c *webrtc.ICECandidate) {
	p.mu.Lock()
	f := p.onCandidate
	p.mu.Unlock()
	if f != nil {
		f(c)
	}
}

func newTestClient(t *testing.T, dialect Dialect, ch *fakeChannel, pc *fakePC, timeout time.Duration) *Client {
	t.Helper()
	return NewClient(dialect, ch, pc, timeout, zaptest.NewLogger(t).Sugar())
}

func runClient(ctx context.Context, c *Client) chan error {
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return done
}

const answerSDP = "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0\r\n"

func TestGenericDialect_AnswerAndCandidates(t *testing.T) {
	ch := newFakeChannel()
	pc := &fakePC{}
	c := newTestClient(t, DialectGeneric, ch, pc, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runClient(ctx, c)

	var offer envelope
	require.NoError(t, json.Unmarshal(ch.awaitClientMessage(t), &offer))
	assert.Equal(t, msgOffer, offer.Type)
	assert.NotEmpty(t, offer.SDP)
	assert.Equal(t, StateOfferSent, c.State())

	ch.serverSend(t, envelope{Type: msgAnswer, SDP: answerSDP})
	ch.serverSend(t, map[string]interface{}{
		"type":      msgICE,
		"candidate": map[string]interface{}{"candidate": "candidate:1 1 udp 1 10.0.0.1 5000 typ host"},
	})

	require.Eventually(t, func() bool { return pc.candidateCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, StateAnswerReceived, c.State())

	c.MarkConnected()
	ch.Close()
	require.NoError(t, <-done)
	assert.Equal(t, StateConnected, c.State())
}

func TestGenericDialect_UnexpectedMessageFails(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, DialectGeneric, ch, &fakePC{}, 5*time.Second)

	done := runClient(context.Background(), c)
	ch.awaitClientMessage(t)

	// The flat candidate shape belongs to another dialect.
	ch.serverSend(t, envelope{Type: msgCandidate})

	err := <-done
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCodeSignalingProtocol, pkgerrors.CodeOf(err))
	assert.Equal(t, StateFailed, c.State())
	assert.Contains(t, c.FailReason(), "unexpected")
}

func TestServerBDialect_FlatCandidate(t *testing.T) {
	ch := newFakeChannel()
	pc := &fakePC{}
	c := newTestClient(t, DialectServerB, ch, pc, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runClient(ctx, c)
	ch.awaitClientMessage(t)

	ch.serverSend(t, envelope{Type: msgAnswer, SDP: answerSDP})
	// Bare-string candidate in the flat shape.
	ch.serverSend(t, map[string]interface{}{
		"type":      msgCandidate,
		"candidate": "candidate:2 1 udp 1 10.0.0.2 5002 typ host",
	})

	require.Eventually(t, func() bool { return pc.candidateCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "candidate:2 1 udp 1 10.0.0.2 5002 typ host", pc.candidates[0].Candidate)

	c.MarkConnected()
	ch.Close()
	require.NoError(t, <-done)
}

func TestServerADialect_FullHandshake(t *testing.T) {
	ch := newFakeChannel()
	pc := &fakePC{}
	c := newTestClient(t, DialectServerA, ch, pc, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runClient(ctx, c)

	// create -> session id
	var create serverARequest
	require.NoError(t, json.Unmarshal(ch.awaitClientMessage(t), &create))
	require.Equal(t, serverAReqCreate, create.Request)
	require.NotEmpty(t, create.Transaction)
	ch.serverSend(t, map[string]interface{}{
		"response":    serverARespSuccess,
		"transaction": create.Transaction,
		"data":        map[string]string{"id": "sess-42"},
	})

	// attach -> handle id, scoped to the receiving plugin
	var attach serverARequest
	require.NoError(t, json.Unmarshal(ch.awaitClientMessage(t), &attach))
	require.Equal(t, serverAReqAttach, attach.Request)
	assert.Equal(t, "sess-42", attach.SessionID)
	assert.Equal(t, serverAPlugin, attach.Plugin)
	ch.serverSend(t, map[string]interface{}{
		"response":    serverARespSuccess,
		"transaction": attach.Transaction,
		"data":        map[string]string{"id": "handle-7"},
	})

	// offer tagged with both ids
	var offer serverARequest
	require.NoError(t, json.Unmarshal(ch.awaitClientMessage(t), &offer))
	require.Equal(t, serverAReqMessage, offer.Request)
	assert.Equal(t, "sess-42", offer.SessionID)
	assert.Equal(t, "handle-7", offer.HandleID)
	require.NotNil(t, offer.JSEP)
	assert.Equal(t, msgOffer, offer.JSEP.Type)

	// answer embedded in an event's jsep field
	ch.serverSend(t, map[string]interface{}{
		"response": serverARespEvent,
		"jsep":     map[string]string{"type": "answer", "sdp": answerSDP},
	})
	require.Eventually(t, func() bool { return c.State() == StateAnswerReceived }, time.Second, 10*time.Millisecond)

	// local candidates go out as trickle requests carrying the same ids
	pc.fireCandidate(&webrtc.ICECandidate{Foundation: "1", Protocol: webrtc.ICEProtocolUDP})
	var trickle serverARequest
	require.NoError(t, json.Unmarshal(ch.awaitClientMessage(t), &trickle))
	assert.Equal(t, serverAReqTrickle, trickle.Request)
	assert.Equal(t, "sess-42", trickle.SessionID)
	assert.Equal(t, "handle-7", trickle.HandleID)

	c.MarkConnected()
	ch.Close()
	require.NoError(t, <-done)
}

func TestServerADialect_EventMissingJSEPFails(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, DialectServerA, ch, &fakePC{}, 5*time.Second)
	done := runClient(context.Background(), c)

	var create serverARequest
	require.NoError(t, json.Unmarshal(ch.awaitClientMessage(t), &create))
	ch.serverSend(t, map[string]interface{}{
		"response":    serverARespSuccess,
		"transaction": create.Transaction,
		"data":        map[string]string{"id": "sess-1"},
	})
	require.Eventually(t, func() bool { return c.State() == StateSessionCreated }, time.Second, 10*time.Millisecond)

	var attach serverARequest
	require.NoError(t, json.Unmarshal(ch.awaitClientMessage(t), &attach))
	ch.serverSend(t, map[string]interface{}{
		"response":    serverARespSuccess,
		"transaction": attach.Transaction,
		"data":        map[string]string{"id": "handle-1"},
	})
	ch.awaitClientMessage(t) // offer

	// Malformed event: no jsep attachment.
	ch.serverSend(t, map[string]interface{}{"response": serverARespEvent})

	err := <-done
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCodeSignalingProtocol, pkgerrors.CodeOf(err))
	assert.Equal(t, StateFailed, c.State())
	assert.Contains(t, c.FailReason(), "jsep")
}

func TestServerADialect_CreateRejected(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, DialectServerA, ch, &fakePC{}, 5*time.Second)
	done := runClient(context.Background(), c)

	ch.awaitClientMessage(t)
	ch.serverSend(t, map[string]interface{}{"response": serverARespError, "error": "no session slots"})

	err := <-done
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State())
}

func TestHandshakeTimeout(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, DialectGeneric, ch, &fakePC{}, 60*time.Millisecond)

	done := runClient(context.Background(), c)
	ch.awaitClientMessage(t) // offer goes out, then the server stays silent

	err := <-done
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCodeTimeout, pkgerrors.CodeOf(err))
	assert.Equal(t, StateFailed, c.State())
}

func TestChannelClosedBeforeConnectedFails(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, DialectGeneric, ch, &fakePC{}, 5*time.Second)

	done := runClient(context.Background(), c)
	ch.awaitClientMessage(t)
	ch.Close()

	err := <-done
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCodeSignalingClosed, pkgerrors.CodeOf(err))
	assert.Equal(t, StateFailed, c.State())
}

func TestStopDuringHandshakeIsNotAFailure(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(t, DialectGeneric, ch, &fakePC{}, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := runClient(ctx, c)
	ch.awaitClientMessage(t)
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, StateFailed, c.State())
}

func TestDetectDialect(t *testing.T) {
	tests := []struct {
		url  string
		want Dialect
	}{
		{"wss://sig.example.com/ws", DialectGeneric},
		{"wss://sig.example.com/janus", DialectServerA},
		{"https://sig.example.com/janus/ws", DialectServerA},
		{"wss://sig.example.com/webrtcstreamer/ws", DialectServerB},
		{"wss://sig.example.com/ws?dialect=server_b", DialectServerB},
		{"wss://sig.example.com/janus?dialect=generic", DialectGeneric},
		{"://bad url", DialectGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDialect(tt.url))
		})
	}
}
