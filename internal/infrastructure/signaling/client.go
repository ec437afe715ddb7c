package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/ports"
	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// State is the signaling session state. Connected and Failed are terminal.
type State string

const (
	StateConnecting     State = "connecting"
	StateSessionCreated State = "session_created" // server A only
	StateAttached       State = "attached"        // server A only
	StateOfferSent      State = "offer_sent"
	StateAnswerReceived State = "answer_received"
	StateConnected      State = "connected"
	StateFailed         State = "failed"
)

// PeerConnection is the slice of *webrtc.PeerConnection the signaling client
// needs. Narrowed for testability.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
}

// codec implements one signaling dialect's message shapes.
type codec interface {
	// handshake performs any pre-offer negotiation.
	handshake(ctx context.Context, c *Client) error
	sendOffer(ctx context.Context, c *Client, sdp string) error
	sendCandidate(ctx context.Context, c *Client, cand webrtc.ICECandidateInit) error
	// handleMessage processes one inbound message to completion. A returned
	// error is fatal for the session.
	handleMessage(c *Client, raw []byte) error
}

// Client drives the signaling handshake for one peer-to-peer session over a
// bidirectional channel. It is owned by the playback session that created it
// and torn down with it.
type Client struct {
	dialect          Dialect
	codec            codec
	ch               ports.SignalChannel
	pc               PeerConnection
	handshakeTimeout time.Duration
	logger           *zap.SugaredLogger

	mu         sync.Mutex
	state      State
	failReason string

	// server A dialect negotiation results
	sessionID string
	handleID  string
}

// NewClient builds a signaling client for the given dialect.
func NewClient(dialect Dialect, ch ports.SignalChannel, pc PeerConnection, handshakeTimeout time.Duration, logger *zap.SugaredLogger) *Client {
	c := &Client{
		dialect:          dialect,
		ch:               ch,
		pc:               pc,
		handshakeTimeout: handshakeTimeout,
		logger:           logger,
		state:            StateConnecting,
	}
	switch dialect {
	case DialectServerA:
		c.codec = &serverACodec{}
	case DialectServerB:
		c.codec = &genericCodec{candidateType: msgCandidate}
	default:
		c.codec = &genericCodec{candidateType: msgICE}
	}
	return c
}

// State returns the current signaling state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FailReason returns the captured diagnostic once the state is Failed.
func (c *Client) FailReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failReason
}

// SessionID returns the server-assigned session id (server A dialect).
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// HandleID returns the server-assigned handle id (server A dialect).
func (c *Client) HandleID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handleID
}

// MarkConnected records that the transport-layer connection reached its
// connected state. After this, channel closure is benign.
func (c *Client) MarkConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateFailed {
		c.state = StateConnected
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateFailed && c.state != StateConnected {
		c.state = s
	}
}

func (c *Client) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFailed {
		return err
	}
	c.state = StateFailed
	c.failReason = err.Error()
	return err
}

// Run executes the handshake and then pumps inbound messages until the
// context is cancelled, the channel closes, or a fatal protocol error
// occurs. Messages are processed one at a time to completion; no partial
// processing interleaves across messages that mutate peer-connection state.
//
// The handshake, through receipt of the answer, is bounded by the configured
// handshake timeout so that no unrecognized traffic can leave the session in
// Connecting indefinitely.
func (c *Client) Run(ctx context.Context) error {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return // gathering finished
		}
		if err := c.codec.sendCandidate(ctx, c, cand.ToJSON()); err != nil {
			c.logger.Warnw("failed to send local candidate", "dialect", c.dialect, "error", err)
		}
	})

	hctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	if err := c.codec.handshake(hctx, c); err != nil {
		return c.fail(c.classifyHandshakeErr(ctx, hctx, err))
	}

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return c.fail(pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingProtocol, "failed to create offer"))
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return c.fail(pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingProtocol, "failed to apply local description"))
	}
	if err := c.codec.sendOffer(hctx, c, offer.SDP); err != nil {
		return c.fail(pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingClosed, "failed to send offer"))
	}
	c.setState(StateOfferSent)
	c.logger.Infow("offer sent", "dialect", c.dialect, "sdp_length", len(offer.SDP))

	for {
		// The handshake deadline applies until the answer has been applied;
		// afterwards only caller cancellation bounds the pump.
		rctx := ctx
		if s := c.State(); s == StateConnecting || s == StateOfferSent ||
			s == StateSessionCreated || s == StateAttached {
			rctx = hctx
		}

		raw, err := c.ch.Recv(rctx)
		if err != nil {
			switch {
			case c.State() == StateConnected:
				return nil
			case ctx.Err() != nil:
				// Torn down by the owner; not a protocol failure.
				return ctx.Err()
			default:
				return c.fail(c.classifyHandshakeErr(ctx, hctx, err))
			}
		}

		if err := c.codec.handleMessage(c, raw); err != nil {
			return c.fail(err)
		}
	}
}

func (c *Client) classifyHandshakeErr(ctx, hctx context.Context, err error) error {
	if ctx.Err() == nil && hctx.Err() != nil {
		return pkgerrors.Newf(pkgerrors.ErrCodeTimeout,
			"signaling handshake timed out after %s", c.handshakeTimeout)
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingClosed,
		"signaling channel closed before connection")
}

// applyAnswer applies a remote answer SDP and advances the state machine.
func (c *Client) applyAnswer(sdp string) error {
	if sdp == "" {
		return pkgerrors.New(pkgerrors.ErrCodeSignalingProtocol, "answer carries empty sdp")
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingProtocol, "failed to apply remote answer")
	}
	c.setState(StateAnswerReceived)
	c.logger.Infow("answer applied", "dialect", c.dialect)
	return nil
}

// applyCandidate decodes and applies a remote ICE candidate. Servers send
// either a full candidate object or a bare candidate string.
func (c *Client) applyCandidate(raw json.RawMessage) error {
	if len(raw) == 0 {
		return pkgerrors.New(pkgerrors.ErrCodeSignalingProtocol, "candidate message missing candidate field")
	}

	var init webrtc.ICECandidateInit
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingProtocol, "malformed candidate string")
		}
		init.Candidate = s
	} else {
		if err := json.Unmarshal(raw, &init); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingProtocol, "malformed candidate object")
		}
	}

	if err := c.pc.AddICECandidate(init); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingProtocol, "failed to add remote candidate")
	}
	return nil
}

func unexpectedMessage(dialect Dialect, kind string) error {
	return pkgerrors.New(pkgerrors.ErrCodeSignalingProtocol,
		fmt.Sprintf("unexpected %s message in %s dialect", kind, dialect))
}
