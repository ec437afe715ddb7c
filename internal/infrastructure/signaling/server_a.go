package signaling

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// serverACodec implements the session/handle dialect: a create and an attach
// exchange precede the offer, every later request is tagged with both
// negotiated ids, and the answer arrives embedded in an event's jsep field.
type serverACodec struct{}

func (a *serverACodec) handshake(ctx context.Context, c *Client) error {
	sessionID, err := a.roundTrip(ctx, c, serverARequest{
		Request:     serverAReqCreate,
		Transaction: uuid.NewString(),
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
	c.setState(StateSessionCreated)
	c.logger.Infow("signaling session created", "session_id", sessionID)

	handleID, err := a.roundTrip(ctx, c, serverARequest{
		Request:     serverAReqAttach,
		Transaction: uuid.NewString(),
		SessionID:   sessionID,
		Plugin:      serverAPlugin,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.handleID = handleID
	c.mu.Unlock()
	c.setState(StateAttached)
	c.logger.Infow("signaling handle attached", "session_id", sessionID, "handle_id", handleID)

	return nil
}

// roundTrip sends one request and waits for its success reply, returning the
// id the reply carries.
func (a *serverACodec) roundTrip(ctx context.Context, c *Client, req serverARequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	if err := c.ch.Send(ctx, payload); err != nil {
		return "", err
	}

	raw, err := c.ch.Recv(ctx)
	if err != nil {
		return "", err
	}

	var reply serverAReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingProtocol, "malformed "+req.Request+" reply")
	}
	if reply.Response != serverARespSuccess {
		return "", pkgerrors.Newf(pkgerrors.ErrCodeSignalingProtocol,
			"%s request rejected: got %q reply", req.Request, reply.Response)
	}
	if reply.Transaction != "" && reply.Transaction != req.Transaction {
		return "", pkgerrors.Newf(pkgerrors.ErrCodeSignalingProtocol,
			"%s reply carries mismatched transaction", req.Request)
	}
	if reply.Data == nil || reply.Data.ID == "" {
		return "", pkgerrors.Newf(pkgerrors.ErrCodeSignalingProtocol,
			"%s reply missing negotiated id", req.Request)
	}
	return reply.Data.ID, nil
}

func (a *serverACodec) sendOffer(ctx context.Context, c *Client, sdp string) error {
	payload, err := json.Marshal(serverARequest{
		Request:     serverAReqMessage,
		Transaction: uuid.NewString(),
		SessionID:   c.SessionID(),
		HandleID:    c.HandleID(),
		JSEP:        &jsep{Type: msgOffer, SDP: sdp},
	})
	if err != nil {
		return err
	}
	return c.ch.Send(ctx, payload)
}

func (a *serverACodec) sendCandidate(ctx context.Context, c *Client, cand webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(cand)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(serverARequest{
		Request:     serverAReqTrickle,
		Transaction: uuid.NewString(),
		SessionID:   c.SessionID(),
		HandleID:    c.HandleID(),
		Candidate:   raw,
	})
	if err != nil {
		return err
	}
	return c.ch.Send(ctx, payload)
}

func (a *serverACodec) handleMessage(c *Client, raw []byte) error {
	var reply serverAReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingProtocol, "malformed signaling message")
	}

	switch reply.Response {
	case serverARespEvent:
		if len(reply.Candidate) > 0 {
			return c.applyCandidate(reply.Candidate)
		}
		if reply.JSEP == nil {
			return pkgerrors.New(pkgerrors.ErrCodeSignalingProtocol, "event missing jsep")
		}
		if reply.JSEP.Type != msgAnswer {
			return pkgerrors.Newf(pkgerrors.ErrCodeSignalingProtocol,
				"event jsep has type %q, want answer", reply.JSEP.Type)
		}
		return c.applyAnswer(reply.JSEP.SDP)

	case serverARespSuccess:
		// Acknowledgement for an offer or trickle request; recognized, no-op.
		return nil

	case serverARespError:
		reason := reply.Error
		if reason == "" {
			reason = "server reported an unspecified error"
		}
		return pkgerrors.New(pkgerrors.ErrCodeSignalingProtocol, reason)

	default:
		return unexpectedMessage(DialectServerA, reply.Response)
	}
}
