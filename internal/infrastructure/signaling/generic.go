package signaling

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v3"

	pkgerrors "github.com/wingskh/live-stream-tester/pkg/errors"
)

// genericCodec implements the generic dialect and, with candidateType set to
// msgCandidate, the server B dialect. The two differ only in the envelope
// used for ICE candidates.
type genericCodec struct {
	candidateType string
}

func (g *genericCodec) dialect() Dialect {
	if g.candidateType == msgCandidate {
		return DialectServerB
	}
	return DialectGeneric
}

func (g *genericCodec) handshake(ctx context.Context, c *Client) error {
	// No pre-offer negotiation in these dialects.
	return nil
}

func (g *genericCodec) sendOffer(ctx context.Context, c *Client, sdp string) error {
	payload, err := json.Marshal(envelope{Type: msgOffer, SDP: sdp})
	if err != nil {
		return err
	}
	return c.ch.Send(ctx, payload)
}

func (g *genericCodec) sendCandidate(ctx context.Context, c *Client, cand webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(cand)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{Type: g.candidateType, Candidate: raw})
	if err != nil {
		return err
	}
	return c.ch.Send(ctx, payload)
}

func (g *genericCodec) handleMessage(c *Client, raw []byte) error {
	var msg envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeSignalingProtocol, "malformed signaling message")
	}

	switch msg.Type {
	case msgAnswer:
		return c.applyAnswer(msg.SDP)

	case g.candidateType:
		return c.applyCandidate(msg.Candidate)

	case msgError:
		reason := msg.Message
		if reason == "" {
			reason = "server reported an unspecified error"
		}
		return pkgerrors.New(pkgerrors.ErrCodeSignalingProtocol, reason)

	default:
		return unexpectedMessage(g.dialect(), msg.Type)
	}
}
