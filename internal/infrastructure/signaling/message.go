package signaling

import "encoding/json"

// envelope is the wire shape shared by the generic and server B dialects.
// Candidate payloads stay raw until the dialect decides how to decode them.
type envelope struct {
	Type      string          `json:"type"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   string          `json:"message,omitempty"`
}

const (
	msgOffer     = "offer"
	msgAnswer    = "answer"
	msgICE       = "ice"       // generic dialect candidate envelope
	msgCandidate = "candidate" // server B flat candidate envelope
	msgError     = "error"
)

// jsep is the session-description attachment used by the server A dialect.
type jsep struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// serverARequest is a client→server message in the server A dialect. Every
// request carries a transaction id; offer and trickle requests additionally
// carry the negotiated session and handle ids.
type serverARequest struct {
	Request     string          `json:"request"`
	Transaction string          `json:"transaction"`
	SessionID   string          `json:"session_id,omitempty"`
	HandleID    string          `json:"handle_id,omitempty"`
	Plugin      string          `json:"plugin,omitempty"`
	JSEP        *jsep           `json:"jsep,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

// serverAReply is a server→client message in the server A dialect.
type serverAReply struct {
	Response    string `json:"response"`
	Transaction string `json:"transaction,omitempty"`
	Data        *struct {
		ID string `json:"id"`
	} `json:"data,omitempty"`
	JSEP      *jsep           `json:"jsep,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Error     string          `json:"error,omitempty"`
}

const (
	serverAReqCreate  = "create"
	serverAReqAttach  = "attach"
	serverAReqMessage = "message"
	serverAReqTrickle = "trickle"

	serverARespSuccess = "success"
	serverARespEvent   = "event"
	serverARespError   = "error"

	// serverAPlugin is the receiving plugin a watch session attaches to.
	serverAPlugin = "streaming"
)
