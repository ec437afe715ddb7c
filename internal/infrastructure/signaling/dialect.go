package signaling

import (
	"net/url"
	"strings"
)

// Dialect identifies the message-shape variant a signaling server speaks.
// All three dialects negotiate the same offer/answer exchange; they differ in
// framing and, for DialectServerA, in a session/handle handshake that
// precedes the offer.
type Dialect string

const (
	// DialectGeneric exchanges {type: offer|answer|ice} envelopes.
	DialectGeneric Dialect = "generic"
	// DialectServerA negotiates a session id and a plugin handle id before
	// the offer; the answer arrives inside an event's jsep field.
	DialectServerA Dialect = "server_a"
	// DialectServerB is DialectGeneric with a flat {type: candidate} shape.
	DialectServerB Dialect = "server_b"
)

// DetectDialect infers the signaling dialect from the server URL. An explicit
// `dialect` query parameter wins; otherwise well-known path markers decide,
// and unrecognized URLs get the generic dialect.
func DetectDialect(raw string) Dialect {
	u, err := url.Parse(raw)
	if err != nil {
		return DialectGeneric
	}

	switch u.Query().Get("dialect") {
	case string(DialectServerA):
		return DialectServerA
	case string(DialectServerB):
		return DialectServerB
	case string(DialectGeneric):
		return DialectGeneric
	}

	for _, segment := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		switch segment {
		case "janus":
			return DialectServerA
		case "webrtcstreamer":
			return DialectServerB
		}
	}
	return DialectGeneric
}
