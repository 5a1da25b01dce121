package server

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/tmarais/backchannel/pkg/protocol"
)

// Sink delivers frames to one connected client. Implemented by the websocket
// and DAIDE transports; tests substitute an in-memory sink.
type Sink interface {
	SendResponse(*protocol.Response)
	SendNotification(*protocol.Notification)
}

// Session is one live connection. A session carries no identity of its own;
// identity lives in the channels (tokens) opened on it, which outlive the
// connection and can be reattached after a reconnect.
type Session struct {
	id   string
	sink Sink
}

// ID returns the session's connection id.
func (s *Session) ID() string { return s.id }

// channel binds a signed-in user to a token. The session pointer tracks which
// connection most recently used the token; it is nil while the user is
// disconnected and flips to the new session on reconnect.
type channel struct {
	token   string
	user    string
	session *Session
}

// newToken returns a 128-bit random token in hex.
func newToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails when the platform entropy source is broken,
		// at which point serving traffic is pointless anyway.
		panic("session: entropy source unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
