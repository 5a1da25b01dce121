// Package transport exposes the server core over its two wire dialects: the
// JSON websocket protocol and the DAIDE binary TCP protocol.
package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tmarais/backchannel/internal/server"
	"github.com/tmarais/backchannel/pkg/protocol"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 1 << 20
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // tokens authenticate; the origin does not
	},
}

// WSHandler upgrades HTTP connections and pumps frames between the websocket
// and the server core.
type WSHandler struct {
	srv *server.Server
	log zerolog.Logger
}

// NewWSHandler creates a websocket handler for a server core.
func NewWSHandler(srv *server.Server, log zerolog.Logger) *WSHandler {
	return &WSHandler{srv: srv, log: log}
}

// wsConn is one upgraded connection. It implements server.Sink by marshalling
// frames into the buffered send channel drained by writePump.
type wsConn struct {
	conn *websocket.Conn
	log  zerolog.Logger
	send chan []byte
}

func (c *wsConn) SendResponse(resp *protocol.Response) {
	c.sendFrame(&protocol.Frame{Response: resp})
}

func (c *wsConn) SendNotification(n *protocol.Notification) {
	c.sendFrame(&protocol.Frame{Notification: n})
}

func (c *wsConn) sendFrame(f *protocol.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to marshal frame")
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn().Msg("Dropping frame, send buffer full")
	}
}

// ServeHTTP handles GET /ws, upgrading to a websocket session.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &wsConn{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	sess := h.srv.Connect(c)
	c.log = h.log.With().Str("session", sess.ID()).Logger()

	go h.writePump(c)
	go h.readPump(c, sess)

	c.log.Info().Str("remote", r.RemoteAddr).Msg("Websocket client connected")
}

// readPump decodes request frames and dispatches them. Requests run to
// completion in arrival order for this connection; responses and
// notifications go out through the send channel.
func (h *WSHandler) readPump(c *wsConn, sess *server.Session) {
	defer func() {
		h.srv.Disconnect(sess)
		c.conn.Close()
		c.log.Info().Msg("Websocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("Websocket unexpected close")
			}
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Request == nil {
			c.log.Warn().Msg("Discarding malformed frame")
			continue
		}
		c.SendResponse(h.srv.Dispatch(sess, frame.Request))
	}
}

// writePump drains the send channel into the connection and keeps the
// connection alive with pings.
func (h *WSHandler) writePump(c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
