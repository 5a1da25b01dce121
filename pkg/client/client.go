// Package client implements the JSON dialect's client side: request/response
// correlation over a framed transport, notification delivery, and the
// reconnection routine that resynchronizes observed games before replaying
// pending requests.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmarais/backchannel/pkg/protocol"
)

// Transport is one framed connection to the server. Receive blocks until a
// frame arrives or the connection fails.
type Transport interface {
	Send(*protocol.Frame) error
	Receive() (*protocol.Frame, error)
	Close() error
}

// Dialer opens a fresh transport; the client calls it again on reconnect.
type Dialer func(ctx context.Context) (Transport, error)

// State is the reconnection machine's phase.
type State int

const (
	StateConnected State = iota
	StateDraining        // dropping defunct syncs, collecting re-sends
	StateSyncing         // waiting for per-game synchronize replies
	StateCommitting      // failing stale requests, replaying the rest
	StateDone            // reconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateDraining:
		return "DRAINING"
	case StateSyncing:
		return "SYNCING"
	case StateCommitting:
		return "COMMITTING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const notifBufSize = 256

// syncTimeout bounds how long a reconnect waits for one game's synchronize
// reply before treating it as failed.
var syncTimeout = 10 * time.Second

// call is one in-flight request. The epoch records which transport it went
// out on, zero for none; calls not sent on the live transport are replayed
// by the reconnect routine.
type call struct {
	req   *protocol.Request
	done  chan *protocol.Response
	epoch int
}

// gameView is what the client knows about one observed game.
type gameView struct {
	phasesHeld int // count of PhaseData held; sent back as the sync cursor
	phase      string
}

// Client talks the JSON dialect. All exported methods are safe for concurrent
// use.
type Client struct {
	dial Dialer
	log  zerolog.Logger

	mu      sync.Mutex
	tr      Transport
	epoch   int
	state   State
	token   string
	seq     int
	pending map[string]*call
	games   map[string]*gameView
	closed  bool

	notifs      chan *protocol.Notification
	reconnected chan struct{}
}

// New creates a client. Connect must be called before use.
func New(dial Dialer, log zerolog.Logger) *Client {
	return &Client{
		dial:        dial,
		log:         log,
		pending:     make(map[string]*call),
		games:       make(map[string]*gameView),
		notifs:      make(chan *protocol.Notification, notifBufSize),
		reconnected: make(chan struct{}, 1),
	}
}

// Connect dials the first transport and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	tr, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.tr = tr
	c.epoch++
	c.state = StateConnected
	epoch := c.epoch
	c.mu.Unlock()
	go c.readLoop(tr, epoch)
	return nil
}

// Close shuts the client down; pending requests fail.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	tr := c.tr
	calls := c.takeAllPendingLocked()
	c.mu.Unlock()
	for _, cl := range calls {
		cl.done <- failFor(cl.req, protocol.NewError(protocol.ErrInternal, "client closed"))
	}
	if tr != nil {
		return tr.Close()
	}
	return nil
}

// Notifications returns the stream of server events. The channel is never
// closed; events are dropped when the consumer falls behind.
func (c *Client) Notifications() <-chan *protocol.Notification { return c.notifs }

// Reconnected signals each completed reconnection.
func (c *Client) Reconnected() <-chan struct{} { return c.reconnected }

// State returns the reconnection machine's current phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Token returns the channel token captured from sign-in.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Do sends one request and waits for its response. The envelope is completed
// from client state: request id, token, and for phase-dependent requests the
// game's current phase.
func (c *Client) Do(ctx context.Context, name, gameID string, payload any) (*protocol.Response, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, protocol.NewError(protocol.ErrInternal, "client closed")
	}
	c.seq++
	req := &protocol.Request{
		RequestID: fmt.Sprintf("c%d", c.seq),
		Name:      name,
		Token:     c.token,
		GameID:    gameID,
		Data:      data,
	}
	if protocol.PhaseDependent(name) {
		req.PhaseDependent = true
		if g := c.games[gameID]; g != nil {
			req.Phase = g.phase
		}
	}
	cl := &call{req: req, done: make(chan *protocol.Response, 1)}
	tr := c.tr
	if tr != nil {
		cl.epoch = c.epoch
	}
	c.pending[req.RequestID] = cl
	c.mu.Unlock()

	if tr != nil {
		if err := tr.Send(&protocol.Frame{Request: req}); err != nil {
			// The transport is dying; mark the call unsent so the
			// reconnect replays it.
			c.log.Debug().Err(err).Str("request", req.RequestID).Msg("Send failed, holding for replay")
			c.mu.Lock()
			cl.epoch = 0
			c.mu.Unlock()
		}
	}

	select {
	case resp := <-cl.done:
		c.consume(resp)
		if resp.Err != nil {
			return resp, resp.Err
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// consume captures client state carried by successful responses: the token
// from sign-in and the per-game sync cursor from synchronize and join.
func (c *Client) consume(resp *protocol.Response) {
	if resp.Err != nil {
		return
	}
	switch resp.Name {
	case protocol.ReqSignIn, protocol.ReqCreateUser:
		var data protocol.SignInResult
		if json.Unmarshal(resp.Data, &data) == nil {
			c.mu.Lock()
			c.token = data.Token
			c.mu.Unlock()
		}
	case protocol.ReqJoinGame:
		var data protocol.JoinGameResult
		if json.Unmarshal(resp.Data, &data) == nil {
			c.mu.Lock()
			c.games[data.GameID] = &gameView{phase: data.Phase}
			c.mu.Unlock()
		}
	case protocol.ReqSynchronize:
		var data protocol.SynchronizeResult
		if json.Unmarshal(resp.Data, &data) == nil {
			c.mu.Lock()
			c.games[data.GameID] = &gameView{phasesHeld: data.CurrentIndex, phase: data.CurrentPhase}
			c.mu.Unlock()
		}
	case protocol.ReqLeaveGame, protocol.ReqDeleteGame:
		// The caller names the game in the request; forget it on our side
		// lazily when notifications stop referencing it.
	}
}

// readLoop receives frames until the transport fails, then starts the
// reconnection routine. The epoch guards against a stale loop reconnecting
// over a newer transport.
func (c *Client) readLoop(tr Transport, epoch int) {
	for {
		frame, err := tr.Receive()
		if err != nil {
			c.mu.Lock()
			stale := c.closed || c.epoch != epoch
			c.mu.Unlock()
			if stale {
				return
			}
			c.log.Warn().Err(err).Msg("Transport lost, reconnecting")
			go c.reconnect(context.Background(), epoch)
			return
		}
		switch {
		case frame.Response != nil:
			c.deliver(frame.Response)
		case frame.Notification != nil:
			c.track(frame.Notification)
			select {
			case c.notifs <- frame.Notification:
			default:
				c.log.Warn().Str("notification", frame.Notification.Name).Msg("Dropping notification, consumer behind")
			}
		}
	}
}

// deliver routes a response to its pending call. Replies with no pending
// entry are late: their request already failed or completed.
func (c *Client) deliver(resp *protocol.Response) {
	c.mu.Lock()
	cl := c.pending[resp.RequestID]
	delete(c.pending, resp.RequestID)
	c.mu.Unlock()
	if cl == nil {
		c.log.Debug().Str("request", resp.RequestID).Str("name", resp.Name).Msg("Dropping late reply")
		return
	}
	cl.done <- resp
}

// track keeps the per-game cursor current from notifications so that the next
// synchronize asks only for what is missing.
func (c *Client) track(n *protocol.Notification) {
	switch n.Name {
	case protocol.NotifPhaseUpdate:
		var data protocol.PhaseUpdateData
		if json.Unmarshal(n.Data, &data) != nil {
			return
		}
		c.mu.Lock()
		if g := c.games[n.GameID]; g != nil {
			g.phase = data.Phase
			g.phasesHeld = data.PhaseIndex
		}
		c.mu.Unlock()
	case protocol.NotifGameProcessed:
		var data protocol.GameProcessedData
		if json.Unmarshal(n.Data, &data) != nil {
			return
		}
		c.mu.Lock()
		if g := c.games[n.GameID]; g != nil {
			g.phase = data.NewPhase
		}
		c.mu.Unlock()
	case protocol.NotifGameStatusUpdate:
		var data protocol.GameStatusUpdateData
		if json.Unmarshal(n.Data, &data) != nil {
			return
		}
		if data.Phase == "" {
			return
		}
		c.mu.Lock()
		if g := c.games[n.GameID]; g != nil {
			g.phase = data.Phase
		}
		c.mu.Unlock()
	}
}

func (c *Client) takeAllPendingLocked() []*call {
	calls := make([]*call, 0, len(c.pending))
	for _, cl := range c.pending {
		calls = append(calls, cl)
	}
	c.pending = make(map[string]*call)
	return calls
}

func failFor(req *protocol.Request, err *protocol.Error) *protocol.Response {
	return &protocol.Response{RequestID: req.RequestID, Name: req.Name, Err: err}
}
