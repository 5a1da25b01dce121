package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmarais/backchannel/internal/server"
	"github.com/tmarais/backchannel/pkg/daide"
	"github.com/tmarais/backchannel/pkg/engine"
	"github.com/tmarais/backchannel/pkg/protocol"
)

const daideMapName = "standard"

// DAIDEServer bridges the binary bot protocol onto the server core. Every
// accepted connection becomes a channel on one shared game; bot submissions
// are translated into the same requests the websocket dialect uses.
type DAIDEServer struct {
	srv    *server.Server
	log    zerolog.Logger
	gameID string

	mu        sync.Mutex
	passcodes map[int]string // passcode -> channel token, for IAM
	nextCode  int
}

// NewDAIDEServer creates a bridge hosting the given game id.
func NewDAIDEServer(srv *server.Server, gameID string, log zerolog.Logger) *DAIDEServer {
	return &DAIDEServer{
		srv:       srv,
		log:       log,
		gameID:    gameID,
		passcodes: make(map[int]string),
		nextCode:  1000,
	}
}

// ListenAndServe listens on addr and serves until the context is cancelled.
func (d *DAIDEServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("daide listen: %w", err)
	}
	return d.Serve(ctx, ln)
}

// Serve accepts connections from ln until the context is cancelled.
func (d *DAIDEServer) Serve(ctx context.Context, ln net.Listener) error {
	if err := d.srv.EnsureGame(d.gameID); err != nil {
		return fmt.Errorf("daide game: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	d.log.Info().Str("addr", ln.Addr().String()).Str("game", d.gameID).Msg("DAIDE listener started")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("daide accept: %w", err)
		}
		go d.handle(conn)
	}
}


// registerPasscode issues a reconnect passcode for a channel token.
func (d *DAIDEServer) registerPasscode(token string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextCode++
	d.passcodes[d.nextCode] = token
	return d.nextCode
}

func (d *DAIDEServer) tokenForPasscode(code int) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	token, ok := d.passcodes[code]
	return token, ok
}

// daideConn is one bot connection. The reader goroutine drives requests;
// notifications arrive through the Sink interface and share the write mutex.
type daideConn struct {
	d    *DAIDEServer
	conn net.Conn
	log  zerolog.Logger
	sess *server.Session

	writeMu sync.Mutex

	mu       sync.Mutex
	token    string
	power    engine.Power
	observer bool
	phase    string
	reqSeq   int
}

func (d *DAIDEServer) handle(conn net.Conn) {
	c := &daideConn{
		d:    d,
		conn: conn,
		log:  d.log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	defer conn.Close()

	typ, payload, err := daide.ReadFrame(conn)
	if err != nil {
		return
	}
	if typ != daide.FrameInitial {
		daide.WriteError(conn, daide.ErrNotInitial)
		return
	}
	if err := daide.CheckInitial(payload); err != nil {
		c.log.Warn().Err(err).Msg("DAIDE initial frame rejected")
		daide.WriteError(conn, daide.ErrVersion)
		return
	}
	if err := daide.WriteFrame(conn, daide.FrameRepresentation, daide.Representation()); err != nil {
		return
	}

	c.sess = d.srv.Connect(c)
	c.log = c.log.With().Str("session", c.sess.ID()).Logger()
	defer d.srv.Disconnect(c.sess)
	c.log.Info().Msg("DAIDE client connected")
	defer c.log.Info().Msg("DAIDE client disconnected")

	for {
		typ, payload, err := daide.ReadFrame(conn)
		if err != nil {
			return
		}
		switch typ {
		case daide.FrameDiplomacy:
			tokens, err := daide.BytesToTokens(payload)
			if err != nil {
				c.writeError(daide.ErrOddLength)
				return
			}
			c.handleMessage(tokens)
		case daide.FrameFinal:
			return
		case daide.FrameInitial:
			c.writeError(daide.ErrDuplicateIM)
			return
		default:
			c.writeError(daide.ErrBadType)
			return
		}
	}
}

// Sink.

// SendResponse is a no-op: the bridge dispatches synchronously and consumes
// the returned response directly.
func (c *daideConn) SendResponse(*protocol.Response) {}

func (c *daideConn) SendNotification(n *protocol.Notification) {
	switch n.Name {
	case protocol.NotifGameProcessed:
		var data protocol.GameProcessedData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return
		}
		c.setPhase(data.NewPhase)
		c.sendAdjudication(&data)
	case protocol.NotifGameStatusUpdate:
		var data protocol.GameStatusUpdateData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return
		}
		if data.Phase != "" {
			c.setPhase(data.Phase)
		}
		if data.Status == "active" {
			c.sendPosition()
		}
	case protocol.NotifClearedCenters:
		var data protocol.ClearedCentersData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return
		}
		if tok, err := daide.PowerToken(engine.Power(data.Power)); err == nil {
			c.writeTokens([]daide.Token{daide.OUT, daide.BRA, tok, daide.KET})
		}
	case protocol.NotifPressReceived:
		var data protocol.PressReceivedData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return
		}
		c.mu.Lock()
		me := c.power
		c.mu.Unlock()
		msg, err := daide.Press(daide.FRM, engine.Power(data.From), []engine.Power{me}, data.Body)
		if err == nil {
			c.writeTokens(msg)
		}
	}
}

// Message handling.

func (c *daideConn) handleMessage(tokens []daide.Token) {
	nodes, err := daide.Split(tokens)
	if err != nil || len(nodes) == 0 || nodes[0].IsGroup() {
		c.huh(tokens)
		return
	}
	switch nodes[0].Token {
	case daide.NME:
		c.handleName(tokens)
	case daide.OBS:
		c.handleObserve(tokens)
	case daide.IAM:
		c.handleReconnect(tokens, nodes)
	case daide.YES:
		// YES (MAP ...) completes the handshake.
		if len(nodes) == 2 && nodes[1].IsGroup() && nodes[1].First() == daide.MAP {
			c.handleMapAccepted()
			return
		}
	case daide.SUB:
		c.handleSubmit(tokens)
	case daide.GOF:
		c.handleWait(false, tokens)
	case daide.DRW:
		c.handleDraw(true, tokens)
	case daide.NOT:
		c.handleNegation(tokens, nodes)
	case daide.NOW:
		c.sendNow()
	case daide.SCO:
		c.sendSco()
	case daide.TME:
		c.sendTime()
	case daide.MIS:
		c.sendMissing()
	case daide.SND:
		c.handlePress(tokens)
	case daide.HUH:
		// The peer could not parse us; nothing useful to do.
	default:
		c.huh(tokens)
	}
}

func (c *daideConn) handleName(original []daide.Token) {
	// NME carries a client name and version; any guest may play.
	token := c.d.srv.OpenGuestChannel(c.sess, "daide-"+randomHex(4))
	resp := c.dispatch(&protocol.Request{
		Name:  protocol.ReqJoinGame,
		Token: token,
		Data:  mustJSON(protocol.JoinGameData{GameID: c.d.gameID, Role: protocol.RolePower}),
	})
	if resp.Err != nil {
		c.rej(original)
		return
	}
	var joined protocol.JoinGameResult
	if err := json.Unmarshal(resp.Data, &joined); err != nil {
		c.rej(original)
		return
	}

	c.mu.Lock()
	c.token = token
	c.power = engine.Power(joined.Power)
	c.phase = joined.Phase
	c.mu.Unlock()

	c.log.Info().Str("power", joined.Power).Msg("DAIDE client seated")
	c.yes(original)
	c.writeTokens(daide.MapName(daideMapName))
}

func (c *daideConn) handleObserve(original []daide.Token) {
	token := c.d.srv.OpenGuestChannel(c.sess, "daide-obs-"+randomHex(4))
	resp := c.dispatch(&protocol.Request{
		Name:  protocol.ReqJoinGame,
		Token: token,
		Data:  mustJSON(protocol.JoinGameData{GameID: c.d.gameID, Role: protocol.RoleObserver}),
	})
	if resp.Err != nil {
		c.rej(original)
		return
	}
	var joined protocol.JoinGameResult
	if err := json.Unmarshal(resp.Data, &joined); err != nil {
		c.rej(original)
		return
	}

	c.mu.Lock()
	c.token = token
	c.observer = true
	c.phase = joined.Phase
	c.mu.Unlock()

	c.yes(original)
	c.writeTokens(daide.MapName(daideMapName))
}

// handleReconnect handles IAM (power) (passcode): the bot re-adopts the
// channel its passcode names.
func (c *daideConn) handleReconnect(original []daide.Token, nodes []daide.Node) {
	if len(nodes) != 3 || !nodes[1].IsGroup() || !nodes[2].IsGroup() {
		c.huh(original)
		return
	}
	power, err := daide.TokenToPower(nodes[1].First())
	if err != nil || !nodes[2].First().IsInt() {
		c.huh(original)
		return
	}
	token, ok := c.d.tokenForPasscode(nodes[2].First().Int())
	if !ok {
		c.rej(original)
		return
	}

	// Any token-bearing request reattaches the channel to this session.
	resp := c.dispatch(&protocol.Request{
		Name:   protocol.ReqGetGame,
		Token:  token,
		GameID: c.d.gameID,
	})
	if resp.Err != nil {
		c.rej(original)
		return
	}
	var game protocol.GetGameResult
	if err := json.Unmarshal(resp.Data, &game); err != nil {
		c.rej(original)
		return
	}

	c.mu.Lock()
	c.token = token
	c.power = power
	c.phase = game.Phase
	c.mu.Unlock()

	c.yes(original)
	c.sendPosition()
}

// handleMapAccepted finishes the handshake after YES (MAP): the power
// assignment, the position, and the clock.
func (c *daideConn) handleMapAccepted() {
	c.mu.Lock()
	power, observer, token := c.power, c.observer, c.token
	c.mu.Unlock()
	if token == "" {
		return
	}
	if !observer {
		passcode := c.d.registerPasscode(token)
		if msg, err := daide.Hello(power, passcode, 0); err == nil {
			c.writeTokens(msg)
		}
	}
	c.sendPosition()
	c.sendTime()
}

func (c *daideConn) handleSubmit(original []daide.Token) {
	c.mu.Lock()
	power, phase, token := c.power, c.phase, c.token
	c.mu.Unlock()
	if token == "" || power == engine.Neutral {
		c.rej(original)
		return
	}

	orders, _, err := daide.DecodeSub(original)
	if err != nil {
		c.huh(original)
		return
	}
	texts := make([]string, 0, len(orders))
	for _, o := range orders {
		texts = append(texts, engine.FormatOrders([]engine.ParsedOrder{o}))
	}

	resp := c.dispatch(&protocol.Request{
		Name:           protocol.ReqSetOrders,
		Token:          token,
		GameID:         c.d.gameID,
		Phase:          phase,
		PhaseDependent: true,
		Data:           mustJSON(protocol.SetOrdersData{Power: string(power), Orders: texts}),
	})

	note := daide.MBV
	if resp.Err != nil {
		note = daide.NVR
	}
	gs := c.gameState()
	for _, o := range orders {
		ord, err := daide.EncodeOrder(o, power, gs)
		if err != nil {
			continue
		}
		thx := []daide.Token{daide.THX, daide.BRA}
		thx = append(thx, ord...)
		thx = append(thx, daide.KET, daide.BRA, note, daide.KET)
		c.writeTokens(thx)
	}
	c.sendMissing()
}

func (c *daideConn) handleWait(wait bool, original []daide.Token) {
	c.mu.Lock()
	power, phase, token := c.power, c.phase, c.token
	c.mu.Unlock()
	resp := c.dispatch(&protocol.Request{
		Name:           protocol.ReqSetWaitFlag,
		Token:          token,
		GameID:         c.d.gameID,
		Phase:          phase,
		PhaseDependent: true,
		Data:           mustJSON(protocol.SetWaitFlagData{Power: string(power), Wait: wait}),
	})
	if resp.Err != nil {
		c.rej(original)
		return
	}
	c.yes(original)
}

func (c *daideConn) handleDraw(draw bool, original []daide.Token) {
	c.mu.Lock()
	power, phase, token := c.power, c.phase, c.token
	c.mu.Unlock()
	resp := c.dispatch(&protocol.Request{
		Name:           protocol.ReqVote,
		Token:          token,
		GameID:         c.d.gameID,
		Phase:          phase,
		PhaseDependent: true,
		Data:           mustJSON(protocol.VoteData{Power: string(power), Draw: draw}),
	})
	if resp.Err != nil {
		c.rej(original)
		return
	}
	c.yes(original)
}

// handleNegation handles NOT (SUB), NOT (GOF), NOT (DRW).
func (c *daideConn) handleNegation(original []daide.Token, nodes []daide.Node) {
	if len(nodes) != 2 || !nodes[1].IsGroup() {
		c.huh(original)
		return
	}
	switch nodes[1].First() {
	case daide.SUB:
		c.mu.Lock()
		power, phase, token := c.power, c.phase, c.token
		c.mu.Unlock()
		resp := c.dispatch(&protocol.Request{
			Name:           protocol.ReqClearOrders,
			Token:          token,
			GameID:         c.d.gameID,
			Phase:          phase,
			PhaseDependent: true,
			Data:           mustJSON(protocol.ClearOrdersData{Power: string(power)}),
		})
		if resp.Err != nil {
			c.rej(original)
			return
		}
		c.yes(original)
	case daide.GOF:
		c.handleWait(true, original)
	case daide.DRW:
		c.handleDraw(false, original)
	default:
		c.huh(original)
	}
}

func (c *daideConn) handlePress(original []daide.Token) {
	c.mu.Lock()
	power, token := c.power, c.token
	c.mu.Unlock()
	_, to, body, err := daide.DecodePress(original)
	if err != nil {
		c.huh(original)
		return
	}
	recipients := make([]string, 0, len(to))
	for _, p := range to {
		recipients = append(recipients, string(p))
	}
	resp := c.dispatch(&protocol.Request{
		Name:   protocol.ReqSendPress,
		Token:  token,
		GameID: c.d.gameID,
		Data:   mustJSON(protocol.SendPressData{From: string(power), To: recipients, Body: body}),
	})
	if resp.Err != nil {
		c.rej(original)
		return
	}
	c.yes(original)
}

// Outgoing state messages.

// getGame fetches the recipient's view of the hosted game.
func (c *daideConn) getGame() *protocol.GetGameResult {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return nil
	}
	resp := c.dispatch(&protocol.Request{
		Name:   protocol.ReqGetGame,
		Token:  token,
		GameID: c.d.gameID,
	})
	if resp.Err != nil {
		return nil
	}
	var game protocol.GetGameResult
	if err := json.Unmarshal(resp.Data, &game); err != nil {
		return nil
	}
	c.setPhase(game.Phase)
	return &game
}

func (c *daideConn) gameState() *engine.GameState {
	if game := c.getGame(); game != nil {
		return &game.State
	}
	return nil
}

func (c *daideConn) sendPosition() {
	c.sendSco()
	c.sendNow()
}

func (c *daideConn) sendNow() {
	game := c.getGame()
	if game == nil {
		return
	}
	msg, err := daide.Now(&game.State, engine.StandardMap())
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to encode NOW")
		return
	}
	c.writeTokens(msg)
}

func (c *daideConn) sendSco() {
	game := c.getGame()
	if game == nil {
		return
	}
	msg, err := daide.Sco(&game.State)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to encode SCO")
		return
	}
	c.writeTokens(msg)
}

func (c *daideConn) sendTime() {
	game := c.getGame()
	if game == nil || game.DeadlineUnix == 0 {
		return
	}
	remaining := int(time.Until(time.Unix(game.DeadlineUnix, 0)) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	msg, err := daide.TimeMessage(remaining)
	if err != nil {
		return
	}
	c.writeTokens(msg)
}

// sendMissing reports the recipient's units that still lack orders.
func (c *daideConn) sendMissing() {
	c.mu.Lock()
	power := c.power
	c.mu.Unlock()
	game := c.getGame()
	if game == nil || power == engine.Neutral {
		return
	}

	ordered := make(map[string]bool)
	for _, text := range game.Orders[string(power)] {
		if parsed, err := engine.ParseOrders(text); err == nil && len(parsed) == 1 {
			ordered[parsed[0].Location] = true
		}
	}
	var missing []engine.Unit
	for _, u := range game.State.Units {
		if u.Power == power && !ordered[u.Province] {
			missing = append(missing, u)
		}
	}
	msg, err := daide.Missing(missing, 0)
	if err != nil {
		return
	}
	c.writeTokens(msg)
}

// sendAdjudication renders a processed phase as ORD messages followed by the
// new position.
func (c *daideConn) sendAdjudication(data *protocol.GameProcessedData) {
	year, season, pt, err := engine.PhaseName(data.Processed.Phase).Parse()
	if err != nil {
		return
	}
	gs := &data.Processed.State
	for powerName, texts := range data.Processed.Orders {
		power := engine.Power(powerName)
		for _, text := range texts {
			parsed, err := engine.ParseOrders(text)
			if err != nil || len(parsed) != 1 {
				continue
			}
			key := parsed[0].Location
			if parsed[0].Kind == engine.KindWaive {
				key = powerName
			}
			msg, err := daide.Ord(year, season, pt, parsed[0], power, gs, data.Processed.Results[key])
			if err != nil {
				continue
			}
			c.writeTokens(msg)
		}
	}

	if data.NewPhase == string(engine.PhaseCompleted) {
		if data.Winner != "" {
			if tok, err := daide.PowerToken(engine.Power(data.Winner)); err == nil {
				c.writeTokens([]daide.Token{daide.SLO, daide.BRA, tok, daide.KET})
			}
		} else if data.Draw {
			c.writeTokens([]daide.Token{daide.DRW})
		}
		return
	}
	c.sendPosition()
	c.sendTime()
}

// Replies.

func (c *daideConn) yes(original []daide.Token) { c.writeTokens(daide.Wrap(daide.YES, original)) }
func (c *daideConn) rej(original []daide.Token) { c.writeTokens(daide.Wrap(daide.REJ, original)) }
func (c *daideConn) huh(original []daide.Token) { c.writeTokens(daide.Wrap(daide.HUH, original)) }

// Plumbing.

func (c *daideConn) dispatch(req *protocol.Request) *protocol.Response {
	c.mu.Lock()
	c.reqSeq++
	req.RequestID = fmt.Sprintf("d%d", c.reqSeq)
	c.mu.Unlock()
	return c.d.srv.Dispatch(c.sess, req)
}

func (c *daideConn) setPhase(phase string) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()
}

func (c *daideConn) writeTokens(tokens []daide.Token) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := daide.WriteDiplomacy(c.conn, tokens); err != nil {
		c.log.Debug().Err(err).Msg("DAIDE write failed")
	}
}

func (c *daideConn) writeError(code uint16) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	daide.WriteError(c.conn, code)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("transport: entropy unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("transport: marshal request payload: " + err.Error())
	}
	return data
}
