package server

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tmarais/backchannel/internal/store"
	"github.com/tmarais/backchannel/pkg/engine"
	"github.com/tmarais/backchannel/pkg/protocol"
)

// seat is one power's slot in a game.
type seat struct {
	power         engine.Power
	controller    string // username, empty when vacant
	civilDisorder bool
	drawVote      bool
	eliminated    bool
	wait          bool
	orders        []string // canonical text notation, current phase
}

// watcher is one channel's membership in a game.
type watcher struct {
	token string
	user  string
	role  string
	power engine.Power // set when role is "power"
}

// Game owns all mutable state of one game. Every mutation and read runs as a
// task on the game's queue goroutine, so the fields below the tasks channel
// need no locking.
type Game struct {
	srv *Server
	log zerolog.Logger

	id    string
	tasks chan func()
	done  chan struct{}

	// Owned by the run goroutine.
	phase       engine.PhaseName
	state       *engine.GameState
	rules       engine.RuleSet
	board       *engine.Map
	seats       map[engine.Power]*seat
	watchers    map[string]*watcher // keyed by channel token
	history     []protocol.PhaseData
	deadline    time.Time
	deadlineLen map[engine.PhaseType]time.Duration
	regPass     string
	observers   map[string]bool // usernames, persisted
	omniscient  map[string]bool
	winner      engine.Power
	draw        bool
	quarantined bool
	dirty       bool
	resolver    *engine.Resolver
}

// mutatingRequests are rejected once a game is COMPLETED or quarantined.
var mutatingRequests = map[string]bool{
	protocol.ReqJoinGame:    true,
	protocol.ReqSetOrders:   true,
	protocol.ReqClearOrders: true,
	protocol.ReqSetWaitFlag: true,
	protocol.ReqVote:        true,
	protocol.ReqProcessGame: true,
	protocol.ReqSetDeadline: true,
	protocol.ReqSendPress:   true,
}

func newGame(srv *Server, id string, data *protocol.CreateGameData) *Game {
	g := baseGame(srv, id)
	g.phase = engine.PhaseForming
	g.state = engine.NewInitialState(g.board)
	g.rules = engine.NewRuleSet(data.Rules...)
	g.regPass = data.RegistrationPassword
	for pt, secs := range data.DeadlineSeconds {
		g.deadlineLen[engine.PhaseType(pt)] = time.Duration(secs) * time.Second
	}
	for _, p := range engine.AllPowers() {
		g.seats[p] = &seat{power: p}
	}
	g.dirty = true
	return g
}

func gameFromSnapshot(srv *Server, snap *store.GameSnapshot) *Game {
	g := baseGame(srv, snap.GameID)
	g.phase = engine.PhaseName(snap.Phase)
	st := snap.State
	g.state = &st
	g.rules = engine.NewRuleSet(snap.Rules...)
	g.regPass = snap.RegistrationPassword
	g.history = snap.History
	g.winner = engine.Power(snap.Winner)
	g.draw = snap.Draw
	if snap.DeadlineUnix > 0 {
		g.deadline = time.Unix(snap.DeadlineUnix, 0)
	}
	for pt, secs := range snap.DeadlineSeconds {
		g.deadlineLen[engine.PhaseType(pt)] = time.Duration(secs) * time.Second
	}
	for _, p := range engine.AllPowers() {
		g.seats[p] = &seat{power: p}
	}
	for _, pr := range snap.Powers {
		s, ok := g.seats[engine.Power(pr.Name)]
		if !ok {
			continue
		}
		s.controller = pr.Controller
		s.civilDisorder = pr.CivilDisorder
		s.drawVote = pr.DrawVote
		s.eliminated = pr.Eliminated
		s.wait = pr.Wait
		s.orders = pr.Orders
	}
	for _, u := range snap.Observers {
		g.observers[u] = true
	}
	for _, u := range snap.Omniscient {
		g.omniscient[u] = true
	}
	return g
}

func baseGame(srv *Server, id string) *Game {
	cfg := srv.cfg
	return &Game{
		srv:      srv,
		log:      srv.log.With().Str("gameId", id).Logger(),
		id:       id,
		tasks:    make(chan func(), 64),
		done:     make(chan struct{}),
		board:    engine.StandardMap(),
		seats:    make(map[engine.Power]*seat),
		watchers: make(map[string]*watcher),
		deadlineLen: map[engine.PhaseType]time.Duration{
			engine.PhaseMovement:   cfg.MovementDeadline,
			engine.PhaseRetreat:    cfg.RetreatDeadline,
			engine.PhaseAdjustment: cfg.AdjustmentDeadline,
		},
		observers:  make(map[string]bool),
		omniscient: make(map[string]bool),
		resolver:   engine.NewResolver(64),
	}
}

func (g *Game) start() {
	go g.run()
}

func (g *Game) run() {
	for {
		select {
		case fn := <-g.tasks:
			fn()
		case <-g.done:
			return
		}
	}
}

func (g *Game) stop() {
	select {
	case <-g.done:
	default:
		close(g.done)
	}
}

// call runs fn on the game goroutine and waits for its result.
func (g *Game) call(fn func() (any, error)) (any, error) {
	type result struct {
		v   any
		err error
	}
	ch := make(chan result, 1)
	task := func() {
		v, err := fn()
		ch <- result{v, err}
	}
	select {
	case g.tasks <- task:
	case <-g.done:
		return nil, protocol.NewError(protocol.ErrNotFound, "game %s no longer exists", g.id)
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-g.done:
		return nil, protocol.NewError(protocol.ErrNotFound, "game %s no longer exists", g.id)
	}
}

// enqueue runs fn on the game goroutine without waiting.
func (g *Game) enqueue(fn func()) {
	select {
	case g.tasks <- fn:
	case <-g.done:
	}
}

// dispatch runs one game-level request on the game goroutine. The envelope
// checks shared by every game request happen here, serialized with any
// processing in flight, so a phase comparison cannot race a phase change.
func (g *Game) dispatch(ch *channel, req *protocol.Request) *protocol.Response {
	v, err := g.call(func() (any, error) {
		if mutatingRequests[req.Name] {
			if g.quarantined {
				return nil, protocol.NewError(protocol.ErrInternal, "game %s is quarantined", g.id)
			}
			if g.phase == engine.PhaseCompleted {
				return nil, protocol.NewError(protocol.ErrGameFinished, "game %s is finished", g.id)
			}
		}
		if protocol.PhaseDependent(req.Name) && req.Phase != string(g.phase) {
			if req.ReSent {
				return nil, protocol.NewError(protocol.ErrObsolete,
					"request phase %s is no longer current", req.Phase)
			}
			return nil, protocol.NewError(protocol.ErrPhaseMismatch,
				"request phase %s, game phase %s", req.Phase, g.phase)
		}
		return g.handle(ch, req)
	})
	if err != nil {
		return protocol.Fail(req, err)
	}
	return protocol.OK(req, v)
}

func (g *Game) handle(ch *channel, req *protocol.Request) (any, error) {
	switch req.Name {
	case protocol.ReqJoinGame:
		return g.handleJoin(ch, req)
	case protocol.ReqLeaveGame:
		return g.handleLeave(ch)
	case protocol.ReqGetGame:
		return g.handleGetGame(ch)
	case protocol.ReqSetOrders:
		return g.handleSetOrders(ch, req)
	case protocol.ReqClearOrders:
		return g.handleClearOrders(ch, req)
	case protocol.ReqSetWaitFlag:
		return g.handleSetWaitFlag(ch, req)
	case protocol.ReqVote:
		return g.handleVote(ch, req)
	case protocol.ReqProcessGame:
		return g.handleProcessGame(ch)
	case protocol.ReqSetDeadline:
		return g.handleSetDeadline(ch, req)
	case protocol.ReqSynchronize:
		return g.handleSynchronize(req)
	case protocol.ReqSendPress:
		return g.handleSendPress(ch, req)
	default:
		return nil, protocol.NewError(protocol.ErrNotFound, "unknown game request %s", req.Name)
	}
}

// join / leave

func (g *Game) handleJoin(ch *channel, req *protocol.Request) (any, error) {
	var data protocol.JoinGameData
	if err := req.Payload(&data); err != nil {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "bad join payload: %v", err)
	}
	if _, taken := g.watchers[ch.token]; taken {
		return nil, protocol.NewError(protocol.ErrConflict, "channel already joined to game %s", g.id)
	}

	w := &watcher{token: ch.token, user: ch.user}
	switch data.Role {
	case protocol.RoleObserver:
		w.role = protocol.RoleObserver
		g.observers[ch.user] = true

	case protocol.RoleOmniscient:
		if !g.srv.isAdmin(ch.user) && !g.omniscient[ch.user] {
			return nil, protocol.NewError(protocol.ErrAuth, "omniscient access requires admin")
		}
		w.role = protocol.RoleOmniscient
		if !g.omniscient[ch.user] {
			g.omniscient[ch.user] = true
			g.notifyAll(protocol.NotifOmniscientUpdated,
				&protocol.OmniscientUpdatedData{Username: ch.user, Joined: true})
		}

	case protocol.RolePower:
		if g.regPass != "" && data.RegistrationPassword != g.regPass && !g.srv.isAdmin(ch.user) {
			return nil, protocol.NewError(protocol.ErrAuth, "wrong registration password")
		}
		s, err := g.pickSeat(ch.user, engine.Power(data.Power))
		if err != nil {
			return nil, err
		}
		s.controller = ch.user
		s.civilDisorder = false
		w.role = protocol.RolePower
		w.power = s.power
		g.notifyAll(protocol.NotifGameStatusUpdate, &protocol.GameStatusUpdateData{
			Status: "power_joined",
			Power:  string(s.power),
		})

	default:
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "unknown role %q", data.Role)
	}

	g.watchers[ch.token] = w
	g.dirty = true
	g.maybeStart()
	return &protocol.JoinGameResult{
		GameID: g.id,
		Role:   w.role,
		Power:  string(w.power),
		Phase:  string(g.phase),
	}, nil
}

// pickSeat finds the seat to assign. With POWER_CHOICE the power must be
// named; otherwise a named power is honoured if free and an empty name takes
// the first vacant seat.
func (g *Game) pickSeat(user string, want engine.Power) (*seat, error) {
	if want != engine.Neutral {
		s, ok := g.seats[want]
		if !ok {
			return nil, protocol.NewError(protocol.ErrNotFound, "unknown power %q", want)
		}
		if s.controller != "" && s.controller != user {
			return nil, protocol.NewError(protocol.ErrConflict, "power %s is taken", want)
		}
		return s, nil
	}
	if g.rules.Has(engine.RulePowerChoice) {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "this game requires picking a power")
	}
	for _, p := range engine.AllPowers() {
		if s := g.seats[p]; s.controller == "" && !s.eliminated {
			return s, nil
		}
	}
	return nil, protocol.NewError(protocol.ErrConflict, "no open seats in game %s", g.id)
}

// maybeStart moves a FORMING game to Spring 1901 Movement once every seat is
// taken, or immediately for solitaire games.
func (g *Game) maybeStart() {
	if g.phase != engine.PhaseForming {
		return
	}
	if !g.rules.Has(engine.RuleSolitaire) {
		for _, p := range engine.AllPowers() {
			if g.seats[p].controller == "" {
				return
			}
		}
	}
	g.phase = g.state.PhaseLabel()
	g.scheduleDeadline()
	g.log.Info().Str("phase", string(g.phase)).Msg("Game started")
	g.notifyAll(protocol.NotifGameStatusUpdate, &protocol.GameStatusUpdateData{
		Status:       "active",
		Phase:        string(g.phase),
		DeadlineUnix: g.deadlineUnix(),
	})
	g.dirty = true
	g.snapshot()
}

func (g *Game) handleLeave(ch *channel) (any, error) {
	w, ok := g.watchers[ch.token]
	if !ok {
		return nil, protocol.NewError(protocol.ErrNotFound, "channel is not joined to game %s", g.id)
	}
	delete(g.watchers, ch.token)
	if w.role == protocol.RolePower && g.phase != engine.PhaseCompleted {
		if s := g.seats[w.power]; s != nil && s.controller == w.user {
			s.controller = ""
			g.notifyAll(protocol.NotifGameStatusUpdate, &protocol.GameStatusUpdateData{
				Status: "power_left",
				Power:  string(w.power),
			})
		}
	}
	g.dirty = true
	return nil, nil
}

// reads

func (g *Game) handleGetGame(ch *channel) (any, error) {
	w := g.watchers[ch.token]

	res := &protocol.GetGameResult{
		GameID:       g.id,
		Phase:        string(g.phase),
		Rules:        g.rules.List(),
		State:        *g.state.Clone(),
		DeadlineUnix: g.deadlineUnix(),
		Winner:       string(g.winner),
		Draw:         g.draw,
		Orders:       make(map[string][]string),
	}
	for _, p := range engine.AllPowers() {
		s := g.seats[p]
		res.Powers = append(res.Powers, protocol.PowerInfo{
			Name:          string(p),
			Controller:    s.controller,
			CivilDisorder: s.civilDisorder,
			DrawVote:      s.drawVote,
			Eliminated:    s.eliminated,
			Wait:          s.wait,
			HasOrders:     len(s.orders) > 0,
		})
		if g.canSeeOrders(w, p) && len(s.orders) > 0 {
			res.Orders[string(p)] = append([]string(nil), s.orders...)
		}
	}
	return res, nil
}

// canSeeOrders reports whether a watcher may read a power's unprocessed
// orders: its own seat, or any seat for omniscient watchers.
func (g *Game) canSeeOrders(w *watcher, p engine.Power) bool {
	if w == nil {
		return false
	}
	switch w.role {
	case protocol.RoleOmniscient:
		return true
	case protocol.RolePower:
		return w.power == p
	default:
		return false
	}
}

func (g *Game) handleSynchronize(req *protocol.Request) (any, error) {
	var data protocol.SynchronizeData
	if err := req.Payload(&data); err != nil {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "bad synchronize payload: %v", err)
	}
	// The cursor counts PhaseData entries the client already holds, so the
	// slice from that point is exactly what it missed.
	from := data.LastKnownPhaseIndex
	if from < 0 {
		from = 0
	}
	res := &protocol.SynchronizeResult{
		GameID:       g.id,
		CurrentPhase: string(g.phase),
		CurrentIndex: len(g.history),
	}
	if from < len(g.history) {
		res.Phases = append([]protocol.PhaseData(nil), g.history[from:]...)
	}
	return res, nil
}

// order mutations

// seatFor authorises a request acting as a power: the watcher must control
// that seat, or be omniscient.
func (g *Game) seatFor(ch *channel, power string) (*seat, error) {
	s, ok := g.seats[engine.Power(power)]
	if !ok {
		return nil, protocol.NewError(protocol.ErrNotFound, "unknown power %q", power)
	}
	w := g.watchers[ch.token]
	if w == nil {
		return nil, protocol.NewError(protocol.ErrAuth, "channel is not joined to game %s", g.id)
	}
	if w.role == protocol.RoleOmniscient {
		return s, nil
	}
	if w.role != protocol.RolePower || w.power != s.power || s.controller != ch.user {
		return nil, protocol.NewError(protocol.ErrAuth, "channel does not control power %s", power)
	}
	return s, nil
}

func (g *Game) handleSetOrders(ch *channel, req *protocol.Request) (any, error) {
	if g.phase == engine.PhaseForming {
		return nil, protocol.NewError(protocol.ErrConflict, "game %s has not started", g.id)
	}
	var data protocol.SetOrdersData
	if err := req.Payload(&data); err != nil {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "bad set_orders payload: %v", err)
	}
	s, err := g.seatFor(ch, data.Power)
	if err != nil {
		return nil, err
	}
	if s.civilDisorder {
		return nil, protocol.NewError(protocol.ErrConflict, "power %s is in civil disorder", data.Power)
	}

	for _, text := range data.Orders {
		canonical, loc, err := g.checkOrderText(s.power, text)
		if err != nil {
			return nil, err
		}
		s.orders = replaceOrderFor(s.orders, loc, canonical)
	}
	g.dirty = true
	g.notifyOrdersChanged(s)
	g.maybeProcessEarly()
	return nil, nil
}

// checkOrderText parses one order, validates it against the current phase
// (syntax only under NO_CHECK), and returns the canonical text plus the
// ordered unit's location for replacement keying.
func (g *Game) checkOrderText(power engine.Power, text string) (string, string, error) {
	parsed, err := engine.ParseOrders(text)
	if err != nil {
		return "", "", protocol.NewError(protocol.ErrOrderInvalid, "%v", err)
	}
	if len(parsed) != 1 {
		return "", "", protocol.NewError(protocol.ErrOrderInvalid, "expected one order per entry, got %d", len(parsed))
	}
	p := parsed[0]

	if !g.rules.Has(engine.RuleNoCheck) {
		var verr error
		switch g.phase.Type() {
		case engine.PhaseMovement:
			verr = engine.ValidateOrder(p.ToOrder(power), g.state, g.board)
		case engine.PhaseRetreat:
			verr = engine.ValidateRetreatOrder(p.ToRetreatOrder(power), g.state, g.board)
		case engine.PhaseAdjustment:
			verr = engine.ValidateBuildOrder(p.ToBuildOrder(power), g.state, g.board, g.rules)
		}
		if verr != nil {
			return "", "", protocol.NewError(protocol.ErrOrderInvalid, "%v", verr)
		}
	}
	return engine.FormatOrders([]engine.ParsedOrder{p}), p.Location, nil
}

// replaceOrderFor swaps out any existing order for the same unit. Orders
// without a location (waives) stack instead of replacing.
func replaceOrderFor(orders []string, loc, canonical string) []string {
	if loc != "" {
		for i, o := range orders {
			if parsed, err := engine.ParseOrders(o); err == nil &&
				len(parsed) == 1 && parsed[0].Location == loc {
				orders[i] = canonical
				return orders
			}
		}
	}
	return append(orders, canonical)
}

func (g *Game) handleClearOrders(ch *channel, req *protocol.Request) (any, error) {
	var data protocol.ClearOrdersData
	if err := req.Payload(&data); err != nil {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "bad clear_orders payload: %v", err)
	}
	s, err := g.seatFor(ch, data.Power)
	if err != nil {
		return nil, err
	}
	s.orders = nil
	g.dirty = true
	g.notifyOrdersChanged(s)
	return nil, nil
}

func (g *Game) handleSetWaitFlag(ch *channel, req *protocol.Request) (any, error) {
	var data protocol.SetWaitFlagData
	if err := req.Payload(&data); err != nil {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "bad set_wait_flag payload: %v", err)
	}
	s, err := g.seatFor(ch, data.Power)
	if err != nil {
		return nil, err
	}
	s.wait = data.Wait
	g.dirty = true
	if !data.Wait {
		g.maybeProcessEarly()
	}
	return nil, nil
}

func (g *Game) handleVote(ch *channel, req *protocol.Request) (any, error) {
	if g.rules.Has(engine.RuleSolitaire) {
		return nil, protocol.NewError(protocol.ErrConflict, "solitaire games have no draw votes")
	}
	var data protocol.VoteData
	if err := req.Payload(&data); err != nil {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "bad vote payload: %v", err)
	}
	s, err := g.seatFor(ch, data.Power)
	if err != nil {
		return nil, err
	}
	s.drawVote = data.Draw
	g.dirty = true
	g.notifyAll(protocol.NotifPowerVoteUpdate, &protocol.PowerVoteUpdateData{
		Power: string(s.power),
		Draw:  s.drawVote,
	})

	if g.drawAgreed() {
		g.complete(engine.Neutral, true)
	}
	return nil, nil
}

// drawAgreed reports whether every power still playing has voted for a draw.
func (g *Game) drawAgreed() bool {
	voted := false
	for _, p := range engine.AllPowers() {
		s := g.seats[p]
		if s.eliminated || s.civilDisorder || s.controller == "" {
			continue
		}
		if !s.drawVote {
			return false
		}
		voted = true
	}
	return voted
}

// admin mutations

func (g *Game) requireControl(ch *channel) error {
	if g.srv.isAdmin(ch.user) {
		return nil
	}
	if w := g.watchers[ch.token]; w != nil && w.role == protocol.RoleOmniscient {
		return nil
	}
	return protocol.NewError(protocol.ErrAuth, "request requires admin or omniscient access")
}

func (g *Game) handleProcessGame(ch *channel) (any, error) {
	if err := g.requireControl(ch); err != nil {
		return nil, err
	}
	if g.phase == engine.PhaseForming {
		// Force-start a partially filled game; open seats begin in civil
		// disorder when the rule allows it.
		if g.rules.Has(engine.RuleCivilDisorder) {
			for _, p := range engine.AllPowers() {
				if s := g.seats[p]; s.controller == "" {
					s.civilDisorder = true
				}
			}
		}
		g.phase = g.state.PhaseLabel()
		g.scheduleDeadline()
		g.notifyAll(protocol.NotifGameStatusUpdate, &protocol.GameStatusUpdateData{
			Status:       "active",
			Phase:        string(g.phase),
			DeadlineUnix: g.deadlineUnix(),
		})
		g.dirty = true
		g.snapshot()
		return nil, nil
	}
	g.process()
	return nil, nil
}

func (g *Game) handleSetDeadline(ch *channel, req *protocol.Request) (any, error) {
	if err := g.requireControl(ch); err != nil {
		return nil, err
	}
	var data protocol.SetDeadlineData
	if err := req.Payload(&data); err != nil {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "bad set_deadline payload: %v", err)
	}
	if data.DeadlineUnix == 0 {
		g.deadline = time.Time{}
	} else {
		g.deadline = time.Unix(data.DeadlineUnix, 0)
		g.srv.sched.Schedule(g.id, g.deadline)
	}
	g.dirty = true
	g.notifyAll(protocol.NotifGameStatusUpdate, &protocol.GameStatusUpdateData{
		Status:       "deadline_changed",
		Phase:        string(g.phase),
		DeadlineUnix: g.deadlineUnix(),
	})
	return nil, nil
}

// press

func (g *Game) handleSendPress(ch *channel, req *protocol.Request) (any, error) {
	var data protocol.SendPressData
	if err := req.Payload(&data); err != nil {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "bad send_press payload: %v", err)
	}
	if _, err := g.seatFor(ch, data.From); err != nil {
		return nil, err
	}
	to := make(map[engine.Power]bool, len(data.To))
	for _, p := range data.To {
		if _, ok := g.seats[engine.Power(p)]; !ok {
			return nil, protocol.NewError(protocol.ErrNotFound, "unknown power %q", p)
		}
		to[engine.Power(p)] = true
	}
	payload := &protocol.PressReceivedData{From: data.From, Body: data.Body}
	g.notifyEach(protocol.NotifPressReceived, func(w *watcher) any {
		// Addressees see press, as does anyone omniscient.
		if w.role == protocol.RoleOmniscient {
			return payload
		}
		if w.role == protocol.RolePower && to[w.power] {
			return payload
		}
		return nil
	})
	return nil, nil
}

// deadline and early processing

func (g *Game) deadlineUnix() int64 {
	if g.deadline.IsZero() {
		return 0
	}
	return g.deadline.Unix()
}

// scheduleDeadline arms the deadline for the current phase. A zero configured
// length leaves the phase without a deadline.
func (g *Game) scheduleDeadline() {
	length := g.deadlineLen[g.phase.Type()]
	if length <= 0 {
		g.deadline = time.Time{}
		return
	}
	g.deadline = time.Now().Add(length).Truncate(time.Second)
	g.srv.sched.Schedule(g.id, g.deadline)
}

// deadlineFired handles a popped scheduler entry. Entries for a deadline that
// has since moved or been cleared are discarded here.
func (g *Game) deadlineFired(when time.Time) {
	g.enqueue(func() {
		if g.quarantined || g.phase == engine.PhaseCompleted || g.phase == engine.PhaseForming {
			return
		}
		if g.deadline.IsZero() || !g.deadline.Equal(when) {
			return
		}
		if g.rules.Has(engine.RuleCivilDisorder) {
			for _, p := range engine.AllPowers() {
				s := g.seats[p]
				if !s.eliminated && !s.civilDisorder && len(s.orders) == 0 && g.powerNeedsOrders(p) {
					s.civilDisorder = true
					g.notifyAll(protocol.NotifGameStatusUpdate, &protocol.GameStatusUpdateData{
						Power:         string(p),
						CivilDisorder: true,
					})
				}
			}
		}
		g.process()
	})
}

// powerNeedsOrders reports whether a power has anything to order this phase.
func (g *Game) powerNeedsOrders(p engine.Power) bool {
	switch g.phase.Type() {
	case engine.PhaseMovement:
		return g.state.UnitCount(p) > 0
	case engine.PhaseRetreat:
		return len(g.state.DislodgedOf(p)) > 0
	case engine.PhaseAdjustment:
		return engine.BuildDelta(g.state, p) != 0
	default:
		return false
	}
}

// maybeProcessEarly processes the phase as soon as every power that has
// something to order has submitted and nobody is holding the wait flag.
func (g *Game) maybeProcessEarly() {
	if g.phase == engine.PhaseForming || g.phase == engine.PhaseCompleted || g.quarantined {
		return
	}
	for _, p := range engine.AllPowers() {
		s := g.seats[p]
		// Vacant seats never block; their units default to holds.
		if s.eliminated || s.civilDisorder || s.controller == "" {
			continue
		}
		if !g.powerNeedsOrders(p) {
			continue
		}
		if len(s.orders) == 0 || s.wait {
			return
		}
	}
	g.process()
}

// processing

// process adjudicates the current phase, appends it to history, advances the
// state, and notifies every watcher. Runs on the game goroutine.
func (g *Game) process() {
	before := g.state.Clone()
	submitted := make(map[string][]string)
	for _, p := range engine.AllPowers() {
		s := g.seats[p]
		if len(s.orders) > 0 && !s.civilDisorder {
			submitted[string(p)] = append([]string(nil), s.orders...)
		}
	}

	var results map[string][]engine.OrderResult
	switch g.phase.Type() {
	case engine.PhaseMovement:
		results = g.processMovement(submitted)
	case engine.PhaseRetreat:
		results = g.processRetreat(submitted)
	case engine.PhaseAdjustment:
		results = g.processAdjustment(submitted)
	default:
		g.log.Error().Str("phase", string(g.phase)).Msg("Process called outside a playable phase")
		return
	}

	if err := g.checkInvariants(); err != nil {
		g.quarantined = true
		g.state = before
		g.log.Error().Err(err).Str("phase", string(g.phase)).Msg("Invariant violation, game quarantined")
		g.notifyAll(protocol.NotifGameStatusUpdate, &protocol.GameStatusUpdateData{
			Status: "quarantined",
			Phase:  string(g.phase),
		})
		return
	}

	processed := protocol.PhaseData{
		Phase:   string(g.phase),
		State:   *before,
		Orders:  submitted,
		Results: results,
	}
	g.history = append(g.history, processed)

	engine.AdvanceState(g.state, g.board, g.rules)
	g.phase = g.state.PhaseLabel()
	g.markEliminations(before)

	for _, p := range engine.AllPowers() {
		s := g.seats[p]
		s.orders = nil
		s.wait = false
		if g.phase.Type() == engine.PhaseMovement {
			s.drawVote = false
		}
	}

	if w := engine.CheckVictory(g.state, g.board); w != engine.Neutral {
		g.notifyProcessed(&processed)
		g.complete(w, false)
		return
	}

	g.scheduleDeadline()
	g.log.Info().
		Str("processed", processed.Phase).
		Str("phase", string(g.phase)).
		Int("historyLen", len(g.history)).
		Msg("Phase processed")

	g.notifyProcessed(&processed)
	g.notifyAll(protocol.NotifPhaseUpdate, &protocol.PhaseUpdateData{
		Phase:      string(g.phase),
		PhaseIndex: len(g.history),
	})
	g.dirty = true
	g.snapshot()
}

func (g *Game) processMovement(submitted map[string][]string) map[string][]engine.OrderResult {
	var orders []engine.Order
	for _, p := range engine.AllPowers() {
		for _, text := range submitted[string(p)] {
			parsed, err := engine.ParseOrders(text)
			if err != nil || len(parsed) != 1 {
				continue
			}
			orders = append(orders, parsed[0].ToOrder(p))
		}
	}
	valid, voids := engine.ValidateAndDefaultOrders(orders, g.state, g.board)
	res := g.resolver.Resolve(valid, g.state, g.board)
	g.resolver.Apply(g.state, g.board)

	results := make(map[string][]engine.OrderResult)
	for _, ro := range res.Orders {
		results[ro.Order.Location] = ro.Results
	}
	for _, ro := range voids {
		results[ro.Order.Location] = ro.Results
	}
	return results
}

func (g *Game) processRetreat(submitted map[string][]string) map[string][]engine.OrderResult {
	var orders []engine.RetreatOrder
	for _, p := range engine.AllPowers() {
		for _, text := range submitted[string(p)] {
			parsed, err := engine.ParseOrders(text)
			if err != nil || len(parsed) != 1 {
				continue
			}
			orders = append(orders, parsed[0].ToRetreatOrder(p))
		}
	}
	res := engine.ResolveRetreats(orders, g.state, g.board)
	engine.ApplyRetreats(g.state, res, g.board)

	results := make(map[string][]engine.OrderResult)
	for _, rr := range res {
		results[rr.Order.Location] = rr.Results
	}
	return results
}

func (g *Game) processAdjustment(submitted map[string][]string) map[string][]engine.OrderResult {
	var orders []engine.BuildOrder
	for _, p := range engine.AllPowers() {
		for _, text := range submitted[string(p)] {
			parsed, err := engine.ParseOrders(text)
			if err != nil || len(parsed) != 1 {
				continue
			}
			orders = append(orders, parsed[0].ToBuildOrder(p))
		}
	}
	res := engine.ResolveBuildOrders(orders, g.state, g.board, g.rules)
	engine.ApplyBuildOrders(g.state, res)

	results := make(map[string][]engine.OrderResult)
	for _, br := range res {
		key := br.Order.Location
		if key == "" {
			// Waives have no location; key them by power.
			key = string(br.Order.Power)
		}
		results[key] = br.Results
	}
	return results
}

// checkInvariants verifies structural board invariants after an apply step.
func (g *Game) checkInvariants() error {
	occupied := make(map[string]bool, len(g.state.Units))
	for _, u := range g.state.Units {
		if occupied[u.Province] {
			return protocol.NewError(protocol.ErrInternal, "two units in %s", u.Province)
		}
		occupied[u.Province] = true
	}
	if want := len(g.board.SupplyCenters()); len(g.state.SupplyCenters) != want {
		return protocol.NewError(protocol.ErrInternal,
			"supply centre count drifted: %d of %d", len(g.state.SupplyCenters), want)
	}
	return nil
}

// markEliminations flags seats that lost their last centre or left the game
// entirely, comparing against the pre-processing state.
func (g *Game) markEliminations(before *engine.GameState) {
	for _, p := range engine.AllPowers() {
		s := g.seats[p]
		centres := g.state.SupplyCenterCount(p)
		if centres == 0 && before.SupplyCenterCount(p) > 0 {
			g.notifyAll(protocol.NotifClearedCenters, &protocol.ClearedCentersData{Power: string(p)})
		}
		if !s.eliminated && !g.state.PowerIsAlive(p) {
			s.eliminated = true
		}
	}
}

// complete finishes the game with a winner or an agreed draw.
func (g *Game) complete(winner engine.Power, draw bool) {
	g.phase = engine.PhaseCompleted
	g.winner = winner
	g.draw = draw
	g.deadline = time.Time{}
	g.log.Info().Str("winner", string(winner)).Bool("draw", draw).Msg("Game completed")
	g.notifyAll(protocol.NotifGameStatusUpdate, &protocol.GameStatusUpdateData{
		Status: "completed",
		Phase:  string(g.phase),
	})
	g.dirty = true
	g.snapshot()
}

// notifications

func (g *Game) notifyProcessed(processed *protocol.PhaseData) {
	g.notifyAll(protocol.NotifGameProcessed, &protocol.GameProcessedData{
		Processed: *processed,
		NewPhase:  string(g.phase),
		Winner:    string(g.winner),
		Draw:      g.draw,
	})
}

// notifyOrdersChanged announces an order-set change. Watchers allowed to read
// the orders get the text; everyone else only learns whether orders exist.
func (g *Game) notifyOrdersChanged(s *seat) {
	g.notifyEach(protocol.NotifPowerOrdersUpdate, func(w *watcher) any {
		data := &protocol.PowerOrdersUpdateData{
			Power:     string(s.power),
			HasOrders: len(s.orders) > 0,
		}
		if g.canSeeOrders(w, s.power) {
			data.Orders = append([]string(nil), s.orders...)
		}
		return data
	})
}

// notifyAll sends the same payload to every watcher.
func (g *Game) notifyAll(name string, payload any) {
	g.notifyEach(name, func(*watcher) any { return payload })
}

// notifyEach sends a per-watcher payload; a nil payload skips the watcher.
func (g *Game) notifyEach(name string, payloadFor func(w *watcher) any) {
	for _, w := range g.watchers {
		payload := payloadFor(w)
		if payload == nil {
			continue
		}
		sess := g.srv.sessionForToken(w.token)
		if sess == nil {
			continue
		}
		n := protocol.NewNotification(g.srv.notifier.NextID(), name, g.id, payload)
		n.Token = w.token
		g.srv.notifier.Publish(sess, n)
	}
}

// persistence

// summary builds the lobby listing entry. Runs on the game goroutine.
func (g *Game) summary() protocol.GameSummary {
	players, open := 0, 0
	for _, p := range engine.AllPowers() {
		s := g.seats[p]
		switch {
		case s.controller != "":
			players++
		case !s.eliminated:
			open++
		}
	}
	return protocol.GameSummary{
		GameID:     g.id,
		Phase:      string(g.phase),
		Rules:      g.rules.List(),
		NPlayers:   players,
		NOpenSeats: open,
		Protected:  g.regPass != "",
	}
}

// snapshot writes the game to the store if anything changed. Quarantined
// games are never written; the last good snapshot on disk is the recovery
// point a restart loads.
func (g *Game) snapshot() {
	if !g.dirty || g.quarantined {
		return
	}
	snap := &store.GameSnapshot{
		GameID:               g.id,
		Phase:                string(g.phase),
		Rules:                g.rules.List(),
		State:                *g.state.Clone(),
		History:              g.history,
		DeadlineUnix:         g.deadlineUnix(),
		RegistrationPassword: g.regPass,
		Winner:               string(g.winner),
		Draw:                 g.draw,
	}
	if len(g.deadlineLen) > 0 {
		snap.DeadlineSeconds = make(map[string]int, len(g.deadlineLen))
		for pt, d := range g.deadlineLen {
			snap.DeadlineSeconds[string(pt)] = int(d / time.Second)
		}
	}
	for _, p := range engine.AllPowers() {
		s := g.seats[p]
		snap.Powers = append(snap.Powers, store.PowerRecord{
			Name:          string(p),
			Controller:    s.controller,
			CivilDisorder: s.civilDisorder,
			DrawVote:      s.drawVote,
			Eliminated:    s.eliminated,
			Wait:          s.wait,
			Orders:        append([]string(nil), s.orders...),
		})
	}
	for u := range g.observers {
		snap.Observers = append(snap.Observers, u)
	}
	for u := range g.omniscient {
		snap.Omniscient = append(snap.Omniscient, u)
	}
	if err := g.srv.store.SaveGame(snap); err != nil {
		g.log.Error().Err(err).Msg("Snapshot write failed")
		return
	}
	g.dirty = false
}

// flush snapshots from the housekeeping tick without blocking the caller.
func (g *Game) flush() {
	g.enqueue(g.snapshot)
}
