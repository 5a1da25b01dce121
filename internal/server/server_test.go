package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tmarais/backchannel/internal/config"
	"github.com/tmarais/backchannel/internal/store"
	"github.com/tmarais/backchannel/pkg/engine"
	"github.com/tmarais/backchannel/pkg/protocol"
)

// fakeSink records frames delivered to one session.
type fakeSink struct {
	mu        sync.Mutex
	responses []*protocol.Response
	notifs    []*protocol.Notification
}

func (f *fakeSink) SendResponse(r *protocol.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, r)
}

func (f *fakeSink) SendNotification(n *protocol.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifs = append(f.notifs, n)
}

func (f *fakeSink) notifications() []*protocol.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Notification(nil), f.notifs...)
}

// waitNotifs polls until at least n notifications arrived; delivery is
// asynchronous through the notifier goroutine.
func (f *fakeSink) waitNotifs(t *testing.T, n int) []*protocol.Notification {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.notifications(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d notifications, have %d", n, len(f.notifications()))
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		DataDir:            t.TempDir(),
		MovementDeadline:   time.Hour,
		RetreatDeadline:    time.Hour,
		AdjustmentDeadline: time.Hour,
		SnapshotInterval:   time.Hour,
	}
	st, err := store.Open(cfg.DataDir, zerolog.Nop())
	require.NoError(t, err)
	s := New(cfg, st, zerolog.Nop())
	require.NoError(t, s.Boot())
	t.Cleanup(s.Shutdown)
	return s
}

func connect(s *Server) (*Session, *fakeSink) {
	sink := &fakeSink{}
	return s.Connect(sink), sink
}

var reqSeq int

func do(t *testing.T, s *Server, sess *Session, name, token, gameID string, payload any) *protocol.Response {
	t.Helper()
	reqSeq++
	req := &protocol.Request{
		RequestID:      "r" + time.Now().Format("150405") + "-" + string(rune('a'+reqSeq%26)),
		Name:           name,
		Token:          token,
		GameID:         gameID,
		PhaseDependent: protocol.PhaseDependent(name),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		req.Data = data
	}
	return s.Dispatch(sess, req)
}

func mustOK(t *testing.T, resp *protocol.Response) {
	t.Helper()
	require.Nil(t, resp.Err, "request %s failed: %v", resp.Name, resp.Err)
}

func mustFail(t *testing.T, resp *protocol.Response, code protocol.ErrorCode) {
	t.Helper()
	require.NotNil(t, resp.Err, "request %s unexpectedly succeeded", resp.Name)
	require.Equal(t, code, resp.Err.Code)
}

func decode[T any](t *testing.T, resp *protocol.Response) *T {
	t.Helper()
	v := new(T)
	require.NoError(t, json.Unmarshal(resp.Data, v))
	return v
}

// signUp creates a user and returns its channel token.
func signUp(t *testing.T, s *Server, sess *Session, username string) string {
	t.Helper()
	resp := do(t, s, sess, protocol.ReqCreateUser, "", "", &protocol.CreateUserData{
		Username: username, Password: "pw-" + username,
	})
	mustOK(t, resp)
	return decode[protocol.SignInResult](t, resp).Token
}

// signIn opens a fresh channel for an existing user.
func signIn(t *testing.T, s *Server, sess *Session, username string) string {
	t.Helper()
	resp := do(t, s, sess, protocol.ReqSignIn, "", "", &protocol.SignInData{
		Username: username, Password: "pw-" + username,
	})
	mustOK(t, resp)
	return decode[protocol.SignInResult](t, resp).Token
}

func joinPower(t *testing.T, s *Server, sess *Session, token, gameID, power string) *protocol.JoinGameResult {
	t.Helper()
	resp := do(t, s, sess, protocol.ReqJoinGame, token, "", &protocol.JoinGameData{
		GameID: gameID, Role: protocol.RolePower, Power: power,
	})
	mustOK(t, resp)
	return decode[protocol.JoinGameResult](t, resp)
}

func TestCreateUserAndSignIn(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)

	token := signUp(t, s, sess, "alice")
	require.NotEmpty(t, token)
	require.True(t, s.isAdmin("alice"), "first user becomes admin")

	signUp(t, s, sess, "bob")
	require.False(t, s.isAdmin("bob"))

	token2 := signIn(t, s, sess, "alice")
	require.NotEqual(t, token, token2, "each sign-in mints a fresh token")
}

func TestDuplicateUsernameRejected(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)

	signUp(t, s, sess, "alice")
	resp := do(t, s, sess, protocol.ReqCreateUser, "", "", &protocol.CreateUserData{
		Username: "alice", Password: "other",
	})
	mustFail(t, resp, protocol.ErrConflict)
}

func TestWrongPasswordRejected(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")

	resp := do(t, s, sess, protocol.ReqSignIn, "", "", &protocol.SignInData{
		Username: "alice", Password: "nope",
	})
	mustFail(t, resp, protocol.ErrAuth)
}

func TestUnknownTokenRejected(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)

	resp := do(t, s, sess, protocol.ReqGetGames, "deadbeef", "", nil)
	mustFail(t, resp, protocol.ErrAuth)
}

func TestSignOutInvalidatesToken(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	token := signUp(t, s, sess, "alice")

	mustOK(t, do(t, s, sess, protocol.ReqSignOut, token, "", nil))
	mustFail(t, do(t, s, sess, protocol.ReqGetGames, token, "", nil), protocol.ErrAuth)
}

func createGame(t *testing.T, s *Server, sess *Session, token, id string, rules ...string) {
	t.Helper()
	mustOK(t, do(t, s, sess, protocol.ReqCreateGame, token, "", &protocol.CreateGameData{
		GameID: id, Rules: rules,
	}))
}

// fillSeats signs in extra channels for one user and seats every power.
func fillSeats(t *testing.T, s *Server, sess *Session, username, gameID string) map[engine.Power]string {
	t.Helper()
	tokens := make(map[engine.Power]string)
	for _, p := range engine.AllPowers() {
		token := signIn(t, s, sess, username)
		joinPower(t, s, sess, token, gameID, string(p))
		tokens[p] = token
	}
	return tokens
}

func TestGameStartsWhenAllSeatsFilled(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	token := signUp(t, s, sess, "alice")
	createGame(t, s, sess, token, "g1")

	resp := do(t, s, sess, protocol.ReqGetGames, token, "", nil)
	mustOK(t, resp)
	games := decode[protocol.GetGamesResult](t, resp)
	require.Len(t, games.Games, 1)
	require.Equal(t, string(engine.PhaseForming), games.Games[0].Phase)
	require.Equal(t, 7, games.Games[0].NOpenSeats)

	tokens := fillSeats(t, s, sess, "alice", "g1")

	resp = do(t, s, sess, protocol.ReqGetGame, tokens[engine.France], "g1", nil)
	mustOK(t, resp)
	game := decode[protocol.GetGameResult](t, resp)
	require.Equal(t, "S1901M", game.Phase)
	require.NotZero(t, game.DeadlineUnix, "starting arms the movement deadline")
	require.Len(t, game.State.Units, 22)
}

func TestJoinTakenSeatRejected(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	alice := signUp(t, s, sess, "alice")
	bob := signUp(t, s, sess, "bob")
	createGame(t, s, sess, alice, "g1")
	joinPower(t, s, sess, alice, "g1", "france")

	resp := do(t, s, sess, protocol.ReqJoinGame, bob, "", &protocol.JoinGameData{
		GameID: "g1", Role: protocol.RolePower, Power: "france",
	})
	mustFail(t, resp, protocol.ErrConflict)
}

func TestOmniscientRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	alice := signUp(t, s, sess, "alice") // admin
	bob := signUp(t, s, sess, "bob")
	createGame(t, s, sess, alice, "g1")

	resp := do(t, s, sess, protocol.ReqJoinGame, bob, "", &protocol.JoinGameData{
		GameID: "g1", Role: protocol.RoleOmniscient,
	})
	mustFail(t, resp, protocol.ErrAuth)

	resp = do(t, s, sess, protocol.ReqJoinGame, alice, "", &protocol.JoinGameData{
		GameID: "g1", Role: protocol.RoleOmniscient,
	})
	mustOK(t, resp)
}

func currentPhase(t *testing.T, s *Server, sess *Session, token, gameID string) string {
	t.Helper()
	resp := do(t, s, sess, protocol.ReqGetGame, token, gameID, nil)
	mustOK(t, resp)
	return decode[protocol.GetGameResult](t, resp).Phase
}

func setOrders(t *testing.T, s *Server, sess *Session, token, gameID, phase, power string, orders ...string) *protocol.Response {
	t.Helper()
	reqSeq++
	data, err := json.Marshal(&protocol.SetOrdersData{Power: power, Orders: orders})
	require.NoError(t, err)
	return s.Dispatch(sess, &protocol.Request{
		RequestID:      "o" + string(rune('a'+reqSeq%26)),
		Name:           protocol.ReqSetOrders,
		Token:          token,
		GameID:         gameID,
		Phase:          phase,
		PhaseDependent: true,
		Data:           data,
	})
}

func TestSetOrdersVisibility(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	tokens := fillSeats(t, s, sess, "alice", "g1")

	mustOK(t, setOrders(t, s, sess, tokens[engine.France], "g1", "S1901M", "france", "A par - bur"))

	resp := do(t, s, sess, protocol.ReqGetGame, tokens[engine.France], "g1", nil)
	mustOK(t, resp)
	game := decode[protocol.GetGameResult](t, resp)
	require.Equal(t, []string{"A par - bur"}, game.Orders["france"])

	// Another power sees that orders exist, not their text.
	resp = do(t, s, sess, protocol.ReqGetGame, tokens[engine.Germany], "g1", nil)
	mustOK(t, resp)
	game = decode[protocol.GetGameResult](t, resp)
	require.Empty(t, game.Orders["france"])
	for _, p := range game.Powers {
		if p.Name == "france" {
			require.True(t, p.HasOrders)
		}
	}
}

func TestSetOrdersReplacesPerUnit(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	tokens := fillSeats(t, s, sess, "alice", "g1")

	fr := tokens[engine.France]
	mustOK(t, setOrders(t, s, sess, fr, "g1", "S1901M", "france", "A par - bur", "A mar - spa"))
	mustOK(t, setOrders(t, s, sess, fr, "g1", "S1901M", "france", "A par - pic"))

	resp := do(t, s, sess, protocol.ReqGetGame, fr, "g1", nil)
	mustOK(t, resp)
	game := decode[protocol.GetGameResult](t, resp)
	require.ElementsMatch(t, []string{"A par - pic", "A mar - spa"}, game.Orders["france"])
}

func TestSetOrdersRejectsInvalid(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	tokens := fillSeats(t, s, sess, "alice", "g1")

	// par is not adjacent to mun.
	resp := setOrders(t, s, sess, tokens[engine.France], "g1", "S1901M", "france", "A par - mun")
	mustFail(t, resp, protocol.ErrOrderInvalid)

	// Ordering another power's unit is rejected on the seat, not the order.
	resp = setOrders(t, s, sess, tokens[engine.France], "g1", "S1901M", "germany", "A mun - ruh")
	mustFail(t, resp, protocol.ErrAuth)
}

func TestNoCheckDefersValidation(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1", engine.RuleNoCheck)
	tokens := fillSeats(t, s, sess, "alice", "g1")

	// Accepted at submission, voided at adjudication.
	mustOK(t, setOrders(t, s, sess, tokens[engine.France], "g1", "S1901M", "france", "A par - mun"))
}

func TestPhaseMismatchAndObsolete(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	tokens := fillSeats(t, s, sess, "alice", "g1")

	resp := setOrders(t, s, sess, tokens[engine.France], "g1", "F1901M", "france", "A par - bur")
	mustFail(t, resp, protocol.ErrPhaseMismatch)

	// The same stale request replayed by the reconnection routine is dropped
	// as obsolete instead.
	data, err := json.Marshal(&protocol.SetOrdersData{Power: "france", Orders: []string{"A par - bur"}})
	require.NoError(t, err)
	resp = s.Dispatch(sess, &protocol.Request{
		RequestID:      "stale",
		Name:           protocol.ReqSetOrders,
		Token:          tokens[engine.France],
		GameID:         "g1",
		Phase:          "F1901M",
		PhaseDependent: true,
		ReSent:         true,
		Data:           data,
	})
	mustFail(t, resp, protocol.ErrObsolete)
}

func TestForceProcessAdvancesPhase(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	tokens := fillSeats(t, s, sess, "alice", "g1")

	mustOK(t, setOrders(t, s, sess, tokens[engine.France], "g1", "S1901M", "france", "A par - bur"))
	mustOK(t, do(t, s, sess, protocol.ReqProcessGame, admin, "g1", nil))

	// No dislodgements from an all-hold spring, so the retreat phase is
	// skipped straight to fall movement.
	require.Equal(t, "F1901M", currentPhase(t, s, sess, tokens[engine.France], "g1"))

	resp := do(t, s, sess, protocol.ReqSynchronize, tokens[engine.France], "g1", &protocol.SynchronizeData{
		LastKnownPhaseIndex: -1,
	})
	mustOK(t, resp)
	sync := decode[protocol.SynchronizeResult](t, resp)
	require.Equal(t, "F1901M", sync.CurrentPhase)
	require.Equal(t, 1, sync.CurrentIndex)
	require.Len(t, sync.Phases, 1)
	require.Equal(t, "S1901M", sync.Phases[0].Phase)
	require.Equal(t, []string{"A par - bur"}, sync.Phases[0].Orders["france"])
	require.Equal(t, []engine.OrderResult{engine.ResultOK}, sync.Phases[0].Results["par"])
}

func TestSynchronizeCatchesUpMissedPhases(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	tokens := fillSeats(t, s, sess, "alice", "g1")

	mustOK(t, do(t, s, sess, protocol.ReqProcessGame, admin, "g1", nil))

	resp := do(t, s, sess, protocol.ReqSynchronize, tokens[engine.France], "g1", &protocol.SynchronizeData{
		LastKnownPhaseIndex: 0,
	})
	mustOK(t, resp)
	sync := decode[protocol.SynchronizeResult](t, resp)
	require.Len(t, sync.Phases, 1)
	cursor := sync.CurrentIndex

	// Nothing new: the stored cursor asks for exactly what is missing.
	resp = do(t, s, sess, protocol.ReqSynchronize, tokens[engine.France], "g1", &protocol.SynchronizeData{
		LastKnownPhaseIndex: cursor,
	})
	mustOK(t, resp)
	require.Empty(t, decode[protocol.SynchronizeResult](t, resp).Phases)

	// A phase processed while the client was away comes back on the next
	// synchronize keyed by that same cursor.
	mustOK(t, do(t, s, sess, protocol.ReqProcessGame, admin, "g1", nil))

	resp = do(t, s, sess, protocol.ReqSynchronize, tokens[engine.France], "g1", &protocol.SynchronizeData{
		LastKnownPhaseIndex: cursor,
	})
	mustOK(t, resp)
	sync = decode[protocol.SynchronizeResult](t, resp)
	require.Len(t, sync.Phases, 1)
	require.Equal(t, "F1901M", sync.Phases[0].Phase)
	require.Equal(t, 2, sync.CurrentIndex)
}

func TestCreateGameRejectsUnsafeID(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	token := signUp(t, s, sess, "alice")

	for _, id := range []string{"../users", "games/../../users", "a b", "g.json"} {
		resp := do(t, s, sess, protocol.ReqCreateGame, token, "", &protocol.CreateGameData{GameID: id})
		mustFail(t, resp, protocol.ErrOrderInvalid)
	}
	require.Error(t, s.EnsureGame("../users"))

	// The user database survives the attempts.
	users, err := s.store.LoadUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "alice", users[0].Username)
}

func TestProcessRequiresControl(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice") // admin
	bob := signUp(t, s, sess, "bob")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	joinPower(t, s, sess, bob, "g1", "france")

	mustFail(t, do(t, s, sess, protocol.ReqProcessGame, bob, "g1", nil), protocol.ErrAuth)
}

func TestEarlyProcessingWaitsForWaitFlag(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	bobToken := signUp(t, s, sess, "bob")
	joinPower(t, s, sess, bobToken, "g1", "france")

	// Force-start the partially filled game.
	mustOK(t, do(t, s, sess, protocol.ReqProcessGame, admin, "g1", nil))
	require.Equal(t, "S1901M", currentPhase(t, s, sess, bobToken, "g1"))

	// With the wait flag up, a full order set does not trigger processing.
	mustOK(t, s.Dispatch(sess, mkGameReq(t, protocol.ReqSetWaitFlag, bobToken, "g1", "S1901M",
		&protocol.SetWaitFlagData{Power: "france", Wait: true})))
	mustOK(t, setOrders(t, s, sess, bobToken, "g1", "S1901M", "france",
		"A par - bur", "A mar - spa", "F bre - mao"))
	require.Equal(t, "S1901M", currentPhase(t, s, sess, bobToken, "g1"))

	// Dropping the flag processes immediately: france is the only seated
	// power, every vacant seat holds.
	mustOK(t, s.Dispatch(sess, mkGameReq(t, protocol.ReqSetWaitFlag, bobToken, "g1", "S1901M",
		&protocol.SetWaitFlagData{Power: "france", Wait: false})))
	require.Equal(t, "F1901M", currentPhase(t, s, sess, bobToken, "g1"))
}

func mkGameReq(t *testing.T, name, token, gameID, phase string, payload any) *protocol.Request {
	t.Helper()
	reqSeq++
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &protocol.Request{
		RequestID:      "q" + string(rune('a'+reqSeq%26)),
		Name:           name,
		Token:          token,
		GameID:         gameID,
		Phase:          phase,
		PhaseDependent: protocol.PhaseDependent(name),
		Data:           data,
	}
}

func TestDrawVoteCompletesGame(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	bob := signUp(t, s, sess, "bob")
	carol := signUp(t, s, sess, "carol")
	joinPower(t, s, sess, bob, "g1", "france")
	joinPower(t, s, sess, carol, "g1", "germany")
	mustOK(t, do(t, s, sess, protocol.ReqProcessGame, admin, "g1", nil)) // force start

	mustOK(t, s.Dispatch(sess, mkGameReq(t, protocol.ReqVote, bob, "g1", "S1901M",
		&protocol.VoteData{Power: "france", Draw: true})))
	require.Equal(t, "S1901M", currentPhase(t, s, sess, bob, "g1"))

	mustOK(t, s.Dispatch(sess, mkGameReq(t, protocol.ReqVote, carol, "g1", "S1901M",
		&protocol.VoteData{Power: "germany", Draw: true})))

	resp := do(t, s, sess, protocol.ReqGetGame, bob, "g1", nil)
	mustOK(t, resp)
	game := decode[protocol.GetGameResult](t, resp)
	require.Equal(t, string(engine.PhaseCompleted), game.Phase)
	require.True(t, game.Draw)

	// Mutations on a finished game are rejected.
	resp = s.Dispatch(sess, mkGameReq(t, protocol.ReqVote, bob, "g1", string(engine.PhaseCompleted),
		&protocol.VoteData{Power: "france", Draw: false}))
	mustFail(t, resp, protocol.ErrGameFinished)
}

func TestStaleDeadlineIgnored(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	fillSeats(t, s, sess, "alice", "g1")

	g := s.game("g1")
	require.NotNil(t, g)
	v, err := g.call(func() (any, error) { return g.deadline, nil })
	require.NoError(t, err)
	deadline := v.(time.Time)
	require.False(t, deadline.IsZero())

	// An expiry for a deadline that has since moved is discarded.
	g.deadlineFired(deadline.Add(time.Minute))
	v, _ = g.call(func() (any, error) { return string(g.phase), nil })
	require.Equal(t, "S1901M", v)

	// The matching expiry processes the phase.
	g.deadlineFired(deadline)
	v, _ = g.call(func() (any, error) { return string(g.phase), nil })
	require.Equal(t, "F1901M", v)
}

func TestDeleteGameRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	bob := signUp(t, s, sess, "bob")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")

	mustFail(t, do(t, s, sess, protocol.ReqDeleteGame, bob, "g1", nil), protocol.ErrAuth)
	mustOK(t, do(t, s, sess, protocol.ReqDeleteGame, admin, "g1", nil))
	mustFail(t, do(t, s, sess, protocol.ReqGetGame, bob, "g1", nil), protocol.ErrNotFound)
}

func TestOrdersNotificationFanOut(t *testing.T) {
	s := newTestServer(t)
	sess, sink := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	tokens := fillSeats(t, s, sess, "alice", "g1")

	mustOK(t, setOrders(t, s, sess, tokens[engine.France], "g1", "S1901M", "france", "A par - bur"))

	// One power_orders_update per watcher; only the issuing seat's copy
	// carries the order text.
	ordersUpdates := func() []*protocol.Notification {
		var out []*protocol.Notification
		for _, n := range sink.notifications() {
			if n.Name == protocol.NotifPowerOrdersUpdate {
				out = append(out, n)
			}
		}
		return out
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(ordersUpdates()) < 7 {
		time.Sleep(5 * time.Millisecond)
	}
	updates := ordersUpdates()
	require.Len(t, updates, 7)

	var withText, withoutText int
	for _, n := range updates {
		var data protocol.PowerOrdersUpdateData
		require.NoError(t, json.Unmarshal(n.Data, &data))
		require.Equal(t, "france", data.Power)
		require.True(t, data.HasOrders)
		if len(data.Orders) > 0 {
			withText++
		} else {
			withoutText++
		}
	}
	require.Equal(t, 1, withText)
	require.Equal(t, 6, withoutText)
}

func TestQuarantineBlocksMutationsAndSnapshots(t *testing.T) {
	s := newTestServer(t)
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	tokens := fillSeats(t, s, sess, "alice", "g1")

	g := s.game("g1")
	require.NotNil(t, g)
	// Corrupt the board so the post-processing invariant check fires.
	g.call(func() (any, error) {
		delete(g.state.SupplyCenters, "par")
		return nil, nil
	})
	mustOK(t, do(t, s, sess, protocol.ReqProcessGame, admin, "g1", nil))

	v, err := g.call(func() (any, error) { return g.quarantined, nil })
	require.NoError(t, err)
	require.True(t, v.(bool))

	// Mutations are refused; the phase did not advance.
	resp := setOrders(t, s, sess, tokens[engine.France], "g1", "S1901M", "france", "A par - bur")
	mustFail(t, resp, protocol.ErrInternal)
	require.Equal(t, "S1901M", currentPhase(t, s, sess, tokens[engine.France], "g1"))

	// The quarantined game is excluded from snapshots; the last good file on
	// disk is the recovery point.
	path := filepath.Join(s.cfg.DataDir, "games", "g1.json")
	require.NoError(t, os.Remove(path))
	g.call(func() (any, error) {
		g.dirty = true
		g.snapshot()
		return nil, nil
	})
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestRestartRestoresGames(t *testing.T) {
	cfg := &config.Config{
		DataDir:            t.TempDir(),
		MovementDeadline:   time.Hour,
		RetreatDeadline:    time.Hour,
		AdjustmentDeadline: time.Hour,
		SnapshotInterval:   time.Hour,
	}
	st, err := store.Open(cfg.DataDir, zerolog.Nop())
	require.NoError(t, err)

	s := New(cfg, st, zerolog.Nop())
	require.NoError(t, s.Boot())
	sess, _ := connect(s)
	signUp(t, s, sess, "alice")
	admin := signIn(t, s, sess, "alice")
	createGame(t, s, sess, admin, "g1")
	tokens := fillSeats(t, s, sess, "alice", "g1")
	mustOK(t, setOrders(t, s, sess, tokens[engine.France], "g1", "S1901M", "france", "A par - bur"))
	s.Shutdown()

	s2 := New(cfg, st, zerolog.Nop())
	require.NoError(t, s2.Boot())
	t.Cleanup(s2.Shutdown)

	g := s2.game("g1")
	require.NotNil(t, g)
	v, err := g.call(func() (any, error) {
		return []string{string(g.phase), g.seats[engine.France].controller, g.seats[engine.France].orders[0]}, nil
	})
	require.NoError(t, err)
	got := v.([]string)
	require.Equal(t, "S1901M", got[0])
	require.Equal(t, "alice", got[1])
	require.Equal(t, "A par - bur", got[2])
}
