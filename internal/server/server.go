// Package server hosts the game server core: user accounts, channels, the
// per-game serialized state machines, deadline scheduling, and notification
// fan-out. Transports hand decoded requests to Dispatch and deliver the
// resulting frames through each session's Sink.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmarais/backchannel/internal/config"
	"github.com/tmarais/backchannel/internal/store"
	"github.com/tmarais/backchannel/pkg/protocol"
)

// userAccount is one registered user.
type userAccount struct {
	name         string
	passwordHash string
	admin        bool
}

// Server owns the cross-game registries. Games serialize their own state on
// their queue goroutines; the server mutex only guards the registries below.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	log      zerolog.Logger
	notifier *Notifier
	sched    *Scheduler

	sessSeq atomic.Uint64

	mu         sync.RWMutex
	users      map[string]*userAccount
	tokens     map[string]*channel
	games      map[string]*Game
	usersDirty bool
}

// New creates a server around a store. Call Boot before serving traffic.
func New(cfg *config.Config, st *store.Store, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		log:      log,
		notifier: NewNotifier(log),
		users:    make(map[string]*userAccount),
		tokens:   make(map[string]*channel),
		games:    make(map[string]*Game),
	}
	s.sched = NewScheduler(log, s.fireDeadline)
	return s
}

// Boot loads persisted users and games and primes the deadline scheduler.
// Deadlines already in the past fire immediately once Run starts.
func (s *Server) Boot() error {
	users, err := s.store.LoadUsers()
	if err != nil {
		return fmt.Errorf("server: loading users: %w", err)
	}
	for _, u := range users {
		s.users[u.Username] = &userAccount{name: u.Username, passwordHash: u.PasswordHash, admin: u.Admin}
	}

	snaps, err := s.store.LoadGames()
	if err != nil {
		return fmt.Errorf("server: loading games: %w", err)
	}
	for _, snap := range snaps {
		g := gameFromSnapshot(s, snap)
		s.games[g.id] = g
		g.start()
		if snap.DeadlineUnix > 0 {
			s.sched.Schedule(g.id, time.Unix(snap.DeadlineUnix, 0))
		}
	}
	s.log.Info().Int("users", len(s.users)).Int("games", len(s.games)).Msg("State loaded")
	return nil
}

// Run drives the scheduler and the housekeeping snapshot flush until the
// context is done.
func (s *Server) Run(ctx context.Context) {
	go s.sched.Run(ctx)

	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushAll()
		}
	}
}

// Shutdown snapshots every game and the user database, then stops the game
// goroutines.
func (s *Server) Shutdown() {
	s.mu.RLock()
	games := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.RUnlock()

	for _, g := range games {
		g.call(func() (any, error) {
			g.dirty = true
			g.snapshot()
			return nil, nil
		})
		g.stop()
	}
	if err := s.saveUsers(); err != nil {
		s.log.Error().Err(err).Msg("User snapshot failed during shutdown")
	}
	s.log.Info().Msg("Server state flushed")
}

// flushAll writes dirty state from the housekeeping tick.
func (s *Server) flushAll() {
	s.mu.RLock()
	dirty := s.usersDirty
	games := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.RUnlock()

	if dirty {
		if err := s.saveUsers(); err != nil {
			s.log.Error().Err(err).Msg("User snapshot failed")
		}
	}
	for _, g := range games {
		g.flush()
	}
}

// Connect registers a new session for a transport connection.
func (s *Server) Connect(sink Sink) *Session {
	sess := &Session{
		id:   fmt.Sprintf("s%d", s.sessSeq.Add(1)),
		sink: sink,
	}
	s.notifier.Register(sess)
	return sess
}

// Disconnect detaches a closed session. Channels opened on it stay valid and
// reattach when their token is next used from a new session.
func (s *Server) Disconnect(sess *Session) {
	s.notifier.Unregister(sess)
	s.mu.Lock()
	for _, ch := range s.tokens {
		if ch.session == sess {
			ch.session = nil
		}
	}
	s.mu.Unlock()
}

// OpenGuestChannel opens a channel for an unregistered guest identity, for
// transports whose peers have no account of their own. Guests are never
// admins and cannot sign back in; reconnection is the transport's problem.
func (s *Server) OpenGuestChannel(sess *Session, name string) string {
	ch := s.openChannel(name, sess)
	s.log.Info().Str("user", name).Msg("Guest channel opened")
	return ch.token
}

// EnsureGame creates a game with default settings when the id is free, for
// transports that host a standing game.
func (s *Server) EnsureGame(id string) error {
	if !validGameID(id) {
		return protocol.NewError(protocol.ErrOrderInvalid, "invalid game id %q", id)
	}
	s.mu.Lock()
	if _, exists := s.games[id]; exists {
		s.mu.Unlock()
		return nil
	}
	g := newGame(s, id, &protocol.CreateGameData{GameID: id})
	s.games[id] = g
	s.mu.Unlock()
	g.start()
	g.flush()
	s.log.Info().Str("gameId", id).Msg("Game created")
	return nil
}

// registries

func (s *Server) game(id string) *Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games[id]
}

func (s *Server) isAdmin(user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.users[user]
	return u != nil && u.admin
}

// sessionForToken resolves the session currently attached to a token; nil
// while the token's owner is disconnected.
func (s *Server) sessionForToken(token string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch := s.tokens[token]
	if ch == nil {
		return nil
	}
	return ch.session
}

// fireDeadline is the scheduler callback; it hands the expiry to the game's
// own goroutine, which discards stale entries.
func (s *Server) fireDeadline(gameID string, when time.Time) {
	if g := s.game(gameID); g != nil {
		g.deadlineFired(when)
	}
}

// users

// hashPassword digests a password with the username as salt.
func hashPassword(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// createUser registers an account. The first account created on a fresh
// server becomes the admin.
func (s *Server) createUser(username, password string) (*userAccount, error) {
	if username == "" || password == "" {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, "username and password are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return nil, protocol.NewError(protocol.ErrConflict, "username %q is taken", username)
	}
	u := &userAccount{
		name:         username,
		passwordHash: hashPassword(username, password),
		admin:        len(s.users) == 0,
	}
	s.users[username] = u
	s.usersDirty = true
	return u, nil
}

// authenticate checks credentials and returns the account.
func (s *Server) authenticate(username, password string) (*userAccount, error) {
	s.mu.RLock()
	u := s.users[username]
	s.mu.RUnlock()
	if u == nil || u.passwordHash != hashPassword(username, password) {
		return nil, protocol.NewError(protocol.ErrAuth, "unknown user or wrong password")
	}
	return u, nil
}

// openChannel mints a token bound to a user and attaches it to the session.
func (s *Server) openChannel(user string, sess *Session) *channel {
	ch := &channel{token: newToken(), user: user, session: sess}
	s.mu.Lock()
	s.tokens[ch.token] = ch
	s.mu.Unlock()
	return ch
}

// channelFor resolves a token and reattaches it to the calling session.
func (s *Server) channelFor(token string, sess *Session) *channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.tokens[token]
	if ch != nil {
		ch.session = sess
	}
	return ch
}

// closeChannel invalidates one token.
func (s *Server) closeChannel(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// deleteUser removes an account and every token it holds. Seats the user
// controlled stay assigned; they fall to civil disorder at the next deadline.
func (s *Server) deleteUser(username string) []*Session {
	var sessions []*Session
	s.mu.Lock()
	delete(s.users, username)
	for token, ch := range s.tokens {
		if ch.user == username {
			if ch.session != nil {
				sessions = append(sessions, ch.session)
			}
			delete(s.tokens, token)
		}
	}
	s.usersDirty = true
	s.mu.Unlock()
	return sessions
}

// saveUsers writes the user database snapshot.
func (s *Server) saveUsers() error {
	s.mu.Lock()
	records := make([]store.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		records = append(records, store.UserRecord{
			Username:     u.name,
			PasswordHash: u.passwordHash,
			Admin:        u.admin,
		})
	}
	s.usersDirty = false
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool { return records[i].Username < records[j].Username })
	return s.store.SaveUsers(records)
}
