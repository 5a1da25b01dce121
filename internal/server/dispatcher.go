package server

import (
	"sort"

	"github.com/tmarais/backchannel/pkg/engine"
	"github.com/tmarais/backchannel/pkg/protocol"
)

// Dispatch routes one decoded request and returns its response. Connection
// and channel requests are handled on the calling goroutine; game requests
// run on the target game's queue goroutine.
func (s *Server) Dispatch(sess *Session, req *protocol.Request) *protocol.Response {
	level, known := protocol.LevelOf(req.Name)
	if !known {
		return protocol.Fail(req, protocol.NewError(protocol.ErrNotFound, "unknown request %q", req.Name))
	}

	if level == protocol.LevelConnection {
		return s.dispatchConnection(sess, req)
	}

	ch := s.channelFor(req.Token, sess)
	if ch == nil {
		return protocol.Fail(req, protocol.NewError(protocol.ErrAuth, "unknown token"))
	}

	if level == protocol.LevelChannel {
		return s.dispatchChannel(sess, ch, req)
	}

	// Game level. Deletion is handled here because it mutates the server's
	// game registry, not just the game.
	if req.Name == protocol.ReqDeleteGame {
		return s.handleDeleteGame(ch, req)
	}
	g := s.game(req.GameID)
	if g == nil {
		return protocol.Fail(req, protocol.NewError(protocol.ErrNotFound, "unknown game %q", req.GameID))
	}
	return g.dispatch(ch, req)
}

func (s *Server) dispatchConnection(sess *Session, req *protocol.Request) *protocol.Response {
	switch req.Name {
	case protocol.ReqSignIn:
		var data protocol.SignInData
		if err := req.Payload(&data); err != nil {
			return protocol.Fail(req, protocol.NewError(protocol.ErrOrderInvalid, "bad sign_in payload: %v", err))
		}
		u, err := s.authenticate(data.Username, data.Password)
		if err != nil {
			return protocol.Fail(req, err)
		}
		ch := s.openChannel(u.name, sess)
		s.log.Info().Str("user", u.name).Str("session", sess.id).Msg("User signed in")
		return protocol.OK(req, &protocol.SignInResult{Token: ch.token})

	case protocol.ReqCreateUser:
		var data protocol.CreateUserData
		if err := req.Payload(&data); err != nil {
			return protocol.Fail(req, protocol.NewError(protocol.ErrOrderInvalid, "bad create_user payload: %v", err))
		}
		u, err := s.createUser(data.Username, data.Password)
		if err != nil {
			return protocol.Fail(req, err)
		}
		if err := s.saveUsers(); err != nil {
			s.log.Error().Err(err).Msg("User snapshot failed")
		}
		ch := s.openChannel(u.name, sess)
		s.log.Info().Str("user", u.name).Bool("admin", u.admin).Msg("User created")
		return protocol.OK(req, &protocol.SignInResult{Token: ch.token})

	default:
		return protocol.Fail(req, protocol.NewError(protocol.ErrNotFound, "unknown request %q", req.Name))
	}
}

func (s *Server) dispatchChannel(sess *Session, ch *channel, req *protocol.Request) *protocol.Response {
	switch req.Name {
	case protocol.ReqSignOut:
		s.closeChannel(ch.token)
		return protocol.OK(req, nil)

	case protocol.ReqDeleteUser:
		sessions := s.deleteUser(ch.user)
		if err := s.saveUsers(); err != nil {
			s.log.Error().Err(err).Msg("User snapshot failed")
		}
		payload := &protocol.AccountDeletedData{Username: ch.user}
		for _, target := range sessions {
			s.notifier.Publish(target,
				protocol.NewNotification(s.notifier.NextID(), protocol.NotifAccountDeleted, "", payload))
		}
		s.log.Info().Str("user", ch.user).Msg("User deleted")
		return protocol.OK(req, nil)

	case protocol.ReqGetGames:
		return s.handleGetGames(req)

	case protocol.ReqCreateGame:
		return s.handleCreateGame(ch, req)

	case protocol.ReqJoinGame:
		// Join is addressed by payload rather than envelope so that a client
		// can join before it holds any game-scoped state.
		var data protocol.JoinGameData
		if err := req.Payload(&data); err != nil {
			return protocol.Fail(req, protocol.NewError(protocol.ErrOrderInvalid, "bad join payload: %v", err))
		}
		gameID := data.GameID
		if gameID == "" {
			gameID = req.GameID
		}
		g := s.game(gameID)
		if g == nil {
			return protocol.Fail(req, protocol.NewError(protocol.ErrNotFound, "unknown game %q", gameID))
		}
		return g.dispatch(ch, req)

	default:
		return protocol.Fail(req, protocol.NewError(protocol.ErrNotFound, "unknown request %q", req.Name))
	}
}

func (s *Server) handleGetGames(req *protocol.Request) *protocol.Response {
	s.mu.RLock()
	games := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.RUnlock()

	res := &protocol.GetGamesResult{}
	for _, g := range games {
		v, err := g.call(func() (any, error) { return g.summary(), nil })
		if err != nil {
			continue
		}
		res.Games = append(res.Games, v.(protocol.GameSummary))
	}
	sort.Slice(res.Games, func(i, j int) bool { return res.Games[i].GameID < res.Games[j].GameID })
	return protocol.OK(req, res)
}

func (s *Server) handleCreateGame(ch *channel, req *protocol.Request) *protocol.Response {
	var data protocol.CreateGameData
	if err := req.Payload(&data); err != nil {
		return protocol.Fail(req, protocol.NewError(protocol.ErrOrderInvalid, "bad create_game payload: %v", err))
	}
	id := data.GameID
	if id == "" {
		id = newToken()[:12]
	}
	if !validGameID(id) {
		return protocol.Fail(req, protocol.NewError(protocol.ErrOrderInvalid,
			"game id may only contain letters, digits, '-' and '_'"))
	}

	s.mu.Lock()
	if _, exists := s.games[id]; exists {
		s.mu.Unlock()
		return protocol.Fail(req, protocol.NewError(protocol.ErrConflict, "game %q already exists", id))
	}
	g := newGame(s, id, &data)
	s.games[id] = g
	s.mu.Unlock()

	g.start()
	g.flush()
	s.log.Info().Str("gameId", id).Str("user", ch.user).Msg("Game created")
	return protocol.OK(req, &protocol.GameSummary{
		GameID:     id,
		Phase:      string(engine.PhaseForming),
		Rules:      data.Rules,
		NOpenSeats: 7,
		Protected:  data.RegistrationPassword != "",
	})
}

// validGameID restricts ids to path-safe characters; a game id names the
// game's snapshot file under the data directory.
func validGameID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func (s *Server) handleDeleteGame(ch *channel, req *protocol.Request) *protocol.Response {
	if !s.isAdmin(ch.user) {
		return protocol.Fail(req, protocol.NewError(protocol.ErrAuth, "deleting a game requires admin"))
	}

	s.mu.Lock()
	g := s.games[req.GameID]
	if g != nil {
		delete(s.games, req.GameID)
	}
	s.mu.Unlock()
	if g == nil {
		return protocol.Fail(req, protocol.NewError(protocol.ErrNotFound, "unknown game %q", req.GameID))
	}

	g.call(func() (any, error) {
		g.notifyAll(protocol.NotifGameStatusUpdate, &protocol.GameStatusUpdateData{Status: "deleted"})
		return nil, nil
	})
	g.stop()
	if err := s.store.DeleteGame(req.GameID); err != nil {
		s.log.Error().Err(err).Str("gameId", req.GameID).Msg("Snapshot delete failed")
	}
	s.log.Info().Str("gameId", req.GameID).Str("user", ch.user).Msg("Game deleted")
	return protocol.OK(req, nil)
}
