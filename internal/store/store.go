// Package store persists users and games as JSON file snapshots. The layout
// is one directory holding users.json and games/<game_id>.json; every write
// replaces the whole file atomically (write to a temp file, then rename), so
// durability is "last successful snapshot".
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tmarais/backchannel/pkg/engine"
	"github.com/tmarais/backchannel/pkg/protocol"
)

const (
	usersFile = "users.json"
	gamesDir  = "games"
)

// UserRecord is the persisted form of a user account.
type UserRecord struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Admin        bool   `json:"admin,omitempty"`
}

// PowerRecord is the persisted per-power state of a game.
type PowerRecord struct {
	Name          string   `json:"name"`
	Controller    string   `json:"controller,omitempty"` // username, empty when vacant
	CivilDisorder bool     `json:"civil_disorder,omitempty"`
	DrawVote      bool     `json:"draw_vote,omitempty"`
	Eliminated    bool     `json:"eliminated,omitempty"`
	Wait          bool     `json:"wait,omitempty"`
	Orders        []string `json:"orders,omitempty"` // text notation, current phase
}

// GameSnapshot is the persisted form of one game.
type GameSnapshot struct {
	GameID               string               `json:"game_id"`
	Phase                string               `json:"phase"`
	Rules                []string             `json:"rules,omitempty"`
	State                engine.GameState     `json:"state"`
	Powers               []PowerRecord        `json:"powers"`
	History              []protocol.PhaseData `json:"history,omitempty"`
	DeadlineUnix         int64                `json:"deadline_unix,omitempty"`
	// DeadlineSeconds maps phase type to the game's configured deadline
	// length; missing entries use server defaults.
	DeadlineSeconds      map[string]int       `json:"deadline_seconds,omitempty"`
	RegistrationPassword string               `json:"registration_password,omitempty"`
	Observers            []string             `json:"observers,omitempty"`  // usernames
	Omniscient           []string             `json:"omniscient,omitempty"` // usernames
	Winner               string               `json:"winner,omitempty"`
	Draw                 bool                 `json:"draw,omitempty"`
}

// Store reads and writes snapshots under a single data directory.
type Store struct {
	dir string
	log zerolog.Logger
}

// Open prepares the data directory, creating it and the games subdirectory
// if missing.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, gamesDir), 0o755); err != nil {
		return nil, fmt.Errorf("store: creating %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log}, nil
}

// SaveUsers writes the full user database atomically.
func (s *Store) SaveUsers(users []UserRecord) error {
	return s.writeJSON(filepath.Join(s.dir, usersFile), users)
}

// LoadUsers reads the user database. A missing file yields an empty list.
func (s *Store) LoadUsers() ([]UserRecord, error) {
	var users []UserRecord
	err := s.readJSON(filepath.Join(s.dir, usersFile), &users)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return users, err
}

// SaveGame writes one game snapshot atomically.
func (s *Store) SaveGame(snap *GameSnapshot) error {
	if !safeGameID(snap.GameID) {
		return fmt.Errorf("store: unsafe game id %q", snap.GameID)
	}
	return s.writeJSON(s.gamePath(snap.GameID), snap)
}

// DeleteGame removes a game's snapshot file. Deleting a game that was never
// snapshotted is not an error.
func (s *Store) DeleteGame(gameID string) error {
	if !safeGameID(gameID) {
		return fmt.Errorf("store: unsafe game id %q", gameID)
	}
	err := os.Remove(s.gamePath(gameID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// safeGameID rejects ids that could name a path outside the games directory.
// The dispatcher validates ids at creation; this is the backstop in front of
// the filesystem.
func safeGameID(id string) bool {
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

// LoadGames reads every game snapshot in the games directory. Unreadable
// snapshots are logged and skipped so one corrupt file does not block boot.
func (s *Store) LoadGames() ([]*GameSnapshot, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, gamesDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: reading games dir: %w", err)
	}

	var games []*GameSnapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, gamesDir, e.Name())
		snap := &GameSnapshot{}
		if err := s.readJSON(path, snap); err != nil {
			s.log.Error().Err(err).Str("file", e.Name()).Msg("Skipping unreadable game snapshot")
			continue
		}
		games = append(games, snap)
	}
	return games, nil
}

func (s *Store) gamePath(gameID string) string {
	return filepath.Join(s.dir, gamesDir, gameID+".json")
}

// writeJSON performs an atomic write-then-rename of v marshalled as JSON.
func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("store: temp file for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: writing %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
