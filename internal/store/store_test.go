package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tmarais/backchannel/pkg/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestUsersRoundTrip(t *testing.T) {
	s := newTestStore(t)

	users, err := s.LoadUsers()
	require.NoError(t, err)
	require.Empty(t, users, "fresh store has no users")

	want := []UserRecord{
		{Username: "alice", PasswordHash: "abc123"},
		{Username: "bob", PasswordHash: "def456", Admin: true},
	}
	require.NoError(t, s.SaveUsers(want))

	got, err := s.LoadUsers()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGameRoundTrip(t *testing.T) {
	s := newTestStore(t)

	snap := &GameSnapshot{
		GameID: "test-game",
		Phase:  "S1901M",
		Rules:  []string{engine.RuleBuildAny},
		State:  *engine.NewInitialState(engine.StandardMap()),
		Powers: []PowerRecord{
			{Name: "france", Controller: "alice", Orders: []string{"A par - bur"}},
			{Name: "germany", CivilDisorder: true},
		},
		DeadlineUnix: 1700000000,
	}
	require.NoError(t, s.SaveGame(snap))

	games, err := s.LoadGames()
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Equal(t, snap.GameID, games[0].GameID)
	require.Equal(t, snap.Phase, games[0].Phase)
	require.Equal(t, snap.Powers, games[0].Powers)
	require.Equal(t, len(snap.State.Units), len(games[0].State.Units))
}

func TestSaveGameReplacesAtomically(t *testing.T) {
	s := newTestStore(t)

	snap := &GameSnapshot{GameID: "g", Phase: "S1901M"}
	require.NoError(t, s.SaveGame(snap))
	snap.Phase = "F1901M"
	require.NoError(t, s.SaveGame(snap))

	games, err := s.LoadGames()
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Equal(t, "F1901M", games[0].Phase)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(s.dir, gamesDir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDeleteGame(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveGame(&GameSnapshot{GameID: "g", Phase: "S1901M"}))
	require.NoError(t, s.DeleteGame("g"))
	require.NoError(t, s.DeleteGame("g"), "deleting twice is not an error")

	games, err := s.LoadGames()
	require.NoError(t, err)
	require.Empty(t, games)
}

func TestSaveGameRejectsUnsafeID(t *testing.T) {
	s := newTestStore(t)

	want := []UserRecord{{Username: "alice", PasswordHash: "abc123"}}
	require.NoError(t, s.SaveUsers(want))

	for _, id := range []string{"../users", "games/../../users", "g.json", "a b", ""} {
		require.Error(t, s.SaveGame(&GameSnapshot{GameID: id}), "id %q", id)
		require.Error(t, s.DeleteGame(id), "id %q", id)
	}

	// The user database is untouched and no snapshot files appeared.
	got, err := s.LoadUsers()
	require.NoError(t, err)
	require.Equal(t, want, got)
	games, err := s.LoadGames()
	require.NoError(t, err)
	require.Empty(t, games)
}

func TestCorruptSnapshotIsSkipped(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveGame(&GameSnapshot{GameID: "good", Phase: "S1901M"}))
	bad := filepath.Join(s.dir, gamesDir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	games, err := s.LoadGames()
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Equal(t, "good", games[0].GameID)
}
