package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func team(id, name string) *c4.Team {
	return &c4.Team{
		Id:           id,
		Name:         name,
		Endpoint:     "http://localhost:9000/" + id,
		RegisteredAt: time.Now().Round(time.Millisecond),
	}
}

func sealed(id string, round int, a, b string, pa, pb float64) *c4.MatchRecord {
	m := &c4.MatchRecord{
		Id: id, Round: round, TeamA: a, TeamB: b,
		Status:  c4.MatchFinished,
		PointsA: pa, PointsB: pb,
	}
	for i := 1; i <= c4.GamesPerMatch; i++ {
		first, colorA := c4.Rotation(i)
		m.Games = append(m.Games, c4.GameRecord{
			Index:      i,
			FirstMover: m.Team(first),
			ColorA:     colorA,
			TimeA:      c4.Millis(100 * i),
			TimeB:      c4.Millis(50 * i),
		})
	}
	switch {
	case pa > pb:
		m.Winner = a
	case pb > pa:
		m.Winner = b
	}
	return m
}

func TestTeamsRoundTrip(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	alpha := team("t1", "Alpha")
	require.NoError(t, s.SaveTeam(ctx, alpha))
	require.NoError(t, s.SaveTeam(ctx, team("t2", "Beta")))
	// Saving the same record again must be a harmless replace
	require.NoError(t, s.SaveTeam(ctx, alpha))

	teams, err := s.Teams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "Alpha", teams[0].Name)
	assert.Equal(t, "Beta", teams[1].Name)
}

func TestScheduleRoundTrip(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	got, err := s.Schedule(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "no schedule before one is saved")

	sched := &c4.Schedule{Rounds: []c4.Round{
		{Index: 0, Matches: []string{"m1"}, Bye: "t3"},
		{Index: 1, Matches: []string{"m2"}},
	}}
	require.NoError(t, s.SaveSchedule(ctx, sched))

	got, err = s.Schedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, sched, got)
}

func TestMatchUpdateIdempotent(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	m := sealed("m1", 0, "t1", "t2", 3, 1)
	require.NoError(t, s.UpdateMatch(ctx, m))
	require.NoError(t, s.UpdateMatch(ctx, m)) // replay is safe

	matches, err := s.Matches(ctx)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, m, matches["m1"])

	one, err := s.Match(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, m, one)

	missing, err := s.Match(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNormalizeInterrupted(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	running := sealed("m1", 0, "t1", "t2", 2, 1)
	running.Status = c4.MatchInProgress
	done := sealed("m2", 0, "t3", "t4", 4, 0)
	require.NoError(t, s.UpdateMatch(ctx, running))
	require.NoError(t, s.UpdateMatch(ctx, done))

	bank := c4.ToMillis(240 * time.Second)
	require.NoError(t, s.NormalizeInterrupted(ctx, bank))

	matches, err := s.Matches(ctx)
	require.NoError(t, err)

	m1 := matches["m1"]
	assert.Equal(t, c4.MatchScheduled, m1.Status)
	assert.Empty(t, m1.Games)
	assert.Zero(t, m1.PointsA)
	assert.Equal(t, bank, m1.BankA)
	assert.Equal(t, bank, m1.BankB)

	assert.Equal(t, c4.MatchFinished, matches["m2"].Status)
}

func TestLeaderboard(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTeam(ctx, team("t1", "Alpha")))
	require.NoError(t, s.SaveTeam(ctx, team("t2", "Beta")))
	require.NoError(t, s.SaveTeam(ctx, team("t3", "Gamma")))

	require.NoError(t, s.UpdateMatch(ctx, sealed("m1", 0, "t1", "t2", 3, 1)))
	require.NoError(t, s.UpdateMatch(ctx, sealed("m2", 1, "t2", "t3", 2, 2)))

	// Unsealed matches do not count
	running := sealed("m3", 2, "t1", "t3", 4, 0)
	running.Status = c4.MatchInProgress
	require.NoError(t, s.UpdateMatch(ctx, running))

	board, err := s.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 3)

	assert.Equal(t, "Alpha", board[0].Name)
	assert.Equal(t, 3.0, board[0].Points)
	assert.Equal(t, 1, board[0].Wins)

	assert.Equal(t, "Beta", board[1].Name)
	assert.Equal(t, 3.0, board[1].Points)
	assert.Equal(t, 1, board[1].Losses)
	assert.Equal(t, 1, board[1].Draws)

	// Alpha and Beta tie on points; Alpha used less time
	assert.Less(t, board[0].TimeUsed, board[1].TimeUsed)

	assert.Equal(t, "Gamma", board[2].Name)
	assert.Equal(t, 2.0, board[2].Points)
}

func TestLeaderboardAbortedCountsTwoLosses(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTeam(ctx, team("t1", "Alpha")))
	require.NoError(t, s.SaveTeam(ctx, team("t2", "Beta")))

	m := &c4.MatchRecord{
		Id: "m1", Round: 0, TeamA: "t1", TeamB: "t2",
		Status: c4.MatchAborted,
	}
	require.NoError(t, s.UpdateMatch(ctx, m))

	board, err := s.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 2)
	for _, row := range board {
		assert.Zero(t, row.Points)
		assert.Equal(t, 1, row.Losses)
	}
}

func TestLeaderboardReplayIdentical(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTeam(ctx, team("t1", "Alpha")))
	require.NoError(t, s.SaveTeam(ctx, team("t2", "Beta")))

	updates := []*c4.MatchRecord{
		sealed("m1", 0, "t1", "t2", 3, 1),
		sealed("m2", 1, "t2", "t1", 2, 2),
	}
	for _, m := range updates {
		require.NoError(t, s.UpdateMatch(ctx, m))
	}
	first, err := s.Leaderboard(ctx)
	require.NoError(t, err)

	// Replaying the identical update stream reconstructs the
	// identical standings
	for _, m := range updates {
		require.NoError(t, s.UpdateMatch(ctx, m))
	}
	second, err := s.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestClear(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTeam(ctx, team("t1", "Alpha")))
	require.NoError(t, s.SaveSchedule(ctx, &c4.Schedule{}))
	require.NoError(t, s.UpdateMatch(ctx, sealed("m1", 0, "t1", "t2", 2, 2)))
	require.NoError(t, s.Clear(ctx))

	teams, err := s.Teams(ctx)
	require.NoError(t, err)
	assert.Empty(t, teams)

	sched, err := s.Schedule(ctx)
	require.NoError(t, err)
	assert.Nil(t, sched)

	matches, err := s.Matches(ctx)
	require.NoError(t, err)
	assert.Empty(t, matches)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Teams)
}
