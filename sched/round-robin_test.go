package sched

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
)

func roster(n int) []*c4.Team {
	teams := make([]*c4.Team, n)
	for i := range teams {
		teams[i] = &c4.Team{
			Id:   fmt.Sprintf("t%02d", i),
			Name: fmt.Sprintf("Team %02d", i),
		}
	}
	return teams
}

func TestBuildSchedulePairCoverage(t *testing.T) {
	for n := 2; n <= 20; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			teams := roster(n)
			sched, matches := BuildSchedule(teams)

			assert.Len(t, matches, n*(n-1)/2,
				"match count must be n(n-1)/2")

			wantRounds := n - 1
			if n%2 == 1 {
				wantRounds = n
			}
			assert.Len(t, sched.Rounds, wantRounds)

			// Every unordered pair appears exactly once
			pairs := make(map[string]int)
			for _, m := range matches {
				a, b := m.TeamA, m.TeamB
				require.NotEqual(t, a, b, "a team never plays itself")
				if a > b {
					a, b = b, a
				}
				pairs[a+"|"+b]++
			}
			for pair, count := range pairs {
				assert.Equalf(t, 1, count, "pair %s scheduled %d times", pair, count)
			}
			assert.Len(t, pairs, n*(n-1)/2)

			// Within a round no team plays twice
			index := make(map[string]*c4.MatchRecord)
			for _, m := range matches {
				index[m.Id] = m
			}
			for _, round := range sched.Rounds {
				busy := make(map[string]bool)
				for _, id := range round.Matches {
					m := index[id]
					require.NotNil(t, m)
					assert.Equal(t, round.Index, m.Round)
					assert.False(t, busy[m.TeamA], "team plays twice in round %d", round.Index)
					assert.False(t, busy[m.TeamB], "team plays twice in round %d", round.Index)
					busy[m.TeamA] = true
					busy[m.TeamB] = true
				}
				if n%2 == 1 {
					assert.NotEmpty(t, round.Bye)
					assert.False(t, busy[round.Bye], "the bye team still plays")
				} else {
					assert.Empty(t, round.Bye)
				}
			}
		})
	}
}

func TestBuildScheduleByeRotates(t *testing.T) {
	sched, matches := BuildSchedule(roster(3))
	require.Len(t, sched.Rounds, 3)
	require.Len(t, matches, 3)

	byes := make(map[string]int)
	for _, round := range sched.Rounds {
		require.Len(t, round.Matches, 1, "one real match per round")
		byes[round.Bye]++
	}
	assert.Len(t, byes, 3, "each team sits out exactly once")

	// Every team gets exactly two real matches
	games := make(map[string]int)
	for _, m := range matches {
		games[m.TeamA]++
		games[m.TeamB]++
	}
	for team, n := range games {
		assert.Equalf(t, 2, n, "team %s plays %d matches", team, n)
	}
}

func TestBuildScheduleSingleRoundForTwo(t *testing.T) {
	sched, matches := BuildSchedule(roster(2))
	require.Len(t, sched.Rounds, 1)
	require.Len(t, matches, 1)
	assert.Equal(t, c4.MatchScheduled, matches[0].Status)
	assert.NotEmpty(t, matches[0].Id)
}

func TestBuildScheduleDeterministicPairings(t *testing.T) {
	one, _ := BuildSchedule(roster(8))
	two, _ := BuildSchedule(roster(8))

	require.Equal(t, len(one.Rounds), len(two.Rounds))
	for i := range one.Rounds {
		assert.Equal(t, one.Rounds[i].Bye, two.Rounds[i].Bye)
		assert.Equal(t, len(one.Rounds[i].Matches), len(two.Rounds[i].Matches))
	}
}
