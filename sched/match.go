// Match Runner
//
// Copyright (c) 2024, 2025  Quy Nguyen
//
// This file is part of the DeepRL Connect-4 agent platform.
//
// This program is free software: you can redistribute it and/or
// modify it under the terms of the GNU Affero General Public License,
// version 3, as published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public
// License, version 3, along with this program. If not, see
// <http://www.gnu.org/licenses/>

package sched

import (
	"context"
	"errors"
	"log"
	"time"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/agent"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/game"
)

// Storage is the slice of the store a runner needs: its own record
// plus the derived standings it announces after sealing.
type Storage interface {
	UpdateMatch(ctx context.Context, m *c4.MatchRecord) error
	Leaderboard(ctx context.Context) ([]c4.LeaderboardEntry, error)
}

// Runner drives one match: four games under the color and first-move
// rotation, shared time banks, and the setup reachability probe.  The
// runner holds the only write lease on its MatchRecord.
type Runner struct {
	TurnCap     time.Duration
	Bank        time.Duration
	SetupWindow time.Duration

	Store  Storage
	Events game.Sink
	// Movers resolves a team id to its move endpoint
	Movers func(team string) agent.Mover
}

// Run executes the match to a terminal state.  On a cancellation
// caused by a restart command the record reverts to scheduled instead
// of sealing, so a later start replays it from game 1.
func (r *Runner) Run(ctx context.Context, m *c4.MatchRecord) {
	topic := c4.MatchTopic(m.Id)
	moverA, moverB := r.Movers(m.TeamA), r.Movers(m.TeamB)

	m.Status = c4.MatchInProgress
	m.Games = nil
	m.PointsA, m.PointsB = 0, 0
	m.BankA = c4.ToMillis(r.Bank)
	m.BankB = c4.ToMillis(r.Bank)
	m.Winner = ""
	r.save(ctx, m)
	r.announce(m)
	r.Events.Publish(topic, c4.Event{Kind: c4.EvMatchInfo, Match: m.Copy()})

	if !r.reachable(ctx, moverA, moverB) {
		if r.revert(ctx, m) {
			return
		}
		c4.Debug.Printf("Match %s: neither endpoint reachable", m.Id)
		r.abort(ctx, m, c4.BySetup)
		return
	}

	for index := 1; index <= c4.GamesPerMatch; index++ {
		driver := &game.Driver{
			Match:   m,
			Index:   index,
			MoverA:  moverA,
			MoverB:  moverB,
			TurnCap: r.TurnCap,
			Events:  r.Events,
		}
		if _, err := driver.Run(ctx); err != nil {
			if r.revert(ctx, m) {
				return
			}
			r.abort(ctx, m, c4.ByOperator)
			return
		}
		r.save(ctx, m)
		r.announce(m)
	}

	switch {
	case m.PointsA > m.PointsB:
		m.Winner = m.TeamA
	case m.PointsB > m.PointsA:
		m.Winner = m.TeamB
	}
	m.Status = c4.MatchFinished
	r.seal(ctx, m)
}

// reachable probes both endpoints with the opening position inside
// the setup window.  Any HTTP answer counts, even a malformed or
// illegal one; only a silent or refusing endpoint does not.
func (r *Runner) reachable(ctx context.Context, movers ...agent.Mover) bool {
	sctx, cancel := context.WithTimeout(ctx, r.SetupWindow)
	defer cancel()

	var board c4.Board
	probe := &agent.Request{
		Board:         &board,
		CurrentPlayer: c4.PlayerOne,
		ValidMoves:    board.LegalMoves(),
	}

	ok := make(chan bool, len(movers))
	for _, m := range movers {
		go func(m agent.Mover) {
			_, err := m.Move(sctx, probe)
			var f *agent.Failure
			if errors.As(err, &f) {
				ok <- f.Kind == agent.Malformed || f.Kind == agent.Illegal
				return
			}
			ok <- err == nil
		}(m)
	}

	for range movers {
		if <-ok {
			cancel()
			return true
		}
	}
	return false
}

// abort seals the match with zero points.  The four game records are
// still emitted so spectator interfaces render a complete card.
func (r *Runner) abort(ctx context.Context, m *c4.MatchRecord, reason c4.Reason) {
	topic := c4.MatchTopic(m.Id)
	for index := len(m.Games) + 1; index <= c4.GamesPerMatch; index++ {
		first, colorA := c4.Rotation(index)
		rec := c4.GameRecord{
			Index:      index,
			FirstMover: m.Team(first),
			ColorA:     colorA,
			ColorB:     colorB(colorA),
			Verdict:    c4.Voided,
			Reason:     reason,
		}
		m.Games = append(m.Games, rec)
		r.Events.Publish(topic, c4.Event{Kind: c4.EvGameStart, Game: gameInfo(m, &rec)})
		r.Events.Publish(topic, c4.Event{Kind: c4.EvGameComplete, Game: gameInfo(m, &rec)})
	}
	for i := range m.Games {
		if m.Games[i].Verdict == "" {
			m.Games[i].Verdict = c4.Voided
			m.Games[i].Reason = reason
		}
	}

	m.Status = c4.MatchAborted
	m.PointsA, m.PointsB = 0, 0
	m.Winner = ""
	r.seal(ctx, m)
}

// revert handles a restart or shutdown cancellation: the record goes
// back to scheduled so a later start replays the match from game 1.
// Spectators are told to reload on a restart; a shutdown has nobody
// left to tell.  Returns false for any other cancellation cause.
func (r *Runner) revert(ctx context.Context, m *c4.MatchRecord) bool {
	cause := context.Cause(ctx)
	restart := errors.Is(cause, c4.ErrRestart)
	if !restart && !errors.Is(cause, c4.ErrShutdown) {
		return false
	}

	m.Status = c4.MatchScheduled
	m.Games = nil
	m.PointsA, m.PointsB = 0, 0
	m.BankA = c4.ToMillis(r.Bank)
	m.BankB = c4.ToMillis(r.Bank)
	m.Winner = ""
	// The runner's context is gone; the write must still land
	r.save(context.Background(), m)
	if restart {
		r.Events.Publish(c4.MatchTopic(m.Id), c4.Event{Kind: c4.EvMatchRestart, MatchId: m.Id})
		r.announce(m)
	}
	return true
}

// seal performs the terminal store write and only then announces the
// new standings
func (r *Runner) seal(ctx context.Context, m *c4.MatchRecord) {
	r.save(ctx, m)
	r.announce(m)

	board, err := r.Store.Leaderboard(context.Background())
	if err != nil {
		log.Print(err)
		return
	}
	r.Events.Publish(c4.DashboardTopic, c4.Event{
		Kind:        c4.EvLeaderboardUpdate,
		Leaderboard: board,
	})
}

func (r *Runner) save(ctx context.Context, m *c4.MatchRecord) {
	// Sealing writes must not be lost to a cancelled context
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := r.Store.UpdateMatch(ctx, m); err != nil {
		log.Print(err)
	}
}

func (r *Runner) announce(m *c4.MatchRecord) {
	ev := c4.Event{Kind: c4.EvMatchUpdate, Match: m.Copy()}
	r.Events.Publish(c4.DashboardTopic, ev)
	r.Events.Publish(c4.MatchTopic(m.Id), ev)
}

func gameInfo(m *c4.MatchRecord, rec *c4.GameRecord) *c4.GameInfo {
	return &c4.GameInfo{
		MatchId:    m.Id,
		Index:      rec.Index,
		FirstMover: rec.FirstMover,
		ColorA:     rec.ColorA,
		ColorB:     rec.ColorB,
		Verdict:    rec.Verdict,
		Reason:     rec.Reason,
		Winner:     rec.Winner,
	}
}

func colorB(a c4.Color) c4.Color {
	if a == c4.Red {
		return c4.Yellow
	}
	return c4.Red
}
