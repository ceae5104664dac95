// Game Driver
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

package game

import (
	"context"
	"errors"
	"time"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/agent"
)

// Sink receives the events a driver emits.  The broker satisfies it;
// tests substitute a recorder.
type Sink interface {
	Publish(topic string, ev c4.Event)
}

// Driver plays one game of a match.  It owns the board, enforces the
// per-turn deadline and the match banks, and appends the sealed
// GameRecord to the match.  The driver runs on its match runner's
// goroutine; there is no parallelism within a game.
type Driver struct {
	Match   *c4.MatchRecord
	Index   int // 1..4
	MoverA  agent.Mover
	MoverB  agent.Mover
	TurnCap time.Duration
	Events  Sink
}

// seat-local view of one side
type side struct {
	seat  c4.Seat
	team  string
	mover agent.Mover
	bank  *c4.Millis
	used  *c4.Millis
}

// Run plays the game to its terminal state and returns the sealed
// record, which has also been appended to Match.Games.  The error is
// non-nil only when CTX was cancelled; the record is still appended
// so the match can be reverted or aborted coherently.
func (d *Driver) Run(ctx context.Context) (*c4.GameRecord, error) {
	first, colorA := c4.Rotation(d.Index)
	m := d.Match

	rec := &c4.GameRecord{
		Index:      d.Index,
		FirstMover: m.Team(first),
		ColorA:     colorA,
		ColorB:     opposite(colorA),
	}
	m.Games = append(m.Games, *rec)
	topic := c4.MatchTopic(m.Id)

	d.Events.Publish(topic, c4.Event{
		Kind: c4.EvGameStart,
		Game: d.info(rec, nil),
	})

	sides := [2]*side{
		{seat: first, team: m.Team(first)},
		{seat: first.Other(), team: m.Team(first.Other())},
	}
	for _, s := range sides {
		if s.seat == c4.SeatA {
			s.mover, s.bank, s.used = d.MoverA, &m.BankA, &rec.TimeA
		} else {
			s.mover, s.bank, s.used = d.MoverB, &m.BankB, &rec.TimeB
		}
	}

	var board c4.Board
	err := d.play(ctx, &board, rec, sides, topic)
	d.score(rec)

	// Seal the record inside the match
	m.Games[len(m.Games)-1] = *rec
	m.PointsA += rec.PointsA
	m.PointsB += rec.PointsB

	d.Events.Publish(topic, c4.Event{
		Kind: c4.EvGameComplete,
		Game: d.info(rec, &board),
	})
	return rec, err
}

// play loops over turns until the game has a verdict
func (d *Driver) play(ctx context.Context, board *c4.Board, rec *c4.GameRecord, sides [2]*side, topic string) error {
	player := c4.PlayerOne // the first mover always holds player 1

	for turn := 0; ; turn++ {
		cur := sides[turn%2]

		if err := ctx.Err(); err != nil {
			rec.Verdict = c4.Voided
			rec.Reason = c4.ByOperator
			return context.Cause(ctx)
		}

		// A side whose bank is already empty forfeits without
		// an agent call
		if *cur.bank <= 0 {
			d.forfeit(rec, cur, c4.ByBank)
			return nil
		}

		legal := board.LegalMoves()
		if len(legal) == 0 {
			rec.Verdict = c4.DrawGame
			return nil
		}

		deadline := d.TurnCap
		if remaining := cur.bank.Duration(); remaining < deadline {
			deadline = remaining
		}

		req := &agent.Request{
			Board:         board,
			CurrentPlayer: player,
			ValidMoves:    legal,
		}

		start := time.Now()
		tctx, cancel := context.WithTimeout(ctx, deadline)
		col, err := cur.mover.Move(tctx, req)
		cancel()
		elapsed := time.Since(start)

		// Wall-clock spent on the call is always charged,
		// whatever the outcome
		charge := c4.ToMillis(elapsed)
		if charge > *cur.bank {
			charge = *cur.bank
		}
		*cur.bank -= charge
		*cur.used += charge

		if cause := ctx.Err(); cause != nil {
			rec.Verdict = c4.Voided
			rec.Reason = c4.ByOperator
			return context.Cause(ctx)
		}

		if err != nil {
			d.forfeit(rec, cur, failureReason(err, deadline < d.TurnCap))
			return nil
		}

		// The client validates against the legal set already;
		// re-checking keeps the board's gravity invariant out
		// of the agents' hands entirely.
		row, derr := board.Drop(col, player)
		if derr != nil {
			d.forfeit(rec, cur, c4.ByIllegal)
			return nil
		}

		move := c4.MoveRecord{
			Team:    cur.team,
			Player:  player,
			Column:  col,
			Row:     row,
			Elapsed: charge,
		}
		rec.Moves = append(rec.Moves, move)

		d.Events.Publish(topic, c4.Event{
			Kind: c4.EvMoveMade,
			Move: &c4.MoveInfo{
				MatchId:   d.Match.Id,
				GameIndex: d.Index,
				Team:      cur.team,
				Player:    player,
				Column:    col,
				Row:       row,
				Board:     board.Copy(),
				Elapsed:   charge,
			},
		})
		d.Events.Publish(topic, c4.Event{
			Kind: c4.EvGameUpdate,
			Game: d.info(rec, board.Copy()),
		})

		if winner, ok := board.Winner(); ok {
			if winner != player {
				panic("Win detected for the side that did not move")
			}
			if cur.seat == c4.SeatA {
				rec.Verdict = c4.WinA
			} else {
				rec.Verdict = c4.WinB
			}
			rec.Winner = cur.team
			return nil
		}
		if board.Full() {
			rec.Verdict = c4.DrawGame
			return nil
		}

		player = player.Other()
	}
}

// forfeit seals REC against the side CUR for REASON
func (d *Driver) forfeit(rec *c4.GameRecord, cur *side, reason c4.Reason) {
	if cur.seat == c4.SeatA {
		rec.Verdict = c4.ForfeitA
	} else {
		rec.Verdict = c4.ForfeitB
	}
	rec.Reason = reason
	rec.Winner = d.Match.Team(cur.seat.Other())
}

// score assigns the game's point split from its verdict
func (d *Driver) score(rec *c4.GameRecord) {
	switch rec.Verdict {
	case c4.WinA, c4.ForfeitB:
		rec.PointsA = 1
	case c4.WinB, c4.ForfeitA:
		rec.PointsB = 1
	case c4.DrawGame:
		rec.PointsA, rec.PointsB = 0.5, 0.5
	case c4.Voided:
		// no point awarded
	default:
		panic("Game sealed without a verdict")
	}
}

func (d *Driver) info(rec *c4.GameRecord, board *c4.Board) *c4.GameInfo {
	return &c4.GameInfo{
		MatchId:    d.Match.Id,
		Index:      rec.Index,
		FirstMover: rec.FirstMover,
		ColorA:     rec.ColorA,
		ColorB:     rec.ColorB,
		Board:      board,
		Verdict:    rec.Verdict,
		Reason:     rec.Reason,
		Winner:     rec.Winner,
	}
}

// failureReason maps an agent error onto the recorded reason.  A
// timeout while the bank bounded the deadline means the match bank
// ran dry, not that the ten second cap was missed.
func failureReason(err error, bankBound bool) c4.Reason {
	var f *agent.Failure
	if !errors.As(err, &f) {
		return c4.ByMalformed
	}
	if f.Kind == agent.Timeout && bankBound {
		return c4.ByBank
	}
	return f.Reason()
}

func opposite(c c4.Color) c4.Color {
	if c == c4.Red {
		return c4.Yellow
	}
	return c4.Red
}
