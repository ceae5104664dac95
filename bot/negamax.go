// Primitive Negamax Agent
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

package bot

import (
	"context"
	"errors"
	"fmt"
	"math"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/agent"
)

// The reference opponent used when a registered team has no external
// endpoint.  Alpha-beta pruning only reduces the load imposed on the
// server; the agent always finishes within its ply cutoff, long
// before the per-turn deadline matters at these depths.

type negamax struct {
	depth int // ply cutoff
}

const winScore = 1 << 20

// Columns ordered centre-out; searching the strongest columns first
// makes the pruning effective.
var searchOrder = [c4.Cols]int{3, 2, 4, 1, 5, 0, 6}

func (n *negamax) Move(ctx context.Context, req *agent.Request) (int, error) {
	if len(req.ValidMoves) == 0 {
		return -1, errors.New("no legal moves")
	}

	move, _ := search(ctx, req.Board, req.CurrentPlayer, n.depth,
		math.MinInt32, math.MaxInt32)
	if move < 0 {
		// Deadline hit before the first subtree finished
		move = req.ValidMoves[0]
	}
	return move, nil
}

func (n *negamax) String() string { return fmt.Sprintf("negamax-%d", n.depth) }

// search evaluates the position for SELF and returns the best column
// together with its score.  A column of -1 means no subtree was
// evaluated.
func search(ctx context.Context, b *c4.Board, self c4.Player, depth, alpha, beta int) (int, int) {
	best, bestScore := -1, math.MinInt32

	for _, col := range searchOrder {
		if !b.Legal(col) {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}

		next := b.Copy()
		next.Drop(col, self)

		var score int
		switch {
		case won(next, self):
			// Prefer quicker wins
			score = winScore + depth
		case next.Full():
			score = 0
		case depth == 0:
			score = evaluate(next, self)
		default:
			_, opp := search(ctx, next, self.Other(), depth-1, -beta, -alpha)
			score = -opp
		}

		if score > bestScore {
			best, bestScore = col, score
		}
		if bestScore > alpha {
			alpha = bestScore
		}
		if alpha >= beta {
			break
		}
	}
	return best, bestScore
}

func won(b *c4.Board, p c4.Player) bool {
	w, ok := b.Winner()
	return ok && w == p
}

// evaluate scores a non-terminal position: open three-in-a-rows
// dominate, then twos, plus a small centre-column preference.
func evaluate(b *c4.Board, self c4.Player) int {
	var score int

	for row := 0; row < c4.Rows; row++ {
		for col := 0; col < c4.Cols; col++ {
			if c4.Player(b[row][col]) == self && col == c4.Cols/2 {
				score += 3
			}
		}
	}

	// Slide a window of four over every line direction
	dirs := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {-1, 1}}
	for row := 0; row < c4.Rows; row++ {
		for col := 0; col < c4.Cols; col++ {
			for _, d := range dirs {
				er, ec := row+3*d[0], col+3*d[1]
				if er < 0 || er >= c4.Rows || ec >= c4.Cols {
					continue
				}
				var mine, theirs int
				for i := 0; i < 4; i++ {
					switch c4.Player(b[row+i*d[0]][col+i*d[1]]) {
					case self:
						mine++
					case self.Other():
						theirs++
					}
				}
				switch {
				case mine > 0 && theirs > 0:
					// contested window
				case mine == 3:
					score += 32
				case mine == 2:
					score += 4
				case theirs == 3:
					score -= 48
				case theirs == 2:
					score -= 4
				}
			}
		}
	}
	return score
}

// MakeNegamax returns a reference agent searching DEPTH plies
func MakeNegamax(depth int) agent.Mover {
	if depth < 1 {
		depth = 1
	}
	return &negamax{depth: depth}
}
