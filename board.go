// Connect-Four Board Implementation
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

package c4

import (
	"errors"
	"strings"
)

const (
	// Board dimensions.  Row 0 is the top row, discs fall towards
	// row Rows-1.
	Rows = 6
	Cols = 7

	// Number of aligned discs that wins a game
	winLength = 4
)

var ErrColumnFull = errors.New("column is full or out of range")

// Board is a Connect-Four position.  A cell holds 0 (empty), 1 or 2.
// The zero value is the initial position.
type Board [Rows][Cols]uint8

// Legal returns true if a disc may be dropped into COL
func (b *Board) Legal(col int) bool {
	return 0 <= col && col < Cols && b[0][col] == 0
}

// LegalMoves enumerates the columns that still accept a disc, in
// ascending order
func (b *Board) LegalMoves() []int {
	moves := make([]int, 0, Cols)
	for col := 0; col < Cols; col++ {
		if b.Legal(col) {
			moves = append(moves, col)
		}
	}
	return moves
}

// Drop places a disc for P into COL and returns the row it landed in
func (b *Board) Drop(col int, p Player) (int, error) {
	if !b.Legal(col) {
		return -1, ErrColumnFull
	}
	for row := Rows - 1; row >= 0; row-- {
		if b[row][col] == 0 {
			b[row][col] = uint8(p)
			return row, nil
		}
	}
	return -1, ErrColumnFull
}

// The four scan directions: east, south, south-east, north-east
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {-1, 1}}

// Winner reports the player holding four in a row, if any
func (b *Board) Winner() (Player, bool) {
	p, _, ok := b.WinningRun()
	return p, ok
}

// WinningRun returns the winning player together with the coordinates
// (row, col) of the four cells that decide the game.  The run is used
// by the spectator interface to highlight the line.
func (b *Board) WinningRun() (Player, [winLength][2]int, bool) {
	var run [winLength][2]int

	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			cell := b[row][col]
			if cell == 0 {
				continue
			}

		scan:
			for _, d := range directions {
				er, ec := row+(winLength-1)*d[0], col+(winLength-1)*d[1]
				if er < 0 || er >= Rows || ec < 0 || ec >= Cols {
					continue
				}
				for i := 1; i < winLength; i++ {
					if b[row+i*d[0]][col+i*d[1]] != cell {
						continue scan
					}
				}
				for i := 0; i < winLength; i++ {
					run[i] = [2]int{row + i*d[0], col + i*d[1]}
				}
				return Player(cell), run, true
			}
		}
	}
	return NoPlayer, run, false
}

// Full returns true if no column accepts another disc
func (b *Board) Full() bool {
	for col := 0; col < Cols; col++ {
		if b[0][col] == 0 {
			return false
		}
	}
	return true
}

// Over returns true if the position is terminal
func (b *Board) Over() bool {
	if _, ok := b.Winner(); ok {
		return true
	}
	return b.Full()
}

// MoveCount returns the number of discs on the board
func (b *Board) MoveCount() int {
	var n int
	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			if b[row][col] != 0 {
				n++
			}
		}
	}
	return n
}

// WellFormed verifies the gravity invariant: no column may have an
// empty cell below a filled one
func (b *Board) WellFormed() bool {
	for col := 0; col < Cols; col++ {
		filled := false
		for row := 0; row < Rows; row++ {
			if b[row][col] != 0 {
				filled = true
			} else if filled {
				return false
			}
		}
	}
	return true
}

// Copy returns a detached copy of the board
func (b *Board) Copy() *Board {
	c := *b
	return &c
}

// String renders the board as digit rows separated by slashes,
// top row first.  Used for logs.
func (b *Board) String() string {
	var buf strings.Builder
	for row := 0; row < Rows; row++ {
		if row > 0 {
			buf.WriteByte('/')
		}
		for col := 0; col < Cols; col++ {
			buf.WriteByte('0' + b[row][col])
		}
	}
	return buf.String()
}
