// Spectator Events
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

// Topic names.  Every match has its own topic next to the shared
// dashboard topic.
const DashboardTopic = "dashboard"

func MatchTopic(matchId string) string { return "match:" + matchId }

// EventKind tags an Event.  The wire shape is the JSON "type" field
// the frontend dispatches on.
type EventKind string

const (
	// Dashboard topic
	EvInitialState      EventKind = "initial_state"
	EvStatusUpdate      EventKind = "status_update"
	EvRoundStart        EventKind = "round_start"
	EvRoundComplete     EventKind = "round_complete"
	EvMatchUpdate       EventKind = "match_update"
	EvLeaderboardUpdate EventKind = "leaderboard_update"

	// Match topics
	EvMatchInfo      EventKind = "championship_match_info"
	EvGameInfo       EventKind = "game_info"
	EvGameStart      EventKind = "game_start"
	EvGameUpdate     EventKind = "game_update"
	EvMoveMade       EventKind = "move_made"
	EvGameComplete   EventKind = "game_complete"
	EvSpectatorCount EventKind = "spectator_count"
	EvMatchRestart   EventKind = "match_restart"

	// Any topic: the subscriber fell behind and must refetch a
	// snapshot
	EvResync EventKind = "resync"
)

// StatusInfo mirrors the status endpoint payload
type StatusInfo struct {
	Status       Status `json:"status"`
	TeamCount    int    `json:"team_count"`
	CurrentRound int    `json:"current_round"`
	TotalRounds  int    `json:"total_rounds"`
}

// GameInfo describes one game of a match for spectators
type GameInfo struct {
	MatchId    string  `json:"match_id"`
	Index      int     `json:"game_index"`
	FirstMover string  `json:"first_mover"`
	ColorA     Color   `json:"team_a_color"`
	ColorB     Color   `json:"team_b_color"`
	Board      *Board  `json:"board,omitempty"`
	Verdict    Verdict `json:"terminal,omitempty"`
	Reason     Reason  `json:"reason,omitempty"`
	Winner     string  `json:"winner,omitempty"`
}

// MoveInfo describes a single applied move
type MoveInfo struct {
	MatchId   string `json:"match_id"`
	GameIndex int    `json:"game_index"`
	Team      string `json:"team_id"`
	Player    Player `json:"player"`
	Column    int    `json:"column"`
	Row       int    `json:"row"`
	Board     *Board `json:"board_after"`
	Elapsed   Millis `json:"elapsed_ms"`
}

// Event is the tagged variant delivered over a topic.  Exactly the
// payload fields relevant to Kind are set.  Unset pointer, slice and
// string payloads are omitted on the wire; Round and Spectators are
// always present and read 0 when unset.
type Event struct {
	Kind EventKind `json:"type"`

	Status      *StatusInfo        `json:"status,omitempty"`
	Snapshot    *Snapshot          `json:"snapshot,omitempty"`
	Round       int                `json:"round"`
	Match       *MatchRecord       `json:"match,omitempty"`
	Game        *GameInfo          `json:"game,omitempty"`
	Move        *MoveInfo          `json:"move,omitempty"`
	Leaderboard []LeaderboardEntry `json:"leaderboard,omitempty"`
	Spectators  int                `json:"spectators"`
	MatchId     string             `json:"match_id,omitempty"`
}
