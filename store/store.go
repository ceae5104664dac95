// Durable Championship State
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

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"path"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
)

//go:embed *.sql
var sqlDir embed.FS

// Store owns all persistent records.  The SQL statements live in
// ./*.sql and are loaded into prepared statements: select-* run on
// the read connection, everything else on the single-writer
// connection.  All writes are keyed INSERT OR REPLACE, so replays
// after a crash are safe.
type Store struct {
	read  *sql.DB
	write *sql.DB

	queries  map[string]*sql.Stmt
	commands map[string]*sql.Stmt
}

// Open initialises the database, creating the schema if necessary
func Open(file string) (*Store, error) {
	read, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, err
	}
	read.SetConnMaxLifetime(0)
	read.SetMaxIdleConns(1)

	write, err := sql.Open("sqlite3", file)
	if err != nil {
		read.Close()
		return nil, err
	}
	write.SetConnMaxLifetime(0)
	write.SetMaxIdleConns(1)
	write.SetMaxOpenConns(1)

	s := &Store{
		read:     read,
		write:    write,
		queries:  make(map[string]*sql.Stmt),
		commands: make(map[string]*sql.Stmt),
	}

	for _, pragma := range []string{
		"journal_mode = WAL",
		"synchronous = normal",
		"temp_store = memory",
		"foreign_keys = on",
	} {
		c4.Debug.Printf("Run PRAGMA %v", pragma)
		if _, err := s.write.Exec("PRAGMA " + pragma + ";"); err != nil {
			s.Close()
			return nil, err
		}
	}

	entries, err := sqlDir.ReadDir(".")
	if err != nil {
		s.Close()
		return nil, err
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		base := path.Base(entry.Name())
		data, err := fs.ReadFile(sqlDir, entry.Name())
		if err != nil {
			s.Close()
			return nil, err
		}

		if strings.HasPrefix(base, "create-") {
			_, err = s.write.Exec(string(data))
			c4.Debug.Printf("Executed %v", base)
		} else {
			name := strings.TrimSuffix(base, ".sql")
			if strings.HasPrefix(name, "select-") {
				s.queries[name], err = s.read.Prepare(string(data))
			} else {
				s.commands[name], err = s.write.Prepare(string(data))
			}
		}
		if err != nil {
			s.Close()
			return nil, errors.New(entry.Name() + ": " + err.Error())
		}
	}
	if len(s.queries) == 0 {
		panic("No queries loaded")
	}

	return s, nil
}

// SaveTeam upserts a team record
func (s *Store) SaveTeam(ctx context.Context, t *c4.Team) error {
	_, err := s.commands["insert-team"].ExecContext(ctx,
		t.Id, t.Name, t.Endpoint, t.RegisteredAt)
	return err
}

// Teams returns the roster in registration order
func (s *Store) Teams(ctx context.Context) ([]*c4.Team, error) {
	rows, err := s.queries["select-teams"].QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []*c4.Team
	for rows.Next() {
		var t c4.Team
		if err := rows.Scan(&t.Id, &t.Name, &t.Endpoint, &t.RegisteredAt); err != nil {
			return nil, err
		}
		teams = append(teams, &t)
	}
	return teams, rows.Err()
}

// SaveSchedule persists the schedule blob
func (s *Store) SaveSchedule(ctx context.Context, sched *c4.Schedule) error {
	data, err := json.Marshal(sched)
	if err != nil {
		return err
	}
	_, err = s.commands["insert-schedule"].ExecContext(ctx, string(data))
	return err
}

// Schedule returns the stored schedule, or nil if none was built yet
func (s *Store) Schedule(ctx context.Context) (*c4.Schedule, error) {
	var data string
	err := s.queries["select-schedule"].QueryRowContext(ctx).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sched c4.Schedule
	if err := json.Unmarshal([]byte(data), &sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

// UpdateMatch writes a match record.  Last writer wins, which is safe
// because exactly one runner owns a match at a time.
func (s *Store) UpdateMatch(ctx context.Context, m *c4.MatchRecord) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.commands["insert-match"].ExecContext(ctx,
		m.Id, m.Round, m.TeamA, m.TeamB, string(m.Status), string(data))
	return err
}

// Match loads a single match record
func (s *Store) Match(ctx context.Context, id string) (*c4.MatchRecord, error) {
	var data string
	err := s.queries["select-match"].QueryRowContext(ctx, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var m c4.MatchRecord
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Matches loads every match record, keyed by id
func (s *Store) Matches(ctx context.Context) (map[string]*c4.MatchRecord, error) {
	rows, err := s.queries["select-matches"].QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make(map[string]*c4.MatchRecord)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m c4.MatchRecord
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		matches[m.Id] = &m
	}
	return matches, rows.Err()
}

// NormalizeInterrupted resets matches that were in flight when the
// process died.  They restart from game 1 the next time the
// scheduler reaches them.
func (s *Store) NormalizeInterrupted(ctx context.Context, bank c4.Millis) error {
	matches, err := s.Matches(ctx)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if m.Status != c4.MatchInProgress {
			continue
		}
		m.Status = c4.MatchScheduled
		m.Games = nil
		m.PointsA, m.PointsB = 0, 0
		m.BankA, m.BankB = bank, bank
		m.Winner = ""
		if err := s.UpdateMatch(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Leaderboard derives the standings from the sealed match records.
// Points accumulate per game; wins, draws and losses count per match,
// with an aborted match scored as a loss for both sides.  Rows sort
// by descending points, ascending time used, then name.
func (s *Store) Leaderboard(ctx context.Context) ([]c4.LeaderboardEntry, error) {
	teams, err := s.Teams(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := s.Matches(ctx)
	if err != nil {
		return nil, err
	}

	rows := make(map[string]*c4.LeaderboardEntry, len(teams))
	order := make([]string, 0, len(teams))
	for _, t := range teams {
		rows[t.Id] = &c4.LeaderboardEntry{TeamId: t.Id, Name: t.Name}
		order = append(order, t.Id)
	}

	for _, m := range matches {
		if !m.Sealed() {
			continue
		}
		a, b := rows[m.TeamA], rows[m.TeamB]
		if a == nil || b == nil {
			continue
		}

		a.Points += m.PointsA
		b.Points += m.PointsB
		for _, g := range m.Games {
			a.TimeUsed += g.TimeA
			b.TimeUsed += g.TimeB
		}

		switch {
		case m.Status == c4.MatchAborted:
			a.Losses++
			b.Losses++
		case m.PointsA > m.PointsB:
			a.Wins++
			b.Losses++
		case m.PointsA < m.PointsB:
			a.Losses++
			b.Wins++
		default:
			a.Draws++
			b.Draws++
		}
	}

	board := make([]c4.LeaderboardEntry, 0, len(order))
	for _, id := range order {
		board = append(board, *rows[id])
	}
	sort.SliceStable(board, func(i, j int) bool {
		if board[i].Points != board[j].Points {
			return board[i].Points > board[j].Points
		}
		if board[i].TimeUsed != board[j].TimeUsed {
			return board[i].TimeUsed < board[j].TimeUsed
		}
		return board[i].Name < board[j].Name
	})
	return board, nil
}

// Snapshot assembles the dashboard payload for a fresh spectator
func (s *Store) Snapshot(ctx context.Context) (*c4.Snapshot, error) {
	teams, err := s.Teams(ctx)
	if err != nil {
		return nil, err
	}
	sched, err := s.Schedule(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := s.Matches(ctx)
	if err != nil {
		return nil, err
	}
	board, err := s.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}

	return &c4.Snapshot{
		Teams:       teams,
		Schedule:    sched,
		Matches:     matches,
		Leaderboard: board,
	}, nil
}

// Clear wipes all persistent state
func (s *Store) Clear(ctx context.Context) error {
	for _, cmd := range []string{"delete-matches", "delete-schedule", "delete-teams"} {
		if _, err := s.commands[cmd].ExecContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (*Store) String() string { return "Database Manager" }

// Start is part of the Manager interface; the store is passive
func (*Store) Start() {}

// Shutdown optimises and closes both connections
func (s *Store) Shutdown() {
	if _, err := s.write.Exec("PRAGMA optimize;"); err != nil {
		log.Print(err)
	}
	s.Close()
}

// Close releases both database handles
func (s *Store) Close() {
	if err := s.write.Close(); err != nil {
		log.Print(err)
	}
	if err := s.read.Close(); err != nil {
		log.Print(err)
	}
}
