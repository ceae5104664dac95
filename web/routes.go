// Admin API Handlers
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

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/champ"
)

const dbTimeout = 20 * time.Second

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *web) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.limit)

	r.Post("/api/championship/register", s.register)
	r.Post("/api/championship/start", s.start)
	r.Post("/api/championship/restart", s.restart)
	r.Get("/api/championship/status", s.status)
	r.Get("/api/championship/schedule", s.schedule)
	r.Get("/api/championship/leaderboard", s.leaderboard)
	r.Post("/api/clear-cache", s.clearCache)

	if s.conf.Web.WebSocket {
		r.Get("/ws/dashboard", s.wsDashboard)
		r.Get("/ws/match/{id}", s.wsMatch)
	}

	r.Get("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /\n"))
	})
	return r
}

func respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c4.Debug.Print(err)
	}
}

// operatorCode maps a controller error to its HTTP status
func operatorCode(err error) int {
	switch {
	case errors.Is(err, champ.ErrBadState),
		errors.Is(err, champ.ErrTooFewTeams):
		return http.StatusConflict
	case errors.Is(err, champ.ErrDuplicateName),
		errors.Is(err, champ.ErrBadName),
		errors.Is(err, champ.ErrBadEndpoint),
		errors.Is(err, champ.ErrRosterFull):
		return http.StatusBadRequest
	case errors.Is(err, champ.ErrUnknownMatch):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *web) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TeamName    string `json:"team_name"`
		ApiEndpoint string `json:"api_endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond(w, http.StatusBadRequest, result{Message: "unparseable request body"})
		return
	}

	team, err := s.ctrl.Register(body.TeamName, body.ApiEndpoint)
	if err != nil {
		respond(w, operatorCode(err), result{Message: err.Error()})
		return
	}
	respond(w, http.StatusOK, result{
		Success: true,
		Message: "registered " + team.Name,
	})
}

func (s *web) start(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(); err != nil {
		respond(w, operatorCode(err), result{Message: err.Error()})
		return
	}
	respond(w, http.StatusOK, result{Success: true, Message: "championship started"})
}

func (s *web) restart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Restart(); err != nil {
		respond(w, operatorCode(err), result{Message: err.Error()})
		return
	}
	respond(w, http.StatusOK, result{Success: true, Message: "championship restarted"})
}

func (s *web) status(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.ctrl.Status())
}

type scheduleMatch struct {
	MatchId     string         `json:"match_id"`
	TeamA       string         `json:"team_a"`
	TeamB       string         `json:"team_b"`
	Status      c4.MatchStatus `json:"status"`
	Winner      string         `json:"winner,omitempty"`
	TeamAPoints float64        `json:"team_a_points"`
	TeamBPoints float64        `json:"team_b_points"`
}

type scheduleRound struct {
	Round   int             `json:"round"`
	Bye     string          `json:"bye,omitempty"`
	Matches []scheduleMatch `json:"matches"`
}

func (s *web) schedule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	plan, matches, err := s.ctrl.Schedule(ctx)
	if err != nil {
		respond(w, http.StatusInternalServerError, result{Message: err.Error()})
		return
	}

	rounds := []scheduleRound{}
	if plan != nil {
		for _, round := range plan.Rounds {
			sr := scheduleRound{
				Round:   round.Index,
				Matches: []scheduleMatch{},
			}
			if round.Bye != "" {
				sr.Bye = s.ctrl.TeamName(round.Bye)
			}
			for _, id := range round.Matches {
				m := matches[id]
				if m == nil {
					continue
				}
				sr.Matches = append(sr.Matches, scheduleMatch{
					MatchId:     m.Id,
					TeamA:       s.ctrl.TeamName(m.TeamA),
					TeamB:       s.ctrl.TeamName(m.TeamB),
					Status:      m.Status,
					Winner:      s.winnerName(m),
					TeamAPoints: m.PointsA,
					TeamBPoints: m.PointsB,
				})
			}
			rounds = append(rounds, sr)
		}
	}
	respond(w, http.StatusOK, struct {
		Rounds []scheduleRound `json:"rounds"`
	}{rounds})
}

func (s *web) winnerName(m *c4.MatchRecord) string {
	if m.Winner == "" {
		return ""
	}
	return s.ctrl.TeamName(m.Winner)
}

func (s *web) leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), dbTimeout)
	defer cancel()

	board, err := s.ctrl.Leaderboard(ctx)
	if err != nil {
		respond(w, http.StatusInternalServerError, result{Message: err.Error()})
		return
	}

	rows := make([]struct {
		TeamName string  `json:"team_name"`
		Points   float64 `json:"points"`
	}, 0, len(board))
	for _, e := range board {
		rows = append(rows, struct {
			TeamName string  `json:"team_name"`
			Points   float64 `json:"points"`
		}{e.Name, e.Points})
	}
	respond(w, http.StatusOK, rows)
}

func (s *web) clearCache(w http.ResponseWriter, r *http.Request) {
	if token := s.conf.Web.AdminToken; token != "" {
		if r.Header.Get("X-Admin-Token") != token {
			respond(w, http.StatusForbidden, result{Message: "admin token required"})
			return
		}
	}
	if err := s.ctrl.Reset(); err != nil {
		respond(w, http.StatusInternalServerError, result{Message: err.Error()})
		return
	}
	respond(w, http.StatusOK, result{Success: true, Message: "state cleared"})
}
