// Championship Controller
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

package champ

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/agent"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/bot"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/broker"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/conf"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/sched"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/store"
)

// Operator failures, surfaced as 4xx on the admin API
var (
	ErrBadState      = errors.New("operation not allowed in the current state")
	ErrDuplicateName = errors.New("a team with this name already exists")
	ErrBadName       = errors.New("team name must be between 1 and 64 characters")
	ErrBadEndpoint   = errors.New("endpoint must be an http(s) or builtin URL")
	ErrRosterFull    = errors.New("the roster is full")
	ErrTooFewTeams   = errors.New("at least two teams are required")
	ErrUnknownMatch  = errors.New("no such match")
)

// Controller is the single owner of a championship: roster, schedule,
// coordinator lifecycle and spectator subscriptions.  Tests create
// fresh controllers; there is no process-global state.
type Controller struct {
	conf   *conf.Conf
	store  *store.Store
	broker *broker.Broker

	mu           sync.Mutex
	status       c4.Status
	teams        []*c4.Team
	schedule     *c4.Schedule
	matches      map[string]*c4.MatchRecord
	currentRound int

	base   context.Context
	cancel context.CancelCauseFunc
	active sync.WaitGroup
}

// New restores a controller from the store.  Matches that were in
// flight when the process died are reset to scheduled; the
// championship itself resumes only on an explicit start.
func New(base context.Context, cf *conf.Conf, st *store.Store, br *broker.Broker) (*Controller, error) {
	c := &Controller{
		conf:   cf,
		store:  st,
		broker: br,
		status: c4.Waiting,
		base:   base,
	}

	ctx, cancel := context.WithTimeout(base, 10*time.Second)
	defer cancel()

	if err := st.NormalizeInterrupted(ctx, c4.ToMillis(cf.Game.MatchBank)); err != nil {
		return nil, err
	}

	var err error
	if c.teams, err = st.Teams(ctx); err != nil {
		return nil, err
	}
	if c.schedule, err = st.Schedule(ctx); err != nil {
		return nil, err
	}
	if c.matches, err = st.Matches(ctx); err != nil {
		return nil, err
	}

	if c.schedule != nil && len(c.matches) > 0 {
		sealed := 0
		for _, m := range c.matches {
			if m.Sealed() {
				sealed++
			}
		}
		if sealed == len(c.matches) {
			c.status = c4.Finished
			c.currentRound = len(c.schedule.Rounds)
		}
	}

	return c, nil
}

// Register adds a team while the championship is waiting
func (c *Controller) Register(name, endpoint string) (*c4.Team, error) {
	if len(name) < 1 || len(name) > 64 {
		return nil, ErrBadName
	}
	if !validEndpoint(endpoint) {
		return nil, ErrBadEndpoint
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != c4.Waiting || c.schedule != nil {
		return nil, ErrBadState
	}
	if len(c.teams) >= c.conf.Tournament.MaxTeams {
		return nil, ErrRosterFull
	}
	for _, t := range c.teams {
		if t.Name == name {
			return nil, ErrDuplicateName
		}
	}

	team := &c4.Team{
		Id:           uuid.NewString(),
		Name:         name,
		Endpoint:     endpoint,
		RegisteredAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(c.base, 5*time.Second)
	defer cancel()
	if err := c.store.SaveTeam(ctx, team); err != nil {
		return nil, err
	}
	c.teams = append(c.teams, team)

	log.Printf("Registered team %s", team)
	c.publishStatus()
	return team, nil
}

// Start builds the schedule (unless one survives from before a
// restart) and launches the scheduler
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != c4.Waiting {
		return ErrBadState
	}
	if len(c.teams) < c.conf.Tournament.MinTeams {
		return ErrTooFewTeams
	}

	ctx, cancel := context.WithTimeout(c.base, 10*time.Second)
	defer cancel()

	if c.schedule == nil {
		schedule, matches := sched.BuildSchedule(c.teams)
		if err := c.store.SaveSchedule(ctx, schedule); err != nil {
			return err
		}
		index := make(map[string]*c4.MatchRecord, len(matches))
		for _, m := range matches {
			if err := c.store.UpdateMatch(ctx, m); err != nil {
				return err
			}
			index[m.Id] = m
		}
		c.schedule = schedule
		c.matches = index
		log.Printf("Built schedule: %d rounds, %d matches",
			len(schedule.Rounds), len(matches))
	}

	runCtx, kill := context.WithCancelCause(c.base)
	c.cancel = kill
	c.status = c4.InProgress
	c.currentRound = 0
	c.publishStatus()

	scheduler := &sched.Scheduler{
		MaxParallel: c.conf.Tournament.MaxParallel,
		Events:      c.broker,
		Runner: &sched.Runner{
			TurnCap:     c.conf.Game.TurnTimeout,
			Bank:        c.conf.Game.MatchBank,
			SetupWindow: c.conf.Game.SetupWindow,
			Store:       c.store,
			Events:      c.broker,
			Movers:      c.mover,
		},
		Hooks: sched.Hooks{
			RoundStarted: func(round int) { c.setRound(round + 1) },
			Finished:     c.finish,
		},
	}

	schedule, matches := c.schedule, c.matches
	c.active.Add(1)
	go func() {
		defer c.active.Done()
		scheduler.Run(runCtx, schedule, matches)
	}()
	return nil
}

func (c *Controller) setRound(round int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRound = round
	c.publishStatus()
}

func (c *Controller) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = c4.Finished
	log.Print("Championship finished")
	c.publishStatus()
}

// Restart cancels the running coordinator.  In-flight matches revert
// to scheduled and announce match_restart; sealed results, the roster
// and the schedule all survive, so a later start resumes the plan.
func (c *Controller) Restart() error {
	c.mu.Lock()
	if c.status != c4.InProgress {
		c.mu.Unlock()
		return ErrBadState
	}
	kill := c.cancel
	c.mu.Unlock()

	kill(c4.ErrRestart)
	c.active.Wait()

	c.mu.Lock()
	c.status = c4.Waiting
	c.currentRound = 0
	log.Print("Championship restart requested")
	c.publishStatus()
	c.mu.Unlock()
	return nil
}

// Reset cancels everything and wipes all persistent state
func (c *Controller) Reset() error {
	c.mu.Lock()
	kill := c.cancel
	c.mu.Unlock()

	if kill != nil {
		kill(c4.ErrRestart)
		c.active.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.Clear(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.status = c4.Waiting
	c.teams = nil
	c.schedule = nil
	c.matches = nil
	c.currentRound = 0
	c.cancel = nil
	log.Print("Championship state cleared")
	c.publishStatus()
	c.mu.Unlock()
	return nil
}

// Status reports the headline numbers for the admin API
func (c *Controller) Status() c4.StatusInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() c4.StatusInfo {
	total := 0
	if c.schedule != nil {
		total = len(c.schedule.Rounds)
	}
	return c4.StatusInfo{
		Status:       c.status,
		TeamCount:    len(c.teams),
		CurrentRound: c.currentRound,
		TotalRounds:  total,
	}
}

// TeamName resolves a team id for display
func (c *Controller) TeamName(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.teams {
		if t.Id == id {
			return t.Name
		}
	}
	return id
}

// Schedule returns the stored plan with current match states
func (c *Controller) Schedule(ctx context.Context) (*c4.Schedule, map[string]*c4.MatchRecord, error) {
	c.mu.Lock()
	schedule := c.schedule
	c.mu.Unlock()

	if schedule == nil {
		return nil, nil, nil
	}
	matches, err := c.store.Matches(ctx)
	if err != nil {
		return nil, nil, err
	}
	return schedule, matches, nil
}

// Leaderboard returns the current standings
func (c *Controller) Leaderboard(ctx context.Context) ([]c4.LeaderboardEntry, error) {
	return c.store.Leaderboard(ctx)
}

// Snapshot assembles the full dashboard payload
func (c *Controller) Snapshot(ctx context.Context) (*c4.Snapshot, error) {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	info := c.Status()
	snap.Status = info.Status
	snap.CurrentRound = info.CurrentRound
	snap.TotalRounds = info.TotalRounds
	return snap, nil
}

// SubscribeDashboard attaches a spectator to the dashboard topic,
// seeding its stream with the current snapshot
func (c *Controller) SubscribeDashboard(ctx context.Context) (*broker.Subscriber, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return c.broker.Subscribe(c4.DashboardTopic, c4.Event{
		Kind:     c4.EvInitialState,
		Snapshot: snap,
	}), nil
}

// SubscribeMatch attaches a spectator to a match topic.  The stream
// opens with the match card and the current game, and everyone on the
// topic learns the new spectator count.
func (c *Controller) SubscribeMatch(ctx context.Context, matchId string) (*broker.Subscriber, error) {
	m, err := c.store.Match(ctx, matchId)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrUnknownMatch
	}

	initial := []c4.Event{{Kind: c4.EvMatchInfo, Match: m}}
	if n := len(m.Games); n > 0 {
		g := m.Games[n-1]
		board := replay(&g)
		initial = append(initial, c4.Event{
			Kind: c4.EvGameInfo,
			Game: &c4.GameInfo{
				MatchId:    m.Id,
				Index:      g.Index,
				FirstMover: g.FirstMover,
				ColorA:     g.ColorA,
				ColorB:     g.ColorB,
				Board:      board,
				Verdict:    g.Verdict,
				Reason:     g.Reason,
				Winner:     g.Winner,
			},
		})
	}

	topic := c4.MatchTopic(matchId)
	sub := c.broker.Subscribe(topic, initial...)
	c.broker.Publish(topic, c4.Event{
		Kind:       c4.EvSpectatorCount,
		MatchId:    matchId,
		Spectators: c.broker.Count(topic),
	})
	return sub, nil
}

// Unsubscribe detaches a spectator and updates counts where relevant
func (c *Controller) Unsubscribe(sub *broker.Subscriber) {
	topic := sub.Topic()
	c.broker.Unsubscribe(sub)
	if topic != c4.DashboardTopic {
		c.broker.Publish(topic, c4.Event{
			Kind:       c4.EvSpectatorCount,
			MatchId:    topic[len("match:"):],
			Spectators: c.broker.Count(topic),
		})
	}
}

// Resynced re-arms overflow notification after the pump delivered a
// resync marker
func (c *Controller) Resynced(sub *broker.Subscriber) {
	c.broker.Resynced(sub)
}

// mover resolves a team id to its move endpoint.  Unknown ids fall
// back to the reference bot, so a roster wipe mid-run degrades
// gracefully instead of crashing a match.
func (c *Controller) mover(teamId string) agent.Mover {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.teams {
		if t.Id != teamId {
			continue
		}
		switch t.Endpoint {
		case "builtin:random":
			return bot.MakeRandom(time.Now().UnixNano())
		case "builtin:negamax":
			return bot.MakeNegamax(6)
		default:
			return agent.MakeRemote(t.Endpoint)
		}
	}
	return bot.MakeNegamax(4)
}

// publishStatus announces the headline numbers; c.mu must be held
func (c *Controller) publishStatus() {
	info := c.statusLocked()
	c.broker.Publish(c4.DashboardTopic, c4.Event{
		Kind:   c4.EvStatusUpdate,
		Status: &info,
	})
}

// replay reconstructs the final board of a game from its move log
func replay(g *c4.GameRecord) *c4.Board {
	var board c4.Board
	for _, m := range g.Moves {
		if _, err := board.Drop(m.Column, m.Player); err != nil {
			c4.Debug.Printf("Corrupt move log for game %d: %s", g.Index, err)
			break
		}
	}
	return &board
}

func validEndpoint(endpoint string) bool {
	if endpoint == "builtin:random" || endpoint == "builtin:negamax" {
		return true
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (c *Controller) String() string {
	return fmt.Sprintf("Championship Controller (%d teams)", len(c.teams))
}

// Shutdown cancels any in-flight coordinator
func (c *Controller) Shutdown() {
	c.mu.Lock()
	kill := c.cancel
	c.mu.Unlock()
	if kill != nil {
		kill(c4.ErrShutdown)
	}
	c.active.Wait()
}
