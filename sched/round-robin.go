// Round Robin Scheduler
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

	"github.com/google/uuid"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/game"
)

// BuildSchedule pairs every team against every other exactly once
// using the circle method: the first roster entry stays fixed while
// the rest rotate one position per round.  An odd roster gets a
// phantom entry; whoever it pairs with sits the round out.  The
// result is deterministic for a given roster order.
func BuildSchedule(teams []*c4.Team) (*c4.Schedule, []*c4.MatchRecord) {
	ids := make([]string, 0, len(teams)+1)
	for _, t := range teams {
		ids = append(ids, t.Id)
	}
	if len(ids)%2 == 1 {
		ids = append(ids, "") // bye
	}

	var (
		n       = len(ids)
		sched   = &c4.Schedule{}
		matches []*c4.MatchRecord
	)

	for round := 0; round < n-1; round++ {
		r := c4.Round{Index: round}

		for i := 0; i < n/2; i++ {
			a, b := ids[i], ids[n-1-i]
			if a == "" || b == "" {
				if a == "" {
					r.Bye = b
				} else {
					r.Bye = a
				}
				continue
			}

			m := &c4.MatchRecord{
				Id:     uuid.NewString(),
				Round:  round,
				TeamA:  a,
				TeamB:  b,
				Status: c4.MatchScheduled,
			}
			matches = append(matches, m)
			r.Matches = append(r.Matches, m.Id)
		}
		sched.Rounds = append(sched.Rounds, r)

		// Rotate everything but the first entry
		last := ids[n-1]
		copy(ids[2:], ids[1:n-1])
		ids[1] = last
	}

	return sched, matches
}

// Hooks let the controller observe round progression without the
// scheduler reaching back into it
type Hooks struct {
	// RoundStarted is invoked before a round's matches dispatch
	RoundStarted func(round int)
	// RoundDone is invoked once every match of the round sealed
	RoundDone func(round int)
	// Finished is invoked after the last round, unless cancelled
	Finished func()
}

// Scheduler executes a schedule: rounds strictly in order, the
// matches of a round through a worker pool bounded by MaxParallel.
type Scheduler struct {
	MaxParallel int
	Runner      *Runner
	Events      game.Sink
	Hooks       Hooks
}

// Run drives all rounds to completion.  Matches already sealed are
// skipped, which is how a restarted championship resumes mid plan.
func (s *Scheduler) Run(ctx context.Context, sched *c4.Schedule, matches map[string]*c4.MatchRecord) {
	for _, round := range sched.Rounds {
		if ctx.Err() != nil {
			return
		}

		var tasks []func(context.Context)
		for _, id := range round.Matches {
			m := matches[id]
			if m == nil || m.Sealed() {
				continue
			}
			mCopy := m
			tasks = append(tasks, func(ctx context.Context) {
				s.Runner.Run(ctx, mCopy)
			})
		}
		if len(tasks) == 0 {
			continue
		}

		if s.Hooks.RoundStarted != nil {
			s.Hooks.RoundStarted(round.Index)
		}
		s.Events.Publish(c4.DashboardTopic, c4.Event{
			Kind:  c4.EvRoundStart,
			Round: round.Index,
		})

		c4.Debug.Printf("Dispatching round %d (%d matches)",
			round.Index, len(tasks))
		pool(ctx, s.MaxParallel, tasks)

		if ctx.Err() != nil {
			return
		}
		s.Events.Publish(c4.DashboardTopic, c4.Event{
			Kind:  c4.EvRoundComplete,
			Round: round.Index,
		})
		if s.Hooks.RoundDone != nil {
			s.Hooks.RoundDone(round.Index)
		}
	}

	if s.Hooks.Finished != nil {
		s.Hooks.Finished()
	}
}
