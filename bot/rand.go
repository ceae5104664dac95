// Random Agent
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
	"math/rand"
	"sync"

	"github.com/quyk67uet/deeprl-connect4-agent-platform/agent"
)

type random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *random) Move(_ context.Context, req *agent.Request) (int, error) {
	if len(req.ValidMoves) == 0 {
		return -1, errors.New("no legal moves")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return req.ValidMoves[r.rng.Intn(len(req.ValidMoves))], nil
}

func (*random) String() string { return "random" }

// MakeRandom returns an agent that plays uniformly random legal moves
func MakeRandom(seed int64) agent.Mover {
	return &random{rng: rand.New(rand.NewSource(seed))}
}
