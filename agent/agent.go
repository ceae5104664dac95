// Remote Agent Client
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

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
)

// Request is the board snapshot sent to an agent
type Request struct {
	Board         *c4.Board `json:"board"`
	CurrentPlayer c4.Player `json:"current_player"`
	ValidMoves    []int     `json:"valid_moves"`
}

// A Mover selects a column for the given position.  Remote endpoints
// and in-process bots both satisfy this interface, so the game driver
// never knows the difference.
type Mover interface {
	Move(ctx context.Context, req *Request) (int, error)
}

// FailureKind classifies an agent failure.  The order is significant:
// the first matching kind decides the turn.
type FailureKind uint8

const (
	Timeout FailureKind = iota
	Transport
	Malformed
	Illegal
)

func (k FailureKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Transport:
		return "transport"
	case Malformed:
		return "malformed"
	case Illegal:
		return "illegal"
	default:
		panic(fmt.Sprintf("Illegal failure kind: %d", k))
	}
}

// Failure is the typed error an agent call produces.  A failure is an
// adversarial action by the remote side, never a server fault.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// Reason maps a failure onto the recorded game reason
func (f *Failure) Reason() c4.Reason {
	switch f.Kind {
	case Timeout:
		return c4.ByTimeout
	case Transport:
		return c4.ByTransport
	case Malformed:
		return c4.ByMalformed
	default:
		return c4.ByIllegal
	}
}

// The one client all remote calls share.  Connection reuse matters
// here: a tournament issues thousands of short POST requests against
// a handful of endpoints.  Per-call deadlines come from the caller's
// context, so the client itself carries no timeout.
var client = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Remote is a Mover backed by an HTTP endpoint implementing the move
// protocol: POST {board, current_player, valid_moves}, 2xx reply
// {move: n}.
type Remote struct {
	Endpoint string
}

func MakeRemote(endpoint string) *Remote {
	return &Remote{Endpoint: endpoint}
}

func (r *Remote) String() string { return r.Endpoint }

type reply struct {
	Move *int `json:"move"`
}

// Move performs one agent call.  There are no retries; a single
// failure of any kind decides the current turn.
func (r *Remote) Move(ctx context.Context, req *Request) (int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return -1, fail(Malformed, err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return -1, fail(Transport, err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(hreq)
	if err != nil {
		if timedOut(ctx, err) {
			return -1, fail(Timeout, err)
		}
		return -1, fail(Transport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return -1, fail(Transport, fmt.Errorf("status %d from %s", resp.StatusCode, r.Endpoint))
	}

	var rep reply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&rep); err != nil {
		if timedOut(ctx, err) {
			return -1, fail(Timeout, err)
		}
		return -1, fail(Malformed, err)
	}
	if rep.Move == nil {
		return -1, fail(Malformed, errors.New("reply carries no move"))
	}

	move := *rep.Move
	if move < 0 || move >= c4.Cols || !contains(req.ValidMoves, move) {
		return -1, fail(Illegal, fmt.Errorf("move %d not in %v", move, req.ValidMoves))
	}
	return move, nil
}

// timedOut decides whether an error from the HTTP stack was caused by
// the per-turn deadline rather than the endpoint itself
func timedOut(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func contains(moves []int, move int) bool {
	for _, m := range moves {
		if m == move {
			return true
		}
	}
	return false
}
