// Configuration Specification
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

package conf

import (
	"time"
)

type DatabaseConf struct {
	File string `toml:"file"`
}

type GameConf struct {
	// Hard deadline for a single agent call
	TurnTimeout time.Duration `toml:"turn-timeout"`
	// Per-team time budget for a whole match
	MatchBank time.Duration `toml:"match-bank"`
	// Window in which at least one endpoint must prove reachable
	// before the first game of a match
	SetupWindow time.Duration `toml:"setup-window"`
}

type TournamentConf struct {
	MaxParallel int `toml:"max-parallel"`
	MinTeams    int `toml:"min-teams"`
	MaxTeams    int `toml:"max-teams"`
}

type WebConf struct {
	Enabled    bool    `toml:"enabled"`
	Port       uint    `toml:"port"`
	WebSocket  bool    `toml:"websocket"`
	AdminToken string  `toml:"admin-token,omitempty"`
	RateLimit  float64 `toml:"rate-limit"` // requests per second per client
	RateBurst  int     `toml:"rate-burst"`
}

type Conf struct {
	Database   DatabaseConf   `toml:"database"`
	Game       GameConf       `toml:"game"`
	Tournament TournamentConf `toml:"tournament"`
	Web        WebConf        `toml:"web"`
}

// Configuration object used by default
var defaultConfig = Conf{
	Database: DatabaseConf{
		File: "championship.db",
	},
	Game: GameConf{
		TurnTimeout: 10 * time.Second,
		MatchBank:   240 * time.Second,
		SetupWindow: 30 * time.Second,
	},
	Tournament: TournamentConf{
		MaxParallel: 5,
		MinTeams:    2,
		MaxTeams:    20,
	},
	Web: WebConf{
		Enabled:   true,
		WebSocket: true,
		Port:      8080,
		RateLimit: 16,
		RateBurst: 32,
	},
}

// Default returns a fresh copy of the default configuration
func Default() *Conf {
	c := defaultConfig
	return &c
}
