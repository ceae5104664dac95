// Entry Point
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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/broker"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/champ"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/conf"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/store"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/web"
)

// Default file name for the configuration file
const defconf = "championship.toml"

// controller bridges the Controller into the manager runtime: it has
// no serving loop of its own, but its runners must wind down before
// the store closes underneath them.
type controller struct{ *champ.Controller }

func (controller) Start() {}

func main() {
	// A .env file is optional; deployments that have one get
	// their variables before the configuration is read
	godotenv.Load()

	var (
		confFile = flag.String("conf", defconf, "Name of configuration file")
		dumpConf = flag.Bool("dump-config", false, "Dump default configuration")
		debug    = flag.Bool("debug", false, "Enable debug output")
	)

	flag.Parse()
	if flag.NArg() != 0 {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Too many arguments passed to %s.\nUsage:\n",
			os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *debug {
		c4.Debug.SetOutput(os.Stderr)
		log.Default().SetFlags(log.LstdFlags | log.Lshortfile)
		c4.Debug.Println("Debug logging has been enabled")
	}

	config, err := conf.Open(*confFile)
	if err != nil {
		if !os.IsNotExist(err) || *confFile != defconf {
			log.Fatal(err)
		}
		config = conf.Default()
	}
	config.Env()

	if *dumpConf {
		if err := config.Dump(os.Stdout); err != nil {
			log.Fatalln("Failed to dump default configuration:", err)
		}
		os.Exit(0)
	}

	db, err := store.Open(config.Database.File)
	if err != nil {
		log.Fatal(err, ": ", config.Database.File)
	}

	system := c4.MakeSystem()
	events := broker.New()

	ctrl, err := champ.New(system.Context(), config, db, events)
	if err != nil {
		log.Fatal(err)
	}

	system.Register(db)
	system.Register(events)
	system.Register(controller{ctrl})
	if config.Web.Enabled {
		system.Register(web.Make(config, ctrl))
	}

	system.Run()
}
