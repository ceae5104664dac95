// Web Interface Manager
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
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/champ"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/conf"
)

type web struct {
	conf *conf.Conf
	ctrl *champ.Controller
	srv  *http.Server
}

// Make builds the web manager serving the admin API and the
// spectator websocket endpoints
func Make(cf *conf.Conf, ctrl *champ.Controller) c4.Manager {
	return &web{conf: cf, ctrl: ctrl}
}

func (s *web) Start() {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.conf.Web.Port),
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Listening via HTTP on %s", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Print(err)
	}
}

func (s *web) Shutdown() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Print(err)
	}
}

func (*web) String() string { return "Web Server" }
