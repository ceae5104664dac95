// Websocket Spectator Interface
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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	c4 "github.com/quyk67uet/deeprl-connect4-agent-platform"
	"github.com/quyk67uet/deeprl-connect4-agent-platform/broker"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Spectating is public; the dashboard may be hosted anywhere
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *web) wsDashboard(w http.ResponseWriter, r *http.Request) {
	sub, err := s.ctrl.SubscribeDashboard(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.serveSocket(w, r, sub)
}

func (s *web) wsMatch(w http.ResponseWriter, r *http.Request) {
	sub, err := s.ctrl.SubscribeMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.serveSocket(w, r, sub)
}

// serveSocket upgrades the connection and pumps the subscriber's
// event stream into it until either side goes away
func (s *web) serveSocket(w http.ResponseWriter, r *http.Request, sub *broker.Subscriber) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.ctrl.Unsubscribe(sub)
		c4.Debug.Printf("Unable to upgrade connection: %s", err)
		return
	}
	c4.Debug.Printf("New spectator from %s on %s", conn.RemoteAddr(), sub.Topic())

	done := make(chan struct{})

	// Reader: spectators send nothing meaningful, but reading is
	// what surfaces pongs and the close handshake
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.ctrl.Unsubscribe(sub)
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Kind == c4.EvResync {
				s.ctrl.Resynced(sub)
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
