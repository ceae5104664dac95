// Request Rate Limiting
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
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// One token bucket per client address.  The map is never pruned; the
// admin surface sees a handful of distinct clients over a tournament,
// so the bookkeeping stays tiny.
type limiters struct {
	mu      sync.Mutex
	perHost map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

func (l *limiters) get(addr string) *rate.Limiter {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim := l.perHost[host]
	if lim == nil {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.perHost[host] = lim
	}
	return lim
}

// limit rejects clients that exceed the configured request rate
func (s *web) limit(next http.Handler) http.Handler {
	l := &limiters{
		perHost: make(map[string]*rate.Limiter),
		rps:     rate.Limit(s.conf.Web.RateLimit),
		burst:   s.conf.Web.RateBurst,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.get(r.RemoteAddr).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
