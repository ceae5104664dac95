// Bounded Worker Pool
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
	"sync"
)

// pool runs every task on at most WORKERS goroutines and waits for
// all of them.  Tasks queued behind a cancelled context are skipped;
// tasks already running observe the cancellation themselves.
func pool(ctx context.Context, workers int, tasks []func(context.Context)) {
	if workers < 1 {
		workers = 1
	}

	queue := make(chan func(context.Context), len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	var wait sync.WaitGroup
	wait.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wait.Done()
			for t := range queue {
				if ctx.Err() != nil {
					continue
				}
				t(ctx)
			}
		}()
	}
	wait.Wait()
}
