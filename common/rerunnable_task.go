/*
 *
 * xk6-browser - a browser automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"context"
	"sync"
)

// RerunnableTask is a long-lived SchedulableTask (waitForFunction,
// waitForSelector) that survives execution-context recycling by re-Build-ing
// itself against each fresh ExecutionContext the Frame Manager hands it.
// At most one rerun is ever in flight.
type RerunnableTask struct {
	frame  *Frame
	world  World
	task   SchedulableTask
	w      *waiter
	logger func(format string, args ...interface{})

	mu      sync.Mutex
	running bool
	done    bool
	poll    InjectedScriptPoll
}

// NewRerunnableTask registers task against frame's world task set and
// returns the handle used to await its outcome and to drive reruns.
func NewRerunnableTask(frame *Frame, world World, task SchedulableTask) *RerunnableTask {
	rt := &RerunnableTask{
		frame: frame,
		world: world,
		task:  task,
		w:     newWaiter(),
	}
	frame.addRerunnableTask(rt)
	return rt
}

// Result blocks until the task resolves, is terminated, or ctx concludes.
func (rt *RerunnableTask) Result(ctx context.Context) (interface{}, error) {
	select {
	case <-rt.w.Settled():
		return rt.w.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Rerun (re)builds the task against execCtx. Called by the Frame Manager
// whenever it installs a fresh execution context for rt.world on rt.frame.
func (rt *RerunnableTask) Rerun(ctx context.Context, execCtx ExecutionContext) {
	rt.mu.Lock()
	if rt.done || rt.running {
		rt.mu.Unlock()
		return
	}
	rt.running = true
	rt.mu.Unlock()

	poll, err := rt.task.Build(ctx, execCtx)
	if err != nil {
		rt.mu.Lock()
		rt.running = false
		rt.mu.Unlock()
		if isContextDestroyedError(err) {
			// The context was recycled again before the rebuild landed;
			// wait for the next one.
			return
		}
		rt.terminate(err)
		return
	}

	rt.mu.Lock()
	rt.poll = poll
	rt.mu.Unlock()

	go rt.awaitPoll(ctx, poll)
}

func (rt *RerunnableTask) awaitPoll(ctx context.Context, poll InjectedScriptPoll) {
	v, err := poll.Result(ctx)

	rt.mu.Lock()
	rt.running = false
	stale := rt.poll != poll || rt.done
	rt.mu.Unlock()
	if stale {
		return
	}

	if err != nil {
		if isContextDestroyedError(err) {
			// Absorbed: the Frame Manager will call Rerun again once the
			// replacement context is ready.
			return
		}
		rt.terminate(err)
		return
	}

	rt.finish(v, nil)
}

// Terminate ends the task early, e.g. on frame detach.
func (rt *RerunnableTask) Terminate(err error) {
	rt.terminate(err)
}

func (rt *RerunnableTask) terminate(err error) {
	rt.finish(nil, err)
}

func (rt *RerunnableTask) finish(v interface{}, err error) {
	rt.mu.Lock()
	if rt.done {
		rt.mu.Unlock()
		return
	}
	rt.done = true
	poll := rt.poll
	rt.mu.Unlock()

	if poll != nil {
		poll.Cancel()
	}
	rt.frame.removeRerunnableTask(rt)

	if err != nil {
		rt.w.reject(err)
		return
	}
	rt.w.resolve(v)
}
