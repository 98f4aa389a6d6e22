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
	"time"

	"github.com/AppInitio/playwright/log"
)

var _ ProgressController = (*progressController)(nil)

// progressController is the default ProgressController: it
// derives a cancellable, timeout-bounded context from parentCtx and runs
// cleanup callbacks exactly once on conclusion. Its context ends only on the
// timeout, on Abort, or with parentCtx; page disconnect and frame detach do
// not cancel it.
type progressController struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	running  bool
	log      *log.Logger
	op       string
	cleanups []func()
}

// NewProgressController derives a per-operation controller from parentCtx
// with the given timeout. op names the operation for logging
// (e.g. "Frame.goto").
func NewProgressController(parentCtx context.Context, op string, timeout time.Duration, logger *log.Logger) *progressController {
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	pc := &progressController{
		ctx:     ctx,
		cancel:  cancel,
		running: true,
		log:     logger,
		op:      op,
	}
	go pc.awaitConclusion()
	return pc
}

func (p *progressController) awaitConclusion() {
	<-p.ctx.Done()
	p.conclude()
}

func (p *progressController) conclude() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cleanups := p.cleanups
	p.cleanups = nil
	p.mu.Unlock()

	// Run most-recently-registered cleanup first, mirroring defer-stack
	// unwind order so resources acquired later are released first.
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// Context implements ProgressController.
func (p *progressController) Context() context.Context { return p.ctx }

// IsRunning implements ProgressController.
func (p *progressController) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Log implements ProgressController.
func (p *progressController) Log(format string, args ...interface{}) {
	if p.log == nil {
		return
	}
	p.log.Debugf(p.op, format, args...)
}

// CleanupWhenAborted implements ProgressController.
func (p *progressController) CleanupWhenAborted(fn func()) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		fn()
		return
	}
	p.cleanups = append(p.cleanups, fn)
	p.mu.Unlock()
}

// Abort concludes the controller early (explicit cancellation), running any
// registered cleanups. runAbortableTask calls it once its operation returns.
func (p *progressController) Abort() {
	p.cancel()
}

// Err returns the reason the controller concluded, translating a plain
// context deadline into a *TimeoutError.
func (p *progressController) Err(timeout time.Duration) error {
	if err := p.ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return &TimeoutError{Op: p.op, Timeout: timeout.String()}
		}
		return err
	}
	return nil
}

// runAbortableTask runs fn under a fresh ProgressController parameterized
// by timeout, concluding the controller (and its cleanups) however fn
// returns or the deadline elapses first.
func runAbortableTask[T any](
	parentCtx context.Context, op string, timeout time.Duration, logger *log.Logger,
	fn func(pc *progressController) (T, error),
) (T, error) {
	pc := NewProgressController(parentCtx, op, timeout, logger)
	defer pc.Abort()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(pc)
		done <- outcome{val: v, err: err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-pc.ctx.Done():
		var zero T
		if err := pc.Err(timeout); err != nil {
			return zero, err
		}
		return zero, pc.ctx.Err()
	}
}
