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
	"runtime"
	"sync"
	"time"
)

// Barrier lets an input action (click/type/press/...) wait for every
// navigation it might have triggered before returning control to the
// caller. It is a reference-counted latch: protectCount starts
// at 1 (a self-retain released by Wait), is incremented by
// AddFrameNavigation, and the latch fires exactly once when the count
// first returns to zero.
type Barrier struct {
	mu           sync.Mutex
	protectCount int64
	done         chan struct{}
	err          error
	errOnce      sync.Once
}

// NewBarrier constructs a barrier with protectCount = 1.
func NewBarrier() *Barrier {
	return &Barrier{
		protectCount: 1,
		done:         make(chan struct{}),
	}
}

// Retain increments the protect count; the Frame Manager's input bracket
// holds one retain per in-flight input dispatch.
func (b *Barrier) Retain() {
	b.mu.Lock()
	b.protectCount++
	b.mu.Unlock()
}

// Release decrements the protect count, firing the latch if it reaches
// zero.
func (b *Barrier) Release() {
	b.mu.Lock()
	b.protectCount--
	fire := b.protectCount == 0
	b.mu.Unlock()
	if fire {
		b.fire()
	}
}

func (b *Barrier) fire() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// failWith records err as the barrier's outcome (first writer wins) and
// fires the latch immediately; used when a raced navigation times out
// rather than merely settling.
func (b *Barrier) failWith(err error) {
	b.errOnce.Do(func() { b.err = err })
	b.fire()
}

// AddFrameNavigation is called by the Frame Manager when it observes a
// navigation request. It retains the
// barrier, races pageDisconnected/frameDetached/anyNewDocumentSettled/
// sameDocumentSettled on a Frame Task bound to frame, then releases once
// any of those settles.
func (b *Barrier) AddFrameNavigation(frame *Frame) {
	if frame.ParentFrame() != nil {
		return // only top-frame navigations gate an input action
	}

	b.Retain()

	task := NewFrameTask(frame)
	anyDoc := task.WaitForNewDocument(nil)
	sameDoc := task.WaitForSameDocumentNavigation(nil)

	go func() {
		defer b.Release()
		defer task.Done()

		var pageDone <-chan struct{}
		if frame.manager != nil && frame.manager.pageDelegate != nil {
			pageDone = frame.manager.pageDelegate.Done()
		}
		timeout := DefaultTimeout
		if frame.manager != nil && frame.manager.timeoutSettings != nil {
			timeout = frame.manager.timeoutSettings.navigationTimeout()
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-pageDone:
		case <-frame.ctx.Done():
		case <-timer.C:
			b.failWith(ErrTimedOut)
		case <-anyDoc.Settled():
		case <-sameDoc.Settled():
		}
	}()
}

// Wait releases the self-retain and blocks until protectCount returns to
// zero, or ctx concludes first. After protectCount reaches
// zero it yields one additional scheduler turn before returning, so any
// navigation a synchronously chained waitForNavigation races against sees
// the final frame state.
func (b *Barrier) Wait(ctx context.Context) error {
	b.Release()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		runtime.Gosched()
		return b.err
	}
}
