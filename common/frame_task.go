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

import "sync"

// waiter is a one-shot resolvable/rejectable future, the building block
// every Frame Task waiter is made of.
type waiter struct {
	mu     sync.Mutex
	done   chan struct{}
	result interface{}
	err    error
	fired  bool
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

// Settled returns a channel closed once the waiter resolves or rejects.
func (w *waiter) Settled() <-chan struct{} { return w.done }

// Result blocks until the waiter settles and returns its outcome.
func (w *waiter) Result() (interface{}, error) {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.err
}

func (w *waiter) resolve(v interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return
	}
	w.fired = true
	w.result = v
	close(w.done)
}

func (w *waiter) reject(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return
	}
	w.fired = true
	w.err = err
	close(w.done)
}

type sameDocWaiter struct {
	matcher URLMatcher
	w       *waiter
}

type specificDocWaiter struct {
	expectedID string
	w          *waiter
}

type newDocWaiter struct {
	matcher URLMatcher
	w       *waiter
}

type lifecycleWaiter struct {
	event LifecycleEvent
	w     *waiter
}

// FrameTask is a one-shot observer subscribed to a single frame's
// navigation/lifecycle events for the duration of exactly one caller
// operation. It holds at most one waiter of each kind.
type FrameTask struct {
	frame *Frame

	mu          sync.Mutex
	sameDoc     *sameDocWaiter
	specificDoc *specificDocWaiter
	newDoc      *newDocWaiter
	lifecycle   *lifecycleWaiter
	requests    map[string]RequestData
}

// NewFrameTask creates a task and registers it on frame for the duration of
// its lifetime.
func NewFrameTask(frame *Frame) *FrameTask {
	t := &FrameTask{frame: frame, requests: make(map[string]RequestData)}
	frame.addTask(t)
	return t
}

// Done detaches the task from its frame.
func (t *FrameTask) Done() {
	t.frame.removeTask(t)
}

// WaitForSameDocumentNavigation resolves on the next same-document commit
// whose URL matches matcher (nil matches everything).
func (t *FrameTask) WaitForSameDocumentNavigation(matcher URLMatcher) *waiter {
	if matcher == nil {
		matcher = anyURLMatcher
	}
	w := newWaiter()
	t.mu.Lock()
	t.sameDoc = &sameDocWaiter{matcher: matcher, w: w}
	t.mu.Unlock()
	return w
}

// WaitForSpecificDocument resolves on commit of expectedID; rejects on
// error for that id; rejects with NavigationInterruptedError if a
// different document id commits first.
func (t *FrameTask) WaitForSpecificDocument(expectedID string) *waiter {
	w := newWaiter()
	t.mu.Lock()
	t.specificDoc = &specificDocWaiter{expectedID: expectedID, w: w}
	t.mu.Unlock()
	return w
}

// WaitForNewDocument resolves with the committing document's id on any
// new-document commit whose URL matches matcher; rejects on navigation
// error.
func (t *FrameTask) WaitForNewDocument(matcher URLMatcher) *waiter {
	if matcher == nil {
		matcher = anyURLMatcher
	}
	w := newWaiter()
	t.mu.Lock()
	t.newDoc = &newDocWaiter{matcher: matcher, w: w}
	t.mu.Unlock()
	return w
}

// WaitForLifecycle resolves when event has fired on this frame and
// recursively on every descendant frame.
func (t *FrameTask) WaitForLifecycle(event LifecycleEvent) *waiter {
	w := newWaiter()
	t.mu.Lock()
	t.lifecycle = &lifecycleWaiter{event: event, w: w}
	t.mu.Unlock()
	// The predicate may already hold (e.g. a wait started after the event
	// already fired); check immediately.
	t.checkLifecycle()
	return w
}

// onRequest records req by document id so a caller can later retrieve the
// top-level request for a committed document.
func (t *FrameTask) onRequest(req RequestData) {
	if req.DocumentID() == "" || req.IsRedirect() {
		return
	}
	t.mu.Lock()
	t.requests[req.DocumentID()] = req
	t.mu.Unlock()
}

// requestForDocument returns the stored top-level request for documentID,
// if any.
func (t *FrameTask) requestForDocument(documentID string) (RequestData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[documentID]
	return req, ok
}

// onSameDocument notifies the same-document waiter, if any, that a
// same-document navigation committed.
func (t *FrameTask) onSameDocument(url string) {
	t.mu.Lock()
	sd := t.sameDoc
	t.mu.Unlock()
	if sd == nil {
		return
	}
	if sd.matcher.Match(url) {
		sd.w.resolve(nil)
	}
}

// onNewDocument notifies the new-document and specific-document waiters of
// a new-document commit (err == nil) or failure (err != nil) for
// documentID.
func (t *FrameTask) onNewDocument(documentID, url string, err error) {
	t.mu.Lock()
	sd := t.specificDoc
	nd := t.newDoc
	t.mu.Unlock()

	if sd != nil {
		switch {
		// An empty documentID means the failed attempt never reached the
		// point of minting one; attribute it to whichever document this
		// task is waiting on, since only one attempt can be in flight.
		case err != nil && (sd.expectedID == documentID || documentID == ""):
			sd.w.reject(err)
		case err == nil && sd.expectedID == documentID:
			sd.w.resolve(documentID)
		case err == nil && sd.expectedID != documentID:
			sd.w.reject(&NavigationInterruptedError{Expected: sd.expectedID, Committed: documentID})
		}
	}

	if nd != nil {
		switch {
		case err != nil:
			nd.w.reject(err)
		case nd.matcher.Match(url):
			nd.w.resolve(documentID)
		}
	}
}

// onLifecycle re-checks the subtree lifecycle predicate for this task's
// frame; it runs whenever any lifecycle event fires anywhere in the page,
// since a descendant's event can complete an ancestor's wait.
func (t *FrameTask) onLifecycle(LifecycleEvent) {
	t.checkLifecycle()
}

func (t *FrameTask) checkLifecycle() {
	t.mu.Lock()
	lc := t.lifecycle
	t.mu.Unlock()
	if lc == nil {
		return
	}
	if subtreeHasLifecycleEvent(t.frame, lc.event) {
		lc.w.resolve(nil)
	}
}

// subtreeHasLifecycleEvent reports whether event has fired on frame and
// recursively on every descendant frame.
func subtreeHasLifecycleEvent(frame *Frame, event LifecycleEvent) bool {
	frame.mu.Lock()
	_, fired := frame.firedLifecycleEvents[event]
	children := append([]*Frame(nil), frame.childFrames...)
	frame.mu.Unlock()

	if !fired {
		return false
	}
	for _, c := range children {
		if !subtreeHasLifecycleEvent(c, event) {
			return false
		}
	}
	return true
}

// reject fails every still-pending waiter on this task, used when the
// frame detaches out from under it.
func (t *FrameTask) reject(err error) {
	t.mu.Lock()
	sd, spd, nd, lc := t.sameDoc, t.specificDoc, t.newDoc, t.lifecycle
	t.mu.Unlock()

	if sd != nil {
		sd.w.reject(err)
	}
	if spd != nil {
		spd.w.reject(err)
	}
	if nd != nil {
		nd.w.reject(err)
	}
	if lc != nil {
		lc.w.reject(err)
	}
}
