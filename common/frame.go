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
	"fmt"
	"sync"
	"time"

	"github.com/AppInitio/playwright/log"
)

// NetworkIdleTimeout is how long the in-flight request set must stay empty
// before networkidle is declared.
const NetworkIdleTimeout = 500 * time.Millisecond

// DocumentInfo identifies one committed document and (once known) the
// top-level request that produced it.
type DocumentInfo struct {
	DocumentID string
	Request    RequestData
}

// NavigationEvent is what the Frame Manager hands a Frame when a navigation
// commits or fails.
type NavigationEvent struct {
	URL         string
	Name        string
	NewDocument *DocumentInfo // nil for a same-document navigation
	Error       error
}

// Frame is one node of a page's frame tree. All mutable
// state is guarded by mu; long-running operations instead coordinate
// through Frame Tasks and Rerunnable Tasks registered against it.
type Frame struct {
	ctx     context.Context
	manager *FrameManager
	log     *log.Logger

	mu                    sync.Mutex
	id                    string
	parentFrame           *Frame
	childFrames           []*Frame
	name                  string
	url                   string
	documentID            string
	detached              bool
	loading               bool
	firedLifecycleEvents  map[LifecycleEvent]struct{}
	pendingDocument       *DocumentInfo
	inflightRequests      map[string]RequestData
	networkIdleTimer      *time.Timer
	tasks                 map[*FrameTask]struct{}
	rerunnableTasks       map[World][]*RerunnableTask
	mainContext           ExecutionContext
	utilityContext        ExecutionContext
	mainContextWaiters    []chan struct{}
	utilityContextWaiters []chan struct{}
}

// NewFrame constructs a frame attached to manager, optionally nested under
// parent.
func NewFrame(ctx context.Context, manager *FrameManager, parent *Frame, id string, logger *log.Logger) *Frame {
	f := &Frame{
		ctx:                  ctx,
		id:                   id,
		manager:              manager,
		log:                  logger,
		parentFrame:          parent,
		firedLifecycleEvents: make(map[LifecycleEvent]struct{}),
		inflightRequests:     make(map[string]RequestData),
		tasks:                make(map[*FrameTask]struct{}),
		rerunnableTasks:      make(map[World][]*RerunnableTask),
	}
	if parent != nil {
		parent.mu.Lock()
		parent.childFrames = append(parent.childFrames, f)
		parent.mu.Unlock()
	}
	return f
}

// ID returns the frame's opaque browser-assigned identity.
func (f *Frame) ID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

// setID re-keys the frame under a new browser id, the cross-process
// main-frame re-identification case.
func (f *Frame) setID(id string) {
	f.mu.Lock()
	f.id = id
	f.mu.Unlock()
}

// Name returns the frame's name attribute, if any.
func (f *Frame) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

// URL returns the frame's last-committed URL.
func (f *Frame) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// DocumentID returns the id of the frame's currently committed document.
func (f *Frame) DocumentID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.documentID
}

// ParentFrame returns the owning frame, or nil for the main frame and for
// a detached frame.
func (f *Frame) ParentFrame() *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parentFrame
}

// ChildFrames returns a snapshot of the frame's current children.
func (f *Frame) ChildFrames() []*Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Frame(nil), f.childFrames...)
}

func (f *Frame) removeChild(child *Frame) {
	f.mu.Lock()
	for i, c := range f.childFrames {
		if c == child {
			f.childFrames = append(f.childFrames[:i], f.childFrames[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
}

// IsDetached reports whether the frame has been removed from the tree.
func (f *Frame) IsDetached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detached
}

// IsLoading reports whether the frame is between a frameLoadingStarted
// and its matching frameLoadingStopped.
func (f *Frame) IsLoading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

func (f *Frame) setLoading(loading bool) {
	f.mu.Lock()
	f.loading = loading
	f.mu.Unlock()
}

func (f *Frame) setPendingDocument(doc *DocumentInfo) {
	f.mu.Lock()
	f.pendingDocument = doc
	f.mu.Unlock()
}

func (f *Frame) pendingDocumentInfo() *DocumentInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingDocument
}

func (f *Frame) addTask(t *FrameTask) {
	f.mu.Lock()
	f.tasks[t] = struct{}{}
	f.mu.Unlock()
}

func (f *Frame) removeTask(t *FrameTask) {
	f.mu.Lock()
	delete(f.tasks, t)
	f.mu.Unlock()
}

func (f *Frame) addRerunnableTask(rt *RerunnableTask) {
	f.mu.Lock()
	f.rerunnableTasks[rt.world] = append(f.rerunnableTasks[rt.world], rt)
	f.mu.Unlock()
}

func (f *Frame) removeRerunnableTask(rt *RerunnableTask) {
	f.mu.Lock()
	list := f.rerunnableTasks[rt.world]
	for i, cur := range list {
		if cur == rt {
			f.rerunnableTasks[rt.world] = append(list[:i], list[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
}

// ContextCreated installs ctx as the frame's execution context for world.
// A racey duplicate creation on reconnected sessions tears the existing
// slot down first so its waiters drain before the replacement lands.
func (f *Frame) ContextCreated(world World, ctx ExecutionContext) {
	if f.context(world) != nil {
		f.clearContext(world)
	}
	f.setContext(world, ctx)
}

// ContextDestroyed clears whichever world slot currently holds ctx.
func (f *Frame) ContextDestroyed(ctx ExecutionContext) {
	f.mu.Lock()
	isMain := f.mainContext == ctx
	isUtility := f.utilityContext == ctx
	f.mu.Unlock()

	if isMain {
		f.clearContext(MainWorld)
	}
	if isUtility {
		f.clearContext(UtilityWorld)
	}
}

// setContext installs ctx as the frame's execution context for world,
// waking every goroutine parked in waitForExecutionContext and rerunning
// every RerunnableTask registered in that world.
func (f *Frame) setContext(world World, ctx ExecutionContext) {
	f.mu.Lock()
	var waiters []chan struct{}
	switch world {
	case MainWorld:
		f.mainContext = ctx
		waiters = f.mainContextWaiters
		f.mainContextWaiters = nil
	case UtilityWorld:
		f.utilityContext = ctx
		waiters = f.utilityContextWaiters
		f.utilityContextWaiters = nil
	}
	tasks := append([]*RerunnableTask(nil), f.rerunnableTasks[world]...)
	f.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, rt := range tasks {
		rt.Rerun(f.ctx, ctx)
	}
}

// clearContext removes the frame's execution context for world, e.g. on
// execution-context destruction ahead of a recycle.
func (f *Frame) clearContext(world World) {
	f.mu.Lock()
	switch world {
	case MainWorld:
		f.mainContext = nil
	case UtilityWorld:
		f.utilityContext = nil
	}
	f.mu.Unlock()
}

// HasContext reports whether world's slot currently holds a live execution
// context; delegates use it to dedupe racey world creation
// across reconnected sessions.
func (f *Frame) HasContext(world World) bool {
	return f.context(world) != nil
}

func (f *Frame) context(world World) ExecutionContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	if world == UtilityWorld {
		return f.utilityContext
	}
	return f.mainContext
}

// waitForExecutionContext blocks until world's execution context slot is
// non-nil, the frame detaches, ctx concludes, or the page disconnects.
func (f *Frame) waitForExecutionContext(ctx context.Context, world World) (ExecutionContext, error) {
	for {
		f.mu.Lock()
		if f.detached {
			url := f.url
			f.mu.Unlock()
			return nil, &InvalidArgumentError{Message: fmt.Sprintf(
				"Execution Context is not available in detached frame %q", url)}
		}
		var ec ExecutionContext
		if world == UtilityWorld {
			ec = f.utilityContext
		} else {
			ec = f.mainContext
		}
		if ec != nil {
			f.mu.Unlock()
			return ec, nil
		}
		ch := make(chan struct{})
		if world == UtilityWorld {
			f.utilityContextWaiters = append(f.utilityContextWaiters, ch)
		} else {
			f.mainContextWaiters = append(f.mainContextWaiters, ch)
		}
		f.mu.Unlock()

		var pageDone <-chan struct{}
		if f.manager != nil && f.manager.pageDelegate != nil {
			pageDone = f.manager.pageDelegate.Done()
		}
		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.ctx.Done():
			return nil, &FrameDetachedError{FrameID: f.ID()}
		case <-pageDone:
			return nil, &PageDisconnectedError{}
		}
	}
}

// recordLifecycleEvent adds event to the fired set, reporting whether it
// was newly added.
func (f *Frame) recordLifecycleEvent(event LifecycleEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.firedLifecycleEvents[event]; ok {
		return false
	}
	f.firedLifecycleEvents[event] = struct{}{}
	return true
}

func (f *Frame) hasLifecycleEvent(event LifecycleEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.firedLifecycleEvents[event]
	return ok
}

// clearLifecycle resets the fired-event set, called on every new-document
// commit and on setContent.
func (f *Frame) clearLifecycle() {
	f.mu.Lock()
	f.firedLifecycleEvents = make(map[LifecycleEvent]struct{})
	f.mu.Unlock()
}

// requestStarted adds req to the in-flight set, stopping the network-idle
// timer on the empty-to-non-empty transition.
func (f *Frame) requestStarted(req RequestData) {
	f.mu.Lock()
	f.inflightRequests[req.ID()] = req
	first := len(f.inflightRequests) == 1
	f.mu.Unlock()

	if first {
		f.stopNetworkIdleTimer()
	}
}

// requestCompleted removes req, arming the network-idle timer when the set
// empties.
func (f *Frame) requestCompleted(req RequestData) {
	f.mu.Lock()
	_, had := f.inflightRequests[req.ID()]
	delete(f.inflightRequests, req.ID())
	empty := had && len(f.inflightRequests) == 0
	f.mu.Unlock()

	if empty {
		f.startNetworkIdleTimer()
	}
}

func (f *Frame) inflightRequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inflightRequests)
}

// retainInflightRequestsForDocument drops every in-flight request that
// belonged to a previous document, keeping only those carrying docID.
func (f *Frame) retainInflightRequestsForDocument(docID string) {
	f.mu.Lock()
	for id, req := range f.inflightRequests {
		if req.DocumentID() != docID {
			delete(f.inflightRequests, id)
		}
	}
	f.mu.Unlock()
}

// startNetworkIdleTimer arms the 500ms idle timer unless networkidle has
// already fired or the frame is gone.
func (f *Frame) startNetworkIdleTimer() {
	f.mu.Lock()
	if f.detached || f.networkIdleTimer != nil {
		f.mu.Unlock()
		return
	}
	if _, fired := f.firedLifecycleEvents[LifecycleEventNetworkIdle]; fired {
		f.mu.Unlock()
		return
	}
	f.networkIdleTimer = time.AfterFunc(NetworkIdleTimeout, func() {
		f.mu.Lock()
		f.networkIdleTimer = nil
		f.mu.Unlock()
		if f.manager != nil {
			f.manager.frameLifecycleEvent(f, LifecycleEventNetworkIdle)
		}
	})
	f.mu.Unlock()
}

// stopNetworkIdleTimer disarms the idle timer, if armed.
func (f *Frame) stopNetworkIdleTimer() {
	f.mu.Lock()
	timer := f.networkIdleTimer
	f.networkIdleTimer = nil
	f.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

// detach marks the frame removed from the tree, rejecting every Frame Task
// and Rerunnable Task still attached to it.
func (f *Frame) detach() {
	f.stopNetworkIdleTimer()

	f.mu.Lock()
	f.detached = true
	f.parentFrame = nil
	tasks := make([]*FrameTask, 0, len(f.tasks))
	for t := range f.tasks {
		tasks = append(tasks, t)
	}
	var rerunnables []*RerunnableTask
	for _, list := range f.rerunnableTasks {
		rerunnables = append(rerunnables, list...)
	}
	mainWaiters, utilWaiters := f.mainContextWaiters, f.utilityContextWaiters
	f.mainContextWaiters, f.utilityContextWaiters = nil, nil
	id := f.id
	f.mu.Unlock()

	err := &FrameDetachedError{FrameID: id}
	for _, t := range tasks {
		t.reject(err)
	}
	for _, rt := range rerunnables {
		rt.Terminate(fmt.Errorf("waitForFunction failed: frame got detached"))
	}
	for _, ch := range mainWaiters {
		close(ch)
	}
	for _, ch := range utilWaiters {
		close(ch)
	}
}

// onNewDocument applies a committed (or failed) new-document navigation to
// the frame's state and notifies every Frame Task attached to the frame.
func (f *Frame) onNewDocument(ev NavigationEvent) {
	if ev.Error == nil && ev.NewDocument != nil {
		f.mu.Lock()
		f.url = ev.URL
		f.name = ev.Name
		f.documentID = ev.NewDocument.DocumentID
		f.pendingDocument = nil
		f.mu.Unlock()
	}

	f.mu.Lock()
	tasks := make([]*FrameTask, 0, len(f.tasks))
	for t := range f.tasks {
		tasks = append(tasks, t)
	}
	f.mu.Unlock()

	documentID := ""
	if ev.NewDocument != nil {
		documentID = ev.NewDocument.DocumentID
	}
	for _, t := range tasks {
		t.onNewDocument(documentID, ev.URL, ev.Error)
	}
}

// onSameDocument applies a committed same-document navigation.
func (f *Frame) onSameDocument(url string) {
	f.mu.Lock()
	f.url = url
	tasks := make([]*FrameTask, 0, len(f.tasks))
	for t := range f.tasks {
		tasks = append(tasks, t)
	}
	f.mu.Unlock()

	for _, t := range tasks {
		t.onSameDocument(url)
	}
}

// onLifecycleEvent notifies every Frame Task attached to this frame that
// event fired somewhere in its subtree.
func (f *Frame) onLifecycleEvent(event LifecycleEvent) {
	f.mu.Lock()
	tasks := make([]*FrameTask, 0, len(f.tasks))
	for t := range f.tasks {
		tasks = append(tasks, t)
	}
	f.mu.Unlock()

	for _, t := range tasks {
		t.onLifecycle(event)
	}
}

// onRequest records req against every Frame Task attached to the frame.
func (f *Frame) onRequest(req RequestData) {
	f.mu.Lock()
	tasks := make([]*FrameTask, 0, len(f.tasks))
	for t := range f.tasks {
		tasks = append(tasks, t)
	}
	f.mu.Unlock()

	for _, t := range tasks {
		t.onRequest(req)
	}
}

func (f *Frame) opTimeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if f.manager != nil && f.manager.timeoutSettings != nil {
		return f.manager.timeoutSettings.timeout()
	}
	return DefaultTimeout
}

func (f *Frame) navTimeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if f.manager != nil && f.manager.timeoutSettings != nil {
		return f.manager.timeoutSettings.navigationTimeout()
	}
	return DefaultTimeout
}

// Goto navigates the frame to url and waits for opts.WaitUntil to fire on
// the resulting document, returning its top-level response once known.
func (f *Frame) Goto(ctx context.Context, url string, opts GotoOptions) (ResponseData, error) {
	timeout := f.navTimeout(opts.Timeout)
	waitUntil := opts.WaitUntil
	if waitUntil == lifecycleEventInvalid {
		waitUntil = LifecycleEventLoad
	}

	return runAbortableTask(ctx, "Frame.goto", timeout, f.log, func(pc *progressController) (ResponseData, error) {
		if f.manager == nil || f.manager.pageDelegate == nil {
			return nil, fmt.Errorf("frame has no page delegate")
		}

		referer := opts.Referer
		if header, ok := f.manager.pageDelegate.ExtraHTTPHeader("referer"); ok {
			if referer != "" && referer != header {
				return nil, &InvalidArgumentError{Message: fmt.Sprintf(
					"referer is set both in options (%q) and in extraHTTPHeaders (%q), and they differ", referer, header)}
			}
			if referer == "" {
				referer = header
			}
		}

		task := NewFrameTask(f)
		pc.CleanupWhenAborted(task.Done)

		// Pre-register so a same-document outcome emitted while the
		// navigate call is still in flight is not lost.
		sameDoc := task.WaitForSameDocumentNavigation(nil)

		result, err := f.manager.pageDelegate.NavigateFrame(pc.Context(), f, url, referer)
		if err != nil {
			return nil, fmt.Errorf("goto %q: %w", url, err)
		}

		var documentID string
		if result.NewDocumentID == "" {
			select {
			case <-sameDoc.Settled():
				if _, err := sameDoc.Result(); err != nil {
					return nil, err
				}
			case <-pc.Context().Done():
				return nil, pc.Err(timeout)
			}
		} else {
			documentID = result.NewDocumentID
			specific := task.WaitForSpecificDocument(documentID)
			select {
			case <-specific.Settled():
				if _, err := specific.Result(); err != nil {
					return nil, err
				}
			case <-pc.Context().Done():
				return nil, pc.Err(timeout)
			}
		}

		// Registered only after the commit, so a lifecycle event belonging
		// to the previous document cannot satisfy it.
		lifecycle := task.WaitForLifecycle(waitUntil)
		select {
		case <-lifecycle.Settled():
			if _, err := lifecycle.Result(); err != nil {
				return nil, err
			}
		case <-pc.Context().Done():
			return nil, pc.Err(timeout)
		}

		if documentID != "" {
			if req, ok := task.requestForDocument(documentID); ok {
				if resp, ok := req.Response(); ok {
					return resp, nil
				}
			}
		}
		return nil, nil
	})
}

// WaitForNavigation waits for the next navigation matching opts to commit
// and its lifecycle event to fire.
func (f *Frame) WaitForNavigation(ctx context.Context, opts WaitForNavigationOptions) (ResponseData, error) {
	timeout := f.navTimeout(opts.Timeout)
	waitUntil := opts.WaitUntil
	if waitUntil == lifecycleEventInvalid {
		waitUntil = LifecycleEventLoad
	}
	matcher := NewURLMatcher(opts.URL)

	return runAbortableTask(ctx, "Frame.waitForNavigation", timeout, f.log, func(pc *progressController) (ResponseData, error) {
		task := NewFrameTask(f)
		pc.CleanupWhenAborted(task.Done)

		sameDoc := task.WaitForSameDocumentNavigation(matcher)
		newDoc := task.WaitForNewDocument(matcher)

		var documentID string
		select {
		case <-sameDoc.Settled():
			if _, err := sameDoc.Result(); err != nil {
				return nil, err
			}
		case <-newDoc.Settled():
			v, err := newDoc.Result()
			if err != nil {
				return nil, err
			}
			documentID, _ = v.(string)
		case <-pc.Context().Done():
			return nil, pc.Err(timeout)
		}

		lifecycle := task.WaitForLifecycle(waitUntil)
		select {
		case <-lifecycle.Settled():
			if _, err := lifecycle.Result(); err != nil {
				return nil, err
			}
		case <-pc.Context().Done():
			return nil, pc.Err(timeout)
		}

		if documentID != "" {
			if req, ok := task.requestForDocument(documentID); ok {
				if resp, ok := req.Response(); ok {
					return resp, nil
				}
			}
		}
		return nil, nil
	})
}

// WaitForLoadState waits until state has fired on this frame and its whole
// subtree.
func (f *Frame) WaitForLoadState(ctx context.Context, state LifecycleEvent, timeout time.Duration) error {
	if state == lifecycleEventInvalid {
		state = LifecycleEventLoad
	}
	resolved := f.opTimeout(timeout)

	_, err := runAbortableTask(ctx, "Frame.waitForLoadState", resolved, f.log, func(pc *progressController) (struct{}, error) {
		task := NewFrameTask(f)
		pc.CleanupWhenAborted(task.Done)

		w := task.WaitForLifecycle(state)
		select {
		case <-w.Settled():
			if _, err := w.Result(); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, nil
		case <-pc.Context().Done():
			return struct{}{}, pc.Err(resolved)
		}
	})
	return err
}

// SetContent injects html as the frame's document via the console-tag
// back-channel protocol: the utility world runs a script
// that stops any in-flight load, writes html, and logs a unique tag; the
// Frame Manager routes that tag back here, at which point lifecycle is
// cleared and the load-state wait begins. The call resolves when both the
// in-page evaluation and the lifecycle wait have completed.
func (f *Frame) SetContent(ctx context.Context, html string, opts SetContentOptions) error {
	timeout := f.opTimeout(opts.Timeout)
	waitUntil := opts.WaitUntil
	if waitUntil == lifecycleEventInvalid {
		waitUntil = LifecycleEventLoad
	}

	_, err := runAbortableTask(ctx, "Frame.setContent", timeout, f.log, func(pc *progressController) (struct{}, error) {
		if f.manager == nil {
			return struct{}{}, fmt.Errorf("frame has no manager")
		}

		task := NewFrameTask(f)
		pc.CleanupWhenAborted(task.Done)

		lifecycleStarted := make(chan *waiter, 1)
		tag := f.manager.registerSetContentTag(f.ID(), func() {
			f.manager.clearFrameLifecycle(f)
			lifecycleStarted <- task.WaitForLifecycle(waitUntil)
		})
		pc.CleanupWhenAborted(func() { f.manager.unregisterSetContentTag(tag) })

		execCtx, err := f.waitForExecutionContext(pc.Context(), UtilityWorld)
		if err != nil {
			return struct{}{}, err
		}

		if _, err := execCtx.EvaluateExpression(pc.Context(), setContentScript(html, tag)); err != nil {
			return struct{}{}, err
		}

		var lifecycle *waiter
		select {
		case lifecycle = <-lifecycleStarted:
		case <-pc.Context().Done():
			return struct{}{}, pc.Err(timeout)
		}

		select {
		case <-lifecycle.Settled():
			if _, err := lifecycle.Result(); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, nil
		case <-pc.Context().Done():
			return struct{}{}, pc.Err(timeout)
		}
	})
	return err
}

// setContentScript builds the in-page snippet SetContent evaluates: stop
// the current load, open the document, flush the tag through console.debug
// so the Frame Manager can observe the replacement starting, then write the
// html and close the document.
func setContentScript(html, tag string) string {
	return fmt.Sprintf(
		"window.stop(); document.open(); console.debug(%q); document.write(%q); document.close();",
		tag, html)
}

// WaitForFunction polls task inside the given world's execution context
// until it resolves, surviving any number of execution-context recycles in
// between by registering a Rerunnable Task.
func (f *Frame) WaitForFunction(ctx context.Context, task SchedulableTask, opts WaitForFunctionOptions) (interface{}, error) {
	timeout := f.opTimeout(opts.Timeout)
	world := opts.World
	if world == "" {
		world = MainWorld
	}

	return runAbortableTask(ctx, "Frame.waitForFunction", timeout, f.log, func(pc *progressController) (interface{}, error) {
		rt := NewRerunnableTask(f, world, task)
		pc.CleanupWhenAborted(func() { rt.Terminate(&TimeoutError{Op: "Frame.waitForFunction", Timeout: timeout.String()}) })

		if execCtx := f.context(world); execCtx != nil {
			rt.Rerun(pc.Context(), execCtx)
		}

		return rt.Result(pc.Context())
	})
}

// WaitForSelector compiles selector via the Frame Manager's SelectorEngine
// and drives it as a Rerunnable Task in the world the engine requests; a
// handle resolved in a non-main world is adopted into the main world before
// being returned.
func (f *Frame) WaitForSelector(ctx context.Context, selector string, opts WaitForSelectorOptions) (ElementHandle, error) {
	timeout := f.opTimeout(opts.Timeout)

	result, err := runAbortableTask(ctx, "Frame.waitForSelector", timeout, f.log, func(pc *progressController) (interface{}, error) {
		if f.manager == nil || f.manager.selectorEngine == nil {
			return nil, fmt.Errorf("frame has no selector engine")
		}
		wt, err := f.manager.selectorEngine.WaitForSelectorTask(f, selector, opts.State)
		if err != nil {
			return nil, err
		}

		rt := NewRerunnableTask(f, wt.World, wt.Task)
		pc.CleanupWhenAborted(func() { rt.Terminate(&TimeoutError{Op: "Frame.waitForSelector", Timeout: timeout.String()}) })

		if execCtx := f.context(wt.World); execCtx != nil {
			rt.Rerun(pc.Context(), execCtx)
		}

		v, err := rt.Result(pc.Context())
		if err != nil {
			return nil, err
		}
		handle, ok := v.(ElementHandle)
		if !ok || handle == nil {
			// detached/hidden waits legitimately resolve with no element.
			return nil, nil
		}

		mainCtx := f.context(MainWorld)
		if mainCtx != nil && handle.ExecContext() != mainCtx {
			adopted, err := f.manager.pageDelegate.AdoptElementHandle(pc.Context(), handle, mainCtx)
			if err != nil {
				return nil, err
			}
			_ = handle.Dispose(pc.Context())
			return adopted, nil
		}
		return handle, nil
	})
	if err != nil {
		return nil, err
	}
	handle, _ := result.(ElementHandle)
	return handle, nil
}
