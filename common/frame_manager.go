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
	"sync/atomic"

	"github.com/AppInitio/playwright/log"
)

// ConsoleMessage is one console API call observed in the page, classified
// by the browser-reported type ("log", "debug", "warning", "error", ...).
type ConsoleMessage struct {
	Type string
	Text string
}

// FrameManager owns the frame tree for one page, fans incoming
// browser-transport events out to the right Frame, and tracks the set of
// Signal Barriers currently protecting an in-flight input action.
type FrameManager struct {
	BaseEventEmitter

	ctx             context.Context
	pageDelegate    PageDelegate
	timeoutSettings *TimeoutSettings
	selectorEngine  SelectorEngine
	log             *log.Logger

	mu        sync.Mutex
	frames    map[string]*Frame
	mainFrame *Frame
	barriers  map[*Barrier]struct{}

	setContentTagCounter int64
	setContentTags       map[string]func()

	// waitForTimeoutUsed flips once a caller reaches for waitForTimeout so
	// the hint subsystem can warn about the anti-pattern.
	waitForTimeoutUsed int32
}

// NewFrameManager constructs a manager with no frames attached; the caller
// drives FrameAttached for the main frame once the page has one.
func NewFrameManager(
	ctx context.Context, pageDelegate PageDelegate, timeoutSettings *TimeoutSettings,
	selectorEngine SelectorEngine, logger *log.Logger,
) *FrameManager {
	return &FrameManager{
		BaseEventEmitter: NewBaseEventEmitter(ctx),
		ctx:              ctx,
		pageDelegate:     pageDelegate,
		timeoutSettings:  timeoutSettings,
		selectorEngine:   selectorEngine,
		log:              logger,
		frames:           make(map[string]*Frame),
		barriers:         make(map[*Barrier]struct{}),
		setContentTags:   make(map[string]func()),
	}
}

// MainFrame returns the page's top-level frame, or nil before it attaches.
func (m *FrameManager) MainFrame() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mainFrame
}

// Frame looks up a frame by its browser-assigned id.
func (m *FrameManager) Frame(id string) (*Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.frames[id]
	return f, ok
}

// Frames returns a snapshot of every frame currently in the tree.
func (m *FrameManager) Frames() []*Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Frame, 0, len(m.frames))
	for _, f := range m.frames {
		out = append(out, f)
	}
	return out
}

// FrameAttached registers a newly observed frame, nesting it under parentID
// when given. A parentless attach while a main frame already exists is the
// cross-process re-identification case: the existing main frame is re-keyed
// under the new id, preserving its identity.
func (m *FrameManager) FrameAttached(id, parentID string) *Frame {
	if parentID == "" {
		m.mu.Lock()
		if main := m.mainFrame; main != nil {
			delete(m.frames, main.id)
			main.setID(id)
			m.frames[id] = main
			m.mu.Unlock()
			return main
		}
		m.mu.Unlock()
	}

	var parent *Frame
	if parentID != "" {
		parent, _ = m.Frame(parentID)
	}

	frame := NewFrame(m.ctx, m, parent, id, m.log)

	m.mu.Lock()
	m.frames[id] = frame
	if parent == nil {
		m.mainFrame = frame
	}
	m.mu.Unlock()

	m.emit(EventFrameAttached, frame)
	return frame
}

// FrameDetached removes a frame and its whole subtree, rejecting everything
// waiting on any of them.
func (m *FrameManager) FrameDetached(id string) {
	frame, ok := m.Frame(id)
	if !ok {
		return
	}
	m.removeFramesRecursively(frame)
}

// removeFramesRecursively detaches frame's children bottom-up, then frame
// itself: each is deleted from the id map, unlinked from its parent, its
// tasks rejected, and FrameDetached emitted.
func (m *FrameManager) removeFramesRecursively(frame *Frame) {
	for _, child := range frame.ChildFrames() {
		m.removeFramesRecursively(child)
	}

	m.mu.Lock()
	delete(m.frames, frame.ID())
	m.mu.Unlock()

	if parent := frame.ParentFrame(); parent != nil {
		parent.removeChild(frame)
	}

	frame.stopNetworkIdleTimer()
	frame.detach()
	m.emit(EventFrameDetached, frame)
}

// removeChildFramesRecursively drops frame's descendants without touching
// frame itself, used when a new document commits.
func (m *FrameManager) removeChildFramesRecursively(frame *Frame) {
	for _, child := range frame.ChildFrames() {
		m.removeFramesRecursively(child)
	}
}

// FrameRequestedNavigation records that the browser accepted a navigation
// for frame that will commit docID, and tells every active Signal Barrier
// about it.
func (m *FrameManager) FrameRequestedNavigation(id, docID string) {
	frame, ok := m.Frame(id)
	if !ok {
		return
	}
	frame.setPendingDocument(&DocumentInfo{DocumentID: docID})

	m.mu.Lock()
	barriers := make([]*Barrier, 0, len(m.barriers))
	for b := range m.barriers {
		barriers = append(barriers, b)
	}
	m.mu.Unlock()

	for _, b := range barriers {
		b.AddFrameNavigation(frame)
	}
}

// FrameUpdatedDocumentIDForNavigation overwrites the pending document id
// after the browser changed its mind about which document will commit.
func (m *FrameManager) FrameUpdatedDocumentIDForNavigation(id, docID string) {
	frame, ok := m.Frame(id)
	if !ok {
		return
	}
	frame.setPendingDocument(&DocumentInfo{DocumentID: docID})
}

// FrameCommittedNewDocumentNavigation applies a committed new-document
// navigation: the old subtree is dropped, frame state is updated, lifecycle
// is cleared, and every attached Frame Task is notified.
func (m *FrameManager) FrameCommittedNewDocumentNavigation(id, url, name, docID string, initial bool) {
	frame, ok := m.Frame(id)
	if !ok {
		return
	}

	m.removeChildFramesRecursively(frame)

	// Cross-process navigations and delegate "update id" events can
	// legitimately commit a different id than the last pending one; log
	// instead of failing.
	if pending := frame.pendingDocumentInfo(); pending != nil && pending.DocumentID != docID {
		m.log.Debugf("FrameManager:frameCommittedNewDocumentNavigation",
			"fid:%s pending:%s committed:%s", id, pending.DocumentID, docID)
	}

	doc := &DocumentInfo{DocumentID: docID}
	if pending := frame.pendingDocumentInfo(); pending != nil && pending.DocumentID == docID {
		doc = pending
	}

	frame.onNewDocument(NavigationEvent{
		URL:         url,
		Name:        name,
		NewDocument: doc,
	})
	m.clearFrameLifecycle(frame)

	if !initial {
		m.emit(EventFrameNavigated, frame)
	}
	m.emit(EventFrameNavigation, frame)
}

// FrameNavigatedSameDocument applies a committed same-document navigation.
func (m *FrameManager) FrameNavigatedSameDocument(id, url string) {
	frame, ok := m.Frame(id)
	if !ok {
		return
	}
	frame.onSameDocument(url)
	m.emit(EventFrameNavigated, frame)
	m.emit(EventFrameNavigation, frame)
}

// FrameAbortedNavigation fails the pending navigation on frame id. The
// navigation event still carries a non-nil document so observers can tell
// which attempt died (the pending one, or docID when the browser only named
// it in the failure).
func (m *FrameManager) FrameAbortedNavigation(id, errText, docID string) {
	frame, ok := m.Frame(id)
	if !ok {
		return
	}

	doc := frame.pendingDocumentInfo()
	if doc == nil {
		doc = &DocumentInfo{DocumentID: docID}
	}
	frame.setPendingDocument(nil)

	frame.onNewDocument(NavigationEvent{
		URL:         frame.URL(),
		Name:        frame.Name(),
		NewDocument: doc,
		Error:       &NavigationError{DocumentID: doc.DocumentID, Text: errText},
	})
	m.emit(EventFrameNavigation, frame)
}

// ProvisionalLoadFailed fails a provisional document load that never made
// it to a network request failure.
func (m *FrameManager) ProvisionalLoadFailed(id, docID, msg string) {
	m.FrameAbortedNavigation(id, msg, docID)
}

// FrameLoadingStarted marks frame id as loading.
func (m *FrameManager) FrameLoadingStarted(id string) {
	if frame, ok := m.Frame(id); ok {
		frame.setLoading(true)
	}
}

// FrameLoadingStopped clears the loading bit and fires both
// domcontentloaded and load, as no-ops if already fired.
func (m *FrameManager) FrameLoadingStopped(id string) {
	frame, ok := m.Frame(id)
	if !ok {
		return
	}
	frame.setLoading(false)
	m.LifecycleEvent(id, LifecycleEventDOMContentLoad)
	m.LifecycleEvent(id, LifecycleEventLoad)
}

// LifecycleEvent records that event fired on frame id's current document,
// notifying Frame Tasks from the firing frame up to the root: each
// ancestor's tasks may be waiting on a descendant's event, and the walk
// happens after the frame's own state is updated.
func (m *FrameManager) LifecycleEvent(id string, event LifecycleEvent) {
	frame, ok := m.Frame(id)
	if !ok {
		return
	}
	m.frameLifecycleEvent(frame, event)
}

func (m *FrameManager) frameLifecycleEvent(frame *Frame, event LifecycleEvent) {
	if !frame.recordLifecycleEvent(event) {
		return
	}

	for fr := frame; fr != nil; fr = fr.ParentFrame() {
		fr.onLifecycleEvent(event)
	}

	if frame == m.MainFrame() {
		switch event {
		case LifecycleEventLoad:
			m.emit(EventLoad, frame)
		case LifecycleEventDOMContentLoad:
			m.emit(EventDOMContentLoaded, frame)
		}
	}
}

// clearFrameLifecycle resets frame's lifecycle state on a new-document
// commit or setContent: fired events are cleared, only requests belonging
// to the committed document stay in flight, and the network-idle timer is
// restarted from the new baseline.
func (m *FrameManager) clearFrameLifecycle(frame *Frame) {
	frame.clearLifecycle()
	frame.retainInflightRequestsForDocument(frame.DocumentID())
	frame.stopNetworkIdleTimer()
	if frame.inflightRequestCount() == 0 {
		frame.startNetworkIdleTimer()
	}
}

// RequestStarted adds req to its frame's in-flight set and forwards it to
// the frame's tasks; favicon fetches skip the bookkeeping entirely.
func (m *FrameManager) RequestStarted(frameID string, req RequestData) {
	if req.IsFavicon() {
		return
	}
	frame, ok := m.Frame(frameID)
	if ok {
		frame.requestStarted(req)
		frame.onRequest(req)
	}
	m.emit(EventRequest, req)
}

// RequestReceivedResponse forwards a response to the embedder.
func (m *FrameManager) RequestReceivedResponse(req RequestData, resp ResponseData) {
	if req.IsFavicon() {
		return
	}
	m.emit(EventResponse, resp)
}

// RequestFinished removes req from its frame's in-flight set, arming the
// network-idle timer when the set empties.
func (m *FrameManager) RequestFinished(frameID string, req RequestData) {
	if req.IsFavicon() {
		return
	}
	if frame, ok := m.Frame(frameID); ok {
		frame.requestCompleted(req)
	}
	m.emit(EventRequestFinished, req)
}

// RequestFailed does the same bookkeeping as RequestFinished, and if the
// failed request was carrying the frame's pending document, fails the
// navigation that document belonged to.
func (m *FrameManager) RequestFailed(frameID string, req RequestData, canceled bool, errText string) {
	if req.IsFavicon() {
		return
	}
	frame, ok := m.Frame(frameID)
	if ok {
		frame.requestCompleted(req)

		if pending := frame.pendingDocumentInfo(); pending != nil && pending.DocumentID == req.DocumentID() {
			if canceled {
				errText += "; maybe frame was detached?"
			}
			m.FrameAbortedNavigation(frame.ID(), errText, pending.DocumentID)
		}
	}
	m.emit(EventRequestFailed, req)
}

// RegisterBarrier tracks b as active so FrameRequestedNavigation notifies
// it; UnregisterBarrier stops that once the protected input action
// concludes.
func (m *FrameManager) RegisterBarrier(b *Barrier) {
	m.mu.Lock()
	m.barriers[b] = struct{}{}
	m.mu.Unlock()
}

// UnregisterBarrier removes b from the active set.
func (m *FrameManager) UnregisterBarrier(b *Barrier) {
	m.mu.Lock()
	delete(m.barriers, b)
	m.mu.Unlock()
}

func (m *FrameManager) activeBarriers() []*Barrier {
	m.mu.Lock()
	defer m.mu.Unlock()
	barriers := make([]*Barrier, 0, len(m.barriers))
	for b := range m.barriers {
		barriers = append(barriers, b)
	}
	return barriers
}

// FrameWillPotentiallyRequestNavigation is announced by the PageDelegate
// immediately before dispatching an input, closing the window between the
// browser accepting the input and emitting a navigation request.
func (m *FrameManager) FrameWillPotentiallyRequestNavigation() {
	for _, b := range m.activeBarriers() {
		b.Retain()
	}
}

// FrameDidPotentiallyRequestNavigation is the matching release.
func (m *FrameManager) FrameDidPotentiallyRequestNavigation() {
	for _, b := range m.activeBarriers() {
		b.Release()
	}
}

// WaitForSignalsCreatedBy runs action under a fresh Signal Barrier and then
// waits for every navigation the action might have triggered to settle.
// Actions sourced as input additionally await the delegate's epilogue
// before the barrier wait begins.
func (m *FrameManager) WaitForSignalsCreatedBy(ctx context.Context, input bool, action func(context.Context) error) error {
	barrier := NewBarrier()
	m.RegisterBarrier(barrier)
	defer m.UnregisterBarrier(barrier)

	if err := action(ctx); err != nil {
		return err
	}
	if input && m.pageDelegate != nil {
		if err := m.pageDelegate.InputActionEpilogue(ctx); err != nil {
			return err
		}
	}
	return barrier.Wait(ctx)
}

// markWaitForTimeoutUsed records that a caller reached for the
// waitForTimeout anti-pattern.
func (m *FrameManager) markWaitForTimeoutUsed() {
	if atomic.CompareAndSwapInt32(&m.waitForTimeoutUsed, 0, 1) {
		m.log.Debugf("FrameManager:waitForTimeout",
			"page used waitForTimeout; prefer event-based waits")
	}
}

// WaitForTimeoutUsed reports whether any caller has used waitForTimeout.
func (m *FrameManager) WaitForTimeoutUsed() bool {
	return atomic.LoadInt32(&m.waitForTimeoutUsed) == 1
}

// registerSetContentTag mints a unique console-message tag for a pending
// SetContent call on frameID, in the form
// "--playwright--set--content--<frameId>--<counter>--".
func (m *FrameManager) registerSetContentTag(frameID string, handler func()) string {
	counter := atomic.AddInt64(&m.setContentTagCounter, 1)
	tag := fmt.Sprintf("--playwright--set--content--%s--%d--", frameID, counter)

	m.mu.Lock()
	m.setContentTags[tag] = handler
	m.mu.Unlock()

	return tag
}

// unregisterSetContentTag removes a tag without firing it, used when the
// caller's context concludes before the tag is observed.
func (m *FrameManager) unregisterSetContentTag(tag string) {
	m.mu.Lock()
	delete(m.setContentTags, tag)
	m.mu.Unlock()
}

// InterceptConsoleMessage routes an incoming console message: a debug
// message matching a pending SetContent tag fires its one-shot handler and
// is absorbed (returns true); anything else is classified by severity and
// forwarded as the page's Console event.
func (m *FrameManager) InterceptConsoleMessage(msg ConsoleMessage) bool {
	if msg.Type == "debug" {
		m.mu.Lock()
		handler, ok := m.setContentTags[msg.Text]
		if ok {
			delete(m.setContentTags, msg.Text)
		}
		m.mu.Unlock()

		if ok {
			handler()
			return true
		}
	}

	m.routeConsoleMessage(msg)
	m.emit(EventConsole, msg)
	return false
}

// routeConsoleMessage mirrors the message into the structured log at the
// level the browser reported it at.
func (m *FrameManager) routeConsoleMessage(msg ConsoleMessage) {
	l := m.log.WithField("source", "console")
	switch msg.Type {
	case "log", "info":
		l.Info(msg.Text)
	case "warning":
		l.Warn(msg.Text)
	case "error":
		l.Error(msg.Text)
	default:
		l.Debug(msg.Text)
	}
}
