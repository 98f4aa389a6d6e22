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

package chromium

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/AppInitio/playwright/common"
	"github.com/AppInitio/playwright/log"
)

const utilityWorldName = "__playwright_utility_world__"

// FrameSession drives one CDP session for a page: it maps the raw protocol
// events onto the Frame Manager's handler surface and implements the
// PageDelegate capability the coordination core calls back into.
type FrameSession struct {
	ctx     context.Context
	session *Session
	manager *common.FrameManager
	logger  *log.Logger

	mu               sync.Mutex
	contexts         map[runtime.ExecutionContextID]*ExecutionContext
	worldByFrame     map[string]map[common.World]*ExecutionContext
	isolatedWorlds   map[string]struct{}
	requests         map[network.RequestID]*Request
	requestFrames    map[network.RequestID]string
	extraHTTPHeaders map[string]string
}

var _ common.PageDelegate = (*FrameSession)(nil)

// NewFrameSession wires a session to logger; ConnectFrameManager must be
// called before events are dispatched.
func NewFrameSession(ctx context.Context, session *Session, logger *log.Logger) *FrameSession {
	return &FrameSession{
		ctx:              ctx,
		session:          session,
		logger:           logger,
		contexts:         make(map[runtime.ExecutionContextID]*ExecutionContext),
		worldByFrame:     make(map[string]map[common.World]*ExecutionContext),
		isolatedWorlds:   make(map[string]struct{}),
		requests:         make(map[network.RequestID]*Request),
		requestFrames:    make(map[network.RequestID]string),
		extraHTTPHeaders: make(map[string]string),
	}
}

// ConnectFrameManager attaches the manager the session routes events to.
// Split from construction because the manager itself needs this session as
// its PageDelegate.
func (fs *FrameSession) ConnectFrameManager(m *common.FrameManager) {
	fs.manager = m
}

// InitDomains enables the protocol domains the session consumes events
// from. Utility worlds are created per frame as frames attach and navigate.
func (fs *FrameSession) InitDomains(ctx context.Context) error {
	exec := cdp.WithExecutor(ctx, fs.session)
	if err := cdppage.Enable().Do(exec); err != nil {
		return fmt.Errorf("enabling page domain: %w", err)
	}
	if err := cdppage.SetLifecycleEventsEnabled(true).Do(exec); err != nil {
		return fmt.Errorf("enabling lifecycle events: %w", err)
	}
	if err := runtime.Enable().Do(exec); err != nil {
		return fmt.Errorf("enabling runtime domain: %w", err)
	}
	if err := network.Enable().Do(exec); err != nil {
		return fmt.Errorf("enabling network domain: %w", err)
	}
	return nil
}

// createIsolatedWorld asks the browser for a utility world inside frameID;
// the resulting context arrives through executionContextCreated like any
// other.
func (fs *FrameSession) createIsolatedWorld(ctx context.Context, frameID cdp.FrameID) error {
	fs.mu.Lock()
	if _, ok := fs.isolatedWorlds[string(frameID)]; ok {
		fs.mu.Unlock()
		return nil
	}
	fs.isolatedWorlds[string(frameID)] = struct{}{}
	fs.mu.Unlock()

	action := cdppage.CreateIsolatedWorld(frameID).
		WithWorldName(utilityWorldName).
		WithGrantUniveralAccess(true)
	_, err := action.Do(cdp.WithExecutor(ctx, fs.session))
	if err != nil {
		return fmt.Errorf("creating isolated world for frame %s: %w", frameID, err)
	}
	return nil
}

// HandleEvent routes one decoded CDP event into the Frame Manager. The
// transport decodes and delivers events in arrival order; within one call
// every observer notification completes before the next event is handled.
func (fs *FrameSession) HandleEvent(event interface{}) {
	switch ev := event.(type) {
	case *cdppage.EventFrameAttached:
		fs.onFrameAttached(ev.FrameID, ev.ParentFrameID)
	case *cdppage.EventFrameDetached:
		fs.manager.FrameDetached(string(ev.FrameID))
	case *cdppage.EventFrameNavigated:
		fs.onFrameNavigated(ev.Frame, false)
	case *cdppage.EventNavigatedWithinDocument:
		fs.manager.FrameNavigatedSameDocument(string(ev.FrameID), ev.URL)
	case *cdppage.EventFrameRequestedNavigation:
		if ev.Disposition == "currentTab" {
			fs.manager.FrameRequestedNavigation(string(ev.FrameID), "")
		}
	case *cdppage.EventFrameStartedLoading:
		fs.manager.FrameLoadingStarted(string(ev.FrameID))
	case *cdppage.EventFrameStoppedLoading:
		fs.manager.FrameLoadingStopped(string(ev.FrameID))
	case *cdppage.EventLifecycleEvent:
		fs.onLifecycleEvent(ev)
	case *runtime.EventConsoleAPICalled:
		fs.onConsoleAPICalled(ev)
	case *runtime.EventExecutionContextCreated:
		fs.onExecutionContextCreated(ev)
	case *runtime.EventExecutionContextDestroyed:
		fs.onExecutionContextDestroyed(ev.ExecutionContextID)
	case *runtime.EventExecutionContextsCleared:
		fs.onExecutionContextsCleared()
	case *network.EventRequestWillBeSent:
		fs.onRequestWillBeSent(ev)
	case *network.EventResponseReceived:
		fs.onResponseReceived(ev)
	case *network.EventLoadingFinished:
		fs.onLoadingFinished(ev)
	case *network.EventLoadingFailed:
		fs.onLoadingFailed(ev)
	}
}

func (fs *FrameSession) onFrameAttached(frameID, parentFrameID cdp.FrameID) {
	fs.logger.Debugf("FrameSession:onFrameAttached", "fid:%s pfid:%s", frameID, parentFrameID)
	fs.manager.FrameAttached(string(frameID), string(parentFrameID))
	if err := fs.createIsolatedWorld(fs.ctx, frameID); err != nil {
		fs.logger.Errorf("FrameSession:onFrameAttached", "fid:%s err:%v", frameID, err)
	}
}

// onFrameNavigated also covers the very first commit of a target's main
// frame, which arrives without a preceding frameAttached.
func (fs *FrameSession) onFrameNavigated(frame *cdp.Frame, initial bool) {
	id := string(frame.ID)
	if _, ok := fs.manager.Frame(id); !ok && frame.ParentID == "" {
		fs.manager.FrameAttached(id, "")
		if err := fs.createIsolatedWorld(fs.ctx, frame.ID); err != nil {
			fs.logger.Errorf("FrameSession:onFrameNavigated", "fid:%s err:%v", id, err)
		}
	}
	fs.manager.FrameCommittedNewDocumentNavigation(
		id, frame.URL+frame.URLFragment, frame.Name, frame.LoaderID.String(), initial)
}

func (fs *FrameSession) onLifecycleEvent(ev *cdppage.EventLifecycleEvent) {
	switch ev.Name {
	case "load":
		fs.manager.LifecycleEvent(string(ev.FrameID), common.LifecycleEventLoad)
	case "DOMContentLoaded":
		fs.manager.LifecycleEvent(string(ev.FrameID), common.LifecycleEventDOMContentLoad)
	}
}

func (fs *FrameSession) onConsoleAPICalled(ev *runtime.EventConsoleAPICalled) {
	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		parts = append(parts, remoteObjectText(arg))
	}
	fs.manager.InterceptConsoleMessage(common.ConsoleMessage{
		Type: ev.Type.String(),
		Text: strings.Join(parts, " "),
	})
}

// remoteObjectText renders one console argument the way the devtools
// console would: the serialized value when it crossed the wire by value,
// the description otherwise.
func remoteObjectText(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if obj.Value != nil {
		var v interface{}
		if err := json.Unmarshal(obj.Value, &v); err == nil {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprintf("%v", v)
		}
	}
	return obj.Description
}

func (fs *FrameSession) onExecutionContextCreated(ev *runtime.EventExecutionContextCreated) {
	var aux struct {
		FrameID   cdp.FrameID `json:"frameId"`
		IsDefault bool        `json:"isDefault"`
	}
	if len(ev.Context.AuxData) > 0 {
		if err := json.Unmarshal(ev.Context.AuxData, &aux); err != nil {
			fs.logger.Errorf("FrameSession:onExecutionContextCreated", "ecid:%d err:%v", ev.Context.ID, err)
			return
		}
	}

	frame, _ := fs.manager.Frame(string(aux.FrameID))
	execCtx := NewExecutionContext(fs.session, frame, ev.Context.ID)

	var world common.World
	if frame != nil {
		switch {
		case aux.IsDefault:
			world = common.MainWorld
		case ev.Context.Name == utilityWorldName && !frame.HasContext(common.UtilityWorld):
			// Multiple sessions to the same target race world creation;
			// either copy works, keep the first.
			world = common.UtilityWorld
		}
	}

	fs.mu.Lock()
	fs.contexts[ev.Context.ID] = execCtx
	if frame != nil && world != "" {
		byWorld, ok := fs.worldByFrame[frame.ID()]
		if !ok {
			byWorld = make(map[common.World]*ExecutionContext)
			fs.worldByFrame[frame.ID()] = byWorld
		}
		byWorld[world] = execCtx
	}
	fs.mu.Unlock()

	if frame != nil && world != "" {
		frame.ContextCreated(world, execCtx)
	}
}

func (fs *FrameSession) onExecutionContextDestroyed(id runtime.ExecutionContextID) {
	fs.mu.Lock()
	execCtx, ok := fs.contexts[id]
	if ok {
		delete(fs.contexts, id)
	}
	fs.mu.Unlock()
	if !ok {
		return
	}
	fs.dropWorldMapping(execCtx)
	if frame := execCtx.Frame(); frame != nil {
		frame.ContextDestroyed(execCtx)
	}
}

func (fs *FrameSession) onExecutionContextsCleared() {
	fs.mu.Lock()
	contexts := make([]*ExecutionContext, 0, len(fs.contexts))
	for _, c := range fs.contexts {
		contexts = append(contexts, c)
	}
	fs.contexts = make(map[runtime.ExecutionContextID]*ExecutionContext)
	fs.mu.Unlock()

	for _, execCtx := range contexts {
		fs.dropWorldMapping(execCtx)
		if frame := execCtx.Frame(); frame != nil {
			frame.ContextDestroyed(execCtx)
		}
	}
}

func (fs *FrameSession) dropWorldMapping(execCtx *ExecutionContext) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for frameID, byWorld := range fs.worldByFrame {
		for world, c := range byWorld {
			if c == execCtx {
				delete(byWorld, world)
			}
		}
		if len(byWorld) == 0 {
			delete(fs.worldByFrame, frameID)
		}
	}
}

func (fs *FrameSession) onRequestWillBeSent(ev *network.EventRequestWillBeSent) {
	frameID := string(ev.FrameID)

	documentID := ""
	if ev.Type == network.ResourceTypeDocument && frameID != "" {
		documentID = string(ev.LoaderID)
		// The browser names the exact document this request will commit;
		// pin the pending id to it.
		fs.manager.FrameUpdatedDocumentIDForNavigation(frameID, documentID)
	}

	redirect := ev.RedirectResponse != nil
	req := NewRequest(ev, documentID, redirect)

	fs.mu.Lock()
	fs.requests[ev.RequestID] = req
	fs.requestFrames[ev.RequestID] = frameID
	fs.mu.Unlock()

	fs.manager.RequestStarted(frameID, req)
}

func (fs *FrameSession) onResponseReceived(ev *network.EventResponseReceived) {
	fs.mu.Lock()
	req, ok := fs.requests[ev.RequestID]
	fs.mu.Unlock()
	if !ok {
		return
	}
	resp := &Response{URL: ev.Response.URL, Status: ev.Response.Status}
	req.setResponse(resp)
	fs.manager.RequestReceivedResponse(req, resp)
}

func (fs *FrameSession) onLoadingFinished(ev *network.EventLoadingFinished) {
	req, frameID := fs.takeRequest(ev.RequestID)
	if req == nil {
		return
	}
	fs.manager.RequestFinished(frameID, req)
}

func (fs *FrameSession) onLoadingFailed(ev *network.EventLoadingFailed) {
	req, frameID := fs.takeRequest(ev.RequestID)
	if req == nil {
		return
	}
	fs.manager.RequestFailed(frameID, req, ev.Canceled, ev.ErrorText)
}

func (fs *FrameSession) takeRequest(id network.RequestID) (*Request, string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	req, ok := fs.requests[id]
	if !ok {
		return nil, ""
	}
	frameID := fs.requestFrames[id]
	delete(fs.requests, id)
	delete(fs.requestFrames, id)
	return req, frameID
}

// NavigateFrame implements common.PageDelegate. The returned
// loader id is the document the navigation will commit; an empty one means
// a same-document outcome.
func (fs *FrameSession) NavigateFrame(ctx context.Context, frame *common.Frame, url, referer string) (common.NavigateResult, error) {
	fs.logger.Debugf("FrameSession:navigateFrame", "fid:%s url:%q referer:%q", frame.ID(), url, referer)

	action := cdppage.Navigate(url).WithReferrer(referer).WithFrameID(cdp.FrameID(frame.ID()))
	_, documentID, errorText, err := action.Do(cdp.WithExecutor(ctx, fs.session))
	if err != nil {
		return common.NavigateResult{}, fmt.Errorf("%s at %q: %w", errorText, url, err)
	}
	if errorText != "" {
		return common.NavigateResult{}, fmt.Errorf("navigating to %q: %s", url, errorText)
	}
	return common.NavigateResult{NewDocumentID: documentID.String()}, nil
}

// GetFrameElement implements common.PageDelegate: the frame's owner
// element resolved in its parent's main world.
func (fs *FrameSession) GetFrameElement(ctx context.Context, frame *common.Frame) (common.ElementHandle, error) {
	parent := frame.ParentFrame()
	if parent == nil {
		return nil, fmt.Errorf("frame %q has no parent to host its element", frame.ID())
	}

	exec := cdp.WithExecutor(ctx, fs.session)
	backendNodeID, _, err := dom.GetFrameOwner(cdp.FrameID(frame.ID())).Do(exec)
	if err != nil {
		return nil, fmt.Errorf("finding owner for frame %q: %w", frame.ID(), err)
	}

	parentCtx := fs.worldContext(parent.ID(), common.MainWorld)
	if parentCtx == nil {
		return nil, fmt.Errorf("parent frame %q has no main world context", parent.ID())
	}

	remote, err := dom.ResolveNode().
		WithBackendNodeID(backendNodeID).
		WithExecutionContextID(parentCtx.ID()).
		Do(exec)
	if err != nil {
		return nil, fmt.Errorf("resolving owner node for frame %q: %w", frame.ID(), err)
	}
	return NewElementHandle(fs.session, parentCtx, remote), nil
}

// AdoptElementHandle implements common.PageDelegate: re-home handle into
// targetContext's world via its backend node id.
func (fs *FrameSession) AdoptElementHandle(ctx context.Context, handle common.ElementHandle, targetContext common.ExecutionContext) (common.ElementHandle, error) {
	source, ok := handle.(*ElementHandle)
	if !ok {
		return nil, fmt.Errorf("cannot adopt foreign element handle %T", handle)
	}
	target, ok := targetContext.(*ExecutionContext)
	if !ok {
		return nil, fmt.Errorf("cannot adopt into foreign execution context %T", targetContext)
	}

	exec := cdp.WithExecutor(ctx, fs.session)
	node, err := dom.DescribeNode().WithObjectID(source.remote.ObjectID).Do(exec)
	if err != nil {
		return nil, fmt.Errorf("describing node for adoption: %w", err)
	}

	remote, err := dom.ResolveNode().
		WithBackendNodeID(node.BackendNodeID).
		WithExecutionContextID(target.ID()).
		Do(exec)
	if err != nil {
		return nil, fmt.Errorf("adopting node: %w", err)
	}
	return NewElementHandle(fs.session, target, remote), nil
}

// InputActionEpilogue implements common.PageDelegate: one cheap round trip
// so any navigation request the input synchronously scheduled reaches the
// event stream before the Signal Barrier is asked to wait.
func (fs *FrameSession) InputActionEpilogue(ctx context.Context) error {
	return cdppage.Enable().Do(cdp.WithExecutor(ctx, fs.session))
}

// CSPErrorsAsynchronousForInlineScripts implements common.PageDelegate;
// Chromium surfaces inline-script CSP violations asynchronously on the
// console.
func (fs *FrameSession) CSPErrorsAsynchronousForInlineScripts() bool { return true }

// SetExtraHTTPHeaders installs page-level headers on the network domain
// and keeps them queryable for goto's referer reconciliation.
func (fs *FrameSession) SetExtraHTTPHeaders(ctx context.Context, headers map[string]string) error {
	raw := make(network.Headers, len(headers))
	for k, v := range headers {
		raw[k] = v
	}
	if err := network.SetExtraHTTPHeaders(raw).Do(cdp.WithExecutor(ctx, fs.session)); err != nil {
		return fmt.Errorf("setting extra HTTP headers: %w", err)
	}

	fs.mu.Lock()
	fs.extraHTTPHeaders = make(map[string]string, len(headers))
	for k, v := range headers {
		fs.extraHTTPHeaders[strings.ToLower(k)] = v
	}
	fs.mu.Unlock()
	return nil
}

// ExtraHTTPHeader implements common.PageDelegate.
func (fs *FrameSession) ExtraHTTPHeader(key string) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.extraHTTPHeaders[strings.ToLower(key)]
	return v, ok
}

// Done implements common.PageDelegate.
func (fs *FrameSession) Done() <-chan struct{} { return fs.session.Done() }

func (fs *FrameSession) worldContext(frameID string, world common.World) *ExecutionContext {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	byWorld, ok := fs.worldByFrame[frameID]
	if !ok {
		return nil
	}
	return byWorld[world]
}
