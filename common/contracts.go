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

	"github.com/dop251/goja"
)

// World identifies one of the two JS global scopes a frame exposes.
type World string

const (
	MainWorld    World = "main"
	UtilityWorld World = "utility"
)

// NavigateResult is returned by PageDelegate.NavigateFrame. A non-empty
// NewDocumentID means the navigation will mint a fresh document; an empty
// one means the delegate expects a same-document outcome.
type NavigateResult struct {
	NewDocumentID string
}

// PageDelegate is the capability surface of the browser transport. Its
// implementation (e.g. a CDP-backed adapter, see the chromium package)
// lives outside the coordination core.
type PageDelegate interface {
	// NavigateFrame asks the browser to navigate frame to url, optionally
	// carrying referer. It returns before the navigation completes.
	NavigateFrame(ctx context.Context, frame *Frame, url, referer string) (NavigateResult, error)

	// GetFrameElement returns the <iframe>/<frame> element hosting frame
	// inside its parent document.
	GetFrameElement(ctx context.Context, frame *Frame) (ElementHandle, error)

	// AdoptElementHandle re-homes handle into targetContext's world.
	AdoptElementHandle(ctx context.Context, handle ElementHandle, targetContext ExecutionContext) (ElementHandle, error)

	// InputActionEpilogue is awaited after every action sourced as "input"
	// (click/type/press/...), giving the delegate a chance to let any
	// synchronously triggered navigation announce itself before the
	// Signal Barrier is asked to wait.
	InputActionEpilogue(ctx context.Context) error

	// CSPErrorsAsynchronousForInlineScripts reports whether
	// addScriptTag(content) needs an extra round trip to observe a CSP
	// violation console message.
	CSPErrorsAsynchronousForInlineScripts() bool

	// ExtraHTTPHeader returns the page-level extra HTTP header value for
	// key, used to reconcile goto's referer option.
	ExtraHTTPHeader(key string) (string, bool)

	// Done is closed when the underlying browser session ends, so a
	// suspended wait unblocks even without an explicit cancellation.
	Done() <-chan struct{}
}

// SchedulableTask is a handle to a poll running inside the page, produced
// by SelectorEngine.WaitForSelectorTask / DispatchEventTask and by
// waitForFunction's injected-script builder. RerunnableTask drives it
// across execution-context recycles.
type SchedulableTask interface {
	// Build invokes the task's remote poll inside ctx and returns a handle
	// whose Result resolves (or rejects) the poll's outcome.
	Build(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error)
}

// SchedulableTaskFunc adapts a function to SchedulableTask.
type SchedulableTaskFunc func(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error)

// Build implements SchedulableTask.
func (f SchedulableTaskFunc) Build(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error) {
	return f(ctx, execCtx)
}

// InjectedScriptPoll is the local handle to a page-side poll loop.
type InjectedScriptPoll interface {
	// Result blocks until the poll resolves, is cancelled, or errors.
	Result(ctx context.Context) (interface{}, error)
	// Cancel stops the remote poll.
	Cancel()
}

// WorldTask pairs a SchedulableTask with the world the SelectorEngine wants
// it scheduled in.
type WorldTask struct {
	World World
	Task  SchedulableTask
}

// SelectorEngine is the external collaborator that compiles a selector
// string into schedulable tasks and resolves handles from the live DOM.
type SelectorEngine interface {
	Query(ctx context.Context, frame *Frame, selector string) (ElementHandle, error)
	QueryAll(ctx context.Context, frame *Frame, selector string) ([]ElementHandle, error)
	EvalOnSelector(ctx context.Context, frame *Frame, selector string, pageFunc goja.Value, args ...goja.Value) (interface{}, error)
	EvalOnSelectorAll(ctx context.Context, frame *Frame, selector string, pageFunc goja.Value, args ...goja.Value) (interface{}, error)
	WaitForSelectorTask(frame *Frame, selector string, state ElementState) (WorldTask, error)
	DispatchEventTask(frame *Frame, selector, eventType string, eventInit goja.Value) (WorldTask, error)
}

// ExecutionContext evaluates user code inside one world of one frame.
// Implementations report destruction via one of the two sentinel
// error-message substrings recognized by RerunnableTask.
type ExecutionContext interface {
	// Frame returns the owning frame, or nil if the context is not bound
	// to a frame (e.g. a detached worker context).
	Frame() *Frame

	EvaluateInternal(ctx context.Context, pageFunc goja.Value, args ...goja.Value) (interface{}, error)
	EvaluateHandleInternal(ctx context.Context, pageFunc goja.Value, args ...goja.Value) (JSHandle, error)

	// EvaluateExpression runs a raw JS expression/statement list (as opposed
	// to a compiled function value), the form CDP's Runtime.evaluate takes.
	// SetContent's console-tag back-channel uses this.
	EvaluateExpression(ctx context.Context, expression string) (interface{}, error)

	// InjectedScript returns a handle to the page-side polling helper
	// loaded once per world.
	InjectedScript(ctx context.Context) (JSHandle, error)
}

// JSHandle is an opaque reference to an in-page JS value.
type JSHandle interface {
	Dispose(ctx context.Context) error
}

// ElementHandle is the action surface of the external DOM-handle layer.
// The retry-with-selector protocol resolves one of these per attempt and
// invokes exactly one action against it; an action whose node was removed
// from the DOM in between returns *NotConnectedError and the protocol
// retries.
type ElementHandle interface {
	JSHandle

	// ExecContext returns the execution context the handle lives in, so
	// waitForSelector can adopt a utility-world handle into the main world
	// before returning it.
	ExecContext() ExecutionContext

	Click(ctx context.Context) error
	DblClick(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Focus(ctx context.Context) error
	Hover(ctx context.Context) error
	Check(ctx context.Context) error
	Uncheck(ctx context.Context) error
	SelectOption(ctx context.Context, values goja.Value) ([]string, error)
	SetInputFiles(ctx context.Context, files []string) error
	Type(ctx context.Context, text string) error
	Press(ctx context.Context, key string) error
	TextContent(ctx context.Context) (string, error)
	InnerText(ctx context.Context) (string, error)
	InnerHTML(ctx context.Context) (string, error)
	GetAttribute(ctx context.Context, name string) (string, bool, error)
	DispatchEvent(ctx context.Context, eventType string, eventInit goja.Value) error
}

// RequestData is the minimal surface of a network request the core needs:
// enough to correlate a committed document with its originating top-level
// request and to run the network-idle bookkeeping. The full
// request/response object model is external.
type RequestData interface {
	// ID is the browser-assigned network request id, the key the
	// in-flight set is maintained under.
	ID() string
	DocumentID() string
	IsRedirect() bool
	// IsFavicon reports whether this is a favicon fetch, which is excluded
	// from network-idle bookkeeping and page events.
	IsFavicon() bool
	// Response returns the final response for this request, if one has
	// arrived yet.
	Response() (ResponseData, bool)
}

// ResponseData is the opaque final response of a committed top-level
// request.
type ResponseData interface{}

// ProgressController is the per-operation timeout/cancellation/log
// primitive. A concrete implementation lives in progress.go; it is still
// modeled as an interface here so a caller can supply its own (e.g. one
// threading additional telemetry).
type ProgressController interface {
	// Context returns the context.Context that is cancelled when the
	// controller concludes. The default implementation in progress.go
	// concludes on timeout, explicit abort, or cancellation of its parent
	// context; page-disconnect and frame-detach do not cancel it.
	Context() context.Context
	// IsRunning reports whether the controller has not yet concluded.
	IsRunning() bool
	// Log records a progress note.
	Log(format string, args ...interface{})
	// CleanupWhenAborted registers fn to run exactly once when the
	// controller concludes, successfully or not.
	CleanupWhenAborted(fn func())
}
