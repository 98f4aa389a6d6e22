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
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/dop251/goja"

	"github.com/AppInitio/playwright/common"
)

// injectedScriptBootstrap installs (or returns) the per-world helper
// object the polling tasks hang off of.
const injectedScriptBootstrap = `(() => {
	window.__injected = window.__injected || {};
	return window.__injected;
})()`

// ExecutionContext is the CDP-backed handle to one JS world of one frame.
// Destruction is reported by the browser through the command
// error text, which the Rerunnable Task error filter recognizes.
type ExecutionContext struct {
	session *Session
	frame   *common.Frame
	id      runtime.ExecutionContextID

	mu       sync.Mutex
	injected *JSHandle
}

var _ common.ExecutionContext = (*ExecutionContext)(nil)

// NewExecutionContext wraps the runtime context id reported by an
// executionContextCreated event.
func NewExecutionContext(session *Session, frame *common.Frame, id runtime.ExecutionContextID) *ExecutionContext {
	return &ExecutionContext{session: session, frame: frame, id: id}
}

// Frame implements common.ExecutionContext.
func (e *ExecutionContext) Frame() *common.Frame { return e.frame }

// ID returns the runtime execution context id.
func (e *ExecutionContext) ID() runtime.ExecutionContextID { return e.id }

// EvaluateInternal implements common.ExecutionContext: pageFunc is called
// with args inside this context and the result returned by value.
func (e *ExecutionContext) EvaluateInternal(ctx context.Context, pageFunc goja.Value, args ...goja.Value) (interface{}, error) {
	callArgs, err := buildCallArguments(args)
	if err != nil {
		return nil, err
	}

	action := runtime.CallFunctionOn(pageFunc.String()).
		WithExecutionContextID(e.id).
		WithArguments(callArgs).
		WithReturnByValue(true).
		WithAwaitPromise(true)
	remote, exception, err := action.Do(cdp.WithExecutor(ctx, e.session))
	if err != nil {
		return nil, err
	}
	if exception != nil {
		return nil, exceptionError(exception)
	}
	return parseRemoteValue(remote)
}

// EvaluateHandleInternal implements common.ExecutionContext: like
// EvaluateInternal but the result stays in the page, returned as a handle.
func (e *ExecutionContext) EvaluateHandleInternal(ctx context.Context, pageFunc goja.Value, args ...goja.Value) (common.JSHandle, error) {
	callArgs, err := buildCallArguments(args)
	if err != nil {
		return nil, err
	}

	action := runtime.CallFunctionOn(pageFunc.String()).
		WithExecutionContextID(e.id).
		WithArguments(callArgs).
		WithAwaitPromise(true)
	remote, exception, err := action.Do(cdp.WithExecutor(ctx, e.session))
	if err != nil {
		return nil, err
	}
	if exception != nil {
		return nil, exceptionError(exception)
	}
	return NewJSHandle(e.session, e, remote), nil
}

// EvaluateExpression implements common.ExecutionContext: a raw expression
// evaluated by value, the form the setContent console-tag back-channel
// takes.
func (e *ExecutionContext) EvaluateExpression(ctx context.Context, expression string) (interface{}, error) {
	action := runtime.Evaluate(expression).
		WithContextID(e.id).
		WithReturnByValue(true).
		WithAwaitPromise(true)
	remote, exception, err := action.Do(cdp.WithExecutor(ctx, e.session))
	if err != nil {
		return nil, err
	}
	if exception != nil {
		return nil, exceptionError(exception)
	}
	return parseRemoteValue(remote)
}

// InjectedScript implements common.ExecutionContext, lazily installing the
// page-side polling helper once per context.
func (e *ExecutionContext) InjectedScript(ctx context.Context) (common.JSHandle, error) {
	e.mu.Lock()
	if e.injected != nil {
		h := e.injected
		e.mu.Unlock()
		return h, nil
	}
	e.mu.Unlock()

	action := runtime.Evaluate(injectedScriptBootstrap).WithContextID(e.id)
	remote, exception, err := action.Do(cdp.WithExecutor(ctx, e.session))
	if err != nil {
		return nil, err
	}
	if exception != nil {
		return nil, exceptionError(exception)
	}
	handle := NewJSHandle(e.session, e, remote)

	e.mu.Lock()
	if e.injected == nil {
		e.injected = handle
	}
	h := e.injected
	e.mu.Unlock()
	return h, nil
}

func buildCallArguments(args []goja.Value) ([]*runtime.CallArgument, error) {
	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg.Export())
		if err != nil {
			return nil, fmt.Errorf("serializing evaluation argument: %w", err)
		}
		callArgs = append(callArgs, &runtime.CallArgument{Value: raw})
	}
	return callArgs, nil
}

func parseRemoteValue(remote *runtime.RemoteObject) (interface{}, error) {
	if remote == nil || remote.Value == nil {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(remote.Value, &v); err != nil {
		return nil, fmt.Errorf("parsing evaluation result: %w", err)
	}
	return v, nil
}

func exceptionError(details *runtime.ExceptionDetails) error {
	if details.Exception != nil && details.Exception.Description != "" {
		return fmt.Errorf("%s", details.Exception.Description)
	}
	return fmt.Errorf("%s", details.Text)
}

// JSHandle is a remote-object reference held open in the page until
// disposed.
type JSHandle struct {
	session *Session
	execCtx *ExecutionContext
	remote  *runtime.RemoteObject
}

var _ common.JSHandle = (*JSHandle)(nil)

// NewJSHandle wraps remote as a disposable handle.
func NewJSHandle(session *Session, execCtx *ExecutionContext, remote *runtime.RemoteObject) *JSHandle {
	return &JSHandle{session: session, execCtx: execCtx, remote: remote}
}

// Dispose implements common.JSHandle.
func (h *JSHandle) Dispose(ctx context.Context) error {
	if h.remote == nil || h.remote.ObjectID == "" {
		return nil
	}
	return runtime.ReleaseObject(h.remote.ObjectID).Do(cdp.WithExecutor(ctx, h.session))
}
