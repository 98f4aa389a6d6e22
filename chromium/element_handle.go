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

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/dop251/goja"

	"github.com/AppInitio/playwright/common"
)

// notConnectedSentinel is returned by the in-page action snippets when the
// node was removed from the DOM between resolution and the action; the Go
// side translates it into *common.NotConnectedError so the frame's retry
// loop re-resolves the selector.
const notConnectedSentinel = "error:notconnected"

// ElementHandle is the CDP-backed DOM handle: a remote object plus the
// action surface the frame's retry protocol drives. Actions run through
// Runtime.callFunctionOn with the node as `this`.
type ElementHandle struct {
	JSHandle
}

var _ common.ElementHandle = (*ElementHandle)(nil)

// NewElementHandle wraps remote, which must reference a DOM node.
func NewElementHandle(session *Session, execCtx *ExecutionContext, remote *runtime.RemoteObject) *ElementHandle {
	return &ElementHandle{JSHandle: JSHandle{session: session, execCtx: execCtx, remote: remote}}
}

// ExecContext implements common.ElementHandle.
func (h *ElementHandle) ExecContext() common.ExecutionContext { return h.execCtx }

// callOnNode runs fn with the node as `this`, translating the
// not-connected sentinel into *common.NotConnectedError.
func (h *ElementHandle) callOnNode(ctx context.Context, fn string, args ...interface{}) (interface{}, error) {
	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("serializing action argument: %w", err)
		}
		callArgs = append(callArgs, &runtime.CallArgument{Value: raw})
	}

	action := runtime.CallFunctionOn(fn).
		WithObjectID(h.remote.ObjectID).
		WithArguments(callArgs).
		WithReturnByValue(true).
		WithAwaitPromise(true)
	remote, exception, err := action.Do(cdp.WithExecutor(ctx, h.session))
	if err != nil {
		return nil, err
	}
	if exception != nil {
		return nil, exceptionError(exception)
	}

	v, err := parseRemoteValue(remote)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok && s == notConnectedSentinel {
		return nil, &common.NotConnectedError{}
	}
	return v, nil
}

// guarded wraps body in the connectivity check every action snippet runs
// first.
func guarded(body string) string {
	return fmt.Sprintf(`function() {
	if (!this.isConnected) { return %q; }
	%s
}`, notConnectedSentinel, body)
}

// Click implements common.ElementHandle.
func (h *ElementHandle) Click(ctx context.Context) error {
	_, err := h.callOnNode(ctx, guarded(`this.click();`))
	return err
}

// DblClick implements common.ElementHandle.
func (h *ElementHandle) DblClick(ctx context.Context) error {
	_, err := h.callOnNode(ctx, guarded(
		`this.dispatchEvent(new MouseEvent('dblclick', {bubbles: true, cancelable: true, detail: 2}));`))
	return err
}

// Fill implements common.ElementHandle.
func (h *ElementHandle) Fill(ctx context.Context, value string) error {
	_, err := h.callOnNode(ctx, guarded(`
	const value = arguments[0];
	if (this.isContentEditable) {
		this.textContent = value;
	} else {
		this.value = value;
	}
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));`), value)
	return err
}

// Focus implements common.ElementHandle.
func (h *ElementHandle) Focus(ctx context.Context) error {
	_, err := h.callOnNode(ctx, guarded(`this.focus();`))
	return err
}

// Hover implements common.ElementHandle.
func (h *ElementHandle) Hover(ctx context.Context) error {
	_, err := h.callOnNode(ctx, guarded(`
	this.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
	this.dispatchEvent(new MouseEvent('mouseenter', {bubbles: false}));`))
	return err
}

// Check implements common.ElementHandle.
func (h *ElementHandle) Check(ctx context.Context) error {
	return h.setChecked(ctx, true)
}

// Uncheck implements common.ElementHandle.
func (h *ElementHandle) Uncheck(ctx context.Context) error {
	return h.setChecked(ctx, false)
}

func (h *ElementHandle) setChecked(ctx context.Context, checked bool) error {
	_, err := h.callOnNode(ctx, guarded(`
	const checked = arguments[0];
	if (this.checked !== checked) {
		this.click();
		if (this.checked !== checked) { this.checked = checked; }
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`), checked)
	return err
}

// SelectOption implements common.ElementHandle, returning the values
// actually selected.
func (h *ElementHandle) SelectOption(ctx context.Context, values goja.Value) ([]string, error) {
	var wanted interface{}
	if values != nil {
		wanted = values.Export()
	}
	v, err := h.callOnNode(ctx, guarded(`
	let wanted = arguments[0];
	if (wanted == null) { wanted = []; }
	if (!Array.isArray(wanted)) { wanted = [wanted]; }
	const selected = [];
	for (const option of this.options) {
		option.selected = wanted.includes(option.value) || wanted.includes(option.label);
		if (option.selected) { selected.push(option.value); }
		if (option.selected && !this.multiple) { break; }
	}
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
	return selected;`), wanted)
	if err != nil {
		return nil, err
	}
	list, _ := v.([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// SetInputFiles implements common.ElementHandle via DOM.setFileInputFiles,
// the one action that cannot be expressed in page JS.
func (h *ElementHandle) SetInputFiles(ctx context.Context, files []string) error {
	action := dom.SetFileInputFiles(files).WithObjectID(h.remote.ObjectID)
	return action.Do(cdp.WithExecutor(ctx, h.session))
}

// Type implements common.ElementHandle.
func (h *ElementHandle) Type(ctx context.Context, text string) error {
	_, err := h.callOnNode(ctx, guarded(`
	const text = arguments[0];
	this.focus();
	for (const ch of text) {
		this.dispatchEvent(new KeyboardEvent('keydown', {key: ch, bubbles: true}));
		if (this.isContentEditable) { this.textContent += ch; } else { this.value += ch; }
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new KeyboardEvent('keyup', {key: ch, bubbles: true}));
	}
	this.dispatchEvent(new Event('change', {bubbles: true}));`), text)
	return err
}

// Press implements common.ElementHandle.
func (h *ElementHandle) Press(ctx context.Context, key string) error {
	_, err := h.callOnNode(ctx, guarded(`
	const key = arguments[0];
	this.focus();
	this.dispatchEvent(new KeyboardEvent('keydown', {key: key, bubbles: true, cancelable: true}));
	this.dispatchEvent(new KeyboardEvent('keypress', {key: key, bubbles: true, cancelable: true}));
	this.dispatchEvent(new KeyboardEvent('keyup', {key: key, bubbles: true, cancelable: true}));`), key)
	return err
}

// TextContent implements common.ElementHandle.
func (h *ElementHandle) TextContent(ctx context.Context) (string, error) {
	v, err := h.callOnNode(ctx, guarded(`return this.textContent;`))
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// InnerText implements common.ElementHandle.
func (h *ElementHandle) InnerText(ctx context.Context) (string, error) {
	v, err := h.callOnNode(ctx, guarded(`return this.innerText;`))
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// InnerHTML implements common.ElementHandle.
func (h *ElementHandle) InnerHTML(ctx context.Context) (string, error) {
	v, err := h.callOnNode(ctx, guarded(`return this.innerHTML;`))
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// GetAttribute implements common.ElementHandle; ok is false when the
// attribute is absent.
func (h *ElementHandle) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	v, err := h.callOnNode(ctx, guarded(`return this.getAttribute(arguments[0]);`), name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

// DispatchEvent implements common.ElementHandle.
func (h *ElementHandle) DispatchEvent(ctx context.Context, eventType string, eventInit goja.Value) error {
	var init interface{}
	if eventInit != nil {
		init = eventInit.Export()
	}
	_, err := h.callOnNode(ctx, guarded(`
	const type = arguments[0];
	const init = arguments[1] || {};
	this.dispatchEvent(new Event(type, Object.assign({bubbles: true, cancelable: true}, init)));`),
		eventType, init)
	return err
}
