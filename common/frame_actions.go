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
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// ActionOptions configures one element action.
type ActionOptions struct {
	Timeout time.Duration
}

// contentScript serializes doctype plus documentElement outerHTML, the
// exact shape Frame.Content returns.
const contentScript = `(() => {
	let retVal = '';
	if (document.doctype) { retVal = new XMLSerializer().serializeToString(document.doctype); }
	if (document.documentElement) { retVal += document.documentElement.outerHTML; }
	return retVal;
})()`

// Content returns the full serialized HTML of the frame's current document,
// evaluated in the utility world.
func (f *Frame) Content(ctx context.Context, timeout time.Duration) (string, error) {
	resolved := f.opTimeout(timeout)
	return runAbortableTask(ctx, "Frame.content", resolved, f.log, func(pc *progressController) (string, error) {
		execCtx, err := f.waitForExecutionContext(pc.Context(), UtilityWorld)
		if err != nil {
			return "", err
		}
		v, err := execCtx.EvaluateExpression(pc.Context(), contentScript)
		if err != nil {
			return "", err
		}
		s, _ := v.(string)
		return s, nil
	})
}

// Evaluate runs pageFunc with args in the frame's main world and returns
// the serialized result. At most two user arguments are accepted.
func (f *Frame) Evaluate(ctx context.Context, pageFunc goja.Value, args ...goja.Value) (interface{}, error) {
	if len(args) > 2 {
		return nil, &InvalidArgumentError{Message: fmt.Sprintf(
			"evaluate accepts at most two arguments, got %d", len(args))}
	}
	execCtx, err := f.waitForExecutionContext(ctx, MainWorld)
	if err != nil {
		return nil, err
	}
	return execCtx.EvaluateInternal(ctx, pageFunc, args...)
}

// EvaluateHandle is Evaluate returning an in-page handle instead of a
// serialized value.
func (f *Frame) EvaluateHandle(ctx context.Context, pageFunc goja.Value, args ...goja.Value) (JSHandle, error) {
	if len(args) > 2 {
		return nil, &InvalidArgumentError{Message: fmt.Sprintf(
			"evaluateHandle accepts at most two arguments, got %d", len(args))}
	}
	execCtx, err := f.waitForExecutionContext(ctx, MainWorld)
	if err != nil {
		return nil, err
	}
	return execCtx.EvaluateHandleInternal(ctx, pageFunc, args...)
}

// Query resolves the first element matching selector in the main world.
func (f *Frame) Query(ctx context.Context, selector string) (ElementHandle, error) {
	if f.manager == nil || f.manager.selectorEngine == nil {
		return nil, fmt.Errorf("frame has no selector engine")
	}
	return f.manager.selectorEngine.Query(ctx, f, selector)
}

// QueryAll resolves every element matching selector in the main world.
func (f *Frame) QueryAll(ctx context.Context, selector string) ([]ElementHandle, error) {
	if f.manager == nil || f.manager.selectorEngine == nil {
		return nil, fmt.Errorf("frame has no selector engine")
	}
	return f.manager.selectorEngine.QueryAll(ctx, f, selector)
}

// EvalOnSelector evaluates pageFunc against the first element matching
// selector.
func (f *Frame) EvalOnSelector(ctx context.Context, selector string, pageFunc goja.Value, args ...goja.Value) (interface{}, error) {
	if f.manager == nil || f.manager.selectorEngine == nil {
		return nil, fmt.Errorf("frame has no selector engine")
	}
	return f.manager.selectorEngine.EvalOnSelector(ctx, f, selector, pageFunc, args...)
}

// EvalOnSelectorAll evaluates pageFunc against every element matching
// selector.
func (f *Frame) EvalOnSelectorAll(ctx context.Context, selector string, pageFunc goja.Value, args ...goja.Value) (interface{}, error) {
	if f.manager == nil || f.manager.selectorEngine == nil {
		return nil, fmt.Errorf("frame has no selector engine")
	}
	return f.manager.selectorEngine.EvalOnSelectorAll(ctx, f, selector, pageFunc, args...)
}

// DispatchEvent dispatches a DOM event of eventType on the element matching
// selector, scheduled through the selector engine in the world it requests.
func (f *Frame) DispatchEvent(ctx context.Context, selector, eventType string, eventInit goja.Value, timeout time.Duration) error {
	resolved := f.opTimeout(timeout)
	_, err := runAbortableTask(ctx, "Frame.dispatchEvent", resolved, f.log, func(pc *progressController) (struct{}, error) {
		if f.manager == nil || f.manager.selectorEngine == nil {
			return struct{}{}, fmt.Errorf("frame has no selector engine")
		}
		wt, err := f.manager.selectorEngine.DispatchEventTask(f, selector, eventType, eventInit)
		if err != nil {
			return struct{}{}, err
		}

		rt := NewRerunnableTask(f, wt.World, wt.Task)
		pc.CleanupWhenAborted(func() { rt.Terminate(&TimeoutError{Op: "Frame.dispatchEvent", Timeout: resolved.String()}) })

		if execCtx := f.context(wt.World); execCtx != nil {
			rt.Rerun(pc.Context(), execCtx)
		}
		_, err = rt.Result(pc.Context())
		return struct{}{}, err
	})
	return err
}

// FrameElement returns the <iframe>/<frame> element hosting this frame in
// its parent document.
func (f *Frame) FrameElement(ctx context.Context) (ElementHandle, error) {
	if f.manager == nil || f.manager.pageDelegate == nil {
		return nil, fmt.Errorf("frame has no page delegate")
	}
	return f.manager.pageDelegate.GetFrameElement(ctx, f)
}

// WaitForTimeout parks the calling goroutine for the given duration. It is
// an anti-pattern kept for API compatibility; using it marks the page so
// the hint subsystem can warn.
func (f *Frame) WaitForTimeout(ctx context.Context, timeout time.Duration) {
	if f.manager != nil {
		f.manager.markWaitForTimeoutUsed()
	}
	select {
	case <-time.After(timeout):
	case <-ctx.Done():
	}
}

// waitForSelectorAttached schedules one attached-state selector wait under
// pc, the resolve step of every retry-with-selector attempt.
func (f *Frame) waitForSelectorAttached(pc *progressController, selector string, timeout time.Duration) (ElementHandle, error) {
	if f.manager == nil || f.manager.selectorEngine == nil {
		return nil, fmt.Errorf("frame has no selector engine")
	}
	wt, err := f.manager.selectorEngine.WaitForSelectorTask(f, selector, ElementStateAttached)
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
		return nil, fmt.Errorf("waiting for selector %q did not resolve to an element", selector)
	}
	return handle, nil
}

// retryWithSelector is the retry-with-selector-if-not-connected protocol
// every element action runs under: resolve selector in state
// attached, run action against the handle, and if the node was removed from
// the DOM in between, resolve again under the same deadline. Input-sourced
// actions run inside a Signal Barrier so navigations they trigger settle
// before the call returns.
func (f *Frame) retryWithSelector(
	ctx context.Context, op, selector string, opts ActionOptions, input bool,
	action func(ctx context.Context, handle ElementHandle) (interface{}, error),
) (interface{}, error) {
	timeout := f.opTimeout(opts.Timeout)

	return runAbortableTask(ctx, op, timeout, f.log, func(pc *progressController) (interface{}, error) {
		for pc.IsRunning() {
			handle, err := f.waitForSelectorAttached(pc, selector, timeout)
			if err != nil {
				return nil, err
			}
			pc.CleanupWhenAborted(func() { _ = handle.Dispose(f.ctx) })

			var result interface{}
			run := func(actionCtx context.Context) error {
				var actionErr error
				result, actionErr = action(actionCtx, handle)
				return actionErr
			}
			if input && f.manager != nil {
				err = f.manager.WaitForSignalsCreatedBy(pc.Context(), true, run)
			} else {
				err = run(pc.Context())
			}

			_ = handle.Dispose(pc.Context())

			var notConnected *NotConnectedError
			switch {
			case err == nil:
				return result, nil
			case errors.As(err, &notConnected):
				pc.Log("element was detached from the DOM, retrying")
				continue
			default:
				return nil, err
			}
		}
		return nil, pc.Err(timeout)
	})
}

// Click clicks the first element matching selector.
func (f *Frame) Click(ctx context.Context, selector string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.click", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.Click(ctx)
		})
	return err
}

// DblClick double-clicks the first element matching selector.
func (f *Frame) DblClick(ctx context.Context, selector string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.dblclick", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.DblClick(ctx)
		})
	return err
}

// Fill fills value into the first element matching selector.
func (f *Frame) Fill(ctx context.Context, selector, value string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.fill", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.Fill(ctx, value)
		})
	return err
}

// Focus focuses the first element matching selector.
func (f *Frame) Focus(ctx context.Context, selector string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.focus", selector, opts, false,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.Focus(ctx)
		})
	return err
}

// Hover hovers over the first element matching selector.
func (f *Frame) Hover(ctx context.Context, selector string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.hover", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.Hover(ctx)
		})
	return err
}

// Check checks the first checkbox or radio matching selector.
func (f *Frame) Check(ctx context.Context, selector string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.check", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.Check(ctx)
		})
	return err
}

// Uncheck unchecks the first checkbox matching selector.
func (f *Frame) Uncheck(ctx context.Context, selector string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.uncheck", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.Uncheck(ctx)
		})
	return err
}

// SelectOption selects the given options inside the first <select> matching
// selector, returning the values actually selected.
func (f *Frame) SelectOption(ctx context.Context, selector string, values goja.Value, opts ActionOptions) ([]string, error) {
	v, err := f.retryWithSelector(ctx, "Frame.selectOption", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return h.SelectOption(ctx, values)
		})
	if err != nil {
		return nil, err
	}
	selected, _ := v.([]string)
	return selected, nil
}

// SetInputFiles sets files on the first file input matching selector.
func (f *Frame) SetInputFiles(ctx context.Context, selector string, files []string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.setInputFiles", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.SetInputFiles(ctx, files)
		})
	return err
}

// Type types text into the first element matching selector, key by key.
func (f *Frame) Type(ctx context.Context, selector, text string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.type", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.Type(ctx, text)
		})
	return err
}

// Press presses key on the first element matching selector.
func (f *Frame) Press(ctx context.Context, selector, key string, opts ActionOptions) error {
	_, err := f.retryWithSelector(ctx, "Frame.press", selector, opts, true,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return nil, h.Press(ctx, key)
		})
	return err
}

// TextContent returns the text content of the first element matching
// selector.
func (f *Frame) TextContent(ctx context.Context, selector string, opts ActionOptions) (string, error) {
	v, err := f.retryWithSelector(ctx, "Frame.textContent", selector, opts, false,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return h.TextContent(ctx)
		})
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// InnerText returns the rendered text of the first element matching
// selector.
func (f *Frame) InnerText(ctx context.Context, selector string, opts ActionOptions) (string, error) {
	v, err := f.retryWithSelector(ctx, "Frame.innerText", selector, opts, false,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return h.InnerText(ctx)
		})
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// InnerHTML returns the inner HTML of the first element matching selector.
func (f *Frame) InnerHTML(ctx context.Context, selector string, opts ActionOptions) (string, error) {
	v, err := f.retryWithSelector(ctx, "Frame.innerHTML", selector, opts, false,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			return h.InnerHTML(ctx)
		})
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

type attributeValue struct {
	value string
	ok    bool
}

// GetAttribute returns the value of attribute name on the first element
// matching selector; ok is false when the attribute is absent.
func (f *Frame) GetAttribute(ctx context.Context, selector, name string, opts ActionOptions) (string, bool, error) {
	v, err := f.retryWithSelector(ctx, "Frame.getAttribute", selector, opts, false,
		func(ctx context.Context, h ElementHandle) (interface{}, error) {
			value, ok, err := h.GetAttribute(ctx, name)
			return attributeValue{value: value, ok: ok}, err
		})
	if err != nil {
		return "", false, err
	}
	attr, _ := v.(attributeValue)
	return attr.value, attr.ok, nil
}
