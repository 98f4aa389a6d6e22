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
	"errors"
	"fmt"
	"strings"
)

// Sentinel strings the Rerunnable Task uses to recognize an absorbed
// execution-context race rather than a fatal error.
const (
	errTextContextDestroyed = "Execution context was destroyed"
	errTextContextNotFound  = "Cannot find context with specified id"
)

// ErrTimedOut is returned by Barrier.Wait when a tracked navigation does not
// settle within the navigation timeout. A progress controller reports its
// own elapsed deadline as a *TimeoutError instead.
var ErrTimedOut = errors.New("timed out")

// TimeoutError reports that a progress deadline was reached.
type TimeoutError struct {
	Op      string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout %s exceeded", e.Op, e.Timeout)
}

// NavigationError wraps a failed request that carried pendingDocumentId.
type NavigationError struct {
	DocumentID string
	Text       string
}

func (e *NavigationError) Error() string { return e.Text }

// NavigationInterruptedError is raised by waitForSpecificDocument when a
// different document id commits first.
type NavigationInterruptedError struct {
	Expected  string
	Committed string
}

func (e *NavigationInterruptedError) Error() string {
	return "navigation interrupted by another one"
}

// FrameDetachedError is raised when an operation held a frame that detached
// out from under it.
type FrameDetachedError struct {
	FrameID string
}

func (e *FrameDetachedError) Error() string {
	return fmt.Sprintf("frame %q has been detached", e.FrameID)
}

// PageDisconnectedError is raised when the browser transport disconnects
// mid-operation.
type PageDisconnectedError struct{}

func (e *PageDisconnectedError) Error() string { return "page has been disconnected" }

// executionContextDestroyedError is absorbed internally by RerunnableTask
// and must never surface to a caller.
type executionContextDestroyedError struct{ text string }

func (e *executionContextDestroyedError) Error() string { return e.text }

// isContextDestroyedError reports whether err (or its message) indicates an
// execution-context recycle race rather than a fatal failure.
func isContextDestroyedError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, errTextContextDestroyed) || strings.Contains(msg, errTextContextNotFound)
}

// NotConnectedError is raised by element actions when the underlying DOM
// node was removed between resolution and the action.
type NotConnectedError struct{}

func (e *NotConnectedError) Error() string { return "element is not attached to the DOM" }

// InvalidArgumentError covers malformed caller input.
type InvalidArgumentError struct{ Message string }

func (e *InvalidArgumentError) Error() string { return e.Message }

// CSPError is raised when an inline script/style is blocked by CSP.
type CSPError struct{ Message string }

func (e *CSPError) Error() string { return e.Message }
