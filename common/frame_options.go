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
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// PollingType selects how waitForFunction re-evaluates its predicate.
type PollingType int

const (
	// PollingRAF re-polls on every animation frame.
	PollingRAF PollingType = iota
	// PollingInterval re-polls every Interval milliseconds.
	PollingInterval
)

// GotoOptions configures Frame.Goto.
type GotoOptions struct {
	Referer   string
	Timeout   time.Duration
	WaitUntil LifecycleEvent
}

// NewFrameGotoOptions seeds goto options with the page defaults.
func NewFrameGotoOptions(defaultReferer string, defaultTimeout time.Duration) *GotoOptions {
	return &GotoOptions{
		Referer:   defaultReferer,
		Timeout:   defaultTimeout,
		WaitUntil: LifecycleEventLoad,
	}
}

// Parse fills the options from a caller-supplied goja option bag.
func (o *GotoOptions) Parse(rt *goja.Runtime, opts goja.Value) error {
	if !gojaValueExists(opts) {
		return nil
	}
	obj := opts.ToObject(rt)
	for _, k := range obj.Keys() {
		switch k {
		case "referer":
			o.Referer = obj.Get(k).String()
		case "timeout":
			o.Timeout = time.Duration(obj.Get(k).ToInteger()) * time.Millisecond
		case "waitUntil":
			lifeCycle, err := ParseLifecycleEvent(obj.Get(k).String())
			if err != nil {
				return fmt.Errorf("error parsing goto options: %w", err)
			}
			o.WaitUntil = lifeCycle
		}
	}
	return nil
}

// WaitForNavigationOptions configures Frame.WaitForNavigation.
type WaitForNavigationOptions struct {
	URL       interface{} // string, *regexp.Regexp, func(string) bool, or nil
	Timeout   time.Duration
	WaitUntil LifecycleEvent
}

// NewFrameWaitForNavigationOptions seeds wait-for-navigation options with
// the page defaults.
func NewFrameWaitForNavigationOptions(defaultTimeout time.Duration) *WaitForNavigationOptions {
	return &WaitForNavigationOptions{
		Timeout:   defaultTimeout,
		WaitUntil: LifecycleEventLoad,
	}
}

// Parse fills the options from a caller-supplied goja option bag.
func (o *WaitForNavigationOptions) Parse(rt *goja.Runtime, opts goja.Value) error {
	if !gojaValueExists(opts) {
		return nil
	}
	obj := opts.ToObject(rt)
	for _, k := range obj.Keys() {
		switch k {
		case "url":
			o.URL = obj.Get(k).Export()
		case "timeout":
			o.Timeout = time.Duration(obj.Get(k).ToInteger()) * time.Millisecond
		case "waitUntil":
			lifeCycle, err := ParseLifecycleEvent(obj.Get(k).String())
			if err != nil {
				return fmt.Errorf("error parsing waitForNavigation options: %w", err)
			}
			o.WaitUntil = lifeCycle
		}
	}
	return nil
}

// SetContentOptions configures Frame.SetContent.
type SetContentOptions struct {
	Timeout   time.Duration
	WaitUntil LifecycleEvent
}

// NewFrameSetContentOptions seeds set-content options with the page
// defaults.
func NewFrameSetContentOptions(defaultTimeout time.Duration) *SetContentOptions {
	return &SetContentOptions{
		Timeout:   defaultTimeout,
		WaitUntil: LifecycleEventLoad,
	}
}

// Parse fills the options from a caller-supplied goja option bag.
func (o *SetContentOptions) Parse(rt *goja.Runtime, opts goja.Value) error {
	if !gojaValueExists(opts) {
		return nil
	}
	obj := opts.ToObject(rt)
	for _, k := range obj.Keys() {
		switch k {
		case "timeout":
			o.Timeout = time.Duration(obj.Get(k).ToInteger()) * time.Millisecond
		case "waitUntil":
			lifeCycle, err := ParseLifecycleEvent(obj.Get(k).String())
			if err != nil {
				return fmt.Errorf("error parsing setContent options: %w", err)
			}
			o.WaitUntil = lifeCycle
		}
	}
	return nil
}

// WaitForSelectorOptions configures Frame.WaitForSelector.
type WaitForSelectorOptions struct {
	State   ElementState
	Timeout time.Duration
}

// NewFrameWaitForSelectorOptions seeds wait-for-selector options with the
// page defaults; the default state is visible.
func NewFrameWaitForSelectorOptions(defaultTimeout time.Duration) *WaitForSelectorOptions {
	return &WaitForSelectorOptions{
		State:   ElementStateVisible,
		Timeout: defaultTimeout,
	}
}

// Parse fills the options from a caller-supplied goja option bag. Legacy
// option spellings are rejected with a hint towards state.
func (o *WaitForSelectorOptions) Parse(rt *goja.Runtime, opts goja.Value) error {
	if !gojaValueExists(opts) {
		return nil
	}
	obj := opts.ToObject(rt)
	for _, k := range obj.Keys() {
		switch k {
		case "state":
			state, err := ParseElementState(obj.Get(k).String())
			if err != nil {
				return fmt.Errorf("error parsing waitForSelector options: %w", err)
			}
			o.State = state
		case "timeout":
			o.Timeout = time.Duration(obj.Get(k).ToInteger()) * time.Millisecond
		case "visibility":
			return &InvalidArgumentError{
				Message: "options.visibility is not supported, did you mean options.state?"}
		case "waitFor":
			if obj.Get(k).String() != "visible" {
				return &InvalidArgumentError{
					Message: "options.waitFor is not supported, did you mean options.state?"}
			}
		}
	}
	return nil
}

// WaitForFunctionOptions configures Frame.WaitForFunction.
type WaitForFunctionOptions struct {
	Polling  PollingType
	Interval time.Duration
	Timeout  time.Duration
	World    World
}

// NewFrameWaitForFunctionOptions seeds wait-for-function options with the
// page defaults; the default polling mode is raf.
func NewFrameWaitForFunctionOptions(defaultTimeout time.Duration) *WaitForFunctionOptions {
	return &WaitForFunctionOptions{
		Polling: PollingRAF,
		Timeout: defaultTimeout,
	}
}

// Parse fills the options from a caller-supplied goja option bag. polling
// is either the literal "raf" or a strictly positive interval in
// milliseconds; anything else is a caller error.
func (o *WaitForFunctionOptions) Parse(rt *goja.Runtime, opts goja.Value) error {
	if !gojaValueExists(opts) {
		return nil
	}
	obj := opts.ToObject(rt)
	for _, k := range obj.Keys() {
		switch k {
		case "timeout":
			o.Timeout = time.Duration(obj.Get(k).ToInteger()) * time.Millisecond
		case "polling":
			v := obj.Get(k)
			if v.String() == "raf" {
				o.Polling = PollingRAF
				continue
			}
			interval := v.ToInteger()
			if interval <= 0 {
				return &InvalidArgumentError{Message: fmt.Sprintf(
					"polling must be %q or a positive interval in milliseconds, got %q", "raf", v.String())}
			}
			o.Polling = PollingInterval
			o.Interval = time.Duration(interval) * time.Millisecond
		}
	}
	return nil
}

// gojaValueExists reports whether v carries an actual caller-supplied
// value, i.e. it is neither nil nor JS undefined/null.
func gojaValueExists(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
