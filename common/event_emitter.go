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
	"sync"
)

// Page-level event names emitted to the embedder.
const (
	EventFrameAttached      = "frameattached"
	EventFrameDetached      = "framedetached"
	EventFrameNavigated     = "framenavigated"
	EventFrameNavigation    = "framenavigation" // internal: fires on every navigation outcome
	EventDOMContentLoaded   = "domcontentloaded"
	EventLoad               = "load"
	EventRequest            = "request"
	EventResponse           = "response"
	EventRequestFinished    = "requestfinished"
	EventRequestFailed      = "requestfailed"
	EventConsole            = "console"
)

// Event is a single emitted occurrence: a name and an opaque payload.
type Event struct {
	typ  string
	data interface{}
}

type eventHandler struct {
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

// EventEmitter is the minimal pub/sub surface the core depends on: Frame and
// FrameManager both emit named events and let Frame Tasks / the embedder
// subscribe to them. Concrete collaborators
// satisfy this same shape.
type EventEmitter interface {
	emit(event string, data interface{})
	on(ctx context.Context, events []string, ch chan Event)
	onAll(ctx context.Context, ch chan Event)
}

// BaseEventEmitter is a single-threaded-safe fan-out emitter: every access
// to its handler maps is funneled through a mutex so it can be driven from
// the single coordination goroutine and observed from caller goroutines
// awaiting a channel.
type BaseEventEmitter struct {
	mu          sync.Mutex
	ctx         context.Context
	handlers    map[string][]eventHandler
	handlersAll []eventHandler
}

// NewBaseEventEmitter constructs an emitter bound to ctx; handlers
// registered under a cancelled context are pruned lazily on the next
// emission.
func NewBaseEventEmitter(ctx context.Context) BaseEventEmitter {
	return BaseEventEmitter{
		ctx:      ctx,
		handlers: make(map[string][]eventHandler),
	}
}

func (e *BaseEventEmitter) sync(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// on registers ch to receive any of the named events until ctx is done.
func (e *BaseEventEmitter) on(ctx context.Context, events []string, ch chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hctx, cancel := context.WithCancel(ctx)
	h := eventHandler{ch: ch, ctx: hctx, cancel: cancel}
	for _, name := range events {
		e.handlers[name] = append(e.handlers[name], h)
	}
}

// onAll registers ch to receive every event until ctx is done.
func (e *BaseEventEmitter) onAll(ctx context.Context, ch chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hctx, cancel := context.WithCancel(ctx)
	e.handlersAll = append(e.handlersAll, eventHandler{ch: ch, ctx: hctx, cancel: cancel})
}

// emit delivers data to every live subscriber of event, pruning any whose
// context has since been cancelled.
func (e *BaseEventEmitter) emit(event string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	live := e.handlers[event][:0]
	for _, h := range e.handlers[event] {
		select {
		case <-h.ctx.Done():
			continue
		default:
		}
		select {
		case h.ch <- Event{typ: event, data: data}:
		case <-h.ctx.Done():
			continue
		}
		live = append(live, h)
	}
	e.handlers[event] = live

	liveAll := e.handlersAll[:0]
	for _, h := range e.handlersAll {
		select {
		case <-h.ctx.Done():
			continue
		default:
		}
		select {
		case h.ch <- Event{typ: event, data: data}:
		case <-h.ctx.Done():
			continue
		}
		liveAll = append(liveAll, h)
	}
	e.handlersAll = liveAll
}
