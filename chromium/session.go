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
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/mailru/easyjson"
)

// Session is one CDP session to a page target: an executor that carries
// commands plus the done latch observers use to notice the transport going
// away. The websocket connection itself lives behind the cdp.Executor and
// is out of scope here.
type Session struct {
	id   string
	exec cdp.Executor

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps exec as a session identified by id.
func NewSession(id string, exec cdp.Executor) *Session {
	return &Session{
		id:   id,
		exec: exec,
		done: make(chan struct{}),
	}
}

// ID returns the browser-assigned session id.
func (s *Session) ID() string { return s.id }

// Execute implements cdp.Executor by forwarding to the underlying
// transport, so a Session can be installed with cdp.WithExecutor.
func (s *Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return s.exec.Execute(ctx, method, params, res)
}

// Close marks the session done; safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }
