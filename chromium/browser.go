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
	"os"
	"time"
)

// LaunchOptions configures BrowserType.Launch and Allocator.Allocate.
type LaunchOptions struct {
	Headless bool
	Devtools bool

	// Args holds extra Chrome command line flags, "name=value" or bare
	// "name" for a valueless flag.
	Args []string
	Env  map[string]string

	Timeout time.Duration
}

// BrowserProcess is a running local browser process plus the CDP endpoint
// it is listening on.
type BrowserProcess struct {
	ctx         context.Context
	cancel      context.CancelFunc
	proc        *os.Process
	wsEndpoint  string
	userDataDir string
}

func newBrowserProcess(ctx context.Context, cancel context.CancelFunc, proc *os.Process, wsEndpoint, userDataDir string) *BrowserProcess {
	return &BrowserProcess{ctx: ctx, cancel: cancel, proc: proc, wsEndpoint: wsEndpoint, userDataDir: userDataDir}
}

// WSEndpoint returns the CDP websocket URL the process printed on startup.
func (p *BrowserProcess) WSEndpoint() string { return p.wsEndpoint }

// UserDataDir returns the profile directory the process was launched with.
func (p *BrowserProcess) UserDataDir() string { return p.userDataDir }

// Close terminates the browser process.
func (p *BrowserProcess) Close() {
	p.cancel()
}
