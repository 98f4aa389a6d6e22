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
	"fmt"
	"strings"
	"time"
)

// BrowserType knows how to turn LaunchOptions into the command line flags
// a local Chromium process expects, and hands the result to an Allocator.
type BrowserType struct{}

// Name returns the browser family this type launches.
func (b *BrowserType) Name() string { return "chromium" }

// Launch starts a local headless Chromium process configured after
// Playwright's and Puppeteer's own default flag sets, and returns the
// running process for a FrameSession to attach a CDP connection to.
func (b *BrowserType) Launch(ctx context.Context, opts *LaunchOptions) (*BrowserProcess, error) {
	if opts == nil {
		opts = &LaunchOptions{}
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	flags := b.flags(opts)
	envs := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}

	allocator := NewAllocator(flags, envs)
	proc, err := allocator.Allocate(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot allocate browser: %w", err)
	}
	return proc, nil
}

// flags builds the Chrome command line flag set for opts: the baseline
// flags every launch gets, plus whatever opts.Args adds or overrides.
func (b *BrowserType) flags(opts *LaunchOptions) map[string]interface{} {
	flags := map[string]interface{}{
		"no-first-run":             true,
		"no-default-browser-check": true,

		"headless":                    opts.Headless,
		"auto-open-devtools-for-tabs": opts.Devtools,

		// After Puppeteer's and Playwright's default behavior.
		"disable-background-networking":                     true,
		"enable-features":                                    "NetworkService,NetworkServiceInProcess",
		"disable-background-timer-throttling":                true,
		"disable-backgrounding-occluded-windows":             true,
		"disable-breakpad":                                   true,
		"disable-client-side-phishing-detection":             true,
		"disable-component-extensions-with-background-pages": true,
		"disable-default-apps":                               true,
		"disable-dev-shm-usage":                               true,
		"disable-extensions":                                 true,
		"disable-features":                                    "TranslateUI,BlinkGenPropertyTrees,ImprovedCookieControls,SameSiteByDefaultCookies,LazyFrameLoading",
		"disable-hang-monitor":                                true,
		"disable-ipc-flooding-protection":                    true,
		"disable-popup-blocking":                              true,
		"disable-prompt-on-repost":                            true,
		"disable-renderer-backgrounding":                      true,
		"disable-sync":                                        true,
		"force-color-profile":                                 "srgb",
		"metrics-recording-only":                              true,
		"safebrowsing-disable-auto-update":                    true,
		"enable-automation":                                   true,
		"password-store":                                      "basic",
		"use-mock-keychain":                                   true,
	}

	if opts.Headless {
		flags["hide-scrollbars"] = true
		flags["mute-audio"] = true
		flags["blink-settings"] = "primaryHoverType=2,availableHoverTypes=2,primaryPointerType=4,availablePointerTypes=4"
	}

	for _, arg := range opts.Args {
		name, value := splitFlagArg(arg)
		flags[name] = value
	}

	return flags
}

// splitFlagArg parses a "name=value" (or bare "name") launch argument, trimming the
// quotes Chrome's own flag parser accepts around a value (spec's launch
// options accept free-form extra Chrome arguments verbatim).
func splitFlagArg(arg string) (name string, value interface{}) {
	arg = strings.TrimSpace(arg)
	i := strings.IndexByte(arg, '=')
	if i < 0 {
		return arg, ""
	}
	name = strings.TrimSpace(arg[:i])
	v := strings.TrimSpace(arg[i+1:])
	v = strings.Trim(v, `"`)
	v = strings.Trim(v, `'`)
	return name, v
}
