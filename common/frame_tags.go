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
	"fmt"
	"os"
	"strings"
	"time"
)

// ScriptTagOptions configures Frame.AddScriptTag; exactly one of URL, Path,
// or Content must be set.
type ScriptTagOptions struct {
	URL     string
	Path    string
	Content string
	Type    string
	Timeout time.Duration
}

// StyleTagOptions configures Frame.AddStyleTag; exactly one of URL, Path,
// or Content must be set.
type StyleTagOptions struct {
	URL     string
	Path    string
	Content string
	Timeout time.Duration
}

const cspErrorText = "Content Security Policy"

func exactlyOneTagSource(url, path, content string) error {
	n := 0
	for _, s := range []string{url, path, content} {
		if s != "" {
			n++
		}
	}
	if n != 1 {
		return &InvalidArgumentError{
			Message: "provide exactly one of url, path and content"}
	}
	return nil
}

// sourceURLAnnotation returns path with newlines stripped, for use in the
// sourceURL annotation appended to file-sourced tag content, so the
// annotation stays a single line.
func sourceURLAnnotation(path string) string {
	path = strings.ReplaceAll(path, "\n", "")
	path = strings.ReplaceAll(path, "\r", "")
	return path
}

// AddScriptTag appends a <script> to the frame's document sourced from a
// URL, a local file, or inline content, resolving once it loaded. An inline
// script blocked by Content Security Policy fails with the blocking console
// message's text.
func (f *Frame) AddScriptTag(ctx context.Context, opts ScriptTagOptions) error {
	if err := exactlyOneTagSource(opts.URL, opts.Path, opts.Content); err != nil {
		return err
	}

	content := opts.Content
	if opts.Path != "" {
		raw, err := os.ReadFile(opts.Path)
		if err != nil {
			return fmt.Errorf("reading script from %q: %w", opts.Path, err)
		}
		content = string(raw) + "\n//# sourceURL=" + sourceURLAnnotation(opts.Path)
	}

	timeout := f.opTimeout(opts.Timeout)
	_, err := runAbortableTask(ctx, "Frame.addScriptTag", timeout, f.log, func(pc *progressController) (struct{}, error) {
		return struct{}{}, f.addTagRacingCSP(pc, addScriptTagScript(opts.URL, content, opts.Type))
	})
	return err
}

// AddStyleTag is AddScriptTag's analogue for stylesheets: a <link> for a
// URL source, a <style> for file or inline content.
func (f *Frame) AddStyleTag(ctx context.Context, opts StyleTagOptions) error {
	if err := exactlyOneTagSource(opts.URL, opts.Path, opts.Content); err != nil {
		return err
	}

	content := opts.Content
	if opts.Path != "" {
		raw, err := os.ReadFile(opts.Path)
		if err != nil {
			return fmt.Errorf("reading style from %q: %w", opts.Path, err)
		}
		content = string(raw) + "\n/*# sourceURL=" + sourceURLAnnotation(opts.Path) + "*/"
	}

	timeout := f.opTimeout(opts.Timeout)
	_, err := runAbortableTask(ctx, "Frame.addStyleTag", timeout, f.log, func(pc *progressController) (struct{}, error) {
		return struct{}{}, f.addTagRacingCSP(pc, addStyleTagScript(opts.URL, content))
	})
	return err
}

// addTagRacingCSP evaluates script in the main world while watching the
// console for a CSP violation: if an error-typed message naming the policy
// arrives before the evaluation settles, the operation fails with that
// message's text instead.
func (f *Frame) addTagRacingCSP(pc *progressController, script string) error {
	cspCh := make(chan string, 1)
	if f.manager != nil {
		consoleCh := make(chan Event, 8)
		watchCtx, cancelWatch := context.WithCancel(pc.Context())
		defer cancelWatch()
		f.manager.on(watchCtx, []string{EventConsole}, consoleCh)
		go func() {
			for {
				select {
				case ev := <-consoleCh:
					msg, ok := ev.data.(ConsoleMessage)
					if ok && msg.Type == "error" && strings.Contains(msg.Text, cspErrorText) {
						select {
						case cspCh <- msg.Text:
						default:
						}
						return
					}
				case <-watchCtx.Done():
					return
				}
			}
		}()
	}

	execCtx, err := f.waitForExecutionContext(pc.Context(), MainWorld)
	if err != nil {
		return err
	}

	evalDone := make(chan error, 1)
	go func() {
		_, evalErr := execCtx.EvaluateExpression(pc.Context(), script)
		evalDone <- evalErr
	}()

	select {
	case text := <-cspCh:
		return &CSPError{Message: text}
	case err := <-evalDone:
		return err
	case <-pc.Context().Done():
		return pc.Context().Err()
	}
}

// addScriptTagScript builds the in-page snippet that appends a <script>.
// For a URL source it resolves on the script's onload and rejects on its
// onerror; inline content is appended synchronously.
func addScriptTagScript(url, content, scriptType string) string {
	if url != "" {
		return fmt.Sprintf(`new Promise((resolve, reject) => {
	const script = document.createElement('script');
	script.src = %q;
	if (%q) { script.type = %q; }
	script.onload = () => resolve();
	script.onerror = (e) => reject(new Error('failed to load script ' + script.src));
	document.head.appendChild(script);
})`, url, scriptType, scriptType)
	}
	return fmt.Sprintf(`(() => {
	const script = document.createElement('script');
	if (%q) { script.type = %q; }
	script.textContent = %q;
	document.head.appendChild(script);
})()`, scriptType, scriptType, content)
}

// addStyleTagScript builds the in-page snippet that appends a <link> for a
// URL source, or a <style> for inline content.
func addStyleTagScript(url, content string) string {
	if url != "" {
		return fmt.Sprintf(`new Promise((resolve, reject) => {
	const link = document.createElement('link');
	link.rel = 'stylesheet';
	link.href = %q;
	link.onload = () => resolve();
	link.onerror = (e) => reject(new Error('failed to load stylesheet ' + link.href));
	document.head.appendChild(link);
})`, url)
	}
	return fmt.Sprintf(`(() => {
	const style = document.createElement('style');
	style.type = 'text/css';
	style.textContent = %q;
	document.head.appendChild(style);
})()`, content)
}
