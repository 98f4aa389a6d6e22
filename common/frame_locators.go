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
	"strings"
)

// GetByBaseOptions are the options shared by the getBy* attribute lookups.
type GetByBaseOptions struct {
	// Exact requires the attribute to match exactly: case-sensitive and
	// whole-string. Only applies to quoted lookup values.
	Exact *bool
}

// buildAttributeSelector compiles an attribute lookup into the selector
// engine's internal:attr grammar. Quoted values get a match-mode suffix:
// "s" for exact, "i" for the case-insensitive default.
func (f *Frame) buildAttributeSelector(attrName, attrValue string, opts *GetByBaseOptions) string {
	suffix := ""
	if isQuotedText(attrValue) {
		suffix = "i"
		if opts != nil && opts.Exact != nil && *opts.Exact {
			suffix = "s"
		}
	}
	return fmt.Sprintf("internal:attr=[%s=%s%s]", attrName, attrValue, suffix)
}

// isQuotedText reports whether s (ignoring surrounding whitespace) is a
// complete single- or double-quoted string.
func isQuotedText(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	if first != last {
		return false
	}
	return first == '\'' || first == '"'
}

// GetByTestID resolves the first element whose data-testid attribute
// matches value.
func (f *Frame) GetByTestID(ctx context.Context, value string, opts *GetByBaseOptions) (ElementHandle, error) {
	return f.Query(ctx, f.buildAttributeSelector("data-testid", value, opts))
}

// GetByAltText resolves the first element whose alt attribute matches
// value.
func (f *Frame) GetByAltText(ctx context.Context, value string, opts *GetByBaseOptions) (ElementHandle, error) {
	return f.Query(ctx, f.buildAttributeSelector("alt", value, opts))
}

// GetByTitle resolves the first element whose title attribute matches
// value.
func (f *Frame) GetByTitle(ctx context.Context, value string, opts *GetByBaseOptions) (ElementHandle, error) {
	return f.Query(ctx, f.buildAttributeSelector("title", value, opts))
}

// GetByPlaceholder resolves the first element whose placeholder attribute
// matches value.
func (f *Frame) GetByPlaceholder(ctx context.Context, value string, opts *GetByBaseOptions) (ElementHandle, error) {
	return f.Query(ctx, f.buildAttributeSelector("placeholder", value, opts))
}
