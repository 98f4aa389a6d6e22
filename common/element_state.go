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

import "fmt"

// ElementState is the wait condition a waitForSelector call targets.
type ElementState int

const (
	// ElementStateAttached waits for the element to be present in the DOM.
	ElementStateAttached ElementState = iota
	// ElementStateDetached waits for the element to be absent.
	ElementStateDetached
	// ElementStateVisible waits for a non-empty bounding box and no
	// "visibility: hidden"; the default.
	ElementStateVisible
	// ElementStateHidden waits for the element to be detached or not
	// visible.
	ElementStateHidden
)

func (s ElementState) String() string {
	switch s {
	case ElementStateAttached:
		return "attached"
	case ElementStateDetached:
		return "detached"
	case ElementStateVisible:
		return "visible"
	case ElementStateHidden:
		return "hidden"
	default:
		return ""
	}
}

// ParseElementState validates a caller-supplied state string.
func ParseElementState(s string) (ElementState, error) {
	switch s {
	case "attached":
		return ElementStateAttached, nil
	case "detached":
		return ElementStateDetached, nil
	case "visible", "":
		return ElementStateVisible, nil
	case "hidden":
		return ElementStateHidden, nil
	default:
		return ElementStateAttached, &InvalidArgumentError{Message: fmt.Sprintf(
			"invalid state %q; must be one of: attached, detached, visible, hidden", s)}
	}
}
