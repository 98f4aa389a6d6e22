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

// LifecycleEvent is one of the three observable frame-lifecycle predicates.
// The zero value is intentionally invalid so a missing
// WaitUntil option is caught rather than silently treated as
// domcontentloaded.
type LifecycleEvent int

const (
	lifecycleEventInvalid LifecycleEvent = iota
	// LifecycleEventLoad fires when the browser reports the load event.
	LifecycleEventLoad
	// LifecycleEventDOMContentLoad fires when the browser reports
	// DOMContentLoaded.
	LifecycleEventDOMContentLoad
	// LifecycleEventNetworkIdle is derived internally: 500ms with zero
	// non-favicon in-flight requests.
	LifecycleEventNetworkIdle
)

func (l LifecycleEvent) String() string {
	switch l {
	case LifecycleEventLoad:
		return "load"
	case LifecycleEventDOMContentLoad:
		return "domcontentloaded"
	case LifecycleEventNetworkIdle:
		return "networkidle"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l *LifecycleEvent) MarshalText() ([]byte, error) {
	if l == nil {
		return []byte(""), nil
	}
	switch *l {
	case LifecycleEventLoad, LifecycleEventDOMContentLoad, LifecycleEventNetworkIdle:
		return []byte(l.String()), nil
	default:
		return nil, fmt.Errorf("invalid lifecycle event: %d", int(*l))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts the legacy
// alias "networkidle0".
func (l *LifecycleEvent) UnmarshalText(text []byte) error {
	parsed, err := ParseLifecycleEvent(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLifecycleEvent validates a caller-supplied waitUntil/state string,
// mapping the legacy "networkidle0" alias onto LifecycleEventNetworkIdle.
// Any other value is an InvalidArgumentError.
func ParseLifecycleEvent(s string) (LifecycleEvent, error) {
	switch s {
	case "load":
		return LifecycleEventLoad, nil
	case "domcontentloaded":
		return LifecycleEventDOMContentLoad, nil
	case "networkidle", "networkidle0":
		return LifecycleEventNetworkIdle, nil
	default:
		return lifecycleEventInvalid, &InvalidArgumentError{Message: fmt.Sprintf(
			"invalid lifecycle event: %q; must be one of: load, domcontentloaded, networkidle", s)}
	}
}
