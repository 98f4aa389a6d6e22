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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutSettings(t *testing.T) {
	t.Parallel()

	t.Run("NewTimeoutSettings", func(t *testing.T) {
		t.Parallel()

		ts := NewTimeoutSettings(nil)
		assert.Nil(t, ts.parent)
		assert.Nil(t, ts.defaultTimeout)
		assert.Nil(t, ts.defaultNavigationTimeout)
	})

	t.Run("NewTimeoutSettings with parent", func(t *testing.T) {
		t.Parallel()

		ts := NewTimeoutSettings(nil)
		child := NewTimeoutSettings(ts)
		assert.Equal(t, ts, child.parent)
	})

	t.Run("timeout falls back to DefaultTimeout", func(t *testing.T) {
		t.Parallel()

		ts := NewTimeoutSettings(nil)
		assert.Equal(t, DefaultTimeout, ts.timeout())

		ts.setDefaultTimeout(100 * time.Millisecond)
		assert.Equal(t, 100*time.Millisecond, ts.timeout())
	})

	t.Run("navigationTimeout falls back through parent", func(t *testing.T) {
		t.Parallel()

		parent := NewTimeoutSettings(nil)
		child := NewTimeoutSettings(parent)

		assert.Equal(t, DefaultTimeout, child.navigationTimeout())

		parent.setDefaultNavigationTimeout(2 * time.Second)
		assert.Equal(t, 2*time.Second, child.navigationTimeout())

		child.setDefaultNavigationTimeout(500 * time.Millisecond)
		assert.Equal(t, 500*time.Millisecond, child.navigationTimeout())
	})

	t.Run("navigationTimeout falls back to own default timeout", func(t *testing.T) {
		t.Parallel()

		ts := NewTimeoutSettings(nil)
		ts.setDefaultTimeout(1500 * time.Millisecond)
		assert.Equal(t, 1500*time.Millisecond, ts.navigationTimeout())
	})
}
