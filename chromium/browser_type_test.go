package chromium

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserTypeFlags(t *testing.T) {
	t.Parallel()

	var bt BrowserType

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		flags := bt.flags(&LaunchOptions{})
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, false, flags["auto-open-devtools-for-tabs"])
		assert.NotContains(t, flags, "hide-scrollbars")
	})

	t.Run("devtools", func(t *testing.T) {
		t.Parallel()
		flags := bt.flags(&LaunchOptions{Devtools: true})
		assert.Equal(t, true, flags["auto-open-devtools-for-tabs"])
	})

	t.Run("headless adds extra flags", func(t *testing.T) {
		t.Parallel()
		flags := bt.flags(&LaunchOptions{Headless: true})
		require.Equal(t, true, flags["headless"])
		assert.Contains(t, flags, "hide-scrollbars")
		assert.Contains(t, flags, "mute-audio")
		assert.Contains(t, flags, "blink-settings")
	})

	t.Run("extra arg with value", func(t *testing.T) {
		t.Parallel()
		flags := bt.flags(&LaunchOptions{Args: []string{"browser-arg=value"}})
		assert.Equal(t, "value", flags["browser-arg"])
	})

	t.Run("extra bare flag", func(t *testing.T) {
		t.Parallel()
		flags := bt.flags(&LaunchOptions{Args: []string{"browser-arg-flag"}})
		assert.Equal(t, "", flags["browser-arg-flag"])
	})

	t.Run("extra arg trims surrounding quotes, keeps inner spacing", func(t *testing.T) {
		t.Parallel()
		flags := bt.flags(&LaunchOptions{Args: []string{
			`   browser-arg-trim-double-quote =  "value  "  `,
		}})
		assert.Equal(t, "value  ", flags["browser-arg-trim-double-quote"])

		flags = bt.flags(&LaunchOptions{Args: []string{
			`browser-arg-trim-single-quote=' value '`,
		}})
		assert.Equal(t, " value ", flags["browser-arg-trim-single-quote"])
	})
}
