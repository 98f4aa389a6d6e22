package common

import (
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toGojaValue(t *testing.T, rt *goja.Runtime, v interface{}) goja.Value {
	t.Helper()
	return rt.ToValue(v)
}

func TestFrameGotoOptionsParse(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{
			"referer":   "https://example.com/",
			"timeout":   1000,
			"waitUntil": "networkidle",
		})
		gotoOpts := NewFrameGotoOptions("", 0)
		err := gotoOpts.Parse(rt, opts)
		require.NoError(t, err)

		assert.Equal(t, "https://example.com/", gotoOpts.Referer)
		assert.Equal(t, time.Second, gotoOpts.Timeout)
		assert.Equal(t, LifecycleEventNetworkIdle, gotoOpts.WaitUntil)
	})

	t.Run("legacy networkidle0 alias", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"waitUntil": "networkidle0"})
		gotoOpts := NewFrameGotoOptions("", 0)
		require.NoError(t, gotoOpts.Parse(rt, opts))
		assert.Equal(t, LifecycleEventNetworkIdle, gotoOpts.WaitUntil)
	})

	t.Run("err/invalid_waitUntil", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"waitUntil": "none"})
		gotoOpts := NewFrameGotoOptions("", 0)
		err := gotoOpts.Parse(rt, opts)

		assert.EqualError(t, err,
			`error parsing goto options: `+
				`invalid lifecycle event: "none"; must be one of: `+
				`load, domcontentloaded, networkidle`)
	})
}

func TestFrameWaitForNavigationOptionsParse(t *testing.T) {
	t.Parallel()

	rt := goja.New()
	opts := toGojaValue(t, rt, map[string]interface{}{
		"url":       "https://example.com/",
		"timeout":   1000,
		"waitUntil": "domcontentloaded",
	})
	navOpts := NewFrameWaitForNavigationOptions(0)
	require.NoError(t, navOpts.Parse(rt, opts))

	assert.Equal(t, "https://example.com/", navOpts.URL)
	assert.Equal(t, time.Second, navOpts.Timeout)
	assert.Equal(t, LifecycleEventDOMContentLoad, navOpts.WaitUntil)
}

func TestFrameSetContentOptionsParse(t *testing.T) {
	t.Parallel()

	rt := goja.New()
	opts := toGojaValue(t, rt, map[string]interface{}{"waitUntil": "networkidle"})
	scOpts := NewFrameSetContentOptions(30 * time.Second)
	require.NoError(t, scOpts.Parse(rt, opts))

	assert.Equal(t, 30*time.Second, scOpts.Timeout)
	assert.Equal(t, LifecycleEventNetworkIdle, scOpts.WaitUntil)
}

func TestFrameWaitForSelectorOptionsParse(t *testing.T) {
	t.Parallel()

	t.Run("state", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"state": "hidden", "timeout": 250})
		wsOpts := NewFrameWaitForSelectorOptions(0)
		require.NoError(t, wsOpts.Parse(rt, opts))

		assert.Equal(t, ElementStateHidden, wsOpts.State)
		assert.Equal(t, 250*time.Millisecond, wsOpts.Timeout)
	})

	t.Run("default state is visible", func(t *testing.T) {
		t.Parallel()
		wsOpts := NewFrameWaitForSelectorOptions(0)
		assert.Equal(t, ElementStateVisible, wsOpts.State)
	})

	t.Run("err/unknown state", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"state": "floating"})
		wsOpts := NewFrameWaitForSelectorOptions(0)
		err := wsOpts.Parse(rt, opts)
		require.Error(t, err)
	})

	t.Run("err/visibility hints at state", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"visibility": "visible"})
		wsOpts := NewFrameWaitForSelectorOptions(0)
		err := wsOpts.Parse(rt, opts)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "options.state")
	})

	t.Run("waitFor visible is tolerated", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"waitFor": "visible"})
		wsOpts := NewFrameWaitForSelectorOptions(0)
		require.NoError(t, wsOpts.Parse(rt, opts))
	})

	t.Run("err/waitFor other than visible hints at state", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"waitFor": "attached"})
		wsOpts := NewFrameWaitForSelectorOptions(0)
		err := wsOpts.Parse(rt, opts)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "options.state")
	})
}

func TestFrameWaitForFunctionOptionsParse(t *testing.T) {
	t.Parallel()

	t.Run("raf", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"polling": "raf"})
		wfOpts := NewFrameWaitForFunctionOptions(0)
		require.NoError(t, wfOpts.Parse(rt, opts))
		assert.Equal(t, PollingRAF, wfOpts.Polling)
	})

	t.Run("interval", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"polling": 100})
		wfOpts := NewFrameWaitForFunctionOptions(0)
		require.NoError(t, wfOpts.Parse(rt, opts))
		assert.Equal(t, PollingInterval, wfOpts.Polling)
		assert.Equal(t, 100*time.Millisecond, wfOpts.Interval)
	})

	t.Run("err/non-positive interval", func(t *testing.T) {
		t.Parallel()

		rt := goja.New()
		opts := toGojaValue(t, rt, map[string]interface{}{"polling": 0})
		wfOpts := NewFrameWaitForFunctionOptions(0)
		err := wfOpts.Parse(rt, opts)

		require.Error(t, err)
		var invalid *InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})
}

func TestParseElementState(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want ElementState
	}{
		{in: "attached", want: ElementStateAttached},
		{in: "detached", want: ElementStateDetached},
		{in: "visible", want: ElementStateVisible},
		{in: "", want: ElementStateVisible},
		{in: "hidden", want: ElementStateHidden},
	} {
		got, err := ParseElementState(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseElementState("floating")
	require.Error(t, err)
}
