package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrierWaitReturnsImmediatelyWithNoTrackedNavigations(t *testing.T) {
	t.Parallel()

	b := NewBarrier()
	err := b.Wait(context.Background())
	assert.NoError(t, err)
}

func TestBarrierWaitsForTrackedFrameNavigationToSettle(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	frame := m.FrameAttached("frame-1", "")

	b := NewBarrier()
	b.AddFrameNavigation(frame)

	waitDone := make(chan error, 1)
	go func() { waitDone <- b.Wait(context.Background()) }()

	select {
	case <-waitDone:
		t.Fatal("Wait returned before the tracked navigation settled")
	case <-time.After(20 * time.Millisecond):
	}

	m.FrameNavigatedSameDocument("frame-1", "https://example.com/#x")

	select {
	case err := <-waitDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the navigation settled")
	}
}

func TestBarrierIgnoresNonTopFrameNavigations(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	m.FrameAttached("parent", "")
	child := m.FrameAttached("child", "parent")

	b := NewBarrier()
	b.AddFrameNavigation(child) // no-op: only top-frame navigations gate an input action

	err := b.Wait(context.Background())
	assert.NoError(t, err)
}

func TestBarrierPropagatesNavigationTimeout(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	m.timeoutSettings.setDefaultNavigationTimeout(10 * time.Millisecond)
	frame := m.FrameAttached("frame-1", "")

	b := NewBarrier()
	b.AddFrameNavigation(frame)

	err := b.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTimedOut)
}
