package common

import (
	"context"
	"testing"
)

// newTestFrame builds a minimal, unattached Frame for unit tests that only
// exercise Frame Task / Rerunnable Task wiring and don't need a full
// FrameManager.
func newTestFrame(t *testing.T, id string, parent *Frame) *Frame {
	t.Helper()
	return NewFrame(context.Background(), nil, parent, id, nil)
}
