package common

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPoll struct {
	result    interface{}
	err       error
	cancelled bool
}

func (p *stubPoll) Result(context.Context) (interface{}, error) { return p.result, p.err }
func (p *stubPoll) Cancel()                                     { p.cancelled = true }

type buildFunc func(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error)

func (f buildFunc) Build(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error) {
	return f(ctx, execCtx)
}

func TestRerunnableTaskResolvesOnFirstSuccessfulPoll(t *testing.T) {
	t.Parallel()

	frame := newTestFrame(t, "frame-1", nil)
	poll := &stubPoll{result: "done"}
	task := buildFunc(func(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error) {
		return poll, nil
	})

	rt := NewRerunnableTask(frame, MainWorld, task)
	rt.Rerun(context.Background(), nil)

	v, err := rt.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestRerunnableTaskAbsorbsContextDestroyedAndRerunsSuccessfully(t *testing.T) {
	t.Parallel()

	frame := newTestFrame(t, "frame-1", nil)
	calls := 0
	task := buildFunc(func(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error) {
		calls++
		if calls == 1 {
			return nil, &executionContextDestroyedError{text: errTextContextDestroyed}
		}
		return &stubPoll{result: "ok"}, nil
	})

	rt := NewRerunnableTask(frame, MainWorld, task)
	rt.Rerun(context.Background(), nil)

	select {
	case <-rt.w.Settled():
		t.Fatal("task settled after an absorbed context-destroyed error")
	default:
	}

	rt.Rerun(context.Background(), nil)
	v, err := rt.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestRerunnableTaskRejectsOnGenuineBuildError(t *testing.T) {
	t.Parallel()

	frame := newTestFrame(t, "frame-1", nil)
	task := buildFunc(func(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error) {
		return nil, errors.New("boom")
	})

	rt := NewRerunnableTask(frame, MainWorld, task)
	rt.Rerun(context.Background(), nil)

	_, err := rt.Result(context.Background())
	require.Error(t, err)
}

func TestRerunnableTaskTerminateRejectsAndDeregisters(t *testing.T) {
	t.Parallel()

	frame := newTestFrame(t, "frame-1", nil)
	poll := &stubPoll{}
	task := buildFunc(func(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error) {
		return poll, nil
	})

	rt := NewRerunnableTask(frame, MainWorld, task)
	assert.Len(t, frame.rerunnableTasks[MainWorld], 1)

	rt.Terminate(&FrameDetachedError{FrameID: "frame-1"})

	_, err := rt.Result(context.Background())
	require.Error(t, err)
	assert.Len(t, frame.rerunnableTasks[MainWorld], 0)
}
