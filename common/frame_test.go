package common

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponse struct{ status int }

type fakeRequest struct {
	id         string
	documentID string
	redirect   bool
	favicon    bool
	response   *fakeResponse
}

func (r *fakeRequest) ID() string         { return r.id }
func (r *fakeRequest) DocumentID() string { return r.documentID }
func (r *fakeRequest) IsRedirect() bool   { return r.redirect }
func (r *fakeRequest) IsFavicon() bool    { return r.favicon }
func (r *fakeRequest) Response() (ResponseData, bool) {
	if r.response == nil {
		return nil, false
	}
	return r.response, true
}

type fakePageDelegate struct {
	navigateResult NavigateResult
	navigateErr    error
	extraHeaders   map[string]string
	done           chan struct{}
}

func newFakePageDelegate() *fakePageDelegate {
	return &fakePageDelegate{done: make(chan struct{})}
}

func (d *fakePageDelegate) NavigateFrame(ctx context.Context, frame *Frame, url, referer string) (NavigateResult, error) {
	return d.navigateResult, d.navigateErr
}
func (d *fakePageDelegate) GetFrameElement(ctx context.Context, frame *Frame) (ElementHandle, error) {
	return nil, nil
}
func (d *fakePageDelegate) AdoptElementHandle(ctx context.Context, handle ElementHandle, targetContext ExecutionContext) (ElementHandle, error) {
	return handle, nil
}
func (d *fakePageDelegate) InputActionEpilogue(ctx context.Context) error { return nil }
func (d *fakePageDelegate) CSPErrorsAsynchronousForInlineScripts() bool   { return false }
func (d *fakePageDelegate) ExtraHTTPHeader(key string) (string, bool) {
	v, ok := d.extraHeaders[key]
	return v, ok
}
func (d *fakePageDelegate) Done() <-chan struct{} { return d.done }

// fakeExecCtx satisfies ExecutionContext for tests that only need
// expression evaluation or a context identity to install in a world slot.
type fakeExecCtx struct {
	frame    *Frame
	evalExpr func(ctx context.Context, expr string) (interface{}, error)
}

func (e *fakeExecCtx) Frame() *Frame { return e.frame }
func (e *fakeExecCtx) EvaluateInternal(ctx context.Context, pageFunc goja.Value, args ...goja.Value) (interface{}, error) {
	return nil, nil
}
func (e *fakeExecCtx) EvaluateHandleInternal(ctx context.Context, pageFunc goja.Value, args ...goja.Value) (JSHandle, error) {
	return nil, nil
}
func (e *fakeExecCtx) EvaluateExpression(ctx context.Context, expression string) (interface{}, error) {
	if e.evalExpr == nil {
		return nil, nil
	}
	return e.evalExpr(ctx, expression)
}
func (e *fakeExecCtx) InjectedScript(ctx context.Context) (JSHandle, error) { return nil, nil }

func newTestManager(t *testing.T, delegate PageDelegate) *FrameManager {
	t.Helper()
	ts := NewTimeoutSettings(nil)
	return NewFrameManager(context.Background(), delegate, ts, nil, nil)
}

func newTestManagerWithEngine(t *testing.T, delegate PageDelegate, engine SelectorEngine) *FrameManager {
	t.Helper()
	ts := NewTimeoutSettings(nil)
	return NewFrameManager(context.Background(), delegate, ts, engine, nil)
}

func TestFrameGotoNewDocumentWaitsForLifecycleAndReturnsResponse(t *testing.T) {
	t.Parallel()

	delegate := newFakePageDelegate()
	delegate.navigateResult = NavigateResult{NewDocumentID: "doc-1"}
	m := newTestManager(t, delegate)
	frame := m.FrameAttached("frame-1", "")

	done := make(chan struct{})
	var resp ResponseData
	var gotoErr error
	go func() {
		resp, gotoErr = frame.Goto(context.Background(), "https://example.com", GotoOptions{WaitUntil: LifecycleEventLoad})
		close(done)
	}()

	// Give Goto a moment to register its Frame Task before the events land.
	time.Sleep(10 * time.Millisecond)

	req := &fakeRequest{id: "req-1", documentID: "doc-1", response: &fakeResponse{status: 200}}
	m.RequestStarted("frame-1", req)
	m.FrameCommittedNewDocumentNavigation("frame-1", "https://example.com", "", "doc-1", false)
	m.LifecycleEvent("frame-1", LifecycleEventLoad)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Goto did not return in time")
	}

	require.NoError(t, gotoErr)
	require.NotNil(t, resp)
	assert.Equal(t, 200, resp.(*fakeResponse).status)
	assert.Equal(t, "https://example.com", frame.URL())
	assert.Equal(t, "doc-1", frame.DocumentID())
}

func TestFrameGotoPropagatesNavigationError(t *testing.T) {
	t.Parallel()

	delegate := newFakePageDelegate()
	delegate.navigateResult = NavigateResult{NewDocumentID: "doc-1"}
	m := newTestManager(t, delegate)
	frame := m.FrameAttached("frame-1", "")

	done := make(chan struct{})
	var gotoErr error
	go func() {
		_, gotoErr = frame.Goto(context.Background(), "https://example.com", GotoOptions{WaitUntil: LifecycleEventLoad})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	m.ProvisionalLoadFailed("frame-1", "doc-1", "net::ERR_FAILED")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Goto did not return in time")
	}

	require.Error(t, gotoErr)
	var navErr *NavigationError
	require.ErrorAs(t, gotoErr, &navErr)
}

func TestFrameGotoRejectedWhenInterruptedByAnotherNavigation(t *testing.T) {
	t.Parallel()

	delegate := newFakePageDelegate()
	delegate.navigateResult = NavigateResult{NewDocumentID: "doc-1"}
	m := newTestManager(t, delegate)
	frame := m.FrameAttached("frame-1", "")

	done := make(chan struct{})
	var gotoErr error
	go func() {
		_, gotoErr = frame.Goto(context.Background(), "https://example.com", GotoOptions{WaitUntil: LifecycleEventLoad})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	m.FrameCommittedNewDocumentNavigation("frame-1", "https://example.com/other", "", "doc-2", false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Goto did not return in time")
	}

	require.Error(t, gotoErr)
	var interrupted *NavigationInterruptedError
	require.ErrorAs(t, gotoErr, &interrupted)
}

func TestFrameGotoRejectsConflictingReferers(t *testing.T) {
	t.Parallel()

	delegate := newFakePageDelegate()
	delegate.extraHeaders = map[string]string{"referer": "https://a/"}
	m := newTestManager(t, delegate)
	frame := m.FrameAttached("frame-1", "")

	_, err := frame.Goto(context.Background(), "https://example.com", GotoOptions{
		Referer: "https://b/",
		Timeout: time.Second,
	})

	require.Error(t, err)
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestFrameDetachRejectsPendingTasks(t *testing.T) {
	t.Parallel()

	delegate := newFakePageDelegate()
	delegate.navigateResult = NavigateResult{NewDocumentID: "doc-1"}
	m := newTestManager(t, delegate)
	frame := m.FrameAttached("frame-1", "")

	done := make(chan struct{})
	var gotoErr error
	go func() {
		_, gotoErr = frame.Goto(context.Background(), "https://example.com", GotoOptions{WaitUntil: LifecycleEventLoad})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	m.FrameDetached("frame-1")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Goto did not return in time")
	}

	require.Error(t, gotoErr)
	var detached *FrameDetachedError
	require.ErrorAs(t, gotoErr, &detached)
	assert.True(t, frame.IsDetached())
}

func TestFrameChildDetachRemovesFromParent(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	parent := m.FrameAttached("parent", "")
	_ = m.FrameAttached("child", "parent")

	assert.Len(t, parent.ChildFrames(), 1)
	m.FrameDetached("child")
	assert.Len(t, parent.ChildFrames(), 0)
}

func TestFrameIsLoadingReflectsStartStop(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	frame := m.FrameAttached("frame-1", "")

	assert.False(t, frame.IsLoading())
	m.FrameLoadingStarted("frame-1")
	assert.True(t, frame.IsLoading())
	m.FrameLoadingStopped("frame-1")
	assert.False(t, frame.IsLoading())
}

func TestFrameWaitForLoadStateReturnsOnceSubtreeFires(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	frame := m.FrameAttached("frame-1", "")

	done := make(chan error, 1)
	go func() {
		done <- frame.WaitForLoadState(context.Background(), LifecycleEventDOMContentLoad, 2*time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	m.LifecycleEvent("frame-1", LifecycleEventDOMContentLoad)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForLoadState did not return")
	}
}

var setContentTagRe = regexp.MustCompile(`--playwright--set--content--.+--\d+--`)

func TestFrameSetContentResolvesViaConsoleTagAndLifecycle(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	frame := m.FrameAttached("frame-1", "")

	frame.ContextCreated(UtilityWorld, &fakeExecCtx{
		frame: frame,
		evalExpr: func(ctx context.Context, expr string) (interface{}, error) {
			tag := setContentTagRe.FindString(expr)
			require.NotEmpty(t, tag)
			// The browser flushes the console.debug tag, then the new
			// document reaches load.
			absorbed := m.InterceptConsoleMessage(ConsoleMessage{Type: "debug", Text: tag})
			assert.True(t, absorbed)
			m.LifecycleEvent("frame-1", LifecycleEventLoad)
			return nil, nil
		},
	})

	err := frame.SetContent(context.Background(), "<p>x</p>", SetContentOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)
}

// detachingHandle reports not-connected for its first click, emulating the
// node being removed between selector resolution and the action.
type detachingHandle struct {
	execCtx  ExecutionContext
	clicks   int
	disposed int
}

func (h *detachingHandle) Dispose(ctx context.Context) error { h.disposed++; return nil }
func (h *detachingHandle) ExecContext() ExecutionContext     { return h.execCtx }
func (h *detachingHandle) Click(ctx context.Context) error {
	h.clicks++
	if h.clicks == 1 {
		return &NotConnectedError{}
	}
	return nil
}
func (h *detachingHandle) DblClick(ctx context.Context) error           { return nil }
func (h *detachingHandle) Fill(ctx context.Context, value string) error { return nil }
func (h *detachingHandle) Focus(ctx context.Context) error              { return nil }
func (h *detachingHandle) Hover(ctx context.Context) error              { return nil }
func (h *detachingHandle) Check(ctx context.Context) error              { return nil }
func (h *detachingHandle) Uncheck(ctx context.Context) error            { return nil }
func (h *detachingHandle) SelectOption(ctx context.Context, values goja.Value) ([]string, error) {
	return nil, nil
}
func (h *detachingHandle) SetInputFiles(ctx context.Context, files []string) error { return nil }
func (h *detachingHandle) Type(ctx context.Context, text string) error             { return nil }
func (h *detachingHandle) Press(ctx context.Context, key string) error             { return nil }
func (h *detachingHandle) TextContent(ctx context.Context) (string, error)         { return "", nil }
func (h *detachingHandle) InnerText(ctx context.Context) (string, error)           { return "", nil }
func (h *detachingHandle) InnerHTML(ctx context.Context) (string, error)           { return "", nil }
func (h *detachingHandle) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	return "", false, nil
}
func (h *detachingHandle) DispatchEvent(ctx context.Context, eventType string, eventInit goja.Value) error {
	return nil
}

// stubSelectorEngine resolves every wait task to the handle produced by
// resolve.
type stubSelectorEngine struct {
	resolve func() ElementHandle
}

func (s *stubSelectorEngine) Query(ctx context.Context, frame *Frame, selector string) (ElementHandle, error) {
	return s.resolve(), nil
}
func (s *stubSelectorEngine) QueryAll(ctx context.Context, frame *Frame, selector string) ([]ElementHandle, error) {
	return []ElementHandle{s.resolve()}, nil
}
func (s *stubSelectorEngine) EvalOnSelector(ctx context.Context, frame *Frame, selector string, pageFunc goja.Value, args ...goja.Value) (interface{}, error) {
	return nil, nil
}
func (s *stubSelectorEngine) EvalOnSelectorAll(ctx context.Context, frame *Frame, selector string, pageFunc goja.Value, args ...goja.Value) (interface{}, error) {
	return nil, nil
}
func (s *stubSelectorEngine) WaitForSelectorTask(frame *Frame, selector string, state ElementState) (WorldTask, error) {
	return WorldTask{
		World: MainWorld,
		Task: SchedulableTaskFunc(func(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error) {
			return &stubPoll{result: s.resolve()}, nil
		}),
	}, nil
}
func (s *stubSelectorEngine) DispatchEventTask(frame *Frame, selector, eventType string, eventInit goja.Value) (WorldTask, error) {
	return WorldTask{
		World: MainWorld,
		Task: SchedulableTaskFunc(func(ctx context.Context, execCtx ExecutionContext) (InjectedScriptPoll, error) {
			return &stubPoll{result: nil}, nil
		}),
	}, nil
}

func TestFrameClickRetriesWhenElementDetachesBetweenResolveAndAction(t *testing.T) {
	t.Parallel()

	delegate := newFakePageDelegate()
	handle := &detachingHandle{}
	engine := &stubSelectorEngine{resolve: func() ElementHandle { return handle }}
	m := newTestManagerWithEngine(t, delegate, engine)
	frame := m.FrameAttached("frame-1", "")

	execCtx := &fakeExecCtx{frame: frame}
	handle.execCtx = execCtx
	frame.ContextCreated(MainWorld, execCtx)

	err := frame.Click(context.Background(), "#a", ActionOptions{Timeout: 2 * time.Second})

	require.NoError(t, err)
	assert.Equal(t, 2, handle.clicks)
	assert.GreaterOrEqual(t, handle.disposed, 2)
}

func TestFrameWaitForSelectorReturnsResolvedHandle(t *testing.T) {
	t.Parallel()

	delegate := newFakePageDelegate()
	handle := &detachingHandle{}
	engine := &stubSelectorEngine{resolve: func() ElementHandle { return handle }}
	m := newTestManagerWithEngine(t, delegate, engine)
	frame := m.FrameAttached("frame-1", "")

	execCtx := &fakeExecCtx{frame: frame}
	handle.execCtx = execCtx
	frame.ContextCreated(MainWorld, execCtx)

	got, err := frame.WaitForSelector(context.Background(), "#a", WaitForSelectorOptions{
		State:   ElementStateVisible,
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Same(t, handle, got)
}

func TestFrameEvaluateRejectsTooManyArguments(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	frame := m.FrameAttached("frame-1", "")
	frame.ContextCreated(MainWorld, &fakeExecCtx{frame: frame})

	rt := goja.New()
	fn := rt.ToValue("() => 1")
	args := []goja.Value{rt.ToValue(1), rt.ToValue(2), rt.ToValue(3)}

	_, err := frame.Evaluate(context.Background(), fn, args...)
	require.Error(t, err)
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestFrameAddScriptTagRequiresExactlyOneSource(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	frame := m.FrameAttached("frame-1", "")

	err := frame.AddScriptTag(context.Background(), ScriptTagOptions{})
	require.Error(t, err)
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)

	err = frame.AddScriptTag(context.Background(), ScriptTagOptions{URL: "https://a/x.js", Content: "1"})
	require.ErrorAs(t, err, &invalid)
}

func TestFrameWaitForTimeoutMarksAntiPattern(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newFakePageDelegate())
	frame := m.FrameAttached("frame-1", "")

	assert.False(t, m.WaitForTimeoutUsed())
	frame.WaitForTimeout(context.Background(), time.Millisecond)
	assert.True(t, m.WaitForTimeoutUsed())
}
