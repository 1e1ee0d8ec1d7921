package cdpcontrol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func connectFake(t *testing.T, f *fakeCDP) *Client {
	t.Helper()
	c := NewClient(f.srv.URL, "", 2*time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestListTabsKeepsOnlyPageTargets(t *testing.T) {
	f := newFakeCDP(t)
	c := connectFake(t, f)

	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs() = %v", err)
	}
	if len(tabs) != 1 {
		t.Fatalf("ListTabs() returned %d tabs, want 1: %+v", len(tabs), tabs)
	}
	if tabs[0].TabID != "T1" || tabs[0].Title != "Gallery" {
		t.Fatalf("tab = %+v, want T1/Gallery", tabs[0])
	}
}

func TestListTabsAppliesFilter(t *testing.T) {
	f := newFakeCDP(t)
	c := NewClient(f.srv.URL, "other.org", 2*time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs() = %v", err)
	}
	if len(tabs) != 0 {
		t.Fatalf("ListTabs() = %+v, want none", tabs)
	}
}

func TestClickElementRunsInFrameWorld(t *testing.T) {
	f := newFakeCDP(t)
	f.withTwoFrames()
	f.evalReturns(okEnvelope("clicked"))
	c := connectFake(t, f)

	ctx := context.Background()
	status, err := c.ClickElement(ctx, "T1", "button.next", 1)
	if err != nil {
		t.Fatalf("ClickElement() = %v", err)
	}
	if status != "clicked" {
		t.Fatalf("status = %q, want clicked", status)
	}
	if _, err := c.ClickElement(ctx, "T1", "button.next", 1); err != nil {
		t.Fatalf("second ClickElement() = %v", err)
	}

	if got := f.count("Target.attachToTarget"); got != 1 {
		t.Fatalf("attachToTarget calls = %d, want 1", got)
	}
	if got := f.count("Runtime.enable"); got != 1 {
		t.Fatalf("Runtime.enable calls = %d, want 1", got)
	}
	frames := isolatedWorldFrames(t, f.callsFor("Page.createIsolatedWorld"))
	if len(frames) != 1 || frames[0] != "F1" {
		t.Fatalf("isolated worlds created for %v, want [F1]", frames)
	}
	ids := evalContextIDs(t, f.callsFor("Runtime.evaluate"))
	if len(ids) != 2 || ids[0] != 101 || ids[1] != 101 {
		t.Fatalf("evaluate context ids = %v, want [101 101]", ids)
	}

	var binding struct {
		Name                 string `json:"name"`
		ExecutionContextName string `json:"executionContextName"`
	}
	calls := f.callsFor("Runtime.addBinding")
	if len(calls) != 1 {
		t.Fatalf("addBinding calls = %d, want 1", len(calls))
	}
	if err := json.Unmarshal(calls[0].Params, &binding); err != nil {
		t.Fatalf("decode addBinding params: %v", err)
	}
	if binding.Name != bindingName || binding.ExecutionContextName != worldName {
		t.Fatalf("binding = %+v", binding)
	}
}

func TestElementNotFoundIsNotRetried(t *testing.T) {
	f := newFakeCDP(t)
	f.withTwoFrames()
	f.evalReturns(`{"ok":false,"error_code":"ELEMENT_NOT_FOUND","error_message":"element not found: #gone"}`)
	c := connectFake(t, f)

	_, err := c.HideElement(context.Background(), "T1", "#gone", 0)
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeElementNotFound {
		t.Fatalf("HideElement() error = %v, want %s", err, CodeElementNotFound)
	}
	if got := f.count("Runtime.evaluate"); got != 1 {
		t.Fatalf("evaluate calls = %d, want 1", got)
	}
}

func TestMissingFrameReportsElementNotFound(t *testing.T) {
	f := newFakeCDP(t)
	f.withTwoFrames()
	f.evalReturns(okEnvelope("shown"))
	c := connectFake(t, f)

	_, err := c.ShowElement(context.Background(), "T1", "#toolbar", 5)
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeElementNotFound {
		t.Fatalf("ShowElement() error = %v, want %s", err, CodeElementNotFound)
	}
	if got := f.count("Runtime.evaluate"); got != 0 {
		t.Fatalf("evaluate calls = %d, want 0", got)
	}
}

func TestStaleWorldIsRecreated(t *testing.T) {
	f := newFakeCDP(t)
	f.withTwoFrames()
	f.handle("Runtime.evaluate", staleThenOK(okEnvelope("clicked")))
	c := connectFake(t, f)

	if _, err := c.ClickElement(context.Background(), "T1", "a.next", 0); err != nil {
		t.Fatalf("ClickElement() = %v", err)
	}
	frames := isolatedWorldFrames(t, f.callsFor("Page.createIsolatedWorld"))
	if len(frames) != 2 || frames[0] != "F0" || frames[1] != "F0" {
		t.Fatalf("isolated worlds created for %v, want [F0 F0]", frames)
	}
	ids := evalContextIDs(t, f.callsFor("Runtime.evaluate"))
	if len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("evaluate context ids = %v, want two distinct worlds", ids)
	}
}

func TestUnknownTab(t *testing.T) {
	f := newFakeCDP(t)
	c := connectFake(t, f)

	_, err := c.ClickElement(context.Background(), "nope", "a", 0)
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeTabNotFound {
		t.Fatalf("ClickElement() error = %v, want %s", err, CodeTabNotFound)
	}
}

func TestStartRecorderArmsEveryFrame(t *testing.T) {
	f := newFakeCDP(t)
	f.withTwoFrames()
	f.evalReturns(`{"ok":true,"data":{"status":"selection started"}}`)
	c := connectFake(t, f)

	armed, err := c.StartRecorder(context.Background(), "T1", ModeRecordNext)
	if err != nil {
		t.Fatalf("StartRecorder() = %v", err)
	}
	if armed != 2 {
		t.Fatalf("armed = %d, want 2", armed)
	}

	if _, err := c.StartRecorder(context.Background(), "T1", RecorderMode("hover")); err == nil {
		t.Fatal("StartRecorder() with unknown mode = nil, want error")
	}
}

func TestRecorderReportsReachHandler(t *testing.T) {
	f := newFakeCDP(t)
	f.withTwoFrames()
	f.evalReturns(`{"ok":true,"data":{"status":"selection started"}}`)
	c := connectFake(t, f)

	got := make(chan SelectionReport, 1)
	c.OnSelection(func(r SelectionReport) { got <- r })

	if _, err := c.StartRecorder(context.Background(), "T1", ModeRecordPrev); err != nil {
		t.Fatalf("StartRecorder() = %v", err)
	}

	f.emit("Runtime.bindingCalled", "S1", map[string]any{
		"name":               "someoneElse",
		"payload":            `{"tag":"x","selector":"y","frameId":0}`,
		"executionContextId": 101,
	})
	f.emit("Runtime.bindingCalled", "S1", map[string]any{
		"name":               bindingName,
		"payload":            `{"tag":"prev-element-selected","selector":"div.pager > a","frameId":1}`,
		"executionContextId": 102,
	})

	select {
	case r := <-got:
		want := SelectionReport{TabID: "T1", Tag: "prev-element-selected", Selector: "div.pager > a", FrameID: 1}
		if r != want {
			t.Fatalf("report = %+v, want %+v", r, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for selection report")
	}
}

func TestRecorderReportsSurviveFailedCommand(t *testing.T) {
	f := newFakeCDP(t)
	f.withTwoFrames()
	f.evalReturns(okEnvelope("selection started"))
	c := connectFake(t, f)

	got := make(chan SelectionReport, 1)
	c.OnSelection(func(r SelectionReport) { got <- r })

	ctx := context.Background()
	if _, err := c.StartRecorder(ctx, "T1", ModeRecordNext); err != nil {
		t.Fatalf("StartRecorder() = %v", err)
	}

	f.handle("Runtime.evaluate", func(json.RawMessage) (any, error) {
		return nil, errors.New("Internal error")
	})
	_, err := c.HideElement(ctx, "T1", "div.banner", 0)
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeEvalFailure {
		t.Fatalf("HideElement() = %v, want %s", err, CodeEvalFailure)
	}

	f.evalReturns(okEnvelope("shown"))
	if _, err := c.ShowElement(ctx, "T1", "div.banner", 0); err != nil {
		t.Fatalf("ShowElement() = %v", err)
	}
	if n := f.count("Target.attachToTarget"); n != 1 {
		t.Fatalf("attachToTarget calls = %d, want 1", n)
	}

	f.emit("Runtime.bindingCalled", "S1", map[string]any{
		"name":               bindingName,
		"payload":            `{"tag":"next-element-selected","selector":"a.next","frameId":0}`,
		"executionContextId": 101,
	})
	select {
	case r := <-got:
		if r.TabID != "T1" || r.Tag != "next-element-selected" {
			t.Fatalf("report = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("report from the recorder's session was dropped")
	}
}

func TestTransportFailureDetachesSession(t *testing.T) {
	f := newFakeCDP(t)
	f.withTwoFrames()
	f.evalReturns(okEnvelope("ok"))
	c := connectFake(t, f)

	ctx := context.Background()
	if _, err := c.StartRecorder(ctx, "T1", ModePick); err != nil {
		t.Fatalf("StartRecorder() = %v", err)
	}
	session, ok := c.lookupTabSession("T1")
	if !ok {
		t.Fatal("tab session missing after StartRecorder")
	}

	_ = c.sessionError(ctx, c.cdp, session, "evaluation failed", errors.New("cdp: send Runtime.evaluate: broken pipe"))
	if n := f.count("Target.detachFromTarget"); n != 1 {
		t.Fatalf("detachFromTarget calls = %d, want 1", n)
	}
	if sid := session.reset(); sid != "" {
		t.Fatalf("session still attached as %q", sid)
	}
}

func TestClickIsNotRepeatedAfterSend(t *testing.T) {
	f := newFakeCDP(t)
	f.withTwoFrames()
	f.handle("Runtime.evaluate", func(json.RawMessage) (any, error) {
		return nil, errors.New("read: connection reset by peer")
	})
	c := connectFake(t, f)
	ctx := context.Background()

	if _, err := c.ClickElement(ctx, "T1", "button.next", 0); err == nil {
		t.Fatal("ClickElement() = nil, want error")
	}
	if n := f.count("Runtime.evaluate"); n != 1 {
		t.Fatalf("click evaluate calls = %d, want 1", n)
	}

	if _, err := c.HideElement(ctx, "T1", "div.banner", 0); err == nil {
		t.Fatal("HideElement() = nil, want error")
	}
	if n := f.count("Runtime.evaluate"); n != 3 {
		t.Fatalf("evaluate calls after hide = %d, want 3", n)
	}
}

func TestCaptureVisibleDecodesPNG(t *testing.T) {
	f := newFakeCDP(t)
	png := []byte("\x89PNG\r\n\x1a\nfake")
	f.handle("Page.captureScreenshot", func(params json.RawMessage) (any, error) {
		var p struct {
			Format string `json:"format"`
		}
		_ = json.Unmarshal(params, &p)
		if p.Format != "png" {
			t.Errorf("screenshot format = %q, want png", p.Format)
		}
		return map[string]any{"data": base64.StdEncoding.EncodeToString(png)}, nil
	})
	c := connectFake(t, f)

	got, err := c.CaptureVisible(context.Background(), "T1")
	if err != nil {
		t.Fatalf("CaptureVisible() = %v", err)
	}
	if string(got) != string(png) {
		t.Fatalf("CaptureVisible() = %q, want %q", got, png)
	}
}

func TestFlattenFramesDepthFirst(t *testing.T) {
	var root frameNode
	root.Frame.ID = "main"
	var a, a1, b frameNode
	a.Frame.ID, a1.Frame.ID, b.Frame.ID = "a", "a1", "b"
	a.ChildFrames = []frameNode{a1}
	root.ChildFrames = []frameNode{a, b}

	frames := flattenFrames(root)
	want := []string{"main", "a", "a1", "b"}
	if len(frames) != len(want) {
		t.Fatalf("flattenFrames() = %+v", frames)
	}
	for i, id := range want {
		if frames[i].FrameID != id || frames[i].Index != i {
			t.Fatalf("frames[%d] = %+v, want %s at index %d", i, frames[i], id, i)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	c := &Client{}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"cdp unavailable", newError(CodeCDPUnavailable, "down", nil), true},
		{"tab missing", newError(CodeTabNotFound, "gone", nil), false},
		{"element missing", newError(CodeElementNotFound, "gone", nil), false},
		{"transient eval", newError(CodeEvalFailure, "eval", errors.New("cdp: connection closed")), true},
		{"page exception", newError(CodeEvalFailure, "eval", errors.New("TypeError: x is null")), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.shouldRetry(tt.err); got != tt.want {
				t.Fatalf("shouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}
