package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var (
	errConnClosed  = errors.New("cdp: connection closed")
	errScriptThrew = errors.New("cdp: script threw")
)

// replyError is an error reply from the browser. The session that sent the
// command is still attached.
type replyError struct {
	Code    int64
	Message string
}

func (e *replyError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// browserConn speaks the flattened-session protocol over the browser-level
// WebSocket. Only Runtime is enabled on attached pages; chromedp's full
// session setup is left to the inspector.
type browserConn struct {
	base string // http://host:port of the DevTools endpoint

	writeMu sync.Mutex
	ws      net.Conn
	ids     atomic.Int64

	waitMu  sync.Mutex
	waiting map[int64]chan reply

	subMu sync.RWMutex
	subs  map[string]map[int64]func(sessionID string, params json.RawMessage)
}

type reply struct {
	result json.RawMessage
	err    error
}

// wire is every frame Chromium sends: command replies carry ID, events carry Method.
type wire struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Params    any             `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newBrowserConn(base string) *browserConn {
	return &browserConn{
		base:    strings.TrimRight(base, "/"),
		waiting: make(map[int64]chan reply),
		subs:    make(map[string]map[int64]func(string, json.RawMessage)),
	}
}

func (b *browserConn) connect(ctx context.Context) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.ws != nil {
		return nil
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := b.getJSON(ctx, "/json/version", &version); err != nil {
		return fmt.Errorf("cdp: discover browser endpoint: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return errors.New("cdp: /json/version has no webSocketDebuggerUrl")
	}

	slog.Debug("cdp connecting", "ws_url", version.WebSocketDebuggerURL)
	conn, _, _, err := ws.Dial(ctx, version.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("cdp: dial %s: %w", version.WebSocketDebuggerURL, err)
	}
	b.ws = conn
	go b.read(conn)
	return nil
}

func (b *browserConn) close() {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.ws != nil {
		_ = b.ws.Close()
		b.ws = nil
	}
}

func (b *browserConn) read(conn net.Conn) {
	defer b.failWaiting()
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("cdp reader stopped", "error", err)
			return
		}
		var msg struct {
			wire
			Params json.RawMessage `json:"params,omitempty"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("cdp dropped undecodable frame", "error", err)
			continue
		}

		if msg.ID == 0 {
			if msg.Method != "" {
				b.dispatch(msg.Method, msg.SessionID, msg.Params)
			}
			continue
		}
		b.waitMu.Lock()
		ch := b.waiting[msg.ID]
		delete(b.waiting, msg.ID)
		b.waitMu.Unlock()
		if ch == nil {
			continue
		}
		r := reply{result: msg.Result}
		if msg.Error != nil {
			r.err = &replyError{Code: msg.Error.Code, Message: msg.Error.Message}
		}
		ch <- r
	}
}

func (b *browserConn) failWaiting() {
	b.waitMu.Lock()
	defer b.waitMu.Unlock()
	for id, ch := range b.waiting {
		ch <- reply{err: errConnClosed}
		delete(b.waiting, id)
	}
}

func (b *browserConn) forget(id int64) {
	b.waitMu.Lock()
	delete(b.waiting, id)
	b.waitMu.Unlock()
}

// call runs method on sessionID (the browser itself when empty) and decodes
// the result into out when out is non-nil.
func (b *browserConn) call(ctx context.Context, sessionID, method string, params, out any) error {
	id := b.ids.Add(1)
	data, err := json.Marshal(wire{ID: id, Method: method, SessionID: sessionID, Params: params})
	if err != nil {
		return fmt.Errorf("cdp: encode %s: %w", method, err)
	}

	ch := make(chan reply, 1)
	b.waitMu.Lock()
	b.waiting[id] = ch
	b.waitMu.Unlock()

	b.writeMu.Lock()
	conn := b.ws
	if conn == nil {
		b.writeMu.Unlock()
		b.forget(id)
		return errors.New("cdp: not connected")
	}
	err = wsutil.WriteClientText(conn, data)
	b.writeMu.Unlock()
	if err != nil {
		b.forget(id)
		return fmt.Errorf("cdp: send %s: %w", method, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("%s: %w", method, r.err)
		}
		if out == nil || len(r.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(r.result, out); err != nil {
			return fmt.Errorf("cdp: decode %s: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		b.forget(id)
		return ctx.Err()
	}
}

// subscribe registers fn for an event method and returns its removal.
func (b *browserConn) subscribe(method string, fn func(sessionID string, params json.RawMessage)) func() {
	id := b.ids.Add(1)
	b.subMu.Lock()
	if b.subs[method] == nil {
		b.subs[method] = make(map[int64]func(string, json.RawMessage))
	}
	b.subs[method][id] = fn
	b.subMu.Unlock()
	return func() {
		b.subMu.Lock()
		delete(b.subs[method], id)
		b.subMu.Unlock()
	}
}

func (b *browserConn) dispatch(method, sessionID string, params json.RawMessage) {
	b.subMu.RLock()
	fns := make([]func(string, json.RawMessage), 0, len(b.subs[method]))
	for _, fn := range b.subs[method] {
		fns = append(fns, fn)
	}
	b.subMu.RUnlock()
	for _, fn := range fns {
		fn(sessionID, params)
	}
}

func (b *browserConn) attach(ctx context.Context, targetID string) (string, error) {
	var res struct {
		SessionID string `json:"sessionId"`
	}
	err := b.call(ctx, "", target.CommandAttachToTarget, target.AttachToTarget(target.ID(targetID)).WithFlatten(true), &res)
	if err != nil {
		return "", err
	}
	if res.SessionID == "" {
		return "", fmt.Errorf("cdp: attach %s returned no session", targetID)
	}
	return res.SessionID, nil
}

func (b *browserConn) detach(ctx context.Context, sessionID string) error {
	return b.call(ctx, "", target.CommandDetachFromTarget, target.DetachFromTarget().WithSessionID(target.SessionID(sessionID)), nil)
}

// enableRuntime makes the session deliver Runtime.bindingCalled.
func (b *browserConn) enableRuntime(ctx context.Context, sessionID string) error {
	return b.call(ctx, sessionID, runtime.CommandEnable, nil, nil)
}

// addBinding exposes window[name] in every context called world, including
// ones created later.
func (b *browserConn) addBinding(ctx context.Context, sessionID, name, world string) error {
	return b.call(ctx, sessionID, runtime.CommandAddBinding, runtime.AddBinding(name).WithExecutionContextName(world), nil)
}

// evaluate runs js and returns its value; string results are unquoted. A zero
// contextID is the main world of the top frame.
func (b *browserConn) evaluate(ctx context.Context, sessionID string, contextID int64, js string) (string, error) {
	params := runtime.Evaluate(js).WithReturnByValue(true).WithAwaitPromise(true)
	if contextID != 0 {
		params = params.WithContextID(runtime.ExecutionContextID(contextID))
	}
	var res struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := b.call(ctx, sessionID, runtime.CommandEvaluate, params, &res); err != nil {
		return "", err
	}
	if res.ExceptionDetails != nil {
		return "", fmt.Errorf("%w: %s", errScriptThrew, res.ExceptionDetails.Text)
	}
	var s string
	if err := json.Unmarshal(res.Result.Value, &s); err != nil {
		return string(res.Result.Value), nil
	}
	return s, nil
}

// frameNode is one level of Page.getFrameTree.
type frameNode struct {
	Frame struct {
		ID       string `json:"id"`
		ParentID string `json:"parentId"`
		URL      string `json:"url"`
		Name     string `json:"name"`
	} `json:"frame"`
	ChildFrames []frameNode `json:"childFrames"`
}

func (b *browserConn) frameTree(ctx context.Context, sessionID string) (frameNode, error) {
	var res struct {
		FrameTree frameNode `json:"frameTree"`
	}
	err := b.call(ctx, sessionID, page.CommandGetFrameTree, nil, &res)
	return res.FrameTree, err
}

// isolatedWorld creates a script world in frameID that shares the DOM but not
// the page's globals.
func (b *browserConn) isolatedWorld(ctx context.Context, sessionID, frameID, world string) (int64, error) {
	var res struct {
		ExecutionContextID int64 `json:"executionContextId"`
	}
	err := b.call(ctx, sessionID, page.CommandCreateIsolatedWorld, page.CreateIsolatedWorld(cdptypes.FrameID(frameID)).WithWorldName(world), &res)
	return res.ExecutionContextID, err
}

// screenshotPNG returns the base64 PNG of the visible viewport.
func (b *browserConn) screenshotPNG(ctx context.Context, sessionID string) (string, error) {
	var res struct {
		Data string `json:"data"`
	}
	params := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).WithFromSurface(true)
	if err := b.call(ctx, sessionID, page.CommandCaptureScreenshot, params, &res); err != nil {
		return "", err
	}
	return res.Data, nil
}

// targets lists open targets from /json/list.
func (b *browserConn) targets(ctx context.Context) ([]*target.Info, error) {
	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := b.getJSON(ctx, "/json/list", &entries); err != nil {
		return nil, err
	}
	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{TargetID: target.ID(e.ID), Type: e.Type, Title: e.Title, URL: e.URL})
	}
	return out, nil
}

func (b *browserConn) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cdp: GET %s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
