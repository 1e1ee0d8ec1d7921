package cdpcontrol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type fakeCall struct {
	Method    string
	SessionID string
	Params    json.RawMessage
}

// fakeCDP is a browser stand-in: /json/version, /json/list and a flattened
// session WebSocket answering from per-method handlers.
type fakeCDP struct {
	t       *testing.T
	srv     *httptest.Server
	targets []map[string]any

	mu       sync.Mutex
	handlers map[string]func(params json.RawMessage) (any, error)
	calls    []fakeCall

	writeMu sync.Mutex
	conn    net.Conn
}

func newFakeCDP(t *testing.T) *fakeCDP {
	t.Helper()
	f := &fakeCDP{
		t: t,
		targets: []map[string]any{
			{"id": "T1", "type": "page", "url": "https://example.com/gallery", "title": "Gallery"},
			{"id": "W1", "type": "service_worker", "url": "https://example.com/sw.js"},
			{"id": "D1", "type": "page", "url": "devtools://devtools/bundled/inspector.html"},
		},
		handlers: map[string]func(json.RawMessage) (any, error){
			"Target.attachToTarget": func(json.RawMessage) (any, error) {
				return map[string]any{"sessionId": "S1"}, nil
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws://" + r.Host + "/devtools/browser/fake"
		_ = json.NewEncoder(w).Encode(map[string]string{"webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.targets)
	})
	mux.HandleFunc("/devtools/browser/fake", f.serveWS)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCDP) handle(method string, fn func(params json.RawMessage) (any, error)) {
	f.mu.Lock()
	f.handlers[method] = fn
	f.mu.Unlock()
}

func (f *fakeCDP) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *fakeCDP) callsFor(method string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCDP) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		f.t.Errorf("ws upgrade: %v", err)
		return
	}
	defer conn.Close()
	f.writeMu.Lock()
	f.conn = conn
	f.writeMu.Unlock()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID        int64           `json:"id"`
			Method    string          `json:"method"`
			SessionID string          `json:"sessionId"`
			Params    json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		f.mu.Lock()
		f.calls = append(f.calls, fakeCall{Method: req.Method, SessionID: req.SessionID, Params: req.Params})
		fn := f.handlers[req.Method]
		f.mu.Unlock()

		resp := map[string]any{"id": req.ID}
		if req.SessionID != "" {
			resp["sessionId"] = req.SessionID
		}
		var result any = map[string]any{}
		if fn != nil {
			result, err = fn(req.Params)
		}
		if err != nil {
			resp["error"] = map[string]any{"code": -32000, "message": err.Error()}
		} else {
			resp["result"] = result
		}
		f.write(resp)
	}
}

func (f *fakeCDP) write(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		f.t.Errorf("marshal fake message: %v", err)
		return
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if f.conn == nil {
		f.t.Errorf("fake cdp: no connection")
		return
	}
	_ = wsutil.WriteServerText(f.conn, data)
}

// emit pushes a CDP event to the connected client.
func (f *fakeCDP) emit(method, sessionID string, params any) {
	f.write(map[string]any{"method": method, "sessionId": sessionID, "params": params})
}

// withTwoFrames serves a main frame with one child iframe and hands out a new
// execution context id for every isolated world created.
func (f *fakeCDP) withTwoFrames() {
	f.handle("Page.getFrameTree", func(json.RawMessage) (any, error) {
		return map[string]any{"frameTree": map[string]any{
			"frame": map[string]any{"id": "F0", "url": "https://example.com/gallery"},
			"childFrames": []any{
				map[string]any{"frame": map[string]any{"id": "F1", "parentId": "F0", "url": "https://example.com/viewer"}},
			},
		}}, nil
	})
	next := 100
	f.handle("Page.createIsolatedWorld", func(json.RawMessage) (any, error) {
		next++
		return map[string]any{"executionContextId": next}, nil
	})
}

// evalReturns answers Runtime.evaluate with the given envelope.
func (f *fakeCDP) evalReturns(envelope string) {
	f.handle("Runtime.evaluate", func(json.RawMessage) (any, error) {
		return map[string]any{"result": map[string]any{"type": "string", "value": envelope}}, nil
	})
}

func evalContextIDs(t *testing.T, calls []fakeCall) []int64 {
	t.Helper()
	var ids []int64
	for _, c := range calls {
		var p struct {
			ContextID int64 `json:"contextId"`
		}
		if err := json.Unmarshal(c.Params, &p); err != nil {
			t.Fatalf("decode evaluate params: %v", err)
		}
		ids = append(ids, p.ContextID)
	}
	return ids
}

func isolatedWorldFrames(t *testing.T, calls []fakeCall) []string {
	t.Helper()
	var frames []string
	for _, c := range calls {
		var p struct {
			FrameID   string `json:"frameId"`
			WorldName string `json:"worldName"`
		}
		if err := json.Unmarshal(c.Params, &p); err != nil {
			t.Fatalf("decode createIsolatedWorld params: %v", err)
		}
		if p.WorldName != worldName {
			t.Fatalf("world name = %q, want %q", p.WorldName, worldName)
		}
		frames = append(frames, p.FrameID)
	}
	return frames
}

var errStaleContext = errors.New("Cannot find context with specified id")

func staleThenOK(envelope string) func(json.RawMessage) (any, error) {
	calls := 0
	return func(json.RawMessage) (any, error) {
		calls++
		if calls == 1 {
			return nil, errStaleContext
		}
		return map[string]any{"result": map[string]any{"type": "string", "value": envelope}}, nil
	}
}

func okEnvelope(status string) string {
	return fmt.Sprintf(`{"ok":true,"data":{"status":%q}}`, status)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
