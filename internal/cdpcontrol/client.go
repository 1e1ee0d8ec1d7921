package cdpcontrol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"not connected",
	"no session with given id",
}

type tabSession struct {
	info      TabInfo
	mu        sync.Mutex
	sessionID string           // CDP session ID from Target.attachToTarget
	worlds    map[string]int64 // CDP frame id -> isolated world execution context
}

// reset forgets the attached session so the next command attaches afresh and
// returns the session ID it held.
func (s *tabSession) reset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sid := s.sessionID
	s.sessionID = ""
	s.worlds = nil
	return sid
}

// Client drives page targets of one Chromium instance over a single CDP connection.
type Client struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu   sync.Mutex
	cdp  *browserConn
	tabs map[target.ID]*tabSession

	tabLocksMu sync.Mutex
	tabLocks   map[string]*sync.Mutex

	reportMu sync.RWMutex
	onReport func(SelectionReport)
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		tabFilter:   strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout: evalTimeout,
		tabs:        make(map[target.ID]*tabSession),
		tabLocks:    make(map[string]*sync.Mutex),
	}
}

// OnSelection registers the callback for recorder reports. It runs on its own
// goroutine per report, so it may issue further commands on the client.
func (c *Client) OnSelection(fn func(SelectionReport)) {
	c.reportMu.Lock()
	c.onReport = fn
	c.reportMu.Unlock()
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newBrowserConn(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.cdp.subscribe("Runtime.bindingCalled", c.handleBindingCalled)

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for targetID, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detach(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "target_id", targetID, "error", err)
				}
				cancel()
				session.sessionID = ""
				session.worlds = nil
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
}

// ListTabs returns the page targets that pass the tab filter.
func (c *Client) ListTabs(ctx context.Context) ([]TabInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("cdpcontrol list tabs failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	tabs := make([]TabInfo, 0, len(c.tabs))
	for _, s := range c.tabs {
		if s != nil {
			tabs = append(tabs, s.info)
		}
	}
	c.mu.Unlock()

	sort.Slice(tabs, func(i, j int) bool {
		return tabs[i].TabID < tabs[j].TabID
	})
	slog.Debug("cdpcontrol list tabs", "count", len(tabs))
	return tabs, nil
}

// Frames returns the frames of a tab in depth-first order.
func (c *Client) Frames(ctx context.Context, tabID string) ([]FrameInfo, error) {
	var frames []FrameInfo
	err := c.onTab(ctx, tabID, func(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string) error {
		var err error
		frames, err = c.frames(ctx, cdp, session, sessionID)
		return err
	})
	return frames, err
}

// StartRecorder installs mode's listeners in every frame of the tab, tearing
// down any recorder already present. It returns the number of frames armed.
func (c *Client) StartRecorder(ctx context.Context, tabID string, mode RecorderMode) (int, error) {
	switch mode {
	case ModePick, ModeRecordNext, ModeRecordPrev:
	default:
		return 0, newError(CodeValidation, "unknown recorder mode: "+string(mode), nil)
	}

	armed := 0
	err := c.onTab(ctx, tabID, func(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string) error {
		frames, err := c.frames(ctx, cdp, session, sessionID)
		if err != nil {
			return err
		}
		armed = 0
		for _, f := range frames {
			err := c.evalInFrame(ctx, cdp, session, sessionID, f, jsStartRecorder(mode, f.Index), nil)
			if err == nil {
				armed++
				continue
			}
			if f.Index == 0 {
				return err
			}
			slog.Warn("cdpcontrol recorder install skipped frame", "tab_id", tabID, "frame", f.Index, "url", f.URL, "error", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Info("cdpcontrol recorder started", "tab_id", tabID, "mode", mode, "frames", armed)
	return armed, nil
}

// CancelRecorder removes recorder listeners from every frame of the tab.
func (c *Client) CancelRecorder(ctx context.Context, tabID string) error {
	return c.onTab(ctx, tabID, func(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string) error {
		frames, err := c.frames(ctx, cdp, session, sessionID)
		if err != nil {
			return err
		}
		for _, f := range frames {
			if err := c.evalInFrame(ctx, cdp, session, sessionID, f, jsCancelRecorder(), nil); err != nil {
				if f.Index == 0 {
					return err
				}
				slog.Debug("cdpcontrol recorder cancel skipped frame", "tab_id", tabID, "frame", f.Index, "error", err)
			}
		}
		return nil
	})
}

// ClickElement dispatches a synthetic pointer click on the element. Once the
// click script has been sent it is never repeated, even after a transient
// failure, so a page cannot see two clicks for one call.
func (c *Client) ClickElement(ctx context.Context, tabID, selector string, frameID int) (string, error) {
	return c.elementCommand(ctx, tabID, frameID, jsClickElement(selector), false)
}

// HideElement sets visibility:hidden on the element.
func (c *Client) HideElement(ctx context.Context, tabID, selector string, frameID int) (string, error) {
	return c.elementCommand(ctx, tabID, frameID, jsHideElement(selector), true)
}

// ShowElement clears the inline visibility of the element.
func (c *Client) ShowElement(ctx context.Context, tabID, selector string, frameID int) (string, error) {
	return c.elementCommand(ctx, tabID, frameID, jsShowElement(selector), true)
}

func (c *Client) elementCommand(ctx context.Context, tabID string, frameID int, js string, idempotent bool) (string, error) {
	if frameID < 0 {
		return "", newError(CodeValidation, "frame id must be >= 0", nil)
	}
	var out struct {
		Status string `json:"status"`
	}
	var sent bool
	retry := func(err error) bool {
		return (idempotent || !sent) && c.shouldRetry(err)
	}
	err := c.onTabRetrying(ctx, tabID, retry, func(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string) error {
		frames, err := c.frames(ctx, cdp, session, sessionID)
		if err != nil {
			return err
		}
		if frameID >= len(frames) {
			return newError(CodeElementNotFound, "frame not found in tab", nil)
		}
		return c.evalInFrameTracked(ctx, cdp, session, sessionID, frames[frameID], js, &out, &sent)
	})
	if err != nil {
		return "", err
	}
	return out.Status, nil
}

// CaptureVisible returns a PNG of the tab's visible viewport.
func (c *Client) CaptureVisible(ctx context.Context, tabID string) ([]byte, error) {
	var png []byte
	err := c.onTab(ctx, tabID, func(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string) error {
		shotCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
		defer cancel()
		data, err := cdp.screenshotPNG(shotCtx, sessionID)
		if err != nil {
			return c.sessionError(shotCtx, cdp, session, "screenshot failed", err)
		}
		png, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return newError(CodeEvalFailure, "invalid screenshot payload", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return png, nil
}

// onTab runs fn against an attached session while holding the tab lock. A
// transient failure triggers one reconnect or tab refresh and a second attempt.
func (c *Client) onTab(ctx context.Context, tabID string, fn func(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string) error) error {
	return c.onTabRetrying(ctx, tabID, c.shouldRetry, fn)
}

// onTabRetrying runs fn under the tab lock and repeats it once after a
// reconnect or tab refresh when retry accepts the first failure.
func (c *Client) onTabRetrying(ctx context.Context, tabID string, retry func(error) bool, fn func(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string) error) error {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return newError(CodeValidation, "tab id is required", nil)
	}

	lock := c.tabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	err := c.attemptOnTab(ctx, tabID, fn)
	if err == nil {
		return nil
	}
	if !retry(err) {
		return err
	}

	slog.Warn("cdpcontrol command retry after transient failure", "tab_id", tabID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "tab_id", tabID, "error", recErr)
			return recErr
		}
	} else if syncErr := c.refreshTabs(ctx); syncErr != nil {
		slog.Warn("cdpcontrol tab refresh failed during retry", "tab_id", tabID, "error", syncErr)
	}

	return c.attemptOnTab(ctx, tabID, fn)
}

func (c *Client) attemptOnTab(ctx context.Context, tabID string, fn func(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string) error) error {
	session, err := c.resolveTabSession(ctx, tabID)
	if err != nil {
		slog.Warn("cdpcontrol tab resolve failed", "tab_id", tabID, "error", err)
		return err
	}

	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, tabID)
	if err != nil {
		return err
	}
	return fn(ctx, cdp, session, sessionID)
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
// A fresh session gets Runtime events and the recorder binding.
func (c *Client) ensureSession(ctx context.Context, cdp *browserConn, session *tabSession, targetID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attach(ctx, targetID)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	if err := cdp.enableRuntime(ctx, sid); err != nil {
		return "", newError(CodeCDPUnavailable, "enable runtime failed", err)
	}
	if err := cdp.addBinding(ctx, sid, bindingName, worldName); err != nil {
		return "", newError(CodeCDPUnavailable, "add recorder binding failed", err)
	}
	session.sessionID = sid
	session.worlds = make(map[string]int64)
	slog.Debug("cdpcontrol session attached", "target_id", targetID, "session_id", sid)
	return sid, nil
}

func (c *Client) frames(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string) ([]FrameInfo, error) {
	evalCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()
	tree, err := cdp.frameTree(evalCtx, sessionID)
	if err != nil {
		return nil, c.sessionError(evalCtx, cdp, session, "frame tree failed", err)
	}
	return flattenFrames(tree), nil
}

// flattenFrames numbers frames depth-first; the top-level frame is index 0.
func flattenFrames(root frameNode) []FrameInfo {
	var out []FrameInfo
	var walk func(n frameNode)
	walk = func(n frameNode) {
		out = append(out, FrameInfo{
			Index:    len(out),
			FrameID:  n.Frame.ID,
			ParentID: n.Frame.ParentID,
			URL:      n.Frame.URL,
			Name:     n.Frame.Name,
		})
		for _, child := range n.ChildFrames {
			walk(child)
		}
	}
	walk(root)
	return out
}

// evalInFrame evaluates js in the frame's isolated world and decodes the
// envelope into out. A world destroyed by navigation is recreated once.
func (c *Client) evalInFrame(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string, frame FrameInfo, js string, out any) error {
	return c.evalInFrameTracked(ctx, cdp, session, sessionID, frame, js, out, nil)
}

// evalInFrameTracked is evalInFrame that sets *sent before Runtime.evaluate is
// issued.
func (c *Client) evalInFrameTracked(ctx context.Context, cdp *browserConn, session *tabSession, sessionID string, frame FrameInfo, js string, out any, sent *bool) error {
	evalCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()

	var raw string
	for attempt := 0; ; attempt++ {
		contextID, err := c.worldFor(evalCtx, cdp, session, sessionID, frame.FrameID)
		if err != nil {
			return c.sessionError(evalCtx, cdp, session, "isolated world failed", err)
		}
		if sent != nil {
			*sent = true
		}
		raw, err = cdp.evaluate(evalCtx, sessionID, contextID, js)
		if err == nil {
			break
		}
		if attempt == 0 && isStaleContext(err) {
			slog.Debug("cdpcontrol isolated world stale", "frame_id", frame.FrameID, "error", err)
			session.mu.Lock()
			delete(session.worlds, frame.FrameID)
			session.mu.Unlock()
			continue
		}
		slog.Warn("cdpcontrol eval failed", "frame", frame.Index, "error", err)
		return c.sessionError(evalCtx, cdp, session, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

func (c *Client) worldFor(ctx context.Context, cdp *browserConn, session *tabSession, sessionID, frameID string) (int64, error) {
	session.mu.Lock()
	id, ok := session.worlds[frameID]
	session.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := cdp.isolatedWorld(ctx, sessionID, frameID, worldName)
	if err != nil {
		return 0, err
	}
	session.mu.Lock()
	if session.worlds == nil {
		session.worlds = make(map[string]int64)
	}
	session.worlds[frameID] = id
	session.mu.Unlock()
	return id, nil
}

// sessionError maps a failed session command to a coded error. Error replies
// from the page leave the session attached; transport failures and timeouts
// detach it so the next command attaches afresh.
func (c *Client) sessionError(ctx context.Context, cdp *browserConn, session *tabSession, msg string, err error) error {
	if !sessionAlive(err) {
		c.retireSession(cdp, session)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(CodeEvalTimeout, msg+": timed out", err)
	}
	return newError(CodeEvalFailure, msg, err)
}

// retireSession detaches the tab's current session before forgetting it.
// Recorder listeners armed through it stop reporting.
func (c *Client) retireSession(cdp *browserConn, session *tabSession) {
	sid := session.reset()
	if sid == "" || cdp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := cdp.detach(ctx, sid); err != nil {
		slog.Debug("cdpcontrol detach stale session failed", "session_id", sid, "error", err)
		return
	}
	slog.Warn("cdpcontrol session detached after failure", "session_id", sid)
}

// sessionAlive reports whether err came back from a session that is still
// usable: a script exception or a protocol error reply about the command.
func sessionAlive(err error) bool {
	if errors.Is(err, errScriptThrew) {
		return true
	}
	var reply *replyError
	return errors.As(err, &reply) && !hasTransientHint(err)
}

func isStaleContext(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cannot find context") || strings.Contains(msg, "execution context was destroyed")
}

// handleBindingCalled runs on the read loop; delivery happens on its own
// goroutine because report handlers issue CDP commands of their own.
func (c *Client) handleBindingCalled(sessionID string, params json.RawMessage) {
	var call struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(params, &call); err != nil || call.Name != bindingName {
		return
	}
	go c.deliverReport(sessionID, call.Payload)
}

func (c *Client) deliverReport(sessionID, payload string) {
	var report SelectionReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		slog.Warn("cdpcontrol recorder report malformed", "session_id", sessionID, "error", err)
		return
	}
	report.TabID = c.tabForSession(sessionID)
	if report.TabID == "" {
		slog.Warn("cdpcontrol recorder report from unknown session", "session_id", sessionID)
		return
	}

	c.reportMu.RLock()
	fn := c.onReport
	c.reportMu.RUnlock()
	slog.Info("cdpcontrol selection reported", "tab_id", report.TabID, "tag", report.Tag, "selector", report.Selector, "frame", report.FrameID)
	if fn != nil {
		fn(report)
	}
}

func (c *Client) tabForSession(sessionID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for targetID, session := range c.tabs {
		if session == nil {
			continue
		}
		session.mu.Lock()
		match := session.sessionID == sessionID
		session.mu.Unlock()
		if match {
			return string(targetID)
		}
	}
	return ""
}

func (c *Client) resolveTabSession(ctx context.Context, tabID string) (*tabSession, error) {
	if session, found := c.lookupTabSession(tabID); found {
		return session, nil
	}

	if err := c.refreshTabs(ctx); err != nil {
		return nil, err
	}

	if session, found := c.lookupTabSession(tabID); found {
		return session, nil
	}
	return nil, newError(CodeTabNotFound, "tab not found: "+tabID, nil)
}

func (c *Client) lookupTabSession(tabID string) (*tabSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.tabs[target.ID(tabID)]
	return session, session != nil
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}

	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.targets(ctx)
	if err != nil {
		return err
	}

	expected := make(map[target.ID]TabInfo)
	for _, t := range targets {
		if t.Type != "page" || strings.HasPrefix(t.URL, "devtools://") {
			continue
		}
		if c.tabFilter != "" && !strings.Contains(strings.ToLower(t.URL), c.tabFilter) {
			continue
		}
		expected[t.TargetID] = TabInfo{
			TabID: string(t.TargetID),
			URL:   t.URL,
			Title: t.Title,
		}
	}

	for targetID := range c.tabs {
		if _, ok := expected[targetID]; ok {
			continue
		}
		delete(c.tabs, targetID)
	}

	for targetID, info := range expected {
		session := c.tabs[targetID]
		if session != nil {
			session.info = info
			continue
		}
		c.tabs[targetID] = &tabSession{info: info}
	}

	// Prune tab locks for tabs no longer present.
	c.tabLocksMu.Lock()
	for id := range c.tabLocks {
		if _, ok := c.tabs[target.ID(id)]; !ok {
			delete(c.tabLocks, id)
		}
	}
	c.tabLocksMu.Unlock()

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "tabs", len(c.tabs))
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) tabLock(tabID string) *sync.Mutex {
	c.tabLocksMu.Lock()
	defer c.tabLocksMu.Unlock()
	m, ok := c.tabLocks[tabID]
	if !ok {
		m = &sync.Mutex{}
		c.tabLocks[tabID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeTabNotFound, CodeElementNotFound:
		return false
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		return hasTransientHint(coded.Cause)
	}
	return false
}

func hasTransientHint(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
