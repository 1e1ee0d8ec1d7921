// Package notify tells the user about run milestones: every notification is
// logged and published on the event stream, and optionally pushed to ntfy.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/clickshot/internal/events"
)

const defaultTitle = "Screenshot Clicker"

const sendTimeout = 5 * time.Second

// Publisher is the part of events.Broker the notifier needs.
type Publisher interface {
	Publish(events.Event)
}

// Notifier delivers user-visible notifications.
type Notifier struct {
	events   Publisher
	endpoint string
	client   *http.Client
}

// New returns a Notifier. An empty endpoint disables ntfy pushes.
func New(pub Publisher, endpoint string, client *http.Client) *Notifier {
	return &Notifier{events: pub, endpoint: endpoint, client: client}
}

// Notify records a notification for tag. Push failures are logged and
// never returned: notifications are best effort.
func (n *Notifier) Notify(ctx context.Context, tag, tabID, message string) {
	level := slog.LevelInfo
	if tag == events.TagProcessError {
		level = slog.LevelError
	}
	title := titleFor(tag)
	slog.Log(ctx, level, "notification", "tag", tag, "tab_id", tabID, "title", title, "message", message)

	if n.events != nil {
		n.events.Publish(events.Event{Tag: tag, TabID: tabID, Data: map[string]string{"title": title, "message": message}})
	}
	if n.endpoint == "" {
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := Send(sendCtx, n.client, n.endpoint, title, message); err != nil {
		slog.Warn("ntfy push failed", "tag", tag, "error", err)
	}
}

// titleFor names the notification by the milestone it reports.
func titleFor(tag string) string {
	switch tag {
	case events.TagProcessComplete:
		return "Process Complete"
	case events.TagProcessError:
		return "Error"
	default:
		return defaultTitle
	}
}

// Send posts message to an ntfy endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	if endpoint == "" {
		return errors.New("ntfy endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
