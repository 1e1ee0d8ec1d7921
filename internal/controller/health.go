package controller

import (
	"context"
	"log/slog"
	"time"
)

// Health is a point-in-time view of the controller's dependencies.
type Health struct {
	Status     string `json:"status" enum:"ok,degraded"`
	Browser    bool   `json:"browser" doc:"True when the CDP endpoint answered a tab listing"`
	Tabs       int    `json:"tabs"`
	ActiveRuns int    `json:"active_runs"`
	Directory  string `json:"directory,omitempty" doc:"Display name of the live directory grant"`

	Subscribers   int    `json:"subscribers" doc:"Open event stream connections"`
	DroppedEvents int64  `json:"dropped_events" doc:"Events skipped because a subscriber fell behind"`
	DownloadsDir  string `json:"downloads_dir,omitempty" doc:"Where screenshots land without a directory grant"`
}

// streamStats is implemented by events.Broker.
type streamStats interface {
	ClientCount() int
	Dropped() int64
}

const healthCheckTimeout = 3 * time.Second

// Health never fails; an unreachable browser only degrades the status.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok", ActiveRuns: s.ActiveRuns()}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	tabs, err := s.browser.ListTabs(checkCtx)
	if err != nil {
		slog.Debug("health check: browser unreachable", "error", err)
		h.Status = "degraded"
	} else {
		h.Browser = true
		h.Tabs = len(tabs)
	}
	if st, ok := s.events.(streamStats); ok {
		h.Subscribers = st.ClientCount()
		h.DroppedEvents = st.Dropped()
	}
	if d, ok := s.downloads.(interface{ Dir() string }); ok {
		h.DownloadsDir = d.Dir()
	}
	if s.locations != nil {
		if name, ok := s.locations.Granted(checkCtx); ok {
			h.Directory = name
		}
	}
	return h
}
