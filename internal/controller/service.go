// Package controller coordinates the recorder, one-shot element commands,
// capture runs and the save location on behalf of the API and CLI.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgnsrekt/clickshot/internal/capture"
	"github.com/dgnsrekt/clickshot/internal/cdp"
	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/events"
	"github.com/dgnsrekt/clickshot/internal/runstore"
	"github.com/dgnsrekt/clickshot/internal/state"
	"github.com/dgnsrekt/clickshot/internal/storage"
	"github.com/dgnsrekt/clickshot/internal/types"
)

// Browser is the CDP command surface. *cdpcontrol.Client implements it.
type Browser interface {
	capture.PageDriver
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	Frames(ctx context.Context, tabID string) ([]cdpcontrol.FrameInfo, error)
	StartRecorder(ctx context.Context, tabID string, mode cdpcontrol.RecorderMode) (int, error)
	CancelRecorder(ctx context.Context, tabID string) error
}

// Resolver checks a selection against the live DOM. *cdp.Inspector implements it.
type Resolver interface {
	Resolve(ctx context.Context, tabID string, sel types.ElementSelection) (cdp.Resolution, error)
}

// Locations holds the directory grant. *bridge.Bridge implements it.
type Locations interface {
	capture.FileSaver
	SelectDirectory(ctx context.Context, path string) (string, error)
	Granted(ctx context.Context) (string, bool)
	Drop(ctx context.Context) error
}

// Publisher is implemented by events.Broker.
type Publisher interface {
	Publish(events.Event)
}

// Journal is implemented by storage.Journal.
type Journal interface {
	Record(tab types.TabInfo, entry storage.JournalEntry)
}

// TabTracker keeps tab URLs for journal routing. *cdp.TabRegistry implements it.
type TabTracker interface {
	types.TabInfoProvider
	Track(tabID, url string)
	Retain(live map[string]bool)
}

// Deps are the collaborators of a Service. Resolver, Journal and Notifier
// may be nil.
type Deps struct {
	Browser   Browser
	Resolver  Resolver
	State     state.Store
	Locations Locations
	Downloads capture.AsyncWriter
	Runs      *runstore.Store
	Journal   Journal
	Tabs      TabTracker
	Events    Publisher
	Notifier  capture.Notifier
	Capture   capture.Options
}

// Service is the single coordinator every front end talks to.
type Service struct {
	browser   Browser
	resolver  Resolver
	store     state.Store
	locations Locations
	downloads capture.AsyncWriter
	runs      *runstore.Store
	journal   Journal
	tabs      TabTracker
	events    Publisher
	notifier  capture.Notifier
	capture   capture.Options

	runLocks sync.Map // tab id -> *sync.Mutex
	runWG    sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
}

func NewService(d Deps) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		browser:   d.Browser,
		resolver:  d.Resolver,
		store:     d.State,
		locations: d.Locations,
		downloads: d.Downloads,
		runs:      d.Runs,
		journal:   d.Journal,
		tabs:      d.Tabs,
		events:    d.Events,
		notifier:  d.Notifier,
		capture:   d.Capture,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Close cancels running loops and waits for them to clean up.
func (s *Service) Close() {
	s.cancel()
	s.runWG.Wait()
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) publish(tag, tabID string, data any) {
	if s.events != nil {
		s.events.Publish(events.Event{Tag: tag, TabID: tabID, Data: data})
	}
}

func (s *Service) ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	tabs, err := s.browser.ListTabs(ctx)
	if err != nil {
		return nil, err
	}
	if s.tabs != nil {
		live := make(map[string]bool, len(tabs))
		for _, t := range tabs {
			s.tabs.Track(t.TabID, t.URL)
			live[t.TabID] = true
		}
		s.tabs.Retain(live)
	}
	return tabs, nil
}

// requireTab fails with TAB_NOT_FOUND unless tabID is a listed page tab.
func (s *Service) requireTab(ctx context.Context, tabID string) error {
	tabs, err := s.ListTabs(ctx)
	if err != nil {
		return err
	}
	for _, t := range tabs {
		if t.TabID == tabID {
			return nil
		}
	}
	return &cdpcontrol.CodedError{Code: cdpcontrol.CodeTabNotFound, Message: "tab " + tabID + " not found"}
}

func (s *Service) Frames(ctx context.Context, tabID string) ([]cdpcontrol.FrameInfo, error) {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return nil, err
	}
	return s.browser.Frames(ctx, strings.TrimSpace(tabID))
}

// Element actions accepted by ElementAction.
const (
	ActionClick = "click"
	ActionHide  = "hide"
	ActionShow  = "show"
)

// ElementAction runs one click, hide or show command and returns its status.
func (s *Service) ElementAction(ctx context.Context, tabID, action string, sel types.ElementSelection) (string, error) {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return "", err
	}
	if err := sel.Validate(); err != nil {
		return "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: err.Error()}
	}
	tabID = strings.TrimSpace(tabID)
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionClick:
		return s.browser.ClickElement(ctx, tabID, sel.Selector, sel.FrameID)
	case ActionHide:
		return s.browser.HideElement(ctx, tabID, sel.Selector, sel.FrameID)
	case ActionShow:
		return s.browser.ShowElement(ctx, tabID, sel.Selector, sel.FrameID)
	}
	return "", &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fmt.Sprintf("unknown element action %q", action)}
}

func (s *Service) tabInfo(tabID string) types.TabInfo {
	if s.tabs != nil {
		if info, ok := s.tabs.GetByStringID(tabID); ok {
			return *info
		}
	}
	return storage.TabInfoFor(tabID, "")
}

func (s *Service) record(tabID string, entry storage.JournalEntry) {
	if s.journal == nil {
		return
	}
	entry.TabID = tabID
	s.journal.Record(s.tabInfo(tabID), entry)
}

func logErr(msg string, err error, args ...any) {
	if err != nil {
		slog.Warn(msg, append(args, "error", err)...)
	}
}
