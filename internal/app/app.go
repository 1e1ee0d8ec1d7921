// Package app wires configuration into a running controller. Both the HTTP
// controller and the CLI build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgnsrekt/clickshot/internal/bridge"
	"github.com/dgnsrekt/clickshot/internal/browser"
	"github.com/dgnsrekt/clickshot/internal/capture"
	"github.com/dgnsrekt/clickshot/internal/cdp"
	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/config"
	"github.com/dgnsrekt/clickshot/internal/controller"
	"github.com/dgnsrekt/clickshot/internal/events"
	"github.com/dgnsrekt/clickshot/internal/notify"
	"github.com/dgnsrekt/clickshot/internal/runstore"
	"github.com/dgnsrekt/clickshot/internal/state"
	"github.com/dgnsrekt/clickshot/internal/storage"
)

const (
	journalBufferSize = 256
	journalMaxSizeMB  = 50
)

// App holds every long-lived component.
type App struct {
	Config    *config.ControllerConfig
	CDP       *cdpcontrol.Client
	Inspector *cdp.Inspector
	Tabs      *cdp.TabRegistry
	State     state.Store
	Bridge    *bridge.Bridge
	Runs      *runstore.Store
	Journal   *storage.Journal
	Downloads *storage.DownloadsWriter
	Events    *events.Broker
	Service   *controller.Service

	launcher *browser.Launcher
}

// New builds the component graph and connects to Chromium, launching it
// first when BROWSER_AUTO_LAUNCH is set.
func New(ctx context.Context, cfg *config.ControllerConfig) (*App, error) {
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.BrowserAutoLaunch {
		a.launcher = browser.NewLauncher(browser.Config{
			CDPAddress:  cfg.CDPAddress,
			CDPPort:     cfg.CDPPort,
			BrowserPath: cfg.BrowserPath,
			ProfileDir:  cfg.BrowserProfileDir,
			StartURL:    cfg.BrowserStartURL,
		})
		if err := a.launcher.Launch(ctx); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	st, err := OpenState(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.State = st

	a.Runs, err = runstore.NewStore(cfg.RunsDir)
	if err != nil {
		return nil, err
	}

	a.CDP = cdpcontrol.NewClient(cfg.ControllerCDPURL(), cfg.TabURLFilter, cfg.EvalTimeout())
	if err := a.CDP.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect CDP at %s: %w", cfg.ControllerCDPURL(), err)
	}

	a.Tabs = cdp.NewTabRegistry()
	a.Inspector = cdp.NewInspector(cfg.ControllerCDPURL(), cfg.EvalTimeout(), a.Tabs)
	a.Bridge = bridge.New(cfg.BridgeIdleTimeout)
	a.Journal = storage.NewJournal(cfg.JournalDir, journalBufferSize, journalMaxSizeMB)
	a.Downloads = storage.NewDownloadsWriter(cfg.DownloadsDir)
	a.Events = events.NewBroker()

	notifier := notify.New(a.Events, cfg.NtfyEndpoint, &http.Client{Timeout: 10 * time.Second})

	a.Service = controller.NewService(controller.Deps{
		Browser:   a.CDP,
		Resolver:  a.Inspector,
		State:     a.State,
		Locations: a.Bridge,
		Downloads: a.Downloads,
		Runs:      a.Runs,
		Journal:   a.Journal,
		Tabs:      a.Tabs,
		Events:    a.Events,
		Notifier:  notifier,
		Capture: capture.Options{
			ClickSettle:  cfg.ClickSettle(),
			RenderSettle: cfg.RenderSettle(),
		},
	})
	a.CDP.OnSelection(a.Service.HandleSelection)

	ok = true
	return a, nil
}

// OpenState returns the configured state backend.
func OpenState(ctx context.Context, cfg *config.ControllerConfig) (state.Store, error) {
	switch cfg.StateBackend {
	case "redis":
		st, err := state.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("open redis state at %s: %w", cfg.RedisAddr, err)
		}
		return st, nil
	case "file", "":
		st, err := state.NewFileStore(cfg.StateFile)
		if err != nil {
			return nil, fmt.Errorf("open state file %s: %w", cfg.StateFile, err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
}

// Close shuts components down in dependency order. It is safe on a
// partially built App.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Close()
	}
	if a.Downloads != nil {
		a.Downloads.Wait()
	}
	if a.Journal != nil {
		logClose("journal", a.Journal.Close())
	}
	if a.Bridge != nil {
		logClose("bridge", a.Bridge.Close())
	}
	if a.Inspector != nil {
		logClose("inspector", a.Inspector.Close())
	}
	if a.CDP != nil {
		logClose("CDP client", a.CDP.Close())
	}
	if a.State != nil {
		logClose("state store", a.State.Close())
	}
	if a.launcher != nil && a.launcher.Started() {
		a.launcher.Stop()
	}
}

func logClose(what string, err error) {
	if err != nil {
		slog.Debug(what+" close failed", "error", err)
	}
}
