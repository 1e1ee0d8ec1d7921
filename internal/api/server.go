package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/clickshot/internal/bridge"
	"github.com/dgnsrekt/clickshot/internal/cdp"
	"github.com/dgnsrekt/clickshot/internal/cdpcontrol"
	"github.com/dgnsrekt/clickshot/internal/controller"
	"github.com/dgnsrekt/clickshot/internal/events"
	"github.com/dgnsrekt/clickshot/internal/runstore"
	"github.com/dgnsrekt/clickshot/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	Health(ctx context.Context) controller.Health
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	Frames(ctx context.Context, tabID string) ([]cdpcontrol.FrameInfo, error)
	GetSelections(ctx context.Context, tabID string) (controller.Selections, error)
	PutSelection(ctx context.Context, tabID, role string, sel types.ElementSelection) (types.ElementSelection, error)
	DeleteSelection(ctx context.Context, tabID, role string) error
	ResolveSelection(ctx context.Context, tabID, role string) (cdp.Resolution, error)
	StartRecorder(ctx context.Context, tabID, mode string) (int, error)
	CancelRecorder(ctx context.Context, tabID string) error
	ElementAction(ctx context.Context, tabID, action string, sel types.ElementSelection) (string, error)
	StartProcess(ctx context.Context, req controller.StartRequest) (runstore.RunInfo, error)
	ListRuns(ctx context.Context) ([]runstore.RunInfo, error)
	GetRun(ctx context.Context, id string) (runstore.RunInfo, error)
	GetLocation(ctx context.Context) (controller.Location, error)
	ChooseLocation(ctx context.Context, path string) (bool, controller.Location, error)
	ClearLocation(ctx context.Context) error
}

type tabIDInput struct {
	TabID string `path:"tab_id" doc:"CDP target id of the tab"`
}

type statusOutput struct {
	Body struct {
		TabID  string `json:"tab_id,omitempty"`
		Status string `json:"status"`
	}
}

// NewServer mounts the control API, its docs and the event stream. broker
// may be nil, in which case /api/v1/events is not served.
func NewServer(svc Service, broker *events.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("clickshot Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, docsHTML)
	})
	router.Get("/docs/events", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, eventsDocsHTML)
	})
	if broker != nil {
		router.Get("/api/v1/events", events.SSEHandler(broker))
	}

	registerMiscHandlers(api, svc)
	registerTabHandlers(api, svc)
	registerSelectionHandlers(api, svc)
	registerRunHandlers(api, svc)
	registerLocationHandlers(api, svc)

	return router
}

func writeHTML(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write([]byte(page)); err != nil {
		slog.Debug("docs response write failed", "error", err)
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bridge.ErrDirectoryNotGranted) {
		return huma.Error412PreconditionFailed(err.Error())
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound, cdpcontrol.CodeElementNotFound, cdpcontrol.CodeRunNotFound, cdpcontrol.CodeSelectionNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeRunInProgress:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		case cdpcontrol.CodeDirectoryNotGranted:
			return huma.Error412PreconditionFailed(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
