package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/clickshot/internal/controller"
	"github.com/dgnsrekt/clickshot/internal/runstore"
	"github.com/dgnsrekt/clickshot/internal/types"
)

func registerRunHandlers(api huma.API, svc Service) {
	type startProcessOutput struct {
		Body struct {
			Status string           `json:"status"`
			Run    runstore.RunInfo `json:"run"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID:   "start-process",
		Method:        http.MethodPost,
		Path:          "/api/v1/process",
		Summary:       "Start a click/screenshot run",
		Description:   "Acknowledges immediately; progress arrives as process-* events. Omitted selections fall back to the ones stored for the tab.",
		Tags:          []string{"Runs"},
		DefaultStatus: http.StatusAccepted,
	},
		func(ctx context.Context, input *struct {
			Body struct {
				TabID    string                  `json:"tab_id" required:"true"`
				Clicks   int                     `json:"clicks" required:"true" doc:"Number of click/screenshot iterations"`
				Next     *types.ElementSelection `json:"next,omitempty" doc:"Override the stored next selection"`
				Previous *types.ElementSelection `json:"previous,omitempty" doc:"Override the stored previous selection"`
			}
		}) (*startProcessOutput, error) {
			info, err := svc.StartProcess(ctx, controller.StartRequest{
				TabID:    input.Body.TabID,
				Clicks:   input.Body.Clicks,
				Next:     input.Body.Next,
				Previous: input.Body.Previous,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &startProcessOutput{}
			out.Body.Status = controller.ProcessStartedAck
			out.Body.Run = info
			return out, nil
		})

	type listRunsOutput struct {
		Body struct {
			Runs []runstore.RunInfo `json:"runs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-runs", Method: http.MethodGet, Path: "/api/v1/runs", Summary: "List runs, newest first", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct{}) (*listRunsOutput, error) {
			runs, err := svc.ListRuns(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listRunsOutput{}
			out.Body.Runs = runs
			return out, nil
		})

	type runOutput struct {
		Body runstore.RunInfo
	}
	huma.Register(api, huma.Operation{OperationID: "get-run", Method: http.MethodGet, Path: "/api/v1/runs/{run_id}", Summary: "Get one run summary", Tags: []string{"Runs"}},
		func(ctx context.Context, input *struct {
			RunID string `path:"run_id"`
		}) (*runOutput, error) {
			info, err := svc.GetRun(ctx, input.RunID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &runOutput{Body: info}, nil
		})
}
